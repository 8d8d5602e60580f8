package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/graceinfra/shipyard/internal/artifact"
	"github.com/graceinfra/shipyard/internal/cache"
	"github.com/graceinfra/shipyard/internal/config"
	runctx "github.com/graceinfra/shipyard/internal/context"
	"github.com/graceinfra/shipyard/internal/logging"
	"github.com/graceinfra/shipyard/internal/metrics"
	"github.com/graceinfra/shipyard/internal/orchestrator"
	"github.com/graceinfra/shipyard/internal/secrets"
	"github.com/graceinfra/shipyard/internal/trigger"
	"github.com/graceinfra/shipyard/internal/ui"
	"github.com/graceinfra/shipyard/types"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type runOptions struct {
	ref         string
	sha         string
	event       string
	secretsFile string
	only        []string
	json        bool
	metricsAddr string
	metricsFile string
}

var runOpts runOptions

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVar(&runOpts.ref, "ref", "", "Git reference the run is for (default: detected from the repository)")
	f.StringVar(&runOpts.sha, "sha", "", "Commit the run is for (default: detected from the repository)")
	f.StringVar(&runOpts.event, "event", trigger.DefaultEvent, "Event that started the run")
	f.StringVar(&runOpts.secretsFile, "secrets-file", "", "dotenv file with secret values")
	f.StringSliceVar(&runOpts.only, "only", nil, "Run only the named job(s) and what they need")
	f.BoolVar(&runOpts.json, "json", false, "Print the run summary as JSON")
	f.StringVar(&runOpts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")
	f.StringVar(&runOpts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file when the run ends")
}

var runCmd = &cobra.Command{
	Use:   "run [workflow-file]",
	Short: "Run a workflow and wait for completion",
	Long: `Run executes every job of shipyard.yml in dependency order, then evaluates
the release gate and publishes the release when it is eligible.

Records, step logs and summary.json are written to '.shipyard/logs/'.

Exit status: 0 success, 2 invalid workflow, 3 a job failed, 4 release
publishing failed, 1 any other error.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorkflow(cmd, workflowFile(args), runOpts)
	},
}

func workflowFile(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return config.DefaultFile
}

func runWorkflow(cmd *cobra.Command, cfgPath string, opts runOptions) error {
	deps := GetDependencies()

	// --- Load and validate shipyard.yml ---

	cfg, cfgDir, err := config.LoadConfig(cfgPath, deps.Registry)
	if err != nil {
		return err
	}
	log.Debug().Msgf("✓ Configuration %q loaded and validated.", cfgPath)

	trig, err := trigger.Resolve(trigger.Options{Ref: opts.ref, Sha: opts.sha, Event: opts.event, Dir: cfgDir})
	if err != nil {
		return fmt.Errorf("failed to determine trigger: %w", err)
	}

	secretSource, err := secrets.Load(opts.secretsFile)
	if err != nil {
		return err
	}

	// --- Initialize run directory and logging ---

	runId := uuid.New()
	runStartTime := time.Now()

	logDir, err := logging.CreateLogDir(cfgDir, runId, runStartTime, "run")
	if err != nil {
		return err
	}

	closer, err := logging.ConfigureGlobalLogger(Verbose, filepath.Join(logDir, logging.WorkflowLogFile))
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer closer.Close()

	logCtx := log.With().Str("run_id", runId.String()).Logger()
	logCtx.Info().Str("ref", trig.Ref).Str("event", trig.Event).Msgf("Logs will be stored in: %s", logDir)

	// --- Set up execution context ---

	store, err := artifact.NewFileStore(filepath.Join(logDir, logging.ArtifactsDir))
	if err != nil {
		return err
	}

	cacheDir := cfg.Config.CacheDir
	if !filepath.IsAbs(cacheDir) {
		cacheDir = filepath.Join(cfgDir, cacheDir)
	}

	recorder := metrics.NewPrometheusRecorder(nil)
	if opts.metricsAddr != "" {
		srv, err := metrics.Serve(opts.metricsAddr, recorder.Registry())
		if err != nil {
			return fmt.Errorf("failed to serve metrics on %s: %w", opts.metricsAddr, err)
		}
		defer srv.Close()
		logCtx.Info().Msgf("Metrics available at http://%s/metrics", srv.Addr())
	}

	ec := &runctx.ExecutionContext{
		RunId:        runId,
		RunStartTime: runStartTime,
		Config:       cfg,
		ConfigDir:    cfgDir,
		LogDir:       logDir,
		Only:         opts.only,
		ShipyardCmd:  "run",
		Initiator:    currentInitiator(),
		Trigger:      trig,
		Secrets:      secretSource,
		Store:        store,
		Cache:        cache.NewFileCache(cacheDir),
		Recorder:     recorder,
	}

	// --- Run ---

	out := ui.New(outputStyle(opts.json))
	out.StartSpinner(fmt.Sprintf("Running %d job(s)...", cfg.Jobs.Len()))
	result, runErr := orchestrator.New(deps.Registry, deps.Resolver, nil).Run(cmd.Context(), ec)
	out.StopSpinner()
	if result == nil {
		return runErr
	}

	recordRun(cmd.Context(), cfgDir, logDir, result.Summary)

	if opts.metricsFile != "" {
		if err := metrics.WriteTextfile(opts.metricsFile, recorder.Registry()); err != nil {
			logCtx.Warn().Err(err).Str("path", opts.metricsFile).Msg("Failed to write metrics file")
		}
	}

	if err := out.JSON(result.Summary); err != nil {
		return fmt.Errorf("failed to print summary: %w", err)
	}
	out.Info("")
	out.PrintSummary(result.Summary)
	out.Info("\nLogs saved to: %s", logDir)

	if runErr != nil {
		return runErr
	}
	if result.Summary.JobsFailed > 0 {
		return errJobsFailed
	}
	return nil
}

func outputStyle(json bool) types.OutputStyle {
	switch {
	case json:
		return types.StyleMachineJSON
	case Verbose:
		return types.StyleHumanVerbose
	default:
		return types.StyleHuman
	}
}

func currentInitiator() types.Initiator {
	host, _ := os.Hostname()
	initiator := types.Initiator{Type: "user", Id: os.Getenv("USER"), Host: host}
	if os.Getenv("CI") != "" {
		initiator.Type = "ci"
	}
	return initiator
}
