package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/graceinfra/shipyard/internal/actions"
	"github.com/graceinfra/shipyard/internal/config"
	runctx "github.com/graceinfra/shipyard/internal/context"
	"github.com/graceinfra/shipyard/internal/executor"
	"github.com/graceinfra/shipyard/internal/models"
	"github.com/graceinfra/shipyard/internal/release"
	"github.com/graceinfra/shipyard/internal/resolver"
	"github.com/graceinfra/shipyard/types"
	"github.com/rs/zerolog/log"
)

// Orchestrator runs a validated workflow: jobs, then the release gate.
type Orchestrator interface {
	Run(ctx context.Context, ec *runctx.ExecutionContext) (*Result, error)
}

// Result is everything a run produced.
type Result struct {
	Records []models.JobExecutionRecord
	Release *models.ReleaseSummary
	Summary models.ExecutionSummary
}

// ReleaseError wraps a failure to publish an eligible release.
type ReleaseError struct {
	Err error
}

func (e *ReleaseError) Error() string { return "release failed: " + e.Err.Error() }

func (e *ReleaseError) Unwrap() error { return e.Err }

type dagOrchestrator struct {
	registry *actions.Registry
	resolver *resolver.Resolver
	host     release.Host
}

// New returns the default orchestrator. A nil host is built from the
// workflow's release_host on each run.
func New(registry *actions.Registry, res *resolver.Resolver, host release.Host) Orchestrator {
	return &dagOrchestrator{registry: registry, resolver: res, host: host}
}

func (o *dagOrchestrator) Run(ctx context.Context, ec *runctx.ExecutionContext) (*Result, error) {
	runLogger := log.With().Str("component", "orchestrator").Str("run_id", ec.RunId.String()).Logger()
	cfg := ec.Config

	// --- Build job graph ---

	// Assumes ValidateConfig (including cycle check)
	runLogger.Debug().Msg("Building job graph from configuration...")
	jobGraph, err := config.BuildJobGraph(cfg)
	if err != nil {
		return nil, fmt.Errorf("orchestration failed: could not build job graph: %w", err)
	}

	order := cfg.Jobs.Names()
	if len(ec.Only) > 0 {
		order, err = config.Closure(jobGraph, order, ec.Only)
		if err != nil {
			return nil, fmt.Errorf("orchestration failed: %w", err)
		}
		runLogger.Info().Strs("jobs", order).Msg("Running selected jobs and their needs")
	}

	if cfg.Config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Config.Timeout.Std())
		defer cancel()
	}

	// --- Create and run executor ---

	runner := executor.NewJobRunner(ec, o.registry, o.resolver)
	runner.RunTimeout = cfg.Config.Timeout.Std()
	exec := executor.NewExecutor(ec, jobGraph, order, cfg.Config.Concurrency, runner)

	runLogger.Debug().Msg("Invoking executor...")
	records, execErr := exec.ExecuteAndWait(ctx)

	result := &Result{Records: records}
	if execErr != nil {
		// Return the records collected so far so the caller can still
		// generate a partial summary
		result.Summary = BuildSummary(ec, records, nil)
		return result, fmt.Errorf("DAG execution failed: %w", execErr)
	}

	// --- Release gate ---

	var releaseErr error
	if cfg.Release != nil {
		result.Release, releaseErr = o.release(ctx, ec, records)
	}

	result.Summary = BuildSummary(ec, records, result.Release)
	ec.Metrics().ObserveRunDuration(time.Since(ec.RunStartTime))
	ec.Metrics().IncRunOutcome(result.Summary.OverallStatus)

	if releaseErr != nil {
		return result, releaseErr
	}
	runLogger.Info().Msgf("✓ Run finished: %s", result.Summary.OverallStatus)
	return result, nil
}

func (o *dagOrchestrator) release(ctx context.Context, ec *runctx.ExecutionContext, records []models.JobExecutionRecord) (*models.ReleaseSummary, error) {
	spec := ec.Config.Release
	logger := log.With().Str("component", "release").Str("run_id", ec.RunId.String()).Logger()

	gate, err := release.NewGate(spec, ec.Trigger.Ref)
	if err != nil {
		return &models.ReleaseSummary{State: string(release.Pending), Error: err.Error()}, &ReleaseError{Err: err}
	}

	holds, err := gate.TriggerHolds(ec.Trigger)
	if err != nil {
		return &models.ReleaseSummary{Tag: gate.Tag(), State: string(gate.State()), Error: err.Error()}, &ReleaseError{Err: fmt.Errorf("evaluate trigger: %w", err)}
	}

	// Jobs left out by --only never ran.
	states := make(map[string]types.JobState, len(spec.Requires))
	for _, name := range spec.Requires {
		states[name] = types.JobSkipped
	}
	for _, rec := range records {
		states[rec.JobName] = types.JobState(rec.Status)
	}

	state, err := gate.Evaluate(holds, states)
	if err != nil {
		return &models.ReleaseSummary{Tag: gate.Tag(), State: string(gate.State()), Error: err.Error()}, &ReleaseError{Err: err}
	}
	if state == release.Aborted {
		logger.Info().Str("reason", gate.Reason()).Msg("Release ABORTED")
		ec.Metrics().IncReleaseResult(string(release.Aborted))
		return &models.ReleaseSummary{Tag: gate.Tag(), State: string(state), Reason: gate.Reason(), Draft: spec.Draft}, nil
	}

	host := o.host
	if host == nil {
		host, err = HostFor(ec.Config.ReleaseHost, ec.ConfigDir)
		if err != nil {
			return &models.ReleaseSummary{Tag: gate.Tag(), State: string(state), Error: err.Error()}, &ReleaseError{Err: err}
		}
	}

	logger.Info().Str("tag", gate.Tag()).Msg("Release ELIGIBLE, publishing")
	summary, err := release.NewPublisher(host, ec.Store, ec.Metrics()).Publish(ctx, gate)
	if err != nil {
		return summary, &ReleaseError{Err: err}
	}
	return summary, nil
}

// HostFor builds the release host named by the workflow. Relative paths are
// resolved against root.
func HostFor(h types.ReleaseHost, root string) (release.Host, error) {
	switch h.Type {
	case "memory":
		return release.NewMemoryHost(), nil
	case "", "fs":
		dir := h.Path
		if dir == "" {
			dir = config.DefaultReleaseDir
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(root, dir)
		}
		host, err := release.NewFileHost(dir)
		if err != nil {
			return nil, err
		}
		return host, nil
	default:
		return nil, fmt.Errorf("unknown release host type %q", h.Type)
	}
}
