package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/graceinfra/shipyard/internal/actions"
	runctx "github.com/graceinfra/shipyard/internal/context"
	"github.com/graceinfra/shipyard/internal/expr"
	"github.com/graceinfra/shipyard/internal/models"
	"github.com/graceinfra/shipyard/internal/resolver"
	"github.com/graceinfra/shipyard/internal/secrets"
	"github.com/graceinfra/shipyard/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// JobRunner executes a single job: cache restore, optional resources,
// steps in order, then cache save.
type JobRunner struct {
	ctx      *runctx.ExecutionContext
	registry *actions.Registry
	resolver *resolver.Resolver

	// secretNames are the secrets declared anywhere in the workflow. They are
	// withheld from the inherited environment of every job.
	secretNames map[string]bool

	// RunTimeout is the run deadline's duration, used in timeout messages.
	RunTimeout time.Duration
}

func NewJobRunner(ctx *runctx.ExecutionContext, registry *actions.Registry, res *resolver.Resolver) *JobRunner {
	if registry == nil {
		registry = actions.DefaultRegistry()
	}
	if res == nil {
		res = resolver.New()
	}
	if res.OnDegraded == nil {
		res.OnDegraded = func(job string, r resolver.Result) {
			ctx.Metrics().IncOptionalDegraded(job, r.Name)
		}
	}
	names := make(map[string]bool)
	if ctx.Config != nil {
		for _, job := range ctx.Config.Jobs.All() {
			for _, name := range job.Secrets {
				names[name] = true
			}
		}
	}
	return &JobRunner{ctx: ctx, registry: registry, resolver: res, secretNames: names}
}

// jobState is the mutable state of one job while it runs.
type jobState struct {
	job          *types.Job
	ctx          context.Context // job context, carries the job timeout
	runCtx       context.Context
	workDir      string
	env          []string
	secretValues []string
	scope        *expr.Scope
	logger       zerolog.Logger
	runTimeout   time.Duration
}

// timeoutFor maps an expired deadline to the scope that set it.
func (js *jobState) timeoutFor(stepCtx context.Context, step *types.Step) error {
	if !errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		return nil
	}
	switch {
	case errors.Is(js.runCtx.Err(), context.DeadlineExceeded):
		return &TimeoutError{Scope: "run", Timeout: js.runTimeout}
	case errors.Is(js.ctx.Err(), context.DeadlineExceeded):
		return &TimeoutError{Scope: "job", Name: js.job.Name, Timeout: js.job.Timeout.Std()}
	default:
		return &TimeoutError{Scope: "step", Name: step.ID, Timeout: step.Timeout.Std()}
	}
}

func (r *JobRunner) Run(ctx context.Context, job *types.Job) *models.JobExecutionRecord {
	start := time.Now()
	jobLogger := log.With().
		Str("component", "job_runner").
		Str("run_id", r.ctx.RunId.String()).
		Str("job_name", job.Name).
		Logger()

	record := &models.JobExecutionRecord{
		JobName:   job.Name,
		Target:    job.Target,
		Needs:     job.Needs,
		RunId:     r.ctx.RunId,
		Initiator: r.ctx.Initiator,
		StartTime: start.Format(time.RFC3339),
		Steps:     []models.StepRecord{},
	}
	finish := func(state types.JobState) *models.JobExecutionRecord {
		record.Status = string(state)
		record.FinishTime = time.Now().Format(time.RFC3339)
		record.DurationMs = time.Since(start).Milliseconds()
		if r.ctx.Store != nil {
			record.Artifacts = r.ctx.Store.Produced(job.Name)
		}
		r.ctx.Metrics().ObserveJobDuration(job.Name, time.Since(start))
		r.ctx.Metrics().IncJobResult(job.Name, record.Status)
		return record
	}
	failJob := func(reason string) *models.JobExecutionRecord {
		record.FailureReason = reason
		jobLogger.Error().Msgf("❌ Job failed: %s", reason)
		return finish(types.JobFailed)
	}

	target, err := types.ParseTarget(job.Target)
	if err != nil {
		return failJob(err.Error())
	}

	workDir := r.ctx.ConfigDir
	if job.WorkingDirectory != "" {
		workDir = filepath.Join(workDir, filepath.FromSlash(job.WorkingDirectory))
	}

	scope := &expr.Scope{
		Trigger:  r.ctx.Trigger,
		Target:   target,
		Env:      job.Env,
		Steps:    make(map[string]string, len(job.Steps)),
		Optional: make(map[string]expr.OptionalState, len(job.Optional)),
		Root:     workDir,
	}

	// --- Job condition ---

	if job.If != "" {
		pred, err := expr.CompilePredicate(job.If)
		if err != nil {
			return failJob(fmt.Sprintf("compile job condition: %v", err))
		}
		ok, err := pred.Eval(scope)
		if err != nil {
			return failJob(fmt.Sprintf("evaluate job condition: %v", err))
		}
		if !ok {
			record.SkipReason = fmt.Sprintf("condition %q is false", job.If)
			jobLogger.Info().Msgf("Skipping job: %s", record.SkipReason)
			return finish(types.JobSkipped)
		}
	}

	runCtx := ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout.Std())
		defer cancel()
	}

	if err := os.MkdirAll(workDir, 0755); err != nil {
		return failJob(fmt.Sprintf("create working directory: %v", err))
	}

	// --- Secrets and environment ---

	secretVals := map[string]string{}
	if r.ctx.Secrets != nil && len(job.Secrets) > 0 {
		var missing []string
		secretVals, missing = r.ctx.Secrets.Resolve(job.Secrets)
		if len(missing) > 0 {
			jobLogger.Warn().Strs("secrets", missing).Msg("Secrets not found; they will be unset in the job environment")
		}
	}

	js := &jobState{
		job:          job,
		ctx:          ctx,
		runCtx:       runCtx,
		workDir:      workDir,
		env:          r.jobEnv(job, target, secretVals),
		secretValues: values(secretVals),
		scope:        scope,
		logger:       jobLogger,
		runTimeout:   r.RunTimeout,
	}

	// --- Cache restore ---

	var cacheKey string
	if job.Cache != nil && r.ctx.Cache != nil {
		record.Cache = &models.CacheRecord{}
		cacheKey, err = renderCacheKey(job.Cache.Key, scope)
		if err != nil {
			record.Cache.SaveWarning = fmt.Sprintf("cache disabled: %v", err)
			jobLogger.Warn().Err(err).Msg("Could not compute cache key; cache disabled for this job")
		} else {
			record.Cache.Key = cacheKey
			restored, hit := r.ctx.Cache.Restore(ctx, cacheKey, workDir)
			record.Cache.Hit = hit
			record.Cache.Restored = restored
			r.ctx.Metrics().IncCacheLookup(hit)
			if hit {
				jobLogger.Info().Str("cache_key", cacheKey).Int("files", len(restored)).Msg("Cache hit")
			} else {
				jobLogger.Info().Str("cache_key", cacheKey).Msg("Cache miss")
			}
		}
	}

	// --- Optional resources ---

	if len(job.Optional) > 0 {
		results := r.resolver.Resolve(ctx, job.Name, job.Optional, resolver.Request{
			WorkDir: workDir,
			Env:     js.env,
			Secrets: secretVals,
			Logger:  jobLogger,
		})
		for _, res := range results {
			scope.Optional[res.Name] = expr.OptionalState{Outcome: string(res.Outcome), Available: res.Available()}
			entry := models.OptionalRecord{Name: res.Name, Outcome: string(res.Outcome)}
			if res.Err != nil {
				entry.Reason = res.Err.Reason
			}
			record.Optional = append(record.Optional, entry)
		}
	}

	// --- Steps ---

	for _, step := range job.Steps {
		stepRec, failure := r.runStep(js, step)
		record.Steps = append(record.Steps, stepRec)
		scope.Steps[step.ID] = stepRec.Outcome

		if stepRec.Outcome == string(types.StepFailed) && failure != nil && !scope.JobFailed {
			scope.JobFailed = true
			record.FailedStep = step.ID
			record.FailureReason = stepRec.Message
		}
	}

	if scope.JobFailed {
		jobLogger.Error().Str("step", record.FailedStep).Msgf("❌ Job failed at step %s", record.FailedStep)
		return finish(types.JobFailed)
	}

	// --- Cache save ---

	if record.Cache != nil && cacheKey != "" {
		if err := r.ctx.Cache.Save(ctx, cacheKey, workDir, job.Cache.Paths); err != nil {
			record.Cache.SaveWarning = err.Error()
			r.ctx.Metrics().IncCacheSaveFailure()
			jobLogger.Warn().Err(err).Str("cache_key", cacheKey).Msg("Cache save failed")
		} else {
			record.Cache.Saved = true
		}
	}

	jobLogger.Info().Msg("✅ Job succeeded")
	return finish(types.JobSucceeded)
}

// jobEnv builds the step environment: process env without any declared
// secret, run metadata, job env, then the job's own secrets.
func (r *JobRunner) jobEnv(job *types.Job, target types.Target, secretVals map[string]string) []string {
	env := secrets.WithoutNames(os.Environ(), r.secretNames)
	env = append(env,
		"SHIPYARD=true",
		"SHIPYARD_RUN_ID="+r.ctx.RunId.String(),
		"SHIPYARD_JOB="+job.Name,
		"SHIPYARD_REF="+r.ctx.Trigger.Ref,
		"SHIPYARD_SHA="+r.ctx.Trigger.Sha,
		"SHIPYARD_EVENT="+r.ctx.Trigger.Event,
		"SHIPYARD_TARGET_OS="+target.OS,
		"SHIPYARD_TARGET_ARCH="+target.Arch,
		"SHIPYARD_TARGET_TOOLCHAIN="+target.Toolchain,
	)
	env = append(env, sortedPairs(job.Env)...)
	env = append(env, sortedPairs(secretVals)...)
	return env
}

func renderCacheKey(src string, scope *expr.Scope) (string, error) {
	tmpl, err := expr.CompileTemplate(src)
	if err != nil {
		return "", err
	}
	key, err := tmpl.Render(scope)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("cache key %q rendered empty", src)
	}
	return key, nil
}

func sortedPairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out
}

func values(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
