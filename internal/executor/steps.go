package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/graceinfra/shipyard/internal/actions"
	"github.com/graceinfra/shipyard/internal/expr"
	"github.com/graceinfra/shipyard/internal/logging"
	"github.com/graceinfra/shipyard/internal/models"
	"github.com/graceinfra/shipyard/internal/secrets"
	"github.com/graceinfra/shipyard/types"
)

// StepFailure is a fatal step error. It fails the job unless the step is
// marked continue_on_error.
type StepFailure struct {
	Job  string
	Step string
	Err  error
}

func (e *StepFailure) Error() string {
	return fmt.Sprintf("step %q of job %q failed: %v", e.Step, e.Job, e.Err)
}

func (e *StepFailure) Unwrap() error { return e.Err }

// TimeoutError reports an expired step, job or run deadline.
type TimeoutError struct {
	Scope   string // "step", "job" or "run"
	Name    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Scope == "run" {
		if e.Timeout > 0 {
			return fmt.Sprintf("run timed out after %s", e.Timeout)
		}
		return "run timed out"
	}
	if e.Timeout > 0 {
		return fmt.Sprintf("%s %q timed out after %s", e.Scope, e.Name, e.Timeout)
	}
	return fmt.Sprintf("%s %q timed out", e.Scope, e.Name)
}

func (e *TimeoutError) Is(target error) bool { return target == context.DeadlineExceeded }

// runStep evaluates a step's condition and executes it. The returned
// failure is nil unless the step's outcome is FAILED or FAILED_IGNORED.
func (r *JobRunner) runStep(js *jobState, step *types.Step) (models.StepRecord, *StepFailure) {
	rec := models.StepRecord{ID: step.ID, Name: step.Name}
	start := time.Now()
	rec.StartTime = start.Format(time.RFC3339)

	finish := func(outcome types.StepOutcome, failure *StepFailure) (models.StepRecord, *StepFailure) {
		rec.Outcome = string(outcome)
		rec.DurationMs = time.Since(start).Milliseconds()
		if failure != nil {
			rec.Message = secrets.Redact(failure.Err.Error(), js.secretValues)
			var exitErr *actions.ExitError
			if errors.As(failure.Err, &exitErr) {
				code := exitErr.Code
				rec.ExitCode = &code
			}
		}
		r.ctx.Metrics().IncStepResult(rec.Outcome)
		return rec, failure
	}
	fail := func(err error) (models.StepRecord, *StepFailure) {
		failure := &StepFailure{Job: js.job.Name, Step: step.ID, Err: err}
		if step.ContinueOnError {
			js.logger.Warn().Str("step", step.ID).Err(err).Msg("Best-effort step failed; continuing")
			return finish(types.StepFailedIgnored, failure)
		}
		js.logger.Error().Str("step", step.ID).Err(err).Msg("Step failed")
		return finish(types.StepFailed, failure)
	}

	// --- Condition ---

	run, err := r.shouldRun(js, step)
	if err != nil {
		return fail(fmt.Errorf("evaluate condition: %w", err))
	}
	if !run {
		js.logger.Info().Str("step", step.ID).Msg("Skipping step (condition false)")
		return finish(types.StepSkipped, nil)
	}

	// --- Execute ---

	action, err := r.registry.For(step)
	if err != nil {
		return fail(err)
	}

	output, logFile, err := r.openStepLog(js, step)
	if err != nil {
		return fail(err)
	}
	rec.LogFile = logFile
	if c, ok := output.(io.Closer); ok {
		defer c.Close()
	}
	// Flushed before the file closes.
	redacted := secrets.NewRedactingWriter(output, js.secretValues)
	defer redacted.Close()

	stepCtx := js.ctx
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(js.ctx, step.Timeout.Std())
		defer cancel()
	}

	js.logger.Info().Str("step", step.ID).Str("action", action.Name()).Msgf("▶ Running step %s", step.DisplayName())
	err = action.Execute(stepCtx, &actions.StepContext{
		JobName: js.job.Name,
		Step:    step,
		WorkDir: js.workDir,
		Env:     js.env,
		Output:  redacted,
		Store:   r.ctx.Store,
		Logger:  js.logger.With().Str("step", step.ID).Logger(),
	})
	if err != nil {
		if terr := js.timeoutFor(stepCtx, step); terr != nil {
			err = terr
		}
		return fail(err)
	}

	js.logger.Info().Str("step", step.ID).Msgf("✓ Step %s succeeded", step.DisplayName())
	return finish(types.StepSucceeded, nil)
}

// shouldRun evaluates the step's condition. A condition that calls none of
// success(), failure() or always() only applies while the job is healthy.
func (r *JobRunner) shouldRun(js *jobState, step *types.Step) (bool, error) {
	src := step.If
	if src == "" {
		src = expr.DefaultPredicate
	}
	pred, err := expr.CompilePredicate(src)
	if err != nil {
		return false, err
	}
	if !pred.UsesStatusFunc() && js.scope.JobFailed {
		return false, nil
	}
	return pred.Eval(js.scope)
}

// openStepLog opens the step's log file under the run directory. Without a
// run directory output is discarded.
func (r *JobRunner) openStepLog(js *jobState, step *types.Step) (io.Writer, string, error) {
	if r.ctx.LogDir == "" {
		return io.Discard, "", nil
	}
	rel := logging.StepLogPath(js.job.Name, step.ID)
	full := filepath.Join(r.ctx.LogDir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return nil, "", fmt.Errorf("create step log directory: %w", err)
	}
	f, err := os.Create(full)
	if err != nil {
		return nil, "", fmt.Errorf("create step log: %w", err)
	}
	return f, rel, nil
}
