package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/graceinfra/shipyard/internal/config"
	runctx "github.com/graceinfra/shipyard/internal/context"
	"github.com/graceinfra/shipyard/internal/logging"
	"github.com/graceinfra/shipyard/internal/models"
	"github.com/graceinfra/shipyard/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Runner executes one job and returns its record. The record's Status must
// be a terminal job state.
type Runner interface {
	Run(ctx context.Context, job *types.Job) *models.JobExecutionRecord
}

type Executor struct {
	ctx          *runctx.ExecutionContext
	jobGraph     map[string]*config.JobNode
	order        []string // jobs of this run, in declaration order
	jobStates    map[string]types.JobState
	skipReasons  map[string]string
	launched     map[string]bool
	stateMutex   sync.RWMutex
	results      map[string]*models.JobExecutionRecord
	resultsMutex sync.RWMutex
	wg           sync.WaitGroup // Waits for all launched job goroutines

	concurrencyChan   chan struct{} // Semaphore; nil when unbounded
	jobCompletionChan chan string
	runner            Runner
	logger            zerolog.Logger
}

// NewExecutor prepares a run over the jobs named in order. Needs outside
// that set are treated as already satisfied. concurrency <= 0 is unbounded.
func NewExecutor(ctx *runctx.ExecutionContext, graph map[string]*config.JobNode, order []string, concurrency int, runner Runner) *Executor {
	instanceLogger := log.With().
		Str("component", "executor").
		Str("run_id", ctx.RunId.String()).
		Logger()

	e := &Executor{
		ctx:               ctx,
		jobGraph:          graph,
		order:             order,
		jobStates:         make(map[string]types.JobState, len(order)),
		skipReasons:       make(map[string]string),
		launched:          make(map[string]bool, len(order)),
		results:           make(map[string]*models.JobExecutionRecord, len(order)),
		jobCompletionChan: make(chan string, len(order)),
		runner:            runner,
		logger:            instanceLogger,
	}
	if concurrency > 0 {
		e.concurrencyChan = make(chan struct{}, concurrency) // Buffered channel acts as a semaphore
		instanceLogger.Debug().Msgf("Concurrency capped at %d", concurrency)
	}
	return e
}

// ExecuteAndWait runs every job to a terminal state. Job failures are
// reported through the records; the error is for scheduler faults only.
func (e *Executor) ExecuteAndWait(ctx context.Context) ([]models.JobExecutionRecord, error) {
	e.logger.Debug().Msg("Initializing DAG execution states...")

	inRun := make(map[string]bool, len(e.order))
	for _, name := range e.order {
		if _, ok := e.jobGraph[name]; !ok {
			return nil, fmt.Errorf("internal error: job %q is not in the job graph", name)
		}
		inRun[name] = true
	}

	// --- Initialize all job states ---

	e.stateMutex.Lock()
	for _, jobName := range e.order {
		e.jobStates[jobName] = types.JobPending
	}
	e.stateMutex.Unlock()

	e.logger.Debug().Msg("Starting DAG execution loop...")

	// --- Core execution loop ---

	activeGoroutines := 0
	for {
		e.checkAndReadyJobs(ctx, inRun)

		if e.allJobsDone() {
			break
		}

		launchedCount := e.launchReadyJobs(ctx)
		activeGoroutines += launchedCount

		if activeGoroutines == 0 && launchedCount == 0 {
			e.logger.Error().Msg("Deadlock detected or internal scheduling error. No jobs running or ready.")
			return e.collectFinalResults(), fmt.Errorf("executor deadlock: no jobs running or ready, but not all jobs are finished")
		}

		jobName := <-e.jobCompletionChan
		activeGoroutines--
		e.logger.Debug().Str("job_name", jobName).Msg("Received job completion signal.")
	}

	// --- Wait for any remaining jobs and collect results ---

	e.wg.Wait()
	e.logger.Debug().Msg("All job goroutines completed.")

	finalResults := e.collectFinalResults()
	e.logger.Debug().Msgf("Collected %d final job execution records.", len(finalResults))
	return finalResults, nil
}

// State returns a job's current scheduler state.
func (e *Executor) State(jobName string) types.JobState {
	e.stateMutex.RLock()
	defer e.stateMutex.RUnlock()
	return e.jobStates[jobName]
}

func (e *Executor) setJobState(jobName string, state types.JobState) {
	e.stateMutex.Lock()
	e.jobStates[jobName] = state
	running := e.countLocked(types.JobRunning)
	e.stateMutex.Unlock()

	e.ctx.Metrics().SetRunningJobs(running)
	e.logger.Debug().Str("job_name", jobName).Msgf("State changed to %s", state)
}

func (e *Executor) countLocked(state types.JobState) int {
	n := 0
	for _, s := range e.jobStates {
		if s == state {
			n++
		}
	}
	return n
}

func (e *Executor) addResult(jobName string, record *models.JobExecutionRecord) {
	e.resultsMutex.Lock()
	defer e.resultsMutex.Unlock()
	e.results[jobName] = record
}

// allJobsDone checks if all jobs in the run are in a terminal state
func (e *Executor) allJobsDone() bool {
	e.stateMutex.RLock()
	defer e.stateMutex.RUnlock()

	for _, state := range e.jobStates {
		if !state.IsTerminal() {
			return false
		}
	}
	return true
}

// checkAndReadyJobs moves PENDING jobs to READY once every need has
// SUCCEEDED, or to SKIPPED as soon as one has FAILED or been SKIPPED. It
// repeats until nothing changes so skips propagate transitively in one
// call. After the run context ends, jobs that never started are SKIPPED.
func (e *Executor) checkAndReadyJobs(ctx context.Context, inRun map[string]bool) {
	e.stateMutex.Lock()
	defer e.stateMutex.Unlock()

	runErr := ctx.Err()

	for changed := true; changed; {
		changed = false
		for _, jobName := range e.order {
			state := e.jobStates[jobName]
			if state != types.JobPending && !(state == types.JobReady && runErr != nil && !e.launched[jobName]) {
				continue
			}

			if runErr != nil {
				e.skipLocked(jobName, fmt.Sprintf("run ended before the job started: %v", runErr))
				changed = true
				continue
			}

			depsMet := true
			for _, depNode := range e.jobGraph[jobName].Dependencies {
				depName := depNode.Job.Name
				if !inRun[depName] {
					continue
				}
				depState := e.jobStates[depName]
				if depState == types.JobFailed || depState == types.JobSkipped {
					e.skipLocked(jobName, fmt.Sprintf("dependency %q %s", depName, depState))
					depsMet = false
					changed = true
					break
				}
				if depState != types.JobSucceeded {
					depsMet = false
				}
			}

			if depsMet && e.jobStates[jobName] == types.JobPending {
				e.jobStates[jobName] = types.JobReady
				e.logger.Debug().Str("job_name", jobName).Msg("Job is now READY (dependencies met).")
			}
		}
	}
}

func (e *Executor) skipLocked(jobName, reason string) {
	e.jobStates[jobName] = types.JobSkipped
	e.skipReasons[jobName] = reason
	e.logger.Info().Str("job_name", jobName).Msgf("Skipping job: %s", reason)
}

// launchReadyJobs starts a goroutine for every READY job not yet launched.
func (e *Executor) launchReadyJobs(ctx context.Context) int {
	var jobsToLaunch []string
	e.stateMutex.Lock()
	for _, name := range e.order {
		if e.jobStates[name] == types.JobReady && !e.launched[name] {
			e.launched[name] = true
			jobsToLaunch = append(jobsToLaunch, name)
		}
	}
	e.stateMutex.Unlock()

	for _, jobName := range jobsToLaunch {
		e.wg.Add(1)
		go e.executeJob(ctx, jobName)
	}
	return len(jobsToLaunch)
}

// executeJob is the goroutine function that handles the lifecycle of a single job
func (e *Executor) executeJob(ctx context.Context, jobName string) {
	jobLogger := e.logger.With().Str("job_name", jobName).Logger()

	defer e.wg.Done()
	defer func() {
		e.jobCompletionChan <- jobName
	}()

	if e.concurrencyChan != nil {
		select {
		case e.concurrencyChan <- struct{}{}:
			defer func() { <-e.concurrencyChan }()
		case <-ctx.Done():
			e.stateMutex.Lock()
			e.skipLocked(jobName, fmt.Sprintf("run ended before the job started: %v", ctx.Err()))
			e.stateMutex.Unlock()
			e.sealAndSave(jobName, e.skippedRecord(jobName))
			e.ctx.Metrics().IncJobResult(jobName, string(types.JobSkipped))
			return
		}
	}

	job := e.jobGraph[jobName].Job
	e.setJobState(jobName, types.JobRunning)
	jobLogger.Info().Msg("🚀 Launching job")

	record := e.runner.Run(ctx, job)
	state := types.JobState(record.Status)
	if !state.IsTerminal() {
		jobLogger.Error().Msgf("Runner returned non-terminal state %q; marking job FAILED", record.Status)
		state = types.JobFailed
		record.Status = string(state)
	}

	// Artifacts become visible to other jobs before dependents can be scheduled.
	e.sealAndSave(jobName, record)
	e.setJobState(jobName, state)

	jobLogger.Info().Msgf("🏁 Finished job execution. Final state: %s", state)
}

func (e *Executor) sealAndSave(jobName string, record *models.JobExecutionRecord) {
	if e.ctx.Store != nil {
		e.ctx.Store.Seal(jobName, types.JobState(record.Status))
	}
	e.addResult(jobName, record)

	if e.ctx.LogDir == "" {
		return
	}
	if err := logging.SaveJobExecutionRecord(e.ctx.LogDir, *record); err != nil {
		e.logger.Error().Err(err).Str("job_name", jobName).Str("log_dir", e.ctx.LogDir).Msg("Failed to save job execution record")
	}
}

func (e *Executor) skippedRecord(jobName string) *models.JobExecutionRecord {
	node := e.jobGraph[jobName]
	e.stateMutex.RLock()
	reason := e.skipReasons[jobName]
	e.stateMutex.RUnlock()

	return &models.JobExecutionRecord{
		JobName:    jobName,
		Target:     node.Job.Target,
		Needs:      node.Job.Needs,
		RunId:      e.ctx.RunId,
		Initiator:  e.ctx.Initiator,
		Status:     string(types.JobSkipped),
		SkipReason: reason,
		FinishTime: time.Now().Format(time.RFC3339),
		Steps:      []models.StepRecord{},
	}
}

// collectFinalResults returns one record per job in declaration order.
// Jobs skipped by the scheduler get a record here and are sealed so their
// (absent) artifacts report a terminal producer.
func (e *Executor) collectFinalResults() []models.JobExecutionRecord {
	finalResults := make([]models.JobExecutionRecord, 0, len(e.order))

	for _, jobName := range e.order {
		e.resultsMutex.RLock()
		record := e.results[jobName]
		e.resultsMutex.RUnlock()

		if record == nil {
			state := e.State(jobName)
			if state != types.JobSkipped {
				e.logger.Error().Str("job_name", jobName).Msgf("Job finished in unexpected non-terminal state: %s", state)
				continue
			}
			e.logger.Debug().Str("job_name", jobName).Msg("Creating SKIPPED record")
			record = e.skippedRecord(jobName)
			e.sealAndSave(jobName, record)
			e.ctx.Metrics().IncJobResult(jobName, record.Status)
		}
		finalResults = append(finalResults, *record)
	}
	return finalResults
}
