// Package metrics exposes run, job, cache and release counters.
package metrics

import "time"

// Recorder defines observability hooks for a run. The NoopRecorder is used
// when metrics are not configured.
type Recorder interface {
	ObserveRunDuration(d time.Duration)
	IncRunOutcome(outcome string)
	ObserveJobDuration(job string, d time.Duration)
	IncJobResult(job, state string)
	IncStepResult(outcome string)
	IncCacheLookup(hit bool)
	IncCacheSaveFailure()
	IncOptionalDegraded(job, name string)
	SetRunningJobs(n int)
	IncReleaseResult(state string)
	ObserveAssetUpload(bytes int64)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObserveRunDuration(time.Duration)         {}
func (NoopRecorder) IncRunOutcome(string)                     {}
func (NoopRecorder) ObserveJobDuration(string, time.Duration) {}
func (NoopRecorder) IncJobResult(string, string)              {}
func (NoopRecorder) IncStepResult(string)                     {}
func (NoopRecorder) IncCacheLookup(bool)                      {}
func (NoopRecorder) IncCacheSaveFailure()                     {}
func (NoopRecorder) IncOptionalDegraded(string, string)       {}
func (NoopRecorder) SetRunningJobs(int)                       {}
func (NoopRecorder) IncReleaseResult(string)                  {}
func (NoopRecorder) ObserveAssetUpload(int64)                 {}
