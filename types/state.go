package types

// JobState is the scheduler state of a job.
type JobState string

const (
	JobPending   JobState = "PENDING"
	JobReady     JobState = "READY"
	JobRunning   JobState = "RUNNING"
	JobSucceeded JobState = "SUCCEEDED"
	JobFailed    JobState = "FAILED"
	JobSkipped   JobState = "SKIPPED"
)

// IsTerminal reports whether no further transition can happen.
func (s JobState) IsTerminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobSkipped
}

// StepOutcome is the recorded result of one step.
type StepOutcome string

const (
	StepSucceeded     StepOutcome = "SUCCEEDED"
	StepFailed        StepOutcome = "FAILED"
	StepFailedIgnored StepOutcome = "FAILED_IGNORED"
	StepSkipped       StepOutcome = "SKIPPED"
)
