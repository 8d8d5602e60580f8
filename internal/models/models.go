package models

import (
	"github.com/google/uuid"
	"github.com/graceinfra/shipyard/types"
)

// ExecutionSummary holds the overall results of a workflow run.
type ExecutionSummary struct {
	RunId           uuid.UUID       `json:"run_id"`
	RunStartTime    string          `json:"run_start_time"`
	ShipyardCmd     string          `json:"shipyard_cmd"`
	Ref             string          `json:"ref"`
	Sha             string          `json:"sha,omitempty"`
	Event           string          `json:"event"`
	Initiator       types.Initiator `json:"initiator"`
	Jobs            []JobSummary    `json:"jobs"`
	OverallStatus   string          `json:"overall_status"` // "Success", "Failed", "Skipped"
	TotalDurationMs int64           `json:"total_duration_ms"`
	JobsSucceeded   int             `json:"jobs_succeeded"`
	JobsFailed      int             `json:"jobs_failed"`
	JobsSkipped     int             `json:"jobs_skipped"`
	FirstFailure    *JobSummary     `json:"first_failure,omitempty"`
	Release         *ReleaseSummary `json:"release,omitempty"`
}

// JobSummary provides a concise overview of a single job's execution for the summary file.
type JobSummary struct {
	JobName       string `json:"job_name"`
	Target        string `json:"target,omitempty"`
	Status        string `json:"status"`
	FailedStep    string `json:"failed_step,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	SkipReason    string `json:"skip_reason,omitempty"`
	StartTime     string `json:"start_time,omitempty"`
	FinishTime    string `json:"finish_time,omitempty"`
	DurationMs    int64  `json:"duration_ms"`
	LogFile       string `json:"log_file,omitempty"` // relative to the run directory
}

// JobExecutionRecord contains ALL information about a single job's execution.
// It is saved to the job's record file (e.g. LINUX.json).
type JobExecutionRecord struct {
	JobName   string          `json:"job_name"`
	Target    string          `json:"target,omitempty"`
	Needs     []string        `json:"needs,omitempty"`
	RunId     uuid.UUID       `json:"run_id"`
	Initiator types.Initiator `json:"initiator"`

	Status        string `json:"status"`
	SkipReason    string `json:"skip_reason,omitempty"`
	FailedStep    string `json:"failed_step,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`

	StartTime  string `json:"start_time,omitempty"`
	FinishTime string `json:"finish_time,omitempty"`
	DurationMs int64  `json:"duration_ms"`

	Cache     *CacheRecord     `json:"cache,omitempty"`
	Optional  []OptionalRecord `json:"optional,omitempty"`
	Steps     []StepRecord     `json:"steps"`
	Artifacts []string         `json:"artifacts,omitempty"`
}

// StepRecord is the outcome of one step.
type StepRecord struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	Outcome    string `json:"outcome"`
	Message    string `json:"message,omitempty"`
	ExitCode   *int   `json:"exit_code,omitempty"`
	StartTime  string `json:"start_time,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	LogFile    string `json:"log_file,omitempty"`
}

type CacheRecord struct {
	Key         string   `json:"key"`
	Hit         bool     `json:"hit"`
	Restored    []string `json:"restored,omitempty"`
	Saved       bool     `json:"saved"`
	SaveWarning string   `json:"save_warning,omitempty"`
}

type OptionalRecord struct {
	Name    string `json:"name"`
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
}

// ReleaseSummary reports the release gate's final state and per-asset upload status.
type ReleaseSummary struct {
	Tag    string        `json:"tag,omitempty"`
	State  string        `json:"state"`
	Reason string        `json:"reason,omitempty"`
	URL    string        `json:"url,omitempty"`
	Draft  bool          `json:"draft"`
	Assets []AssetStatus `json:"assets,omitempty"`
	Error  string        `json:"error,omitempty"`
}

type AssetStatus struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Digest      string `json:"digest"`
	Size        int64  `json:"size"`
	Status      string `json:"status"` // "uploaded", "unchanged", "failed", "pending"
	Error       string `json:"error,omitempty"`
}
