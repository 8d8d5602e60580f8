package orchestrator

import (
	"path/filepath"
	"time"

	runctx "github.com/graceinfra/shipyard/internal/context"
	"github.com/graceinfra/shipyard/internal/logging"
	"github.com/graceinfra/shipyard/internal/models"
	"github.com/graceinfra/shipyard/internal/release"
	"github.com/graceinfra/shipyard/types"
)

// Overall run statuses.
const (
	StatusSuccess = "Success"
	StatusFailed  = "Failed"
	StatusSkipped = "Skipped"
)

// BuildSummary calculates the run summary from the job records and the
// release outcome.
func BuildSummary(ec *runctx.ExecutionContext, records []models.JobExecutionRecord, rel *models.ReleaseSummary) models.ExecutionSummary {
	jobSummaries := make([]models.JobSummary, 0, len(records))
	var succeeded, failed, skipped int
	firstFailure := -1

	for _, record := range records {
		summary := models.JobSummary{
			JobName:       record.JobName,
			Target:        record.Target,
			Status:        record.Status,
			FailedStep:    record.FailedStep,
			FailureReason: record.FailureReason,
			SkipReason:    record.SkipReason,
			StartTime:     record.StartTime,
			FinishTime:    record.FinishTime,
			DurationMs:    record.DurationMs,
		}
		if ec.LogDir != "" {
			summary.LogFile = filepath.Join(filepath.Base(ec.LogDir), logging.JobRecordFile(record.JobName))
		}
		jobSummaries = append(jobSummaries, summary)

		switch types.JobState(record.Status) {
		case types.JobSucceeded:
			succeeded++
		case types.JobFailed:
			failed++
			if firstFailure < 0 {
				firstFailure = len(jobSummaries) - 1
			}
		case types.JobSkipped:
			skipped++
		}
	}

	overallStatus := StatusSuccess
	switch {
	case failed > 0:
		overallStatus = StatusFailed
	case rel != nil && rel.Error != "":
		overallStatus = StatusFailed
	case len(records) > 0 && skipped == len(records):
		overallStatus = StatusSkipped
	}

	execSummary := models.ExecutionSummary{
		RunId:           ec.RunId,
		RunStartTime:    ec.RunStartTime.Format(time.RFC3339),
		ShipyardCmd:     ec.ShipyardCmd,
		Ref:             ec.Trigger.Ref,
		Sha:             ec.Trigger.Sha,
		Event:           ec.Trigger.Event,
		Initiator:       ec.Initiator,
		Jobs:            jobSummaries,
		OverallStatus:   overallStatus,
		TotalDurationMs: time.Since(ec.RunStartTime).Milliseconds(),
		JobsSucceeded:   succeeded,
		JobsFailed:      failed,
		JobsSkipped:     skipped,
		Release:         rel,
	}
	if firstFailure >= 0 {
		execSummary.FirstFailure = &execSummary.Jobs[firstFailure]
	}
	return execSummary
}

// ReleasePublished reports whether the summary's release reached PUBLISHED.
func ReleasePublished(s models.ExecutionSummary) bool {
	return s.Release != nil && s.Release.State == string(release.Published)
}
