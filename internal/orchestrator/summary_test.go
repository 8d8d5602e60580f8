package orchestrator

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	runctx "github.com/graceinfra/shipyard/internal/context"
	"github.com/graceinfra/shipyard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSummary(t *testing.T) {
	ec := &runctx.ExecutionContext{
		RunId:        uuid.New(),
		RunStartTime: time.Now().Add(-time.Second),
		LogDir:       filepath.Join("x", ".shipyard", "logs", "20250101T000000_run_abc"),
		ShipyardCmd:  "run",
	}

	tests := []struct {
		name    string
		records []models.JobExecutionRecord
		rel     *models.ReleaseSummary
		status  string
	}{
		{"all succeeded", []models.JobExecutionRecord{{JobName: "a", Status: "SUCCEEDED"}}, nil, StatusSuccess},
		{"one failed", []models.JobExecutionRecord{{JobName: "a", Status: "SUCCEEDED"}, {JobName: "b", Status: "FAILED"}}, nil, StatusFailed},
		{"all skipped", []models.JobExecutionRecord{{JobName: "a", Status: "SKIPPED"}}, nil, StatusSkipped},
		{"release failed", []models.JobExecutionRecord{{JobName: "a", Status: "SUCCEEDED"}}, &models.ReleaseSummary{State: "PUBLISHING", Error: "boom"}, StatusFailed},
		{"release aborted", []models.JobExecutionRecord{{JobName: "a", Status: "SUCCEEDED"}}, &models.ReleaseSummary{State: "ABORTED"}, StatusSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := BuildSummary(ec, tt.records, tt.rel)
			assert.Equal(t, tt.status, s.OverallStatus)
			assert.Len(t, s.Jobs, len(tt.records))
		})
	}

	s := BuildSummary(ec, []models.JobExecutionRecord{
		{JobName: "linux", Status: "SUCCEEDED"},
		{JobName: "windows", Status: "FAILED", FailedStep: "build"},
		{JobName: "bundle", Status: "SKIPPED"},
	}, nil)
	assert.Equal(t, 1, s.JobsSucceeded)
	assert.Equal(t, 1, s.JobsFailed)
	assert.Equal(t, 1, s.JobsSkipped)
	require.NotNil(t, s.FirstFailure)
	assert.Equal(t, "windows", s.FirstFailure.JobName)
	assert.Equal(t, filepath.Join("20250101T000000_run_abc", "LINUX.json"), s.Jobs[0].LogFile)
	assert.Positive(t, s.TotalDurationMs)
}
