package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/graceinfra/shipyard/internal/models"
)

const (
	WorkflowLogFile = "workflow.log"
	SummaryFile     = "summary.json"
	StepsDir        = "steps"
	ArtifactsDir    = "artifacts"
)

// LogsRoot is where run directories live, relative to the workflow root.
var LogsRoot = filepath.Join(".shipyard", "logs")

// RunDirName returns a name like
// "20250423T213245_run_3c43e9f4-9026-4d04-ba06-054e8903e80a".
func RunDirName(runId uuid.UUID, runStartTime time.Time, cmd string) string {
	return fmt.Sprintf("%s_%s_%s", runStartTime.Format("20060102T150405"), cmd, runId)
}

// CreateLogDir creates the run directory under root/.shipyard/logs and
// returns its path.
func CreateLogDir(root string, runId uuid.UUID, runStartTime time.Time, cmd string) (string, error) {
	fullPath := filepath.Join(root, LogsRoot, RunDirName(runId, runStartTime, cmd))

	err := os.MkdirAll(fullPath, os.ModePerm)
	if err != nil {
		return "", fmt.Errorf("failed to create log directory '%s': %w", fullPath, err)
	}
	return fullPath, nil
}

// JobRecordFile is the record filename for a job, e.g. LINUX.json.
func JobRecordFile(jobName string) string {
	return strings.ToUpper(jobName) + ".json"
}

// StepLogPath returns the relative path of a step's output log.
func StepLogPath(jobName, stepID string) string {
	return filepath.Join(StepsDir, jobName, stepID+".log")
}

// SaveJobExecutionRecord stores the detailed record for a single job.
func SaveJobExecutionRecord(logDir string, record models.JobExecutionRecord) error {
	filePath := filepath.Join(logDir, JobRecordFile(record.JobName))
	if err := writeJSON(filePath, record); err != nil {
		return fmt.Errorf("failed to write job record %s: %w", filePath, err)
	}
	return nil
}

// WriteSummary writes the execution summary to summary.json in the log directory.
func WriteSummary(logDir string, summary models.ExecutionSummary) error {
	summaryPath := filepath.Join(logDir, SummaryFile)
	if err := writeJSON(summaryPath, summary); err != nil {
		return fmt.Errorf("failed to write summary file %s: %w", summaryPath, err)
	}
	return nil
}

// ReadSummary loads a summary.json written by WriteSummary.
func ReadSummary(logDir string) (*models.ExecutionSummary, error) {
	data, err := os.ReadFile(filepath.Join(logDir, SummaryFile))
	if err != nil {
		return nil, err
	}
	var summary models.ExecutionSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", SummaryFile, err)
	}
	return &summary, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
