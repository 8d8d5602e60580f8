package ui

import (
	"bytes"
	"testing"

	"github.com/graceinfra/shipyard/internal/models"
	"github.com/graceinfra/shipyard/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOutput(style types.OutputStyle) (*Output, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Output{Style: style, Out: &buf, Err: &buf}, &buf
}

func TestStylesGateOutput(t *testing.T) {
	tests := []struct {
		name  string
		style types.OutputStyle
		want  string
	}{
		{"human", types.StyleHuman, "info\nError: oops\n"},
		{"verbose", types.StyleHumanVerbose, "info\nmore\nError: oops\n"},
		{"json", types.StyleMachineJSON, "{\n  \"ok\": true\n}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, buf := newOutput(tt.style)
			o.Info("info")
			o.Verbose("more")
			o.Error("oops")
			require.NoError(t, o.JSON(map[string]bool{"ok": true}))
			o.StartSpinner("ignored")
			o.StopSpinner()
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestPrintSummary(t *testing.T) {
	o, buf := newOutput(types.StyleHuman)
	o.PrintSummary(models.ExecutionSummary{
		Jobs: []models.JobSummary{
			{JobName: "linux", Target: "linux/amd64", Status: "SUCCEEDED", DurationMs: 1500},
			{JobName: "windows", Target: "windows/amd64", Status: "FAILED", FailedStep: "build", FailureReason: "exit status 2\nmore"},
			{JobName: "bundle", Status: "SKIPPED", SkipReason: `dependency "windows" FAILED`},
		},
		JobsSucceeded: 1, JobsFailed: 1, JobsSkipped: 1,
		Release: &models.ReleaseSummary{State: "ABORTED", Reason: "prerequisites unmet: windows is FAILED"},
	})

	out := buf.String()
	assert.Contains(t, out, "✓ linux")
	assert.Contains(t, out, "step build: exit status 2")
	assert.NotContains(t, out, "more")
	assert.Contains(t, out, `dependency "windows" FAILED`)
	assert.Contains(t, out, "1 succeeded, 1 failed, 1 skipped")
	assert.Contains(t, out, "Release: ABORTED (prerequisites unmet: windows is FAILED)")
}

func TestPrintPlan(t *testing.T) {
	o, buf := newOutput(types.StyleHuman)
	o.PrintPlan([][]string{{"a", "b"}, {"c"}})
	assert.Equal(t, "1: a, b\n2: c\n", buf.String())
}
