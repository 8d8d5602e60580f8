package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/graceinfra/shipyard/internal/config"
	"github.com/graceinfra/shipyard/internal/history"
	"github.com/graceinfra/shipyard/internal/logging"
	"github.com/graceinfra/shipyard/internal/orchestrator"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shellWorkflow = `
jobs:
  linux:
    target: linux/amd64
    steps:
      - id: build
        run: mkdir -p dist && printf linux-binary > dist/app
      - uses: upload-artifact
        with: {name: app-linux, path: dist/app}
  docs:
    target: linux/amd64
    needs: [linux]
    steps:
      - id: build
        run: %s
release:
  trigger: 'ref == "refs/tags/v1.0.0"'
  requires: [linux]
  assets:
    - source: app-linux
`

func writeWorkflow(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, config.DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func testCommand() *cobra.Command {
	c := &cobra.Command{}
	c.SetContext(context.Background())
	return c
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"graph", &config.GraphError{Kind: config.ErrInvalidGraph}, ExitInvalidGraph},
		{"wrapped graph", fmt.Errorf("load: %w", &config.GraphError{Kind: config.ErrCycle}), ExitInvalidGraph},
		{"jobs failed", errJobsFailed, ExitJobFailed},
		{"release", &orchestrator.ReleaseError{Err: errors.New("upload")}, ExitReleaseFailed},
		{"release over jobs", errors.Join(errJobsFailed, &orchestrator.ReleaseError{Err: errors.New("x")}), ExitReleaseFailed},
		{"other", errors.New("disk full"), ExitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestRunWorkflow(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}

	t.Run("publishes release", func(t *testing.T) {
		path := writeWorkflow(t, fmt.Sprintf(shellWorkflow, "echo docs"))
		dir := filepath.Dir(path)

		err := runWorkflow(testCommand(), path, runOptions{ref: "refs/tags/v1.0.0", event: "push", json: true})
		require.NoError(t, err)

		runDirs, err := filepath.Glob(filepath.Join(dir, logging.LogsRoot, "*_run_*"))
		require.NoError(t, err)
		require.Len(t, runDirs, 1)

		summary, err := logging.ReadSummary(runDirs[0])
		require.NoError(t, err)
		assert.Equal(t, orchestrator.StatusSuccess, summary.OverallStatus)
		require.NotNil(t, summary.Release)
		assert.Equal(t, "PUBLISHED", summary.Release.State)
		assert.FileExists(t, filepath.Join(runDirs[0], "LINUX.json"))
		assert.FileExists(t, filepath.Join(runDirs[0], logging.WorkflowLogFile))

		store, err := history.Open(filepath.Join(dir, history.DefaultPath))
		require.NoError(t, err)
		defer store.Close()
		runs, err := store.ListRuns(context.Background(), 0)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, "refs/tags/v1.0.0", runs[0].Ref)
	})

	t.Run("job failure exits 3", func(t *testing.T) {
		path := writeWorkflow(t, fmt.Sprintf(shellWorkflow, "exit 7"))

		err := runWorkflow(testCommand(), path, runOptions{ref: "refs/heads/main", event: "push", json: true})
		assert.ErrorIs(t, err, errJobsFailed)
		assert.Equal(t, ExitJobFailed, ExitCode(err))
	})

	t.Run("partial upload exits 4", func(t *testing.T) {
		path := writeWorkflow(t, fmt.Sprintf(shellWorkflow, "echo docs"))
		dir := filepath.Dir(path)
		// A non-empty directory where the asset belongs makes the upload fail.
		blocker := filepath.Join(dir, config.DefaultReleaseDir, "v1.0.0", "assets", "app-linux", "x")
		require.NoError(t, os.MkdirAll(blocker, 0755))

		err := runWorkflow(testCommand(), path, runOptions{ref: "refs/tags/v1.0.0", event: "push", json: true})
		var relErr *orchestrator.ReleaseError
		require.ErrorAs(t, err, &relErr)
		assert.Equal(t, ExitReleaseFailed, ExitCode(err))

		runDirs, err := filepath.Glob(filepath.Join(dir, logging.LogsRoot, "*_run_*"))
		require.NoError(t, err)
		require.Len(t, runDirs, 1)
		summary, err := logging.ReadSummary(runDirs[0])
		require.NoError(t, err)
		require.NotNil(t, summary.Release)
		assert.Equal(t, "PUBLISHING", summary.Release.State)
	})

	t.Run("malformed YAML exits 2", func(t *testing.T) {
		path := writeWorkflow(t, "jobs: [\n")

		err := runWorkflow(testCommand(), path, runOptions{ref: "refs/heads/main", json: true})
		assert.Equal(t, ExitInvalidGraph, ExitCode(err))
	})

	t.Run("invalid workflow exits 2", func(t *testing.T) {
		path := writeWorkflow(t, "jobs:\n  a:\n    target: linux\n    needs: [b]\n    steps:\n      - run: 'true'\n")

		err := runWorkflow(testCommand(), path, runOptions{ref: "refs/heads/main", json: true})
		assert.Equal(t, ExitInvalidGraph, ExitCode(err))
		assert.NoDirExists(t, filepath.Join(filepath.Dir(path), logging.LogsRoot))
	})
}

func TestInitLintAndPlan(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tool")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	rootCmd.SetArgs([]string{"init", "--no-tui", dir})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), `workspace "tool" initialized`)
	assert.FileExists(t, filepath.Join(dir, config.DefaultFile))

	rootCmd.SetArgs([]string{"init", "--no-tui", dir})
	assert.ErrorContains(t, rootCmd.Execute(), "refusing to overwrite")

	out.Reset()
	rootCmd.SetArgs([]string{"lint", filepath.Join(dir, config.DefaultFile)})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "is valid!")

	out.Reset()
	rootCmd.SetArgs([]string{"plan", filepath.Join(dir, config.DefaultFile)})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "1: linux, macos\n", out.String())
}

func TestHistoryEmpty(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	rootCmd.SetArgs([]string{"history", t.TempDir()})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "No runs recorded yet.\n", out.String())
}
