package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/graceinfra/shipyard/internal/config"
	"github.com/graceinfra/shipyard/internal/orchestrator"
)

const (
	ExitOK            = 0
	ExitError         = 1
	ExitInvalidGraph  = 2
	ExitJobFailed     = 3
	ExitReleaseFailed = 4
)

// errJobsFailed is returned by run once the summary has been printed.
var errJobsFailed = errors.New("one or more jobs failed")

// ExitCode maps a command error to the process exit status. A release
// failure outranks a job failure.
func ExitCode(err error) int {
	var graphErr *config.GraphError
	var releaseErr *orchestrator.ReleaseError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &releaseErr):
		return ExitReleaseFailed
	case errors.Is(err, errJobsFailed):
		return ExitJobFailed
	case errors.As(err, &graphErr):
		return ExitInvalidGraph
	default:
		return ExitError
	}
}

func reportError(err error) {
	if errors.Is(err, errJobsFailed) {
		// Already shown in the summary table
		return
	}
	fmt.Fprintf(os.Stderr, "✖ %v\n", err)
}
