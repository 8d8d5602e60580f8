package main

import (
	"fmt"
	"os"
	"slices"

	"github.com/graceinfra/shipyard/cmd"
	"github.com/graceinfra/shipyard/internal/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	isVerbose := slices.Contains(os.Args[1:], "--verbose") || slices.Contains(os.Args[1:], "-v")

	// Terminal logging until a command opens its run directory
	if _, err := logging.ConfigureGlobalLogger(isVerbose, ""); err != nil {
		// Fallback to basic stderr if logger setup fails
		fmt.Fprintf(os.Stderr, "FATAL: Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	log.Debug().Msg("Starting Shipyard CLI command execution")
	os.Exit(cmd.Execute())
}
