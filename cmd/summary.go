package cmd

import (
	"context"
	"path/filepath"

	"github.com/graceinfra/shipyard/internal/history"
	"github.com/graceinfra/shipyard/internal/logging"
	"github.com/graceinfra/shipyard/internal/models"
	"github.com/rs/zerolog/log"
)

// recordRun writes summary.json to the run directory and appends the run to
// the history ledger. Failures are logged, the run result stands.
func recordRun(ctx context.Context, cfgDir, logDir string, summary models.ExecutionSummary) {
	if err := logging.WriteSummary(logDir, summary); err != nil {
		log.Error().Err(err).Msg("Failed to write summary.json")
	}

	store, err := history.Open(filepath.Join(cfgDir, history.DefaultPath))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to open run history")
		return
	}
	defer store.Close()

	if err := store.RecordRun(ctx, summary); err != nil {
		log.Warn().Err(err).Msg("Failed to record run history")
	}
}
