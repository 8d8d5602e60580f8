package context

import (
	"time"

	"github.com/google/uuid"
	"github.com/graceinfra/shipyard/internal/artifact"
	"github.com/graceinfra/shipyard/internal/cache"
	"github.com/graceinfra/shipyard/internal/expr"
	"github.com/graceinfra/shipyard/internal/metrics"
	"github.com/graceinfra/shipyard/internal/secrets"
	"github.com/graceinfra/shipyard/types"
)

// ExecutionContext is the state shared by every job of one run.
type ExecutionContext struct {
	RunId        uuid.UUID
	RunStartTime time.Time
	Config       *types.WorkflowConfig
	ConfigDir    string // Directory that holds shipyard.yml; jobs run relative to it
	LogDir       string // Run directory for records, step logs and summary.json
	Only         []string
	ShipyardCmd  string // "run"
	Initiator    types.Initiator

	Trigger  expr.Trigger
	Secrets  *secrets.Source
	Store    artifact.Store
	Cache    cache.Manager
	Recorder metrics.Recorder
}

// Metrics returns the recorder, or a no-op one when none is configured.
func (c *ExecutionContext) Metrics() metrics.Recorder {
	if c.Recorder == nil {
		return metrics.NoopRecorder{}
	}
	return c.Recorder
}
