package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/graceinfra/shipyard/internal/actions"
	"github.com/graceinfra/shipyard/internal/artifact"
	"github.com/graceinfra/shipyard/internal/cache"
	"github.com/graceinfra/shipyard/internal/config"
	runctx "github.com/graceinfra/shipyard/internal/context"
	"github.com/graceinfra/shipyard/internal/expr"
	"github.com/graceinfra/shipyard/internal/models"
	"github.com/graceinfra/shipyard/internal/resolver"
	"github.com/graceinfra/shipyard/types"
	"github.com/stretchr/testify/require"
)

// fakeAction runs fn for every step that uses it.
type fakeAction struct {
	name string
	fn   func(ctx context.Context, sc *actions.StepContext) error
}

func (a *fakeAction) Name() string                  { return a.name }
func (a *fakeAction) Validate(*types.Step) []string { return nil }
func (a *fakeAction) Execute(ctx context.Context, sc *actions.StepContext) error {
	return a.fn(ctx, sc)
}

// trace records the order jobs start and finish in.
type trace struct {
	mu     sync.Mutex
	events []string
}

func (tr *trace) add(ev string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.events = append(tr.events, ev)
}

func (tr *trace) index(ev string) int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for i, e := range tr.events {
		if e == ev {
			return i
		}
	}
	return -1
}

func (tr *trace) has(prefix string) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for _, e := range tr.events {
		if len(e) >= len(prefix) && e[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// testRegistry registers the built-in actions plus:
//
//	trace: records "start:<job>" and "end:<job>"
//	fail:  returns an error
//	block: waits for its context to end
//	write: writes with.file containing with.content
func testRegistry(tr *trace) *actions.Registry {
	r := actions.DefaultRegistry()
	r.Register(&fakeAction{name: "trace", fn: func(_ context.Context, sc *actions.StepContext) error {
		tr.add("start:" + sc.JobName)
		tr.add("end:" + sc.JobName)
		return nil
	}})
	r.Register(&fakeAction{name: "fail", fn: func(context.Context, *actions.StepContext) error {
		return errors.New("boom")
	}})
	r.Register(&fakeAction{name: "block", fn: func(ctx context.Context, _ *actions.StepContext) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	r.Register(&fakeAction{name: "write", fn: func(_ context.Context, sc *actions.StepContext) error {
		return writeFile(sc.WorkDir, sc.Step.With["file"], sc.Step.With["content"])
	}})
	return r
}

func newContext(t *testing.T, cfg *types.WorkflowConfig) *runctx.ExecutionContext {
	t.Helper()
	return &runctx.ExecutionContext{
		RunId:       uuid.New(),
		Config:      cfg,
		ConfigDir:   t.TempDir(),
		ShipyardCmd: "run",
		Trigger:     expr.Trigger{Ref: "refs/heads/main", Event: "push"},
		Store:       artifact.NewMemoryStore(),
		Cache:       cache.NewMemoryCache(),
	}
}

func parseWorkflow(t *testing.T, src string, registry *actions.Registry) *types.WorkflowConfig {
	t.Helper()
	cfg, err := config.Parse([]byte(src))
	require.NoError(t, err)
	require.NoError(t, config.ValidateConfig(cfg, registry))
	return cfg
}

// execute runs every job of cfg and returns the records by job name.
func execute(t *testing.T, ctx context.Context, ec *runctx.ExecutionContext, registry *actions.Registry, res *resolver.Resolver) map[string]models.JobExecutionRecord {
	t.Helper()
	graph, err := config.BuildJobGraph(ec.Config)
	require.NoError(t, err)

	runner := NewJobRunner(ec, registry, res)
	exec := NewExecutor(ec, graph, ec.Config.Jobs.Names(), ec.Config.Config.Concurrency, runner)
	records, err := exec.ExecuteAndWait(ctx)
	require.NoError(t, err)
	require.Len(t, records, ec.Config.Jobs.Len())

	byName := make(map[string]models.JobExecutionRecord, len(records))
	for i, rec := range records {
		require.Equal(t, ec.Config.Jobs.Names()[i], rec.JobName, "records are in declaration order")
		byName[rec.JobName] = rec
	}
	return byName
}

func outcomes(rec models.JobExecutionRecord) map[string]string {
	out := make(map[string]string, len(rec.Steps))
	for _, s := range rec.Steps {
		out[s.ID] = s.Outcome
	}
	return out
}

type failingFetcher struct{}

func (failingFetcher) Fetch(context.Context, types.OptionalSpec, string, resolver.Request) error {
	return fmt.Errorf("repository unreachable")
}

func writeFile(root, rel, content string) error {
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, []byte(content), 0o644)
}
