package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/graceinfra/shipyard/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJob(name string, needs ...string) *types.Job {
	return &types.Job{Name: name, Target: "linux", Needs: needs, Steps: []*types.Step{{ID: "s", Run: "true"}}}
}

func TestBuildJobGraph(t *testing.T) {
	t.Run("Empty job list", func(t *testing.T) {
		graph, err := BuildJobGraph(&types.WorkflowConfig{})
		assert.NoError(t, err)
		assert.Empty(t, graph)
	})

	t.Run("Single job without dependencies", func(t *testing.T) {
		j := newJob("linux")
		graph, err := BuildJobGraph(&types.WorkflowConfig{Jobs: types.NewJobs(j)})
		require.NoError(t, err)
		assert.Len(t, graph, 1)
		assert.Equal(t, j, graph["linux"].Job)
		assert.Empty(t, graph["linux"].Dependencies)
		assert.Empty(t, graph["linux"].Dependents)
	})

	t.Run("Fan in", func(t *testing.T) {
		cfg := &types.WorkflowConfig{Jobs: types.NewJobs(newJob("a"), newJob("b"), newJob("c", "a", "b"))}
		graph, err := BuildJobGraph(cfg)
		require.NoError(t, err)

		assert.Len(t, graph["c"].Dependencies, 2)
		assert.Equal(t, "c", graph["a"].Dependents[0].Job.Name)
		assert.Equal(t, "c", graph["b"].Dependents[0].Job.Name)
	})

	t.Run("Missing dependency", func(t *testing.T) {
		_, err := BuildJobGraph(&types.WorkflowConfig{Jobs: types.NewJobs(newJob("a", "ghost"))})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `dependency "ghost" for job "a" not found`)
	})
}

func diamond(t *testing.T) (map[string]*JobNode, []string) {
	t.Helper()
	cfg := &types.WorkflowConfig{Jobs: types.NewJobs(
		newJob("setup"),
		newJob("linux", "setup"),
		newJob("windows", "setup"),
		newJob("release", "windows", "linux"),
		newJob("docs"),
	)}
	graph, err := BuildJobGraph(cfg)
	require.NoError(t, err)
	return graph, cfg.Jobs.Names()
}

func TestPlan(t *testing.T) {
	graph, order := diamond(t)

	t.Run("full graph", func(t *testing.T) {
		batches, err := Plan(graph, order)
		require.NoError(t, err)
		want := [][]string{{"docs", "setup"}, {"linux", "windows"}, {"release"}}
		if diff := cmp.Diff(want, batches); diff != "" {
			t.Errorf("Plan() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("subset treats outside needs as satisfied", func(t *testing.T) {
		batches, err := Plan(graph, []string{"linux", "release"})
		require.NoError(t, err)
		want := [][]string{{"linux"}, {"release"}}
		if diff := cmp.Diff(want, batches); diff != "" {
			t.Errorf("Plan() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("unknown job", func(t *testing.T) {
		_, err := Plan(graph, []string{"macos"})
		assert.Error(t, err)
	})

	t.Run("cycle", func(t *testing.T) {
		cyclic, err := BuildJobGraph(&types.WorkflowConfig{Jobs: types.NewJobs(newJob("a", "b"), newJob("b", "a"))})
		require.NoError(t, err)
		_, err = Plan(cyclic, []string{"a", "b"})
		assert.ErrorIs(t, err, ErrCycle)
	})
}

func TestAncestorsAndClosure(t *testing.T) {
	graph, order := diamond(t)

	assert.Equal(t, map[string]bool{"setup": true, "linux": true, "windows": true}, Ancestors(graph, "release"))
	assert.Empty(t, Ancestors(graph, "docs"))

	names, err := Closure(graph, order, []string{"linux", "docs"})
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"setup", "linux", "docs"}, names); diff != "" {
		t.Errorf("Closure() mismatch (-want +got):\n%s", diff)
	}

	_, err = Closure(graph, order, []string{"ghost"})
	assert.Error(t, err)
}
