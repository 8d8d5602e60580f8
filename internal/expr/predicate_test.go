package expr

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/graceinfra/shipyard/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tagScope() *Scope {
	return &Scope{
		Trigger: Trigger{Ref: "refs/tags/v1.0.0", Sha: "abc123", Event: "push"},
		Target:  types.Target{OS: "linux", Arch: "amd64", Toolchain: "go1.22"},
		Env:     map[string]string{"MODE": "release"},
		Steps:   map[string]string{"build": "SUCCEEDED", "lint": "FAILED_IGNORED"},
		Optional: map[string]OptionalState{
			"private": {Outcome: "DEGRADED", Available: false},
		},
	}
}

func TestPredicateEval(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want bool
	}{
		{"empty is success", "", true},
		{"tag match", `matches(ref, "refs/tags/v*")`, true},
		{"star spans slashes", `matches("refs/tags/v1/rc", "refs/tags/v*")`, true},
		{"branch does not match", `matches("refs/heads/main", "refs/tags/v*")`, false},
		{"equality", `ref == "refs/tags/v1.0.0"`, true},
		{"target", `target.os == "linux" && target.arch == "amd64"`, true},
		{"env", `env.MODE == "release"`, true},
		{"step outcome", `steps.build.outcome == "SUCCEEDED"`, true},
		{"optional unavailable", `optional.private.available`, false},
		{"optional outcome", `optional.private.outcome == "DEGRADED"`, true},
		{"startswith", `startswith(ref, "refs/tags/")`, true},
		{"endswith", `endswith(ref, ".0")`, true},
		{"contains", `contains(sha, "c12")`, true},
		{"always", `always()`, true},
		{"failure", `failure()`, false},
		{"job status", `job.status == "success"`, true},
		{"negation", `!(event == "schedule")`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := CompilePredicate(tt.src)
			require.NoError(t, err)
			got, err := p.Eval(tagScope())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPredicateStatusAfterFailure(t *testing.T) {
	s := tagScope()
	s.JobFailed = true

	for src, want := range map[string]bool{
		"success()": false,
		"failure()": true,
		"always()":  true,
		`job.status == "failure"`: true,
	} {
		got, err := MustCompilePredicate(src).Eval(s)
		require.NoError(t, err, src)
		assert.Equal(t, want, got, src)
	}
}

func TestPredicateErrors(t *testing.T) {
	t.Run("syntax", func(t *testing.T) {
		_, err := CompilePredicate(`ref ==`)
		assert.Error(t, err)
	})

	t.Run("not a bool", func(t *testing.T) {
		_, err := MustCompilePredicate(`ref`).Eval(tagScope())
		assert.ErrorContains(t, err, "not a bool")
	})

	t.Run("unknown step", func(t *testing.T) {
		_, err := MustCompilePredicate(`steps.nope.outcome == "SUCCEEDED"`).Eval(tagScope())
		assert.Error(t, err)
	})
}

func TestUsesStatusFunc(t *testing.T) {
	assert.True(t, MustCompilePredicate("").UsesStatusFunc())
	assert.True(t, MustCompilePredicate(`always() && ref != ""`).UsesStatusFunc())
	assert.False(t, MustCompilePredicate(`optional.private.available`).UsesStatusFunc())
}

func TestReferences(t *testing.T) {
	p := MustCompilePredicate(`steps.build.outcome == "SUCCEEDED" && optional.private.available && ref != ""`)

	var got []string
	for _, r := range p.References() {
		got = append(got, r.String())
	}
	assert.ElementsMatch(t, []string{"steps.build", "optional.private", "ref"}, got)
}

func TestTemplateRender(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.sum"), []byte("deps v1"), 0o644))

	s := tagScope()
	s.Root = root

	tmpl, err := CompileTemplate(`go-${target.os}-${target.arch}-${hashFiles("go.sum")}`)
	require.NoError(t, err)

	first, err := tmpl.Render(s)
	require.NoError(t, err)
	assert.Regexp(t, `^go-linux-amd64-[0-9a-f]{64}$`, first)

	again, err := tmpl.Render(s)
	require.NoError(t, err)
	assert.Equal(t, first, again, "identical inputs give identical keys")

	require.NoError(t, os.WriteFile(filepath.Join(root, "go.sum"), []byte("deps v2"), 0o644))
	changed, err := tmpl.Render(s)
	require.NoError(t, err)
	assert.NotEqual(t, first, changed)
}

func TestHashFiles(t *testing.T) {
	root := t.TempDir()

	sum, err := HashFiles(root, []string{"*.lock"})
	require.NoError(t, err)
	assert.Empty(t, sum, "no matches hash to empty")

	require.NoError(t, os.MkdirAll(filepath.Join(root, "a"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "x.lock"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "y.lock"), []byte("y"), 0o644))

	one, err := HashFiles(root, []string{"**/*.lock"})
	require.NoError(t, err)
	two, err := HashFiles(root, []string{"y.lock", "a/x.lock"})
	require.NoError(t, err)
	assert.Equal(t, one, two, "pattern order does not matter")
}

func TestHashFilesWithoutRoot(t *testing.T) {
	tmpl, err := CompileTemplate(`${hashFiles("go.sum")}`)
	require.NoError(t, err)
	_, err = tmpl.Render(&Scope{})
	assert.Error(t, err)
}
