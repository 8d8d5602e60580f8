package trigger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) (string, *git.Repository, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "shipyard.yml"), []byte("jobs: {}\n"), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("shipyard.yml")
	require.NoError(t, err)
	hash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "ci", Email: "ci@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir, repo, hash.String()
}

func TestDetectBranch(t *testing.T) {
	dir, repo, sha := initRepo(t)
	head, err := repo.Head()
	require.NoError(t, err)

	ref, gotSha, err := Detect(filepath.Join(dir))
	require.NoError(t, err)
	assert.Equal(t, head.Name().String(), ref)
	assert.Equal(t, sha, gotSha)
}

func TestDetectTag(t *testing.T) {
	dir, repo, sha := initRepo(t)
	head, err := repo.Head()
	require.NoError(t, err)
	_, err = repo.CreateTag("v1.0.0", head.Hash(), nil)
	require.NoError(t, err)

	ref, gotSha, err := Detect(dir)
	require.NoError(t, err)
	assert.Equal(t, "refs/tags/v1.0.0", ref)
	assert.Equal(t, sha, gotSha)
}

func TestDetectAnnotatedTag(t *testing.T) {
	dir, repo, _ := initRepo(t)
	head, err := repo.Head()
	require.NoError(t, err)
	_, err = repo.CreateTag("v2.0.0", head.Hash(), &git.CreateTagOptions{
		Tagger:  &object.Signature{Name: "ci", Email: "ci@example.com", When: time.Now()},
		Message: "release",
	})
	require.NoError(t, err)

	ref, _, err := Detect(dir)
	require.NoError(t, err)
	assert.Equal(t, "refs/tags/v2.0.0", ref)
}

func TestResolve(t *testing.T) {
	t.Run("explicit ref wins", func(t *testing.T) {
		tr, err := Resolve(Options{Ref: "refs/tags/v9", Dir: t.TempDir()})
		require.NoError(t, err)
		assert.Equal(t, "refs/tags/v9", tr.Ref)
		assert.Equal(t, DefaultEvent, tr.Event)
	})

	t.Run("outside a repository", func(t *testing.T) {
		tr, err := Resolve(Options{Dir: t.TempDir(), Event: "schedule"})
		require.NoError(t, err)
		assert.Empty(t, tr.Ref)
		assert.Equal(t, "schedule", tr.Event)
	})

	t.Run("detected", func(t *testing.T) {
		dir, _, sha := initRepo(t)
		tr, err := Resolve(Options{Dir: dir})
		require.NoError(t, err)
		assert.NotEmpty(t, tr.Ref)
		assert.Equal(t, sha, tr.Sha)
	})
}
