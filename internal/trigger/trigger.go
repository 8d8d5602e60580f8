// Package trigger determines the reference and commit a run was started for.
package trigger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/graceinfra/shipyard/internal/expr"
	"github.com/rs/zerolog/log"
)

const DefaultEvent = "push"

// Options are the trigger values given on the command line.
type Options struct {
	Ref   string
	Sha   string
	Event string
	Dir   string // where to look for a git repository when Ref is empty
}

// Resolve fills in whatever Options leaves empty. A missing ref is detected
// from the repository enclosing Dir; outside a repository it stays empty.
func Resolve(opts Options) (expr.Trigger, error) {
	t := expr.Trigger{Ref: opts.Ref, Sha: opts.Sha, Event: opts.Event}
	if t.Event == "" {
		t.Event = DefaultEvent
	}
	if t.Ref != "" {
		return t, nil
	}

	ref, sha, err := Detect(opts.Dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		log.Debug().Str("dir", opts.Dir).Msg("No git repository found; trigger ref is empty")
		return t, nil
	}
	if err != nil {
		return t, err
	}
	t.Ref = ref
	if t.Sha == "" {
		t.Sha = sha
	}
	return t, nil
}

// Detect reads HEAD of the repository enclosing dir. A tag pointing at HEAD
// yields refs/tags/<tag>; otherwise the checked out branch is used.
func Detect(dir string) (ref, sha string, err error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", "", fmt.Errorf("failed to read HEAD: %w", err)
	}
	sha = head.Hash().String()

	tags, err := tagsAt(repo, head.Hash())
	if err != nil {
		return "", sha, err
	}
	if len(tags) > 0 {
		sort.Strings(tags)
		return tags[len(tags)-1], sha, nil
	}
	if head.Name().IsBranch() {
		return head.Name().String(), sha, nil
	}
	return "", sha, nil
}

func tagsAt(repo *git.Repository, commit plumbing.Hash) ([]string, error) {
	iter, err := repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	var names []string
	err = iter.ForEach(func(r *plumbing.Reference) error {
		target := r.Hash()
		// Annotated tags point at a tag object, not the commit.
		if obj, err := repo.TagObject(r.Hash()); err == nil {
			c, err := obj.Commit()
			if err != nil {
				return nil
			}
			target = c.Hash
		}
		if target == commit {
			names = append(names, r.Name().String())
		}
		return nil
	})
	return names, err
}
