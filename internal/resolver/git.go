package resolver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/graceinfra/shipyard/types"
)

// GitFetcher clones a repository. A token secret, when declared, is sent as
// the password of HTTP basic auth.
type GitFetcher struct {
	// Shallow limits the clone to the tip commit.
	Shallow bool
}

func (f *GitFetcher) Fetch(ctx context.Context, spec types.OptionalSpec, dest string, req Request) error {
	if _, err := git.PlainOpen(dest); err == nil {
		req.Logger.Debug().Str("dest", dest).Msg("Optional repository already present")
		return nil
	}

	opts := &git.CloneOptions{URL: spec.Git}
	if f.Shallow {
		opts.Depth = 1
	}
	if spec.Ref != "" {
		opts.ReferenceName = referenceName(spec.Ref)
		opts.SingleBranch = true
	}
	if spec.TokenSecret != "" {
		token, ok := req.Secrets[spec.TokenSecret]
		if !ok || token == "" {
			return &DegradedResource{Name: spec.Name, Reason: fmt.Sprintf("secret %s is not set", spec.TokenSecret)}
		}
		opts.Auth = &http.BasicAuth{Username: "token", Password: token}
	}

	_, statErr := os.Stat(dest)
	existed := statErr == nil

	_, err := git.PlainCloneContext(ctx, dest, false, opts)
	if err != nil {
		if !existed {
			os.RemoveAll(dest)
		}
		return &DegradedResource{Name: spec.Name, Reason: cloneReason(err), Err: err}
	}
	return nil
}

func referenceName(ref string) plumbing.ReferenceName {
	if strings.HasPrefix(ref, "refs/") {
		return plumbing.ReferenceName(ref)
	}
	return plumbing.NewBranchReferenceName(ref)
}

func cloneReason(err error) string {
	switch {
	case errors.Is(err, transport.ErrAuthenticationRequired), errors.Is(err, transport.ErrAuthorizationFailed):
		return "authorization denied"
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return "repository not found"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "interrupted"
	default:
		return "clone failed"
	}
}
