package resolver

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/graceinfra/shipyard/internal/actions"
	"github.com/graceinfra/shipyard/types"
)

// CommandFetcher runs the entry's shell command with the job's environment.
// The command sees the destination as $SHIPYARD_OPTIONAL_DEST.
type CommandFetcher struct {
	Output io.Writer
}

func (f *CommandFetcher) Fetch(ctx context.Context, spec types.OptionalSpec, dest string, req Request) error {
	out := f.Output
	if out == nil {
		out = io.Discard
	}
	env := append(append([]string(nil), req.Env...), "SHIPYARD_OPTIONAL_DEST="+dest)
	if err := os.MkdirAll(req.WorkDir, 0755); err != nil {
		return err
	}

	err := actions.RunShell(ctx, actions.Command{
		Script: spec.Run,
		Dir:    req.WorkDir,
		Env:    env,
		Output: out,
	})
	if err != nil {
		return &DegradedResource{Name: spec.Name, Reason: fmt.Sprintf("command failed: %v", err), Err: err}
	}
	return nil
}
