// Package actions holds the step implementations a workflow can reference
// with "uses:", plus the shell action behind "run:".
package actions

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/graceinfra/shipyard/internal/artifact"
	"github.com/graceinfra/shipyard/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Action defines the interface for all step implementations.
type Action interface {
	// Name is the identifier used in a step's "uses" field. The shell action
	// is also selected implicitly by "run".
	Name() string

	// Validate checks the step's action-specific fields and returns one
	// message per problem.
	Validate(step *types.Step) []string

	// Execute runs the step. A non-nil error fails the step.
	Execute(ctx context.Context, sc *StepContext) error
}

// StepContext is what an action sees of the job it runs in.
type StepContext struct {
	JobName string
	Step    *types.Step
	WorkDir string
	Env     []string // full process environment, secrets included
	Output  io.Writer
	Store   artifact.Store
	Logger  zerolog.Logger
}

// Registry holds registered actions.
type Registry struct {
	actions map[string]Action
}

func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]Action)}
}

// DefaultRegistry returns a registry with the built-in actions.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&ShellAction{})
	r.Register(&UploadArtifactAction{})
	r.Register(&DownloadArtifactAction{})
	return r
}

// Register adds an action. It panics if the name is already taken, which
// indicates an initialization error.
func (r *Registry) Register(a Action) {
	name := a.Name()
	if _, exists := r.actions[name]; exists {
		panic(fmt.Sprintf("action %q already registered", name))
	}
	r.actions[name] = a
	log.Debug().Str("action", name).Msg("Registered action")
}

func (r *Registry) Get(name string) (Action, bool) {
	a, ok := r.actions[name]
	return a, ok
}

// MustGet panics if the action is missing. Use it only after validation.
func (r *Registry) MustGet(name string) Action {
	a, ok := r.Get(name)
	if !ok {
		panic(fmt.Sprintf("critical error: no action registered as %q", name))
	}
	return a
}

func (r *Registry) IsKnown(name string) bool {
	_, ok := r.actions[name]
	return ok
}

// Names returns the sorted registered action names.
func (r *Registry) Names() []string {
	keys := make([]string, 0, len(r.actions))
	for k := range r.actions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// For returns the action a step runs: the shell action for "run", otherwise
// the one named by "uses".
func (r *Registry) For(step *types.Step) (Action, error) {
	name := step.Uses
	if step.Run != "" {
		name = ShellActionName
	}
	a, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown action %q", name)
	}
	return a, nil
}
