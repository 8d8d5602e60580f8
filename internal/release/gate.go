// Package release decides whether a run publishes a release and, if so,
// attaches the collected artifacts to it.
package release

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/graceinfra/shipyard/internal/expr"
	"github.com/graceinfra/shipyard/types"
)

type State string

const (
	Pending    State = "PENDING"
	Eligible   State = "ELIGIBLE"
	Publishing State = "PUBLISHING"
	Published  State = "PUBLISHED"
	Aborted    State = "ABORTED"
)

var transitions = map[State][]State{
	Pending:    {Eligible, Aborted},
	Eligible:   {Publishing},
	Publishing: {Published},
}

// Gate is the release state machine of one run.
type Gate struct {
	mu      sync.Mutex
	spec    *types.ReleaseSpec
	trigger *expr.Predicate
	state   State
	reason  string
	tag     string
}

// NewGate compiles the trigger predicate. The tag is derived from ref.
func NewGate(spec *types.ReleaseSpec, ref string) (*Gate, error) {
	trigger, err := expr.CompilePredicate(spec.Trigger)
	if err != nil {
		return nil, fmt.Errorf("release trigger: %w", err)
	}
	return &Gate{spec: spec, trigger: trigger, state: Pending, tag: TagFromRef(ref)}, nil
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Reason explains an ABORTED gate.
func (g *Gate) Reason() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reason
}

func (g *Gate) Tag() string { return g.tag }

func (g *Gate) Spec() *types.ReleaseSpec { return g.spec }

// TriggerHolds evaluates the trigger over the run's trigger context.
func (g *Gate) TriggerHolds(t expr.Trigger) (bool, error) {
	return g.trigger.Eval(&expr.Scope{Trigger: t})
}

// Evaluate moves a PENDING gate to ELIGIBLE when the trigger holds and every
// required job SUCCEEDED, and to ABORTED otherwise. Ineligibility is not an
// error. Every required job must be terminal.
func (g *Gate) Evaluate(triggerHolds bool, states map[string]types.JobState) (State, error) {
	var notTerminal, unmet []string
	for _, name := range g.spec.Requires {
		st, ok := states[name]
		switch {
		case !ok || !st.IsTerminal():
			notTerminal = append(notTerminal, name)
		case st != types.JobSucceeded:
			unmet = append(unmet, fmt.Sprintf("%s is %s", name, st))
		}
	}
	if triggerHolds && len(notTerminal) > 0 {
		sort.Strings(notTerminal)
		return g.State(), fmt.Errorf("release prerequisites not finished: %s", strings.Join(notTerminal, ", "))
	}

	switch {
	case !triggerHolds:
		return Aborted, g.abort("trigger predicate is false")
	case len(unmet) > 0:
		return Aborted, g.abort("prerequisites unmet: " + strings.Join(unmet, ", "))
	}
	if err := g.transition(Eligible); err != nil {
		return g.State(), err
	}
	return Eligible, nil
}

func (g *Gate) abort(reason string) error {
	if err := g.transition(Aborted); err != nil {
		return err
	}
	g.mu.Lock()
	g.reason = reason
	g.mu.Unlock()
	return nil
}

func (g *Gate) transition(to State) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, allowed := range transitions[g.state] {
		if allowed == to {
			g.state = to
			return nil
		}
	}
	return fmt.Errorf("illegal release transition %s -> %s", g.state, to)
}

// ValidateTag reports whether tag can name a release. A tag is one path
// segment: no separators, and not "." or "..".
func ValidateTag(tag string) error { return validSegment("release tag", tag) }

func validSegment(kind, s string) error {
	switch {
	case s == "":
		return fmt.Errorf("%s is empty", kind)
	case s == "." || s == "..":
		return fmt.Errorf("invalid %s %q", kind, s)
	case strings.ContainsAny(s, `/\`):
		return fmt.Errorf("invalid %s %q: contains a path separator", kind, s)
	}
	return nil
}

// TagFromRef returns the short name of ref: "refs/tags/v1.0.0" gives "v1.0.0".
func TagFromRef(ref string) string {
	for _, prefix := range []string{"refs/tags/", "refs/heads/", "refs/"} {
		if strings.HasPrefix(ref, prefix) {
			return strings.TrimPrefix(ref, prefix)
		}
	}
	return ref
}
