// Package expr compiles and evaluates the predicate and template expressions
// used in workflow files. Expressions use HCL native syntax and are evaluated
// against a Scope describing the trigger and the outcomes recorded so far.
package expr

import (
	"sort"

	"github.com/graceinfra/shipyard/types"
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// Trigger describes the event that started a run.
type Trigger struct {
	Ref   string `json:"ref"`
	Sha   string `json:"sha,omitempty"`
	Event string `json:"event"`
}

// OptionalState is what a predicate can see of an optional dependency.
type OptionalState struct {
	Outcome   string
	Available bool
}

// Scope is the evaluation environment of a predicate or template.
type Scope struct {
	Trigger  Trigger
	Target   types.Target
	Env      map[string]string
	Steps    map[string]string // step id -> outcome
	Optional map[string]OptionalState

	// JobFailed is true once a non-best-effort step of the current job failed.
	JobFailed bool

	// Root is the directory hashFiles resolves patterns against.
	Root string
}

func (s *Scope) evalContext() *hcl.EvalContext {
	steps := make(map[string]cty.Value, len(s.Steps))
	for id, outcome := range s.Steps {
		steps[id] = cty.ObjectVal(map[string]cty.Value{
			"outcome": cty.StringVal(outcome),
		})
	}

	optional := make(map[string]cty.Value, len(s.Optional))
	for name, st := range s.Optional {
		optional[name] = cty.ObjectVal(map[string]cty.Value{
			"outcome":   cty.StringVal(st.Outcome),
			"available": cty.BoolVal(st.Available),
		})
	}

	status := "success"
	if s.JobFailed {
		status = "failure"
	}

	vars := map[string]cty.Value{
		"ref":   cty.StringVal(s.Trigger.Ref),
		"sha":   cty.StringVal(s.Trigger.Sha),
		"event": cty.StringVal(s.Trigger.Event),
		"target": cty.ObjectVal(map[string]cty.Value{
			"os":        cty.StringVal(s.Target.OS),
			"arch":      cty.StringVal(s.Target.Arch),
			"toolchain": cty.StringVal(s.Target.Toolchain),
		}),
		"env":      stringMap(s.Env),
		"steps":    cty.ObjectVal(steps),
		"optional": cty.ObjectVal(optional),
		"job": cty.ObjectVal(map[string]cty.Value{
			"status": cty.StringVal(status),
		}),
	}

	return &hcl.EvalContext{
		Variables: vars,
		Functions: s.functions(),
	}
}

func (s *Scope) functions() map[string]function.Function {
	failed := s.JobFailed
	return map[string]function.Function{
		"matches":    MatchesFunc,
		"startswith": StartsWithFunc,
		"endswith":   EndsWithFunc,
		"contains":   ContainsFunc,
		"success":    constBoolFunc(!failed),
		"failure":    constBoolFunc(failed),
		"always":     constBoolFunc(true),
		"hashFiles":  hashFilesFunc(s.Root),
	}
}

func stringMap(m map[string]string) cty.Value {
	if len(m) == 0 {
		return cty.EmptyObjectVal
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vals := make(map[string]cty.Value, len(m))
	for _, k := range keys {
		vals[k] = cty.StringVal(m[k])
	}
	return cty.ObjectVal(vals)
}
