// Package resolver acquires optional, best-effort resources before a job's
// steps run. A failed acquisition degrades the resource; it never fails the job.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/graceinfra/shipyard/types"
	"github.com/rs/zerolog"
)

type Outcome string

const (
	Available Outcome = "AVAILABLE"
	Degraded  Outcome = "DEGRADED"
)

// DegradedResource explains why an optional resource is unavailable.
type DegradedResource struct {
	Name   string
	Reason string
	Err    error
}

func (e *DegradedResource) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("optional resource %q degraded: %s: %v", e.Name, e.Reason, e.Err)
	}
	return fmt.Sprintf("optional resource %q degraded: %s", e.Name, e.Reason)
}

func (e *DegradedResource) Unwrap() error { return e.Err }

// Result is the outcome of one optional entry.
type Result struct {
	Name     string
	Outcome  Outcome
	Dest     string
	Duration time.Duration
	Err      *DegradedResource // set when Outcome is Degraded
}

func (r Result) Available() bool { return r.Outcome == Available }

// Request carries the job context a fetch runs in.
type Request struct {
	WorkDir string
	Env     []string
	Secrets map[string]string
	Logger  zerolog.Logger
}

// Fetcher acquires one kind of resource into dest.
type Fetcher interface {
	Fetch(ctx context.Context, spec types.OptionalSpec, dest string, req Request) error
}

// Resolver dispatches each optional entry to the fetcher for its kind.
type Resolver struct {
	Git     Fetcher
	Command Fetcher

	// OnDegraded, when set, is called once per degraded entry.
	OnDegraded func(job string, r Result)
}

func New() *Resolver {
	return &Resolver{Git: &GitFetcher{Shallow: true}, Command: &CommandFetcher{}}
}

// Resolve fetches every entry in order and reports each outcome.
func (r *Resolver) Resolve(ctx context.Context, job string, specs []types.OptionalSpec, req Request) []Result {
	results := make([]Result, 0, len(specs))
	for _, spec := range specs {
		res := r.resolveOne(ctx, spec, req)
		if res.Outcome == Degraded {
			req.Logger.Warn().Str("optional", spec.Name).Err(res.Err).Msg("⚠️ Optional resource degraded; continuing without it")
			if r.OnDegraded != nil {
				r.OnDegraded(job, res)
			}
		} else {
			req.Logger.Info().Str("optional", spec.Name).Str("dest", res.Dest).Msg("Optional resource available")
		}
		results = append(results, res)
	}
	return results
}

func (r *Resolver) resolveOne(ctx context.Context, spec types.OptionalSpec, req Request) Result {
	start := time.Now()
	res := Result{Name: spec.Name, Dest: DestPath(spec, req.WorkDir)}

	var fetcher Fetcher
	switch {
	case spec.Git != "":
		fetcher = r.Git
	case spec.Run != "":
		fetcher = r.Command
	}

	var err error
	if fetcher == nil {
		err = &DegradedResource{Name: spec.Name, Reason: "no fetcher for this entry"}
	} else {
		err = fetcher.Fetch(ctx, spec, res.Dest, req)
	}
	res.Duration = time.Since(start)

	if err == nil {
		res.Outcome = Available
		return res
	}
	res.Outcome = Degraded
	var d *DegradedResource
	if errors.As(err, &d) {
		res.Err = d
	} else {
		res.Err = &DegradedResource{Name: spec.Name, Reason: classify(ctx, err), Err: err}
	}
	return res
}

// DestPath is where an entry is materialized: "dest" if given, otherwise a
// directory named after the entry, relative to the job's working directory.
func DestPath(spec types.OptionalSpec, workDir string) string {
	dest := spec.Dest
	if dest == "" {
		dest = spec.Name
	}
	if filepath.IsAbs(dest) {
		return dest
	}
	return filepath.Join(workDir, filepath.FromSlash(dest))
}

func classify(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return "interrupted"
	}
	return "fetch failed"
}
