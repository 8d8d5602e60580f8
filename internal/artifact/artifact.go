// Package artifact exchanges files between the jobs of a run.
//
// An artifact is published once under a run-unique name by the job that
// produced it. Other jobs may fetch it only after the producer has been
// sealed as SUCCEEDED; the producer itself sees its writes immediately.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/graceinfra/shipyard/types"
)

// File is one payload entry of an artifact.
type File struct {
	Path string `json:"path"` // slash-separated, relative
	Data []byte `json:"-"`
}

type Artifact struct {
	Name     string `json:"name"`
	Producer string `json:"producer"`
	Files    []File `json:"files"`
}

// Size is the total payload size in bytes.
func (a *Artifact) Size() int64 {
	var n int64
	for _, f := range a.Files {
		n += int64(len(f.Data))
	}
	return n
}

// Store is the run's artifact exchange.
type Store interface {
	Publish(ctx context.Context, jobID, name string, files []File) error
	Fetch(ctx context.Context, requester, name string) (*Artifact, error)
	FetchGlob(ctx context.Context, requester, pattern string) ([]*Artifact, error)
	// FetchGlobFrom is FetchGlob restricted to artifacts published by one of
	// producers. Matches owned by other jobs are ignored, whatever their state.
	FetchGlobFrom(ctx context.Context, requester, pattern string, producers []string) ([]*Artifact, error)
	// Seal records the producer's terminal state, making its artifacts
	// visible to other jobs when the state is SUCCEEDED.
	Seal(jobID string, state types.JobState)
	// Produced lists the names published by jobID, sorted.
	Produced(jobID string) []string
}

var ErrNotFound = errors.New("artifact not found")

// ConflictError is returned when a name is published twice in one run.
type ConflictError struct {
	Name     string
	Producer string // job that already owns the name
	Attempt  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("artifact %q already published by job %q (attempted by %q)", e.Name, e.Producer, e.Attempt)
}

// NotReadyError is returned when fetching an artifact whose producer has not
// reached SUCCEEDED.
type NotReadyError struct {
	Name     string
	Producer string
	State    types.JobState
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("artifact %q is not ready: producer job %q is %s", e.Name, e.Producer, e.State)
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateName reports whether name can be used as an artifact name.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid artifact name %q: use letters, digits, '.', '_' or '-'", name)
	}
	return nil
}

func validateFiles(files []File) error {
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		clean := path.Clean(f.Path)
		if f.Path == "" || clean != f.Path || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
			return fmt.Errorf("invalid artifact file path %q", f.Path)
		}
		if _, dup := seen[f.Path]; dup {
			return fmt.Errorf("duplicate artifact file path %q", f.Path)
		}
		seen[f.Path] = struct{}{}
	}
	return nil
}

// ledger holds the ownership and readiness bookkeeping shared by every Store
// implementation.
type ledger struct {
	mu        sync.RWMutex
	producers map[string]string         // artifact name -> job
	sealed    map[string]types.JobState // job -> terminal state
}

func (l *ledger) init() {
	l.producers = make(map[string]string)
	l.sealed = make(map[string]types.JobState)
}

// claim reserves name for jobID. Callers hold mu.
func (l *ledger) claim(jobID, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if owner, ok := l.producers[name]; ok {
		return &ConflictError{Name: name, Producer: owner, Attempt: jobID}
	}
	if st, ok := l.sealed[jobID]; ok {
		return fmt.Errorf("job %q is already %s and cannot publish %q", jobID, st, name)
	}
	l.producers[name] = jobID
	return nil
}

// release undoes a claim whose write failed. Callers hold mu.
func (l *ledger) release(name string) {
	delete(l.producers, name)
}

// readable checks requester may see name. Callers hold mu (read).
func (l *ledger) readable(requester, name string) error {
	producer, ok := l.producers[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if producer == requester {
		return nil
	}
	st, sealed := l.sealed[producer]
	if !sealed {
		st = types.JobRunning
	}
	if st != types.JobSucceeded {
		return &NotReadyError{Name: name, Producer: producer, State: st}
	}
	return nil
}

// match returns the sorted names matching pattern. A non-nil producers set
// limits matches to artifacts those jobs published. Callers hold mu (read).
func (l *ledger) match(pattern string, producers map[string]bool) ([]string, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid artifact pattern %q: %w", pattern, err)
	}
	var names []string
	for name, producer := range l.producers {
		if producers != nil && !producers[producer] {
			continue
		}
		if ok, _ := path.Match(pattern, name); ok {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		if producers != nil {
			return nil, fmt.Errorf("%w: no artifact from %v matches %q", ErrNotFound, sortedKeys(producers), pattern)
		}
		return nil, fmt.Errorf("%w: no artifact matches %q", ErrNotFound, pattern)
	}
	sort.Strings(names)
	return names, nil
}

// globFetch resolves a pattern through fetch, one artifact at a time.
func (l *ledger) globFetch(ctx context.Context, requester, pattern string, producers []string,
	fetch func(context.Context, string, string) (*Artifact, error)) ([]*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var allowed map[string]bool
	if producers != nil {
		allowed = make(map[string]bool, len(producers))
		for _, p := range producers {
			allowed[p] = true
		}
	}

	l.mu.RLock()
	names, err := l.match(pattern, allowed)
	l.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	out := make([]*Artifact, 0, len(names))
	for _, name := range names {
		a, err := fetch(ctx, requester, name)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (l *ledger) Seal(jobID string, state types.JobState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sealed[jobID] = state
}

func (l *ledger) Produced(jobID string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var names []string
	for name, producer := range l.producers {
		if producer == jobID {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
