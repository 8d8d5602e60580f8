package artifact

import (
	"context"
	"sort"
)

// MemoryStore keeps artifacts in memory for the lifetime of a run.
type MemoryStore struct {
	ledger
	data map[string]*Artifact
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{data: make(map[string]*Artifact)}
	s.init()
	return s
}

func (s *MemoryStore) Publish(ctx context.Context, jobID, name string, files []File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateFiles(files); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.claim(jobID, name); err != nil {
		return err
	}
	s.data[name] = &Artifact{Name: name, Producer: jobID, Files: cloneFiles(files)}
	return nil
}

func (s *MemoryStore) Fetch(ctx context.Context, requester, name string) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.readable(requester, name); err != nil {
		return nil, err
	}
	a := s.data[name]
	return &Artifact{Name: a.Name, Producer: a.Producer, Files: cloneFiles(a.Files)}, nil
}

func (s *MemoryStore) FetchGlob(ctx context.Context, requester, pattern string) ([]*Artifact, error) {
	return s.globFetch(ctx, requester, pattern, nil, s.Fetch)
}

func (s *MemoryStore) FetchGlobFrom(ctx context.Context, requester, pattern string, producers []string) ([]*Artifact, error) {
	if producers == nil {
		producers = []string{}
	}
	return s.globFetch(ctx, requester, pattern, producers, s.Fetch)
}

func cloneFiles(files []File) []File {
	out := make([]File, len(files))
	for i, f := range files {
		out[i] = File{Path: f.Path, Data: append([]byte(nil), f.Data...)}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
