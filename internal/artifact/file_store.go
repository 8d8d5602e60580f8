package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/graceinfra/shipyard/internal/fsutil"
)

// FileStore keeps artifacts on disk, usually under the run's log directory:
//
//	{dir}/
//	  {name}/
//	    artifact.json
//	    files/
//	      {relative path}...
type FileStore struct {
	ledger
	dir string
}

type fileMeta struct {
	Name        string   `json:"name"`
	Producer    string   `json:"producer"`
	Files       []string `json:"files"`
	PublishedAt string   `json:"published_at"`
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create artifact directory %s: %w", dir, err)
	}
	s := &FileStore{dir: dir}
	s.init()
	return s, nil
}

func (s *FileStore) Publish(ctx context.Context, jobID, name string, files []File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateFiles(files); err != nil {
		return err
	}

	s.mu.Lock()
	if err := s.claim(jobID, name); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	// The name is reserved, so the write itself needs no lock.
	if err := s.write(jobID, name, files); err != nil {
		s.mu.Lock()
		s.release(name)
		s.mu.Unlock()
		os.RemoveAll(filepath.Join(s.dir, name))
		return err
	}
	return nil
}

func (s *FileStore) write(jobID, name string, files []File) error {
	base := filepath.Join(s.dir, name)
	meta := fileMeta{Name: name, Producer: jobID, PublishedAt: time.Now().Format(time.RFC3339)}

	for _, f := range files {
		dst := filepath.Join(base, "files", filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return fmt.Errorf("create artifact directory: %w", err)
		}
		if err := os.WriteFile(dst, f.Data, 0644); err != nil {
			return fmt.Errorf("write artifact file %s: %w", f.Path, err)
		}
		meta.Files = append(meta.Files, f.Path)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact metadata: %w", err)
	}
	return fsutil.WriteFileAtomic(filepath.Join(base, "artifact.json"), data, 0644)
}

func (s *FileStore) Fetch(ctx context.Context, requester, name string) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	err := s.readable(requester, name)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return s.read(name)
}

func (s *FileStore) read(name string) (*Artifact, error) {
	base := filepath.Join(s.dir, name)
	raw, err := os.ReadFile(filepath.Join(base, "artifact.json"))
	if err != nil {
		return nil, fmt.Errorf("read artifact %q metadata: %w", name, err)
	}
	var meta fileMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("parse artifact %q metadata: %w", name, err)
	}

	a := &Artifact{Name: meta.Name, Producer: meta.Producer}
	for _, rel := range meta.Files {
		data, err := os.ReadFile(filepath.Join(base, "files", filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("read artifact %q file %s: %w", name, rel, err)
		}
		a.Files = append(a.Files, File{Path: rel, Data: data})
	}
	a.Files = cloneFiles(a.Files)
	return a, nil
}

func (s *FileStore) FetchGlob(ctx context.Context, requester, pattern string) ([]*Artifact, error) {
	return s.globFetch(ctx, requester, pattern, nil, s.Fetch)
}

func (s *FileStore) FetchGlobFrom(ctx context.Context, requester, pattern string, producers []string) ([]*Artifact, error) {
	if producers == nil {
		producers = []string{}
	}
	return s.globFetch(ctx, requester, pattern, producers, s.Fetch)
}
