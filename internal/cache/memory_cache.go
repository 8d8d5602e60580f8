package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/graceinfra/shipyard/internal/fsutil"
)

// MemoryCache keeps entries in memory. Entries do not outlive the process.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	files []string
	data  map[string][]byte
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Restore(_ context.Context, key, root string) ([]string, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	for _, rel := range entry.files {
		dst := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return nil, false
		}
		if err := os.WriteFile(dst, entry.data[rel], 0644); err != nil {
			return nil, false
		}
	}
	return append([]string(nil), entry.files...), true
}

func (c *MemoryCache) Save(_ context.Context, key, root string, globs []string) error {
	files, err := fsutil.Glob(root, globs)
	if err != nil {
		return fmt.Errorf("expanding cache paths: %w", err)
	}

	entry := memoryEntry{files: files, data: make(map[string][]byte, len(files))}
	for _, rel := range files {
		b, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return fmt.Errorf("reading %s: %w", rel, err)
		}
		entry.data[rel] = b
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
