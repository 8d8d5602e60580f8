package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/graceinfra/shipyard/internal/fsutil"
	"github.com/rs/zerolog/log"
)

// FileCache stores entries on disk.
//
// Structure:
//
//	{dir}/
//	  {hash[0:2]}/
//	    {hash}/
//	      manifest.json
//	      files/
//	        {relative path}...
type FileCache struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewFileCache(dir string) *FileCache {
	return &FileCache{dir: dir, locks: make(map[string]*sync.Mutex)}
}

func (c *FileCache) Dir() string { return c.dir }

func (c *FileCache) entryPath(key string) string {
	h := entryHash(key)
	return filepath.Join(c.dir, h[:2], h)
}

func (c *FileCache) keyLock(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	return l
}

// Restore copies the entry stored under key into root.
func (c *FileCache) Restore(ctx context.Context, key, root string) ([]string, bool) {
	logger := log.With().Str("component", "cache").Str("cache_key", key).Logger()

	entryDir := c.entryPath(key)
	manifest, err := readManifest(entryDir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn().Err(err).Msg("Unreadable cache entry, treating as miss")
		}
		return nil, false
	}
	if manifest.Key != key {
		logger.Warn().Str("stored_key", manifest.Key).Msg("Cache entry key mismatch, treating as miss")
		return nil, false
	}

	for _, rel := range manifest.Files {
		if ctx.Err() != nil {
			logger.Warn().Err(ctx.Err()).Msg("Cache restore interrupted, treating as miss")
			return nil, false
		}
		if err := fsutil.ValidatePattern(rel); err != nil {
			logger.Warn().Err(err).Msg("Cache manifest contains an unsafe path, treating as miss")
			return nil, false
		}
		src := filepath.Join(entryDir, "files", filepath.FromSlash(rel))
		dst := filepath.Join(root, filepath.FromSlash(rel))
		if err := fsutil.CopyFile(src, dst); err != nil {
			logger.Warn().Err(err).Msg("Cache restore failed, treating as miss")
			return nil, false
		}
	}

	logger.Debug().Int("files", len(manifest.Files)).Msg("Cache hit")
	return manifest.Files, true
}

// Save stores the files under root matched by globs. The entry is assembled
// in a temp directory and renamed into place, so readers never see a partial
// entry; concurrent saves of one key leave whichever finished last.
func (c *FileCache) Save(ctx context.Context, key, root string, globs []string) error {
	files, err := fsutil.Glob(root, globs)
	if err != nil {
		return fmt.Errorf("expanding cache paths: %w", err)
	}

	entryDir := c.entryPath(key)
	parent := filepath.Dir(entryDir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmpDir, err := os.MkdirTemp(parent, ".tmp-")
	if err != nil {
		return fmt.Errorf("creating temp cache entry: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		src := filepath.Join(root, filepath.FromSlash(rel))
		dst := filepath.Join(tmpDir, "files", filepath.FromSlash(rel))
		if err := fsutil.CopyFile(src, dst); err != nil {
			return fmt.Errorf("copying %s into cache: %w", rel, err)
		}
	}

	manifest := Manifest{
		Key:     key,
		Globs:   globs,
		Files:   files,
		SavedAt: time.Now().Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "manifest.json"), data, 0644); err != nil {
		return fmt.Errorf("writing cache manifest: %w", err)
	}

	lock := c.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(entryDir); err != nil {
		return fmt.Errorf("replacing cache entry: %w", err)
	}
	if err := os.Rename(tmpDir, entryDir); err != nil {
		return fmt.Errorf("committing cache entry: %w", err)
	}

	log.Debug().Str("component", "cache").Str("cache_key", key).Int("files", len(files)).Msg("Cache saved")
	return nil
}

func readManifest(entryDir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(entryDir, "manifest.json"))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing cache manifest: %w", err)
	}
	return &m, nil
}
