// Package cache persists toolchain state between runs under content-derived keys.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Manager restores and saves path sets under exact keys.
//
// Restore never fails: any problem reading an entry is reported as a miss.
// On a hit it returns the relative paths it wrote under root, which are
// exactly the paths recorded by the last Save for that key.
type Manager interface {
	Restore(ctx context.Context, key, root string) (paths []string, hit bool)
	Save(ctx context.Context, key, root string, globs []string) error
}

// Manifest describes one stored entry.
type Manifest struct {
	Key     string   `json:"key"`
	Globs   []string `json:"globs"`
	Files   []string `json:"files"`
	SavedAt string   `json:"saved_at"`
}

// entryHash maps a key to a filesystem-safe directory name. Lookups still
// compare the full key stored in the manifest.
func entryHash(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
