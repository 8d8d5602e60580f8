package release

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// Info describes the release object to create.
type Info struct {
	Tag   string `json:"tag"`
	Title string `json:"title"`
	Draft bool   `json:"draft"`
}

// Asset is a file to attach to a release.
type Asset struct {
	Name        string
	ContentType string
	Digest      string // "sha256:<hex>"
	Data        []byte
}

// AssetInfo is what a host reports about an attached asset.
type AssetInfo struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Digest      string `json:"digest"`
	Size        int64  `json:"size"`
}

// Host is the external release hosting service.
type Host interface {
	// EnsureRelease creates the release for info.Tag, or returns the existing
	// one. It returns the release URL.
	EnsureRelease(ctx context.Context, info Info) (url string, err error)
	Assets(ctx context.Context, tag string) ([]AssetInfo, error)
	// UploadAsset attaches a new asset; an existing name is ErrAssetExists.
	UploadAsset(ctx context.Context, tag string, asset Asset) error
}

var (
	ErrAssetExists     = errors.New("asset already attached")
	ErrReleaseNotFound = errors.New("release not found")
)

// CorruptionError reports an attached asset whose digest differs from the
// artifact being published.
type CorruptionError struct {
	Asset    string
	Expected string
	Actual   string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("asset %q digest mismatch: expected %s, host has %s", e.Asset, e.Expected, e.Actual)
}

// Digest returns the "sha256:<hex>" digest of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}
