package release

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
)

// FileHost publishes releases into a directory:
//
//	{dir}/
//	  {tag}/
//	    release.json
//	    assets/
//	      {name}
type FileHost struct {
	dir string
	mu  sync.Mutex
}

type fileRelease struct {
	Info
	CreatedAt string      `json:"created_at"`
	Assets    []AssetInfo `json:"assets"`
}

func NewFileHost(dir string) (*FileHost, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve release directory %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create release directory %s: %w", abs, err)
	}
	return &FileHost{dir: abs}, nil
}

func (h *FileHost) releaseDir(tag string) string {
	return filepath.Join(h.dir, filepath.FromSlash(tag))
}

func (h *FileHost) EnsureRelease(_ context.Context, info Info) (string, error) {
	if err := ValidateTag(info.Tag); err != nil {
		return "", err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	dir := h.releaseDir(info.Tag)
	url := "file://" + filepath.ToSlash(dir)
	if _, err := h.read(info.Tag); err == nil {
		return url, nil
	} else if !errors.Is(err, ErrReleaseNotFound) {
		return "", err
	}

	if err := os.MkdirAll(filepath.Join(dir, "assets"), 0755); err != nil {
		return "", fmt.Errorf("create release %s: %w", info.Tag, err)
	}
	rel := &fileRelease{Info: info, CreatedAt: time.Now().Format(time.RFC3339), Assets: []AssetInfo{}}
	if err := h.write(rel); err != nil {
		return "", err
	}
	return url, nil
}

func (h *FileHost) Assets(_ context.Context, tag string) ([]AssetInfo, error) {
	if err := ValidateTag(tag); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	rel, err := h.read(tag)
	if err != nil {
		return nil, err
	}
	return rel.Assets, nil
}

func (h *FileHost) UploadAsset(_ context.Context, tag string, asset Asset) error {
	if err := ValidateTag(tag); err != nil {
		return err
	}
	if err := validSegment("asset name", asset.Name); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	rel, err := h.read(tag)
	if err != nil {
		return err
	}
	for _, a := range rel.Assets {
		if a.Name == asset.Name {
			return fmt.Errorf("%w: %s", ErrAssetExists, asset.Name)
		}
	}

	dst := filepath.Join(h.releaseDir(tag), "assets", asset.Name)
	if err := fsutil.WriteFileAtomic(dst, asset.Data, 0644); err != nil {
		return fmt.Errorf("write asset %s: %w", asset.Name, err)
	}
	rel.Assets = append(rel.Assets, AssetInfo{
		Name:        asset.Name,
		ContentType: asset.ContentType,
		Digest:      asset.Digest,
		Size:        int64(len(asset.Data)),
	})
	return h.write(rel)
}

func (h *FileHost) read(tag string) (*fileRelease, error) {
	data, err := os.ReadFile(filepath.Join(h.releaseDir(tag), "release.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrReleaseNotFound, tag)
	}
	if err != nil {
		return nil, fmt.Errorf("read release %s: %w", tag, err)
	}
	var rel fileRelease
	if err := json.Unmarshal(data, &rel); err != nil {
		return nil, fmt.Errorf("parse release %s: %w", tag, err)
	}
	return &rel, nil
}

func (h *FileHost) write(rel *fileRelease) error {
	data, err := json.MarshalIndent(rel, "", "  ")
	if err != nil {
		return fmt.Errorf("encode release %s: %w", rel.Tag, err)
	}
	return fsutil.WriteFileAtomic(filepath.Join(h.releaseDir(rel.Tag), "release.json"), data, 0644)
}
