package release

import (
	"context"
	"fmt"
	"sync"
)

// MemoryHost keeps releases in memory.
type MemoryHost struct {
	mu       sync.Mutex
	releases map[string]*memRelease
	order    []string
	uploads  int

	// FailUpload, when set, is consulted before each upload.
	FailUpload func(asset string) error
}

type memRelease struct {
	info   Info
	assets []Asset
}

func NewMemoryHost() *MemoryHost {
	return &MemoryHost{releases: make(map[string]*memRelease)}
}

func (h *MemoryHost) EnsureRelease(_ context.Context, info Info) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.releases[info.Tag]; !ok {
		h.releases[info.Tag] = &memRelease{info: info}
		h.order = append(h.order, info.Tag)
	}
	return "memory://releases/" + info.Tag, nil
}

func (h *MemoryHost) Assets(_ context.Context, tag string) ([]AssetInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rel, ok := h.releases[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReleaseNotFound, tag)
	}
	out := make([]AssetInfo, 0, len(rel.assets))
	for _, a := range rel.assets {
		out = append(out, AssetInfo{Name: a.Name, ContentType: a.ContentType, Digest: a.Digest, Size: int64(len(a.Data))})
	}
	return out, nil
}

func (h *MemoryHost) UploadAsset(_ context.Context, tag string, asset Asset) error {
	if h.FailUpload != nil {
		if err := h.FailUpload(asset.Name); err != nil {
			return err
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	rel, ok := h.releases[tag]
	if !ok {
		return fmt.Errorf("%w: %s", ErrReleaseNotFound, tag)
	}
	for _, a := range rel.assets {
		if a.Name == asset.Name {
			return fmt.Errorf("%w: %s", ErrAssetExists, asset.Name)
		}
	}
	rel.assets = append(rel.assets, Asset{
		Name:        asset.Name,
		ContentType: asset.ContentType,
		Digest:      asset.Digest,
		Data:        append([]byte(nil), asset.Data...),
	})
	h.uploads++
	return nil
}

// Releases lists created tags in creation order.
func (h *MemoryHost) Releases() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.order...)
}

// Release returns a created release's info and attached assets.
func (h *MemoryHost) Release(tag string) (Info, []Asset, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rel, ok := h.releases[tag]
	if !ok {
		return Info{}, nil, false
	}
	return rel.info, append([]Asset(nil), rel.assets...), true
}

// Uploads counts successful uploads.
func (h *MemoryHost) Uploads() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.uploads
}
