package release

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/graceinfra/shipyard/internal/artifact"
	"github.com/graceinfra/shipyard/internal/fsutil"
	"github.com/graceinfra/shipyard/internal/metrics"
	"github.com/graceinfra/shipyard/internal/models"
	"github.com/graceinfra/shipyard/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Requester is the identity the publisher uses when fetching artifacts.
// Job names are identifiers, so it cannot collide with one.
const Requester = "(release)"

const DefaultContentType = "application/octet-stream"

// Asset upload statuses reported in the summary.
const (
	AssetPending   = "pending"
	AssetUploaded  = "uploaded"
	AssetUnchanged = "unchanged"
	AssetFailed    = "failed"
)

type Publisher struct {
	Host     Host
	Store    artifact.Store
	Recorder metrics.Recorder
	Logger   zerolog.Logger
}

func NewPublisher(host Host, store artifact.Store, rec metrics.Recorder) *Publisher {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Publisher{
		Host:     host,
		Store:    store,
		Recorder: rec,
		Logger:   log.With().Str("component", "release").Logger(),
	}
}

// Publish moves an ELIGIBLE gate through PUBLISHING to PUBLISHED. Any error
// leaves the gate in PUBLISHING; nothing already uploaded is rolled back.
// The returned summary is filled in as far as publishing got.
func (p *Publisher) Publish(ctx context.Context, g *Gate) (*models.ReleaseSummary, error) {
	spec := g.Spec()
	summary := &models.ReleaseSummary{Tag: g.Tag(), State: string(g.State()), Draft: spec.Draft}

	if err := g.transition(Publishing); err != nil {
		return summary, err
	}
	summary.State = string(Publishing)
	logger := p.Logger.With().Str("tag", g.Tag()).Logger()

	if g.Tag() == "" {
		return p.fail(summary, errors.New("cannot publish a release without a tag"))
	}
	if err := ValidateTag(g.Tag()); err != nil {
		return p.fail(summary, err)
	}

	assets, err := p.collect(ctx, spec)
	if err != nil {
		return p.fail(summary, err)
	}
	for _, a := range assets {
		summary.Assets = append(summary.Assets, models.AssetStatus{
			Name:        a.Name,
			ContentType: a.ContentType,
			Digest:      a.Digest,
			Size:        int64(len(a.Data)),
			Status:      AssetPending,
		})
	}

	title := spec.Title
	if title == "" {
		title = "Release " + g.Tag()
	}
	url, err := p.Host.EnsureRelease(ctx, Info{Tag: g.Tag(), Title: title, Draft: spec.Draft})
	if err != nil {
		return p.fail(summary, fmt.Errorf("create release %s: %w", g.Tag(), err))
	}
	logger.Info().Str("url", url).Bool("draft", spec.Draft).Msg("📦 Release ready, uploading assets")

	attached, err := p.Host.Assets(ctx, g.Tag())
	if err != nil {
		return p.fail(summary, fmt.Errorf("list assets of %s: %w", g.Tag(), err))
	}
	existing := make(map[string]AssetInfo, len(attached))
	for _, a := range attached {
		existing[a.Name] = a
	}

	for i, a := range assets {
		status := &summary.Assets[i]
		if prev, ok := existing[a.Name]; ok {
			if prev.Digest != a.Digest {
				status.Status = AssetFailed
				err := &CorruptionError{Asset: a.Name, Expected: a.Digest, Actual: prev.Digest}
				status.Error = err.Error()
				return p.fail(summary, err)
			}
			status.Status = AssetUnchanged
			logger.Info().Str("asset", a.Name).Msg("Asset already attached with matching digest")
			continue
		}

		if err := p.Host.UploadAsset(ctx, g.Tag(), a); err != nil {
			status.Status = AssetFailed
			status.Error = err.Error()
			return p.fail(summary, fmt.Errorf("upload %s: %w", a.Name, err))
		}
		status.Status = AssetUploaded
		p.Recorder.ObserveAssetUpload(int64(len(a.Data)))
		logger.Info().Str("asset", a.Name).Str("digest", a.Digest).Msg("✅ Uploaded asset")
	}

	if err := g.transition(Published); err != nil {
		return p.fail(summary, err)
	}
	summary.State = string(Published)
	summary.URL = url
	p.Recorder.IncReleaseResult(string(Published))
	logger.Info().Str("url", url).Int("assets", len(assets)).Msg("🚀 Release published")
	return summary, nil
}

func (p *Publisher) fail(summary *models.ReleaseSummary, err error) (*models.ReleaseSummary, error) {
	summary.Error = err.Error()
	p.Recorder.IncReleaseResult(summary.State)
	p.Logger.Error().Err(err).Str("tag", summary.Tag).Msg("Release publishing failed")
	return summary, err
}

// collect resolves every asset declaration into payloads, in order, followed
// by the checksum manifest when one is configured. An asset is named after
// its artifact unless the declaration sets a name.
func (p *Publisher) collect(ctx context.Context, spec *types.ReleaseSpec) ([]Asset, error) {
	var assets []Asset
	seen := make(map[string]struct{})
	add := func(a Asset) error {
		if _, dup := seen[a.Name]; dup {
			return fmt.Errorf("duplicate release asset name %q", a.Name)
		}
		seen[a.Name] = struct{}{}
		assets = append(assets, a)
		return nil
	}

	for _, as := range spec.Assets {
		contentType := as.ContentType
		if contentType == "" {
			contentType = DefaultContentType
		}

		if !IsPattern(as.Source) {
			art, err := p.Store.Fetch(ctx, Requester, as.Source)
			if err != nil {
				return nil, fmt.Errorf("asset source %q: %w", as.Source, err)
			}
			file, err := selectFile(art, as.File)
			if err != nil {
				return nil, err
			}
			name := as.Name
			if name == "" {
				name = art.Name
			}
			if err := add(Asset{Name: name, ContentType: contentType, Digest: Digest(file.Data), Data: file.Data}); err != nil {
				return nil, err
			}
			continue
		}

		// Only artifacts of required jobs can be part of the release.
		arts, err := p.Store.FetchGlobFrom(ctx, Requester, as.Source, spec.Requires)
		if err != nil {
			return nil, fmt.Errorf("asset source %q: %w", as.Source, err)
		}
		for _, art := range arts {
			file, err := selectFile(art, as.File)
			if err != nil {
				return nil, err
			}
			a := Asset{Name: art.Name, ContentType: contentType, Digest: Digest(file.Data), Data: file.Data}
			if err := add(a); err != nil {
				return nil, err
			}
		}
	}

	if spec.Checksums != "" {
		var b strings.Builder
		for _, a := range assets {
			fmt.Fprintf(&b, "%s  %s\n", strings.TrimPrefix(a.Digest, "sha256:"), a.Name)
		}
		data := []byte(b.String())
		if err := add(Asset{Name: spec.Checksums, ContentType: "text/plain; charset=utf-8", Digest: Digest(data), Data: data}); err != nil {
			return nil, err
		}
	}
	return assets, nil
}

// selectFile picks the payload file of an asset: the one matching selector,
// or the only file when no selector is given.
func selectFile(art *artifact.Artifact, selector string) (*artifact.File, error) {
	if selector == "" {
		if len(art.Files) != 1 {
			return nil, fmt.Errorf("artifact %q has %d files; set 'file' to choose one", art.Name, len(art.Files))
		}
		return &art.Files[0], nil
	}
	var match *artifact.File
	for i := range art.Files {
		if fsutil.Match(selector, art.Files[i].Path) {
			if match != nil {
				return nil, fmt.Errorf("file selector %q matches more than one file of artifact %q", selector, art.Name)
			}
			match = &art.Files[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("file selector %q matches no file of artifact %q", selector, art.Name)
	}
	return match, nil
}

// IsPattern reports whether an asset source is a glob over artifact names.
func IsPattern(source string) bool {
	return strings.ContainsAny(source, "*?[")
}
