package actions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/graceinfra/shipyard/internal/artifact"
	"github.com/graceinfra/shipyard/internal/fsutil"
	"github.com/graceinfra/shipyard/types"
)

const (
	UploadArtifactName   = "upload-artifact"
	DownloadArtifactName = "download-artifact"
)

// SplitList splits a "with" value holding several entries separated by
// newlines or commas.
func SplitList(v string) []string {
	var out []string
	for _, f := range strings.FieldsFunc(v, func(r rune) bool { return r == '\n' || r == ',' }) {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// UploadArtifactAction publishes files from the working directory under
// "with.name". "with.path" lists globs relative to the working directory.
type UploadArtifactAction struct{}

func (a *UploadArtifactAction) Name() string { return UploadArtifactName }

func (a *UploadArtifactAction) Validate(step *types.Step) []string {
	var errs []string
	name := step.With["name"]
	if name == "" {
		errs = append(errs, "upload-artifact requires 'with.name'")
	} else if err := artifact.ValidateName(name); err != nil {
		errs = append(errs, err.Error())
	}
	paths := SplitList(step.With["path"])
	if len(paths) == 0 {
		errs = append(errs, "upload-artifact requires 'with.path'")
	}
	for _, p := range paths {
		if err := fsutil.ValidatePattern(p); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func (a *UploadArtifactAction) Execute(ctx context.Context, sc *StepContext) error {
	name := sc.Step.With["name"]
	patterns := SplitList(sc.Step.With["path"])

	matched, err := fsutil.Glob(sc.WorkDir, patterns)
	if err != nil {
		return err
	}
	if len(matched) == 0 {
		return fmt.Errorf("no files matched %s", strings.Join(patterns, ", "))
	}

	files := make([]artifact.File, 0, len(matched))
	for _, rel := range matched {
		data, err := os.ReadFile(filepath.Join(sc.WorkDir, filepath.FromSlash(rel)))
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		files = append(files, artifact.File{Path: rel, Data: data})
	}

	if err := sc.Store.Publish(ctx, sc.JobName, name, files); err != nil {
		return err
	}
	fmt.Fprintf(sc.Output, "Uploaded artifact %s (%d files)\n", name, len(files))
	sc.Logger.Info().Str("artifact", name).Int("files", len(files)).Msg("Published artifact")
	return nil
}

// DownloadArtifactAction writes an artifact's files under "with.path"
// (default: the working directory). A glob name downloads every match, each
// into its own subdirectory.
type DownloadArtifactAction struct{}

func (a *DownloadArtifactAction) Name() string { return DownloadArtifactName }

func (a *DownloadArtifactAction) Validate(step *types.Step) []string {
	var errs []string
	if step.With["name"] == "" {
		errs = append(errs, "download-artifact requires 'with.name'")
	}
	if p := step.With["path"]; p != "" {
		if err := fsutil.ValidatePattern(p); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func (a *DownloadArtifactAction) Execute(ctx context.Context, sc *StepContext) error {
	name := sc.Step.With["name"]
	dest := sc.WorkDir
	if p := sc.Step.With["path"]; p != "" {
		dest = filepath.Join(sc.WorkDir, filepath.FromSlash(p))
	}

	if !strings.ContainsAny(name, "*?[") {
		art, err := sc.Store.Fetch(ctx, sc.JobName, name)
		if err != nil {
			return err
		}
		return writeArtifact(sc, art, dest)
	}

	arts, err := sc.Store.FetchGlob(ctx, sc.JobName, name)
	if err != nil {
		return err
	}
	for _, art := range arts {
		if err := writeArtifact(sc, art, filepath.Join(dest, art.Name)); err != nil {
			return err
		}
	}
	return nil
}

func writeArtifact(sc *StepContext, art *artifact.Artifact, dest string) error {
	for _, f := range art.Files {
		dst := filepath.Join(dest, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
		}
		if err := os.WriteFile(dst, f.Data, 0644); err != nil {
			return fmt.Errorf("write %s: %w", dst, err)
		}
	}
	fmt.Fprintf(sc.Output, "Downloaded artifact %s from %s (%d files)\n", art.Name, art.Producer, len(art.Files))
	sc.Logger.Info().Str("artifact", art.Name).Str("producer", art.Producer).Msg("Downloaded artifact")
	return nil
}
