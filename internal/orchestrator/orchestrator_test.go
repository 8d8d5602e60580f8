package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/graceinfra/shipyard/internal/actions"
	"github.com/graceinfra/shipyard/internal/artifact"
	"github.com/graceinfra/shipyard/internal/cache"
	"github.com/graceinfra/shipyard/internal/config"
	runctx "github.com/graceinfra/shipyard/internal/context"
	"github.com/graceinfra/shipyard/internal/expr"
	"github.com/graceinfra/shipyard/internal/release"
	"github.com/graceinfra/shipyard/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAction struct {
	name string
	fn   func(sc *actions.StepContext) error
}

func (a *fakeAction) Name() string                  { return a.name }
func (a *fakeAction) Validate(*types.Step) []string { return nil }
func (a *fakeAction) Execute(_ context.Context, sc *actions.StepContext) error {
	return a.fn(sc)
}

// registry adds "build", which writes dist/<job> containing "<job>-binary",
// and "fail".
func registry() *actions.Registry {
	r := actions.DefaultRegistry()
	r.Register(&fakeAction{name: "build", fn: func(sc *actions.StepContext) error {
		p := filepath.Join(sc.WorkDir, "dist", sc.JobName)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		return os.WriteFile(p, []byte(sc.JobName+"-binary"), 0o644)
	}})
	r.Register(&fakeAction{name: "fail", fn: func(*actions.StepContext) error {
		return errors.New("compiler crashed")
	}})
	return r
}

const fourTargets = `
jobs:
  linux:
    target: linux/amd64
    steps:
      - {id: build, uses: build}
      - {uses: upload-artifact, with: {name: app-linux, path: dist/linux}}
  windows:
    target: windows/amd64
    steps:
      - {id: build, uses: build}
      - {uses: upload-artifact, with: {name: app-windows, path: dist/windows}}
  macos-x64:
    target: darwin/amd64
    steps:
      - {id: build, uses: build}
      - {uses: upload-artifact, with: {name: app-macos-x64, path: dist/macos-x64}}
  macos-arm64:
    target: darwin/arm64
    steps:
      - {id: build, uses: build}
      - {uses: upload-artifact, with: {name: app-macos-arm64, path: dist/macos-arm64}}
release:
  trigger: 'ref == "refs/tags/v1.0.0"'
  requires: [linux, windows, macos-x64, macos-arm64]
  assets:
    - source: app-linux
    - source: app-windows
    - source: app-macos-x64
    - source: app-macos-arm64
`

func setup(t *testing.T, src string, reg *actions.Registry, ref string) *runctx.ExecutionContext {
	t.Helper()
	cfg, err := config.Parse([]byte(src))
	require.NoError(t, err)
	require.NoError(t, config.ValidateConfig(cfg, reg))
	return &runctx.ExecutionContext{
		RunId:        uuid.New(),
		RunStartTime: time.Now(),
		Config:       cfg,
		ConfigDir:    t.TempDir(),
		ShipyardCmd:  "run",
		Trigger:      expr.Trigger{Ref: ref, Event: "push"},
		Store:        artifact.NewMemoryStore(),
		Cache:        cache.NewMemoryCache(),
	}
}

func TestRunPublishesRelease(t *testing.T) {
	reg := registry()
	ec := setup(t, fourTargets, reg, "refs/tags/v1.0.0")
	host := release.NewMemoryHost()

	result, err := New(reg, nil, host).Run(context.Background(), ec)
	require.NoError(t, err)

	for _, rec := range result.Records {
		assert.Equal(t, string(types.JobSucceeded), rec.Status, rec.JobName)
	}
	require.NotNil(t, result.Release)
	assert.Equal(t, string(release.Published), result.Release.State)
	assert.Equal(t, "v1.0.0", result.Release.Tag)
	assert.Equal(t, "memory://releases/v1.0.0", result.Release.URL)

	info, assets, ok := host.Release("v1.0.0")
	require.True(t, ok)
	assert.Equal(t, "Release v1.0.0", info.Title)
	require.Len(t, assets, 4)
	for i, job := range []string{"linux", "windows", "macos-x64", "macos-arm64"} {
		assert.Equal(t, "app-"+job, assets[i].Name)
		assert.Equal(t, release.Digest([]byte(job+"-binary")), assets[i].Digest)
		assert.Equal(t, assets[i].Digest, result.Release.Assets[i].Digest)
		assert.Equal(t, release.AssetUploaded, result.Release.Assets[i].Status)
	}

	assert.Equal(t, StatusSuccess, result.Summary.OverallStatus)
	assert.Equal(t, 4, result.Summary.JobsSucceeded)
	assert.True(t, ReleasePublished(result.Summary))
}

func TestRunAbortsReleaseWhenPrerequisiteFails(t *testing.T) {
	reg := registry()
	ec := setup(t, fourTargets, reg, "refs/tags/v1.0.0")
	windows, _ := ec.Config.Jobs.Get("windows")
	windows.Steps[0].Uses = "fail"
	host := release.NewMemoryHost()

	result, err := New(reg, nil, host).Run(context.Background(), ec)
	require.NoError(t, err)

	states := map[string]string{}
	for _, rec := range result.Records {
		states[rec.JobName] = rec.Status
	}
	assert.Equal(t, string(types.JobFailed), states["windows"])
	assert.Equal(t, string(types.JobSucceeded), states["linux"])

	require.NotNil(t, result.Release)
	assert.Equal(t, string(release.Aborted), result.Release.State)
	assert.Contains(t, result.Release.Reason, "windows is FAILED")
	assert.Empty(t, host.Releases())
	assert.Zero(t, host.Uploads())

	assert.Equal(t, StatusFailed, result.Summary.OverallStatus)
	require.NotNil(t, result.Summary.FirstFailure)
	assert.Equal(t, "windows", result.Summary.FirstFailure.JobName)
	assert.Equal(t, "build", result.Summary.FirstFailure.FailedStep)
}

func TestRunAbortsReleaseWhenTriggerFalse(t *testing.T) {
	reg := registry()
	ec := setup(t, fourTargets, reg, "refs/heads/main")
	host := release.NewMemoryHost()

	result, err := New(reg, nil, host).Run(context.Background(), ec)
	require.NoError(t, err)

	assert.Equal(t, string(release.Aborted), result.Release.State)
	assert.Equal(t, "trigger predicate is false", result.Release.Reason)
	assert.Empty(t, host.Releases())
	assert.Equal(t, StatusSuccess, result.Summary.OverallStatus)
}

func TestRunReportsReleaseFailure(t *testing.T) {
	reg := registry()
	ec := setup(t, fourTargets, reg, "refs/tags/v1.0.0")
	host := release.NewMemoryHost()
	host.FailUpload = func(asset string) error {
		if asset == "app-macos-x64" {
			return errors.New("503 service unavailable")
		}
		return nil
	}

	result, err := New(reg, nil, host).Run(context.Background(), ec)
	var rerr *ReleaseError
	require.ErrorAs(t, err, &rerr)

	assert.Equal(t, string(release.Publishing), result.Release.State)
	assert.Equal(t, release.AssetUploaded, result.Release.Assets[1].Status)
	assert.Equal(t, release.AssetFailed, result.Release.Assets[2].Status)
	assert.Equal(t, release.AssetPending, result.Release.Assets[3].Status)
	assert.Equal(t, StatusFailed, result.Summary.OverallStatus)
	assert.Equal(t, 2, host.Uploads())
}

func TestRunOnlySelectsClosure(t *testing.T) {
	reg := registry()
	ec := setup(t, `
jobs:
  deps:   {target: linux, steps: [{uses: build}]}
  linux:  {target: linux, needs: [deps], steps: [{uses: build}]}
  docs:   {target: linux, steps: [{uses: build}]}
release:
  trigger: "true"
  requires: [linux, docs]
  assets: [{source: "*"}]
`, reg, "refs/tags/v2.0.0")
	ec.Only = []string{"linux"}
	host := release.NewMemoryHost()

	result, err := New(reg, nil, host).Run(context.Background(), ec)
	require.NoError(t, err)

	var names []string
	for _, rec := range result.Records {
		names = append(names, rec.JobName)
	}
	assert.Equal(t, []string{"deps", "linux"}, names)
	assert.Equal(t, string(release.Aborted), result.Release.State)
	assert.Contains(t, result.Release.Reason, "docs is SKIPPED")
}

func TestHostFor(t *testing.T) {
	root := t.TempDir()

	h, err := HostFor(types.ReleaseHost{Type: "memory"}, root)
	require.NoError(t, err)
	assert.IsType(t, &release.MemoryHost{}, h)

	h, err = HostFor(types.ReleaseHost{Type: "fs", Path: "out/releases"}, root)
	require.NoError(t, err)
	assert.IsType(t, &release.FileHost{}, h)
	assert.DirExists(t, filepath.Join(root, "out", "releases"))

	_, err = HostFor(types.ReleaseHost{Type: "s3"}, root)
	assert.Error(t, err)
}
