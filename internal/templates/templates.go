// Package templates holds the files scaffolded by `shipyard init`.
package templates

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"text/template"
)

//go:embed files/*
var TplFS embed.FS

const WorkflowTemplate = "files/shipyard.yml.tmpl"

// Target is one build job of the starter workflow.
type Target struct {
	Job    string
	Target string
	OS     string
	Arch   string
}

// WorkflowData fills WorkflowTemplate.
type WorkflowData struct {
	Name    string
	Targets []Target
	Trigger string // release trigger predicate
	Draft   bool
}

// DefaultTrigger releases on version tags.
const DefaultTrigger = `matches(ref, "refs/tags/v*")`

// DefaultWorkflow is the starter workflow for a workspace called name.
func DefaultWorkflow(name string) WorkflowData {
	return WorkflowData{Name: name, Targets: DefaultTargets, Trigger: DefaultTrigger, Draft: true}
}

// DefaultTargets builds for the two most common platforms.
var DefaultTargets = []Target{
	{Job: "linux", Target: "linux/amd64", OS: "linux", Arch: "amd64"},
	{Job: "macos", Target: "darwin/arm64", OS: "darwin", Arch: "arm64"},
}

// Render executes tplName from TplFS with data.
func Render(tplName string, data any) ([]byte, error) {
	t, err := template.New(filepath.Base(tplName)).ParseFS(TplFS, tplName)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", tplName, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute template %s: %w", tplName, err)
	}
	return buf.Bytes(), nil
}

// WriteTpl renders tplName and writes it to outPath. An existing file is
// never overwritten.
func WriteTpl(tplName, outPath string, data any) error {
	out, err := Render(tplName, data)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(outPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("refusing to overwrite existing file: %s", outPath)
	}
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", outPath, err)
	}
	if _, err := f.Write(out); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", outPath, err)
	}
	return f.Close()
}
