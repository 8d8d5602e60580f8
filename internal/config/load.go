package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/graceinfra/shipyard/internal/actions"
	"github.com/graceinfra/shipyard/types"
	"gopkg.in/yaml.v3"
)

const DefaultFile = "shipyard.yml"

var (
	DefaultCacheDir   = filepath.Join(".shipyard", "cache")
	DefaultReleaseDir = filepath.Join(".shipyard", "releases")
)

// LoadConfig reads, defaults and validates a workflow file. It returns the
// config and the directory holding the file, which is the run's root.
func LoadConfig(filename string, registry *actions.Registry) (*types.WorkflowConfig, string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read workflow file %s: %w", filename, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse YAML in %s: %w", filename, err)
	}

	if err := ValidateConfig(cfg, registry); err != nil {
		return nil, "", err
	}

	dir, err := filepath.Abs(filepath.Dir(filename))
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve workflow directory: %w", err)
	}
	return cfg, dir, nil
}

// Parse decodes a workflow and applies defaults without validating it.
// Undecodable input is a GraphError of kind ErrInvalidGraph.
func Parse(data []byte) (*types.WorkflowConfig, error) {
	var cfg types.WorkflowConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &GraphError{Kind: ErrInvalidGraph, Problems: []string{err.Error()}}
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// ApplyDefaults fills in step ids and the storage locations.
func ApplyDefaults(cfg *types.WorkflowConfig) {
	if cfg.Config.CacheDir == "" {
		cfg.Config.CacheDir = DefaultCacheDir
	}
	if cfg.ReleaseHost.Type == "" {
		cfg.ReleaseHost.Type = "fs"
	}
	if cfg.ReleaseHost.Path == "" {
		cfg.ReleaseHost.Path = DefaultReleaseDir
	}
	for _, job := range cfg.Jobs.All() {
		for i, step := range job.Steps {
			if step != nil && step.ID == "" {
				step.ID = fmt.Sprintf("step_%d", i+1)
			}
		}
	}
}
