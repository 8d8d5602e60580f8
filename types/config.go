package types

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

type OutputStyle int

const (
	StyleHuman OutputStyle = iota
	StyleHumanVerbose
	StyleMachineJSON
)

type WorkflowConfig struct {
	Config struct {
		Concurrency int      `yaml:"concurrency"`
		Timeout     Duration `yaml:"timeout,omitempty"`
		CacheDir    string   `yaml:"cache_dir,omitempty"`
	} `yaml:"config"`

	ReleaseHost ReleaseHost `yaml:"release_host,omitempty"`

	Jobs Jobs `yaml:"jobs"`

	Release *ReleaseSpec `yaml:"release,omitempty"`
}

// ReleaseHost selects the backend releases are published to.
type ReleaseHost struct {
	Type string `yaml:"type,omitempty"` // "fs" (default) or "memory"
	Path string `yaml:"path,omitempty"`
}

type ReleaseSpec struct {
	Trigger   string      `yaml:"trigger"`
	Requires  []string    `yaml:"requires"`
	Draft     bool        `yaml:"draft,omitempty"`
	Title     string      `yaml:"title,omitempty"`
	Checksums string      `yaml:"checksums,omitempty"` // name of the generated digest manifest asset
	Assets    []AssetSpec `yaml:"assets"`
}

type AssetSpec struct {
	Source      string `yaml:"source"`         // artifact name or glob over artifact names
	File        string `yaml:"file,omitempty"` // selects one file of a multi-file artifact
	Name        string `yaml:"name,omitempty"`
	ContentType string `yaml:"content_type,omitempty"`
}

// Duration is a time.Duration that decodes from Go duration strings ("30m", "1h30m").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, raw, err)
	}
	if parsed < 0 {
		return fmt.Errorf("line %d: duration %q cannot be negative", node.Line, raw)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }
