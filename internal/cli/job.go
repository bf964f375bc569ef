package cli

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Job bundles the inputs of one reconciliation run so operators can keep
// a reviewed job file next to the release data instead of repeating
// flags. Flags given on the command line override job file values.
type Job struct {
	// DB is the snapshot source: an SQLite file path or a postgres:// DSN.
	DB string `yaml:"db"`

	// LFF is the main classification file.
	LFF string `yaml:"lff"`

	// LOF is the overflow file (unclassified/unattested/spurious groups).
	LOF string `yaml:"lof"`

	// Coordinates is the optional tab-separated coordinates file.
	Coordinates string `yaml:"coordinates,omitempty"`

	// Policy is an optional CUE policy override.
	Policy string `yaml:"policy,omitempty"`

	// Output is the instruction file to write.
	Output string `yaml:"output,omitempty"`

	// All considers every old node, not only currently active ones.
	All bool `yaml:"all,omitempty"`
}

// LoadJob reads and strictly decodes a job file.
func LoadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading job file: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields

	var job Job
	if err := decoder.Decode(&job); err != nil {
		return nil, fmt.Errorf("parsing job file %s: %w", path, err)
	}
	return &job, nil
}
