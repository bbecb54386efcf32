package types

import "path/filepath"

// Config holds the settings the CLI resolves from flags, config.yaml and the
// environment before opening a store.
type Config struct {
	StorePath    string `json:"store" yaml:"store"`
	StagingDir   string `json:"staging_dir" yaml:"staging_dir"`
	Ordering     string `json:"ordering" yaml:"ordering"`
	LogLevel     string `json:"log_level" yaml:"log_level"`
	LogFormat    string `json:"log_format" yaml:"log_format"`
	RepairOnOpen bool   `json:"repair_on_open" yaml:"repair_on_open"`
}

// Supported ordering strategies for hierarchical copies.
const (
	OrderingWorklist    = "worklist"
	OrderingTopological = "topological"
)

// Supported log formats.
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

var knownOrderings = map[string]bool{
	"":                  true,
	OrderingWorklist:    true,
	OrderingTopological: true,
}

var knownLogLevels = map[string]bool{
	"": true, "debug": true, "info": true, "warn": true, "error": true,
}

var knownLogFormats = map[string]bool{
	"":               true,
	LogFormatConsole: true,
	LogFormatJSON:    true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.StorePath == "" {
		return ErrStorePathEmpty
	}
	if !knownOrderings[c.Ordering] {
		return ErrOrderingUnknown
	}
	if !knownLogLevels[c.LogLevel] {
		return ErrLogLevelUnknown
	}
	if !knownLogFormats[c.LogFormat] {
		return ErrLogFormatUnknown
	}
	return nil
}

// GetStagingDir returns the staging directory, defaulting to the directory
// that holds the live store so promotion never crosses filesystems.
func (c Config) GetStagingDir() string {
	if c.StagingDir != "" {
		return c.StagingDir
	}
	return filepath.Dir(c.StorePath)
}

// GetOrdering returns the ordering strategy, defaulting to worklist.
func (c Config) GetOrdering() string {
	if c.Ordering == "" {
		return OrderingWorklist
	}
	return c.Ordering
}
