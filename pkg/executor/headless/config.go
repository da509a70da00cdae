package headless

import (
	"fmt"
	"time"
)

// Config represents the configuration for a headless publishing run
type Config struct {
	// Task labels the run in the console and in artifacts, usually the
	// notes folder name.
	Task string `yaml:"task" json:"task"`

	// Timeout bounds the whole run; zero means no limit.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	Artifacts ArtifactConfig `yaml:"artifacts" json:"artifacts"`
	Logging   LoggingConfig  `yaml:"logging" json:"logging"`
}

// ArtifactConfig defines artifact generation configuration
type ArtifactConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	OutputDir string `yaml:"output_dir" json:"output_dir"`

	// IncludeDraft also writes the published draft as draft.md.
	IncludeDraft bool `yaml:"include_draft" json:"include_draft"`
}

// LoggingConfig defines console output configuration
type LoggingConfig struct {
	Verbosity string `yaml:"verbosity" json:"verbosity"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.Artifacts.Enabled && c.Artifacts.OutputDir == "" {
		return fmt.Errorf("artifacts output directory is required when artifacts are enabled")
	}
	switch c.Logging.Verbosity {
	case "", "quiet", "normal", "verbose", "debug":
	default:
		return fmt.Errorf("invalid verbosity %q (must be quiet, normal, verbose or debug)", c.Logging.Verbosity)
	}
	return nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Artifacts: ArtifactConfig{
			OutputDir:    "notepress-artifacts",
			IncludeDraft: true,
		},
		Logging: LoggingConfig{
			Verbosity: "normal",
		},
	}
}
