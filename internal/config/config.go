// Package config loads backend configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the backend configuration.
type Config struct {
	// DataDir is where the SQLite database lives.
	DataDir string `yaml:"data_dir"`
	// AttachmentsDir is the root of the content-addressed attachment store.
	AttachmentsDir string `yaml:"attachments_dir"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Sync SyncConfig `yaml:"sync"`
}

// SyncConfig tunes the per-document sync driver.
type SyncConfig struct {
	// DebounceWindow is the quiet period after the last todo-affecting
	// edit before a sync round-trip is attempted.
	DebounceWindow time.Duration `yaml:"debounce_window"`
	// SyncInterval triggers a periodic sync even without edits, so
	// store-side changes are merged back into open documents.
	SyncInterval time.Duration `yaml:"sync_interval"`
	// FailureThreshold is the number of consecutive per-record failures
	// before the user is notified.
	FailureThreshold int `yaml:"failure_threshold"`
	// MaxRetries caps retry attempts for a parked store operation.
	MaxRetries int `yaml:"max_retries"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DataDir:        "data",
		AttachmentsDir: "data/attachments",
		LogLevel:       "info",
		Sync: SyncConfig{
			DebounceWindow:   2 * time.Second,
			SyncInterval:     30 * time.Second,
			FailureThreshold: 3,
			MaxRetries:       5,
		},
	}
}

// Load reads configuration from path, falling back to defaults for any
// unset field. A missing file is not an error: defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills zero values left by a partial config file.
func (c *Config) applyDefaults() {
	def := Default()
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.AttachmentsDir == "" {
		c.AttachmentsDir = def.AttachmentsDir
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Sync.DebounceWindow <= 0 {
		c.Sync.DebounceWindow = def.Sync.DebounceWindow
	}
	if c.Sync.SyncInterval <= 0 {
		c.Sync.SyncInterval = def.Sync.SyncInterval
	}
	if c.Sync.FailureThreshold <= 0 {
		c.Sync.FailureThreshold = def.Sync.FailureThreshold
	}
	if c.Sync.MaxRetries <= 0 {
		c.Sync.MaxRetries = def.Sync.MaxRetries
	}
}
