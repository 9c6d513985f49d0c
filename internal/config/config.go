// Package config provides configuration loading for the wizard CLI: the
// jailed filesystem's named roots, queue sizing, and telemetry sink.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the wizard CLI's on-disk configuration, normally loaded from
// wizard.toml in the current directory or a path given via --config.
type Config struct {
	Roots     RootsConfig     `toml:"roots"`
	Queue     QueueConfig     `toml:"queue"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// RootsConfig maps every jail.RootName this build needs to a real
// directory on disk. Relative paths resolve against the process's
// working directory at load time, not at use time.
type RootsConfig struct {
	Inbox   string `toml:"inbox"`
	Stage   string `toml:"stage"`
	Outbox  string `toml:"outbox"`
	Jobs    string `toml:"jobs"`
	Wizards string `toml:"wizards"`
}

// QueueConfig controls the worker pool start_processing's jobs are
// claimed and run on.
type QueueConfig struct {
	Workers      int `toml:"workers"`       // clamped to [1, runtime.NumCPU()] by the caller
	PollMillis   int `toml:"poll_millis"`   // not read: the worker pool always polls every 200ms
}

// TelemetryConfig is decoded from the config file, but no component reads
// it: diagnostics envelopes always go to the in-process Bus.
type TelemetryConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
	Protocol string `toml:"protocol"` // otlp, file, noop
}

// New returns a Config with every root defaulting to a subdirectory of
// the current working directory, so a bare `wizard` invocation with no
// config file still has somewhere to operate.
func New() *Config {
	return &Config{
		Roots: RootsConfig{
			Inbox:   "./audiomason/inbox",
			Stage:   "./audiomason/stage",
			Outbox:  "./audiomason/outbox",
			Jobs:    "./audiomason/jobs",
			Wizards: "./audiomason/wizards",
		},
		Queue: QueueConfig{
			Workers:    1,
			PollMillis: 200,
		},
		Telemetry: TelemetryConfig{
			Protocol: "noop",
		},
	}
}

// Default is an alias for New, matching the CLI's --config default path
// resolution.
func Default() *Config {
	return New()
}

// LoadFile loads configuration from a TOML file, overlaying it onto
// New's defaults so a config that only sets one field still has
// sensible values everywhere else.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// LoadDefault loads wizard.toml from the current directory, returning
// New's defaults unchanged if no such file exists.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	path := filepath.Join(cwd, "wizard.toml")
	if _, err := os.Stat(path); err != nil {
		return New(), nil
	}
	return LoadFile(path)
}
