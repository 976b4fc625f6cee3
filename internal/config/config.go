// Package config loads the agent settings document.
//
// Settings are distinct from the persisted sync state: they describe how this host
// runs (where data lives, how to activate, which transport driver to use), while the
// state file records what to sync and what was last applied.
package config

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
)

// DefaultPath is read when no path is given; its absence is not an error.
const DefaultPath = "/etc/cfgsync/config.yaml"

// Config represents the agent settings.
type Config struct {
	DataDir    string           `yaml:"data_dir"`
	StateFile  string           `yaml:"state_file,omitempty"` // default <data_dir>/state.json
	Manifest   string           `yaml:"manifest"`
	Log        LogConfig        `yaml:"log"`
	Activation ActivationConfig `yaml:"activation"`
	Transport  TransportConfig  `yaml:"transport"`
	Daemon     DaemonConfig     `yaml:"daemon"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Journal    JournalConfig    `yaml:"journal"`
	Events     EventsConfig     `yaml:"events"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// ActivationConfig describes the command that applies a configuration.
type ActivationConfig struct {
	Command []string      `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"` // 0 = no timeout
}

// TransportConfig tunes the built-in transport backends.
type TransportConfig struct {
	S3  S3Config  `yaml:"s3"`
	Git GitConfig `yaml:"git"`
}

// S3Config configures the s3 scheme.
type S3Config struct {
	Driver    string `yaml:"driver"` // cli|sdk
	CLIPath   string `yaml:"cli_path"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// GitConfig configures the git+ schemes.
type GitConfig struct {
	Depth int `yaml:"depth"`
}

// DaemonConfig tunes the long-running loop.
type DaemonConfig struct {
	StateFailureLimit *int           `yaml:"state_failure_limit"` // 0 = never fatal
	WatchState        *bool          `yaml:"watch_state"`
	JanitorInterval   *time.Duration `yaml:"janitor_interval"` // 0 = no janitor
	ScratchMaxAge     *time.Duration `yaml:"scratch_max_age"`  // 0 = no janitor
}

// MetricsConfig enables the /metrics and /healthz listener.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// JournalConfig controls the SQLite cycle journal.
type JournalConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// EventsConfig controls NATS cycle events; an empty URL disables publishing.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// Load reads settings from path. An empty path falls back to DefaultPath, and a
// missing default file yields pure defaults. A path that was asked for explicitly
// must exist.
func Load(path string) (*Config, error) {
	loadEnvFile()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	// #nosec G304 - settings path is operator-supplied
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
	case !explicit && stderrors.Is(err, fs.ErrNotExist):
		data = nil
	case stderrors.Is(err, fs.ErrNotExist):
		return nil, syncerrors.ConfigNotFound(path)
	default:
		return nil, syncerrors.FilesystemError("read settings", err).WithContext("path", path)
	}

	return Parse(data)
}

// Parse expands environment references in data and decodes it, then applies
// normalization, defaults and validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, syncerrors.ConfigInvalid("settings", err.Error())
	}

	normalize(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the settings used when no file exists.
func Default() *Config {
	cfg := &Config{}
	normalize(cfg)
	applyDefaults(cfg)
	return cfg
}

// StatePath is where the sync state document lives.
func (c *Config) StatePath() string {
	if c.StateFile != "" {
		return c.StateFile
	}
	return filepath.Join(c.DataDir, "state.json")
}

// ScratchDir is the parent of per-cycle scratch directories.
func (c *Config) ScratchDir() string { return filepath.Join(c.DataDir, "scratch") }

// JournalPath is the SQLite journal file.
func (c *Config) JournalPath() string {
	if c.Journal.Path != "" {
		return c.Journal.Path
	}
	return filepath.Join(c.DataDir, "journal.db")
}

// JournalEnabled reports whether cycles are journaled.
func (c *Config) JournalEnabled() bool { return c.Journal.Enabled == nil || *c.Journal.Enabled }

// WatchState reports whether writes to the state file wake the daemon.
func (c *Config) WatchState() bool { return c.Daemon.WatchState == nil || *c.Daemon.WatchState }

// StateFailureLimit is how many consecutive state-load failures end the daemon; 0 means never.
func (c *Config) StateFailureLimit() int { return derefOr(c.Daemon.StateFailureLimit, DefaultStateFailureLimit) }

// JanitorInterval is the scratch sweep period; 0 disables the janitor.
func (c *Config) JanitorInterval() time.Duration {
	return derefOr(c.Daemon.JanitorInterval, DefaultJanitorInterval)
}

// ScratchMaxAge is the age after which leftover scratch directories are removed.
func (c *Config) ScratchMaxAge() time.Duration { return derefOr(c.Daemon.ScratchMaxAge, DefaultScratchMaxAge) }

// JanitorEnabled reports whether stale scratch directories are swept.
func (c *Config) JanitorEnabled() bool { return c.JanitorInterval() > 0 && c.ScratchMaxAge() > 0 }

func derefOr[T any](v *T, def T) T {
	if v == nil {
		return def
	}
	return *v
}
