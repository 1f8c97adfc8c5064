package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// ConfigFileName is the optional config file under the statusdeck dir.
	ConfigFileName = "config.toml"

	// IngestSocketName is the unix socket the ingest listener binds.
	IngestSocketName = "ingest.sock"

	// DefaultQueryAddr is the TCP address the snapshot server binds.
	DefaultQueryAddr = "127.0.0.1:4517"

	// DefaultIdleTimeout promotes a session to idle after this much silence.
	DefaultIdleTimeout = 300 * time.Second

	// DefaultPollInterval is the reconciliation pass interval.
	DefaultPollInterval = 500 * time.Millisecond

	// DefaultStaleThreshold is how many consecutive passes a session's tty
	// must be missing from the active set before it is considered gone.
	DefaultStaleThreshold = 3
)

// Config holds all runtime settings. Values are resolved once at startup and
// injected into components; nothing reads them from globals afterwards.
type Config struct {
	// BaseDir is the statusdeck state directory (~/.statusdeck).
	BaseDir string `toml:"-"`

	// SocketPath is the ingest unix socket path.
	SocketPath string `toml:"socket_path"`

	// QueryAddr is the snapshot server TCP address.
	QueryAddr string `toml:"query_addr"`

	// IdleTimeoutSecs is the idle promotion timeout in seconds.
	IdleTimeoutSecs int `toml:"idle_timeout_secs"`

	// PollIntervalMS is the reconciliation interval in milliseconds.
	PollIntervalMS int `toml:"poll_interval_ms"`

	// StaleThreshold is the consecutive-miss count before stale deletion.
	StaleThreshold int `toml:"stale_threshold"`

	// LogLevel is "debug", "info", "warn" or "error".
	LogLevel string `toml:"log_level"`

	// LogFormat is "json" (default) or "text".
	LogFormat string `toml:"log_format"`
}

// BaseDir returns the statusdeck state directory, honoring STATUSDECK_DIR.
func BaseDir() (string, error) {
	if dir := os.Getenv("STATUSDECK_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".statusdeck"), nil
}

// Load resolves the configuration: defaults, then config.toml overrides.
// A missing config file is not an error.
func Load() (*Config, error) {
	base, err := BaseDir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(base)
}

// LoadFrom loads configuration rooted at an explicit base directory.
func LoadFrom(base string) (*Config, error) {
	cfg := &Config{
		BaseDir:         base,
		SocketPath:      filepath.Join(base, IngestSocketName),
		QueryAddr:       DefaultQueryAddr,
		IdleTimeoutSecs: int(DefaultIdleTimeout.Seconds()),
		PollIntervalMS:  int(DefaultPollInterval.Milliseconds()),
		StaleThreshold:  DefaultStaleThreshold,
		LogLevel:        "info",
		LogFormat:       "json",
	}

	path := filepath.Join(base, ConfigFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	// Re-apply invariants after decode.
	cfg.BaseDir = base
	if cfg.SocketPath == "" {
		cfg.SocketPath = filepath.Join(base, IngestSocketName)
	}
	if cfg.QueryAddr == "" {
		cfg.QueryAddr = DefaultQueryAddr
	}
	if cfg.IdleTimeoutSecs <= 0 {
		cfg.IdleTimeoutSecs = int(DefaultIdleTimeout.Seconds())
	}
	if cfg.PollIntervalMS <= 0 {
		cfg.PollIntervalMS = int(DefaultPollInterval.Milliseconds())
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = DefaultStaleThreshold
	}

	return cfg, nil
}

// IdleTimeout returns the idle timeout as a duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSecs) * time.Second
}

// PollInterval returns the reconciliation interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// SessionNamesPath returns the session name-store document path.
func (c *Config) SessionNamesPath() string {
	return filepath.Join(c.BaseDir, "session_names.json")
}

// WindowNamesPath returns the window name-store document path.
func (c *Config) WindowNamesPath() string {
	return filepath.Join(c.BaseDir, "window_names.json")
}

// EnsureBaseDir creates the statusdeck directory if needed.
func (c *Config) EnsureBaseDir() error {
	if err := os.MkdirAll(c.BaseDir, 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	return nil
}
