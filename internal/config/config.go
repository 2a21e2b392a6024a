// Package config loads panewatch configuration from TOML and exposes every
// monitoring threshold as a named, tunable field.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is the TOML config file for monitoring preferences.
const ConfigFileName = "config.toml"

// Config is the root configuration document.
type Config struct {
	// Monitor defines cycle timing and runtime limits
	Monitor MonitorSettings `toml:"monitor"`

	// Clear defines clear-directive and recovery behavior
	Clear ClearSettings `toml:"clear"`

	// Status defines status-inference tunables
	Status StatusSettings `toml:"status"`

	// Log defines structured-logging settings
	Log LogSettings `toml:"log"`
}

// MonitorSettings controls the monitoring cycle scheduler.
type MonitorSettings struct {
	// Session is the tmux session to supervise. Empty means the attached session.
	Session string `toml:"session"`

	// CycleIntervalSecs is the delay between full discovery cycles
	CycleIntervalSecs int `toml:"cycle_interval_secs"`

	// KeepaliveIntervalSecs is the inner keepalive/report loop interval
	KeepaliveIntervalSecs int `toml:"keepalive_interval_secs"`

	// MaxRuntimeMins is the hard wall-clock ceiling for a run
	MaxRuntimeMins int `toml:"max_runtime_mins"`

	// StartAt optionally delays the first cycle until this RFC3339 time
	StartAt string `toml:"start_at"`

	// CaptureLines is how many trailing lines to capture per pane
	CaptureLines int `toml:"capture_lines"`

	// KeepalivePerSecond caps send-keys keepalive bursts across large fleets
	KeepalivePerSecond float64 `toml:"keepalive_per_second"`
}

// ClearSettings controls the clear/recovery controller.
type ClearSettings struct {
	// ProtectedPaneQuota is how many lexicographically-smallest idle/done
	// panes are never cleared (kept visible for the operator)
	ProtectedPaneQuota int `toml:"protected_pane_quota"`

	// MaxRetries is how many recovery attempts follow a failed verification
	MaxRetries int `toml:"max_retries"`

	// SettleDelaySecs is the wait between sending a clear and verifying it
	SettleDelaySecs int `toml:"settle_delay_secs"`

	// Command is the clear directive typed into a pane
	Command string `toml:"command"`

	// NoContentMarker is the text an emptied conversation shows
	NoContentMarker string `toml:"no_content_marker"`
}

// StatusSettings controls status inference.
type StatusSettings struct {
	// OptimisticDefault is the status assigned to unrecognized commands.
	// The inference chain only downgrades to idle on explicit shell idling
	// or explicit title markers; everything else gets this value.
	// Valid values: "working" (default), "unknown", "idle"
	OptimisticDefault string `toml:"optimistic_default"`

	// ExtraShells extends the built-in shell-name set
	ExtraShells []string `toml:"extra_shells"`

	// ExtraAssistantTokens extends the interactive assistant/editor token set
	ExtraAssistantTokens []string `toml:"extra_assistant_tokens"`
}

// LogSettings controls log output.
type LogSettings struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Monitor: MonitorSettings{
			CycleIntervalSecs:     60,
			KeepaliveIntervalSecs: 30,
			MaxRuntimeMins:        360,
			CaptureLines:          40,
			KeepalivePerSecond:    10,
		},
		Clear: ClearSettings{
			ProtectedPaneQuota: 4,
			MaxRetries:         1,
			SettleDelaySecs:    2,
			Command:            "/clear",
			NoContentMarker:    "(no content)",
		},
		Status: StatusSettings{
			OptimisticDefault: "working",
		},
		Log: LogSettings{
			Level:  "info",
			Format: "json",
		},
	}
}

// Dir returns the panewatch config directory (~/.panewatch), honoring
// PANEWATCH_HOME for tests and multi-profile setups.
func Dir() string {
	if dir := os.Getenv("PANEWATCH_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".panewatch"
	}
	return filepath.Join(home, ".panewatch")
}

// Path returns the full path of the config file.
func Path() string {
	return filepath.Join(Dir(), ConfigFileName)
}

// Load reads the config file at path, layered over defaults.
// A missing file is not an error: defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the scheduler cannot run with.
func (c *Config) Validate() error {
	if c.Monitor.CycleIntervalSecs <= 0 {
		return fmt.Errorf("monitor.cycle_interval_secs must be positive")
	}
	if c.Monitor.KeepaliveIntervalSecs <= 0 {
		return fmt.Errorf("monitor.keepalive_interval_secs must be positive")
	}
	if c.Monitor.MaxRuntimeMins <= 0 {
		return fmt.Errorf("monitor.max_runtime_mins must be positive")
	}
	if c.Clear.ProtectedPaneQuota < 0 {
		return fmt.Errorf("clear.protected_pane_quota must not be negative")
	}
	if c.Clear.MaxRetries < 0 {
		return fmt.Errorf("clear.max_retries must not be negative")
	}
	if strings.TrimSpace(c.Clear.Command) == "" {
		return fmt.Errorf("clear.command must not be empty")
	}
	switch strings.ToLower(c.Status.OptimisticDefault) {
	case "working", "unknown", "idle":
	default:
		return fmt.Errorf("status.optimistic_default must be working, unknown or idle")
	}
	if c.Monitor.StartAt != "" {
		if _, err := time.Parse(time.RFC3339, c.Monitor.StartAt); err != nil {
			return fmt.Errorf("monitor.start_at: %w", err)
		}
	}
	return nil
}

// CycleInterval returns the discovery-cycle interval as a duration.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.Monitor.CycleIntervalSecs) * time.Second
}

// KeepaliveInterval returns the keepalive/report loop interval as a duration.
func (c *Config) KeepaliveInterval() time.Duration {
	return time.Duration(c.Monitor.KeepaliveIntervalSecs) * time.Second
}

// MaxRuntime returns the hard runtime ceiling as a duration.
func (c *Config) MaxRuntime() time.Duration {
	return time.Duration(c.Monitor.MaxRuntimeMins) * time.Minute
}

// SettleDelay returns the post-clear settle delay as a duration.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Clear.SettleDelaySecs) * time.Second
}

// StartTime returns the configured future start time, if any.
func (c *Config) StartTime() (time.Time, bool) {
	if c.Monitor.StartAt == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, c.Monitor.StartAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Save writes the config to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
