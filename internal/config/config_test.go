package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 60, cfg.Monitor.CycleIntervalSecs)
	assert.Equal(t, 30, cfg.Monitor.KeepaliveIntervalSecs)
	assert.Equal(t, 360, cfg.Monitor.MaxRuntimeMins)
	assert.Equal(t, 40, cfg.Monitor.CaptureLines)
	assert.Equal(t, 4, cfg.Clear.ProtectedPaneQuota)
	assert.Equal(t, 1, cfg.Clear.MaxRetries)
	assert.Equal(t, "/clear", cfg.Clear.Command)
	assert.Equal(t, "(no content)", cfg.Clear.NoContentMarker)
	assert.Equal(t, "working", cfg.Status.OptimisticDefault)

	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_PartialFileLayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	data := `
[monitor]
cycle_interval_secs = 15
session = "workbench"

[clear]
protected_pane_quota = 2
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.Monitor.CycleIntervalSecs)
	assert.Equal(t, "workbench", cfg.Monitor.Session)
	assert.Equal(t, 2, cfg.Clear.ProtectedPaneQuota)

	// Untouched fields keep their defaults
	assert.Equal(t, 30, cfg.Monitor.KeepaliveIntervalSecs)
	assert.Equal(t, "/clear", cfg.Clear.Command)
}

func TestLoad_MalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("[monitor\nbroken"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errHas string
	}{
		{"zero cycle interval", func(c *Config) { c.Monitor.CycleIntervalSecs = 0 }, "cycle_interval_secs"},
		{"negative keepalive interval", func(c *Config) { c.Monitor.KeepaliveIntervalSecs = -5 }, "keepalive_interval_secs"},
		{"zero runtime ceiling", func(c *Config) { c.Monitor.MaxRuntimeMins = 0 }, "max_runtime_mins"},
		{"negative quota", func(c *Config) { c.Clear.ProtectedPaneQuota = -1 }, "protected_pane_quota"},
		{"negative retries", func(c *Config) { c.Clear.MaxRetries = -1 }, "max_retries"},
		{"blank clear command", func(c *Config) { c.Clear.Command = "  " }, "clear.command"},
		{"bad optimistic default", func(c *Config) { c.Status.OptimisticDefault = "sleepy" }, "optimistic_default"},
		{"bad start time", func(c *Config) { c.Monitor.StartAt = "tomorrow at noon" }, "start_at"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errHas)
		})
	}

	t.Run("zero quota is allowed", func(t *testing.T) {
		cfg := Default()
		cfg.Clear.ProtectedPaneQuota = 0
		assert.NoError(t, cfg.Validate())
	})
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	cfg.Monitor.CycleIntervalSecs = 90
	cfg.Monitor.KeepaliveIntervalSecs = 20
	cfg.Monitor.MaxRuntimeMins = 2
	cfg.Clear.SettleDelaySecs = 3

	assert.Equal(t, 90*time.Second, cfg.CycleInterval())
	assert.Equal(t, 20*time.Second, cfg.KeepaliveInterval())
	assert.Equal(t, 2*time.Minute, cfg.MaxRuntime())
	assert.Equal(t, 3*time.Second, cfg.SettleDelay())
}

func TestStartTime(t *testing.T) {
	cfg := Default()

	_, ok := cfg.StartTime()
	assert.False(t, ok, "no start time configured")

	cfg.Monitor.StartAt = "2026-09-01T06:00:00Z"
	got, ok := cfg.StartTime()
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 9, 1, 6, 0, 0, 0, time.UTC), got.UTC())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ConfigFileName)

	cfg := Default()
	cfg.Monitor.Session = "farm"
	cfg.Monitor.CycleIntervalSecs = 45
	cfg.Status.ExtraShells = []string{"nushell"}
	cfg.Status.ExtraAssistantTokens = []string{"goose"}
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Monitor, got.Monitor)
	assert.Equal(t, cfg.Clear, got.Clear)
	assert.Equal(t, cfg.Status, got.Status)
}

func TestDir_HonorsEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PANEWATCH_HOME", dir)

	assert.Equal(t, dir, Dir())
	assert.Equal(t, filepath.Join(dir, ConfigFileName), Path())
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)

	cfg := Default()
	cfg.Monitor.CycleIntervalSecs = 30
	require.NoError(t, cfg.Save(path))

	w, err := NewWatcher(path)
	require.NoError(t, err)
	defer w.Close()

	require.Equal(t, 30, w.Current().Monitor.CycleIntervalSecs)

	cfg.Monitor.CycleIntervalSecs = 5
	require.NoError(t, cfg.Save(path))

	assert.Eventually(t, func() bool {
		return w.Current().Monitor.CycleIntervalSecs == 5
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWatcher_InvalidFileKeepsPreviousConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)

	cfg := Default()
	cfg.Monitor.CycleIntervalSecs = 30
	require.NoError(t, cfg.Save(path))

	w, err := NewWatcher(path)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("[monitor]\ncycle_interval_secs = -1\n"), 0o644))

	// Let the debounce window elapse; the rejected reload must not take effect
	time.Sleep(debounceWindow + 500*time.Millisecond)
	assert.Equal(t, 30, w.Current().Monitor.CycleIntervalSecs)
}

func TestWatcher_MissingFileStartsWithDefaults(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(filepath.Join(dir, ConfigFileName))
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, Default(), w.Current())
}
