package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultRefreshInterval, cfg.RefreshInterval)
	assert.Equal(t, DefaultDigestDays, cfg.DigestDays)
	assert.True(t, cfg.Watch.Enabled)
	assert.True(t, cfg.Provider("claude").IsEnabled())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
refresh_interval: 2m
digest_days: 14
pricing_file: /etc/openpulse/prices.json
log:
  level: debug
  format: json
metrics:
  addr: ":9100"
watch:
  enabled: false
providers:
  claude:
    session_token_limit: 500000
    week_token_limit: 5000000
    log_dirs: [/data/claude]
    cli_probe:
      command: claude
      args: ["/usage"]
      timeout: 20s
    api_min_interval: 90s
  codex:
    enabled: false
    base_url: https://chatgpt.com
`)
	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.RefreshInterval)
	assert.Equal(t, 14, cfg.DigestDays)
	assert.Equal(t, "/etc/openpulse/prices.json", cfg.PricingFile)
	assert.Equal(t, LogConfig{Level: "debug", Format: "json"}, cfg.Log)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
	assert.False(t, cfg.Watch.Enabled)
	assert.Equal(t, DefaultWatchDebounce, cfg.Watch.Debounce)
	assert.NotEmpty(t, cfg.SnapshotPath)

	claude := cfg.Provider("claude")
	assert.True(t, claude.IsEnabled())
	assert.Equal(t, int64(500000), claude.SessionTokenLimit)
	assert.Equal(t, int64(5000000), claude.WeekTokenLimit)
	assert.Equal(t, []string{"/data/claude"}, claude.LogDirs)
	assert.Equal(t, ProbeConfig{Command: "claude", Args: []string{"/usage"}, Timeout: 20 * time.Second}, claude.CLIProbe)
	assert.Equal(t, 90*time.Second, claude.APIMinInterval)

	codex := cfg.Provider("codex")
	assert.False(t, codex.IsEnabled())
	assert.Equal(t, "https://chatgpt.com", codex.BaseURL)
}

func TestRefreshIntervalFloor(t *testing.T) {
	cfg, err := LoadFrom(writeConfig(t, "refresh_interval: 5s\n"))
	require.NoError(t, err)
	assert.Equal(t, MinRefreshInterval, cfg.RefreshInterval)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg, err := LoadFrom(writeConfig(t, "snapshot_path: ~/state/snap.json\nproviders:\n  claude:\n    config_dir: ~/.claude-work\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "state", "snap.json"), cfg.SnapshotPath)
	assert.Equal(t, filepath.Join(home, ".claude-work"), cfg.Provider("claude").ConfigDir)
}

func TestLoadRejectsBadFiles(t *testing.T) {
	_, err := LoadFrom(writeConfig(t, "refresh_interval: [oops\n"))
	assert.Error(t, err)

	_, err = LoadFrom(writeConfig(t, "providers:\n  claude:\n    week_token_limit: -1\n"))
	assert.ErrorContains(t, err, "must not be negative")
}
