package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janekbaraniewski/openpulse/internal/config"
	"github.com/janekbaraniewski/openpulse/internal/core"
	"github.com/janekbaraniewski/openpulse/internal/providers"
	"github.com/janekbaraniewski/openpulse/internal/pulse"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"run", "once", "status", "costs", "version"})
}

func TestFilterProviders(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := config.DefaultConfig()
	off := false
	cfg.Providers = map[string]config.ProviderConfig{"codex": {Enabled: &off}}
	ps := providers.Build(providers.Deps{Config: cfg})

	got, err := filterProviders(ps, "")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = filterProviders(ps, "claude")
	require.NoError(t, err)
	assert.Equal(t, core.ProviderID("claude"), got[0].Profile.ID)

	_, err = filterProviders(ps, "codex")
	assert.ErrorContains(t, err, "disabled")

	_, err = filterProviders(ps, "gemini")
	assert.ErrorContains(t, err, "unknown provider")

	_, err = filterProviders(nil, "")
	assert.ErrorContains(t, err, "no providers enabled")
}

func TestPrintSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	now := time.Now()
	state := core.NewPulseState()
	state.LastRefresh = now
	state.Readings["codex"] = core.NewReading("codex", core.SourceAPI, core.ConfidenceHigh, now, "session 12% · week 30% (api)").
		WithUsage(core.UsagePulse{Session: core.Percent(12), Week: core.Percent(30)})
	require.NoError(t, pulse.FileSnapshot{Path: path}.WriteSnapshot(state))

	var out bytes.Buffer
	require.NoError(t, printSnapshot(&out, path, statusOptions{width: 90}))
	text := ansi.Strip(out.String())
	assert.Contains(t, text, "Codex")
	assert.Contains(t, text, "session 12% · week 30% (api)")

	out.Reset()
	require.NoError(t, printSnapshot(&out, path, statusOptions{json: true}))
	var decoded core.PulseState
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, core.ConfidenceHigh, decoded.Readings["codex"].Confidence)
}

func TestPrintSnapshotMissing(t *testing.T) {
	err := printSnapshot(&bytes.Buffer{}, filepath.Join(t.TempDir(), "none.json"), statusOptions{})
	assert.ErrorContains(t, err, "openpulse once")
}

func TestSingleProviderRefreshKeepsSnapshot(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CODEX_HOME", "")
	t.Setenv(config.EnvVar("claude"), "")
	t.Setenv(config.EnvVar("codex"), "")
	cfg := config.DefaultConfig()
	cfg.Log.Level = "error"
	cfg.SnapshotPath = filepath.Join(home, "snapshot.json")
	cfg.CredentialsPath = filepath.Join(home, "credentials.json")
	cfg.Providers = map[string]config.ProviderConfig{
		"claude": {ConfigDir: filepath.Join(home, "claude"), DisableCookies: true},
		"codex":  {ConfigDir: filepath.Join(home, "codex")},
	}

	only, err := newApp(cfg, "claude")
	require.NoError(t, err)
	require.NoError(t, only.orch.RefreshOnce(context.Background(), core.TriggerManual))
	assert.Contains(t, only.orch.State().Readings, core.ProviderID("claude"))
	_, statErr := os.Stat(cfg.SnapshotPath)
	assert.ErrorIs(t, statErr, os.ErrNotExist)

	all, err := newApp(cfg, "")
	require.NoError(t, err)
	require.NoError(t, all.orch.RefreshOnce(context.Background(), core.TriggerManual))
	saved, _, err := pulse.ReadSnapshot(cfg.SnapshotPath)
	require.NoError(t, err)
	assert.Len(t, saved.Readings, 2)
}

func TestCostsCommandJSON(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	claudeDir := filepath.Join(home, "claude-state")

	line := `{"type":"assistant","sessionId":"s","timestamp":"` + time.Now().Add(-time.Minute).UTC().Format(time.RFC3339) + `",` +
		`"requestId":"r1","message":{"id":"m1","model":"claude-sonnet-4-5","usage":{"input_tokens":100000,"output_tokens":0}}}` + "\n"
	logPath := filepath.Join(claudeDir, "projects", "p", "conv.jsonl")
	require.NoError(t, os.MkdirAll(filepath.Dir(logPath), 0o755))
	require.NoError(t, os.WriteFile(logPath, []byte(line), 0o600))

	cfgPath := filepath.Join(home, "config.yaml")
	cfgYAML := "log:\n  level: error\n" +
		"snapshot_path: " + filepath.Join(home, "snapshot.json") + "\n" +
		"credentials_path: " + filepath.Join(home, "credentials.json") + "\n" +
		"providers:\n" +
		"  claude:\n    config_dir: " + claudeDir + "\n    disable_cookies: true\n" +
		"  codex:\n    enabled: false\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o600))

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", cfgPath, "costs", "--json", "--days", "7"})
	require.NoError(t, root.Execute())

	var digests map[core.ProviderID]core.ConsumptionDigest
	require.NoError(t, json.Unmarshal(out.Bytes(), &digests))
	require.Contains(t, digests, core.ProviderID("claude"))
	d := digests["claude"]
	assert.Equal(t, 7, d.WindowDays)
	assert.Equal(t, int64(100000), d.Window.Input)
	assert.InDelta(t, 0.3, d.WindowCostUSD, 1e-9)
}
