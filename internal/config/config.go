// Package config loads openpulse settings from YAML and resolves provider
// credentials without ever writing them.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/janekbaraniewski/openpulse/internal/core"
)

const (
	AppName = "openpulse"

	DefaultRefreshInterval = 5 * time.Minute
	MinRefreshInterval     = 30 * time.Second
	DefaultDigestDays      = 30
	DefaultWatchDebounce   = 2 * time.Second
	DefaultMetricsAddr     = "127.0.0.1:9464"
)

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type MetricsConfig struct {
	// Addr is the listen address; empty disables the server.
	Addr string `koanf:"addr"`
}

type WatchConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Debounce time.Duration `koanf:"debounce"`
}

type ProbeConfig struct {
	Command string        `koanf:"command"`
	Args    []string      `koanf:"args"`
	Timeout time.Duration `koanf:"timeout"`
}

type ProviderConfig struct {
	// Enabled defaults to true when unset.
	Enabled           *bool         `koanf:"enabled"`
	ConfigDir         string        `koanf:"config_dir"`
	LogDirs           []string      `koanf:"log_dirs"`
	BaseURL           string        `koanf:"base_url"`
	SessionTokenLimit int64         `koanf:"session_token_limit"`
	WeekTokenLimit    int64         `koanf:"week_token_limit"`
	CLIProbe          ProbeConfig   `koanf:"cli_probe"`
	APIMinInterval    time.Duration `koanf:"api_min_interval"`
	DisableCookies    bool          `koanf:"disable_cookies"`
}

func (p ProviderConfig) IsEnabled() bool { return p.Enabled == nil || *p.Enabled }

type Config struct {
	RefreshInterval time.Duration             `koanf:"refresh_interval"`
	DigestDays      int                       `koanf:"digest_days"`
	SnapshotPath    string                    `koanf:"snapshot_path"`
	PricingFile     string                    `koanf:"pricing_file"`
	CredentialsPath string                    `koanf:"credentials_path"`
	Log             LogConfig                 `koanf:"log"`
	Metrics         MetricsConfig             `koanf:"metrics"`
	Watch           WatchConfig               `koanf:"watch"`
	Providers       map[string]ProviderConfig `koanf:"providers"`
}

func DefaultConfig() Config {
	return Config{
		RefreshInterval: DefaultRefreshInterval,
		DigestDays:      DefaultDigestDays,
		SnapshotPath:    DefaultSnapshotPath(),
		CredentialsPath: DefaultCredentialsPath(),
		Log:             LogConfig{Level: "info", Format: "console"},
		Watch:           WatchConfig{Enabled: true, Debounce: DefaultWatchDebounce},
		Providers:       map[string]ProviderConfig{},
	}
}

func ConfigDir() string { return filepath.Join(xdg.ConfigHome, AppName) }

func ConfigPath() string { return filepath.Join(ConfigDir(), "config.yaml") }

func DefaultSnapshotPath() string { return filepath.Join(xdg.StateHome, AppName, "snapshot.json") }

func DefaultCredentialsPath() string { return filepath.Join(ConfigDir(), "credentials.json") }

// Provider returns the settings for id, zero valued (and so enabled) when
// the file does not mention it.
func (c Config) Provider(id core.ProviderID) ProviderConfig {
	return c.Providers[string(id)]
}

func Load() (Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads path over the defaults. A missing file yields the
// defaults unchanged.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return DefaultConfig(), fmt.Errorf("config: loading %s: %w", path, err)
	}
	if err := k.Unmarshal("", &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.normalize(); err != nil {
		return DefaultConfig(), fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	switch {
	case c.RefreshInterval <= 0:
		c.RefreshInterval = DefaultRefreshInterval
	case c.RefreshInterval < MinRefreshInterval:
		c.RefreshInterval = MinRefreshInterval
	}
	if c.DigestDays <= 0 {
		c.DigestDays = DefaultDigestDays
	}
	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = DefaultWatchDebounce
	}
	if c.SnapshotPath == "" {
		c.SnapshotPath = DefaultSnapshotPath()
	}
	if c.CredentialsPath == "" {
		c.CredentialsPath = DefaultCredentialsPath()
	}
	c.SnapshotPath = expandHome(c.SnapshotPath)
	c.PricingFile = expandHome(c.PricingFile)
	c.CredentialsPath = expandHome(c.CredentialsPath)
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}

	for id, p := range c.Providers {
		if p.SessionTokenLimit < 0 || p.WeekTokenLimit < 0 {
			return fmt.Errorf("provider %s: token limits must not be negative", id)
		}
		p.ConfigDir = expandHome(p.ConfigDir)
		for i, dir := range p.LogDirs {
			p.LogDirs[i] = expandHome(dir)
		}
		c.Providers[id] = p
	}
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
