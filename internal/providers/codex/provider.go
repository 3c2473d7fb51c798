// Package codex reads OpenAI Codex CLI usage from the ChatGPT backend
// usage endpoint, local session rollouts and the CLI's status output.
package codex

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/janekbaraniewski/openpulse/internal/core"
	"github.com/janekbaraniewski/openpulse/internal/logscan"
	"github.com/janekbaraniewski/openpulse/internal/providers/shared"
)

const ProviderID core.ProviderID = "codex"

var Profile = core.ProviderProfile{
	ID:          ProviderID,
	DisplayName: "Codex",
	BrandColor:  "#10A37F",
}

// DefaultProbe sends the TUI's /status command. Whether the CLI answers it
// non-interactively depends on the installed version; runs that do not
// exit end at the probe timeout and yield an unavailable reading.
var DefaultProbe = shared.ProbeCommand{Binary: "codex", Args: []string{"/status"}, Timeout: shared.DefaultProbeTimeout}

type Options struct {
	// ConfigDir is CODEX_HOME, ~/.codex by default.
	ConfigDir string
	HomeDir   string
	// SessionsDir defaults to ConfigDir/sessions.
	SessionsDir string

	BaseURL string
	Token   string

	Limits          shared.TokenLimits
	Probe           shared.ProbeCommand
	MinLiveInterval time.Duration

	Client *http.Client
	Digest *shared.DigestAttacher
	Now    func() time.Time
}

func (o Options) withDefaults() Options {
	if o.ConfigDir == "" {
		o.ConfigDir = os.Getenv("CODEX_HOME")
	}
	if o.HomeDir == "" {
		o.HomeDir, _ = os.UserHomeDir()
	}
	if o.ConfigDir == "" && o.HomeDir != "" {
		o.ConfigDir = filepath.Join(o.HomeDir, ".codex")
	}
	if o.SessionsDir == "" && o.ConfigDir != "" {
		o.SessionsDir = filepath.Join(o.ConfigDir, "sessions")
	}
	return o
}

// LogRoots is the sessions tree configured by o.
func (o Options) LogRoots() []string {
	o = o.withDefaults()
	if o.SessionsDir == "" {
		return nil
	}
	return []string{o.SessionsDir}
}

// Locator finds the session rollouts configured by o by day partition.
func (o Options) Locator() logscan.Locator {
	o = o.withDefaults()
	return Locator(o.SessionsDir, o.Now)
}

// ScanLocator finds the session rollouts configured by o by mod time.
func (o Options) ScanLocator() logscan.Locator {
	o = o.withDefaults()
	return ScanLocator(o.SessionsDir)
}

// Sources builds every signal source for Codex, best first. The CLI source
// is added only when o.Probe names a binary.
func Sources(o Options) []core.SignalSource {
	o = o.withDefaults()
	sources := []core.SignalSource{
		NewAPISource(APIConfig{
			BaseURL:   o.BaseURL,
			ConfigDir: o.ConfigDir,
			AuthPath:  filepath.Join(o.ConfigDir, "auth.json"),
			Token:     o.Token,
			Client:    o.Client,
			Cache:     shared.NewLiveCache(o.MinLiveInterval),
			Digest:    o.Digest,
			Now:       o.Now,
		}),
		shared.NewLogSource(Profile, shared.LogSourceConfig{
			Scanner: &logscan.Scanner{
				Schema:        Schema(),
				Locator:       o.ScanLocator(),
				SessionWindow: sessionWindow,
				WeekWindow:    weekWindow,
				Now:           o.Now,
			},
			Limits: o.Limits,
			Digest: o.Digest,
			Now:    o.Now,
		}),
	}
	if o.Probe.Binary != "" {
		sources = append(sources, shared.NewCLISource(Profile, shared.CLISourceConfig{
			Command:       o.Probe,
			SessionWindow: sessionWindow,
			WeekWindow:    weekWindow,
			Digest:        o.Digest,
			Now:           o.Now,
		}))
	}
	return sources
}
