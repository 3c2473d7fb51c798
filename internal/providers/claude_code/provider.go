// Package claude_code reads Claude Code usage from the OAuth usage API, the
// claude.ai web session, local conversation logs and the CLI itself.
package claude_code

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/janekbaraniewski/openpulse/internal/core"
	"github.com/janekbaraniewski/openpulse/internal/logscan"
	"github.com/janekbaraniewski/openpulse/internal/providers/shared"
)

const ProviderID core.ProviderID = "claude"

var Profile = core.ProviderProfile{
	ID:          ProviderID,
	DisplayName: "Claude",
	BrandColor:  "#D97757",
}

// DefaultProbe is the status command used when the CLI probe is enabled
// without an explicit command. /usage is an interactive slash command; a
// CLI that does not answer it and exit is cut off at the probe timeout.
var DefaultProbe = shared.ProbeCommand{Binary: "claude", Args: []string{"/usage"}, Timeout: shared.DefaultProbeTimeout}

type Options struct {
	// ConfigDir is the CLI's state directory, ~/.claude by default.
	ConfigDir string
	HomeDir   string
	LogDirs   []string

	APIBaseURL string
	WebBaseURL string
	Token      string

	Limits shared.TokenLimits
	// Probe is the CLI status command; the CLI source is skipped when it
	// has no binary.
	Probe           shared.ProbeCommand
	MinLiveInterval time.Duration
	// DisableCookies skips browser and desktop cookie stores.
	DisableCookies bool
	Cookies        CookieJar

	Client *http.Client
	Digest *shared.DigestAttacher
	Now    func() time.Time
}

func (o Options) withDefaults() Options {
	if o.HomeDir == "" {
		o.HomeDir, _ = os.UserHomeDir()
	}
	if o.ConfigDir == "" && o.HomeDir != "" {
		o.ConfigDir = filepath.Join(o.HomeDir, ".claude")
	}
	return o
}

func (o Options) accountPath() string {
	if o.HomeDir == "" {
		return ""
	}
	return filepath.Join(o.HomeDir, ".claude.json")
}

// LogRoots lists the conversation log directories configured by o.
func (o Options) LogRoots() []string {
	o = o.withDefaults()
	return LogRoots(o.ConfigDir, o.HomeDir, o.LogDirs)
}

// Locator finds the conversation logs configured by o.
func (o Options) Locator() logscan.Locator {
	return Locator(o.LogRoots())
}

// Sources builds every signal source for Claude, best first.
func Sources(o Options) []core.SignalSource {
	o = o.withDefaults()
	sources := []core.SignalSource{
		NewAPISource(APIConfig{
			BaseURL:         o.APIBaseURL,
			CredentialsPath: filepath.Join(o.ConfigDir, ".credentials.json"),
			AccountPath:     o.accountPath(),
			Token:           o.Token,
			Client:          o.Client,
			Cache:           shared.NewLiveCache(o.MinLiveInterval),
			Digest:          o.Digest,
			Now:             o.Now,
		}),
	}
	if !o.DisableCookies {
		sources = append(sources, NewCookieSource(CookieConfig{
			WebBaseURL:  o.WebBaseURL,
			AccountPath: o.accountPath(),
			Cookies:     o.Cookies,
			Client:      o.Client,
			Cache:       shared.NewLiveCache(o.MinLiveInterval),
			Digest:      o.Digest,
			Now:         o.Now,
		}))
	}
	sources = append(sources, shared.NewLogSource(Profile, shared.LogSourceConfig{
		Scanner: &logscan.Scanner{
			Schema:        Schema(),
			Locator:       o.Locator(),
			SessionWindow: sessionWindow,
			WeekWindow:    weekWindow,
			Now:           o.Now,
		},
		Limits: o.Limits,
		Digest: o.Digest,
		Now:    o.Now,
	}))
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
