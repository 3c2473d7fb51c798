// Package providers turns configuration into the signal sources, digest
// analyzers and watch roots of every enabled provider.
package providers

import (
	"net/http"
	"slices"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/janekbaraniewski/openpulse/internal/config"
	"github.com/janekbaraniewski/openpulse/internal/core"
	"github.com/janekbaraniewski/openpulse/internal/expense"
	"github.com/janekbaraniewski/openpulse/internal/logscan"
	"github.com/janekbaraniewski/openpulse/internal/parsers"
	"github.com/janekbaraniewski/openpulse/internal/providers/claude_code"
	"github.com/janekbaraniewski/openpulse/internal/providers/codex"
	"github.com/janekbaraniewski/openpulse/internal/providers/shared"
	"github.com/janekbaraniewski/openpulse/internal/tariff"
)

// Deps are the collaborators shared by every provider.
type Deps struct {
	Config      config.Config
	Credentials config.CredentialStore
	Tariffs     *tariff.Registry
	Client      *http.Client
	Logger      *zap.Logger
	Now         func() time.Time
}

// Provider is one enabled provider, wired.
type Provider struct {
	Profile  core.ProviderProfile
	Sources  []core.SignalSource
	Analyzer *expense.Analyzer
	// WatchRoots are the directories whose changes warrant a refresh.
	WatchRoots []string
}

// wiring is what a provider contributes once its config is resolved.
type wiring struct {
	schema  logscan.Schema
	locator logscan.Locator
	roots   []string
	sources func(digest *shared.DigestAttacher) []core.SignalSource
}

type builder struct {
	profile core.ProviderProfile
	wire    func(d Deps, pc config.ProviderConfig) wiring
}

var builders = []builder{
	{profile: claude_code.Profile, wire: wireClaude},
	{profile: codex.Profile, wire: wireCodex},
}

// Known lists the supported provider ids.
func Known() []core.ProviderID {
	return lo.Map(builders, func(b builder, _ int) core.ProviderID { return b.profile.ID })
}

// Profiles lists the display profile of every supported provider.
func Profiles() map[core.ProviderID]core.ProviderProfile {
	return lo.SliceToMap(builders, func(b builder) (core.ProviderID, core.ProviderProfile) { return b.profile.ID, b.profile })
}

// Build wires every enabled provider in a fixed order. Provider ids in the
// config that no builder knows are logged and skipped.
func Build(d Deps) []Provider {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Tariffs == nil {
		d.Tariffs = tariff.Default()
	}
	if d.Credentials == nil {
		d.Credentials = config.ChainCredentials{}
	}
	d.Now = shared.Now(d.Now)

	known := Known()
	for id := range d.Config.Providers {
		if !slices.Contains(known, core.ProviderID(id)) {
			d.Logger.Warn("unknown provider in config", zap.String("provider", id))
		}
	}

	var out []Provider
	for _, b := range builders {
		pc := d.Config.Provider(b.profile.ID)
		if !pc.IsEnabled() {
			continue
		}
		w := b.wire(d, pc)
		digestor := &logscan.Digestor{Schema: w.schema, Locator: w.locator, Pricer: d.Tariffs, Now: d.Now}
		analyzer := expense.NewAnalyzer(digestor, d.Config.DigestDays, expense.WithClock(d.Now))
		digest := shared.NewDigestAttacher(analyzer, d.Logger.With(zap.String("provider", string(b.profile.ID))))

		out = append(out, Provider{
			Profile:    b.profile,
			Sources:    w.sources(digest),
			Analyzer:   analyzer,
			WatchRoots: w.roots,
		})
	}
	return out
}

// AllSources flattens the sources of ps.
func AllSources(ps []Provider) []core.SignalSource {
	return lo.FlatMap(ps, func(p Provider, _ int) []core.SignalSource { return p.Sources })
}

// Find returns the provider with id.
func Find(ps []Provider, id core.ProviderID) (Provider, bool) {
	return lo.Find(ps, func(p Provider) bool { return p.Profile.ID == id })
}

func token(d Deps, id core.ProviderID) string {
	v, ok := d.Credentials.Lookup(id)
	if ok {
		d.Logger.Debug("using configured credential",
			zap.String("provider", string(id)),
			zap.String("token", parsers.RedactSecret(v)))
	}
	return v
}

func probe(pc config.ProbeConfig, def shared.ProbeCommand) shared.ProbeCommand {
	if pc.Command == "" {
		return shared.ProbeCommand{}
	}
	cmd := shared.ProbeCommand{Binary: pc.Command, Args: pc.Args, Timeout: pc.Timeout}
	if len(cmd.Args) == 0 && cmd.Binary == def.Binary {
		cmd.Args = def.Args
	}
	return cmd
}

func limits(pc config.ProviderConfig) shared.TokenLimits {
	return shared.TokenLimits{Session: pc.SessionTokenLimit, Week: pc.WeekTokenLimit}
}

func wireClaude(d Deps, pc config.ProviderConfig) wiring {
	opts := claude_code.Options{
		ConfigDir:       pc.ConfigDir,
		LogDirs:         pc.LogDirs,
		APIBaseURL:      pc.BaseURL,
		Token:           token(d, claude_code.ProviderID),
		Limits:          limits(pc),
		Probe:           probe(pc.CLIProbe, claude_code.DefaultProbe),
		MinLiveInterval: pc.APIMinInterval,
		DisableCookies:  pc.DisableCookies,
		Client:          d.Client,
		Now:             d.Now,
	}
	return wiring{
		schema:  claude_code.Schema(),
		locator: opts.Locator(),
		roots:   opts.LogRoots(),
		sources: func(digest *shared.DigestAttacher) []core.SignalSource {
			opts.Digest = digest
			return claude_code.Sources(opts)
		},
	}
}

func wireCodex(d Deps, pc config.ProviderConfig) wiring {
	opts := codex.Options{
		ConfigDir:       pc.ConfigDir,
		BaseURL:         pc.BaseURL,
		Token:           token(d, codex.ProviderID),
		Limits:          limits(pc),
		Probe:           probe(pc.CLIProbe, codex.DefaultProbe),
		MinLiveInterval: pc.APIMinInterval,
		Client:          d.Client,
		Now:             d.Now,
	}
	if len(pc.LogDirs) > 0 {
		opts.SessionsDir = pc.LogDirs[0]
	}
	if len(pc.LogDirs) > 1 {
		d.Logger.Warn("codex reads a single sessions directory, ignoring extra log_dirs",
			zap.String("using", pc.LogDirs[0]),
			zap.Strings("ignored", pc.LogDirs[1:]))
	}
	return wiring{
		schema:  codex.Schema(),
		locator: opts.Locator(),
		roots:   opts.LogRoots(),
		sources: func(digest *shared.DigestAttacher) []core.SignalSource {
			opts.Digest = digest
			return codex.Sources(opts)
		},
	}
}
