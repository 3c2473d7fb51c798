package main

import (
	"fmt"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/charmbracelet/x/term"
	"go.uber.org/zap"

	"github.com/janekbaraniewski/openpulse/internal/config"
	"github.com/janekbaraniewski/openpulse/internal/core"
	"github.com/janekbaraniewski/openpulse/internal/logger"
	"github.com/janekbaraniewski/openpulse/internal/metrics"
	"github.com/janekbaraniewski/openpulse/internal/providers"
	"github.com/janekbaraniewski/openpulse/internal/pulse"
	"github.com/janekbaraniewski/openpulse/internal/selector"
	"github.com/janekbaraniewski/openpulse/internal/tariff"
)

const httpTimeout = 30 * time.Second

// app holds everything a command needs once config is resolved.
type app struct {
	cfg         config.Config
	logger      *zap.Logger
	providers   []providers.Provider
	collector   *metrics.Collector
	broadcaster *pulse.Broadcaster
	orch        *pulse.Orchestrator
}

func loadConfig(flags *globalFlags) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if flags.configPath != "" {
		cfg, err = config.LoadFrom(flags.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.Config{}, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Log.Format = flags.logFormat
	}
	return cfg, nil
}

// newApp wires providers, the selector and the orchestrator. When only is
// non-empty the other providers are left out.
func newApp(cfg config.Config, only core.ProviderID) (*app, error) {
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	tariffs, err := tariff.LoadWithOverrides(cfg.PricingFile)
	if err != nil {
		return nil, err
	}
	creds, err := config.DefaultCredentials(cfg.CredentialsPath)
	if err != nil {
		return nil, err
	}

	ps := providers.Build(providers.Deps{
		Config:      cfg,
		Credentials: creds,
		Tariffs:     tariffs,
		Client:      &http.Client{Timeout: httpTimeout},
		Logger:      log,
	})
	ps, err = filterProviders(ps, only)
	if err != nil {
		return nil, err
	}

	collector := metrics.New()
	broadcaster := pulse.NewBroadcaster()
	sel := selector.New(log, selector.WithObserver(collector.ObserveSource))
	opts := []pulse.Option{
		pulse.WithLogger(log),
		pulse.WithPublisher(broadcaster),
		pulse.WithInterval(cfg.RefreshInterval),
		pulse.WithCycleObserver(collector.ObserveCycle),
	}
	// A single-provider state would replace every other provider's saved
	// reading, so only full-provider apps persist.
	if only == "" {
		opts = append(opts, pulse.WithSnapshot(pulse.FileSnapshot{Path: cfg.SnapshotPath}))
	}
	orch := pulse.New(providers.AllSources(ps), sel, opts...)
	return &app{
		cfg:         cfg,
		logger:      log,
		providers:   ps,
		collector:   collector,
		broadcaster: broadcaster,
		orch:        orch,
	}, nil
}

func filterProviders(ps []providers.Provider, only core.ProviderID) ([]providers.Provider, error) {
	if only == "" {
		if len(ps) == 0 {
			return nil, fmt.Errorf("no providers enabled (check %s)", config.ConfigPath())
		}
		return ps, nil
	}
	if !slices.Contains(providers.Known(), only) {
		return nil, fmt.Errorf("unknown provider %q (known: %v)", only, providers.Known())
	}
	p, ok := providers.Find(ps, only)
	if !ok {
		return nil, fmt.Errorf("provider %q is disabled", only)
	}
	return []providers.Provider{p}, nil
}

func (a *app) profiles() map[core.ProviderID]core.ProviderProfile {
	out := make(map[core.ProviderID]core.ProviderProfile, len(a.providers))
	for _, p := range a.providers {
		out[p.Profile.ID] = p.Profile
	}
	return out
}

func terminalWidth(override int) int {
	if override > 0 {
		return override
	}
	if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 {
		return w
	}
	return 0
}
