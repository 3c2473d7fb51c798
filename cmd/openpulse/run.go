package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/janekbaraniewski/openpulse/internal/core"
	"github.com/janekbaraniewski/openpulse/internal/metrics"
	"github.com/janekbaraniewski/openpulse/internal/render"
	"github.com/janekbaraniewski/openpulse/internal/watch"
)

type runOptions struct {
	metricsAddr string
	noWatch     bool
	quiet       bool
	width       int
}

func newRunCommand(flags *globalFlags) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Refresh on a schedule and on log changes until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if opts.metricsAddr != "" {
				cfg.Metrics.Addr = opts.metricsAddr
			}
			if opts.noWatch {
				cfg.Watch.Enabled = false
			}
			a, err := newApp(cfg, "")
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(ctx, cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics, /healthz and /state on this address")
	cmd.Flags().BoolVar(&opts.noWatch, "no-watch", false, "do not refresh on log file changes")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "do not print status after each refresh")
	cmd.Flags().IntVar(&opts.width, "width", 0, "render width (default terminal width)")
	return cmd
}

func (a *app) run(ctx context.Context, out io.Writer, opts runOptions) error {
	g, ctx := errgroup.WithContext(ctx)

	states, unsubscribe := a.broadcaster.Subscribe()
	defer unsubscribe()

	g.Go(func() error { return a.orch.Run(ctx) })

	if addr := a.cfg.Metrics.Addr; addr != "" {
		srv := metrics.NewServer(addr, a.collector, a.orch.State, a.logger)
		g.Go(func() error { return srv.Run(ctx) })
	}

	if a.cfg.Watch.Enabled {
		w := watch.New(a.orch, a.cfg.Watch.Debounce, a.logger)
		for _, p := range a.providers {
			w.Add(p.Profile.ID, p.WatchRoots...)
		}
		g.Go(func() error { return w.Run(ctx) })
	}

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case state, ok := <-states:
				if !ok {
					return nil
				}
				a.publishState(out, state, opts)
			}
		}
	})

	a.logger.Info("openpulse running",
		zap.Int("providers", len(a.providers)),
		zap.Duration("interval", a.orch.Interval()),
		zap.Bool("watch", a.cfg.Watch.Enabled))

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *app) publishState(out io.Writer, state core.PulseState, opts runOptions) {
	if state.Refreshing {
		return
	}
	a.collector.ObserveState(state)
	if opts.quiet {
		return
	}
	fmt.Fprint(out, render.Status(state, render.StatusOptions{
		Profiles: a.profiles(),
		Width:    terminalWidth(opts.width),
	}))
}
