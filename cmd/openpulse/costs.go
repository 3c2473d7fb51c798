package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/janekbaraniewski/openpulse/internal/core"
	"github.com/janekbaraniewski/openpulse/internal/render"
)

type costsOptions struct {
	provider string
	days     int
	json     bool
}

func newCostsCommand(flags *globalFlags) *cobra.Command {
	var opts costsOptions
	cmd := &cobra.Command{
		Use:   "costs",
		Short: "Estimate spend per day and model from local logs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if opts.days < 0 {
				return fmt.Errorf("--days must not be negative")
			}
			if opts.days > 0 {
				cfg.DigestDays = opts.days
			}
			a, err := newApp(cfg, core.ProviderID(opts.provider))
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.printCosts(ctx, cmd.OutOrStdout(), opts.json)
		},
	}
	cmd.Flags().StringVarP(&opts.provider, "provider", "p", "", "only this provider")
	cmd.Flags().IntVarP(&opts.days, "days", "d", 0, "trailing window in days (default from config)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print digests as JSON")
	return cmd
}

func (a *app) printCosts(ctx context.Context, out io.Writer, asJSON bool) error {
	digests := make(map[core.ProviderID]core.ConsumptionDigest, len(a.providers))
	for _, p := range a.providers {
		d, err := p.Analyzer.Analyze(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", p.Profile.ID, err)
		}
		digests[p.Profile.ID] = d
		if asJSON {
			continue
		}
		table, err := render.Costs(p.Profile.DisplayName, d)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, table)
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(digests)
	}
	return nil
}
