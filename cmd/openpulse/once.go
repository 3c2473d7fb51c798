package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/janekbaraniewski/openpulse/internal/core"
	"github.com/janekbaraniewski/openpulse/internal/render"
)

type onceOptions struct {
	provider string
	json     bool
	width    int
}

func newOnceCommand(flags *globalFlags) *cobra.Command {
	var opts onceOptions
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Refresh every provider once and print the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, core.ProviderID(opts.provider))
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			refreshErr := a.orch.RefreshOnce(ctx, core.TriggerManual)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			state := a.orch.State()
			if opts.json {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(state); err != nil {
					return err
				}
			} else {
				fmt.Fprint(cmd.OutOrStdout(), render.Status(state, render.StatusOptions{
					Profiles: a.profiles(),
					Width:    terminalWidth(opts.width),
				}))
			}
			return refreshErr
		},
	}
	cmd.Flags().StringVarP(&opts.provider, "provider", "p", "", "refresh only this provider")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the state as JSON")
	cmd.Flags().IntVar(&opts.width, "width", 0, "render width (default terminal width)")
	return cmd
}
