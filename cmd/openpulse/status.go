package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/janekbaraniewski/openpulse/internal/providers"
	"github.com/janekbaraniewski/openpulse/internal/pulse"
	"github.com/janekbaraniewski/openpulse/internal/render"
)

type statusOptions struct {
	json  bool
	width int
}

func newStatusCommand(flags *globalFlags) *cobra.Command {
	var opts statusOptions
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the last saved state without refreshing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			return printSnapshot(cmd.OutOrStdout(), cfg.SnapshotPath, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the state as JSON")
	cmd.Flags().IntVar(&opts.width, "width", 0, "render width (default terminal width)")
	return cmd
}

func printSnapshot(out io.Writer, path string, opts statusOptions) error {
	state, _, err := pulse.ReadSnapshot(path)
	if errors.Is(err, pulse.ErrNoSnapshot) {
		return fmt.Errorf("no saved state at %s; run `openpulse once` first", path)
	}
	if err != nil {
		return err
	}
	if opts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	}
	_, err = fmt.Fprint(out, render.Status(state, render.StatusOptions{
		Profiles: providers.Profiles(),
		Width:    terminalWidth(opts.width),
	}))
	return err
}
