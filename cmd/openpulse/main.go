package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/janekbaraniewski/openpulse/internal/config"
	"github.com/janekbaraniewski/openpulse/internal/version"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCommand() *cobra.Command {
	var flags globalFlags
	root := &cobra.Command{
		Use:          "openpulse",
		Short:        "openpulse tracks quota and spend across AI coding assistants.",
		SilenceUsage: true,
		Version:      version.String(),
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default "+config.ConfigPath()+")")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "log format override (console, json)")

	root.AddCommand(
		newRunCommand(&flags),
		newOnceCommand(&flags),
		newStatusCommand(&flags),
		newCostsCommand(&flags),
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version.String())
			},
		},
	)
	return root
}
