// Package cli implements the ioq-sim command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/webriots/ioq/internal/config"
)

var (
	flagConfig   string
	flagLogLevel string
)

// NewRootCmd creates the root cobra command for ioq-sim.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ioq-sim",
		Short:        "Drive the ioq scheduler with a simulated workload",
		Long:         "ioq-sim runs prioritized streams of synthetic I/O through the ioq scheduler and reports how they were served.",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Config file (or IOQ_CONFIG env)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(),
		newConfigCmd(),
	)
	return root
}

// loadConfig loads the config file named by the persistent flags and
// applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
