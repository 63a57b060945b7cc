package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/maxkimambo/dataflow/internal/config"
	"github.com/maxkimambo/dataflow/internal/logger"
)

var (
	debug      bool
	verbose    bool
	jsonLogs   bool
	quiet      bool
	configPath string
	version    = "v0.1.0"

	// cfg is resolved once per invocation in PersistentPreRunE
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "dataflow",
		Short: "Run pipelines of dependent tasks in dependency order",
		Long: `dataflow resolves a pipeline of tasks into a dependency graph and runs
each task only after every task it depends on has completed.

Pipelines are declared in TOML task files. Runs are recorded in a local
SQLite store and can also be submitted to a long-running server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger.Setup(verbose || debug, jsonLogs, quiet)
			if debug {
				logger.Op.Debug("Debug logging enabled")
			}

			loaded, err := loadConfig()
			if err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}
)

// Execute runs the root command and prints a formatted error on failure
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		handleError(err)
	}
	return err
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.dataflow/config.toml)")

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(serveCmd)
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Load()
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return config.LoadFile(home, configPath, true)
}
