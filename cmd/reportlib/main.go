package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/reportlib/cmd/reportlib/commands"
	"github.com/teranos/reportlib/logger"
)

var rootCmd = &cobra.Command{
	Use:   "reportlib",
	Short: "reportlib - report SDK tooling",
	Long: `reportlib - tooling for reports embedded in a parent application.

Available commands:
  host    - Run a development parent that serves a setup fixture
  call    - Connect to a parent, initialize and perform one request
  config  - Show or initialize reportlib configuration
  version - Show version information

Examples:
  reportlib host --fixture fixture.yaml    # Serve a fixture on :8787
  reportlib call hasPermission '{"permissions":["READ"]}'
  reportlib config show --format json
  reportlib version --json`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")

		cfg, err := commands.LoadConfig(cmd)
		if err == nil {
			if cfg.Log.Verbosity > verbosity {
				verbosity = cfg.Log.Verbosity
			}
			jsonLogs = jsonLogs || cfg.Log.JSON
		}

		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (default: system, user and project report.toml)")

	rootCmd.AddCommand(commands.HostCmd)
	rootCmd.AddCommand(commands.CallCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
