package cli

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var version = "dev"

// SetVersion is called from main with the build-time version.
func SetVersion(v string) {
	version = v
}

var (
	cfgPath string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "ticketflow",
	Short: "ticketflow — automated Jira ticket to pull request pipeline",
	Long: `ticketflow picks unassigned tickets from the active sprint, finds the
repository they belong to, generates a changeset with an LLM, and opens a
pull request — transitioning the ticket along the way.

Configuration lives in ~/.ticketflow/config.yaml (see "ticketflow setup");
credentials are read from TICKETFLOW_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", defaultConfigPath(), "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(ticketsCmd)
	rootCmd.AddCommand(versionCmd)
}

func defaultConfigPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".ticketflow", "config.yaml")
	}
	return "config.yaml"
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("ticketflow " + version)
	},
}
