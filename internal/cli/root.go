package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fitsync",
	Short: "Sync workout activity from a provider into a local SQLite store",
	Long: `fitsync pulls activity records from an external health provider into a
local SQLite store, deduplicating across overlapping sync cycles, and
reconciles file-based snapshot imports against local edits.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to database file (overrides FITSYNC_DB_PATH)")
}
