package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync state and store counts",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	database, st, cfg, err := openStore(cmd)
	if err != nil {
		return exitError(1, err)
	}
	defer database.Close()

	out := cmd.OutOrStdout()

	last, err := st.Prefs.LastSyncAt()
	if err != nil {
		return exitError(1, err)
	}
	if last.IsZero() {
		fmt.Fprintln(out, "Last sync: never")
	} else {
		fmt.Fprintf(out, "Last sync: %s\n", last.Format("2006-01-02T15:04:05Z"))
	}

	enabled, err := st.Prefs.SyncEnabled()
	if err != nil {
		return exitError(1, err)
	}
	fmt.Fprintf(out, "Sync enabled: %v\n", enabled)

	keys := openKeys(database, cfg)
	if err := keys.Load(); err != nil {
		return exitError(1, err)
	}
	fmt.Fprintf(out, "Seen keys: %d\n", keys.SeenCount())
	fmt.Fprintf(out, "Tombstones: %d\n", keys.DeletedCount())

	items, err := st.Items.ListAll()
	if err != nil {
		return exitError(1, err)
	}
	buckets, err := st.Days.ListAll()
	if err != nil {
		return exitError(1, err)
	}
	fmt.Fprintf(out, "Items: %d across %d days\n", len(items), len(buckets))

	applied, pending, err := database.MigrationStatus()
	if err != nil {
		return exitError(1, err)
	}
	fmt.Fprintf(out, "Schema: %d migration(s) applied, %d pending\n", len(applied), len(pending))
	return nil
}
