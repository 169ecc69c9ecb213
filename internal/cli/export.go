package cli

import (
	"fmt"
	"time"

	"github.com/ldavies/fitsync/internal/snapshot"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a snapshot of the store to a file",
	Long: `Export writes the whole store (day buckets, items, catalog, tombstones)
as a canonical JSON snapshot suitable for backup or cross-install restore.`,
	RunE: runExport,
}

var exportOut string

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Output path (defaults to configured snapshot path)")
}

func runExport(cmd *cobra.Command, args []string) error {
	database, st, cfg, err := openStore(cmd)
	if err != nil {
		return exitError(1, err)
	}
	defer database.Close()

	out := exportOut
	if out == "" {
		out = cfg.SnapshotPath
	}
	if out == "" {
		return exitError(1, fmt.Errorf("no output path (use --out or set FITSYNC_SNAPSHOT_PATH)"))
	}

	doc, err := snapshot.Export(st, time.Now())
	if err != nil {
		return exitError(1, err)
	}
	if err := snapshot.WriteFile(out, doc); err != nil {
		return exitError(1, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d items across %d days to %s\n",
		len(doc.Items), len(doc.Days), out)
	return nil
}
