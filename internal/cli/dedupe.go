package cli

import (
	"fmt"

	"github.com/ldavies/fitsync/internal/dedupe"
	"github.com/spf13/cobra"
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Collapse duplicate day buckets and catalog entries",
	RunE:  runDedupe,
}

func init() {
	rootCmd.AddCommand(dedupeCmd)
}

func runDedupe(cmd *cobra.Command, args []string) error {
	database, st, _, err := openStore(cmd)
	if err != nil {
		return exitError(1, err)
	}
	defer database.Close()

	result, err := dedupe.New(st).Run()
	if err != nil {
		return exitError(1, err)
	}

	if result.Total() == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No duplicates found")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Collapsed %d bucket(s), %d exercise(s), %d unit(s)\n",
		result.Buckets, result.Exercises, result.Units)
	return nil
}
