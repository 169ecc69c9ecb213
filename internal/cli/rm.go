package cli

import (
	"fmt"

	"github.com/ldavies/fitsync/internal/domain"
	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm <item-uuid>",
	Short: "Delete an activity item",
	Long: `Delete removes an item from its day bucket. If the item came from the
provider, its external ID is tombstoned so future sync cycles will not
re-import it. Use --no-tombstone to allow re-import.`,
	Args: cobra.ExactArgs(1),
	RunE: runRm,
}

var rmNoTombstone bool

func init() {
	rootCmd.AddCommand(rmCmd)
	rmCmd.Flags().BoolVar(&rmNoTombstone, "no-tombstone", false, "Do not tombstone the item's external ID")
}

func runRm(cmd *cobra.Command, args []string) error {
	database, st, _, err := openStore(cmd)
	if err != nil {
		return exitError(1, err)
	}
	defer database.Close()

	itemUUID := args[0]
	if err := domain.ValidateUUID(itemUUID); err != nil {
		return exitError(1, err)
	}

	item, err := st.Items.GetByUUID(itemUUID)
	if err != nil {
		return exitError(1, err)
	}

	if err := st.Items.Delete(itemUUID, !rmNoTombstone); err != nil {
		return exitError(1, err)
	}

	if item.HasExternalID() && !rmNoTombstone {
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s (tombstoned %s)\n", itemUUID, *item.ExternalID)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", itemUUID)
	}
	return nil
}
