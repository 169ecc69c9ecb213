package cli

import (
	"fmt"

	"github.com/ldavies/fitsync/internal/domain"
	"github.com/spf13/cobra"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Read and write persisted preferences",
}

var prefsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a preference value",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrefsGet,
}

var prefsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a preference value",
	Long: `Known keys:
  sync_enabled  true|false  whether background sync runs
  import_unit   time|distance|auto  unit preference for provider imports`,
	Args: cobra.ExactArgs(2),
	RunE: runPrefsSet,
}

func init() {
	rootCmd.AddCommand(prefsCmd)
	prefsCmd.AddCommand(prefsGetCmd)
	prefsCmd.AddCommand(prefsSetCmd)
}

func runPrefsGet(cmd *cobra.Command, args []string) error {
	database, st, _, err := openStore(cmd)
	if err != nil {
		return exitError(1, err)
	}
	defer database.Close()

	value, err := st.Prefs.Get(args[0])
	if err != nil {
		return exitError(1, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func runPrefsSet(cmd *cobra.Command, args []string) error {
	database, st, _, err := openStore(cmd)
	if err != nil {
		return exitError(1, err)
	}
	defer database.Close()

	key, value := args[0], args[1]
	switch key {
	case domain.PrefSyncEnabled:
		if value != "true" && value != "false" {
			return exitError(1, fmt.Errorf("sync_enabled must be true or false"))
		}
	case domain.PrefImportUnit:
		if err := domain.ValidateImportUnitPreference(value); err != nil {
			return exitError(1, err)
		}
	}

	if err := st.Prefs.Set(key, value); err != nil {
		return exitError(1, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
	return nil
}
