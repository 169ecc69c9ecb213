package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ldavies/fitsync/internal/domain"
	"github.com/ldavies/fitsync/internal/provider"
	"github.com/ldavies/fitsync/internal/syncer"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle against the provider",
	Long: `Sync fetches recent records from the provider export directory and imports
anything not yet in the store. Tombstoned and already-seen records are
skipped unless --force or --ids is given.`,
	RunE: runSync,
}

var (
	syncForce bool
	syncHours int
	syncDays  int
	syncIDs   string
)

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().BoolVar(&syncForce, "force", false, "Import without consulting seen keys or tombstones")
	syncCmd.Flags().IntVar(&syncHours, "hours", 0, "Fetch window in hours")
	syncCmd.Flags().IntVar(&syncDays, "days", 0, "Fetch window in days")
	syncCmd.Flags().StringVar(&syncIDs, "ids", "", "Comma-separated record IDs to force-import (marks them seen)")
}

func runSync(cmd *cobra.Command, args []string) error {
	database, st, cfg, err := openStore(cmd)
	if err != nil {
		return exitError(1, err)
	}
	defer database.Close()

	if cfg.ProviderDir == "" {
		return exitError(1, fmt.Errorf("no provider directory configured (set FITSYNC_PROVIDER_DIR)"))
	}
	source, err := provider.NewHealthDirSource(cfg.ProviderDir)
	if err != nil {
		if errors.Is(err, domain.ErrProviderUnavailable) {
			fmt.Fprintf(cmd.OutOrStdout(), "Provider unavailable (%s); nothing to sync\n", cfg.ProviderDir)
			return nil
		}
		if errors.Is(err, domain.ErrProviderPermission) {
			return exitError(1, fmt.Errorf("cannot read provider directory %s: fix its permissions and retry", cfg.ProviderDir))
		}
		return exitError(1, err)
	}
	defer source.Close()

	keys := openKeys(database, cfg)
	coord := syncer.New(source, st, keys)
	coord.Logf = func(format string, a ...interface{}) {
		fmt.Fprintf(os.Stderr, format+"\n", a...)
	}

	opts := syncer.Options{Force: syncForce}
	if syncHours > 0 {
		opts.Window = time.Duration(syncHours) * time.Hour
	} else if syncDays > 0 {
		opts.Window = time.Duration(syncDays) * 24 * time.Hour
	}
	if syncIDs != "" {
		for _, id := range strings.Split(syncIDs, ",") {
			if id = strings.TrimSpace(id); id != "" {
				opts.ExactIDs = append(opts.ExactIDs, id)
			}
		}
	}

	result := coord.Run(cmd.Context(), opts)
	if !result.OK() {
		return exitError(1, fmt.Errorf("sync failed: %s", result.Err))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d, skipped %d\n", result.Imported, result.Skipped)
	return nil
}
