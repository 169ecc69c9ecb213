package cli

import (
	"fmt"
	"os"

	"github.com/ldavies/fitsync/internal/db"
	"github.com/ldavies/fitsync/internal/domain"
	"github.com/ldavies/fitsync/internal/store"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the fitsync database",
	Long: `Initialize creates the SQLite database, runs migrations, and seeds the
baseline exercise and unit catalog used by provider imports.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

// seedUnits and seedExercises are the baseline catalog. Exercise names feed
// the activity-type matcher, so they stay lowercase singular forms.
var seedUnits = []struct {
	name string
	kind domain.UnitKind
}{
	{"minutes", domain.UnitKindTime},
	{"kilometers", domain.UnitKindDistance},
	{"reps", domain.UnitKindCount},
}

var seedExercises = []struct {
	name     string
	category string
	unit     string
}{
	{"walking", "cardio", "minutes"},
	{"running", "cardio", "kilometers"},
	{"cycling", "cardio", "kilometers"},
	{"swimming", "cardio", "minutes"},
	{"yoga", "flexibility", "minutes"},
	{"strength training", "strength", "minutes"},
	{"workout", "general", "minutes"},
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return exitError(1, err)
	}

	dbExists := false
	if _, err := os.Stat(cfg.DBPath); err == nil {
		dbExists = true
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return exitError(1, fmt.Errorf("failed to open database: %w", err))
	}
	defer database.Close()

	applied, err := database.MigrateWithInfo()
	if err != nil {
		return exitError(1, fmt.Errorf("failed to run migrations: %w", err))
	}
	for _, name := range applied {
		fmt.Fprintf(cmd.OutOrStdout(), "applied migration %s\n", name)
	}

	if err := seedCatalog(store.New(database)); err != nil {
		return exitError(1, fmt.Errorf("failed to seed catalog: %w", err))
	}

	if dbExists {
		fmt.Fprintf(cmd.OutOrStdout(), "Database at %s is up to date\n", cfg.DBPath)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Initialized database at %s\n", cfg.DBPath)
	}
	return nil
}

func seedCatalog(st *store.Store) error {
	units := make(map[string]string, len(seedUnits))
	for _, u := range seedUnits {
		unit, err := st.Catalog.EnsureUnit(u.name, u.kind)
		if err != nil {
			return err
		}
		units[u.name] = unit.UUID
	}
	for _, e := range seedExercises {
		unitUUID := units[e.unit]
		if _, err := st.Catalog.EnsureExercise(e.name, e.category, &unitUUID); err != nil {
			return err
		}
	}
	return nil
}
