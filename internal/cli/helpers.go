package cli

import (
	"fmt"

	"github.com/ldavies/fitsync/internal/config"
	"github.com/ldavies/fitsync/internal/db"
	"github.com/ldavies/fitsync/internal/keyset"
	"github.com/ldavies/fitsync/internal/store"
	"github.com/spf13/cobra"
)

// exitError returns an error that will cause the CLI to exit with the given code
func exitError(code int, err error) error {
	// For now, just return the error. We'll enhance this with proper exit codes later
	return err
}

// loadConfig loads configuration and applies the --db flag override.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dbPath := cmd.Flag("db").Value.String(); dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg, nil
}

// openStore opens the database, refuses to run against a stale schema, and
// wraps it in a store. The caller owns closing the database.
func openStore(cmd *cobra.Command) (*db.DB, *store.Store, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, pending, err := database.MigrationStatus()
	if err != nil {
		database.Close()
		return nil, nil, nil, fmt.Errorf("failed to check migrations: %w", err)
	}
	if len(pending) > 0 {
		err := database.RequiresMigrationError()
		database.Close()
		return nil, nil, nil, err
	}

	return database, store.New(database), cfg, nil
}

// openKeys builds the seen/deleted key sets backed by the database and the
// configured file mirror.
func openKeys(database *db.DB, cfg *config.Config) *keyset.Sets {
	return keyset.New(database.DB, keyset.NewFileMirror(cfg.MirrorPath))
}
