package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ldavies/fitsync/internal/config"
	"github.com/ldavies/fitsync/internal/db"
	"github.com/ldavies/fitsync/internal/domain"
	"github.com/ldavies/fitsync/internal/keyset"
	"github.com/ldavies/fitsync/internal/provider"
	"github.com/ldavies/fitsync/internal/store"
	"github.com/ldavies/fitsync/internal/syncer"
)

// DaemonOptions configures the fitsyncd daemon.
type DaemonOptions struct {
	DBPath      string
	ProviderDir string
	Throttle    time.Duration
}

// RunDaemon starts the background sync loop: it reacts to provider export
// changes and fires throttled timer cycles until SIGINT or SIGTERM.
func RunDaemon(opts DaemonOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.DBPath != "" {
		cfg.DBPath = opts.DBPath
	}
	if opts.ProviderDir != "" {
		cfg.ProviderDir = opts.ProviderDir
	}
	if cfg.ProviderDir == "" {
		return fmt.Errorf("no provider directory configured (set FITSYNC_PROVIDER_DIR)")
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	_, pending, err := database.MigrationStatus()
	if err != nil {
		return fmt.Errorf("failed to check migration status: %w", err)
	}
	if len(pending) > 0 {
		return database.RequiresMigrationError()
	}

	source, err := provider.NewHealthDirSource(cfg.ProviderDir)
	if err != nil {
		if errors.Is(err, domain.ErrProviderUnavailable) {
			return fmt.Errorf("provider directory %s does not exist", cfg.ProviderDir)
		}
		return err
	}
	defer source.Close()

	st := store.New(database)
	keys := keyset.New(database.DB, keyset.NewFileMirror(cfg.MirrorPath))
	coord := syncer.New(source, st, keys)
	if opts.Throttle > 0 {
		coord.Throttle = opts.Throttle
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coord.Start(ctx)
	log.Printf("fitsyncd watching %s (db: %s)", cfg.ProviderDir, cfg.DBPath)

	// Run one cycle up front so a fresh daemon does not wait for the first
	// change event.
	result := coord.Run(ctx, syncer.Options{})
	if !result.OK() {
		log.Printf("initial sync failed: %s", result.Err)
	} else {
		log.Printf("initial sync: %d imported, %d skipped", result.Imported, result.Skipped)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Printf("shutting down")
	cancel()
	coord.Stop()
	return nil
}
