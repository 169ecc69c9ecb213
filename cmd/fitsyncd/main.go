package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ldavies/fitsync/internal/cli"
)

func main() {
	providerDir := flag.String("provider-dir", os.Getenv("FITSYNC_PROVIDER_DIR"), "Directory of provider export files to watch")
	dbPath := flag.String("db", "", "Database path override (defaults to config)")
	throttle := flag.Duration("throttle", 0, "Minimum gap between timer-driven sync cycles")
	flag.Parse()

	opts := cli.DaemonOptions{
		DBPath:      *dbPath,
		ProviderDir: *providerDir,
		Throttle:    *throttle,
	}

	if err := cli.RunDaemon(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
