package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FITSYNC_DB_PATH", "/tmp/env.db")
	t.Setenv("FITSYNC_PROVIDER_DIR", "/tmp/exports")
	t.Setenv("FITSYNC_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/env.db" {
		t.Errorf("DBPath = %q, want /tmp/env.db", cfg.DBPath)
	}
	if cfg.ProviderDir != "/tmp/exports" {
		t.Errorf("ProviderDir = %q, want /tmp/exports", cfg.ProviderDir)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestDBPathFileVariant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dbpath")
	if err := os.WriteFile(path, []byte("/tmp/from-file.db\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FITSYNC_DB_PATH", "")
	t.Setenv("FITSYNC_DB_PATH_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/from-file.db" {
		t.Errorf("DBPath = %q, want /tmp/from-file.db", cfg.DBPath)
	}
}

func TestDefaultsWhenUnset(t *testing.T) {
	t.Setenv("FITSYNC_DB_PATH", "")
	t.Setenv("FITSYNC_MIRROR_PATH", "")
	t.Setenv("FITSYNC_SNAPSHOT_PATH", "")

	// Run from an empty directory so no .env.local is found.
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(cwd) })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath == "" {
		t.Error("expected a default DBPath")
	}
	if cfg.MirrorPath == "" {
		t.Error("expected a default MirrorPath")
	}
	if cfg.SnapshotPath == "" {
		t.Error("expected a default SnapshotPath")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}
