package main

import (
	"path/filepath"
	"testing"

	"github.com/scrypster/fieldclone/internal/config"
)

// TestBuildAppCreatesDataDir tests that wiring succeeds when the
// configured data directory does not exist yet.
func TestBuildAppCreatesDataDir(t *testing.T) {
	cfg, err := config.LoadConfig()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	cfg.Storage.DataPath = filepath.Join(t.TempDir(), "data")

	application, err := buildApp(cfg)
	if err != nil {
		t.Fatalf("failed to build app: %v", err)
	}
	defer application.Close()

	if application.orchestrator == nil || application.walker == nil {
		t.Error("expected the engine to be wired")
	}
	if application.backupService == nil {
		t.Error("expected backups enabled by default")
	}
}

// TestBuildAppBackupsDisabled tests wiring without the backup service.
func TestBuildAppBackupsDisabled(t *testing.T) {
	cfg, err := config.LoadConfig()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	cfg.Storage.DataPath = filepath.Join(t.TempDir(), "data")
	cfg.Backup.Enabled = false

	application, err := buildApp(cfg)
	if err != nil {
		t.Fatalf("failed to build app: %v", err)
	}
	defer application.Close()

	if application.backupService != nil {
		t.Error("expected no backup service when disabled")
	}
}
