package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/scrypster/fieldclone/internal/backup"
	"github.com/scrypster/fieldclone/internal/config"
	"github.com/scrypster/fieldclone/internal/engine"
	"github.com/scrypster/fieldclone/internal/resolver"
	"github.com/scrypster/fieldclone/internal/storage"
	"github.com/scrypster/fieldclone/internal/storage/postgres"
	"github.com/scrypster/fieldclone/internal/storage/sqlite"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd is the base command for FieldClone.
var rootCmd = &cobra.Command{
	Use:   "fieldclone",
	Short: "Field-level content cloning engine with snapshot backups",
	Long: `FieldClone copies schema-defined field values between entities that
share a schema: scalars, nested composites (repeaters, groups,
flexible layouts), and references revalidated against the target
context. Affected target values are snapshotted into restorable
backups with configurable retention before anything is overwritten.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(backupCmd)
}

// loadConfig loads configuration from the --config file when given,
// otherwise from environment variables.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadConfigFromFile(cfgFile)
	}
	return config.LoadConfig()
}

// app bundles the wired engine components shared by serve and the
// backup subcommands.
type app struct {
	cfg           *config.Config
	store         *sqlite.Store
	backupStore   storage.BackupStore
	walker        *engine.FieldSchemaWalker
	orchestrator  *engine.CloneOrchestrator
	backupService *backup.Service
}

// buildApp opens storage and wires the engine. Content always lives in
// the local SQLite store; the backup table follows the configured
// storage engine (sqlite shares the content database, postgres uses
// the configured DSN).
func buildApp(cfg *config.Config) (*app, error) {
	if err := os.MkdirAll(cfg.Storage.DataPath, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := sqlite.Open(filepath.Join(cfg.Storage.DataPath, "fieldclone.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	var backupStore storage.BackupStore
	switch cfg.Storage.Engine {
	case "postgres":
		backupStore, err = postgres.NewBackupStore(cfg.Storage.PostgresDSN)
	default:
		backupStore, err = sqlite.NewBackupStore(store.DB())
	}
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open backup store: %w", err)
	}

	walker, err := engine.NewFieldSchemaWalker(store, store, store)
	if err != nil {
		store.Close()
		return nil, err
	}

	transformer := engine.NewValueTransformer(resolver.New(store))

	var backupService *backup.Service
	orchestratorOpts := []engine.OrchestratorOption{
		engine.WithBackupFailurePolicy(engine.BackupFailurePolicy(cfg.Backup.FailurePolicy)),
	}

	if cfg.Backup.Enabled {
		backupService, err = backup.NewService(backupStore, store, walker, backup.RetentionPolicy{
			RetentionDays: cfg.Backup.RetentionDays,
			MaxCount:      cfg.Backup.MaxCount,
		})
		if err != nil {
			store.Close()
			return nil, err
		}
		orchestratorOpts = append(orchestratorOpts, engine.WithBackups(backupService))
	}

	orchestrator, err := engine.NewCloneOrchestrator(walker, transformer, store, store, orchestratorOpts...)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{
		cfg:           cfg,
		store:         store,
		backupStore:   backupStore,
		walker:        walker,
		orchestrator:  orchestrator,
		backupService: backupService,
	}, nil
}

// Close releases storage resources.
func (a *app) Close() {
	a.backupStore.Close()
	a.store.Close()
}
