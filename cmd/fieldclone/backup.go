package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var deleteAfterRestore bool

// backupCmd groups the backup maintenance subcommands.
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage field snapshots",
}

// backupListCmd lists the backups recorded for one entity.
var backupListCmd = &cobra.Command{
	Use:   "list <entity-id>",
	Short: "List backups for an entity, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entityID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || entityID <= 0 {
			return fmt.Errorf("invalid entity ID %q", args[0])
		}

		application, err := openBackupApp()
		if err != nil {
			return err
		}
		defer application.Close()

		records, err := application.backupService.List(cmd.Context(), entityID)
		if err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Printf("No backups for entity %d.\n", entityID)
			return nil
		}

		for _, record := range records {
			fmt.Printf("%s  created %s  actor %d  %d field(s)\n",
				record.BackupID,
				record.CreatedAt.Format("2006-01-02 15:04:05"),
				record.ActorID,
				len(record.Fields))
		}
		return nil
	},
}

// backupRestoreCmd replays a snapshot onto its target entity.
var backupRestoreCmd = &cobra.Command{
	Use:   "restore <backup-id>",
	Short: "Restore a backup onto its target entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openBackupApp()
		if err != nil {
			return err
		}
		defer application.Close()

		result, err := application.backupService.Restore(cmd.Context(), args[0], deleteAfterRestore)
		if err != nil {
			return err
		}

		fmt.Printf("Restored %d field(s).\n", len(result.RestoredFields))
		for _, msg := range result.Errors {
			fmt.Printf("  error: %s\n", msg)
		}
		if !result.Success {
			return fmt.Errorf("restore finished with %d error(s)", len(result.Errors))
		}
		return nil
	},
}

// backupDeleteCmd removes a single backup record.
var backupDeleteCmd = &cobra.Command{
	Use:   "delete <backup-id>",
	Short: "Delete a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openBackupApp()
		if err != nil {
			return err
		}
		defer application.Close()

		deleted, err := application.backupService.Delete(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("backup %s not found", args[0])
		}

		fmt.Printf("Deleted backup %s.\n", args[0])
		return nil
	},
}

// backupSweepCmd runs the retention sweep immediately.
var backupSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the retention sweep now",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openBackupApp()
		if err != nil {
			return err
		}
		defer application.Close()

		deleted, err := application.backupService.SweepRetention(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Retention sweep deleted %d backup(s).\n", deleted)
		return nil
	},
}

// openBackupApp builds the app and requires the backup subsystem to be
// enabled in the loaded configuration.
func openBackupApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	application, err := buildApp(cfg)
	if err != nil {
		return nil, err
	}

	if application.backupService == nil {
		application.Close()
		return nil, fmt.Errorf("backups are disabled in the configuration (set backup.enabled or FIELDCLONE_BACKUP_ENABLED)")
	}

	return application, nil
}

func init() {
	backupRestoreCmd.Flags().BoolVar(&deleteAfterRestore, "delete-after", false,
		"Delete the backup after a fully successful restore")

	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupDeleteCmd)
	backupCmd.AddCommand(backupSweepCmd)
}
