package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/scrypster/fieldclone/internal/storage"
	"github.com/scrypster/fieldclone/pkg/types"
)

// backupSchema is the DDL for the backup table. The field snapshot is
// one opaque JSON blob; secondary indexes support per-target listing
// and the two retention queries.
const backupSchema = `
CREATE TABLE IF NOT EXISTS field_backups (
	backup_id        TEXT PRIMARY KEY,
	target_entity_id INTEGER NOT NULL,
	actor_id         INTEGER NOT NULL,
	created_at       TIMESTAMP NOT NULL,
	snapshot         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_field_backups_target ON field_backups(target_entity_id);
CREATE INDEX IF NOT EXISTS idx_field_backups_created ON field_backups(created_at);
`

// BackupStore implements storage.BackupStore on SQLite. It shares the
// database connection with the content Store.
type BackupStore struct {
	db *sql.DB
}

// NewBackupStore creates the backup table if needed and returns a
// store over the given connection.
func NewBackupStore(db *sql.DB) (*BackupStore, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database connection is required", storage.ErrInvalidInput)
	}

	if _, err := db.Exec(backupSchema); err != nil {
		return nil, fmt.Errorf("failed to create backup schema: %w", err)
	}

	return &BackupStore{db: db}, nil
}

// Insert stores a new backup record.
func (s *BackupStore) Insert(ctx context.Context, record *types.BackupRecord) error {
	if record == nil || record.BackupID == "" {
		return fmt.Errorf("%w: backup record with ID is required", storage.ErrInvalidInput)
	}

	snapshot, err := json.Marshal(record.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO field_backups (backup_id, target_entity_id, actor_id, created_at, snapshot)
		VALUES (?, ?, ?, ?, ?)
	`, record.BackupID, record.TargetEntityID, record.ActorID,
		record.CreatedAt.UTC().Format(time.RFC3339Nano), string(snapshot))
	if err != nil {
		return fmt.Errorf("failed to insert backup %s: %w", record.BackupID, err)
	}

	return nil
}

// Get retrieves a backup record by ID. The read runs inside a
// transaction so a concurrent delete never yields a half-read record.
func (s *BackupStore) Get(ctx context.Context, backupID string) (*types.BackupRecord, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback()

	record, err := scanBackup(tx.QueryRowContext(ctx, `
		SELECT backup_id, target_entity_id, actor_id, created_at, snapshot
		FROM field_backups WHERE backup_id = ?
	`, backupID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: backup %s", storage.ErrNotFound, backupID)
	}
	if err != nil {
		return nil, err
	}

	return record, tx.Commit()
}

// Delete removes a backup record by ID.
func (s *BackupStore) Delete(ctx context.Context, backupID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM field_backups WHERE backup_id = ?", backupID)
	if err != nil {
		return false, fmt.Errorf("failed to delete backup %s: %w", backupID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return n > 0, nil
}

// ListByTarget returns all backup records for a target entity, newest first.
func (s *BackupStore) ListByTarget(ctx context.Context, targetEntityID int64) ([]*types.BackupRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT backup_id, target_entity_id, actor_id, created_at, snapshot
		FROM field_backups
		WHERE target_entity_id = ?
		ORDER BY created_at DESC, backup_id DESC
	`, targetEntityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	defer rows.Close()

	var records []*types.BackupRecord
	for rows.Next() {
		record, err := scanBackup(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// DeleteOlderThan removes all records created before cutoff.
func (s *BackupStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM field_backups WHERE created_at < ?",
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired backups: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return int(n), nil
}

// CountAll returns the total number of stored records.
func (s *BackupStore) CountAll(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM field_backups").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count backups: %w", err)
	}
	return n, nil
}

// DeleteOldestExcess keeps the newest `keep` records and deletes the
// rest, oldest first.
func (s *BackupStore) DeleteOldestExcess(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM field_backups WHERE backup_id IN (
			SELECT backup_id FROM field_backups
			ORDER BY created_at DESC, backup_id DESC
			LIMIT -1 OFFSET ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to delete excess backups: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return int(n), nil
}

// Close is a no-op; the connection is owned by the content Store.
func (s *BackupStore) Close() error {
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanBackup reads one backup row, decoding the snapshot blob and the
// RFC3339 creation timestamp.
func scanBackup(row rowScanner) (*types.BackupRecord, error) {
	var (
		record    types.BackupRecord
		createdAt string
		snapshot  string
	)

	err := row.Scan(&record.BackupID, &record.TargetEntityID, &record.ActorID, &createdAt, &snapshot)
	if err != nil {
		return nil, err
	}

	record.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse backup timestamp: %w", err)
	}

	if err := json.Unmarshal([]byte(snapshot), &record.Fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &record, nil
}
