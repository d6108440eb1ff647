// Package postgres implements the FieldClone backup and value stores
// on PostgreSQL for deployments where content lives in Postgres.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/scrypster/fieldclone/internal/storage"
	"github.com/scrypster/fieldclone/pkg/types"
)

// backupSchema mirrors the SQLite layout: one append-mostly table with
// secondary indexes for per-target listing and the retention queries.
const backupSchema = `
CREATE TABLE IF NOT EXISTS field_backups (
	backup_id        TEXT PRIMARY KEY,
	target_entity_id BIGINT NOT NULL,
	actor_id         BIGINT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	snapshot         JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_field_backups_target ON field_backups(target_entity_id);
CREATE INDEX IF NOT EXISTS idx_field_backups_created ON field_backups(created_at);
`

// BackupStore implements storage.BackupStore on PostgreSQL.
type BackupStore struct {
	db *sql.DB
}

// NewBackupStore connects to Postgres with the given DSN and ensures
// the backup table exists.
func NewBackupStore(dsn string) (*BackupStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if _, err := db.Exec(backupSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create backup schema: %w", err)
	}

	return &BackupStore{db: db}, nil
}

// NewBackupStoreWithDB wraps an existing connection (used by tests and
// by deployments that pool connections at a higher level).
func NewBackupStoreWithDB(db *sql.DB) (*BackupStore, error) {
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
		VALUES ($1, $2, $3, $4, $5)
	`, record.BackupID, record.TargetEntityID, record.ActorID, record.CreatedAt.UTC(), snapshot)
	if err != nil {
		return fmt.Errorf("failed to insert backup %s: %w", record.BackupID, err)
	}

	return nil
}

// Get retrieves a backup record by ID. Row-level locking is not
// needed: the single-row SELECT is read-committed, so a concurrent
// delete either happens before (not found) or after (full record).
func (s *BackupStore) Get(ctx context.Context, backupID string) (*types.BackupRecord, error) {
	var (
		record   types.BackupRecord
		snapshot []byte
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT backup_id, target_entity_id, actor_id, created_at, snapshot
		FROM field_backups WHERE backup_id = $1
	`, backupID).Scan(&record.BackupID, &record.TargetEntityID, &record.ActorID,
		&record.CreatedAt, &snapshot)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: backup %s", storage.ErrNotFound, backupID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load backup %s: %w", backupID, err)
	}

	if err := json.Unmarshal(snapshot, &record.Fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &record, nil
}

// Delete removes a backup record by ID.
func (s *BackupStore) Delete(ctx context.Context, backupID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM field_backups WHERE backup_id = $1", backupID)
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
		WHERE target_entity_id = $1
		ORDER BY created_at DESC, backup_id DESC
	`, targetEntityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	defer rows.Close()

	var records []*types.BackupRecord
	for rows.Next() {
		var (
			record   types.BackupRecord
			snapshot []byte
		)
		if err := rows.Scan(&record.BackupID, &record.TargetEntityID, &record.ActorID,
			&record.CreatedAt, &snapshot); err != nil {
			return nil, fmt.Errorf("failed to scan backup: %w", err)
		}
		if err := json.Unmarshal(snapshot, &record.Fields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
		records = append(records, &record)
	}

	return records, rows.Err()
}

// DeleteOlderThan removes all records created before cutoff.
func (s *BackupStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM field_backups WHERE created_at < $1", cutoff.UTC())
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
			ORDER BY created_at ASC, backup_id ASC
			LIMIT GREATEST((SELECT COUNT(*) FROM field_backups) - $1, 0)
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

// Close releases the database connection.
func (s *BackupStore) Close() error {
	return s.db.Close()
}
