// Package sqlite implements the FieldClone storage interfaces on
// SQLite using the modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/fieldclone/internal/storage"
	"github.com/scrypster/fieldclone/pkg/types"
)

// Schema is the embedded DDL for the content-side tables. Field group
// definitions and field values are stored as JSON blobs; the engine
// never queries into them server-side.
const Schema = `
CREATE TABLE IF NOT EXISTS schemas (
	schema_id TEXT PRIMARY KEY,
	groups    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	schema_id TEXT NOT NULL,
	kind      TEXT NOT NULL DEFAULT 'entity',
	title     TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_entities_schema ON entities(schema_id);

CREATE TABLE IF NOT EXISTS entity_values (
	entity_id INTEGER NOT NULL,
	field_key TEXT NOT NULL,
	value     TEXT NOT NULL,
	PRIMARY KEY (entity_id, field_key)
);

CREATE TABLE IF NOT EXISTS terms (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	taxonomy TEXT NOT NULL,
	name     TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_terms_taxonomy ON terms(taxonomy);

CREATE TABLE IF NOT EXISTS users (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL DEFAULT ''
);
`

// Store implements storage.SchemaRegistry, storage.ValueStore, and
// storage.EntityStore on a single SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens a SQLite database, configures WAL mode, and creates the
// content schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open
	// connection serialises writes and avoids SQLITE_BUSY errors under
	// concurrent load; WAL mode lets readers proceed alongside the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying connection so the backup store can share it.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RegisterSchema stores (or replaces) a schema's field groups. This is
// the ingestion surface for self-contained deployments; hosted
// deployments sync it from the host's field-group registry.
func (s *Store) RegisterSchema(ctx context.Context, schemaID string, groups []storage.FieldGroup) error {
	if schemaID == "" {
		return fmt.Errorf("%w: schema ID is required", storage.ErrInvalidInput)
	}

	blob, err := json.Marshal(groups)
	if err != nil {
		return fmt.Errorf("failed to marshal field groups: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO schemas (schema_id, groups)
		VALUES (?, ?)
		ON CONFLICT(schema_id) DO UPDATE SET groups = excluded.groups
	`, schemaID, string(blob))
	if err != nil {
		return fmt.Errorf("failed to store schema: %w", err)
	}

	return nil
}

// GetFieldGroups returns the schema's field groups in declaration order.
func (s *Store) GetFieldGroups(ctx context.Context, schemaID string) ([]storage.FieldGroup, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		"SELECT groups FROM schemas WHERE schema_id = ?", schemaID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: schema %q", storage.ErrNotFound, schemaID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load schema %q: %w", schemaID, err)
	}

	var groups []storage.FieldGroup
	if err := json.Unmarshal([]byte(blob), &groups); err != nil {
		return nil, fmt.Errorf("failed to unmarshal field groups for %q: %w", schemaID, err)
	}

	return groups, nil
}

// CreateEntity inserts an entity and returns its assigned ID.
func (s *Store) CreateEntity(ctx context.Context, schemaID, kind, title string) (int64, error) {
	if kind == "" {
		kind = types.KindEntity
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO entities (schema_id, kind, title) VALUES (?, ?, ?)",
		schemaID, kind, title)
	if err != nil {
		return 0, fmt.Errorf("failed to create entity: %w", err)
	}

	return res.LastInsertId()
}

// DeleteEntity removes an entity and all of its field values. Used by
// tests and by host sync when entities disappear.
func (s *Store) DeleteEntity(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM entity_values WHERE entity_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete entity values: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM entities WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	return nil
}

// GetEntity returns the entity with the given ID.
func (s *Store) GetEntity(ctx context.Context, id int64) (*types.Entity, error) {
	var e types.Entity
	err := s.db.QueryRowContext(ctx,
		"SELECT id, schema_id, kind, title FROM entities WHERE id = ?", id).
		Scan(&e.ID, &e.SchemaID, &e.Kind, &e.Title)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: entity %d", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load entity %d: %w", id, err)
	}
	return &e, nil
}

// ListBySchema returns entities conforming to schemaID, newest first,
// excluding excludeID when > 0.
func (s *Store) ListBySchema(ctx context.Context, schemaID string, excludeID int64) ([]types.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, schema_id, kind, title
		FROM entities
		WHERE schema_id = ? AND kind = ? AND id != ?
		ORDER BY id DESC
	`, schemaID, types.KindEntity, excludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	var entities []types.Entity
	for rows.Next() {
		var e types.Entity
		if err := rows.Scan(&e.ID, &e.SchemaID, &e.Kind, &e.Title); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, e)
	}

	return entities, rows.Err()
}

// EntityExists reports whether an entity with the given ID exists.
func (s *Store) EntityExists(ctx context.Context, id int64) (bool, error) {
	return s.exists(ctx, "SELECT 1 FROM entities WHERE id = ?", id)
}

// AttachmentExists reports whether id resolves to an attachment-kind entity.
func (s *Store) AttachmentExists(ctx context.Context, id int64) (bool, error) {
	return s.exists(ctx, "SELECT 1 FROM entities WHERE id = ? AND kind = ?", id, types.KindAttachment)
}

// TermExists reports whether termID resolves within the given taxonomy.
func (s *Store) TermExists(ctx context.Context, taxonomy string, termID int64) (bool, error) {
	return s.exists(ctx, "SELECT 1 FROM terms WHERE id = ? AND taxonomy = ?", termID, taxonomy)
}

// UserExists reports whether a user with the given ID exists.
func (s *Store) UserExists(ctx context.Context, id int64) (bool, error) {
	return s.exists(ctx, "SELECT 1 FROM users WHERE id = ?", id)
}

// CreateTerm inserts a taxonomy term and returns its assigned ID.
func (s *Store) CreateTerm(ctx context.Context, taxonomy, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO terms (taxonomy, name) VALUES (?, ?)", taxonomy, name)
	if err != nil {
		return 0, fmt.Errorf("failed to create term: %w", err)
	}
	return res.LastInsertId()
}

// CreateUser inserts a user and returns its assigned ID.
func (s *Store) CreateUser(ctx context.Context, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "INSERT INTO users (name) VALUES (?)", name)
	if err != nil {
		return 0, fmt.Errorf("failed to create user: %w", err)
	}
	return res.LastInsertId()
}

// GetValue returns the value stored for (entityID, fieldKey).
func (s *Store) GetValue(ctx context.Context, entityID int64, fieldKey string) (any, bool, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM entity_values WHERE entity_id = ? AND field_key = ?",
		entityID, fieldKey).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load value %d/%s: %w", entityID, fieldKey, err)
	}

	var value any
	if err := json.Unmarshal([]byte(blob), &value); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal value %d/%s: %w", entityID, fieldKey, err)
	}

	return value, true, nil
}

// SetValue stores a value for (entityID, fieldKey), replacing any
// existing value.
func (s *Store) SetValue(ctx context.Context, entityID int64, fieldKey string, value any) error {
	blob, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value %d/%s: %w", entityID, fieldKey, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entity_values (entity_id, field_key, value)
		VALUES (?, ?, ?)
		ON CONFLICT(entity_id, field_key) DO UPDATE SET value = excluded.value
	`, entityID, fieldKey, string(blob))
	if err != nil {
		return fmt.Errorf("failed to store value %d/%s: %w", entityID, fieldKey, err)
	}

	return nil
}

// DeleteValue removes the stored value for (entityID, fieldKey).
func (s *Store) DeleteValue(ctx context.Context, entityID int64, fieldKey string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM entity_values WHERE entity_id = ? AND field_key = ?",
		entityID, fieldKey)
	if err != nil {
		return fmt.Errorf("failed to delete value %d/%s: %w", entityID, fieldKey, err)
	}
	return nil
}

// exists runs an existence query returning at most one row.
func (s *Store) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("existence query failed: %w", err)
	}
	return true, nil
}
