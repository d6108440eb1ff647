package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// valueSchema holds per-entity field values as JSONB, mirroring the
// SQLite layout.
const valueSchema = `
CREATE TABLE IF NOT EXISTS entity_values (
	entity_id BIGINT NOT NULL,
	field_key TEXT NOT NULL,
	value     JSONB NOT NULL,
	PRIMARY KEY (entity_id, field_key)
);
`

// ValueStore implements storage.ValueStore on PostgreSQL.
type ValueStore struct {
	db *sql.DB
}

// NewValueStore ensures the value table exists over the given connection.
func NewValueStore(db *sql.DB) (*ValueStore, error) {
	if _, err := db.Exec(valueSchema); err != nil {
		return nil, fmt.Errorf("failed to create value schema: %w", err)
	}
	return &ValueStore{db: db}, nil
}

// GetValue returns the value stored for (entityID, fieldKey).
func (s *ValueStore) GetValue(ctx context.Context, entityID int64, fieldKey string) (any, bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM entity_values WHERE entity_id = $1 AND field_key = $2",
		entityID, fieldKey).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load value %d/%s: %w", entityID, fieldKey, err)
	}

	var value any
	if err := json.Unmarshal(blob, &value); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal value %d/%s: %w", entityID, fieldKey, err)
	}

	return value, true, nil
}

// SetValue stores a value for (entityID, fieldKey), replacing any
// existing value.
func (s *ValueStore) SetValue(ctx context.Context, entityID int64, fieldKey string, value any) error {
	blob, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value %d/%s: %w", entityID, fieldKey, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entity_values (entity_id, field_key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (entity_id, field_key) DO UPDATE SET value = excluded.value
	`, entityID, fieldKey, blob)
	if err != nil {
		return fmt.Errorf("failed to store value %d/%s: %w", entityID, fieldKey, err)
	}

	return nil
}

// DeleteValue removes the stored value for (entityID, fieldKey).
func (s *ValueStore) DeleteValue(ctx context.Context, entityID int64, fieldKey string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM entity_values WHERE entity_id = $1 AND field_key = $2",
		entityID, fieldKey)
	if err != nil {
		return fmt.Errorf("failed to delete value %d/%s: %w", entityID, fieldKey, err)
	}
	return nil
}
