// Package storage provides composable storage interfaces for the
// FieldClone engine.
//
// The storage layer is split into small, focused interfaces that can
// be implemented independently: the schema registry and value store
// belong to the host content system and are only read/written at
// field granularity, while the backup store is owned entirely by this
// engine.
package storage

import (
	"context"
	"time"

	"github.com/scrypster/fieldclone/pkg/types"
)

// SchemaRegistry resolves a schema ID to its ordered field groups.
// The engine only reads from it; schema authoring lives in the host.
type SchemaRegistry interface {
	// GetFieldGroups returns the schema's field groups in declaration
	// order. Returns ErrNotFound for an unknown schema ID.
	GetFieldGroups(ctx context.Context, schemaID string) ([]FieldGroup, error)
}

// ValueStore reads and writes individual field values on entities.
type ValueStore interface {
	// GetValue returns the value stored for (entityID, fieldKey).
	// The second result is false when no value is stored.
	GetValue(ctx context.Context, entityID int64, fieldKey string) (any, bool, error)

	// SetValue stores a value for (entityID, fieldKey), replacing any
	// existing value.
	SetValue(ctx context.Context, entityID int64, fieldKey string, value any) error

	// DeleteValue removes the stored value for (entityID, fieldKey).
	// Deleting an absent value is not an error.
	DeleteValue(ctx context.Context, entityID int64, fieldKey string) error
}

// EntityStore provides read-only entity and reference lookups. This is
// the surface reference revalidation runs against; it never writes.
type EntityStore interface {
	// GetEntity returns the entity with the given ID.
	// Returns ErrNotFound if it doesn't exist.
	GetEntity(ctx context.Context, id int64) (*types.Entity, error)

	// ListBySchema returns entities conforming to schemaID, excluding
	// excludeID when > 0. Used for source-candidate listings.
	ListBySchema(ctx context.Context, schemaID string, excludeID int64) ([]types.Entity, error)

	// EntityExists reports whether an entity with the given ID exists.
	EntityExists(ctx context.Context, id int64) (bool, error)

	// AttachmentExists reports whether id resolves to an
	// attachment-kind entity.
	AttachmentExists(ctx context.Context, id int64) (bool, error)

	// TermExists reports whether the taxonomy exists and termID
	// resolves to a term within it.
	TermExists(ctx context.Context, taxonomy string, termID int64) (bool, error)

	// UserExists reports whether a user with the given ID exists.
	UserExists(ctx context.Context, id int64) (bool, error)
}

// BackupStore persists point-in-time field snapshots. It provides
// storage primitives only; ID generation and retention policy live in
// the backup service.
type BackupStore interface {
	// Insert stores a new backup record.
	Insert(ctx context.Context, record *types.BackupRecord) error

	// Get retrieves a backup record by ID.
	// Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, backupID string) (*types.BackupRecord, error)

	// Delete removes a backup record by ID. The second result is false
	// when no record with that ID existed.
	Delete(ctx context.Context, backupID string) (bool, error)

	// ListByTarget returns all backup records for a target entity,
	// ordered newest first.
	ListByTarget(ctx context.Context, targetEntityID int64) ([]*types.BackupRecord, error)

	// DeleteOlderThan removes all records created before cutoff and
	// returns the number deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// CountAll returns the total number of stored records.
	CountAll(ctx context.Context) (int, error)

	// DeleteOldestExcess keeps the newest `keep` records and deletes
	// the rest, oldest first. Returns the number deleted.
	DeleteOldestExcess(ctx context.Context, keep int) (int, error)

	// Close releases any resources held by the store.
	Close() error
}
