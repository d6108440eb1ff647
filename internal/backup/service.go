// Package backup provides point-in-time field snapshots with
// restore and a two-rule retention sweep (age-based and count-based).
//
// A backup is created before a clone mutates its target and captures
// the target's current values, never the source's. Restore is a
// trusted verbatim replay: values are written back exactly as
// snapshotted, with no transformation.
package backup

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/fieldclone/internal/storage"
	"github.com/scrypster/fieldclone/pkg/types"
)

// backupIDPattern matches generated backup IDs: a fixed-width
// nanosecond timestamp (lexically sortable by creation time) plus an
// 8-hex-char entropy suffix against concurrent-create collisions.
var backupIDPattern = regexp.MustCompile(`^bk_\d{20}_[0-9a-f]{8}$`)

// RetentionPolicy holds the two independent retention rules. A zero
// value disables the corresponding rule.
type RetentionPolicy struct {
	// RetentionDays deletes records older than this many days.
	RetentionDays int

	// MaxCount deletes the oldest records beyond this total.
	MaxCount int
}

// TargetReporter is the slice of the schema walker the backup service
// uses: field reports for snapshotting, cache invalidation after
// restore writes.
type TargetReporter interface {
	AvailableFields(ctx context.Context, entityID int64) (*types.AvailableFieldsReport, error)
	Invalidate(entityID int64)
}

// Service implements backup create/restore/delete/list and the
// retention sweep over a storage.BackupStore.
type Service struct {
	store    storage.BackupStore
	values   storage.ValueStore
	reporter TargetReporter
	policy   RetentionPolicy

	// now is swappable for retention tests.
	now func() time.Time
}

// NewService creates a backup service.
func NewService(store storage.BackupStore, values storage.ValueStore, reporter TargetReporter, policy RetentionPolicy) (*Service, error) {
	if store == nil || values == nil || reporter == nil {
		return nil, fmt.Errorf("%w: backup store, value store, and reporter are required", storage.ErrInvalidInput)
	}

	return &Service{
		store:    store,
		values:   values,
		reporter: reporter,
		policy:   policy,
		now:      time.Now,
	}, nil
}

// ValidBackupID reports whether id matches the generated ID format.
// Malformed IDs are rejected before any lookup.
func ValidBackupID(id string) bool {
	return backupIDPattern.MatchString(id)
}

// newBackupID generates a unique, creation-time-sortable backup ID.
func (s *Service) newBackupID() string {
	u := uuid.New()
	return fmt.Sprintf("bk_%020d_%x", s.now().UnixNano(), u[:4])
}

// Create snapshots the target's current values for every selected key
// that has one. Returns an empty ID (and no record) when nothing has a
// value. Every successful create runs the retention sweep: each insert
// changes the record count, so both rules re-apply immediately.
func (s *Service) Create(ctx context.Context, targetEntityID int64, fieldKeys []string, actorID int64) (string, error) {
	report, err := s.reporter.AvailableFields(ctx, targetEntityID)
	if err != nil {
		return "", fmt.Errorf("failed to read target fields: %w", err)
	}

	snapshots := make(map[string]types.FieldSnapshot)
	for _, key := range fieldKeys {
		fr, ok := report.Fields[key]
		if !ok || !fr.HasValue {
			continue
		}
		snapshots[key] = types.FieldSnapshot{
			Value: fr.Value,
			Label: fr.Descriptor.Label,
			Type:  fr.Descriptor.Type,
		}
	}

	if len(snapshots) == 0 {
		return "", nil
	}

	record := &types.BackupRecord{
		BackupID:       s.newBackupID(),
		TargetEntityID: targetEntityID,
		ActorID:        actorID,
		CreatedAt:      s.now().UTC(),
		Fields:         snapshots,
	}

	if err := s.store.Insert(ctx, record); err != nil {
		return "", fmt.Errorf("failed to persist backup: %w", err)
	}

	s.sweepAfterCreate(ctx)
	return record.BackupID, nil
}

// Restore writes every snapshotted field back to the target verbatim.
// Per-field write failures are collected without aborting the
// remaining fields. The record is deleted afterward only when
// deleteAfter is set and every field restored cleanly.
func (s *Service) Restore(ctx context.Context, backupID string, deleteAfter bool) (*types.RestoreResult, error) {
	if !ValidBackupID(backupID) {
		return nil, fmt.Errorf("%w: malformed backup ID %q", storage.ErrInvalidInput, backupID)
	}

	record, err := s.store.Get(ctx, backupID)
	if err != nil {
		return nil, err
	}

	// Fixed key order so per-field error output is deterministic.
	keys := make([]string, 0, len(record.Fields))
	for key := range record.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := &types.RestoreResult{}
	for _, key := range keys {
		if err := s.values.SetValue(ctx, record.TargetEntityID, key, record.Fields[key].Value); err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("field %s: failed to restore: %v", key, err))
			continue
		}
		result.RestoredFields = append(result.RestoredFields, key)
	}
	result.Success = len(result.Errors) == 0

	s.reporter.Invalidate(record.TargetEntityID)

	if deleteAfter && result.Success {
		if _, err := s.store.Delete(ctx, backupID); err != nil {
			log.Printf("backup: restored %s but failed to delete it: %v", backupID, err)
		}
	}

	return result, nil
}

// Delete removes a backup record. The first result is false when no
// record with that ID existed.
func (s *Service) Delete(ctx context.Context, backupID string) (bool, error) {
	if !ValidBackupID(backupID) {
		return false, fmt.Errorf("%w: malformed backup ID %q", storage.ErrInvalidInput, backupID)
	}
	return s.store.Delete(ctx, backupID)
}

// List returns all backups for a target entity, newest first.
func (s *Service) List(ctx context.Context, targetEntityID int64) ([]*types.BackupRecord, error) {
	return s.store.ListByTarget(ctx, targetEntityID)
}

// sweepAfterCreate runs the retention sweep. Sweep failures are
// logged, never surfaced to the caller of Create: the snapshot itself
// succeeded.
func (s *Service) sweepAfterCreate(ctx context.Context) {
	if _, err := s.SweepRetention(ctx); err != nil {
		log.Printf("backup: retention sweep failed: %v", err)
	}
}
