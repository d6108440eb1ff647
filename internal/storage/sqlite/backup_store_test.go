package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/scrypster/fieldclone/internal/storage"
	"github.com/scrypster/fieldclone/pkg/types"
)

// openTestBackupStore opens a backup store over a fresh database.
func openTestBackupStore(t *testing.T) *BackupStore {
	t.Helper()

	store := openTestStore(t)
	backups, err := NewBackupStore(store.DB())
	if err != nil {
		t.Fatalf("failed to open backup store: %v", err)
	}

	return backups
}

// testRecord builds a backup record with a deterministic ID suffix.
func testRecord(id string, target int64, createdAt time.Time) *types.BackupRecord {
	return &types.BackupRecord{
		BackupID:       id,
		TargetEntityID: target,
		ActorID:        1,
		CreatedAt:      createdAt.UTC(),
		Fields: map[string]types.FieldSnapshot{
			"field_gallery": {Value: []any{float64(5)}, Label: "Gallery", Type: types.FieldAttachmentList},
		},
	}
}

// TestBackupInsertGet tests the snapshot blob round trip.
func TestBackupInsertGet(t *testing.T) {
	backups := openTestBackupStore(t)
	ctx := context.Background()

	record := testRecord("bk_00000000000000000001_deadbeef", 7, time.Now())
	if err := backups.Insert(ctx, record); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}

	got, err := backups.Get(ctx, record.BackupID)
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}

	if got.TargetEntityID != 7 || got.ActorID != 1 {
		t.Errorf("unexpected record: %+v", got)
	}

	snap, ok := got.Fields["field_gallery"]
	if !ok {
		t.Fatal("snapshot field missing")
	}
	if snap.Label != "Gallery" || snap.Type != types.FieldAttachmentList {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	ids, ok := snap.Value.([]any)
	if !ok || len(ids) != 1 || ids[0] != float64(5) {
		t.Errorf("snapshot value not preserved bit-for-bit: %#v", snap.Value)
	}
}

// TestBackupGetNotFound tests the sentinel for unknown IDs.
func TestBackupGetNotFound(t *testing.T) {
	backups := openTestBackupStore(t)

	_, err := backups.Get(context.Background(), "bk_00000000000000000001_deadbeef")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// TestBackupDelete tests delete reporting whether a row existed.
func TestBackupDelete(t *testing.T) {
	backups := openTestBackupStore(t)
	ctx := context.Background()

	record := testRecord("bk_00000000000000000001_deadbeef", 7, time.Now())
	if err := backups.Insert(ctx, record); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}

	deleted, err := backups.Delete(ctx, record.BackupID)
	if err != nil || !deleted {
		t.Fatalf("expected delete to succeed, got deleted=%v err=%v", deleted, err)
	}

	deleted, err = backups.Delete(ctx, record.BackupID)
	if err != nil || deleted {
		t.Fatalf("expected second delete to be a no-op, got deleted=%v err=%v", deleted, err)
	}
}

// TestBackupListNewestFirst tests per-target listing order.
func TestBackupListNewestFirst(t *testing.T) {
	backups := openTestBackupStore(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		record := testRecord(
			fmt.Sprintf("bk_%020d_deadbeef", i+1),
			7,
			now.Add(time.Duration(i)*time.Minute),
		)
		if err := backups.Insert(ctx, record); err != nil {
			t.Fatalf("failed to insert: %v", err)
		}
	}
	// Different target, must not appear.
	if err := backups.Insert(ctx, testRecord("bk_00000000000000000009_deadbeef", 8, now)); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}

	records, err := backups.ListByTarget(ctx, 7)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].CreatedAt.After(records[i-1].CreatedAt) {
			t.Error("expected newest-first ordering")
		}
	}
}

// TestBackupDeleteOlderThan tests the age-based retention primitive.
func TestBackupDeleteOlderThan(t *testing.T) {
	backups := openTestBackupStore(t)
	ctx := context.Background()
	now := time.Now()

	old := testRecord("bk_00000000000000000001_deadbeef", 7, now.AddDate(0, 0, -31))
	fresh := testRecord("bk_00000000000000000002_deadbeef", 7, now)
	for _, r := range []*types.BackupRecord{old, fresh} {
		if err := backups.Insert(ctx, r); err != nil {
			t.Fatalf("failed to insert: %v", err)
		}
	}

	n, err := backups.DeleteOlderThan(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("failed to sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted, got %d", n)
	}

	if _, err := backups.Get(ctx, old.BackupID); !errors.Is(err, storage.ErrNotFound) {
		t.Error("expected old record gone")
	}
	if _, err := backups.Get(ctx, fresh.BackupID); err != nil {
		t.Errorf("expected fresh record kept: %v", err)
	}
}

// TestBackupDeleteOldestExcess tests the count-based retention primitive.
func TestBackupDeleteOldestExcess(t *testing.T) {
	backups := openTestBackupStore(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		record := testRecord(
			fmt.Sprintf("bk_%020d_deadbeef", i+1),
			7,
			now.Add(time.Duration(i)*time.Hour),
		)
		if err := backups.Insert(ctx, record); err != nil {
			t.Fatalf("failed to insert: %v", err)
		}
	}

	n, err := backups.DeleteOldestExcess(ctx, 2)
	if err != nil {
		t.Fatalf("failed to trim: %v", err)
	}
	if n != 1 {
		t.Errorf("expected exactly 1 deleted, got %d", n)
	}

	// The single oldest record is the one that went.
	if _, err := backups.Get(ctx, "bk_00000000000000000001_deadbeef"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("expected oldest record gone")
	}
	count, err := backups.CountAll(ctx)
	if err != nil || count != 2 {
		t.Errorf("expected 2 remaining, got %d (err=%v)", count, err)
	}
}
