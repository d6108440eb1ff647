package types

import (
	"errors"
	"fmt"
	"time"
)

// CloneOptions controls how a clone operation treats existing values,
// backups, and reference revalidation.
type CloneOptions struct {
	// OverwriteExisting allows replacing fields that already hold a
	// value at the target. When false, such fields fail individually.
	OverwriteExisting bool `json:"overwrite_existing"`

	// CreateBackup snapshots the target's current values before any
	// mutation so the operation can be rolled back.
	CreateBackup bool `json:"create_backup"`

	// CopyReferences enables revalidation of reference fields
	// (attachments, entities, terms, users) against the host. When
	// false, reference IDs pass through unverified.
	CopyReferences bool `json:"copy_references"`

	// ValidateData enables required/format/bounds validation of
	// transformed values before they are written.
	ValidateData bool `json:"validate_data"`
}

// CloneRequest describes one clone operation: which fields to copy
// from the source entity onto the target entity, and how.
type CloneRequest struct {
	SourceEntityID int64        `json:"source_entity_id"`
	TargetEntityID int64        `json:"target_entity_id"`
	FieldKeys      []string     `json:"field_keys"`
	Options        CloneOptions `json:"options"`

	// ActorID identifies the caller for backup attribution and
	// capability checks.
	ActorID int64 `json:"actor_id"`
}

// Validate checks the request shape. Entity existence and schema
// equality are checked by the orchestrator against the store.
func (r *CloneRequest) Validate() error {
	if r.SourceEntityID <= 0 || r.TargetEntityID <= 0 {
		return errors.New("source and target entity IDs are required")
	}
	if r.SourceEntityID == r.TargetEntityID {
		return errors.New("source and target must be different entities")
	}
	if len(r.FieldKeys) == 0 {
		return errors.New("at least one field key is required")
	}
	return nil
}

// CloneOutcome is the per-field accounting for one clone operation.
// Every requested key ends up in exactly one of ClonedFields or Errors;
// warnings never affect Success.
type CloneOutcome struct {
	ClonedFields []string `json:"cloned_fields"`
	Errors       []string `json:"errors"`
	Warnings     []string `json:"warnings"`
	Success      bool     `json:"success"`

	// Summary is a human-readable counts message built by Summarize.
	Summary string `json:"summary"`
}

// Summarize recomputes Success and the counts message from the
// collected results.
func (o *CloneOutcome) Summarize() {
	o.Success = len(o.Errors) == 0
	o.Summary = fmt.Sprintf("%d field(s) cloned, %d error(s), %d warning(s)",
		len(o.ClonedFields), len(o.Errors), len(o.Warnings))
}

// StructuralStats describes the shape of a composite field's value.
type StructuralStats struct {
	// Rows is the number of repeater rows or flexible entries.
	Rows int `json:"rows"`

	// SubFields is the number of sub-field descriptors.
	SubFields int `json:"sub_fields"`

	// Layouts is the number of layout variants declared (flexible only).
	Layouts int `json:"layouts"`
}

// FieldReport describes one field's state on one entity: its
// descriptor, current value, and cloneability.
type FieldReport struct {
	Descriptor FieldDescriptor  `json:"descriptor"`
	Value      any              `json:"value,omitempty"`
	HasValue   bool             `json:"has_value"`
	Cloneable  bool             `json:"cloneable"`
	Stats      *StructuralStats `json:"stats,omitempty"`
}

// GroupReport is one field group with the reports of its fields, in
// schema order.
type GroupReport struct {
	Key    string        `json:"key"`
	Title  string        `json:"title"`
	Fields []FieldReport `json:"fields"`
}

// AvailableFieldsReport is the full field inventory for one entity,
// built on demand by the schema walker and cached per entity ID.
type AvailableFieldsReport struct {
	EntityID int64         `json:"entity_id"`
	Groups   []GroupReport `json:"groups"`

	// Fields indexes the group reports by field key.
	Fields map[string]*FieldReport `json:"-"`

	// Warnings collected while building the report (e.g. flexible
	// entries whose layout no longer exists in the schema).
	Warnings []string `json:"warnings,omitempty"`
}

// FieldStatistics summarizes an AvailableFieldsReport for UI display.
type FieldStatistics struct {
	TotalGroups      int `json:"total_groups"`
	TotalFields      int `json:"total_fields"`
	CloneableFields  int `json:"cloneable_fields"`
	RepeaterFields   int `json:"repeater_fields"`
	GroupFields      int `json:"group_fields"`
	FieldsWithValues int `json:"fields_with_values"`
}

// ConflictInfo identifies a selected field that already holds a value
// at the target. Conflicts are informational; they only become errors
// when overwriting is disabled.
type ConflictInfo struct {
	Key   string    `json:"key"`
	Label string    `json:"label"`
	Type  FieldType `json:"type"`
}

// SelectionAnalysis is the result of validating a field selection
// against source and target reports without mutating anything.
type SelectionAnalysis struct {
	ValidFields []string       `json:"valid_fields"`
	Conflicts   []ConflictInfo `json:"conflicts"`
	Warnings    []string       `json:"warnings"`

	// CanProceed is true when at least one selected field is valid.
	CanProceed bool `json:"can_proceed"`
}

// FieldSnapshot is one field's value at backup time, with enough
// descriptor context to present the backup without re-reading the schema.
type FieldSnapshot struct {
	Value any       `json:"value"`
	Label string    `json:"label"`
	Type  FieldType `json:"type"`
}

// BackupRecord is a point-in-time snapshot of a target entity's field
// values, taken before a clone mutates them. Records are immutable
// once created except for deletion.
type BackupRecord struct {
	// BackupID is unique and sorts by creation time.
	BackupID string `json:"backup_id"`

	TargetEntityID int64     `json:"target_entity_id"`
	ActorID        int64     `json:"actor_id"`
	CreatedAt      time.Time `json:"created_at"`

	// Fields maps field key to the snapshotted value.
	Fields map[string]FieldSnapshot `json:"fields"`
}

// RestoreResult is the per-field accounting for one backup restore.
type RestoreResult struct {
	Success        bool     `json:"success"`
	RestoredFields []string `json:"restored_fields"`
	Errors         []string `json:"errors"`
}
