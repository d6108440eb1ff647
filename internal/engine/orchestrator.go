package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/scrypster/fieldclone/internal/storage"
	"github.com/scrypster/fieldclone/pkg/types"
)

// CapabilityChecker is consulted before any mutation. Hosted
// deployments delegate this to the host's permission system.
type CapabilityChecker interface {
	// CanEdit reports whether the actor may edit the given entity.
	CanEdit(ctx context.Context, actorID, entityID int64) (bool, error)
}

// AllowAll is the default capability checker for self-contained
// deployments without a host permission system.
type AllowAll struct{}

// CanEdit always permits the edit.
func (AllowAll) CanEdit(ctx context.Context, actorID, entityID int64) (bool, error) {
	return true, nil
}

// Observer receives clone lifecycle callbacks. It replaces the global
// before/after event hooks of host plugin systems with an explicit,
// injected dependency.
type Observer interface {
	OnBeforeClone(req *types.CloneRequest)
	OnAfterClone(req *types.CloneRequest, outcome *types.CloneOutcome)
}

// BackupCreator is the slice of the backup service the orchestrator
// needs. The backup service itself sweeps retention after each create.
type BackupCreator interface {
	// Create snapshots current target values for the given keys.
	// Returns an empty ID when no selected field has a value.
	Create(ctx context.Context, targetEntityID int64, fieldKeys []string, actorID int64) (string, error)
}

// BackupFailurePolicy selects how a failed pre-clone snapshot is handled.
type BackupFailurePolicy string

const (
	// PolicyAbort fails the whole clone when the backup cannot be
	// written. This is the default: overwriting without a safety net is
	// the more severe failure.
	PolicyAbort BackupFailurePolicy = "abort"

	// PolicyProceed logs the backup failure and clones anyway.
	PolicyProceed BackupFailurePolicy = "proceed"
)

// CloneOrchestrator is the top-level entry point for clone operations.
// Each call is a single synchronous pass: validate, backup, per-field
// loop, aggregate. There is no persistent state between calls.
type CloneOrchestrator struct {
	walker      *FieldSchemaWalker
	transformer *ValueTransformer
	analyzer    *ConflictAnalyzer
	values      storage.ValueStore
	entities    storage.EntityStore

	backups      BackupCreator
	caps         CapabilityChecker
	observer     Observer
	backupPolicy BackupFailurePolicy
}

// OrchestratorOption configures a CloneOrchestrator.
type OrchestratorOption func(*CloneOrchestrator)

// WithBackups injects the backup service used for pre-clone snapshots.
func WithBackups(b BackupCreator) OrchestratorOption {
	return func(o *CloneOrchestrator) { o.backups = b }
}

// WithCapabilityChecker injects the host permission check.
func WithCapabilityChecker(c CapabilityChecker) OrchestratorOption {
	return func(o *CloneOrchestrator) { o.caps = c }
}

// WithObserver injects clone lifecycle callbacks.
func WithObserver(obs Observer) OrchestratorOption {
	return func(o *CloneOrchestrator) { o.observer = obs }
}

// WithBackupFailurePolicy overrides the default abort-on-backup-failure
// behavior.
func WithBackupFailurePolicy(p BackupFailurePolicy) OrchestratorOption {
	return func(o *CloneOrchestrator) { o.backupPolicy = p }
}

// NewCloneOrchestrator creates an orchestrator over the given
// collaborators.
func NewCloneOrchestrator(walker *FieldSchemaWalker, transformer *ValueTransformer, values storage.ValueStore, entities storage.EntityStore, opts ...OrchestratorOption) (*CloneOrchestrator, error) {
	if walker == nil || transformer == nil || values == nil || entities == nil {
		return nil, fmt.Errorf("%w: walker, transformer, value store, and entity store are required", storage.ErrInvalidInput)
	}

	o := &CloneOrchestrator{
		walker:       walker,
		transformer:  transformer,
		analyzer:     NewConflictAnalyzer(),
		values:       values,
		entities:     entities,
		caps:         AllowAll{},
		backupPolicy: PolicyAbort,
	}
	for _, opt := range opts {
		opt(o)
	}

	return o, nil
}

// Walker exposes the schema walker for read-only callers (preview,
// statistics).
func (o *CloneOrchestrator) Walker() *FieldSchemaWalker {
	return o.walker
}

// CloneFields copies the selected fields from source to target.
//
// Request-level failures (missing entities, schema mismatch, missing
// capability, failed backup under the abort policy) come back as a
// single error inside the outcome with Success false and nothing
// mutated. Per-field failures are collected and never abort the loop:
// every requested key ends up in exactly one of ClonedFields or
// Errors. The returned error is non-nil only when no outcome could be
// produced at all.
func (o *CloneOrchestrator) CloneFields(ctx context.Context, req *types.CloneRequest) (*types.CloneOutcome, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request is required", storage.ErrInvalidInput)
	}

	if err := req.Validate(); err != nil {
		return fatalOutcome(err.Error()), nil
	}

	source, err := o.entities.GetEntity(ctx, req.SourceEntityID)
	if err != nil {
		return fatalOutcome(fmt.Sprintf("source entity %d not found", req.SourceEntityID)), nil
	}

	target, err := o.entities.GetEntity(ctx, req.TargetEntityID)
	if err != nil {
		return fatalOutcome(fmt.Sprintf("target entity %d not found", req.TargetEntityID)), nil
	}

	if source.SchemaID != target.SchemaID {
		return fatalOutcome(fmt.Sprintf("schema mismatch: source is %q, target is %q",
			source.SchemaID, target.SchemaID)), nil
	}

	allowed, err := o.caps.CanEdit(ctx, req.ActorID, req.TargetEntityID)
	if err != nil {
		return nil, fmt.Errorf("capability check failed: %w", err)
	}
	if !allowed {
		return fatalOutcome("insufficient permissions to edit target entity"), nil
	}

	if o.observer != nil {
		o.observer.OnBeforeClone(req)
	}

	if req.Options.CreateBackup {
		if err := o.createBackup(ctx, req); err != nil {
			return fatalOutcome(err.Error()), nil
		}
	}

	sourceReport, err := o.walker.AvailableFields(ctx, req.SourceEntityID)
	if err != nil {
		return nil, fmt.Errorf("failed to read source fields: %w", err)
	}

	outcome := &types.CloneOutcome{}

	// Per-field loop: caller-supplied order, no re-sorting, no aborts.
	for _, key := range req.FieldKeys {
		sourceField, ok := sourceReport.Fields[key]
		if !ok {
			outcome.Errors = append(outcome.Errors,
				fmt.Sprintf("field %s not found in source", key))
			continue
		}

		if !sourceField.Cloneable {
			outcome.Errors = append(outcome.Errors,
				fmt.Sprintf("field %s is not cloneable", key))
			continue
		}

		existing, hasExisting, err := o.values.GetValue(ctx, req.TargetEntityID, key)
		if err != nil {
			outcome.Errors = append(outcome.Errors,
				fmt.Sprintf("field %s: failed to read target value: %v", key, err))
			continue
		}
		if hasExisting && !types.IsEmptyValue(existing) && !req.Options.OverwriteExisting {
			outcome.Errors = append(outcome.Errors,
				fmt.Sprintf("field %s already has a value and overwrite is disabled", key))
			continue
		}

		value, warnings, err := o.transformer.Transform(ctx, sourceField.Value, &sourceField.Descriptor, req.Options)
		if err != nil {
			outcome.Errors = append(outcome.Errors,
				fmt.Sprintf("field %s: %v", key, err))
			continue
		}

		if req.Options.ValidateData {
			if err := types.ValidateValue(value, &sourceField.Descriptor); err != nil {
				outcome.Errors = append(outcome.Errors,
					fmt.Sprintf("field %s: %v", key, err))
				continue
			}
		}

		if err := o.values.SetValue(ctx, req.TargetEntityID, key, value); err != nil {
			outcome.Errors = append(outcome.Errors,
				fmt.Sprintf("field %s: failed to write: %v", key, err))
			continue
		}

		outcome.ClonedFields = append(outcome.ClonedFields, key)
		outcome.Warnings = append(outcome.Warnings, warnings...)
	}

	outcome.Summarize()

	// Invalidate synchronously so a read-after-clone in the same
	// process sees fresh data.
	o.walker.Invalidate(req.TargetEntityID)

	if o.observer != nil {
		o.observer.OnAfterClone(req, outcome)
	}

	return outcome, nil
}

// ValidateSelection analyzes the selection against both entities
// without mutating anything.
func (o *CloneOrchestrator) ValidateSelection(ctx context.Context, sourceEntityID, targetEntityID int64, fieldKeys []string) (*types.SelectionAnalysis, error) {
	sourceReport, err := o.walker.AvailableFields(ctx, sourceEntityID)
	if err != nil {
		return nil, fmt.Errorf("failed to read source fields: %w", err)
	}

	targetReport, err := o.walker.AvailableFields(ctx, targetEntityID)
	if err != nil {
		return nil, fmt.Errorf("failed to read target fields: %w", err)
	}

	return o.analyzer.Analyze(sourceReport, targetReport, fieldKeys), nil
}

// createBackup snapshots the target before mutation, honoring the
// configured failure policy.
func (o *CloneOrchestrator) createBackup(ctx context.Context, req *types.CloneRequest) error {
	if o.backups == nil {
		if o.backupPolicy == PolicyProceed {
			log.Printf("clone %d->%d: backup requested but no backup store configured, proceeding",
				req.SourceEntityID, req.TargetEntityID)
			return nil
		}
		return fmt.Errorf("backup requested but no backup store is configured")
	}

	backupID, err := o.backups.Create(ctx, req.TargetEntityID, req.FieldKeys, req.ActorID)
	if err != nil {
		if o.backupPolicy == PolicyProceed {
			log.Printf("clone %d->%d: backup failed (%v), proceeding without a safety net",
				req.SourceEntityID, req.TargetEntityID, err)
			return nil
		}
		return fmt.Errorf("backup failed, aborting clone: %v", err)
	}

	if backupID != "" {
		log.Printf("clone %d->%d: created backup %s", req.SourceEntityID, req.TargetEntityID, backupID)
	}

	return nil
}

// fatalOutcome builds the outcome for a request-level failure: one
// error, nothing cloned, nothing mutated.
func fatalOutcome(msg string) *types.CloneOutcome {
	outcome := &types.CloneOutcome{Errors: []string{msg}}
	outcome.Summarize()
	return outcome
}
