// Package engine implements the field-cloning core: the schema
// walker, the value transformer, conflict analysis, and the clone
// orchestrator that ties them together.
package engine

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/scrypster/fieldclone/internal/storage"
	"github.com/scrypster/fieldclone/pkg/types"
)

// reportCacheSize bounds the number of per-entity reports held in
// memory. Reports are cheap to rebuild; the cache only needs to cover
// the preview → validate → execute window of a single editing session.
const reportCacheSize = 128

// FieldSchemaWalker builds per-entity available-fields reports by
// walking the entity's schema and resolving each descriptor's current
// value. Reports are cached per entity ID; every write to an entity's
// fields must invalidate its cache entry synchronously.
type FieldSchemaWalker struct {
	schemas  storage.SchemaRegistry
	values   storage.ValueStore
	entities storage.EntityStore
	cache    *lru.Cache[int64, *types.AvailableFieldsReport]
}

// NewFieldSchemaWalker creates a walker over the given stores.
func NewFieldSchemaWalker(schemas storage.SchemaRegistry, values storage.ValueStore, entities storage.EntityStore) (*FieldSchemaWalker, error) {
	if schemas == nil || values == nil || entities == nil {
		return nil, fmt.Errorf("%w: schema registry, value store, and entity store are required", storage.ErrInvalidInput)
	}

	cache, err := lru.New[int64, *types.AvailableFieldsReport](reportCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create report cache: %w", err)
	}

	return &FieldSchemaWalker{
		schemas:  schemas,
		values:   values,
		entities: entities,
		cache:    cache,
	}, nil
}

// AvailableFields returns the field inventory for one entity. A field
// is included when it currently has a value or when it is a composite
// type (composites are always listed so their sub-structure can be
// previewed even when empty).
func (w *FieldSchemaWalker) AvailableFields(ctx context.Context, entityID int64) (*types.AvailableFieldsReport, error) {
	if report, ok := w.cache.Get(entityID); ok {
		return report, nil
	}

	entity, err := w.entities.GetEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}

	groups, err := w.schemas.GetFieldGroups(ctx, entity.SchemaID)
	if err != nil {
		return nil, err
	}

	report := &types.AvailableFieldsReport{
		EntityID: entityID,
		Fields:   make(map[string]*types.FieldReport),
	}

	for _, group := range groups {
		groupReport := types.GroupReport{Key: group.Key, Title: group.Title}

		for _, desc := range group.Fields {
			value, hasValue, err := w.values.GetValue(ctx, entityID, desc.Key)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve field %s: %w", desc.Key, err)
			}

			if !hasValue && !desc.Type.IsComposite() {
				continue
			}

			fieldReport := types.FieldReport{
				Descriptor: desc,
				Value:      value,
				HasValue:   hasValue && !types.IsEmptyValue(value),
				Cloneable:  desc.Type.IsCloneable(),
			}

			if desc.Type.IsComposite() {
				fieldReport.Stats = inspectComposite(value, &desc, &report.Warnings)
			}

			groupReport.Fields = append(groupReport.Fields, fieldReport)
		}

		if len(groupReport.Fields) > 0 {
			report.Groups = append(report.Groups, groupReport)
		}
	}

	// Index after the groups slice is final so pointers stay stable.
	for gi := range report.Groups {
		for fi := range report.Groups[gi].Fields {
			fr := &report.Groups[gi].Fields[fi]
			report.Fields[fr.Descriptor.Key] = fr
		}
	}

	w.cache.Add(entityID, report)
	return report, nil
}

// Statistics folds an available-fields report into summary counts.
func (w *FieldSchemaWalker) Statistics(ctx context.Context, entityID int64) (*types.FieldStatistics, error) {
	report, err := w.AvailableFields(ctx, entityID)
	if err != nil {
		return nil, err
	}

	stats := &types.FieldStatistics{TotalGroups: len(report.Groups)}
	for _, fr := range report.Fields {
		stats.TotalFields++
		if fr.Cloneable {
			stats.CloneableFields++
		}
		if fr.HasValue {
			stats.FieldsWithValues++
		}
		switch fr.Descriptor.Type {
		case types.FieldRepeater:
			stats.RepeaterFields++
		case types.FieldGroup:
			stats.GroupFields++
		}
	}

	return stats, nil
}

// Invalidate drops the cached report for one entity. Must be called
// synchronously after any write to that entity's fields.
func (w *FieldSchemaWalker) Invalidate(entityID int64) {
	w.cache.Remove(entityID)
}

// InvalidateAll drops every cached report. Called when the schema
// itself changes.
func (w *FieldSchemaWalker) InvalidateAll() {
	w.cache.Purge()
}

// inspectComposite derives structural stats for a composite value and
// records a warning for flexible entries whose layout no longer exists
// in the schema. Unmatched layouts are skipped, not failed.
func inspectComposite(value any, desc *types.FieldDescriptor, warnings *[]string) *types.StructuralStats {
	stats := &types.StructuralStats{
		SubFields: len(desc.SubFields),
		Layouts:   len(desc.Layouts),
	}

	switch desc.Type {
	case types.FieldRepeater:
		if rows, ok := value.([]any); ok {
			stats.Rows = len(rows)
		}

	case types.FieldGroup:
		// A group is a single map; its row count is 1 when populated.
		if m, ok := value.(map[string]any); ok && len(m) > 0 {
			stats.Rows = 1
		}

	case types.FieldFlexible:
		entries, ok := value.([]any)
		if !ok {
			return stats
		}
		stats.Rows = len(entries)
		for _, entry := range entries {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			name, _ := m[types.LayoutKey].(string)
			if desc.LayoutByName(name) == nil {
				*warnings = append(*warnings,
					fmt.Sprintf("layout configuration not found for: %s", name))
			}
		}
	}

	return stats
}
