package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/scrypster/fieldclone/internal/resolver"
	"github.com/scrypster/fieldclone/pkg/types"
)

// ReferenceResolver is the read-only lookup surface the transformer
// uses to revalidate reference fields. *resolver.Resolver satisfies it.
type ReferenceResolver interface {
	AttachmentExists(ctx context.Context, id int64) (bool, error)
	EntityExists(ctx context.Context, id int64) (bool, error)
	TermExists(ctx context.Context, taxonomy string, termID int64) (bool, error)
	UserExists(ctx context.Context, id int64) (bool, error)
}

// ValueTransformer converts a source field value into a value safe to
// write at the target. It is pure with respect to the target: it may
// perform read-only lookups but never writes.
type ValueTransformer struct {
	refs ReferenceResolver
}

// NewValueTransformer creates a transformer using the given resolver
// for reference revalidation.
func NewValueTransformer(refs ReferenceResolver) *ValueTransformer {
	return &ValueTransformer{refs: refs}
}

// Transform dispatches on the descriptor's type tag and returns the
// transformed value plus any non-fatal warnings. The type switch is
// exhaustive over the closed FieldType set; an unknown tag is an
// error, never a silent pass-through.
func (t *ValueTransformer) Transform(ctx context.Context, value any, desc *types.FieldDescriptor, opts types.CloneOptions) (any, []string, error) {
	switch desc.Type {
	case types.FieldText, types.FieldNumber, types.FieldChoice, types.FieldBoolean:
		return value, nil, nil

	case types.FieldAttachment, types.FieldAttachmentList:
		// Without CopyReferences, attachment IDs pass through
		// unverified: the fast path for installs sharing one media store.
		if !opts.CopyReferences {
			return value, nil, nil
		}
		return t.transformRefs(ctx, value, desc, "Attachment",
			func(id int64) (bool, error) { return t.refs.AttachmentExists(ctx, id) })

	case types.FieldRepeater:
		return t.transformRepeater(ctx, value, desc, opts)

	case types.FieldGroup:
		return t.transformGroup(ctx, value, desc.SubFields, opts)

	case types.FieldFlexible:
		return t.transformFlexible(ctx, value, desc, opts)

	case types.FieldEntityRef, types.FieldEntityRefList:
		return t.transformRefs(ctx, value, desc, "Entity",
			func(id int64) (bool, error) { return t.refs.EntityExists(ctx, id) })

	case types.FieldTermRef:
		return t.transformRefs(ctx, value, desc, "Term",
			func(id int64) (bool, error) { return t.refs.TermExists(ctx, desc.Taxonomy, id) })

	case types.FieldUserRef:
		return t.transformRefs(ctx, value, desc, "User",
			func(id int64) (bool, error) { return t.refs.UserExists(ctx, id) })

	case types.FieldDisplay:
		// Display fields are filtered out before the transform runs.
		return nil, nil, fmt.Errorf("field %q is display-only and cannot be cloned", desc.Key)
	}

	return nil, nil, fmt.Errorf("unknown field type %q for field %q", desc.Type, desc.Key)
}

// transformRepeater transforms each row's sub-field values in list
// order. Sub-field names present in the value but missing from the
// descriptor pass through unchanged.
func (t *ValueTransformer) transformRepeater(ctx context.Context, value any, desc *types.FieldDescriptor, opts types.CloneOptions) (any, []string, error) {
	rows, ok := value.([]any)
	if !ok {
		return value, nil, nil
	}

	var warnings []string
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		transformed, rowWarnings, err := t.transformGroup(ctx, row, desc.SubFields, opts)
		if err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, rowWarnings...)
		out = append(out, transformed)
	}

	return out, warnings, nil
}

// transformGroup transforms one map of sub-field values against the
// given sub-descriptors.
func (t *ValueTransformer) transformGroup(ctx context.Context, value any, subFields []types.FieldDescriptor, opts types.CloneOptions) (any, []string, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return value, nil, nil
	}

	var warnings []string
	out := make(map[string]any, len(m))

	// Walk declared sub-fields in descriptor order so warnings come out
	// deterministically, then pass any undeclared names through unchanged.
	for i := range subFields {
		subDesc := &subFields[i]
		sub, present := m[subDesc.Name]
		if !present {
			continue
		}

		transformed, subWarnings, err := t.Transform(ctx, sub, subDesc, opts)
		if err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, subWarnings...)
		out[subDesc.Name] = transformed
	}

	for name, sub := range m {
		if _, done := out[name]; done {
			continue
		}
		if subFieldByName(subFields, name) == nil {
			out[name] = sub
		}
	}

	return out, warnings, nil
}

// transformFlexible resolves each entry's layout discriminator and
// transforms its fields with that layout's sub-descriptors. Entries
// with an unmatched layout pass through unchanged with a warning.
func (t *ValueTransformer) transformFlexible(ctx context.Context, value any, desc *types.FieldDescriptor, opts types.CloneOptions) (any, []string, error) {
	entries, ok := value.([]any)
	if !ok {
		return value, nil, nil
	}

	var warnings []string
	out := make([]any, 0, len(entries))
	for _, entry := range entries {
		m, ok := entry.(map[string]any)
		if !ok {
			out = append(out, entry)
			continue
		}

		name, _ := m[types.LayoutKey].(string)
		layout := desc.LayoutByName(name)
		if layout == nil {
			warnings = append(warnings,
				fmt.Sprintf("layout configuration not found for: %s", name))
			out = append(out, entry)
			continue
		}

		transformed, entryWarnings, err := t.transformGroup(ctx, m, layout.SubFields, opts)
		if err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, entryWarnings...)
		out = append(out, transformed)
	}

	return out, warnings, nil
}

// transformRefs verifies reference IDs against the host. Unresolvable
// single references become nil; unresolvable list members are dropped.
// Each dropped ID produces one warning naming it. The value's shape
// (scalar vs list) is preserved.
func (t *ValueTransformer) transformRefs(ctx context.Context, value any, desc *types.FieldDescriptor, kind string, exists func(int64) (bool, error)) (any, []string, error) {
	if value == nil {
		return nil, nil, nil
	}

	if list, ok := value.([]any); ok {
		var warnings []string
		out := make([]any, 0, len(list))
		for _, item := range list {
			keep, warning, err := t.checkRef(item, desc, kind, exists)
			if err != nil {
				return nil, nil, err
			}
			if warning != "" {
				warnings = append(warnings, warning)
			}
			if keep {
				out = append(out, item)
			}
		}
		return out, warnings, nil
	}

	keep, warning, err := t.checkRef(value, desc, kind, exists)
	if err != nil {
		return nil, nil, err
	}
	if !keep {
		var warnings []string
		if warning != "" {
			warnings = append(warnings, warning)
		}
		return nil, warnings, nil
	}
	return value, nil, nil
}

// checkRef verifies one reference. A value that is not a usable ID, an
// ID that doesn't resolve, and a lookup rejected by an open circuit
// breaker all drop the reference with a warning; only real lookup
// failures propagate as errors.
func (t *ValueTransformer) checkRef(value any, desc *types.FieldDescriptor, kind string, exists func(int64) (bool, error)) (keep bool, warning string, err error) {
	id, ok := types.AsID(value)
	if !ok {
		return false, fmt.Sprintf("%s reference %v on field %q is not a valid ID", kind, value, desc.Label), nil
	}

	found, err := exists(id)
	if err != nil {
		if errors.Is(err, resolver.ErrLookupUnavailable) {
			return false, fmt.Sprintf("%s ID %d could not be verified (lookups unavailable)", kind, id), nil
		}
		return false, "", fmt.Errorf("failed to verify %s ID %d: %w", kind, id, err)
	}

	if !found {
		if kind == "Term" && desc.Taxonomy != "" {
			return false, fmt.Sprintf("Term ID %d not found in taxonomy %s", id, desc.Taxonomy), nil
		}
		return false, fmt.Sprintf("%s ID %d not found", kind, id), nil
	}

	return true, "", nil
}

// subFieldByName finds a descriptor by machine name within a sub-field list.
func subFieldByName(subFields []types.FieldDescriptor, name string) *types.FieldDescriptor {
	for i := range subFields {
		if subFields[i].Name == name {
			return &subFields[i]
		}
	}
	return nil
}
