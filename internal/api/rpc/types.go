package rpc

import (
	"github.com/scrypster/fieldclone/pkg/types"
)

// SourceCandidate is one same-schema entity the caller may clone from.
type SourceCandidate struct {
	EntityID int64                  `json:"entity_id"`
	Title    string                 `json:"title"`
	Stats    *types.FieldStatistics `json:"stats,omitempty"`
}

// ListSourcesResponse is the response for GET /api/clone/sources.
type ListSourcesResponse struct {
	Candidates []SourceCandidate `json:"candidates"`
}

// FieldPreview is one cloneable field with its preview flags.
type FieldPreview struct {
	Key   string          `json:"key"`
	Label string          `json:"label"`
	Type  types.FieldType `json:"type"`

	// HasValue reports whether the source currently holds a value.
	HasValue bool `json:"has_value"`

	// WillOverwrite reports whether cloning would replace an existing
	// target value.
	WillOverwrite bool `json:"will_overwrite"`

	Stats *types.StructuralStats `json:"stats,omitempty"`
}

// GroupPreview is one field group's preview entries.
type GroupPreview struct {
	Key    string         `json:"key"`
	Title  string         `json:"title"`
	Fields []FieldPreview `json:"fields"`
}

// PreviewResponse is the response for GET /api/clone/preview.
type PreviewResponse struct {
	Groups      []GroupPreview         `json:"groups"`
	SourceStats *types.FieldStatistics `json:"source_stats"`
	TargetStats *types.FieldStatistics `json:"target_stats"`
	Warnings    []string               `json:"warnings,omitempty"`
}

// ExecuteRequest is the request body for POST /api/clone/execute.
type ExecuteRequest struct {
	SourceEntityID int64              `json:"source_entity_id"`
	TargetEntityID int64              `json:"target_entity_id"`
	FieldKeys      []string           `json:"field_keys"`
	Options        types.CloneOptions `json:"options"`
}

// ValidateRequest is the request body for POST /api/clone/validate.
type ValidateRequest struct {
	SourceEntityID int64    `json:"source_entity_id"`
	TargetEntityID int64    `json:"target_entity_id"`
	FieldKeys      []string `json:"field_keys"`
}

// RestoreRequest is the request body for POST /api/backups/{id}/restore.
type RestoreRequest struct {
	DeleteAfter bool `json:"delete_after"`
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
