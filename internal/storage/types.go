package storage

import (
	"errors"

	"github.com/scrypster/fieldclone/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// FieldGroup is one ordered group of field descriptors within a schema.
type FieldGroup struct {
	// Key is the group's unique key.
	Key string `json:"key"`

	// Title is the human-readable group title.
	Title string `json:"title"`

	// Fields are the group's descriptors, in schema order.
	Fields []types.FieldDescriptor `json:"fields"`
}
