// Package types defines the core data structures for the FieldClone
// engine: field descriptors, runtime values, clone requests and
// outcomes, and backup snapshots.
package types

// FieldType identifies the kind of a schema field.
// The set is closed: every consumer switches over it exhaustively and
// treats an unknown tag as an error rather than falling through.
type FieldType string

// Field type constants
const (
	// FieldText is a free-form scalar text field
	FieldText FieldType = "text"

	// FieldNumber is a scalar numeric field
	FieldNumber FieldType = "number"

	// FieldChoice is a select/radio/checkbox field storing one or more choices
	FieldChoice FieldType = "choice"

	// FieldBoolean is a true/false toggle
	FieldBoolean FieldType = "boolean"

	// FieldAttachment references a single media attachment by ID
	FieldAttachment FieldType = "attachment"

	// FieldAttachmentList references an ordered list of attachments (gallery)
	FieldAttachmentList FieldType = "attachment_list"

	// FieldRepeater is an ordered list of rows, each row a map of sub-field values
	FieldRepeater FieldType = "repeater"

	// FieldGroup is a single fixed map of sub-field values
	FieldGroup FieldType = "group"

	// FieldFlexible is an ordered list of layout instances, each carrying
	// its layout discriminator under the LayoutKey entry
	FieldFlexible FieldType = "flexible"

	// FieldEntityRef references a single entity by ID
	FieldEntityRef FieldType = "entity_ref"

	// FieldEntityRefList references an ordered list of entities
	FieldEntityRefList FieldType = "entity_ref_list"

	// FieldTermRef references one or more taxonomy terms
	FieldTermRef FieldType = "term_ref"

	// FieldUserRef references one or more users
	FieldUserRef FieldType = "user_ref"

	// FieldDisplay is a presentation-only marker (tabs, messages, separators).
	// Display fields carry no clonable value.
	FieldDisplay FieldType = "display"
)

// ValidFieldTypes is the closed set of all field type tags, used for
// schema validation when descriptors are loaded from storage.
var ValidFieldTypes = []FieldType{
	FieldText,
	FieldNumber,
	FieldChoice,
	FieldBoolean,
	FieldAttachment,
	FieldAttachmentList,
	FieldRepeater,
	FieldGroup,
	FieldFlexible,
	FieldEntityRef,
	FieldEntityRefList,
	FieldTermRef,
	FieldUserRef,
	FieldDisplay,
}

// LayoutKey is the map key under which a flexible-content entry stores
// the name of the layout it instantiates.
const LayoutKey = "layout"

// Valid reports whether t is a member of the closed field type set.
func (t FieldType) Valid() bool {
	for _, v := range ValidFieldTypes {
		if t == v {
			return true
		}
	}
	return false
}

// IsComposite reports whether values of this type contain nested
// sub-field values (repeater rows, group maps, flexible layouts).
func (t FieldType) IsComposite() bool {
	switch t {
	case FieldRepeater, FieldGroup, FieldFlexible:
		return true
	}
	return false
}

// IsReference reports whether values of this type are IDs into an
// external ID space that must be revalidated when copied.
func (t FieldType) IsReference() bool {
	switch t {
	case FieldAttachment, FieldAttachmentList, FieldEntityRef, FieldEntityRefList, FieldTermRef, FieldUserRef:
		return true
	}
	return false
}

// IsCloneable reports whether values of this type may be copied
// between entities. Only display-only markers are excluded.
func (t FieldType) IsCloneable() bool {
	return t != FieldDisplay
}

// LayoutDescriptor describes one layout variant of a flexible field.
type LayoutDescriptor struct {
	// Name is the layout discriminator matched against LayoutKey entries.
	Name string `json:"name"`

	// Label is the human-readable layout title.
	Label string `json:"label,omitempty"`

	// SubFields are the descriptors for fields inside this layout.
	SubFields []FieldDescriptor `json:"sub_fields,omitempty"`
}

// FieldDescriptor describes one schema-defined field. Descriptors are
// immutable and owned by the schema registry; the engine only reads them.
type FieldDescriptor struct {
	// Key is the globally unique field key used for value storage.
	Key string `json:"key"`

	// Name is the machine name used inside composite values.
	Name string `json:"name"`

	// Label is the human-readable field title.
	Label string `json:"label"`

	// Type is the field type tag.
	Type FieldType `json:"type"`

	// Required marks the field as mandatory when validation is enabled.
	Required bool `json:"required,omitempty"`

	// Format constrains text fields: "email", "url", or empty.
	Format string `json:"format,omitempty"`

	// Min and Max bound numeric fields when non-nil.
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`

	// Taxonomy names the taxonomy a term_ref field draws from.
	Taxonomy string `json:"taxonomy,omitempty"`

	// SubFields are the nested descriptors for repeater and group fields.
	SubFields []FieldDescriptor `json:"sub_fields,omitempty"`

	// Layouts are the layout variants for flexible fields.
	Layouts []LayoutDescriptor `json:"layouts,omitempty"`
}

// SubFieldByName returns the sub-field descriptor with the given
// machine name, or nil if the descriptor declares no such sub-field.
func (d *FieldDescriptor) SubFieldByName(name string) *FieldDescriptor {
	for i := range d.SubFields {
		if d.SubFields[i].Name == name {
			return &d.SubFields[i]
		}
	}
	return nil
}

// LayoutByName returns the layout descriptor with the given
// discriminator name, or nil if no layout matches.
func (d *FieldDescriptor) LayoutByName(name string) *LayoutDescriptor {
	for i := range d.Layouts {
		if d.Layouts[i].Name == name {
			return &d.Layouts[i]
		}
	}
	return nil
}

// Entity is an addressable record that owns field values and conforms
// to exactly one schema. Entities are owned by the host content store;
// the engine never creates or destroys them.
type Entity struct {
	// ID is the host-assigned numeric identifier.
	ID int64 `json:"id"`

	// SchemaID names the schema the entity conforms to.
	SchemaID string `json:"schema_id"`

	// Kind distinguishes regular entities from attachments and other
	// host object classes ("entity", "attachment").
	Kind string `json:"kind"`

	// Title is the display title used in source-candidate listings.
	Title string `json:"title"`
}

// Entity kind constants
const (
	KindEntity     = "entity"
	KindAttachment = "attachment"
)
