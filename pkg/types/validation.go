package types

import (
	"fmt"
	"net/mail"
	"net/url"
	"strconv"
)

// IsEmptyValue reports whether v counts as "no value" for conflict
// detection and required-field validation. Zero numbers and false
// booleans are real values; only nil, empty strings, and empty
// collections are empty.
func IsEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	}
	return false
}

// AsID coerces a reference value to an int64 ID. JSON decoding yields
// float64 for numbers; host APIs sometimes return string IDs.
func AsID(v any) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, val > 0
	case int:
		return int64(val), val > 0
	case float64:
		id := int64(val)
		return id, float64(id) == val && id > 0
	case string:
		id, err := strconv.ParseInt(val, 10, 64)
		return id, err == nil && id > 0
	}
	return 0, false
}

// AsIDList coerces a reference value to a list of int64 IDs. A single
// scalar is treated as a one-element list. The second result is false
// when any element is not a usable ID.
func AsIDList(v any) ([]int64, bool) {
	if list, ok := v.([]any); ok {
		ids := make([]int64, 0, len(list))
		for _, item := range list {
			id, ok := AsID(item)
			if !ok {
				return nil, false
			}
			ids = append(ids, id)
		}
		return ids, true
	}
	if id, ok := AsID(v); ok {
		return []int64{id}, true
	}
	return nil, false
}

// ValidateValue checks a transformed value against its descriptor's
// declared constraints. It returns an error describing the first
// violation, or nil. Used only when CloneOptions.ValidateData is set.
func ValidateValue(v any, desc *FieldDescriptor) error {
	if IsEmptyValue(v) {
		if desc.Required {
			return fmt.Errorf("required field %q is empty", desc.Label)
		}
		return nil
	}

	switch desc.Type {
	case FieldText:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("field %q: expected text, got %T", desc.Label, v)
		}
		switch desc.Format {
		case "email":
			if _, err := mail.ParseAddress(s); err != nil {
				return fmt.Errorf("field %q: invalid email address", desc.Label)
			}
		case "url":
			u, err := url.Parse(s)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("field %q: invalid URL", desc.Label)
			}
		}

	case FieldNumber:
		n, ok := asNumber(v)
		if !ok {
			return fmt.Errorf("field %q: expected a number, got %T", desc.Label, v)
		}
		if desc.Min != nil && n < *desc.Min {
			return fmt.Errorf("field %q: value %v is below minimum %v", desc.Label, n, *desc.Min)
		}
		if desc.Max != nil && n > *desc.Max {
			return fmt.Errorf("field %q: value %v is above maximum %v", desc.Label, n, *desc.Max)
		}
	}

	return nil
}

// asNumber coerces numeric representations (including numeric strings,
// which host form layers produce) to float64.
func asNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		n, err := strconv.ParseFloat(val, 64)
		return n, err == nil
	}
	return 0, false
}
