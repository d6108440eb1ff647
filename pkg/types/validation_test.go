package types

import (
	"testing"
)

// TestIsEmptyValue tests the empty/no-value classification. Zero
// numbers and false booleans are real values.
func TestIsEmptyValue(t *testing.T) {
	empty := []any{nil, "", []any{}, map[string]any{}}
	for _, v := range empty {
		if !IsEmptyValue(v) {
			t.Errorf("expected %#v to be empty", v)
		}
	}

	nonEmpty := []any{"x", float64(0), false, []any{1}, map[string]any{"a": 1}}
	for _, v := range nonEmpty {
		if IsEmptyValue(v) {
			t.Errorf("expected %#v to be non-empty", v)
		}
	}
}

// TestAsID tests ID coercion from JSON-shaped values.
func TestAsID(t *testing.T) {
	cases := []struct {
		in   any
		want int64
		ok   bool
	}{
		{float64(42), 42, true},
		{int(7), 7, true},
		{int64(9), 9, true},
		{"15", 15, true},
		{float64(1.5), 0, false},
		{"abc", 0, false},
		{float64(0), 0, false},
		{float64(-3), 0, false},
		{nil, 0, false},
	}

	for _, c := range cases {
		got, ok := AsID(c.in)
		if ok != c.ok || (ok && got != c.want) {
			t.Errorf("AsID(%#v) = (%d, %v), want (%d, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

// TestAsIDList tests list coercion including the scalar-as-list case.
func TestAsIDList(t *testing.T) {
	ids, ok := AsIDList([]any{float64(1), "2", int64(3)})
	if !ok || len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Errorf("unexpected result: %v %v", ids, ok)
	}

	ids, ok = AsIDList(float64(5))
	if !ok || len(ids) != 1 || ids[0] != 5 {
		t.Errorf("unexpected scalar result: %v %v", ids, ok)
	}

	if _, ok := AsIDList([]any{float64(1), "nope"}); ok {
		t.Error("expected failure for list with an unusable member")
	}
}

// TestValidateValueRequired tests that required fields reject empty values.
func TestValidateValueRequired(t *testing.T) {
	desc := FieldDescriptor{Key: "field_a", Label: "A", Type: FieldText, Required: true}

	if err := ValidateValue("", &desc); err == nil {
		t.Error("expected error for empty required field")
	}
	if err := ValidateValue(nil, &desc); err == nil {
		t.Error("expected error for nil required field")
	}
	if err := ValidateValue("hello", &desc); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	desc.Required = false
	if err := ValidateValue(nil, &desc); err != nil {
		t.Errorf("unexpected error for optional empty field: %v", err)
	}
}

// TestValidateValueFormats tests email and URL format checks.
func TestValidateValueFormats(t *testing.T) {
	email := FieldDescriptor{Key: "field_email", Label: "Email", Type: FieldText, Format: "email"}
	if err := ValidateValue("user@example.com", &email); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateValue("not-an-email", &email); err == nil {
		t.Error("expected error for invalid email")
	}

	link := FieldDescriptor{Key: "field_url", Label: "Link", Type: FieldText, Format: "url"}
	if err := ValidateValue("https://example.com/page", &link); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateValue("://nope", &link); err == nil {
		t.Error("expected error for invalid URL")
	}
	if err := ValidateValue("relative/path", &link); err == nil {
		t.Error("expected error for URL without scheme")
	}
}

// TestValidateValueBounds tests numeric coercion and min/max bounds.
func TestValidateValueBounds(t *testing.T) {
	min, max := 1.0, 10.0
	desc := FieldDescriptor{Key: "field_n", Label: "N", Type: FieldNumber, Min: &min, Max: &max}

	if err := ValidateValue(float64(5), &desc); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateValue("7", &desc); err != nil {
		t.Errorf("unexpected error for numeric string: %v", err)
	}
	if err := ValidateValue(float64(0.5), &desc); err == nil {
		t.Error("expected error below minimum")
	}
	if err := ValidateValue(float64(11), &desc); err == nil {
		t.Error("expected error above maximum")
	}
	if err := ValidateValue("abc", &desc); err == nil {
		t.Error("expected error for non-numeric value")
	}
}
