package store

import (
	"fmt"
	"strings"

	"github.com/finops-claw-gang/genui/internal/datapath"
	"github.com/finops-claw-gang/genui/internal/format"
	"github.com/finops-claw-gang/genui/internal/schema"
)

// FieldError is one failed field check.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates field errors in declaration order.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// InitialValue resolves the value a field starts with: a fully resolved
// template, then source_field from the ambient data, then the data under
// the field's own name, then the schema default.
func InitialValue(name string, field *schema.Node, ambient any) (any, bool) {
	ux := field.Hints()
	if ux.Template != "" {
		if s, ok := format.RenderStrict(ux.Template, ambient); ok {
			return s, true
		}
	}
	if ux.SourceField != "" {
		if v, ok := datapath.Get(ambient, ux.SourceField); ok && v != nil {
			return v, true
		}
	}
	if m, ok := ambient.(map[string]any); ok {
		if v, ok := m[name]; ok && v != nil {
			return v, true
		}
	}
	if field != nil && field.Default != nil {
		return field.Default, true
	}
	return nil, false
}

// Seed writes initial values for declared fields that have none yet.
func Seed(s *ValueStore, fields *schema.Node, ambient any) {
	for _, name := range fields.PropertyNames() {
		if s.Has(name) {
			continue
		}
		field, _ := fields.Property(name)
		if v, ok := InitialValue(name, field, ambient); ok {
			s.values[name] = v
		}
	}
}

// Validate checks required and range constraints over the declared fields,
// replacing all errors in the store. It returns nil when every field
// passes.
func Validate(s *ValueStore, fields *schema.Node) *ValidationError {
	s.ClearErrors()
	var verr ValidationError
	for _, name := range fields.PropertyNames() {
		field, _ := fields.Property(name)
		ux := field.Hints()
		label := ux.Label(name)
		v, _ := s.Value(name)

		if isEmpty(v) {
			if fields.IsRequired(name) {
				verr.add(s, name, label+" is required")
			}
			continue
		}
		n, isNum := v.(float64)
		if !isNum {
			continue
		}
		if lo := firstBound(ux.Minimum, field.Minimum); lo != nil && n < *lo {
			verr.add(s, name, fmt.Sprintf("%s must be at least %s", label, format.Stringify(*lo)))
		} else if hi := firstBound(ux.Maximum, field.Maximum); hi != nil && n > *hi {
			verr.add(s, name, fmt.Sprintf("%s must be at most %s", label, format.Stringify(*hi)))
		}
	}
	if len(verr.Fields) == 0 {
		return nil
	}
	return &verr
}

func (e *ValidationError) add(s *ValueStore, field, msg string) {
	s.SetError(field, msg)
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

// MappedValues returns the scope's values with destination_field renames
// applied. Undeclared keys pass through unchanged.
func MappedValues(s *ValueStore, fields *schema.Node) map[string]any {
	out := make(map[string]any)
	for k, v := range s.Values() {
		out[destination(fields, k)] = v
	}
	return out
}

// RestoreMapped writes previously submitted params back into the scope,
// undoing destination_field renames. Unknown keys are ignored.
func RestoreMapped(s *ValueStore, fields *schema.Node, params map[string]any) {
	reverse := make(map[string]string)
	for _, name := range fields.PropertyNames() {
		reverse[destination(fields, name)] = name
	}
	for k, v := range params {
		if name, ok := reverse[k]; ok {
			s.SetValue(name, v)
		}
	}
}

func destination(fields *schema.Node, name string) string {
	if field, ok := fields.Property(name); ok && field.UX != nil && field.UX.DestinationField != "" {
		return field.UX.DestinationField
	}
	return name
}

func firstBound(a, b *float64) *float64 {
	if a != nil {
		return a
	}
	return b
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	}
	return false
}
