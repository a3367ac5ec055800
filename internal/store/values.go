// Package store holds the per-session interaction state the render pass
// reads from: field values and errors, selections and tab registries.
package store

import (
	"maps"

	"github.com/finops-claw-gang/genui/internal/schema"
)

// IndexedValue wraps a non-primitive option selected by position. Reads
// through ValueStore unwrap it.
type IndexedValue struct {
	Index      int `json:"index"`
	Underlying any `json:"underlying"`
}

// Unwrap returns the underlying value of an IndexedValue, or v unchanged.
func Unwrap(v any) any {
	if iv, ok := v.(IndexedValue); ok {
		return iv.Underlying
	}
	return v
}

// ValueStore holds field values keyed by path relative to an input scope,
// along with validation errors, cascade-driven options and the cascade
// guard. It is not safe for concurrent use; callers serialize access.
type ValueStore struct {
	values  map[string]any
	errors  map[string]string
	options map[string][]schema.Option
	fired   map[string]any
}

func NewValueStore() *ValueStore {
	return &ValueStore{
		values:  make(map[string]any),
		errors:  make(map[string]string),
		options: make(map[string][]schema.Option),
		fired:   make(map[string]any),
	}
}

// Value returns the unwrapped value for key.
func (s *ValueStore) Value(key string) (any, bool) {
	v, ok := s.values[key]
	return Unwrap(v), ok
}

// Raw returns the stored value without unwrapping.
func (s *ValueStore) Raw(key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.values[key]
	return v, ok
}

// ValueOr returns the unwrapped value or fallback when unset. Reading never
// writes.
func (s *ValueStore) ValueOr(key string, fallback any) any {
	if s == nil {
		return fallback
	}
	if v, ok := s.Value(key); ok {
		return v
	}
	return fallback
}

func (s *ValueStore) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

// HasValue reports whether key holds a non-empty value. A cleared or reset
// field has an entry but no value.
func (s *ValueStore) HasValue(key string) bool {
	v, ok := s.Value(key)
	return ok && !isEmpty(v)
}

// SetValue stores v and clears any error on the field.
func (s *ValueStore) SetValue(key string, v any) {
	s.values[key] = v
	delete(s.errors, key)
}

// Reset clears the value. The entry stays so render, validation and the
// submitted payload all read the same empty value instead of an initial one.
func (s *ValueStore) Reset(key string) {
	s.values[key] = nil
}

// Values returns an unwrapped copy of every stored value.
func (s *ValueStore) Values() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = Unwrap(v)
	}
	return out
}

func (s *ValueStore) SetError(key, msg string) { s.errors[key] = msg }

func (s *ValueStore) ClearError(key string) { delete(s.errors, key) }

func (s *ValueStore) ClearErrors() { clear(s.errors) }

// Error returns the current error message for key, or "".
func (s *ValueStore) Error(key string) string {
	if s == nil {
		return ""
	}
	return s.errors[key]
}

func (s *ValueStore) Errors() map[string]string {
	return maps.Clone(s.errors)
}

// SetOptions records cascade-driven options for a field.
func (s *ValueStore) SetOptions(key string, opts []schema.Option) {
	s.options[key] = opts
}

func (s *ValueStore) ClearOptions(key string) { delete(s.options, key) }

// Options returns cascade-driven options, if any have been set.
func (s *ValueStore) Options(key string) ([]schema.Option, bool) {
	if s == nil {
		return nil, false
	}
	opts, ok := s.options[key]
	return opts, ok
}

// LastFired returns the selection a controlling field last cascaded on.
func (s *ValueStore) LastFired(key string) (any, bool) {
	v, ok := s.fired[key]
	return v, ok
}

func (s *ValueStore) MarkFired(key string, v any) { s.fired[key] = v }
