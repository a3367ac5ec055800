// Package cascade applies the control rules a select field declares to the
// fields it controls.
package cascade

import (
	"maps"
	"reflect"
	"slices"

	"github.com/finops-claw-gang/genui/internal/datapath"
	"github.com/finops-claw-gang/genui/internal/schema"
	"github.com/finops-claw-gang/genui/internal/store"
)

// maxDepth bounds chained cascades so a cycle in control rules cannot
// recurse forever.
const maxDepth = 16

// Engine resolves fields by key within one input scope.
type Engine struct {
	// Field returns the schema node for a field key, or nil.
	Field func(key string) *schema.Node
	// Ambient is the data object the scope's static options resolve against.
	Ambient any
}

// ForScope builds an engine over the declared fields of an input schema.
func ForScope(fields *schema.Node, ambient any) Engine {
	return Engine{
		Field: func(key string) *schema.Node {
			n, _ := fields.Property(key)
			return n
		},
		Ambient: ambient,
	}
}

// Options returns the options currently offered by a field: cascade-driven
// ones when set, else the static ones.
func (e Engine) Options(s *store.ValueStore, key string) []schema.Option {
	if opts, ok := s.Options(key); ok {
		return opts
	}
	return schema.StaticOptions(e.Field(key), e.Ambient)
}

// Selected resolves the full item behind a select field's current value.
// It reports false when the field is cleared.
func (e Engine) Selected(s *store.ValueStore, key string) (any, bool) {
	raw, ok := s.Raw(key)
	if !ok || raw == nil {
		return nil, false
	}
	opts := e.Options(s, key)
	if iv, ok := raw.(store.IndexedValue); ok {
		if iv.Index >= 0 && iv.Index < len(opts) && opts[iv.Index].Source != nil {
			return opts[iv.Index].Source, true
		}
		return iv.Underlying, true
	}
	for _, opt := range opts {
		if reflect.DeepEqual(opt.Value, raw) {
			if opt.Source != nil {
				return opt.Source, true
			}
			return opt.Value, true
		}
	}
	return raw, true
}

// OnChange runs the control rules of key against its current value. A
// selection equal to the last one the field fired on is a no-op, so
// repeated calls converge.
func (e Engine) OnChange(s *store.ValueStore, key string) {
	e.onChange(s, key, 0)
}

func (e Engine) onChange(s *store.ValueStore, key string, depth int) {
	if depth >= maxDepth {
		return
	}
	field := e.Field(key)
	if field == nil || field.UX == nil || len(field.UX.Controls) == 0 {
		return
	}
	current, _ := s.Value(key)
	if last, fired := s.LastFired(key); fired && reflect.DeepEqual(last, current) {
		return
	}
	s.MarkFired(key, current)

	item, selected := e.Selected(s, key)
	for _, target := range slices.Sorted(maps.Keys(field.UX.Controls)) {
		rule := field.UX.Controls[target]
		var changed bool
		if selected {
			changed = e.apply(s, target, rule, item)
		} else {
			changed = e.clear(s, target, rule)
		}
		if changed {
			e.onChange(s, target, depth+1)
		}
	}
}

func (e Engine) apply(s *store.ValueStore, target string, rule schema.ControlRule, item any) bool {
	switch rule.Type {
	case schema.RuleValue:
		v, ok := datapath.Get(item, rule.ValuePath)
		if !ok {
			return false
		}
		s.SetValue(target, v)
		return true
	case schema.RuleEnum:
		items, _ := datapath.Slice(item, rule.EnumPath)
		opts := schema.ProjectOptions(items, rule.ValueKey, rule.LabelKey, rule.LabelFormat)
		s.SetOptions(target, opts)
		if rule.Reset {
			s.Reset(target)
		}
		idx := 0
		if rule.DefaultIndex != nil {
			idx = *rule.DefaultIndex
		}
		if s.HasValue(target) || idx < 0 || idx >= len(opts) {
			return rule.Reset
		}
		if opts[idx].IsObject() {
			s.SetValue(target, store.IndexedValue{Index: idx, Underlying: opts[idx].Value})
		} else {
			s.SetValue(target, opts[idx].Value)
		}
		return true
	}
	return false
}

func (e Engine) clear(s *store.ValueStore, target string, rule schema.ControlRule) bool {
	if rule.Type == schema.RuleEnum {
		s.ClearOptions(target)
	}
	if rule.Reset {
		s.Reset(target)
		return true
	}
	return false
}
