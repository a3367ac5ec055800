package store

import (
	"sort"

	"github.com/finops-claw-gang/genui/internal/schema"
)

// SelectionStore tracks selected nodes and free-text feedback, both keyed
// by node path.
type SelectionStore struct {
	selected map[string]selection
	feedback map[string]string
	seq      int
}

type selection struct {
	path  schema.Path
	order int
}

func NewSelectionStore() *SelectionStore {
	return &SelectionStore{
		selected: make(map[string]selection),
		feedback: make(map[string]string),
	}
}

// Toggle flips selection of p and reports the new state.
func (s *SelectionStore) Toggle(p schema.Path) bool {
	if s.IsSelected(p) {
		delete(s.selected, p.Key())
		return false
	}
	s.Select(p)
	return true
}

func (s *SelectionStore) Select(p schema.Path) {
	if s.IsSelected(p) {
		return
	}
	s.seq++
	s.selected[p.Key()] = selection{path: append(schema.Path(nil), p...), order: s.seq}
}

func (s *SelectionStore) Deselect(p schema.Path) { delete(s.selected, p.Key()) }

func (s *SelectionStore) IsSelected(p schema.Path) bool {
	if s == nil {
		return false
	}
	_, ok := s.selected[p.Key()]
	return ok
}

// Selected lists selected paths in the order they were selected.
func (s *SelectionStore) Selected() []schema.Path {
	sel := make([]selection, 0, len(s.selected))
	for _, v := range s.selected {
		sel = append(sel, v)
	}
	sort.Slice(sel, func(i, j int) bool { return sel[i].order < sel[j].order })
	out := make([]schema.Path, len(sel))
	for i, v := range sel {
		out[i] = v.path
	}
	return out
}

// SetFeedback records text for p; empty text removes it.
func (s *SelectionStore) SetFeedback(p schema.Path, text string) {
	if text == "" {
		delete(s.feedback, p.Key())
		return
	}
	s.feedback[p.Key()] = text
}

func (s *SelectionStore) Feedback(p schema.Path) string {
	if s == nil {
		return ""
	}
	return s.feedback[p.Key()]
}

func (s *SelectionStore) Clear() {
	clear(s.selected)
	clear(s.feedback)
}
