// Package render turns a schema document plus interaction state into a
// tree of presentation elements. A render pass reads stores and never
// writes them.
package render

import (
	"github.com/finops-claw-gang/genui/internal/generation"
	"github.com/finops-claw-gang/genui/internal/schema"
	"github.com/finops-claw-gang/genui/internal/store"
)

// Kind is the element variant.
type Kind string

const (
	KindContainer    Kind = "container"
	KindFragment     Kind = "fragment"
	KindRole         Kind = "role"
	KindValue        Kind = "value"
	KindInput        Kind = "input"
	KindInputScope   Kind = "input_scope"
	KindTabs         Kind = "tabs"
	KindTab          Kind = "tab"
	KindContentPanel Kind = "content_panel"
	KindTable        Kind = "table"
	KindMedia        Kind = "media"
	KindGeneration   Kind = "generation"
	KindSelection    Kind = "selection"
	KindDiagnostic   Kind = "diagnostic"
)

// Element is one node of the render plan.
type Element struct {
	Kind  Kind         `json:"kind"`
	Token schema.Token `json:"token,omitempty"`
	Path  schema.Path  `json:"path"`
	Label string       `json:"label,omitempty"`
	Value any          `json:"value,omitempty"`
	Text  string       `json:"text,omitempty"`
	TabID string       `json:"-"`

	Input      *InputView      `json:"input,omitempty"`
	Scope      *ScopeView      `json:"scope,omitempty"`
	Tabs       *TabsView       `json:"tabs,omitempty"`
	Table      *TableView      `json:"table,omitempty"`
	Media      []MediaItem     `json:"media,omitempty"`
	Generation *GenerationView `json:"generation,omitempty"`
	Selection  *SelectionView  `json:"selection,omitempty"`
	Diagnostic *Diagnostic     `json:"diagnostic,omitempty"`

	Children []*Element `json:"children,omitempty"`
}

// InputView describes an editable field.
type InputView struct {
	Scope       schema.Path      `json:"scope"`
	Field       string           `json:"field"`
	Type        schema.InputType `json:"type"`
	Value       any              `json:"value"`
	SelectedKey string           `json:"selected_key,omitempty"`
	Error       string           `json:"error,omitempty"`
	Required    bool             `json:"required,omitempty"`
	Placeholder string           `json:"placeholder,omitempty"`
	Minimum     *float64         `json:"minimum,omitempty"`
	Maximum     *float64         `json:"maximum,omitempty"`
	Step        *float64         `json:"step,omitempty"`
	Options     []schema.Option  `json:"options,omitempty"`
	Dynamic     bool             `json:"dynamic,omitempty"`
}

// ScopeView summarizes an input scope's validation state.
type ScopeView struct {
	Errors []store.FieldError `json:"errors,omitempty"`
}

// TabsView is the header of a tabs container.
type TabsView struct {
	Tabs   []store.Tab `json:"tabs"`
	Active string      `json:"active"`
}

// TableView holds a tabular rendering of an array of objects.
type TableView struct {
	Columns []Column     `json:"columns"`
	Rows    [][]*Element `json:"rows"`
}

type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// MediaItem is one displayable asset.
type MediaItem struct {
	URL  string `json:"url"`
	Kind string `json:"kind"`
}

// GenerationView is a generation panel's state as the plan presents it.
type GenerationView struct {
	ActionType schema.Token    `json:"action_type"`
	Provider   string          `json:"provider"`
	PromptID   string          `json:"prompt_id"`
	Errors     []string        `json:"errors,omitempty"`
	State      generation.View `json:"state"`
}

// SelectionView marks a selectable item.
type SelectionView struct {
	Mode     schema.Token `json:"mode"`
	Selected bool         `json:"selected"`
	Feedback string       `json:"feedback,omitempty"`
}

// Severity grades a diagnostic.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic replaces an element that could not be rendered.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Expected []string `json:"expected,omitempty"`
}

// Find returns the first element in depth-first order matching fn.
func (e *Element) Find(fn func(*Element) bool) *Element {
	if all := e.FindAll(fn); len(all) > 0 {
		return all[0]
	}
	return nil
}

// FindAll returns every element matching fn in depth-first order. Table
// cells are visited after an element's children.
func (e *Element) FindAll(fn func(*Element) bool) []*Element {
	var out []*Element
	e.walk(func(el *Element) {
		if fn(el) {
			out = append(out, el)
		}
	})
	return out
}

func (e *Element) walk(fn func(*Element)) {
	if e == nil {
		return
	}
	fn(e)
	for _, c := range e.Children {
		c.walk(fn)
	}
	if e.Table != nil {
		for _, row := range e.Table.Rows {
			for _, cell := range row {
				cell.walk(fn)
			}
		}
	}
}

// OfKind matches elements by kind.
func OfKind(k Kind) func(*Element) bool {
	return func(e *Element) bool { return e.Kind == k }
}

// AtPath matches elements by path.
func AtPath(p schema.Path) func(*Element) bool {
	return func(e *Element) bool { return e.Path.Equal(p) }
}
