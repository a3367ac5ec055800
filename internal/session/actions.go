package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/finops-claw-gang/genui/internal/cascade"
	"github.com/finops-claw-gang/genui/internal/generation"
	"github.com/finops-claw-gang/genui/internal/schema"
	"github.com/finops-claw-gang/genui/internal/store"
	"github.com/finops-claw-gang/genui/internal/tasks"
)

// ActionType names a session operation carried over the wire.
type ActionType string

const (
	ActionSetValue        ActionType = "set_value"
	ActionSelectOption    ActionType = "select_option"
	ActionClearValue      ActionType = "clear_value"
	ActionSelectTab       ActionType = "select_tab"
	ActionToggleSelection ActionType = "toggle_selection"
	ActionSetFeedback     ActionType = "set_feedback"
	ActionGenerate        ActionType = "generate"
	ActionConfirmCrop     ActionType = "confirm_crop"
	ActionCancelCrop      ActionType = "cancel_crop"
	ActionClearCrop       ActionType = "clear_crop"
	ActionSelectContent   ActionType = "select_content"
)

// Action is one user operation. Scope and Path are dotted path keys; the
// root scope is "".
type Action struct {
	Type      ActionType        `json:"type"`
	Scope     string            `json:"scope,omitempty"`
	Field     string            `json:"field,omitempty"`
	Path      string            `json:"path,omitempty"`
	Value     any               `json:"value,omitempty"`
	Index     int               `json:"index,omitempty"`
	Tab       string            `json:"tab,omitempty"`
	Text      string            `json:"text,omitempty"`
	Crop      *tasks.CropRegion `json:"crop,omitempty"`
	Remember  bool              `json:"remember,omitempty"`
	ContentID string            `json:"content_id,omitempty"`
}

// Apply dispatches an action to the matching operation.
func (s *Session) Apply(ctx context.Context, a Action) error {
	scopePath, path := schema.ParsePath(a.Scope), schema.ParsePath(a.Path)
	switch a.Type {
	case ActionSetValue:
		return s.SetValue(scopePath, a.Field, a.Value)
	case ActionSelectOption:
		return s.SelectOption(scopePath, a.Field, a.Index)
	case ActionClearValue:
		return s.ClearValue(scopePath, a.Field)
	case ActionSelectTab:
		return s.SelectTab(path, a.Tab)
	case ActionToggleSelection:
		_, err := s.ToggleSelection(path)
		return err
	case ActionSetFeedback:
		return s.SetFeedback(path, a.Text)
	case ActionGenerate:
		return s.Generate(ctx, path)
	case ActionConfirmCrop:
		if a.Crop == nil {
			return fmt.Errorf("%w: confirm_crop needs a crop region", ErrInvalidAction)
		}
		return s.ConfirmCrop(ctx, path, *a.Crop, a.Remember)
	case ActionCancelCrop:
		return s.CancelCrop(path)
	case ActionClearCrop:
		return s.ClearCrop(path)
	case ActionSelectContent:
		return s.SelectContent(a.ContentID)
	default:
		return fmt.Errorf("%w: unknown action type %q", ErrInvalidAction, a.Type)
	}
}

// edit runs fn against a scope under the session lock, then notifies.
func (s *Session) edit(scopePath schema.Path, fn func(sc *scope) error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	sc, ok := s.scopes[scopePath.Key()]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: no input scope at %s", ErrInvalidAction, scopePath)
	}
	err := fn(sc)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.touch()
	s.notify()
	return nil
}

func (sc *scope) engine() cascade.Engine {
	if sc.fields == nil {
		return cascade.Engine{Field: func(string) *schema.Node { return nil }, Ambient: sc.ambient}
	}
	return cascade.ForScope(sc.fields, sc.ambient)
}

// SetValue writes a field value, clears its error, runs its control rules
// and schedules a preview for the scope's panel.
func (s *Session) SetValue(scopePath schema.Path, field string, v any) error {
	if field == "" {
		return fmt.Errorf("%w: field is required", ErrInvalidAction)
	}
	return s.edit(scopePath, func(sc *scope) error {
		sc.store.SetValue(field, v)
		sc.engine().OnChange(sc.store, field)
		s.schedulePreview(sc)
		return nil
	})
}

// SelectOption selects a select field's option by position. Non-primitive
// option values are stored as indexed values.
func (s *Session) SelectOption(scopePath schema.Path, field string, index int) error {
	return s.edit(scopePath, func(sc *scope) error {
		engine := sc.engine()
		opts := engine.Options(sc.store, field)
		if index < 0 || index >= len(opts) {
			return fmt.Errorf("%w: option %d out of range for %s (%d options)", ErrInvalidAction, index, field, len(opts))
		}
		var v any = opts[index].Value
		if opts[index].IsObject() {
			v = store.IndexedValue{Index: index, Underlying: opts[index].Value}
		}
		sc.store.SetValue(field, v)
		engine.OnChange(sc.store, field)
		s.schedulePreview(sc)
		return nil
	})
}

// ClearValue empties a field. Dependents are cleared by its control rules.
func (s *Session) ClearValue(scopePath schema.Path, field string) error {
	return s.edit(scopePath, func(sc *scope) error {
		sc.store.SetValue(field, nil)
		sc.engine().OnChange(sc.store, field)
		s.schedulePreview(sc)
		return nil
	})
}

// SelectTab activates a tab within the tabs container at path.
func (s *Session) SelectTab(container schema.Path, tabID string) error {
	if tabID == "" {
		return fmt.Errorf("%w: tab is required", ErrInvalidAction)
	}
	s.mu.Lock()
	s.tabs[container.Key()] = tabID
	s.mu.Unlock()
	s.touch()
	s.notify()
	return nil
}

// ToggleSelection flips an item in the selection store and reports the
// new state.
func (s *Session) ToggleSelection(p schema.Path) (bool, error) {
	if len(p) == 0 {
		return false, fmt.Errorf("%w: path is required", ErrInvalidAction)
	}
	s.mu.Lock()
	on := s.selection.Toggle(p)
	s.mu.Unlock()
	s.touch()
	s.notify()
	return on, nil
}

// SetFeedback records review text for an item.
func (s *Session) SetFeedback(p schema.Path, text string) error {
	if len(p) == 0 {
		return fmt.Errorf("%w: path is required", ErrInvalidAction)
	}
	s.mu.Lock()
	s.selection.SetFeedback(p, text)
	s.mu.Unlock()
	s.touch()
	s.notify()
	return nil
}

// Selected lists the selected item paths.
func (s *Session) Selected() []schema.Path {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.Selected()
}

// Generate validates the panel's scope and submits its mapped values.
// Validation failures are recorded on the fields and returned as a
// *store.ValidationError; no task is started.
func (s *Session) Generate(ctx context.Context, panel schema.Path) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	sc, ok := s.scopes[panel.Key()]
	if !ok || sc.panel == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", generation.ErrUnknownPanel, panel)
	}
	if verr := store.Validate(sc.store, sc.fields); verr != nil {
		s.mu.Unlock()
		s.notify()
		return verr
	}
	req := generation.Request{
		InteractionID: s.interactionID,
		Provider:      sc.panel.Provider,
		ActionType:    sc.panel.ActionType,
		PromptID:      sc.panel.PromptID,
		Params:        store.MappedValues(sc.store, sc.fields),
		SourceData:    sc.ambient,
	}
	s.mu.Unlock()
	s.touch()

	if err := s.orch.Generate(ctx, panel, req); err != nil {
		return err
	}
	s.notify()
	return nil
}

func (s *Session) ConfirmCrop(ctx context.Context, panel schema.Path, region tasks.CropRegion, remember bool) error {
	if region.Width <= 0 || region.Height <= 0 {
		return fmt.Errorf("%w: crop region must have a positive size", ErrInvalidAction)
	}
	s.touch()
	return s.orch.ConfirmCrop(ctx, panel, region, remember)
}

func (s *Session) CancelCrop(panel schema.Path) error {
	s.touch()
	return s.orch.CancelCrop(panel)
}

func (s *Session) ClearCrop(panel schema.Path) error {
	s.touch()
	return s.orch.ClearCrop(panel)
}

// SelectContent sets the session-wide selected content id; "" clears it.
func (s *Session) SelectContent(id string) error {
	s.touch()
	s.orch.SelectContent(id)
	return nil
}

// PanelState exposes a panel's generation state.
func (s *Session) PanelState(panel schema.Path) generation.View {
	return s.orch.View(panel)
}

// schedulePreview debounces an estimate for the scope's panel. Callers
// hold s.mu.
func (s *Session) schedulePreview(sc *scope) {
	if sc.panel == nil || s.client == nil {
		return
	}
	cfg := *sc.panel
	s.debounce.Trigger(cfg.Path.Key(), func() {
		s.mu.Lock()
		cur, ok := s.scopes[cfg.Path.Key()]
		if !ok || s.closed {
			s.mu.Unlock()
			return
		}
		params := store.MappedValues(cur.store, cur.fields)
		s.mu.Unlock()

		preview, err := s.client.Preview(s.ctx, tasks.PreviewRequest{
			Provider:   cfg.Provider,
			ActionType: cfg.ActionType,
			PromptID:   cfg.PromptID,
			Params:     params,
		})
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.logger.Warn("preview failed", "panel", cfg.Path.String(), "error", err)
			}
			return
		}
		s.orch.SetPreview(cfg.Path, &preview)
	})
}
