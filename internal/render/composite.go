package render

import (
	"fmt"
	"maps"
	"path"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/finops-claw-gang/genui/internal/generation"
	"github.com/finops-claw-gang/genui/internal/schema"
	"github.com/finops-claw-gang/genui/internal/store"
)

func (w *walker) composite(tok schema.Token, data any, node *schema.Node, p schema.Path, ux schema.UX, f frame, children []*Element) *Element {
	switch tok {
	case schema.TokenContentPanel:
		el := &Element{Kind: KindContentPanel, Token: tok, Path: p, Label: labelOf(ux, data), Children: children}
		if ux.DisplayFormat != "" {
			el.Text = w.formatText(ux.DisplayFormat, data)
		}
		return el
	case schema.TokenTable:
		el := w.table(data, node, p, ux)
		el.Children = children
		return el
	case schema.TokenMedia:
		return &Element{Kind: KindMedia, Token: tok, Path: p, Label: labelOf(ux, data), Media: collectMedia(data), Children: children}
	case schema.TokenPick, schema.TokenReview:
		el := w.selectable(tok, data, node, p, ux, f)
		el.Children = append(el.Children, children...)
		return el
	default:
		return w.generation(tok, p, ux, f)
	}
}

func (w *walker) table(data any, node *schema.Node, p schema.Path, ux schema.UX) *Element {
	el := &Element{Kind: KindTable, Token: schema.TokenTable, Path: p, Label: labelOf(ux, data), Table: &TableView{}}
	rows, _ := data.([]any)
	items := node.Items

	if items.Kind() != schema.TypeObject {
		el.Table.Columns = []Column{{Key: "value", Label: ux.Label("value")}}
		for i, item := range rows {
			el.Table.Rows = append(el.Table.Rows, []*Element{w.cell(item, items, p.Index(i))})
		}
		return el
	}

	for _, name := range items.PropertyNames() {
		col, _ := items.Property(name)
		if col.UX != nil && col.UX.Display == schema.DisplayHidden {
			continue
		}
		el.Table.Columns = append(el.Table.Columns, Column{Key: name, Label: col.Hints().Label(name)})
	}
	for i, item := range rows {
		m, _ := item.(map[string]any)
		row := make([]*Element, 0, len(el.Table.Columns))
		for _, c := range el.Table.Columns {
			col, _ := items.Property(c.Key)
			row = append(row, w.cell(m[c.Key], col, p.Index(i).Child(c.Key)))
		}
		el.Table.Rows = append(el.Table.Rows, row)
	}
	return el
}

func (w *walker) cell(v any, col *schema.Node, p schema.Path) *Element {
	ux := col.Hints()
	return w.value(schema.Token(ux.RenderAs), v, col, p, ux)
}

// selectable renders each array element, or the node itself, as an item
// the user can pick or review.
func (w *walker) selectable(tok schema.Token, data any, node *schema.Node, p schema.Path, ux schema.UX, f frame) *Element {
	list := &Element{Kind: KindContainer, Token: tok, Path: p, Label: labelOf(ux, data)}
	arr, isArr := data.([]any)
	if !isArr || node.Items == nil {
		list.Children = append(list.Children, w.selectItem(tok, data, node, p, ux.WithRenderAs(""), f))
		return list
	}
	for i, item := range arr {
		list.Children = append(list.Children, w.selectItem(tok, item, node.Items, p.Index(i), node.Items.Hints(), f))
	}
	return list
}

func (w *walker) selectItem(tok schema.Token, data any, node *schema.Node, p schema.Path, ux schema.UX, f frame) *Element {
	if ux.Display == "" {
		ux.Display = schema.DisplayVisible
	}
	view := &SelectionView{Mode: tok, Selected: w.env.Selection.IsSelected(p)}
	if tok == schema.TokenReview {
		view.Feedback = w.env.Selection.Feedback(p)
	}
	return &Element{
		Kind:      KindSelection,
		Token:     tok,
		Path:      p,
		Label:     labelOf(ux, data),
		Selection: view,
		Children:  appendElement(nil, w.walk(data, node, p, ux, f)),
	}
}

// generation renders a generation panel. Panels need an enclosing input
// scope and provider metadata.
func (w *walker) generation(tok schema.Token, p schema.Path, ux schema.UX, f frame) *Element {
	if f.scope == nil {
		w.log.Warn("generation panel outside an input scope", "path", p.String(), "action_type", string(tok))
		return nil
	}
	if ux.Provider == "" || ux.PromptID == "" {
		return &Element{
			Kind: KindDiagnostic,
			Path: p,
			Diagnostic: &Diagnostic{
				Severity: SeverityError,
				Field:    p.String(),
				Message:  fmt.Sprintf("%s panel on %s is missing provider metadata: provider and prompt_id are required", tok, p),
			},
		}
	}

	view := &GenerationView{ActionType: tok, Provider: ux.Provider, PromptID: ux.PromptID}
	if w.env.Generations != nil {
		view.State = w.env.Generations.View(p)
	} else {
		view.State = generation.View{Phase: generation.PhaseIdle, CanGenerate: true}
	}
	for _, name := range f.scope.fields.PropertyNames() {
		if msg := f.scope.store.Error(name); msg != "" {
			view.Errors = append(view.Errors, msg)
		}
	}
	return &Element{Kind: KindGeneration, Token: tok, Path: p, Label: ux.DisplayLabel, Generation: view}
}

func selectedKey(st *store.ValueStore, key string, value any, opts []schema.Option) string {
	if raw, ok := st.Raw(key); ok {
		if iv, ok := raw.(store.IndexedValue); ok {
			return strconv.Itoa(iv.Index)
		}
	}
	for _, o := range opts {
		if reflect.DeepEqual(o.Value, value) {
			return o.Key
		}
	}
	return ""
}

var mediaKinds = map[string]string{
	".mp4": "video", ".webm": "video", ".mov": "video",
	".mp3": "audio", ".wav": "audio", ".ogg": "audio", ".m4a": "audio",
}

// collectMedia gathers URL strings from data. Objects
// contribute their url or urls field when present, otherwise every value
// in key order.
func collectMedia(data any) []MediaItem {
	var out []MediaItem
	var visit func(v any)
	visit = func(v any) {
		switch t := v.(type) {
		case string:
			if isURL(t) {
				out = append(out, MediaItem{URL: t, Kind: mediaKind(t)})
			}
		case []any:
			for _, e := range t {
				visit(e)
			}
		case map[string]any:
			if u, ok := t["url"]; ok {
				visit(u)
				return
			}
			if u, ok := t["urls"]; ok {
				visit(u)
				return
			}
			for _, k := range slices.Sorted(maps.Keys(t)) {
				visit(t[k])
			}
		}
	}
	visit(data)
	return out
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "data:")
}

func mediaKind(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	if k, ok := mediaKinds[strings.ToLower(path.Ext(u))]; ok {
		return k
	}
	return "image"
}
