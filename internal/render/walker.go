package render

import (
	"fmt"
	"log/slog"

	"github.com/finops-claw-gang/genui/internal/datapath"
	"github.com/finops-claw-gang/genui/internal/format"
	"github.com/finops-claw-gang/genui/internal/generation"
	"github.com/finops-claw-gang/genui/internal/schema"
	"github.com/finops-claw-gang/genui/internal/store"
)

// Scopes resolves the value store of an input scope by its root path. The
// root scope, for inputs outside any input_schema, is schema.Root().
type Scopes interface {
	Scope(root schema.Path) *store.ValueStore
}

// Generations resolves the state of a generation panel by its path.
type Generations interface {
	View(panel schema.Path) generation.View
}

// Env carries the read-only inputs of one render pass. Every field is
// optional.
type Env struct {
	Scopes      Scopes
	Selection   *store.SelectionStore
	ActiveTabs  map[string]string
	Generations Generations
	State       map[string]any
	Logger      *slog.Logger
}

// Render produces the plan for a whole document, or nil if nothing renders.
func Render(doc schema.Document, env Env) *Element {
	return Node(doc.Data, doc.Schema, schema.Root(), env)
}

// Node renders one subtree at path p, outside any tabs container or input
// scope.
func Node(data any, node *schema.Node, p schema.Path, env Env) *Element {
	w := &walker{env: env, root: data, log: env.Logger}
	if w.log == nil {
		w.log = slog.Default()
	}
	return w.walk(data, node, p, node.Hints(), frame{})
}

type walker struct {
	env  Env
	root any
	log  *slog.Logger
}

// frame is the context inherited down the recursion: the nearest tabs
// registry and the nearest input scope.
type frame struct {
	tabs  *store.TabRegistry
	scope *scopeFrame
}

type scopeFrame struct {
	root    schema.Path
	fields  *schema.Node
	store   *store.ValueStore
	ambient any
}

func (f frame) withTabs(r *store.TabRegistry) frame {
	f.tabs = r
	return f
}

func (f frame) withScope(sf *scopeFrame) frame {
	f.scope = sf
	return f
}

func (w *walker) walk(data any, node *schema.Node, p schema.Path, ux schema.UX, f frame) *Element {
	if node == nil {
		return nil
	}
	if data == nil && ux.InputType == "" {
		return nil
	}
	if spec := schema.ParseRenderAs(ux.RenderAs); spec.Compound() {
		return w.chain(spec.Chain, 0, data, node, p, ux, f)
	}
	return w.dispatch(data, node, p, ux, f)
}

// chain folds a compound directive from the right: the innermost segment
// renders first and each outer segment wraps what is inside it. Scopes an
// outer segment opens are in effect while the inner ones render.
func (w *walker) chain(chain []schema.Segment, i int, data any, node *schema.Node, p schema.Path, ux schema.UX, f frame) *Element {
	seg := chain[i]
	last := i == len(chain)-1
	if last && !seg.Brackets {
		return w.dispatch(data, node, p, ux.WithRenderAs(string(seg.Token)), f)
	}

	inner := f
	switch seg.Token {
	case schema.TokenTabs:
		inner = f.withTabs(w.registry(p))
	case schema.TokenInputSchema:
		inner = f.withScope(w.openScope(p, ux, data))
	}

	children := []*Element{}
	if !last {
		children = appendElement(children, w.chain(chain, i+1, data, node, p, ux, inner))
	}
	if seg.Brackets {
		children = append(children, w.siblings(seg, data, node, p, ux, inner)...)
	}
	return w.wrap(seg.Token, data, node, p, ux, inner, children)
}

// siblings renders bracketed siblings against the same data and path. If
// one of them is input_schema, all of them share a fresh input scope.
func (w *walker) siblings(seg schema.Segment, data any, node *schema.Node, p schema.Path, ux schema.UX, f frame) []*Element {
	if !seg.HasSibling(schema.TokenInputSchema) {
		var out []*Element
		for _, sib := range seg.Siblings {
			out = appendElement(out, w.walk(data, node, p, ux.WithRenderAs(sib), f))
		}
		return out
	}

	sf := w.openScope(p, ux, data)
	inner := f.withScope(sf)
	var children []*Element
	for _, sib := range seg.Siblings {
		if schema.Token(sib) == schema.TokenInputSchema {
			children = append(children, w.inputFields(sf, inner)...)
			continue
		}
		children = appendElement(children, w.walk(data, node, p, ux.WithRenderAs(sib), inner))
	}
	return []*Element{w.scopeElement(sf, children)}
}

// wrap renders an outer chain segment around already-rendered children.
func (w *walker) wrap(tok schema.Token, data any, node *schema.Node, p schema.Path, ux schema.UX, f frame, children []*Element) *Element {
	switch tok.Class() {
	case schema.ClassTab:
		return w.tab(data, p, ux, f, children)
	case schema.ClassTabs:
		return w.tabs(data, p, ux, f, children)
	case schema.ClassComposite:
		return w.composite(tok, data, node, p, ux, f, children)
	case schema.ClassInputSchema:
		return w.scopeElement(f.scope, append(w.inputFields(f.scope, f), children...))
	case schema.ClassContainer:
		return &Element{Kind: KindContainer, Token: tok, Path: p, Label: labelOf(ux, data), Children: children}
	case schema.ClassRole:
		return &Element{Kind: KindRole, Token: tok, Path: p, Label: labelOf(ux, data), Children: children}
	case schema.ClassTerminal:
		el := w.value(tok, data, node, p, ux)
		el.Children = children
		return el
	case schema.ClassNone:
		return fragment(p, children)
	default:
		return w.unknown(tok, p)
	}
}

// dispatch routes a node carrying at most one plain token. Rules apply in
// order and the first match wins.
func (w *walker) dispatch(data any, node *schema.Node, p schema.Path, ux schema.UX, f frame) *Element {
	tok := schema.Token(ux.RenderAs)
	switch tok.Class() {
	case schema.ClassTab:
		return w.tab(data, p, ux, f, w.content(data, node, p, ux, f))
	case schema.ClassTabs:
		inner := f.withTabs(w.registry(p))
		return w.tabs(data, p, ux, inner, w.content(data, node, p, ux, inner))
	case schema.ClassInputSchema:
		sf := w.openScope(p, ux, data)
		return w.scopeElement(sf, w.inputFields(sf, f.withScope(sf)))
	case schema.ClassComposite:
		var children []*Element
		if tok == schema.TokenContentPanel {
			children = w.content(data, node, p, ux, f)
		}
		return w.composite(tok, data, node, p, ux, f, children)
	}

	switch {
	case ux.DisplayFormat != "" && ux.RenderAs == "":
		return &Element{Kind: KindValue, Token: schema.TokenText, Path: p, Label: ux.DisplayLabel, Value: data, Text: w.formatText(ux.DisplayFormat, data)}
	case node.IsStructural():
		return w.structural(tok, data, node, p, ux, f)
	case ux.InputType != "":
		return w.input(data, node, p, ux, f)
	default:
		return w.terminal(tok, data, node, p, ux)
	}
}

func (w *walker) structural(tok schema.Token, data any, node *schema.Node, p schema.Path, ux schema.UX, f frame) *Element {
	switch ux.Display.Effective() {
	case schema.DisplayHidden:
		return nil
	case schema.DisplayPassthrough:
		return fragment(p, w.content(data, node, p, ux, f))
	}
	switch tok.Class() {
	case schema.ClassUnknown:
		return w.unknown(tok, p)
	case schema.ClassContainer:
		return &Element{Kind: KindContainer, Token: tok, Path: p, Label: labelOf(ux, data), Children: w.content(data, node, p, ux, f)}
	case schema.ClassRole:
		return &Element{Kind: KindRole, Token: tok, Path: p, Label: labelOf(ux, data), Children: w.content(data, node, p, ux, f)}
	default:
		return &Element{Kind: KindContainer, Token: schema.TokenContainer, Path: p, Label: labelOf(ux, data), Children: w.content(data, node, p, ux, f)}
	}
}

func (w *walker) terminal(tok schema.Token, data any, node *schema.Node, p schema.Path, ux schema.UX) *Element {
	if ux.Display.Effective() == schema.DisplayHidden {
		return nil
	}
	switch tok.Class() {
	case schema.ClassUnknown:
		return w.unknown(tok, p)
	case schema.ClassRole:
		return &Element{Kind: KindRole, Token: tok, Path: p, Label: ux.DisplayLabel, Value: data, Text: w.text(data, ux)}
	case schema.ClassContainer:
		return &Element{Kind: KindContainer, Token: tok, Path: p, Label: ux.DisplayLabel, Children: []*Element{w.value("", data, node, p, ux)}}
	}
	return w.value(tok, data, node, p, ux)
}

// content renders what a node contains: each declared property in order,
// each array element, or the primitive value itself.
func (w *walker) content(data any, node *schema.Node, p schema.Path, ux schema.UX, f frame) []*Element {
	var out []*Element
	switch node.Kind() {
	case schema.TypeObject:
		m, _ := data.(map[string]any)
		for _, name := range node.PropertyNames() {
			child, _ := node.Property(name)
			out = appendElement(out, w.walk(m[name], child, p.Child(name), child.Hints(), f))
		}
	case schema.TypeArray:
		arr, _ := data.([]any)
		for i, item := range arr {
			out = appendElement(out, w.walk(item, node.Items, p.Index(i), node.Items.Hints(), f))
		}
	default:
		if data != nil {
			out = append(out, w.value("", data, node, p, ux))
		}
	}
	return out
}

func (w *walker) value(tok schema.Token, data any, node *schema.Node, p schema.Path, ux schema.UX) *Element {
	if tok == "" || tok.Class() != schema.ClassTerminal {
		tok = inferToken(node)
	}
	return &Element{Kind: KindValue, Token: tok, Path: p, Label: ux.DisplayLabel, Value: data, Text: w.text(data, ux)}
}

func (w *walker) text(data any, ux schema.UX) string {
	if ux.DisplayFormat != "" {
		return w.formatText(ux.DisplayFormat, data)
	}
	return format.Stringify(data)
}

func (w *walker) formatText(tmpl string, data any) string {
	return format.Render(tmpl, data, map[string]any{"value": data}, w.env.State)
}

func (w *walker) unknown(tok schema.Token, p schema.Path) *Element {
	w.log.Warn("unknown render_as token", "token", string(tok), "path", p.String())
	return &Element{
		Kind: KindDiagnostic,
		Path: p,
		Diagnostic: &Diagnostic{
			Severity: SeverityWarning,
			Field:    p.String(),
			Message:  fmt.Sprintf("unknown render_as token %q on %s", tok, p),
			Expected: schema.KnownTokens(),
		},
	}
}

func (w *walker) registry(p schema.Path) *store.TabRegistry {
	return store.NewTabRegistry(w.env.ActiveTabs[p.Key()])
}

func (w *walker) tab(data any, p schema.Path, ux schema.UX, f frame, children []*Element) *Element {
	label := labelOf(ux, data)
	if label == "" {
		label = p.Last()
	}
	if f.tabs == nil {
		w.log.Warn("tab rendered outside a tabs container", "path", p.String())
		return fragment(p, children)
	}
	f.tabs.Register(p.Key(), label)
	return &Element{Kind: KindTab, Path: p, Label: label, TabID: p.Key(), Children: children}
}

// tabs builds the container header from the registry its descendants
// registered with, and drops the content of every inactive tab.
func (w *walker) tabs(data any, p schema.Path, ux schema.UX, f frame, children []*Element) *Element {
	active := f.tabs.Active()
	return &Element{
		Kind:     KindTabs,
		Token:    schema.TokenTabs,
		Path:     p,
		Label:    labelOf(ux, data),
		Tabs:     &TabsView{Tabs: f.tabs.Tabs(), Active: active},
		Children: prune(children, active),
	}
}

// prune replaces the active tab element with its content and removes the
// others. Nested tabs containers have already been pruned.
func prune(children []*Element, active string) []*Element {
	var out []*Element
	for _, c := range children {
		switch c.Kind {
		case KindTab:
			if c.TabID == active {
				out = append(out, prune(c.Children, active)...)
			}
		case KindTabs:
			out = append(out, c)
		default:
			c.Children = prune(c.Children, active)
			out = append(out, c)
		}
	}
	return out
}

func (w *walker) openScope(p schema.Path, ux schema.UX, data any) *scopeFrame {
	sf := &scopeFrame{root: p, fields: ux.InputSchema, ambient: data}
	if w.env.Scopes != nil {
		sf.store = w.env.Scopes.Scope(p)
	}
	return sf
}

func (w *walker) inputFields(sf *scopeFrame, f frame) []*Element {
	m, _ := sf.ambient.(map[string]any)
	var out []*Element
	for _, name := range sf.fields.PropertyNames() {
		field, _ := sf.fields.Property(name)
		out = appendElement(out, w.walk(m[name], field, sf.root.Child(name), field.Hints(), f))
	}
	return out
}

func (w *walker) scopeElement(sf *scopeFrame, children []*Element) *Element {
	view := &ScopeView{}
	for _, name := range sf.fields.PropertyNames() {
		if msg := sf.store.Error(name); msg != "" {
			view.Errors = append(view.Errors, store.FieldError{Field: name, Message: msg})
		}
	}
	return &Element{Kind: KindInputScope, Path: sf.root, Scope: view, Children: children}
}

// input renders an editable field. Inside an input scope the field is keyed
// relative to the scope root; elsewhere it lives in the root scope under
// its full path.
func (w *walker) input(data any, node *schema.Node, p schema.Path, ux schema.UX, f frame) *Element {
	var (
		scopeRoot = schema.Root()
		key       = p.Key()
		st        *store.ValueStore
		fallback  = data
		ambient   = w.root
		required  = ux.Required
	)
	if sf := f.scope; sf != nil && len(p) > len(sf.root) && p.HasPrefix(sf.root) {
		scopeRoot, st, ambient = sf.root, sf.store, sf.ambient
		key = p.TrimPrefix(sf.root).Key()
		fallback, _ = store.InitialValue(key, node, sf.ambient)
		required = required || sf.fields.IsRequired(key)
	} else if w.env.Scopes != nil {
		st = w.env.Scopes.Scope(schema.Root())
	}
	if fallback == nil {
		fallback = node.Default
	}

	iv := &InputView{
		Scope:       scopeRoot,
		Field:       key,
		Type:        ux.InputType,
		Value:       st.ValueOr(key, fallback),
		Error:       st.Error(key),
		Required:    required,
		Placeholder: ux.Placeholder,
		Minimum:     firstBound(ux.Minimum, node.Minimum),
		Maximum:     firstBound(ux.Maximum, node.Maximum),
		Step:        ux.Step,
	}
	if ux.InputType == schema.InputSelect {
		opts, dynamic := st.Options(key)
		if !dynamic {
			opts = schema.StaticOptions(node, ambient)
		}
		iv.Options, iv.Dynamic = opts, dynamic
		iv.SelectedKey = selectedKey(st, key, iv.Value, opts)
	}
	return &Element{Kind: KindInput, Path: p, Label: ux.Label(p.Last()), Input: iv}
}

func labelOf(ux schema.UX, data any) string {
	if ux.DisplayLabel != "" {
		return ux.DisplayLabel
	}
	if ux.LabelField != "" {
		if v, ok := datapath.Get(data, ux.LabelField); ok {
			return format.Stringify(v)
		}
	}
	return ""
}

func inferToken(node *schema.Node) schema.Token {
	switch node.Kind() {
	case schema.TypeNumber, schema.TypeInteger:
		return schema.TokenNumber
	default:
		return schema.TokenText
	}
}

func firstBound(a, b *float64) *float64 {
	if a != nil {
		return a
	}
	return b
}

// fragment collapses children into one element: nil, the only child, or a
// fragment that parents splice in place.
func fragment(p schema.Path, children []*Element) *Element {
	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	default:
		return &Element{Kind: KindFragment, Path: p, Children: children}
	}
}

func appendElement(list []*Element, el *Element) []*Element {
	switch {
	case el == nil:
		return list
	case el.Kind == KindFragment:
		return append(list, el.Children...)
	default:
		return append(list, el)
	}
}
