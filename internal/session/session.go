// Package session hosts one interactive document: its schema and data, the
// value stores of its input scopes, selections, tab state and generation
// panels. Every mutation goes through an explicit operation and bumps the
// session revision so subscribers can re-render.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/finops-claw-gang/genui/internal/cascade"
	"github.com/finops-claw-gang/genui/internal/generation"
	"github.com/finops-claw-gang/genui/internal/observability"
	"github.com/finops-claw-gang/genui/internal/render"
	"github.com/finops-claw-gang/genui/internal/schema"
	"github.com/finops-claw-gang/genui/internal/store"
	"github.com/finops-claw-gang/genui/internal/tasks"
)

var (
	ErrNotFound      = errors.New("session: not found")
	ErrInvalidAction = errors.New("session: invalid action")
	ErrClosed        = errors.New("session: closed")
)

// DefaultPreviewDelay debounces estimate requests after input changes.
const DefaultPreviewDelay = 300 * time.Millisecond

// Options configures a Session.
type Options struct {
	ID            string
	InteractionID string
	Actor         string
	Document      schema.Document
	Tasks         tasks.Client
	PreviewDelay  time.Duration
	Logger        *slog.Logger
	Metrics       *observability.Metrics
}

// Snapshot is a rendered view of the session at one revision.
type Snapshot struct {
	ID            string          `json:"id"`
	InteractionID string          `json:"interaction_id"`
	Revision      int64           `json:"revision"`
	Plan          *render.Element `json:"plan"`
}

// scope is one input_schema subtree and the store backing it.
type scope struct {
	root    schema.Path
	fields  *schema.Node
	ambient any
	store   *store.ValueStore
	// panel is set when the scope node is also a generation panel.
	panel *generation.PanelConfig
}

type Session struct {
	id            string
	interactionID string
	actor         string
	client        tasks.Client
	logger        *slog.Logger
	metrics       *observability.Metrics

	orch     *generation.Orchestrator
	debounce *generation.Debouncer
	ctx      context.Context
	cancel   context.CancelFunc

	mu        sync.Mutex
	doc       schema.Document
	scopes    map[string]*scope
	selection *store.SelectionStore
	tabs      map[string]string
	closed    bool

	subMu    sync.Mutex
	revision int64
	subs     map[int]chan int64
	nextSub  int
	lastUsed time.Time
}

// New builds a session over a document. Call Mount before serving it so
// panels pick up history and in-flight tasks.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	delay := opts.PreviewDelay
	if delay <= 0 {
		delay = DefaultPreviewDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:            opts.ID,
		interactionID: opts.InteractionID,
		actor:         opts.Actor,
		client:        opts.Tasks,
		logger:        logger.With("session_id", opts.ID),
		metrics:       opts.Metrics,
		debounce:      generation.NewDebouncer(delay),
		ctx:           ctx,
		cancel:        cancel,
		scopes:        make(map[string]*scope),
		selection:     store.NewSelectionStore(),
		tabs:          make(map[string]string),
		subs:          make(map[int]chan int64),
		lastUsed:      time.Now(),
	}
	s.orch = generation.New(generation.Options{
		SessionID:     opts.ID,
		InteractionID: opts.InteractionID,
		Actor:         opts.Actor,
		Client:        opts.Tasks,
		Logger:        logger,
		Metrics:       opts.Metrics,
		OnChange:      func(schema.Path) { s.notify() },
	})
	s.load(opts.Document)
	return s
}

func (s *Session) ID() string            { return s.id }
func (s *Session) InteractionID() string { return s.interactionID }

// Revision counts state changes since the session was created.
func (s *Session) Revision() int64 {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return s.revision
}

// LastUsed is when an operation last touched the session.
func (s *Session) LastUsed() time.Time {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return s.lastUsed
}

func (s *Session) touch() {
	s.subMu.Lock()
	s.lastUsed = time.Now()
	s.subMu.Unlock()
}

// load discovers scopes and panels in doc. Existing stores whose scope
// root survives keep their values. It returns the roots of new scopes.
// Callers hold s.mu, or own s exclusively.
func (s *Session) load(doc schema.Document) map[string]bool {
	s.doc = doc
	fresh := make(map[string]bool)
	next := make(map[string]*scope)

	root := s.scopes[schema.Root().Key()]
	if root == nil {
		root = &scope{root: schema.Root(), store: store.NewValueStore()}
	}
	next[schema.Root().Key()] = root

	schema.Walk(doc.Schema, doc.Data, func(p schema.Path, n *schema.Node, data any) {
		ux := n.Hints()
		if ux.InputSchema == nil {
			return
		}
		key := p.Key()
		sc := &scope{root: p, fields: ux.InputSchema, ambient: data}
		if prev, ok := s.scopes[key]; ok {
			sc.store = prev.store
		} else {
			sc.store = store.NewValueStore()
			fresh[key] = true
		}
		if tok, ok := schema.GenerationToken(ux.RenderAs); ok && ux.Provider != "" && ux.PromptID != "" {
			sc.panel = &generation.PanelConfig{
				Path:       p,
				Provider:   ux.Provider,
				PromptID:   ux.PromptID,
				ActionType: string(tok),
			}
		}
		store.Seed(sc.store, sc.fields, sc.ambient)
		next[key] = sc
	})
	s.scopes = next

	for key := range fresh {
		s.cascadeAll(s.scopes[key])
	}
	return fresh
}

// cascadeAll fires the control rules of every seeded controller in a
// scope, so dependent options are populated before the first render.
func (s *Session) cascadeAll(sc *scope) {
	engine := cascade.ForScope(sc.fields, sc.ambient)
	for _, name := range sc.fields.PropertyNames() {
		if sc.store.Has(name) {
			engine.OnChange(sc.store, name)
		}
	}
}

func (s *Session) panels() []generation.PanelConfig {
	var out []generation.PanelConfig
	for _, sc := range s.scopes {
		if sc.panel != nil {
			out = append(out, *sc.panel)
		}
	}
	return out
}

// Mount loads history and in-flight tasks for every generation panel and
// restores each panel's inputs from its latest generation.
func (s *Session) Mount(ctx context.Context) error {
	s.mu.Lock()
	panels := s.panels()
	s.mu.Unlock()
	return s.mount(ctx, panels, nil)
}

// mount restores only the scopes in restorable; nil means all.
func (s *Session) mount(ctx context.Context, panels []generation.PanelConfig, restorable map[string]bool) error {
	if len(panels) == 0 || s.client == nil {
		for _, cfg := range panels {
			s.orch.Register(cfg)
		}
		return nil
	}
	restore, err := s.orch.Mount(ctx, panels)
	if err != nil {
		return fmt.Errorf("session: mount: %w", err)
	}
	s.mu.Lock()
	for key, params := range restore {
		if restorable != nil && !restorable[key] {
			continue
		}
		if sc, ok := s.scopes[key]; ok && sc.fields != nil {
			store.RestoreMapped(sc.store, sc.fields, params)
			s.cascadeAll(sc)
		}
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// Render plans the whole document against the current state.
func (s *Session) Render() *render.Element {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renderLocked()
}

func (s *Session) renderLocked() *render.Element {
	s.metrics.RecordRender(s.ctx)
	return render.Render(s.doc, render.Env{
		Scopes:      scopeLookup{s},
		Selection:   s.selection,
		ActiveTabs:  maps.Clone(s.tabs),
		Generations: s.orch,
		Logger:      s.logger,
	})
}

// Snapshot renders the session together with its revision.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:            s.id,
		InteractionID: s.interactionID,
		Revision:      s.Revision(),
		Plan:          s.renderLocked(),
	}
}

// scopeLookup adapts the session's scopes to render.Scopes. Render runs
// with s.mu held and only reads; scopes are registered by load.
type scopeLookup struct{ s *Session }

func (l scopeLookup) Scope(root schema.Path) *store.ValueStore {
	if sc, ok := l.s.scopes[root.Key()]; ok {
		return sc.store
	}
	return store.NewValueStore()
}

// Document returns the current document.
func (s *Session) Document() schema.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// UpdateDocument swaps in new schema and data. Stores of surviving scopes
// keep their values; new panels are mounted.
func (s *Session) UpdateDocument(ctx context.Context, doc schema.Document) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	fresh := s.load(doc)
	var mount []generation.PanelConfig
	for key := range fresh {
		if p := s.scopes[key].panel; p != nil {
			mount = append(mount, *p)
		}
	}
	for _, sc := range s.scopes {
		if sc.panel != nil && !fresh[sc.root.Key()] {
			s.orch.Register(*sc.panel)
		}
	}
	s.mu.Unlock()
	s.touch()

	if err := s.mount(ctx, mount, fresh); err != nil {
		return err
	}
	s.notify()
	return nil
}

// Subscribe returns a channel that receives the revision after each state
// change. Bursts coalesce: a slow reader sees the latest revision. The
// channel closes when the session closes or cancel is called.
func (s *Session) Subscribe() (<-chan int64, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	ch := make(chan int64, 1)
	if s.subs == nil {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Session) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.revision++
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s.revision
	}
}

// Close stops previews and task streams and closes subscriptions. Remote
// tasks keep running.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.debounce.Stop()
	s.orch.Close()
	s.cancel()

	s.subMu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.subs = nil
	s.subMu.Unlock()
}

// RenderDocument plans a document once with freshly seeded inputs and no
// task service attached.
func RenderDocument(doc schema.Document, logger *slog.Logger) *render.Element {
	s := New(Options{Document: doc, Logger: logger})
	defer s.Close()
	return s.Render()
}
