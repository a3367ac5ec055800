package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/finops-claw-gang/genui/internal/observability"
	"github.com/finops-claw-gang/genui/internal/schema"
	"github.com/finops-claw-gang/genui/internal/tasks"
)

// PanelConfig is the static metadata of one generation panel.
type PanelConfig struct {
	Path        schema.Path
	Provider    string
	PromptID    string
	ActionType  string
	SubActionID string
}

// View is the read-only panel state a render pass shows.
type View struct {
	Phase             Phase             `json:"phase"`
	TaskID            string            `json:"task_id,omitempty"`
	Progress          *tasks.Progress   `json:"progress,omitempty"`
	Error             string            `json:"error,omitempty"`
	Results           []tasks.Result    `json:"results,omitempty"`
	Queued            bool              `json:"queued,omitempty"`
	AwaitingCrop      bool              `json:"awaiting_crop,omitempty"`
	SavedCrop         *tasks.CropRegion `json:"saved_crop,omitempty"`
	Preview           *tasks.Preview    `json:"preview,omitempty"`
	SelectedContentID string            `json:"selected_content_id,omitempty"`
	CanGenerate       bool              `json:"can_generate"`
}

// Options configures an Orchestrator.
type Options struct {
	SessionID     string
	InteractionID string
	Actor         string
	Client        tasks.Client
	Logger        *slog.Logger
	Metrics       *observability.Metrics
	// OnChange is called after any panel state changes, without locks held.
	OnChange func(panel schema.Path)
}

// Orchestrator owns the state of every generation panel in a session and
// the task streams they listen to.
type Orchestrator struct {
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	panels   map[string]*panel
	selected string
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type panel struct {
	cfg       PanelConfig
	state     State
	preview   *tasks.Preview
	stream    context.CancelFunc
	startedAt time.Time
	// registered is false for panels only touched by SetPreview.
	registered bool
}

func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		opts:   opts,
		logger: logger.With("session_id", opts.SessionID),
		panels: make(map[string]*panel),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register declares a panel. Registering an existing path updates its
// metadata and keeps its state.
func (o *Orchestrator) Register(cfg PanelConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	pn := o.panel(cfg.Path)
	pn.cfg, pn.registered = cfg, true
}

// View snapshots a panel for rendering.
func (o *Orchestrator) View(p schema.Path) View {
	o.mu.Lock()
	defer o.mu.Unlock()
	pn, ok := o.panels[p.Key()]
	if !ok {
		return View{Phase: PhaseIdle, CanGenerate: true, SelectedContentID: o.selected}
	}
	s := pn.state
	phase := s.Phase
	if phase == "" {
		phase = PhaseIdle
	}
	return View{
		Phase:             phase,
		TaskID:            s.TaskID,
		Progress:          s.Progress,
		Error:             s.Error,
		Results:           s.Results,
		Queued:            s.Queued != nil,
		AwaitingCrop:      phase == PhaseAwaitingCrop,
		SavedCrop:         s.SavedCrop,
		Preview:           pn.preview,
		SelectedContentID: o.selected,
		CanGenerate:       phase == PhaseIdle || phase == PhaseRunning,
	}
}

// State returns a copy of a panel's full state.
func (o *Orchestrator) State(p schema.Path) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if pn, ok := o.panels[p.Key()]; ok {
		return pn.state
	}
	return State{Phase: PhaseIdle}
}

// Generate submits req for the panel, queues it behind a running task, or
// parks it awaiting a crop. A failed submission is recorded on the panel
// rather than returned.
func (o *Orchestrator) Generate(ctx context.Context, p schema.Path, req Request) error {
	if err := o.known(p); err != nil {
		return err
	}
	return o.dispatch(ctx, p, Generate{Request: req})
}

// ConfirmCrop supplies the crop region a parked request is waiting for.
// With remember set the region is reused by later requests until cleared.
func (o *Orchestrator) ConfirmCrop(ctx context.Context, p schema.Path, region tasks.CropRegion, remember bool) error {
	if err := o.known(p); err != nil {
		return err
	}
	return o.dispatch(ctx, p, CropConfirm{Region: region, Remember: remember})
}

func (o *Orchestrator) CancelCrop(p schema.Path) error {
	if err := o.known(p); err != nil {
		return err
	}
	return o.dispatch(o.ctx, p, CropCancel{})
}

func (o *Orchestrator) ClearCrop(p schema.Path) error {
	if err := o.known(p); err != nil {
		return err
	}
	return o.dispatch(o.ctx, p, ClearCrop{})
}

// SetPreview records the latest estimate for a panel.
func (o *Orchestrator) SetPreview(p schema.Path, preview *tasks.Preview) {
	o.mu.Lock()
	o.panel(p).preview = preview
	o.mu.Unlock()
	o.changed(p)
}

// SelectContent sets the session-wide selected content id; "" clears it.
func (o *Orchestrator) SelectContent(id string) {
	o.mu.Lock()
	o.selected = id
	o.mu.Unlock()
	o.changed(schema.Root())
}

func (o *Orchestrator) SelectedContent() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.selected
}

// Close stops every local stream subscription. Remote tasks keep running
// and can be reconnected by a later mount.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.cancel()
	o.wg.Wait()
}

// Mount registers panels, then loads history and in-flight tasks for the
// session concurrently. History seeds each panel's results; an in-flight
// task matching a panel's provider and prompt is adopted as running. It
// returns the request params of each panel's most recent generation, keyed
// by panel path, so callers can restore inputs.
func (o *Orchestrator) Mount(ctx context.Context, panels []PanelConfig) (map[string]map[string]any, error) {
	for _, cfg := range panels {
		o.Register(cfg)
	}

	kinds := make(map[string]struct{})
	for _, cfg := range panels {
		kinds[tasks.ContentKind(cfg.ActionType)] = struct{}{}
	}

	var (
		mu       sync.Mutex
		history  = make(map[string][]tasks.HistoryGroup)
		inflight []tasks.InFlightTask
	)
	g, gctx := errgroup.WithContext(ctx)
	for kind := range kinds {
		g.Go(func() error {
			groups, err := o.opts.Client.History(gctx, tasks.HistoryQuery{
				SessionID:     o.opts.SessionID,
				InteractionID: o.opts.InteractionID,
				ContentKind:   kind,
			})
			if err != nil {
				return fmt.Errorf("history %s: %w", kind, err)
			}
			mu.Lock()
			history[kind] = groups
			mu.Unlock()
			return nil
		})
	}
	g.Go(func() error {
		list, err := o.opts.Client.ListInFlight(gctx, o.opts.SessionID)
		if err != nil {
			return fmt.Errorf("list in-flight: %w", err)
		}
		inflight = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("generation: mount: %w", err)
	}

	restore := make(map[string]map[string]any)
	for _, cfg := range panels {
		group, ok := findGroup(history[tasks.ContentKind(cfg.ActionType)], cfg)
		if !ok || len(group.Generations) == 0 {
			continue
		}
		results := make([]tasks.Result, len(group.Generations))
		for i, gen := range group.Generations {
			results[i] = tasks.Result{URLs: gen.URLs, MetadataID: gen.MetadataID, ContentIDs: gen.ContentIDs}
		}
		if err := o.dispatch(ctx, cfg.Path, Seed{Results: results}); err != nil {
			return nil, err
		}
		if params := group.Generations[len(group.Generations)-1].RequestParams; params != nil {
			restore[cfg.Path.Key()] = params
		}
	}

	adopted := make(map[string]string)
	for _, t := range inflight {
		if t.Status != tasks.StatusProcessing || t.Payload.InteractionID != o.opts.InteractionID {
			continue
		}
		cfg, ok := matchPanel(panels, t.Payload)
		if !ok {
			continue
		}
		key := cfg.Path.Key()
		if prev, dup := adopted[key]; dup {
			o.logger.Warn("ignoring duplicate in-flight task for panel",
				"panel", cfg.Path.String(), "task_id", t.TaskID, "adopted_task_id", prev)
			continue
		}
		adopted[key] = t.TaskID
		if err := o.dispatch(ctx, cfg.Path, Reconnect{TaskID: t.TaskID, Progress: t.Progress}); err != nil {
			return nil, err
		}
	}
	return restore, nil
}

func findGroup(groups []tasks.HistoryGroup, cfg PanelConfig) (tasks.HistoryGroup, bool) {
	for _, g := range groups {
		if g.Provider == cfg.Provider && g.PromptID == cfg.PromptID {
			return g, true
		}
	}
	return tasks.HistoryGroup{}, false
}

func matchPanel(panels []PanelConfig, payload tasks.TaskPayload) (PanelConfig, bool) {
	for _, cfg := range panels {
		if cfg.Provider == payload.Provider && cfg.PromptID == payload.PromptID {
			return cfg, true
		}
	}
	return PanelConfig{}, false
}

func (o *Orchestrator) known(p schema.Path) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if pn, ok := o.panels[p.Key()]; !ok || !pn.registered {
		return fmt.Errorf("%w: %s", ErrUnknownPanel, p)
	}
	return nil
}

// panel returns the panel at p, creating it. Callers hold o.mu.
func (o *Orchestrator) panel(p schema.Path) *panel {
	key := p.Key()
	pn, ok := o.panels[key]
	if !ok {
		pn = &panel{cfg: PanelConfig{Path: p}, state: State{Phase: PhaseIdle}}
		o.panels[key] = pn
	}
	return pn
}

func (o *Orchestrator) dispatch(ctx context.Context, p schema.Path, ev Event) error {
	o.mu.Lock()
	pn := o.panel(p)
	prev := pn.state
	next, effects, err := Transition(prev, ev)
	if err != nil {
		o.mu.Unlock()
		return err
	}
	pn.state = next
	o.observe(pn, prev, next)
	o.mu.Unlock()

	o.changed(p)
	for _, eff := range effects {
		if err := o.run(ctx, p, eff); err != nil {
			return err
		}
	}
	return nil
}

// observe records metrics for a state change. Callers hold o.mu.
func (o *Orchestrator) observe(pn *panel, prev, next State) {
	m := o.opts.Metrics
	provider, action := pn.cfg.Provider, pn.cfg.ActionType
	if prev.TaskID == "" && next.TaskID != "" {
		pn.startedAt = time.Now()
		m.GenerationStarted(o.ctx, provider, action)
	}
	if prev.TaskID != "" && next.TaskID != prev.TaskID {
		if len(next.Finished) > len(prev.Finished) && next.Error == "" {
			m.GenerationCompleted(o.ctx, provider, action, time.Since(pn.startedAt))
		} else if next.Error != "" {
			m.GenerationFailed(o.ctx, provider, action)
		}
		if pn.stream != nil {
			pn.stream()
			pn.stream = nil
		}
	}
}

func (o *Orchestrator) run(ctx context.Context, p schema.Path, eff Effect) error {
	switch e := eff.(type) {
	case StartTask:
		handle, err := o.opts.Client.SubmitSubAction(ctx, o.subAction(e.Request))
		if err != nil {
			o.logger.Error("submit generation failed", "panel", p.String(), "error", err)
			return o.dispatch(o.ctx, p, StartFailed{Message: err.Error()})
		}
		return o.dispatch(o.ctx, p, TaskStarted{TaskID: handle.TaskID})
	case OpenStream:
		o.openStream(p, e.TaskID)
	}
	return nil
}

func (o *Orchestrator) subAction(req Request) tasks.SubActionRequest {
	return tasks.SubActionRequest{
		SessionID:     o.opts.SessionID,
		InteractionID: req.InteractionID,
		ActionID:      req.ActionID,
		SubActionID:   req.SubActionID,
		Actor:         o.opts.Actor,
		Params: tasks.SubActionParams{
			Provider:   req.Provider,
			ActionType: req.ActionType,
			PromptID:   req.PromptID,
			Params:     req.Params,
			SourceData: req.SourceData,
			CropRegion: req.Crop,
		},
	}
}

// openStream subscribes to a task in the background. The subscription
// ends on a terminal event, when the panel stops tracking the task, or on
// Close.
func (o *Orchestrator) openStream(p schema.Path, taskID string) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	sctx, cancel := context.WithCancel(o.ctx)
	pn := o.panel(p)
	if pn.stream != nil {
		pn.stream()
	}
	pn.stream = cancel
	o.wg.Add(1)
	o.mu.Unlock()
	o.opts.Metrics.StreamOpened(o.ctx)

	go func() {
		defer o.wg.Done()
		defer o.opts.Metrics.StreamClosed(o.ctx)
		defer cancel()

		events, err := o.opts.Client.StreamTask(sctx, taskID)
		if err != nil {
			if sctx.Err() == nil {
				o.logger.Error("open task stream failed", "panel", p.String(), "task_id", taskID, "error", err)
				_ = o.dispatch(o.ctx, p, Failed{TaskID: taskID, Message: err.Error()})
			}
			return
		}
		for ev := range events {
			if err := o.dispatch(o.ctx, p, toEvent(taskID, ev)); err != nil {
				o.logger.Warn("task event rejected", "panel", p.String(), "task_id", taskID, "error", err)
			}
			if ev.Terminal() {
				return
			}
		}
		if sctx.Err() == nil {
			_ = o.dispatch(o.ctx, p, Failed{TaskID: taskID, Message: errStreamClosed.Error()})
		}
	}()
}

var errStreamClosed = errors.New("task stream closed before completion")

func toEvent(taskID string, ev tasks.Event) Event {
	switch ev.Type {
	case tasks.EventComplete:
		var r tasks.Result
		if ev.Result != nil {
			r = *ev.Result
		}
		return Completed{TaskID: taskID, Result: r}
	case tasks.EventError:
		msg := ev.Error
		if msg == "" {
			msg = "generation failed"
		}
		return Failed{TaskID: taskID, Message: msg}
	default:
		var pr tasks.Progress
		if ev.Progress != nil {
			pr = *ev.Progress
		}
		return Progressed{TaskID: taskID, Progress: pr}
	}
}

func (o *Orchestrator) changed(p schema.Path) {
	if o.opts.OnChange != nil {
		o.opts.OnChange(p)
	}
}
