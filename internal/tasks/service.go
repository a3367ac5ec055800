package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/finops-claw-gang/genui/internal/history"
	"github.com/finops-claw-gang/genui/internal/observability"
	"github.com/finops-claw-gang/genui/internal/provider"
	"github.com/finops-claw-gang/genui/internal/ratelimit"
	"github.com/finops-claw-gang/genui/internal/temporal/querier"
	"github.com/finops-claw-gang/genui/internal/temporal/workflows"
)

var (
	ErrInvalidRequest = errors.New("tasks: invalid request")
	ErrTaskNotFound   = errors.New("tasks: task not found")
)

// DefaultStreamPollInterval is how often StreamTask reads task state.
const DefaultStreamPollInterval = time.Second

// maxStreamFailures is how many consecutive state reads may fail before a
// stream gives up with an error event.
const maxStreamFailures = 3

// TaskStatus is a point-in-time view of one task.
type TaskStatus struct {
	TaskID   string      `json:"task_id"`
	Actor    string      `json:"actor,omitempty"`
	Status   string      `json:"status"`
	Payload  TaskPayload `json:"payload"`
	Progress *Progress   `json:"progress,omitempty"`
	Result   *Result     `json:"result,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	Querier   querier.TaskQuerier
	History   history.Store
	Providers *provider.Registry
	Budget    *ratelimit.SessionBudget // nil = unlimited
	// PollInterval paces StreamTask's state reads.
	PollInterval time.Duration
	// ProviderPollInterval paces the workflow's provider polls.
	ProviderPollInterval time.Duration
	Logger               *slog.Logger
	Metrics              *observability.Metrics
}

// Service is the task service backed by Temporal workflows, the history
// store and the provider registry.
type Service struct {
	opts   ServiceOptions
	logger *slog.Logger
}

func NewService(opts ServiceOptions) *Service {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultStreamPollInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{opts: opts, logger: logger.With("component", "tasks")}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// SubmitSubAction validates the request, charges the session budget and
// starts a generation workflow.
func (s *Service) SubmitSubAction(ctx context.Context, req SubActionRequest) (TaskHandle, error) {
	p := req.Params
	switch {
	case req.SessionID == "":
		return TaskHandle{}, invalid("session_id is required")
	case req.InteractionID == "":
		return TaskHandle{}, invalid("interaction_id is required")
	case p.Provider == "" || p.ActionType == "" || p.PromptID == "":
		return TaskHandle{}, invalid("provider, action_type and prompt_id are required")
	case p.ActionType == "image_to_video" && p.CropRegion == nil:
		return TaskHandle{}, invalid("%s requires crop_region", p.ActionType)
	}
	if _, err := s.opts.Providers.Get(p.Provider); err != nil {
		return TaskHandle{}, invalid("%v", err)
	}
	if err := s.opts.Budget.Check(req.SessionID, p.ActionType); err != nil {
		return TaskHandle{}, err
	}

	in := workflows.GenerationInput{
		SessionID:     req.SessionID,
		InteractionID: req.InteractionID,
		Actor:         req.Actor,
		Provider:      p.Provider,
		ActionType:    p.ActionType,
		PromptID:      p.PromptID,
		ContentKind:   ContentKind(p.ActionType),
		Params:        p.Params,
		SourceData:    p.SourceData,
		PollInterval:  s.opts.ProviderPollInterval,
	}
	if c := p.CropRegion; c != nil {
		in.Crop = &provider.Crop{X: c.X, Y: c.Y, Width: c.Width, Height: c.Height}
	}
	taskID, err := s.opts.Querier.StartGeneration(ctx, in)
	if err != nil {
		return TaskHandle{}, fmt.Errorf("tasks: submit: %w", err)
	}
	s.opts.Budget.Record(req.SessionID, p.ActionType)
	s.logger.Info("generation submitted",
		"task_id", taskID,
		"session_id", req.SessionID,
		"provider", p.Provider,
		"action_type", p.ActionType,
		"prompt_id", p.PromptID,
	)
	return TaskHandle{TaskID: taskID, Status: StatusProcessing}, nil
}

// Task returns the current status of one task.
func (s *Service) Task(ctx context.Context, taskID string) (TaskStatus, error) {
	st, err := s.state(ctx, taskID)
	if err != nil {
		return TaskStatus{}, err
	}
	return toStatus(*st), nil
}

func (s *Service) state(ctx context.Context, taskID string) (*workflows.TaskState, error) {
	st, err := s.opts.Querier.GetTaskState(ctx, taskID)
	if errors.Is(err, querier.ErrTaskNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("tasks: get state: %w", err)
	}
	return st, nil
}

// StreamTask polls task state and emits a progress event whenever the
// message or elapsed time changes, then exactly one terminal event.
func (s *Service) StreamTask(ctx context.Context, taskID string) (<-chan Event, error) {
	st, err := s.state(ctx, taskID)
	if err != nil {
		return nil, err
	}

	out := make(chan Event, 8)
	go func() {
		defer close(out)
		s.opts.Metrics.StreamOpened(ctx)
		defer s.opts.Metrics.StreamClosed(context.WithoutCancel(ctx))

		send := func(ev Event) bool {
			ev.TaskID = taskID
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		ticker := time.NewTicker(s.opts.PollInterval)
		defer ticker.Stop()

		var last *Progress
		failures := 0
		for {
			if st != nil {
				switch st.Status {
				case workflows.StatusComplete:
					send(Event{Type: EventComplete, Result: toResult(st.Result)})
					return
				case workflows.StatusFailed:
					send(Event{Type: EventError, Error: st.Error})
					return
				default:
					p := Progress{ElapsedMs: st.ElapsedMs, Message: st.Message}
					if last == nil || *last != p {
						if !send(Event{Type: EventProgress, Progress: &p}) {
							return
						}
						last = &p
					}
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			next, err := s.state(ctx, taskID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				failures++
				s.logger.Warn("task state read failed", "task_id", taskID, "attempt", failures, "error", err)
				if failures >= maxStreamFailures {
					send(Event{Type: EventError, Error: fmt.Sprintf("lost task stream: %v", err)})
					return
				}
				st = nil
				continue
			}
			failures = 0
			st = next
		}
	}()
	return out, nil
}

// ListInFlight returns the session's running tasks.
func (s *Service) ListInFlight(ctx context.Context, sessionID string) ([]InFlightTask, error) {
	if sessionID == "" {
		return nil, invalid("session_id is required")
	}
	states, err := s.opts.Querier.ListRunning(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("tasks: list in flight: %w", err)
	}
	out := make([]InFlightTask, 0, len(states))
	for _, st := range states {
		ts := toStatus(st)
		out = append(out, InFlightTask{
			TaskID:   ts.TaskID,
			Actor:    ts.Actor,
			Status:   ts.Status,
			Payload:  ts.Payload,
			Progress: ts.Progress,
		})
	}
	return out, nil
}

// History returns past generations grouped by provider and prompt.
func (s *Service) History(ctx context.Context, q HistoryQuery) ([]HistoryGroup, error) {
	if q.SessionID == "" {
		return nil, invalid("session_id is required")
	}
	if s.opts.History == nil {
		return nil, nil
	}
	records, err := s.opts.History.Query(ctx, history.Query{
		SessionID:     q.SessionID,
		InteractionID: q.InteractionID,
		ContentKind:   q.ContentKind,
	})
	if err != nil {
		return nil, fmt.Errorf("tasks: history: %w", err)
	}
	groups := history.GroupRecords(records)
	out := make([]HistoryGroup, len(groups))
	for i, g := range groups {
		out[i] = HistoryGroup{Provider: g.Provider, PromptID: g.PromptID}
		for _, r := range g.Records {
			out[i].Generations = append(out[i].Generations, Generation{
				URLs:          r.URLs,
				MetadataID:    r.MetadataID,
				ContentIDs:    r.ContentIDs,
				RequestParams: r.RequestParams,
				CreatedAt:     r.CreatedAt,
			})
		}
	}
	return out, nil
}

// Preview asks the provider for an estimate without submitting.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (Preview, error) {
	p, err := s.opts.Providers.Get(req.Provider)
	if err != nil {
		return Preview{}, invalid("%v", err)
	}
	est, err := p.Estimate(ctx, provider.Job{ActionType: req.ActionType, PromptID: req.PromptID, Params: req.Params})
	if err != nil {
		return Preview{}, fmt.Errorf("tasks: preview: %w", err)
	}
	return Preview{Resolution: est.Resolution, EstimatedCost: est.Cost, EstimatedSeconds: est.Seconds}, nil
}

func toStatus(st workflows.TaskState) TaskStatus {
	ts := TaskStatus{
		TaskID: st.TaskID,
		Actor:  st.Actor,
		Status: st.Status,
		Payload: TaskPayload{
			InteractionID: st.InteractionID,
			Provider:      st.Provider,
			PromptID:      st.PromptID,
			ActionType:    st.ActionType,
		},
		Error: st.Error,
	}
	switch st.Status {
	case workflows.StatusComplete:
		ts.Result = toResult(st.Result)
	case workflows.StatusProcessing:
		ts.Progress = &Progress{ElapsedMs: st.ElapsedMs, Message: st.Message}
	}
	return ts
}

func toResult(out *provider.Output) *Result {
	if out == nil {
		return &Result{}
	}
	return &Result{URLs: out.URLs, MetadataID: out.MetadataID, ContentIDs: out.ContentIDs}
}

var _ Client = (*Service)(nil)
