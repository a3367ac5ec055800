// Package generation drives generation panels: a pure state machine per
// panel plus an orchestrator that runs its effects against the task
// service.
package generation

import (
	"errors"
	"slices"

	"github.com/finops-claw-gang/genui/internal/tasks"
)

var (
	// ErrQueueFull rejects a generate request while one task runs and
	// another is already queued.
	ErrQueueFull = errors.New("generation: a request is already queued")
	// ErrCropPending rejects a generate request while a crop is awaited.
	ErrCropPending = errors.New("generation: waiting for crop confirmation")
	// ErrNoCropPending rejects crop confirmation when none is awaited.
	ErrNoCropPending = errors.New("generation: no crop is pending")
	// ErrUnknownPanel rejects user actions on a path no panel registered.
	ErrUnknownPanel = errors.New("generation: unknown panel")
)

// Phase is the panel lifecycle state. An error from the last task is kept
// alongside PhaseIdle.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseAwaitingCrop Phase = "awaiting_crop"
	PhaseRunning      Phase = "running"
	PhaseQueued       Phase = "queued"
)

// Request is one generate invocation, captured at the time of the click.
type Request struct {
	InteractionID string            `json:"interaction_id"`
	ActionID      string            `json:"action_id,omitempty"`
	SubActionID   string            `json:"sub_action_id,omitempty"`
	Provider      string            `json:"provider"`
	ActionType    string            `json:"action_type"`
	PromptID      string            `json:"prompt_id"`
	Params        map[string]any    `json:"params"`
	SourceData    any               `json:"source_data,omitempty"`
	Crop          *tasks.CropRegion `json:"crop,omitempty"`
}

// NeedsCrop reports whether the action requires a crop region.
func (r Request) NeedsCrop() bool {
	return r.ActionType == "image_to_video"
}

// State is everything a panel remembers. Transition never mutates the
// State it is given.
type State struct {
	Phase       Phase             `json:"phase"`
	TaskID      string            `json:"task_id,omitempty"`
	Progress    *tasks.Progress   `json:"progress,omitempty"`
	Error       string            `json:"error,omitempty"`
	Results     []tasks.Result    `json:"results,omitempty"`
	Queued      *Request          `json:"queued,omitempty"`
	PendingCrop *Request          `json:"pending_crop,omitempty"`
	SavedCrop   *tasks.CropRegion `json:"saved_crop,omitempty"`
	// Finished lists task ids that reached a terminal event.
	Finished []string `json:"finished,omitempty"`
}

// Event is an input to Transition.
type Event interface{ event() }

type (
	Generate     struct{ Request Request }
	CropConfirm  struct {
		Region   tasks.CropRegion
		Remember bool
	}
	CropCancel  struct{}
	ClearCrop   struct{}
	TaskStarted struct{ TaskID string }
	StartFailed struct{ Message string }
	Progressed  struct {
		TaskID   string
		Progress tasks.Progress
	}
	Completed struct {
		TaskID string
		Result tasks.Result
	}
	Failed struct {
		TaskID  string
		Message string
	}
	// Reconnect adopts a task found in flight when the panel mounts.
	Reconnect struct {
		TaskID   string
		Progress *tasks.Progress
	}
	// Seed merges results loaded from history.
	Seed struct{ Results []tasks.Result }
)

func (Generate) event()    {}
func (CropConfirm) event() {}
func (CropCancel) event()  {}
func (ClearCrop) event()   {}
func (TaskStarted) event() {}
func (StartFailed) event() {}
func (Progressed) event()  {}
func (Completed) event()   {}
func (Failed) event()      {}
func (Reconnect) event()   {}
func (Seed) event()        {}

// Effect is work the orchestrator performs after a transition.
type Effect interface{ effect() }

type (
	// StartTask submits the request to the task service.
	StartTask struct{ Request Request }
	// OpenStream subscribes to a task's events.
	OpenStream struct{ TaskID string }
)

func (StartTask) effect()  {}
func (OpenStream) effect() {}

// Transition is the panel state machine. Events that do not apply to the
// current state, such as progress for a task the panel no longer tracks,
// leave it unchanged.
func Transition(s State, ev Event) (State, []Effect, error) {
	switch e := ev.(type) {
	case Generate:
		req := s.withSavedCrop(e.Request)
		switch s.Phase {
		case PhaseRunning:
			s.Phase, s.Queued = PhaseQueued, &req
			return s, nil, nil
		case PhaseQueued:
			return s, nil, ErrQueueFull
		case PhaseAwaitingCrop:
			return s, nil, ErrCropPending
		}
		s.Error = ""
		return s.begin(req)

	case CropConfirm:
		if s.Phase != PhaseAwaitingCrop || s.PendingCrop == nil {
			return s, nil, ErrNoCropPending
		}
		req := *s.PendingCrop
		region := e.Region
		req.Crop = &region
		if e.Remember {
			saved := e.Region
			s.SavedCrop = &saved
		}
		s.PendingCrop = nil
		return s.begin(req)

	case CropCancel:
		if s.Phase != PhaseAwaitingCrop {
			return s, nil, ErrNoCropPending
		}
		s.Phase, s.PendingCrop = PhaseIdle, nil
		return s, nil, nil

	case ClearCrop:
		s.SavedCrop = nil
		return s, nil, nil

	case TaskStarted:
		if !s.busy() || s.TaskID != "" {
			return s, nil, nil
		}
		s.TaskID = e.TaskID
		return s, []Effect{OpenStream{TaskID: e.TaskID}}, nil

	case StartFailed:
		if !s.busy() || s.TaskID != "" {
			return s, nil, nil
		}
		return s.fail(e.Message)

	case Progressed:
		if !s.tracking(e.TaskID) {
			return s, nil, nil
		}
		p := e.Progress
		s.Progress = &p
		return s, nil, nil

	case Completed:
		if !s.tracking(e.TaskID) || s.finished(e.TaskID) {
			return s, nil, nil
		}
		s.Finished = append(slices.Clone(s.Finished), e.TaskID)
		s.Results = mergeResults(s.Results, e.Result)
		s.TaskID, s.Progress = "", nil
		if s.Phase == PhaseQueued && s.Queued != nil {
			next := s.withSavedCrop(*s.Queued)
			s.Queued = nil
			return s.begin(next)
		}
		s.Phase = PhaseIdle
		return s, nil, nil

	case Failed:
		if !s.tracking(e.TaskID) || s.finished(e.TaskID) {
			return s, nil, nil
		}
		s.Finished = append(slices.Clone(s.Finished), e.TaskID)
		return s.fail(e.Message)

	case Reconnect:
		if s.Phase != PhaseIdle || s.finished(e.TaskID) {
			return s, nil, nil
		}
		s.Phase, s.TaskID, s.Progress, s.Error = PhaseRunning, e.TaskID, e.Progress, ""
		return s, []Effect{OpenStream{TaskID: e.TaskID}}, nil

	case Seed:
		for _, r := range e.Results {
			s.Results = mergeResults(s.Results, r)
		}
		return s, nil, nil
	}
	return s, nil, nil
}

// begin starts req, or parks it until a crop is confirmed.
func (s State) begin(req Request) (State, []Effect, error) {
	if req.NeedsCrop() && req.Crop == nil {
		s.Phase, s.PendingCrop = PhaseAwaitingCrop, &req
		return s, nil, nil
	}
	s.Phase, s.TaskID, s.Progress = PhaseRunning, "", nil
	return s, []Effect{StartTask{Request: req}}, nil
}

// fail records the error and forgets any crop. A queued follow-up starts
// next; without one the panel returns to idle.
func (s State) fail(msg string) (State, []Effect, error) {
	s.Error = msg
	s.TaskID, s.Progress = "", nil
	s.PendingCrop, s.SavedCrop = nil, nil
	if s.Queued != nil {
		next := *s.Queued
		s.Queued = nil
		return s.begin(next)
	}
	s.Phase = PhaseIdle
	return s, nil, nil
}

func (s State) withSavedCrop(req Request) Request {
	if req.NeedsCrop() && req.Crop == nil && s.SavedCrop != nil {
		c := *s.SavedCrop
		req.Crop = &c
	}
	return req
}

func (s State) busy() bool {
	return s.Phase == PhaseRunning || s.Phase == PhaseQueued
}

func (s State) tracking(taskID string) bool {
	return s.busy() && s.TaskID != "" && s.TaskID == taskID
}

func (s State) finished(taskID string) bool {
	return slices.Contains(s.Finished, taskID)
}

// mergeResults appends r unless a result with the same metadata id is
// already present. The input slice is never modified.
func mergeResults(results []tasks.Result, r tasks.Result) []tasks.Result {
	if r.MetadataID != "" && slices.ContainsFunc(results, func(x tasks.Result) bool { return x.MetadataID == r.MetadataID }) {
		return results
	}
	return append(slices.Clone(results), r)
}
