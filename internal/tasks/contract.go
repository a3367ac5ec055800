// Package tasks defines the contract between generation panels and the
// long-running task service, and implements that service on Temporal.
package tasks

import (
	"context"
	"time"
)

// Task statuses.
const (
	StatusProcessing = "processing"
	StatusComplete   = "complete"
	StatusFailed     = "failed"
)

// CropRegion is a rectangle in source-image pixels.
type CropRegion struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// SubActionParams carries the provider call for one generation.
type SubActionParams struct {
	Provider   string         `json:"provider"`
	ActionType string         `json:"action_type"`
	PromptID   string         `json:"prompt_id"`
	Params     map[string]any `json:"params"`
	SourceData any            `json:"source_data,omitempty"`
	CropRegion *CropRegion    `json:"crop_region,omitempty"`
}

// SubActionRequest submits a generation task.
type SubActionRequest struct {
	SessionID     string          `json:"session_id"`
	InteractionID string          `json:"interaction_id"`
	ActionID      string          `json:"action_id,omitempty"`
	SubActionID   string          `json:"sub_action_id,omitempty"`
	Actor         string          `json:"actor,omitempty"`
	Params        SubActionParams `json:"params"`
}

// TaskHandle identifies a started task.
type TaskHandle struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// Progress is an intermediate task report.
type Progress struct {
	ElapsedMs int64  `json:"elapsed_ms"`
	Message   string `json:"message"`
}

// Result is the output of a finished generation.
type Result struct {
	URLs       []string `json:"urls"`
	MetadataID string   `json:"metadata_id"`
	ContentIDs []string `json:"content_ids"`
}

// EventType discriminates stream events.
type EventType string

const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one message on a task stream. Complete and error events are
// terminal.
type Event struct {
	Type     EventType `json:"type"`
	TaskID   string    `json:"task_id"`
	Progress *Progress `json:"progress,omitempty"`
	Result   *Result   `json:"result,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Terminal reports whether no further events follow.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// TaskPayload identifies what an in-flight task is generating.
type TaskPayload struct {
	InteractionID string `json:"interaction_id"`
	Provider      string `json:"provider"`
	PromptID      string `json:"prompt_id"`
	ActionType    string `json:"action_type,omitempty"`
}

// InFlightTask is a task still running for a session.
type InFlightTask struct {
	TaskID   string      `json:"task_id"`
	Actor    string      `json:"actor,omitempty"`
	Status   string      `json:"status"`
	Payload  TaskPayload `json:"payload"`
	Progress *Progress   `json:"progress,omitempty"`
}

// HistoryQuery selects past generations.
type HistoryQuery struct {
	SessionID     string `json:"session_id"`
	InteractionID string `json:"interaction_id"`
	ContentKind   string `json:"content_kind,omitempty"`
}

// Generation is one completed generation in history.
type Generation struct {
	URLs          []string       `json:"urls"`
	MetadataID    string         `json:"metadata_id"`
	ContentIDs    []string       `json:"content_ids"`
	RequestParams map[string]any `json:"request_params,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// HistoryGroup holds the generations of one provider prompt, oldest first.
type HistoryGroup struct {
	Provider    string       `json:"provider"`
	PromptID    string       `json:"prompt_id"`
	Generations []Generation `json:"generations"`
}

// PreviewRequest asks for a resolution and cost estimate.
type PreviewRequest struct {
	Provider   string         `json:"provider"`
	ActionType string         `json:"action_type"`
	PromptID   string         `json:"prompt_id,omitempty"`
	Params     map[string]any `json:"params"`
}

// Preview is a derived estimate shown before submitting.
type Preview struct {
	Resolution       string  `json:"resolution"`
	EstimatedCost    float64 `json:"estimated_cost"`
	EstimatedSeconds int     `json:"estimated_seconds"`
}

// Client is the task service as generation panels see it.
type Client interface {
	SubmitSubAction(ctx context.Context, req SubActionRequest) (TaskHandle, error)
	// StreamTask delivers events until a terminal event or ctx is done,
	// then closes the channel.
	StreamTask(ctx context.Context, taskID string) (<-chan Event, error)
	ListInFlight(ctx context.Context, sessionID string) ([]InFlightTask, error)
	History(ctx context.Context, q HistoryQuery) ([]HistoryGroup, error)
	Preview(ctx context.Context, req PreviewRequest) (Preview, error)
}

// ContentKind maps a generation action type to the content kind used for
// history queries and task queue routing.
func ContentKind(actionType string) string {
	switch actionType {
	case "video_generation", "image_to_video":
		return "video"
	case "audio_generation":
		return "audio"
	default:
		return "image"
	}
}
