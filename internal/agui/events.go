// Package agui streams session render plans and task events to browsers as
// AG-UI server-sent events.
package agui

import "time"

// EventType identifies an AG-UI event.
type EventType string

const (
	EventRunStarted    EventType = "RUN_STARTED"
	EventRunFinished   EventType = "RUN_FINISHED"
	EventRunError      EventType = "RUN_ERROR"
	EventStateSnapshot EventType = "STATE_SNAPSHOT"
)

// Event is a single SSE event emitted to the client.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	Data      any       `json:"data,omitempty"`
}

// StateSnapshotData carries a full render plan in a STATE_SNAPSHOT event.
type StateSnapshotData struct {
	Revision int64 `json:"revision"`
	Plan     any   `json:"plan"`
}

// FinishedData says why a stream ended.
type FinishedData struct {
	Reason string `json:"reason"`
}

// ErrorData carries error info for RUN_ERROR events.
type ErrorData struct {
	Message string `json:"message"`
}

func newEvent(t EventType, sessionID string, data any) Event {
	return Event{Type: t, Timestamp: time.Now().UTC(), SessionID: sessionID, Data: data}
}
