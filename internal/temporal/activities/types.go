// Package activities defines the Temporal activity I/O structs and the
// Activities implementation that bridges Temporal's serialization boundary
// to providers and the history store.
package activities

import (
	"github.com/finops-claw-gang/genui/internal/history"
	"github.com/finops-claw-gang/genui/internal/provider"
)

// SubmitInput is the activity input for handing a job to a provider.
type SubmitInput struct {
	SessionID string       `json:"session_id"`
	Provider  string       `json:"provider"`
	Job       provider.Job `json:"job"`
}

// SubmitOutput carries the provider's job id.
type SubmitOutput struct {
	JobID string `json:"job_id"`
}

// PollInput is the activity input for one status check.
type PollInput struct {
	Provider   string `json:"provider"`
	ActionType string `json:"action_type"`
	JobID      string `json:"job_id"`
}

// PollOutput is the provider status at poll time.
type PollOutput struct {
	Status provider.Status `json:"status"`
}

// RecordInput is the activity input for persisting a finished generation.
type RecordInput struct {
	Record    history.Record `json:"record"`
	ElapsedMs int64          `json:"elapsed_ms"`
}
