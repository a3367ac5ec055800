// Package workflows defines the Temporal workflow functions.
package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/finops-claw-gang/genui/internal/history"
	"github.com/finops-claw-gang/genui/internal/provider"
	"github.com/finops-claw-gang/genui/internal/temporal/activities"
	"github.com/finops-claw-gang/genui/internal/temporal/versioning"
)

// QueryNameState is the Temporal Query handler name for task state.
const QueryNameState = "state"

const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxPolls     = 900
)

// Task statuses as reported by the state query.
const (
	StatusProcessing = "processing"
	StatusComplete   = "complete"
	StatusFailed     = "failed"
)

// GenerationInput is the input to the generation workflow.
type GenerationInput struct {
	SessionID     string         `json:"session_id"`
	InteractionID string         `json:"interaction_id"`
	Actor         string         `json:"actor,omitempty"`
	Provider      string         `json:"provider"`
	ActionType    string         `json:"action_type"`
	PromptID      string         `json:"prompt_id"`
	ContentKind   string         `json:"content_kind"`
	Params        map[string]any `json:"params"`
	SourceData    any            `json:"source_data,omitempty"`
	Crop          *provider.Crop `json:"crop,omitempty"`
	PollInterval  time.Duration  `json:"poll_interval,omitempty"`
	MaxPolls      int            `json:"max_polls,omitempty"`
}

// TaskState is what the state query and the workflow result report. The
// workflow returns it on all paths; only infra failures and cancellation
// produce workflow-level errors.
type TaskState struct {
	TaskID        string           `json:"task_id"`
	SessionID     string           `json:"session_id"`
	InteractionID string           `json:"interaction_id"`
	Actor         string           `json:"actor,omitempty"`
	Provider      string           `json:"provider"`
	PromptID      string           `json:"prompt_id"`
	ActionType    string           `json:"action_type"`
	Status        string           `json:"status"`
	Message       string           `json:"message"`
	ElapsedMs     int64            `json:"elapsed_ms"`
	Result        *provider.Output `json:"result,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// GenerationWorkflow submits one job to a provider, polls it until it
// settles and records the output in history:
//
//	submit -> (sleep -> poll)* -> record -> END
//
// Progress is exposed through the "state" query.
func GenerationWorkflow(ctx workflow.Context, in GenerationInput) (TaskState, error) {
	logger := workflow.GetLogger(ctx)
	start := workflow.Now(ctx)
	state := TaskState{
		TaskID:        workflow.GetInfo(ctx).WorkflowExecution.ID,
		SessionID:     in.SessionID,
		InteractionID: in.InteractionID,
		Actor:         in.Actor,
		Provider:      in.Provider,
		PromptID:      in.PromptID,
		ActionType:    in.ActionType,
		Status:        StatusProcessing,
		Message:       "submitting",
	}
	if err := workflow.SetQueryHandler(ctx, QueryNameState, func() (TaskState, error) {
		return state, nil
	}); err != nil {
		return state, fmt.Errorf("register state query: %w", err)
	}
	version := workflow.GetVersion(ctx, versioning.GenerationV1, workflow.DefaultVersion, 1)
	logger.Debug("generation workflow started", "version", int(version), "provider", in.Provider)

	fail := func(msg string) (TaskState, error) {
		logger.Warn("generation failed", "error", msg)
		state.Status = StatusFailed
		state.Error = msg
		state.ElapsedMs = workflow.Now(ctx).Sub(start).Milliseconds()
		return state, nil
	}

	// Submission is not idempotent on the provider side: one attempt.
	submitCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	pollCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	})
	recordCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 5},
	})

	var sub activities.SubmitOutput
	err := workflow.ExecuteActivity(submitCtx, "SubmitGeneration", activities.SubmitInput{
		SessionID: in.SessionID,
		Provider:  in.Provider,
		Job: provider.Job{
			ActionType: in.ActionType,
			PromptID:   in.PromptID,
			Params:     in.Params,
			SourceData: in.SourceData,
			Crop:       in.Crop,
		},
	}).Get(ctx, &sub)
	if err != nil {
		return fail(fmt.Sprintf("submit failed: %v", err))
	}
	state.Message = "queued with " + in.Provider
	logger.Info("job submitted", "provider", in.Provider, "job_id", sub.JobID)

	interval := in.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	maxPolls := in.MaxPolls
	if maxPolls <= 0 {
		maxPolls = DefaultMaxPolls
	}

	var output *provider.Output
	for polls := 0; output == nil; polls++ {
		if polls >= maxPolls {
			return fail(fmt.Sprintf("timed out after %d polls", maxPolls))
		}
		if err := workflow.Sleep(ctx, interval); err != nil {
			return state, err
		}

		var poll activities.PollOutput
		err := workflow.ExecuteActivity(pollCtx, "PollGeneration", activities.PollInput{
			Provider:   in.Provider,
			ActionType: in.ActionType,
			JobID:      sub.JobID,
		}).Get(ctx, &poll)
		if err != nil {
			return fail(fmt.Sprintf("poll failed: %v", err))
		}
		state.ElapsedMs = workflow.Now(ctx).Sub(start).Milliseconds()
		if poll.Status.Message != "" {
			state.Message = poll.Status.Message
		}

		switch poll.Status.State {
		case provider.StateFailed:
			msg := poll.Status.Error
			if msg == "" {
				msg = "provider reported failure"
			}
			return fail(msg)
		case provider.StateSucceeded:
			if poll.Status.Output == nil {
				return fail("provider returned no output")
			}
			output = poll.Status.Output
		}
	}

	// A history write failure leaves the result usable for live panels;
	// only a later reload misses it.
	err = workflow.ExecuteActivity(recordCtx, "RecordGeneration", activities.RecordInput{
		Record: history.Record{
			SessionID:     in.SessionID,
			InteractionID: in.InteractionID,
			TaskID:        state.TaskID,
			Provider:      in.Provider,
			PromptID:      in.PromptID,
			ActionType:    in.ActionType,
			ContentKind:   in.ContentKind,
			URLs:          output.URLs,
			MetadataID:    output.MetadataID,
			ContentIDs:    output.ContentIDs,
			RequestParams: in.Params,
			CreatedAt:     workflow.Now(ctx),
		},
		ElapsedMs: state.ElapsedMs,
	}).Get(ctx, nil)
	if err != nil {
		logger.Error("record generation failed", "error", err)
	}

	state.Status = StatusComplete
	state.Result = output
	state.Message = "complete"
	logger.Info("generation complete", "metadata_id", output.MetadataID, "elapsed_ms", state.ElapsedMs)
	return state, nil
}
