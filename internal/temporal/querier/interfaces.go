package querier

import (
	"context"

	"github.com/finops-claw-gang/genui/internal/temporal/workflows"
)

// TaskQuerier starts generation workflows and reads their state. Used by
// the task service, which the HTTP API and MCP server sit on.
type TaskQuerier interface {
	StartGeneration(ctx context.Context, in workflows.GenerationInput) (string, error)
	GetTaskState(ctx context.Context, taskID string) (*workflows.TaskState, error)
	ListRunning(ctx context.Context, sessionID string) ([]workflows.TaskState, error)
}
