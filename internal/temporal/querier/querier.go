package querier

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
	"golang.org/x/sync/errgroup"

	"github.com/finops-claw-gang/genui/internal/temporal/versioning"
	"github.com/finops-claw-gang/genui/internal/temporal/workflows"
)

// temporalClient is the subset of client.Client the querier calls.
type temporalClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow any, args ...any) (client.WorkflowRun, error)
	GetWorkflow(ctx context.Context, workflowID string, runID string) client.WorkflowRun
	DescribeWorkflowExecution(ctx context.Context, workflowID, runID string) (*workflowservice.DescribeWorkflowExecutionResponse, error)
	QueryWorkflow(ctx context.Context, workflowID string, runID string, queryType string, args ...any) (converter.EncodedValue, error)
	ListWorkflow(ctx context.Context, request *workflowservice.ListWorkflowExecutionsRequest) (*workflowservice.ListWorkflowExecutionsResponse, error)
}

// TemporalQuerier implements TaskQuerier using a Temporal client.
type TemporalQuerier struct {
	client temporalClient
}

// New creates a TemporalQuerier.
func New(c client.Client) *TemporalQuerier {
	return &TemporalQuerier{client: c}
}

// StartGeneration starts a generation workflow on the queue for its
// content kind and returns the workflow id as the task id.
func (q *TemporalQuerier) StartGeneration(ctx context.Context, in workflows.GenerationInput) (string, error) {
	opts := client.StartWorkflowOptions{
		ID:        WorkflowID(in.SessionID, uuid.NewString()),
		TaskQueue: versioning.QueueFor(in.ContentKind),
	}
	run, err := q.client.ExecuteWorkflow(ctx, opts, workflows.GenerationWorkflow, in)
	if err != nil {
		return "", fmt.Errorf("start generation: %w", err)
	}
	return run.GetID(), nil
}

// GetTaskState returns the current task state.
// For completed workflows, extracts the result directly.
// For running workflows, uses the Query handler.
// Any other terminal status is reported as a failed task.
func (q *TemporalQuerier) GetTaskState(ctx context.Context, taskID string) (*workflows.TaskState, error) {
	desc, err := q.client.DescribeWorkflowExecution(ctx, taskID, "")
	if err != nil {
		var nf *serviceerror.NotFound
		if errors.As(err, &nf) {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
		}
		return nil, fmt.Errorf("describe workflow: %w", err)
	}

	switch status := desc.WorkflowExecutionInfo.Status; status {
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		var result workflows.TaskState
		if err := q.client.GetWorkflow(ctx, taskID, "").Get(ctx, &result); err != nil {
			return nil, fmt.Errorf("get workflow result: %w", err)
		}
		return &result, nil
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING:
		return q.queryState(ctx, taskID)
	default:
		return &workflows.TaskState{
			TaskID: taskID,
			Status: workflows.StatusFailed,
			Error:  fmt.Sprintf("task ended with status %s", status),
		}, nil
	}
}

func (q *TemporalQuerier) queryState(ctx context.Context, taskID string) (*workflows.TaskState, error) {
	resp, err := q.client.QueryWorkflow(ctx, taskID, "", workflows.QueryNameState)
	if err != nil {
		return nil, fmt.Errorf("query workflow state: %w", err)
	}
	var state workflows.TaskState
	if err := resp.Get(&state); err != nil {
		return nil, fmt.Errorf("decode query result: %w", err)
	}
	return &state, nil
}

// ListRunning returns the state of every running generation in a session,
// in visibility order. States are queried concurrently.
func (q *TemporalQuerier) ListRunning(ctx context.Context, sessionID string) ([]workflows.TaskState, error) {
	query := fmt.Sprintf("WorkflowId STARTS_WITH %q AND ExecutionStatus = %q", SessionPrefix(sessionID), "Running")

	var ids []string
	var token []byte
	for {
		resp, err := q.client.ListWorkflow(ctx, &workflowservice.ListWorkflowExecutionsRequest{
			Query:         query,
			PageSize:      50,
			NextPageToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list workflows: %w", err)
		}
		for _, exec := range resp.Executions {
			ids = append(ids, exec.Execution.WorkflowId)
		}
		token = resp.NextPageToken
		if len(token) == 0 {
			break
		}
	}

	states := make([]*workflows.TaskState, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range ids {
		g.Go(func() error {
			st, err := q.queryState(gctx, id)
			if err != nil {
				// the task may have finished between listing and querying
				return nil
			}
			states[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]workflows.TaskState, 0, len(ids))
	for _, st := range states {
		if st != nil && st.Status == workflows.StatusProcessing {
			out = append(out, *st)
		}
	}
	return out, nil
}

var _ TaskQuerier = (*TemporalQuerier)(nil)
