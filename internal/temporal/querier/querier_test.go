package querier

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	commonpb "go.temporal.io/api/common/v1"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	workflowpb "go.temporal.io/api/workflow/v1"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"

	"github.com/finops-claw-gang/genui/internal/temporal/versioning"
	"github.com/finops-claw-gang/genui/internal/temporal/workflows"
)

// jsonValue is a converter.EncodedValue backed by a JSON round trip.
type jsonValue struct{ v any }

func (j jsonValue) HasValue() bool { return j.v != nil }

func (j jsonValue) Get(ptr any) error {
	b, err := json.Marshal(j.v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ptr)
}

type fakeRun struct {
	client.WorkflowRun
	id     string
	result any
}

func (r fakeRun) GetID() string { return r.id }

func (r fakeRun) Get(_ context.Context, ptr any) error { return jsonValue{r.result}.Get(ptr) }

// fakeClient records workflow starts and serves canned workflow state.
type fakeClient struct {
	started   []client.StartWorkflowOptions
	statuses  map[string]enumspb.WorkflowExecutionStatus
	states    map[string]workflows.TaskState
	pages     [][]string
	listQuery string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		statuses: make(map[string]enumspb.WorkflowExecutionStatus),
		states:   make(map[string]workflows.TaskState),
	}
}

func (f *fakeClient) ExecuteWorkflow(_ context.Context, opts client.StartWorkflowOptions, _ any, _ ...any) (client.WorkflowRun, error) {
	f.started = append(f.started, opts)
	return fakeRun{id: opts.ID}, nil
}

func (f *fakeClient) GetWorkflow(_ context.Context, id, _ string) client.WorkflowRun {
	return fakeRun{id: id, result: f.states[id]}
}

func (f *fakeClient) DescribeWorkflowExecution(_ context.Context, id, _ string) (*workflowservice.DescribeWorkflowExecutionResponse, error) {
	status, ok := f.statuses[id]
	if !ok {
		return nil, serviceerror.NewNotFound("workflow not found")
	}
	return &workflowservice.DescribeWorkflowExecutionResponse{
		WorkflowExecutionInfo: &workflowpb.WorkflowExecutionInfo{Status: status},
	}, nil
}

func (f *fakeClient) QueryWorkflow(_ context.Context, id, _, queryType string, _ ...any) (converter.EncodedValue, error) {
	if queryType != workflows.QueryNameState {
		return nil, errors.New("unknown query")
	}
	st, ok := f.states[id]
	if !ok || f.statuses[id] != enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING {
		return nil, serviceerror.NewNotFound("workflow closed")
	}
	return jsonValue{st}, nil
}

func (f *fakeClient) ListWorkflow(_ context.Context, req *workflowservice.ListWorkflowExecutionsRequest) (*workflowservice.ListWorkflowExecutionsResponse, error) {
	f.listQuery = req.Query
	page := 0
	if len(req.NextPageToken) > 0 {
		page = int(req.NextPageToken[0])
	}
	resp := &workflowservice.ListWorkflowExecutionsResponse{}
	for _, id := range f.pages[page] {
		resp.Executions = append(resp.Executions, &workflowpb.WorkflowExecutionInfo{
			Execution: &commonpb.WorkflowExecution{WorkflowId: id},
		})
	}
	if page+1 < len(f.pages) {
		resp.NextPageToken = []byte{byte(page + 1)}
	}
	return resp, nil
}

func (f *fakeClient) running(id, message string) {
	f.statuses[id] = enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING
	f.states[id] = workflows.TaskState{TaskID: id, Status: workflows.StatusProcessing, Message: message, PromptID: "hero"}
}

func TestStartGeneration_RoutesByContentKind(t *testing.T) {
	fc := newFakeClient()
	q := &TemporalQuerier{client: fc}

	id, err := q.StartGeneration(context.Background(), workflows.GenerationInput{SessionID: "s1", ContentKind: "video"})
	require.NoError(t, err)
	assert.True(t, IsTaskID(id))
	assert.Contains(t, id, SessionPrefix("s1"))
	require.Len(t, fc.started, 1)
	assert.Equal(t, versioning.QueueVideo, fc.started[0].TaskQueue)
}

func TestGetTaskState(t *testing.T) {
	fc := newFakeClient()
	q := &TemporalQuerier{client: fc}
	ctx := context.Background()

	fc.running("t-run", "rendering")
	st, err := q.GetTaskState(ctx, "t-run")
	require.NoError(t, err)
	assert.Equal(t, "rendering", st.Message)

	fc.statuses["t-done"] = enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED
	fc.states["t-done"] = workflows.TaskState{TaskID: "t-done", Status: workflows.StatusComplete}
	st, err = q.GetTaskState(ctx, "t-done")
	require.NoError(t, err)
	assert.Equal(t, workflows.StatusComplete, st.Status)

	fc.statuses["t-term"] = enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED
	st, err = q.GetTaskState(ctx, "t-term")
	require.NoError(t, err)
	assert.Equal(t, workflows.StatusFailed, st.Status)
	assert.Contains(t, st.Error, "Terminated")

	_, err = q.GetTaskState(ctx, "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestListRunning_PagesAndSkipsClosed(t *testing.T) {
	fc := newFakeClient()
	q := &TemporalQuerier{client: fc}

	fc.running("a", "one")
	fc.running("b", "two")
	fc.running("c", "three")
	// listed as running but closed before the query landed
	fc.statuses["gone"] = enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED
	fc.pages = [][]string{{"a", "gone"}, {"b", "c"}}

	got, err := q.ListRunning(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].TaskID, got[1].TaskID, got[2].TaskID})
	assert.Contains(t, fc.listQuery, `WorkflowId STARTS_WITH "genui-gen-s1-"`)
	assert.Contains(t, fc.listQuery, `ExecutionStatus = "Running"`)
}
