package workflows_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/finops-claw-gang/genui/internal/provider"
	"github.com/finops-claw-gang/genui/internal/temporal/activities"
	"github.com/finops-claw-gang/genui/internal/temporal/versioning"
	"github.com/finops-claw-gang/genui/internal/temporal/workflows"
)

// Activity mock matchers: any context, any input.
var (
	anyCtx   = mock.Anything
	anyInput = mock.Anything
)

type GenerationSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *GenerationSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	// Register activity struct so string-based OnActivity mocks work.
	s.env.RegisterActivity(&activities.Activities{})
}

func (s *GenerationSuite) AfterTest(_, _ string) {
	s.env.AssertExpectations(s.T())
}

func (s *GenerationSuite) baseInput() workflows.GenerationInput {
	return workflows.GenerationInput{
		SessionID:     "s1",
		InteractionID: "int-1",
		Actor:         "ada",
		Provider:      "stub",
		ActionType:    "image_generation",
		PromptID:      "hero",
		ContentKind:   "image",
		Params:        map[string]any{"prompt": "a fox"},
		PollInterval:  2 * time.Second,
	}
}

func running(msg string) activities.PollOutput {
	return activities.PollOutput{Status: provider.Status{State: provider.StateRunning, Message: msg}}
}

func succeeded() activities.PollOutput {
	return activities.PollOutput{Status: provider.Status{
		State:   provider.StateSucceeded,
		Message: "done",
		Output:  &provider.Output{URLs: []string{"https://cdn/1.png"}, MetadataID: "m1", ContentIDs: []string{"c1"}},
	}}
}

func (s *GenerationSuite) result() workflows.TaskState {
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	var st workflows.TaskState
	s.NoError(s.env.GetWorkflowResult(&st))
	return st
}

func (s *GenerationSuite) TestHappyPath() {
	s.env.OnActivity("SubmitGeneration", anyCtx, anyInput).Return(activities.SubmitOutput{JobID: "job-1"}, nil)
	s.env.OnActivity("PollGeneration", anyCtx, anyInput).Return(running("rendering step 1 of 2"), nil).Once()
	s.env.OnActivity("PollGeneration", anyCtx, anyInput).Return(succeeded(), nil).Once()
	s.env.OnActivity("RecordGeneration", anyCtx, mock.MatchedBy(func(in activities.RecordInput) bool {
		return in.Record.MetadataID == "m1" &&
			in.Record.SessionID == "s1" &&
			in.Record.ContentKind == "image" &&
			in.Record.RequestParams["prompt"] == "a fox" &&
			in.ElapsedMs == 4000
	})).Return(nil)

	s.env.ExecuteWorkflow(workflows.GenerationWorkflow, s.baseInput())
	st := s.result()
	s.Equal(workflows.StatusComplete, st.Status)
	s.Require().NotNil(st.Result)
	s.Equal("m1", st.Result.MetadataID)
	s.Equal("hero", st.PromptID)
	s.Equal("ada", st.Actor)
	s.Equal(int64(4000), st.ElapsedMs)
	s.Empty(st.Error)
}

func (s *GenerationSuite) TestStateQueryDuringRun() {
	s.env.OnActivity("SubmitGeneration", anyCtx, anyInput).Return(activities.SubmitOutput{JobID: "job-1"}, nil)
	s.env.OnActivity("PollGeneration", anyCtx, anyInput).Return(running("rendering step 1 of 3"), nil).Times(2)
	s.env.OnActivity("PollGeneration", anyCtx, anyInput).Return(succeeded(), nil).Once()
	s.env.OnActivity("RecordGeneration", anyCtx, anyInput).Return(nil)

	var mid workflows.TaskState
	s.env.RegisterDelayedCallback(func() {
		v, err := s.env.QueryWorkflow(workflows.QueryNameState)
		s.Require().NoError(err)
		s.Require().NoError(v.Get(&mid))
	}, 3*time.Second)

	s.env.ExecuteWorkflow(workflows.GenerationWorkflow, s.baseInput())
	s.result()
	s.Equal(workflows.StatusProcessing, mid.Status)
	s.Equal("rendering step 1 of 3", mid.Message)
	s.Equal(int64(2000), mid.ElapsedMs)
	s.Equal("int-1", mid.InteractionID)
}

func (s *GenerationSuite) TestSubmitFailure() {
	s.env.OnActivity("SubmitGeneration", anyCtx, anyInput).Return(activities.SubmitOutput{}, errors.New("quota exhausted"))

	s.env.ExecuteWorkflow(workflows.GenerationWorkflow, s.baseInput())
	st := s.result()
	s.Equal(workflows.StatusFailed, st.Status)
	s.Contains(st.Error, "submit failed")
	s.Contains(st.Error, "quota exhausted")
	s.Nil(st.Result)
}

func (s *GenerationSuite) TestProviderFailure() {
	s.env.OnActivity("SubmitGeneration", anyCtx, anyInput).Return(activities.SubmitOutput{JobID: "job-1"}, nil)
	s.env.OnActivity("PollGeneration", anyCtx, anyInput).Return(activities.PollOutput{
		Status: provider.Status{State: provider.StateFailed, Error: "content policy violation"},
	}, nil)

	s.env.ExecuteWorkflow(workflows.GenerationWorkflow, s.baseInput())
	st := s.result()
	s.Equal(workflows.StatusFailed, st.Status)
	s.Equal("content policy violation", st.Error)
}

func (s *GenerationSuite) TestSucceededWithoutOutput() {
	s.env.OnActivity("SubmitGeneration", anyCtx, anyInput).Return(activities.SubmitOutput{JobID: "job-1"}, nil)
	s.env.OnActivity("PollGeneration", anyCtx, anyInput).Return(activities.PollOutput{
		Status: provider.Status{State: provider.StateSucceeded},
	}, nil)

	s.env.ExecuteWorkflow(workflows.GenerationWorkflow, s.baseInput())
	st := s.result()
	s.Equal(workflows.StatusFailed, st.Status)
	s.Equal("provider returned no output", st.Error)
}

func (s *GenerationSuite) TestTimesOutAfterMaxPolls() {
	in := s.baseInput()
	in.MaxPolls = 2
	s.env.OnActivity("SubmitGeneration", anyCtx, anyInput).Return(activities.SubmitOutput{JobID: "job-1"}, nil)
	s.env.OnActivity("PollGeneration", anyCtx, anyInput).Return(running("still going"), nil).Times(2)

	s.env.ExecuteWorkflow(workflows.GenerationWorkflow, in)
	st := s.result()
	s.Equal(workflows.StatusFailed, st.Status)
	s.Equal("timed out after 2 polls", st.Error)
}

func (s *GenerationSuite) TestRecordFailureStillCompletes() {
	s.env.OnActivity("SubmitGeneration", anyCtx, anyInput).Return(activities.SubmitOutput{JobID: "job-1"}, nil)
	s.env.OnActivity("PollGeneration", anyCtx, anyInput).Return(succeeded(), nil)
	s.env.OnActivity("RecordGeneration", anyCtx, anyInput).Return(errors.New("disk full"))

	s.env.ExecuteWorkflow(workflows.GenerationWorkflow, s.baseInput())
	st := s.result()
	s.Equal(workflows.StatusComplete, st.Status)
	s.Equal("m1", st.Result.MetadataID)
}

func (s *GenerationSuite) TestRecordsWorkflowVersion() {
	s.env.OnGetVersion(versioning.GenerationV1, workflow.DefaultVersion, 1).Return(workflow.Version(1)).Once()
	s.env.OnActivity("SubmitGeneration", anyCtx, anyInput).Return(activities.SubmitOutput{JobID: "job-1"}, nil)
	s.env.OnActivity("PollGeneration", anyCtx, anyInput).Return(succeeded(), nil).Once()
	s.env.OnActivity("RecordGeneration", anyCtx, anyInput).Return(nil)

	s.env.ExecuteWorkflow(workflows.GenerationWorkflow, s.baseInput())
	s.Equal(workflows.StatusComplete, s.result().Status)
}

func TestGenerationSuite(t *testing.T) {
	suite.Run(t, new(GenerationSuite))
}
