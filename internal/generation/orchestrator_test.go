package generation_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finops-claw-gang/genui/internal/generation"
	"github.com/finops-claw-gang/genui/internal/schema"
	"github.com/finops-claw-gang/genui/internal/tasks"
	"github.com/finops-claw-gang/genui/internal/testutil"
)

var heroPath = schema.ParsePath("hero.generate")

func heroPanel() generation.PanelConfig {
	return generation.PanelConfig{Path: heroPath, Provider: "stub", PromptID: "hero", ActionType: "image_generation"}
}

func newOrchestrator(t *testing.T, fake *testutil.FakeTasks) (*generation.Orchestrator, *atomic.Int32) {
	t.Helper()
	var changes atomic.Int32
	o := generation.New(generation.Options{
		SessionID:     "sess-1",
		InteractionID: "int-1",
		Actor:         "alice@example.com",
		Client:        fake,
		OnChange:      func(schema.Path) { changes.Add(1) },
	})
	t.Cleanup(o.Close)
	o.Register(heroPanel())
	return o, &changes
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func TestOrchestrator_GenerateCompletes(t *testing.T) {
	fake := testutil.NewFakeTasks()
	o, changes := newOrchestrator(t, fake)
	ctx := context.Background()

	require.NoError(t, o.Generate(ctx, heroPath, imageReq("a red fox")))

	submitted := fake.Submitted()
	require.Len(t, submitted, 1)
	assert.Equal(t, "sess-1", submitted[0].SessionID)
	assert.Equal(t, "alice@example.com", submitted[0].Actor)
	assert.Equal(t, "a red fox", submitted[0].Params.Params["prompt"])

	v := o.View(heroPath)
	assert.Equal(t, generation.PhaseRunning, v.Phase)
	assert.Equal(t, "task-1", v.TaskID)
	assert.True(t, v.CanGenerate)

	fake.Progress("task-1", "diffusing", 800)
	eventually(t, func() bool {
		p := o.View(heroPath).Progress
		return p != nil && p.Message == "diffusing"
	}, "progress applied")

	fake.Complete("task-1", tasks.Result{MetadataID: "m1", URLs: []string{"https://cdn.example.com/1.png"}})
	eventually(t, func() bool { return o.View(heroPath).Phase == generation.PhaseIdle }, "task completed")

	v = o.View(heroPath)
	require.Len(t, v.Results, 1)
	assert.Equal(t, "m1", v.Results[0].MetadataID)
	assert.Empty(t, v.TaskID)
	assert.Positive(t, changes.Load())
}

func TestOrchestrator_QueuedRequestStartsAfterCompletion(t *testing.T) {
	fake := testutil.NewFakeTasks()
	o, _ := newOrchestrator(t, fake)
	ctx := context.Background()

	require.NoError(t, o.Generate(ctx, heroPath, imageReq("first")))
	require.NoError(t, o.Generate(ctx, heroPath, imageReq("second")))
	assert.ErrorIs(t, o.Generate(ctx, heroPath, imageReq("third")), generation.ErrQueueFull)

	v := o.View(heroPath)
	assert.Equal(t, generation.PhaseQueued, v.Phase)
	assert.True(t, v.Queued)
	assert.False(t, v.CanGenerate)

	fake.Complete("task-1", tasks.Result{MetadataID: "m1"})
	eventually(t, func() bool { return o.View(heroPath).TaskID == "task-2" }, "queued request submitted")

	submitted := fake.Submitted()
	require.Len(t, submitted, 2)
	assert.Equal(t, "second", submitted[1].Params.Params["prompt"])
	assert.False(t, o.View(heroPath).Queued)
}

func TestOrchestrator_SubmitErrorRecordedOnPanel(t *testing.T) {
	fake := testutil.NewFakeTasks()
	fake.SubmitErr = errors.New("task service unavailable")
	o, _ := newOrchestrator(t, fake)

	require.NoError(t, o.Generate(context.Background(), heroPath, imageReq("a")))
	v := o.View(heroPath)
	assert.Equal(t, generation.PhaseIdle, v.Phase)
	assert.Equal(t, "task service unavailable", v.Error)
}

func TestOrchestrator_TaskFailure(t *testing.T) {
	fake := testutil.NewFakeTasks()
	o, _ := newOrchestrator(t, fake)
	ctx := context.Background()

	require.NoError(t, o.Generate(ctx, heroPath, imageReq("a")))
	require.NoError(t, o.Generate(ctx, heroPath, imageReq("b")))
	fake.Fail("task-1", "content policy violation")

	eventually(t, func() bool { return o.View(heroPath).TaskID == "task-2" }, "queued request submitted after the failure")
	v := o.View(heroPath)
	assert.Equal(t, "content policy violation", v.Error)
	assert.Equal(t, generation.PhaseRunning, v.Phase)
	assert.False(t, v.Queued)

	submitted := fake.Submitted()
	require.Len(t, submitted, 2)
	assert.Equal(t, "b", submitted[1].Params.Params["prompt"])

	fake.Fail("task-2", "content policy violation")
	eventually(t, func() bool { return o.View(heroPath).Phase == generation.PhaseIdle }, "second failure settles idle")
	assert.Len(t, fake.Submitted(), 2)
}

func TestOrchestrator_StreamOpenError(t *testing.T) {
	fake := testutil.NewFakeTasks()
	fake.StreamErr = errors.New("stream refused")
	o, _ := newOrchestrator(t, fake)

	require.NoError(t, o.Generate(context.Background(), heroPath, imageReq("a")))
	eventually(t, func() bool { return o.View(heroPath).Error == "stream refused" }, "stream error recorded")
}

func TestOrchestrator_CropFlow(t *testing.T) {
	fake := testutil.NewFakeTasks()
	o, _ := newOrchestrator(t, fake)
	ctx := context.Background()
	video := schema.ParsePath("clip.animate")
	o.Register(generation.PanelConfig{Path: video, Provider: "stub", PromptID: "clip", ActionType: "image_to_video"})

	require.NoError(t, o.Generate(ctx, video, videoReq()))
	assert.True(t, o.View(video).AwaitingCrop)
	assert.Empty(t, fake.Submitted())

	require.NoError(t, o.CancelCrop(video))
	assert.Equal(t, generation.PhaseIdle, o.View(video).Phase)
	assert.ErrorIs(t, o.ConfirmCrop(ctx, video, tasks.CropRegion{}, false), generation.ErrNoCropPending)

	require.NoError(t, o.Generate(ctx, video, videoReq()))
	region := tasks.CropRegion{X: 0, Y: 10, Width: 512, Height: 288}
	require.NoError(t, o.ConfirmCrop(ctx, video, region, true))

	submitted := fake.Submitted()
	require.Len(t, submitted, 1)
	assert.Equal(t, &region, submitted[0].Params.CropRegion)
	assert.Equal(t, &region, o.View(video).SavedCrop)

	require.NoError(t, o.ClearCrop(video))
	assert.Nil(t, o.View(video).SavedCrop)
}

func TestOrchestrator_MountSeedsAndReconnects(t *testing.T) {
	fake := testutil.NewFakeTasks()
	fake.Groups["image"] = []tasks.HistoryGroup{{
		Provider: "stub",
		PromptID: "hero",
		Generations: []tasks.Generation{
			{MetadataID: "old-1", URLs: []string{"u1"}, RequestParams: map[string]any{"prompt": "first"}},
			{MetadataID: "old-2", URLs: []string{"u2"}, RequestParams: map[string]any{"prompt": "latest"}},
		},
	}}
	fake.InFlight = []tasks.InFlightTask{
		{TaskID: "T", Status: tasks.StatusProcessing, Payload: tasks.TaskPayload{InteractionID: "int-1", Provider: "stub", PromptID: "hero"},
			Progress: &tasks.Progress{Message: "halfway"}},
		{TaskID: "T-dup", Status: tasks.StatusProcessing, Payload: tasks.TaskPayload{InteractionID: "int-1", Provider: "stub", PromptID: "hero"}},
		{TaskID: "other-interaction", Status: tasks.StatusProcessing, Payload: tasks.TaskPayload{InteractionID: "int-9", Provider: "stub", PromptID: "hero"}},
	}
	o, _ := newOrchestrator(t, fake)
	ctx := context.Background()

	restore, err := o.Mount(ctx, []generation.PanelConfig{heroPanel()})
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]any{"hero.generate": {"prompt": "latest"}}, restore)

	calls := fake.HistoryCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, tasks.HistoryQuery{SessionID: "sess-1", InteractionID: "int-1", ContentKind: "image"}, calls[0])

	v := o.View(heroPath)
	assert.Equal(t, generation.PhaseRunning, v.Phase)
	assert.Equal(t, "T", v.TaskID)
	assert.Equal(t, "halfway", v.Progress.Message)
	assert.Len(t, v.Results, 2)
	eventually(t, func() bool { return fake.StreamsOpened("T") == 1 }, "stream reopened")
	assert.Zero(t, fake.StreamsOpened("T-dup"))

	fake.Complete("T", tasks.Result{MetadataID: "M"})
	eventually(t, func() bool { return o.View(heroPath).Phase == generation.PhaseIdle }, "reconnected task completed")
	assert.Len(t, o.View(heroPath).Results, 3)

	// history now includes the finished generation while the task list
	// still reports it in flight
	fake.Groups["image"][0].Generations = append(fake.Groups["image"][0].Generations, tasks.Generation{MetadataID: "M"})
	_, err = o.Mount(ctx, []generation.PanelConfig{heroPanel()})
	require.NoError(t, err)

	v = o.View(heroPath)
	assert.Equal(t, generation.PhaseIdle, v.Phase)
	assert.Len(t, v.Results, 3)
	assert.Equal(t, 1, fake.StreamsOpened("T"))
}

func TestOrchestrator_MountHistoryError(t *testing.T) {
	fake := testutil.NewFakeTasks()
	fake.HistoryErr = errors.New("history offline")
	o, _ := newOrchestrator(t, fake)

	_, err := o.Mount(context.Background(), []generation.PanelConfig{heroPanel()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history offline")
}

func TestOrchestrator_PreviewAndSelection(t *testing.T) {
	fake := testutil.NewFakeTasks()
	o, _ := newOrchestrator(t, fake)

	o.SetPreview(heroPath, &tasks.Preview{Resolution: "1024x1024", EstimatedCost: 0.04})
	o.SelectContent("content-7")

	v := o.View(heroPath)
	require.NotNil(t, v.Preview)
	assert.Equal(t, "1024x1024", v.Preview.Resolution)
	assert.Equal(t, "content-7", v.SelectedContentID)
	assert.Equal(t, "content-7", o.View(schema.ParsePath("unregistered")).SelectedContentID)
}

func TestOrchestrator_CloseStopsStreams(t *testing.T) {
	fake := testutil.NewFakeTasks()
	o := generation.New(generation.Options{SessionID: "s", InteractionID: "int-1", Client: fake})
	o.Register(heroPanel())

	require.NoError(t, o.Generate(context.Background(), heroPath, imageReq("a")))
	eventually(t, func() bool { return fake.StreamsOpened("task-1") == 1 }, "stream opened")

	done := make(chan struct{})
	go func() {
		o.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.Equal(t, "task-1", o.View(heroPath).TaskID, "remote task is left running")
}

func TestDebouncer_LatestWins(t *testing.T) {
	d := generation.NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	var mu sync.Mutex
	var got []string
	record := func(s string) func() {
		return func() {
			mu.Lock()
			got = append(got, s)
			mu.Unlock()
		}
	}
	d.Trigger("hero", record("a"))
	d.Trigger("hero", record("b"))
	d.Trigger("clip", record("c"))

	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, "one call per key")
	mu.Lock()
	assert.ElementsMatch(t, []string{"b", "c"}, got)
	mu.Unlock()
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	d := generation.NewDebouncer(10 * time.Millisecond)
	var fired atomic.Bool
	d.Trigger("hero", func() { fired.Store(true) })
	d.Stop()
	d.Trigger("hero", func() { fired.Store(true) })
	time.Sleep(40 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestOrchestrator_UnknownPanel(t *testing.T) {
	fake := testutil.NewFakeTasks()
	o, _ := newOrchestrator(t, fake)

	err := o.Generate(context.Background(), schema.ParsePath("nowhere"), imageReq("a"))
	assert.ErrorIs(t, err, generation.ErrUnknownPanel)
	assert.Empty(t, fake.Submitted())

	o.SetPreview(schema.ParsePath("nowhere"), &tasks.Preview{})
	assert.ErrorIs(t, o.ClearCrop(schema.ParsePath("nowhere")), generation.ErrUnknownPanel)
}
