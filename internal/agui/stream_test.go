package agui_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finops-claw-gang/genui/internal/agui"
	"github.com/finops-claw-gang/genui/internal/schema"
	"github.com/finops-claw-gang/genui/internal/session"
	"github.com/finops-claw-gang/genui/internal/tasks"
	"github.com/finops-claw-gang/genui/internal/testutil"
)

const formDoc = `{
  "schema": {"type":"object","_ux":{"render_as":"card[input_schema]","input_schema":{"type":"object","properties":{
    "title":{"type":"string","_ux":{"input_type":"text"}}}}}},
  "data": {"title":"draft"}
}`

type sseEvent struct {
	Name string
	Data string
}

func collect(t *testing.T, resp *http.Response) <-chan sseEvent {
	t.Helper()
	out := make(chan sseEvent, 16)
	go func() {
		defer close(out)
		_ = agui.ReadEvents(resp.Body, func(name string, data []byte) error {
			out <- sseEvent{Name: name, Data: string(data)}
			return nil
		})
	}()
	return out
}

func next(t *testing.T, events <-chan sseEvent) sseEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "stream ended")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return sseEvent{}
	}
}

func cfg() agui.StreamConfig {
	return agui.StreamConfig{KeepAlive: time.Second, MaxDuration: 5 * time.Second}
}

func TestSessionStream_SnapshotsUntilClosed(t *testing.T) {
	m := session.NewManager(session.ManagerOptions{Tasks: testutil.NewFakeTasks()})
	doc, err := schema.ParseDocument([]byte(formDoc))
	require.NoError(t, err)
	s, err := m.Create(context.Background(), session.CreateOptions{ID: "s1", Document: doc})
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/sessions/{id}/events", agui.SessionStreamHandler(m, cfg()))
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/sessions/s1/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	events := collect(t, resp)

	assert.Equal(t, "RUN_STARTED", next(t, events).Name)
	first := next(t, events)
	require.Equal(t, "STATE_SNAPSHOT", first.Name)
	var snap struct {
		SessionID string `json:"session_id"`
		Data      struct {
			Revision int64           `json:"revision"`
			Plan     json.RawMessage `json:"plan"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(first.Data), &snap))
	assert.Equal(t, "s1", snap.SessionID)
	assert.Contains(t, string(snap.Data.Plan), "draft")
	firstRev := snap.Data.Revision

	require.NoError(t, s.SetValue(schema.Root(), "title", "final"))
	second := next(t, events)
	require.Equal(t, "STATE_SNAPSHOT", second.Name)
	require.NoError(t, json.Unmarshal([]byte(second.Data), &snap))
	assert.Greater(t, snap.Data.Revision, firstRev)
	assert.Contains(t, string(snap.Data.Plan), "final")

	require.NoError(t, m.Delete("s1"))
	var finished sseEvent
	for ev := range events {
		finished = ev
	}
	assert.Equal(t, "RUN_FINISHED", finished.Name)
	assert.Contains(t, finished.Data, "session closed")
}

func TestSessionStream_UnknownSession(t *testing.T) {
	m := session.NewManager(session.ManagerOptions{})
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/sessions/{id}/events", agui.SessionStreamHandler(m, cfg()))
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/sessions/nope/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionStream_MaxDurationEndsWithRunError(t *testing.T) {
	m := session.NewManager(session.ManagerOptions{Tasks: testutil.NewFakeTasks()})
	defer m.CloseAll()
	doc, err := schema.ParseDocument([]byte(formDoc))
	require.NoError(t, err)
	_, err = m.Create(context.Background(), session.CreateOptions{ID: "s1", Document: doc})
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/sessions/{id}/events", agui.SessionStreamHandler(m,
		agui.StreamConfig{KeepAlive: time.Second, MaxDuration: 200 * time.Millisecond}))
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/sessions/s1/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	events := collect(t, resp)

	assert.Equal(t, string(agui.EventRunStarted), next(t, events).Name)
	assert.Equal(t, string(agui.EventStateSnapshot), next(t, events).Name)
	ev := next(t, events)
	assert.Equal(t, string(agui.EventRunError), ev.Name)
	assert.Contains(t, ev.Data, "max duration")
}

func TestTaskStream_RelaysEventsUntilTerminal(t *testing.T) {
	fake := testutil.NewFakeTasks()
	handle, err := fake.SubmitSubAction(context.Background(), tasks.SubActionRequest{SessionID: "s1"})
	require.NoError(t, err)
	fake.Progress(handle.TaskID, "rendering step 1 of 2", 1000)
	fake.Complete(handle.TaskID, tasks.Result{MetadataID: "m1", URLs: []string{"https://cdn/x.png"}})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/tasks/{id}/stream", agui.TaskStreamHandler(fake, cfg()))
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/tasks/" + handle.TaskID + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got []tasks.Event
	var names []string
	require.NoError(t, agui.ReadEvents(resp.Body, func(name string, data []byte) error {
		var ev tasks.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		names = append(names, name)
		got = append(got, ev)
		return nil
	}))
	assert.Equal(t, []string{"progress", "complete"}, names)
	require.Len(t, got, 2)
	assert.Equal(t, "rendering step 1 of 2", got[0].Progress.Message)
	assert.Equal(t, "m1", got[1].Result.MetadataID)
	assert.Equal(t, handle.TaskID, got[1].TaskID)
}

type missingStreamer struct{}

func (missingStreamer) StreamTask(context.Context, string) (<-chan tasks.Event, error) {
	return nil, fmt.Errorf("%w: gone", tasks.ErrTaskNotFound)
}

type brokenStreamer struct{}

func (brokenStreamer) StreamTask(context.Context, string) (<-chan tasks.Event, error) {
	return nil, errors.New("temporal unavailable")
}

func TestTaskStream_OpenErrors(t *testing.T) {
	for name, tc := range map[string]struct {
		streamer agui.TaskStreamer
		status   int
	}{
		"not found":   {missingStreamer{}, http.StatusNotFound},
		"backend err": {brokenStreamer{}, http.StatusInternalServerError},
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/t1/stream", nil)
			req.SetPathValue("id", "t1")
			agui.TaskStreamHandler(tc.streamer, cfg())(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestReadEvents(t *testing.T) {
	raw := ": keep-alive\n\n" +
		"event: progress\ndata: {\"a\":1}\n\n" +
		"data: line one\ndata: line two\n\n" +
		"event: complete\ndata:{}\n\n"

	var got []sseEvent
	require.NoError(t, agui.ReadEvents(strings.NewReader(raw), func(name string, data []byte) error {
		got = append(got, sseEvent{Name: name, Data: string(data)})
		return nil
	}))
	assert.Equal(t, []sseEvent{
		{Name: "progress", Data: `{"a":1}`},
		{Name: "message", Data: "line one\nline two"},
		{Name: "complete", Data: "{}"},
	}, got)
}

func TestReadEvents_StopsOnCallbackError(t *testing.T) {
	raw := "event: a\ndata: 1\n\nevent: b\ndata: 2\n\n"
	calls := 0
	err := agui.ReadEvents(strings.NewReader(raw), func(string, []byte) error {
		calls++
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, calls)
}

func TestEventSerialization(t *testing.T) {
	event := agui.Event{
		Type:      agui.EventRunStarted,
		Timestamp: time.Date(2026, 2, 17, 0, 0, 0, 0, time.UTC),
		SessionID: "s-test",
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "RUN_STARTED", decoded["type"])
	assert.Equal(t, "s-test", decoded["session_id"])
	assert.NotContains(t, decoded, "data")
}
