package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finops-claw-gang/genui/internal/api"
	"github.com/finops-claw-gang/genui/internal/ratelimit"
	"github.com/finops-claw-gang/genui/internal/session"
	"github.com/finops-claw-gang/genui/internal/tasks"
	"github.com/finops-claw-gang/genui/internal/testutil"
)

const panelDoc = `{
  "schema": {"type":"object","_ux":{"display":"passthrough"},"properties":{
    "hero": {"type":"object","_ux":{
      "render_as":"card[input_schema,image_generation]","provider":"stub","prompt_id":"hero",
      "input_schema":{"type":"object","required":["prompt"],"properties":{
        "prompt":{"type":"string","_ux":{"input_type":"textarea"}}}}}}}},
  "data": {"hero": {}}
}`

type testEnv struct {
	ts       *httptest.Server
	fake     *testutil.FakeTasks
	sessions *session.Manager
}

func newTestServer(t *testing.T) testEnv {
	t.Helper()
	fake := testutil.NewFakeTasks()
	m := session.NewManager(session.ManagerOptions{Tasks: fake})
	t.Cleanup(m.CloseAll)
	srv, err := api.New(context.Background(), api.Options{Sessions: m, Tasks: fake, CORSOrigins: []string{"*"}})
	require.NoError(t, err)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return testEnv{ts: ts, fake: fake, sessions: m}
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &out)
	return resp, out
}

func createSession(t *testing.T, env testEnv, id string) map[string]any {
	t.Helper()
	resp, body := do(t, http.MethodPost, env.ts.URL+"/api/v1/sessions", `{"id":"`+id+`","document":`+panelDoc+`}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body
}

func TestHealth(t *testing.T) {
	env := newTestServer(t)
	resp, body := do(t, http.MethodGet, env.ts.URL+"/api/v1/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestRender(t *testing.T) {
	env := newTestServer(t)
	resp, body := do(t, http.MethodPost, env.ts.URL+"/api/v1/render", panelDoc)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, body["plan"])

	resp, _ = do(t, http.MethodPost, env.ts.URL+"/api/v1/render", `{"data":{}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestServer(t)
	snap := createSession(t, env, "s1")
	assert.Equal(t, "s1", snap["id"])
	assert.Equal(t, "s1", snap["interaction_id"])
	assert.NotNil(t, snap["plan"])

	resp, body := do(t, http.MethodGet, env.ts.URL+"/api/v1/sessions", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"s1"}, body["sessions"])

	resp, body = do(t, http.MethodPost, env.ts.URL+"/api/v1/sessions/s1/actions",
		`{"type":"set_value","scope":"hero","field":"prompt","value":"a lighthouse"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Greater(t, body["revision"], snap["revision"])

	resp, _ = do(t, http.MethodDelete, env.ts.URL+"/api/v1/sessions/s1", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, env.ts.URL+"/api/v1/sessions/s1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionActionErrors(t *testing.T) {
	env := newTestServer(t)
	createSession(t, env, "s1")
	url := env.ts.URL + "/api/v1/sessions/s1/actions"

	resp, body := do(t, http.MethodPost, url, `{"type":"generate","path":"hero"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Len(t, body["fields"], 1)
	assert.Empty(t, env.fake.Submitted())

	resp, _ = do(t, http.MethodPost, url, `{"type":"generate","path":"nowhere"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, url, `{"type":"teleport"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, url, `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, url, `{"type":"set_value","scope":"hero","field":"prompt","value":"x"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for range 2 {
		resp, _ = do(t, http.MethodPost, url, `{"type":"generate","path":"hero"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPost, url, `{"type":"generate","path":"hero"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Len(t, env.fake.Submitted(), 1)

	resp, _ = do(t, http.MethodPost, env.ts.URL+"/api/v1/sessions/missing/actions", `{"type":"select_content"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateDocument(t *testing.T) {
	env := newTestServer(t)
	createSession(t, env, "s1")

	resp, body := do(t, http.MethodPut, env.ts.URL+"/api/v1/sessions/s1/document", panelDoc)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "s1", body["id"])
}

func TestSubmitSubAction(t *testing.T) {
	env := newTestServer(t)
	resp, body := do(t, http.MethodPost, env.ts.URL+"/api/v1/subactions",
		`{"session_id":"s1","interaction_id":"i1","params":{"provider":"stub","action_type":"image_generation","prompt_id":"hero","params":{"prompt":"x"}}}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "task-1", body["task_id"])
	assert.Equal(t, tasks.StatusProcessing, body["status"])
	require.Len(t, env.fake.Submitted(), 1)
	assert.Equal(t, "hero", env.fake.Submitted()[0].Params.PromptID)
}

func TestSubmitSubAction_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"invalid", tasks.ErrInvalidRequest, http.StatusBadRequest, "tasks: invalid request"},
		{"budget", ratelimit.ErrBudgetExceeded, http.StatusTooManyRequests, "generation budget exceeded"},
		{"internal", errors.New("temporal: connection refused"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestServer(t)
			env.fake.SubmitErr = tt.err
			resp, body := do(t, http.MethodPost, env.ts.URL+"/api/v1/subactions", `{"session_id":"s1"}`)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.body, body["error"])
		})
	}
}

func TestTaskQueries(t *testing.T) {
	env := newTestServer(t)
	env.fake.InFlight = []tasks.InFlightTask{{TaskID: "t-9", Status: tasks.StatusProcessing}}
	env.fake.Statuses["t-9"] = tasks.TaskStatus{TaskID: "t-9", Status: tasks.StatusProcessing}
	env.fake.Groups["image"] = []tasks.HistoryGroup{{Provider: "stub", PromptID: "hero"}}
	env.fake.PreviewResult = tasks.Preview{Resolution: "1024x1024", EstimatedCost: 0.04, EstimatedSeconds: 8}

	resp, body := do(t, http.MethodGet, env.ts.URL+"/api/v1/tasks?session_id=s1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["tasks"], 1)

	resp, body = do(t, http.MethodGet, env.ts.URL+"/api/v1/tasks/t-9", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "t-9", body["task_id"])

	resp, _ = do(t, http.MethodGet, env.ts.URL+"/api/v1/tasks/t-404", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = do(t, http.MethodGet, env.ts.URL+"/api/v1/history?session_id=s1&interaction_id=i1&content_kind=image", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["groups"], 1)

	resp, body = do(t, http.MethodGet, env.ts.URL+"/api/v1/history?session_id=s1&content_kind=audio", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{}, body["groups"])

	resp, body = do(t, http.MethodPost, env.ts.URL+"/api/v1/preview", `{"provider":"stub","action_type":"image_generation"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1024x1024", body["resolution"])
}

func TestWebsocketSession(t *testing.T) {
	env := newTestServer(t)
	createSession(t, env, "s1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/api/v1/sessions/s1/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var msg struct {
		Type      string          `json:"type"`
		RequestID string          `json:"request_id"`
		Data      json.RawMessage `json:"data"`
	}
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "snapshot", msg.Type)

	require.NoError(t, wsjson.Write(ctx, conn, api.ClientMessage{
		Type: "action", ID: "r1",
		Data: json.RawMessage(`{"type":"set_value","scope":"hero","field":"prompt","value":"a comet"}`),
	}))
	seen := map[string]bool{}
	for !(seen["ack"] && seen["snapshot"]) {
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		seen[msg.Type] = true
		if msg.Type == "snapshot" {
			assert.Contains(t, string(msg.Data), "a comet")
		}
	}

	require.NoError(t, wsjson.Write(ctx, conn, api.ClientMessage{
		Type: "action", ID: "r2", Data: json.RawMessage(`{"type":"generate","path":"nowhere"}`),
	}))
	for {
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		if msg.Type == "error" {
			break
		}
	}
	assert.Equal(t, "r2", msg.RequestID)
	var ed api.ErrorData
	require.NoError(t, json.Unmarshal(msg.Data, &ed))
	assert.Equal(t, http.StatusNotFound, ed.Status)
}

func TestSessionEventsRoute(t *testing.T) {
	env := newTestServer(t)
	createSession(t, env, "s1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.ts.URL+"/api/v1/sessions/s1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestServer(t)
	resp, _ := do(t, http.MethodGet, env.ts.URL+"/api/v1/health", "")
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	req, err := http.NewRequest(http.MethodGet, env.ts.URL+"/api/v1/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "upstream-42")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "upstream-42", resp.Header.Get("X-Request-ID"))
}

func TestCORSHeaders(t *testing.T) {
	env := newTestServer(t)
	resp, _ := do(t, http.MethodOptions, env.ts.URL+"/api/v1/sessions", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORSAllowList(t *testing.T) {
	m := session.NewManager(session.ManagerOptions{})
	t.Cleanup(m.CloseAll)
	srv, err := api.New(context.Background(), api.Options{Sessions: m, CORSOrigins: []string{"https://app.example.com"}})
	require.NoError(t, err)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	for origin, want := range map[string]string{
		"https://app.example.com":  "https://app.example.com",
		"https://evil.example.com": "",
	} {
		req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/sessions", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, want, resp.Header.Get("Access-Control-Allow-Origin"), origin)
	}
}
