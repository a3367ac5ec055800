// Package httpclient is a tasks.Client that talks to a remote genui API.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/finops-claw-gang/genui/internal/agui"
	"github.com/finops-claw-gang/genui/internal/ratelimit"
	"github.com/finops-claw-gang/genui/internal/tasks"
)

// Options configures a Client.
type Options struct {
	// BaseURL is the API root, e.g. http://localhost:8080.
	BaseURL string
	// Token is sent as a bearer token when set.
	Token      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client implements tasks.Client over the task-service HTTP endpoints.
type Client struct {
	base   *url.URL
	token  string
	http   *http.Client
	logger *slog.Logger
}

// StatusError is a non-2xx API response. It unwraps to the matching
// tasks or ratelimit sentinel where one exists.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.Code, e.Message)
}

func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusBadRequest:
		return tasks.ErrInvalidRequest
	case http.StatusNotFound:
		return tasks.ErrTaskNotFound
	case http.StatusTooManyRequests:
		return ratelimit.ErrBudgetExceeded
	}
	return nil
}

func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("httpclient: invalid base url %q", opts.BaseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{base: base, token: opts.Token, http: hc, logger: logger}, nil
}

func (c *Client) SubmitSubAction(ctx context.Context, req tasks.SubActionRequest) (tasks.TaskHandle, error) {
	var h tasks.TaskHandle
	err := c.do(ctx, http.MethodPost, "/api/v1/subactions", nil, req, &h)
	return h, err
}

// Task fetches the current status of one task.
func (c *Client) Task(ctx context.Context, taskID string) (tasks.TaskStatus, error) {
	var st tasks.TaskStatus
	err := c.do(ctx, http.MethodGet, "/api/v1/tasks/"+url.PathEscape(taskID), nil, nil, &st)
	return st, err
}

func (c *Client) ListInFlight(ctx context.Context, sessionID string) ([]tasks.InFlightTask, error) {
	var body struct {
		Tasks []tasks.InFlightTask `json:"tasks"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/tasks", url.Values{"session_id": {sessionID}}, nil, &body)
	return body.Tasks, err
}

func (c *Client) History(ctx context.Context, q tasks.HistoryQuery) ([]tasks.HistoryGroup, error) {
	params := url.Values{"session_id": {q.SessionID}, "interaction_id": {q.InteractionID}}
	if q.ContentKind != "" {
		params.Set("content_kind", q.ContentKind)
	}
	var body struct {
		Groups []tasks.HistoryGroup `json:"groups"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/history", params, nil, &body)
	return body.Groups, err
}

func (c *Client) Preview(ctx context.Context, req tasks.PreviewRequest) (tasks.Preview, error) {
	var p tasks.Preview
	err := c.do(ctx, http.MethodPost, "/api/v1/preview", nil, req, &p)
	return p, err
}

// StreamTask follows the task's SSE stream. The channel closes after a
// terminal event, when ctx is done, or when the connection drops; a drop
// before a terminal event is reported as an error event.
func (c *Client) StreamTask(ctx context.Context, taskID string) (<-chan tasks.Event, error) {
	req, err := c.request(ctx, http.MethodGet, "/api/v1/tasks/"+url.PathEscape(taskID)+"/stream", nil, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: stream %s: %w", taskID, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}

	out := make(chan tasks.Event)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		terminal := false
		err := agui.ReadEvents(resp.Body, func(name string, data []byte) error {
			var ev tasks.Event
			if err := json.Unmarshal(data, &ev); err != nil {
				return fmt.Errorf("decode %s event: %w", name, err)
			}
			if ev.Type == "" {
				ev.Type = tasks.EventType(name)
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
			if ev.Terminal() {
				terminal = true
				return errStop
			}
			return nil
		})
		if terminal || ctx.Err() != nil {
			return
		}
		msg := "task stream ended before completion"
		if err != nil {
			msg = fmt.Sprintf("task stream failed: %v", err)
		}
		c.logger.Warn("task stream dropped", "task_id", taskID, "error", err)
		select {
		case out <- tasks.Event{Type: tasks.EventError, TaskID: taskID, Error: msg}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

var errStop = errors.New("stop")

func (c *Client) request(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u := *c.base
	u.Path += path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("httpclient: encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
	if err != nil {
		return nil, fmt.Errorf("httpclient: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req, err := c.request(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("httpclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("httpclient: decode %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
	}
	return &StatusError{Code: resp.StatusCode, Message: body.Error}
}

var _ tasks.Client = (*Client)(nil)
