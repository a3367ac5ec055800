package provider

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
	"time"
)

// HTTPOptions configures an HTTP provider.
type HTTPOptions struct {
	Name     string
	Endpoint string
	Client   *http.Client
	// Signer signs every request when set.
	Signer *SigV4Signer
	Logger *slog.Logger
}

// HTTP is a provider reached over a small JSON API:
//
//	POST {endpoint}/jobs          Job      -> {"job_id": "..."}
//	GET  {endpoint}/jobs/{id}              -> Status
//	POST {endpoint}/estimates     Job      -> Estimate
type HTTP struct {
	name     string
	endpoint *url.URL
	client   *http.Client
	signer   *SigV4Signer
	logger   *slog.Logger
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.Code, e.Body)
}

func NewHTTP(opts HTTPOptions) (*HTTP, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("provider: http endpoint is required")
	}
	u, err := url.Parse(strings.TrimRight(opts.Endpoint, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("provider: invalid endpoint %q", opts.Endpoint)
	}
	name := opts.Name
	if name == "" {
		name = "http"
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTP{name: name, endpoint: u, client: client, signer: opts.Signer, logger: logger.With("provider", name)}, nil
}

func (h *HTTP) Name() string { return h.name }

func (h *HTTP) Submit(ctx context.Context, job Job) (string, error) {
	var resp struct {
		JobID string `json:"job_id"`
	}
	if err := h.do(ctx, http.MethodPost, "jobs", job, &resp); err != nil {
		return "", fmt.Errorf("provider %s: submit: %w", h.name, err)
	}
	if resp.JobID == "" {
		return "", fmt.Errorf("provider %s: submit: response has no job_id", h.name)
	}
	h.logger.Debug("job submitted", "job_id", resp.JobID, "action_type", job.ActionType)
	return resp.JobID, nil
}

func (h *HTTP) Poll(ctx context.Context, jobID string) (Status, error) {
	var st Status
	err := h.do(ctx, http.MethodGet, "jobs/"+url.PathEscape(jobID), nil, &st)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	if err != nil {
		return Status{}, fmt.Errorf("provider %s: poll %s: %w", h.name, jobID, err)
	}
	if st.State == "" {
		st.State = StateRunning
	}
	return st, nil
}

func (h *HTTP) Estimate(ctx context.Context, job Job) (Estimate, error) {
	var est Estimate
	if err := h.do(ctx, http.MethodPost, "estimates", job, &est); err != nil {
		return Estimate{}, fmt.Errorf("provider %s: estimate: %w", h.name, err)
	}
	return est, nil
}

func (h *HTTP) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = b
	}
	req, err := http.NewRequestWithContext(ctx, method, h.endpoint.JoinPath(path).String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.signer != nil {
		if err := h.signer.Sign(ctx, req, body); err != nil {
			return err
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
