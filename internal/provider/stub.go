package provider

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// FailMarker in a job's prompt makes the stub fail the job on its last
// step.
const FailMarker = "[fail]"

// Stub is a deterministic in-memory provider. Each job succeeds after a
// fixed number of polls, producing placeholder URLs.
type Stub struct {
	name    string
	steps   int
	baseURL string

	mu   sync.Mutex
	jobs map[string]*stubJob
}

type stubJob struct {
	job   Job
	polls int
}

// NewStub returns a stub that finishes jobs on the given poll count.
func NewStub(name string, steps int) *Stub {
	return &Stub{
		name:    name,
		steps:   max(steps, 1),
		baseURL: "https://stub.genui.local",
		jobs:    make(map[string]*stubJob),
	}
}

func (s *Stub) Name() string { return s.name }

func (s *Stub) Submit(_ context.Context, job Job) (string, error) {
	if job.ActionType == "image_to_video" && job.Crop == nil {
		return "", fmt.Errorf("stub: %s requires a crop region", job.ActionType)
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.jobs[id] = &stubJob{job: job}
	s.mu.Unlock()
	return id, nil
}

func (s *Stub) Poll(_ context.Context, jobID string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	if j.polls < s.steps {
		j.polls++
	}
	if j.polls < s.steps {
		return Status{State: StateRunning, Message: fmt.Sprintf("rendering step %d of %d", j.polls, s.steps)}, nil
	}

	prompt, _ := j.job.Params["prompt"].(string)
	if strings.Contains(prompt, FailMarker) {
		return Status{State: StateFailed, Error: "stub: generation rejected"}, nil
	}
	kind := kindOf(j.job.ActionType)
	out := &Output{MetadataID: uuid.NewSHA1(uuid.NameSpaceURL, []byte(jobID)).String()}
	for i := range count(j.job.Params) {
		out.URLs = append(out.URLs, fmt.Sprintf("%s/%s/%s-%d.%s", s.baseURL, kind, jobID, i, extension(kind)))
		out.ContentIDs = append(out.ContentIDs, uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s/%d", jobID, i))).String())
	}
	return Status{State: StateSucceeded, Message: "done", Output: out}, nil
}

// Estimate prices images per output, video and audio per second.
func (s *Stub) Estimate(_ context.Context, job Job) (Estimate, error) {
	kind := kindOf(job.ActionType)
	n := count(job.Params)
	switch kind {
	case "video":
		d := duration(job.Params, 5)
		return Estimate{Resolution: resolution(job.Params, "1280x720"), Cost: round(0.25 * d), Seconds: 30 + int(6*d)}, nil
	case "audio":
		d := duration(job.Params, 10)
		return Estimate{Cost: round(0.01 * d), Seconds: 10}, nil
	default:
		return Estimate{Resolution: resolution(job.Params, "1024x1024"), Cost: round(0.04 * float64(n)), Seconds: 8 * n}, nil
	}
}

var aspectSizes = map[string]string{
	"1:1":  "1024x1024",
	"16:9": "1344x768",
	"9:16": "768x1344",
	"4:3":  "1152x896",
	"3:4":  "896x1152",
}

func resolution(params map[string]any, fallback string) string {
	w, wok := params["width"].(float64)
	h, hok := params["height"].(float64)
	if wok && hok {
		return fmt.Sprintf("%dx%d", int(w), int(h))
	}
	if ar, ok := params["aspect_ratio"].(string); ok {
		if size, ok := aspectSizes[ar]; ok {
			return size
		}
	}
	return fallback
}

func count(params map[string]any) int {
	if n, ok := params["count"].(float64); ok && n >= 1 {
		return int(n)
	}
	return 1
}

func duration(params map[string]any, fallback float64) float64 {
	if d, ok := params["duration"].(float64); ok && d > 0 {
		return d
	}
	return fallback
}

func extension(kind string) string {
	switch kind {
	case "video":
		return "mp4"
	case "audio":
		return "mp3"
	default:
		return "png"
	}
}

func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}
