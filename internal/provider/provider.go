// Package provider abstracts the media generation backends that tasks call.
// A provider accepts a job, reports its status when polled, and estimates
// cost before submission.
package provider

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	ErrUnknownProvider = errors.New("provider: unknown provider")
	ErrUnknownJob      = errors.New("provider: unknown job")
)

// Crop is a rectangle in source-image pixels.
type Crop struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Job is one generation request as a provider sees it.
type Job struct {
	ActionType string         `json:"action_type"`
	PromptID   string         `json:"prompt_id"`
	Params     map[string]any `json:"params"`
	SourceData any            `json:"source_data,omitempty"`
	Crop       *Crop          `json:"crop,omitempty"`
}

// State is the provider-side lifecycle of a job.
type State string

const (
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Output is what a succeeded job produced.
type Output struct {
	URLs       []string `json:"urls"`
	MetadataID string   `json:"metadata_id"`
	ContentIDs []string `json:"content_ids"`
}

// Status is the answer to one poll.
type Status struct {
	State   State   `json:"state"`
	Message string  `json:"message,omitempty"`
	Output  *Output `json:"output,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Done reports whether the job will not change again.
func (s Status) Done() bool {
	return s.State == StateSucceeded || s.State == StateFailed
}

// Estimate is a pre-submission resolution and cost guess.
type Estimate struct {
	Resolution string  `json:"resolution"`
	Cost       float64 `json:"cost"`
	Seconds    int     `json:"seconds"`
}

// Provider is a media generation backend.
type Provider interface {
	Name() string
	Submit(ctx context.Context, job Job) (string, error)
	Poll(ctx context.Context, jobID string) (Status, error)
	Estimate(ctx context.Context, job Job) (Estimate, error)
}

// Registry looks providers up by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds p, replacing any provider with the same name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func kindOf(actionType string) string {
	switch actionType {
	case "video_generation", "image_to_video":
		return "video"
	case "audio_generation":
		return "audio"
	default:
		return "image"
	}
}
