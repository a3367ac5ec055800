package agui

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/finops-claw-gang/genui/internal/session"
	"github.com/finops-claw-gang/genui/internal/tasks"
)

// StreamConfig controls SSE stream behavior.
type StreamConfig struct {
	// KeepAlive is the interval between comment lines on an idle stream.
	KeepAlive   time.Duration
	MaxDuration time.Duration
	Logger      *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() StreamConfig {
	return StreamConfig{
		KeepAlive:   15 * time.Second,
		MaxDuration: 30 * time.Minute,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c StreamConfig) withDefaults() StreamConfig {
	d := DefaultConfig()
	if c.KeepAlive <= 0 {
		c.KeepAlive = d.KeepAlive
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = d.MaxDuration
	}
	return c
}

func (c StreamConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Sessions looks live sessions up by id.
type Sessions interface {
	Get(id string) (*session.Session, error)
}

// TaskStreamer opens task event streams.
type TaskStreamer interface {
	StreamTask(ctx context.Context, taskID string) (<-chan tasks.Event, error)
}

// SessionStreamHandler serves a session's render plan as SSE: a snapshot
// on connect and another after every state change. The stream finishes
// when the session closes.
func SessionStreamHandler(sessions Sessions, cfg StreamConfig) http.HandlerFunc {
	cfg = cfg.withDefaults()
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id == "" {
			http.Error(w, "session id required", http.StatusBadRequest)
			return
		}
		s, err := sessions.Get(id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}
		streamHeaders(w)

		ctx, cancel := context.WithTimeout(r.Context(), cfg.MaxDuration)
		defer cancel()

		// Subscribe before the first snapshot so no change is missed.
		updates, unsubscribe := s.Subscribe()
		defer unsubscribe()

		if err := writeSSE(w, flusher, string(EventRunStarted), newEvent(EventRunStarted, id, nil)); err != nil {
			return
		}
		last := int64(-1)
		snapshot := func() error {
			snap := s.Snapshot()
			if snap.Revision <= last {
				return nil
			}
			last = snap.Revision
			return writeSSE(w, flusher, string(EventStateSnapshot), newEvent(EventStateSnapshot, id,
				StateSnapshotData{Revision: snap.Revision, Plan: snap.Plan}))
		}
		if err := snapshot(); err != nil {
			cfg.logger().Warn("session stream write failed", "session_id", id, "error", err)
			return
		}

		keepAlive := time.NewTicker(cfg.KeepAlive)
		defer keepAlive.Stop()
		for {
			select {
			case <-ctx.Done():
				// Clients reconnect after a RUN_ERROR; a plain disconnect needs no event.
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					_ = writeSSE(w, flusher, string(EventRunError),
						newEvent(EventRunError, id, ErrorData{Message: "stream exceeded max duration"}))
				}
				return
			case _, open := <-updates:
				if !open {
					_ = writeSSE(w, flusher, string(EventRunFinished),
						newEvent(EventRunFinished, id, FinishedData{Reason: "session closed"}))
					return
				}
				if err := snapshot(); err != nil {
					return
				}
			case <-keepAlive.C:
				if err := writeComment(w, flusher, "keep-alive"); err != nil {
					return
				}
			}
		}
	}
}

// TaskStreamHandler relays a task's events as SSE named progress,
// complete or error, each carrying the JSON tasks.Event.
func TaskStreamHandler(streamer TaskStreamer, cfg StreamConfig) http.HandlerFunc {
	cfg = cfg.withDefaults()
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id == "" {
			http.Error(w, "task id required", http.StatusBadRequest)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), cfg.MaxDuration)
		defer cancel()

		events, err := streamer.StreamTask(ctx, id)
		switch {
		case errors.Is(err, tasks.ErrTaskNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		case err != nil:
			cfg.logger().Error("open task stream", "task_id", id, "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		streamHeaders(w)
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		keepAlive := time.NewTicker(cfg.KeepAlive)
		defer keepAlive.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, open := <-events:
				if !open {
					return
				}
				if err := writeSSE(w, flusher, string(ev.Type), ev); err != nil {
					return
				}
				if ev.Terminal() {
					return
				}
			case <-keepAlive.C:
				if err := writeComment(w, flusher, "keep-alive"); err != nil {
					return
				}
			}
		}
	}
}
