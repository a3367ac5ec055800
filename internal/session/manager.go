package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finops-claw-gang/genui/internal/observability"
	"github.com/finops-claw-gang/genui/internal/schema"
	"github.com/finops-claw-gang/genui/internal/tasks"
)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Tasks        tasks.Client
	PreviewDelay time.Duration
	// IdleTimeout expires sessions nobody has touched; zero keeps them
	// until deleted.
	IdleTimeout time.Duration
	Logger      *slog.Logger
	Metrics     *observability.Metrics
}

// Manager owns the live sessions of a host process.
type Manager struct {
	opts   ManagerOptions
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{opts: opts, logger: logger, sessions: make(map[string]*Session)}
}

// CreateOptions describes a new session. An empty ID gets a fresh one;
// reusing an ID is how a reloaded page reattaches to its server tasks.
type CreateOptions struct {
	ID            string
	InteractionID string
	Actor         string
	Document      schema.Document
}

// Create builds and mounts a session. A live session with the same ID is
// closed and replaced.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (*Session, error) {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.InteractionID == "" {
		opts.InteractionID = opts.ID
	}
	s := New(Options{
		ID:            opts.ID,
		InteractionID: opts.InteractionID,
		Actor:         opts.Actor,
		Document:      opts.Document,
		Tasks:         m.opts.Tasks,
		PreviewDelay:  m.opts.PreviewDelay,
		Logger:        m.logger,
		Metrics:       m.opts.Metrics,
	})
	if err := s.Mount(ctx); err != nil {
		s.Close()
		return nil, err
	}

	m.mu.Lock()
	prev := m.sessions[opts.ID]
	m.sessions[opts.ID] = s
	m.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
	m.logger.Info("session created", "session_id", opts.ID, "interaction_id", opts.InteractionID)
	return s, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// List returns session ids in sorted order.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.Close()
	return nil
}

// Sweep closes sessions idle since before now minus the idle timeout and
// returns how many it removed.
func (m *Manager) Sweep(now time.Time) int {
	if m.opts.IdleTimeout <= 0 {
		return 0
	}
	var expired []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.LastUsed()) > m.opts.IdleTimeout {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	for _, s := range expired {
		m.logger.Info("session expired", "session_id", s.ID())
		s.Close()
	}
	return len(expired)
}

// Run sweeps idle sessions until ctx is done, then closes the rest.
func (m *Manager) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.CloseAll()
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}

func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}
