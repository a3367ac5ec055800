// Package history persists finished generations so panels can show and
// restore them after a reload.
package history

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Record is one finished generation.
type Record struct {
	SessionID     string         `json:"session_id"`
	InteractionID string         `json:"interaction_id"`
	TaskID        string         `json:"task_id"`
	Provider      string         `json:"provider"`
	PromptID      string         `json:"prompt_id"`
	ActionType    string         `json:"action_type"`
	ContentKind   string         `json:"content_kind"`
	URLs          []string       `json:"urls"`
	MetadataID    string         `json:"metadata_id"`
	ContentIDs    []string       `json:"content_ids"`
	RequestParams map[string]any `json:"request_params,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Query selects records. Empty fields match everything except SessionID,
// which is required.
type Query struct {
	SessionID     string
	InteractionID string
	ContentKind   string
}

func (q Query) matches(r Record) bool {
	return r.SessionID == q.SessionID &&
		(q.InteractionID == "" || r.InteractionID == q.InteractionID) &&
		(q.ContentKind == "" || r.ContentKind == q.ContentKind)
}

// Group is the records of one provider prompt, oldest first.
type Group struct {
	Provider string   `json:"provider"`
	PromptID string   `json:"prompt_id"`
	Records  []Record `json:"records"`
}

// Store persists records. Record is idempotent on MetadataID so activity
// retries do not duplicate history. Query returns records oldest first.
type Store interface {
	Record(ctx context.Context, r Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// GroupRecords groups records by (provider, prompt id), ordering groups by
// their first record.
func GroupRecords(records []Record) []Group {
	var groups []Group
	index := make(map[[2]string]int)
	for _, r := range records {
		k := [2]string{r.Provider, r.PromptID}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group{Provider: r.Provider, PromptID: r.PromptID})
		}
		groups[i].Records = append(groups[i].Records, r)
	}
	return groups
}

// Open returns the store for driver: "memory", "sqlite" (dsn is a file
// path) or "postgres" (dsn is a connection string).
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return OpenSQLite(ctx, dsn)
	case "postgres":
		return OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("history: unknown driver %q", driver)
	}
}

func validate(r Record) error {
	if r.SessionID == "" || r.MetadataID == "" {
		return fmt.Errorf("history: record needs session_id and metadata_id")
	}
	return nil
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	seen    map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]bool)}
}

func (m *MemoryStore) Record(_ context.Context, r Record) error {
	if err := validate(r); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[r.MetadataID] {
		return nil
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	m.seen[r.MetadataID] = true
	m.records = append(m.records, r)
	return nil
}

func (m *MemoryStore) Query(_ context.Context, q Query) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, r := range m.records {
		if q.matches(r) {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b Record) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
