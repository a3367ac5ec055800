package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrBudgetExceeded is returned when a session has used its generation
// budget for the current window.
var ErrBudgetExceeded = errors.New("generation budget exceeded")

// SessionBudget tracks generation counts per (session, action type) within
// fixed time windows. A zero maxPerWindow disables the budget.
type SessionBudget struct {
	mu     sync.Mutex
	counts map[string]*windowCounter

	maxPerWindow int
	windowSize   time.Duration
	now          func() time.Time
}

type windowCounter struct {
	count     int
	windowEnd time.Time
}

// NewSessionBudget creates a budget limiter.
func NewSessionBudget(maxPerWindow int, windowSize time.Duration) *SessionBudget {
	return &SessionBudget{
		counts:       make(map[string]*windowCounter),
		maxPerWindow: maxPerWindow,
		windowSize:   windowSize,
		now:          time.Now,
	}
}

func budgetKey(sessionID, actionType string) string {
	return sessionID + "|" + actionType
}

// Check returns ErrBudgetExceeded, wrapped with the counts, if the session
// cannot start another generation of this type.
func (b *SessionBudget) Check(sessionID, actionType string) error {
	if b == nil || b.maxPerWindow <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	wc, ok := b.counts[budgetKey(sessionID, actionType)]
	if !ok || b.now().After(wc.windowEnd) {
		return nil
	}
	if wc.count >= b.maxPerWindow {
		return fmt.Errorf("%w: session %s action %s (%d/%d in window)",
			ErrBudgetExceeded, sessionID, actionType, wc.count, b.maxPerWindow)
	}
	return nil
}

// Record counts one generation for the session.
func (b *SessionBudget) Record(sessionID, actionType string) {
	if b == nil || b.maxPerWindow <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	key := budgetKey(sessionID, actionType)
	wc, ok := b.counts[key]
	if !ok || b.now().After(wc.windowEnd) {
		b.counts[key] = &windowCounter{
			count:     1,
			windowEnd: b.now().Add(b.windowSize),
		}
		return
	}
	wc.count++
}

// Remaining reports how many generations the session may still start in
// the current window, or -1 when unlimited.
func (b *SessionBudget) Remaining(sessionID, actionType string) int {
	if b == nil || b.maxPerWindow <= 0 {
		return -1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	wc, ok := b.counts[budgetKey(sessionID, actionType)]
	if !ok || b.now().After(wc.windowEnd) {
		return b.maxPerWindow
	}
	return max(b.maxPerWindow-wc.count, 0)
}
