package generation

import (
	"sync"
	"time"
)

// Debouncer delays a call per key until no newer call for that key has
// arrived for the configured delay. A newer call supersedes a pending one.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
}

func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay, pending: make(map[string]*time.Timer)}
}

// Trigger schedules fn for key, cancelling any pending call for key.
func (d *Debouncer) Trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if t, ok := d.pending[key]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		current := d.pending[key] == t
		if current {
			delete(d.pending, key)
		}
		d.mu.Unlock()
		if current {
			fn()
		}
	})
	d.pending[key] = t
}

// Stop cancels every pending call. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for k, t := range d.pending {
		t.Stop()
		delete(d.pending, k)
	}
}
