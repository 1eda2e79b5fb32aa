package stream

import (
	"sync"
	"time"
)

// ActivityDebouncer rate-limits per-node graph pulses: rapid repeat
// activity on one node collapses into a single broadcast per window.
type ActivityDebouncer struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	now    func() time.Time
}

// NewActivityDebouncer creates a debouncer with the given window.
func NewActivityDebouncer(window time.Duration) *ActivityDebouncer {
	return &ActivityDebouncer{
		window: window,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether a broadcast for this node is due, and if so
// stamps the node.
func (d *ActivityDebouncer) Allow(nodeID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if now.Sub(d.last[nodeID]) < d.window {
		return false
	}
	d.last[nodeID] = now
	return true
}

// Clear forgets one node's stamp, or all stamps when nodeID is empty.
func (d *ActivityDebouncer) Clear(nodeID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if nodeID == "" {
		d.last = make(map[string]time.Time)
		return
	}
	delete(d.last, nodeID)
}
