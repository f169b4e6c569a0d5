package session

import (
	"sync"

	"github.com/go-spdy/spdymux/frame"
)

// Table is the ordered id -> StreamEntry mapping spec.md §3 describes, plus
// the aggregate bookkeeping (active count, all-streams iteration) and the
// primitive stream mutations the SessionHandler drives. Adapted from the
// teacher pack's own streamMap (ngrok-ngrok-go/internal/muxado/stream_map.go),
// generalized from an opaque stream-handle map to the richer StreamEntry
// this spec requires.
type Table struct {
	mu      sync.RWMutex
	entries map[frame.StreamId]*StreamEntry
	order   []frame.StreamId // insertion order, for deterministic iteration
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{entries: make(map[frame.StreamId]*StreamEntry, 64)}
}

// Get looks up a stream by id.
func (t *Table) Get(id frame.StreamId) (*StreamEntry, bool) {
	t.mu.RLock()
	e, ok := t.entries[id]
	t.mu.RUnlock()
	return e, ok
}

// Insert adds a new stream entry, replacing any existing entry with the same
// id.
func (t *Table) Insert(e *StreamEntry) {
	t.mu.Lock()
	if _, exists := t.entries[e.id]; !exists {
		t.order = append(t.order, e.id)
	}
	t.entries[e.id] = e
	t.mu.Unlock()
}

// Remove deletes a stream by id. It is a no-op if the id is not present.
func (t *Table) Remove(id frame.StreamId) {
	t.mu.Lock()
	if _, exists := t.entries[id]; exists {
		delete(t.entries, id)
		for i, oid := range t.order {
			if oid == id {
				t.order = append(t.order[:i], t.order[i+1:]...)
				break
			}
		}
	}
	t.mu.Unlock()
}

// ActiveCount returns the number of streams currently tracked.
func (t *Table) ActiveCount() int {
	t.mu.RLock()
	n := len(t.entries)
	t.mu.RUnlock()
	return n
}

// AnyActive reports whether any stream is currently tracked.
func (t *Table) AnyActive() bool {
	return t.ActiveCount() > 0
}

// Each calls fn once for every currently-active stream. fn runs with the
// table's lock released, against a point-in-time snapshot (matching the
// teacher's streamMap.Each), so it may itself call back into Table.
func (t *Table) Each(fn func(*StreamEntry)) {
	t.mu.RLock()
	snapshot := make([]*StreamEntry, 0, len(t.entries))
	for _, id := range t.order {
		if e, ok := t.entries[id]; ok {
			snapshot = append(snapshot, e)
		}
	}
	t.mu.RUnlock()

	for _, e := range snapshot {
		fn(e)
	}
}
