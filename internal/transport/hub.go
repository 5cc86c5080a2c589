package transport

import (
	"sync"

	"mergeflow/internal/pipeline"
)

// DefaultHistory is the number of events Hub keeps per owner.
const DefaultHistory = 200

// Hub is a pipeline.Sink that retains recent events and the last summary
// for each owner.
type Hub struct {
	limit int

	mu      sync.Mutex
	events  map[int64][]pipeline.Event
	summary map[int64]pipeline.Summary
}

// NewHub keeps up to limit events per owner. limit <= 0 uses DefaultHistory.
func NewHub(limit int) *Hub {
	if limit <= 0 {
		limit = DefaultHistory
	}
	return &Hub{
		limit:   limit,
		events:  make(map[int64][]pipeline.Event),
		summary: make(map[int64]pipeline.Summary),
	}
}

func (h *Hub) Event(e pipeline.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	buf := h.events[e.OwnerID]
	// A new run replaces the previous run's events.
	if len(buf) > 0 && buf[len(buf)-1].RunID != e.RunID {
		buf = buf[:0]
	}
	buf = append(buf, e)
	if over := len(buf) - h.limit; over > 0 {
		buf = append(buf[:0], buf[over:]...)
	}
	h.events[e.OwnerID] = buf
}

func (h *Hub) Finished(s pipeline.Summary) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.summary[s.OwnerID] = s
}

// Recent returns up to n of the owner's latest events, oldest first.
// n <= 0 returns everything retained.
func (h *Hub) Recent(ownerID int64, n int) []pipeline.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	buf := h.events[ownerID]
	if n > 0 && len(buf) > n {
		buf = buf[len(buf)-n:]
	}
	return append([]pipeline.Event(nil), buf...)
}

// LastSummary returns the owner's most recent run summary.
func (h *Hub) LastSummary(ownerID int64) (pipeline.Summary, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.summary[ownerID]
	return s, ok
}
