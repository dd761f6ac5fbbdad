// Package notify fans out store update events to interested parties:
// websocket clients of the inspection server and, optionally, a Redis
// pub/sub channel.
//
// Publishing never blocks.  A subscriber whose buffer is full misses
// the event; the dispatch loop is never held up by a slow reader.
package notify

import (
	"sync"
	"sync/atomic"
	"time"

	"arrayd/internal/frame"
	"arrayd/internal/store"
)

// EventArrayUpdated is the only event type published today.
const EventArrayUpdated = "array_updated"

// Event describes a change to the store.  It carries the array's
// shape, never its data.
type Event struct {
	Type  string    `json:"type"`
	Name  string    `json:"name"`
	Rows  uint32    `json:"rows"`
	Cols  uint32    `json:"cols"`
	DType string    `json:"dtype"`
	At    time.Time `json:"at"`
}

// ArrayUpdated builds the event for a store write.
func ArrayUpdated(name string, arr frame.Array) Event {
	return Event{
		Type:  EventArrayUpdated,
		Name:  name,
		Rows:  arr.Rows,
		Cols:  arr.Cols,
		DType: arr.DType.String(),
		At:    time.Now().UTC(),
	}
}

// Hub is a non-blocking, in-process broadcaster.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	closed  bool
	dropped atomic.Int64
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscription receives events on C until Close is called.
type Subscription struct {
	C <-chan Event

	ch   chan Event
	hub  *Hub
	once sync.Once
}

// Subscribe registers a subscriber with the given buffer size.
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	s := &Subscription{C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

// Close unregisters the subscription and closes C.  Safe to call more
// than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		if _, ok := s.hub.subs[s]; ok {
			delete(s.hub.subs, s)
			close(s.ch)
		}
	})
}

// Publish delivers e to every subscriber with room for it.
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		select {
		case s.ch <- e:
		default:
			h.dropped.Add(1)
		}
	}
}

// Observer adapts the hub to store.Observe.
func (h *Hub) Observer() store.Observer {
	return func(name string, arr frame.Array) {
		h.Publish(ArrayUpdated(name, arr))
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped on full buffers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close closes every subscription.  Later subscriptions are closed on
// creation.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		close(s.ch)
		delete(h.subs, s)
	}
}
