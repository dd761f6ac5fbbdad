// Package store holds the named arrays received by the listener.
//
// The dispatch loop is the only writer; the inspection server, the
// event publishers and any embedding application read concurrently.
// All access goes through a mutex, and readers get values that are
// never mutated afterwards.
package store

import (
	"sort"
	"sync"

	"arrayd/internal/frame"
)

// Observer is called after every Set, outside the store lock.  It
// runs on the writer's goroutine and must not block.
type Observer func(name string, arr frame.Array)

// Store maps array names to their most recent value.
type Store struct {
	mu        sync.RWMutex
	arrays    map[string]frame.Array
	observers []Observer
}

// New returns an empty store.
func New() *Store {
	return &Store{arrays: make(map[string]frame.Array)}
}

// Set stores arr under name, replacing any previous value.
func (s *Store) Set(name string, arr frame.Array) {
	s.mu.Lock()
	s.arrays[name] = arr
	observers := s.observers
	s.mu.Unlock()

	for _, fn := range observers {
		fn(name, arr)
	}
}

// Get returns the array stored under name.
func (s *Store) Get(name string) (frame.Array, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr, ok := s.arrays[name]
	return arr, ok
}

// Names returns the stored names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.arrays))
	for name := range s.arrays {
		names = append(names, name)
	}
	s.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Len returns the number of stored arrays.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.arrays)
}

// Snapshot returns a copy of the name → array mapping.
func (s *Store) Snapshot() map[string]frame.Array {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]frame.Array, len(s.arrays))
	for k, v := range s.arrays {
		out[k] = v
	}
	return out
}

// Observe registers fn to be called after every Set.
func (s *Store) Observe(fn Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Copy so Set can iterate a slice it read under the lock.
	s.observers = append(append([]Observer(nil), s.observers...), fn)
}
