package events

import (
	"sync"

	"github.com/beekhof/astrocal/internal/calendar"
)

// Store holds the event labels of exactly one period. Replacing the
// contents for a new period drops everything that belonged to the old one.
type Store struct {
	mu     sync.RWMutex
	period calendar.Period
	valid  bool
	labels map[calendar.DateKey]string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{labels: make(map[calendar.DateKey]string)}
}

// Replace swaps in the labels fetched for period.
func (s *Store) Replace(period calendar.Period, labels map[calendar.DateKey]string) {
	next := make(map[calendar.DateKey]string, len(labels))
	for k, v := range labels {
		next[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.period = period
	s.valid = true
	s.labels = next
}

// Clear empties the store.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.valid = false
	s.labels = make(map[calendar.DateKey]string)
}

// Lookup implements calendar.Lookup.
func (s *Store) Lookup(key calendar.DateKey) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	label, ok := s.labels[key]
	return label, ok
}

// Period returns the period the store currently holds, and false when
// nothing has been stored yet.
func (s *Store) Period() (calendar.Period, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.period, s.valid
}

// Holds reports whether the store contents belong to period.
func (s *Store) Holds(period calendar.Period) bool {
	p, ok := s.Period()
	return ok && p == period
}

// Len returns the number of stored labels.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.labels)
}
