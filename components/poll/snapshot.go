package poll

import (
	"maps"
	"time"
)

// Snapshot is the complete result set of a single successful fetch.
//
// Remarks:
//   - Immutable, a new snapshot replaces the previous one as a whole.
//   - Safe to be read by multiple goroutines.
type Snapshot[K comparable, V any] struct {
	data      map[K]V
	fetchedAt time.Time
}

// NewSnapshot returns a snapshot over a copy of data.
func NewSnapshot[K comparable, V any](data map[K]V, fetchedAt time.Time) *Snapshot[K, V] {
	cloned := maps.Clone(data)
	if cloned == nil {
		cloned = make(map[K]V)
	}

	return &Snapshot[K, V]{
		data:      cloned,
		fetchedAt: fetchedAt,
	}
}

// Get returns the value stored for the key.
func (s *Snapshot[K, V]) Get(key K) (V, bool) {
	v, ok := s.data[key]
	return v, ok
}

// Len returns the number of entries.
func (s *Snapshot[K, V]) Len() int {
	return len(s.data)
}

// Keys returns all keys in no particular order.
func (s *Snapshot[K, V]) Keys() []K {
	keys := make([]K, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}

	return keys
}

// Range calls fn for each entry until fn returns false.
func (s *Snapshot[K, V]) Range(fn func(key K, value V) bool) {
	for k, v := range s.data {
		if !fn(k, v) {
			return
		}
	}
}

// Map returns a copy of the snapshot data.
func (s *Snapshot[K, V]) Map() map[K]V {
	return maps.Clone(s.data)
}

// FetchedAt returns when the data was received.
func (s *Snapshot[K, V]) FetchedAt() time.Time {
	return s.fetchedAt
}
