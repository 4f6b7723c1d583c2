package cache

import (
	"sync"
	"time"
)

// Memoizer is an in-process, TTL-bounded result cache for pure, expensive
// computations. It is deliberately separate from the Cache facade: values
// never touch a backend, and eviction removes the oldest entry when the
// map reaches capacity.
type Memoizer struct {
	mu       sync.Mutex
	entries  map[string]memoEntry
	order    []string
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

type memoEntry struct {
	value    any
	storedAt time.Time
}

// NewMemoizer creates a memoizer. Capacity <= 0 defaults to 100;
// ttl <= 0 defaults to 5 minutes.
func NewMemoizer(capacity int, ttl time.Duration) *Memoizer {
	if capacity <= 0 {
		capacity = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Memoizer{
		entries:  make(map[string]memoEntry),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Do returns the memoized result for key, invoking compute on a miss.
// Only successful results are stored.
func (m *Memoizer) Do(key string, compute func() (any, error)) (any, error) {
	m.mu.Lock()
	if e, ok := m.entries[key]; ok {
		if m.now().Sub(e.storedAt) <= m.ttl {
			m.mu.Unlock()
			return e.value, nil
		}
		delete(m.entries, key)
	}
	m.mu.Unlock()

	value, err := compute()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if _, ok := m.entries[key]; !ok {
		if len(m.entries) >= m.capacity {
			m.evictOldestLocked()
		}
		m.order = append(m.order, key)
	}
	m.entries[key] = memoEntry{value: value, storedAt: m.now()}
	m.mu.Unlock()
	return value, nil
}

// evictOldestLocked removes the oldest live entry. Must hold mu.
func (m *Memoizer) evictOldestLocked() {
	for len(m.order) > 0 {
		oldest := m.order[0]
		m.order = m.order[1:]
		if _, ok := m.entries[oldest]; ok {
			delete(m.entries, oldest)
			return
		}
	}
}

// Len returns the number of memoized entries, expired ones included.
func (m *Memoizer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Memoize wraps a single-argument pure function with a memoizer.
func Memoize[A any, R any](m *Memoizer, name string, fn func(A) (R, error)) func(A) (R, error) {
	return func(arg A) (R, error) {
		v, err := m.Do(SerializeCall(name, arg), func() (any, error) {
			return fn(arg)
		})
		if err != nil {
			var zero R
			return zero, err
		}
		return v.(R), nil
	}
}
