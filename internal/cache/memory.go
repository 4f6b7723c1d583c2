package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kedaihq/kedai/internal/metrics"
)

// sweepInterval is how often the janitor reclaims expired entries. Expiry
// is enforced lazily on read, so the sweep is a memory optimization only.
const sweepInterval = 5 * time.Minute

// BoundedStore is the capacity-limited in-process cache tier. When full it
// evicts the oldest-inserted entry — insertion order, not LRU, so a hot
// entry inserted early is still evicted first. Expired entries are deleted
// on read; a periodic sweep reclaims the rest.
type BoundedStore struct {
	mu       sync.Mutex
	entries  map[string]*storeEntry
	order    []string // insertion order; may contain stale keys, skipped on evict
	capacity int
	bytes    int64 // sum of stored value sizes
	closed   bool
	stop     chan struct{}

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	// now is swappable so tests can drive expiry without sleeping.
	now func() time.Time
}

type storeEntry struct {
	value    []byte
	storedAt time.Time
	ttl      time.Duration
	hitCount int64
}

func (e *storeEntry) expiredAt(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.storedAt) > e.ttl
}

// NewBoundedStore creates a bounded store with the given capacity.
// Capacity <= 0 defaults to 1000.
func NewBoundedStore(capacity int) *BoundedStore {
	if capacity <= 0 {
		capacity = 1000
	}
	s := &BoundedStore{
		entries:  make(map[string]*storeEntry),
		capacity: capacity,
		stop:     make(chan struct{}),
		now:      time.Now,
	}
	go s.sweepLoop()
	return s
}

func (s *BoundedStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		s.misses.Add(1)
		return nil, ErrNotFound
	}
	if e.expiredAt(s.now()) {
		s.removeLocked(key, e)
		s.misses.Add(1)
		return nil, ErrNotFound
	}
	e.hitCount++
	s.hits.Add(1)

	// Return a copy to prevent mutation
	cp := make([]byte, len(e.value))
	copy(cp, e.value)
	return cp, nil
}

func (s *BoundedStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	if prev, ok := s.entries[key]; ok {
		s.bytes -= int64(len(prev.value))
	} else {
		if len(s.entries) >= s.capacity {
			s.evictOldestLocked()
		}
		s.order = append(s.order, key)
	}

	cp := make([]byte, len(value))
	copy(cp, value)
	s.entries[key] = &storeEntry{value: cp, storedAt: s.now(), ttl: ttl}
	s.bytes += int64(len(cp))
	metrics.SetStoredKeys(len(s.entries))
	return nil
}

// removeLocked deletes an entry and maintains the byte count and the
// stored-keys gauge. Must hold mu.
func (s *BoundedStore) removeLocked(key string, e *storeEntry) {
	delete(s.entries, key)
	s.bytes -= int64(len(e.value))
	metrics.SetStoredKeys(len(s.entries))
}

// evictOldestLocked removes the oldest-inserted live entry. Stale order
// slots for already-deleted keys are skipped and discarded.
func (s *BoundedStore) evictOldestLocked() {
	for len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		if e, ok := s.entries[oldest]; ok {
			s.removeLocked(oldest, e)
			s.evictions.Add(1)
			metrics.RecordEviction()
			return
		}
	}
}

func (s *BoundedStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if ok {
		s.removeLocked(key, e)
	}
	return ok, nil
}

func (s *BoundedStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return ok && !e.expiredAt(s.now()), nil
}

// Keys returns nil: the bounded store has no indexed scan, so pattern
// operations against it are a documented no-op.
func (s *BoundedStore) Keys(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

func (s *BoundedStore) FlushAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*storeEntry)
	s.order = nil
	s.bytes = 0
	metrics.SetStoredKeys(0)
	return nil
}

func (s *BoundedStore) Ping(_ context.Context) error { return nil }

func (s *BoundedStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.stop)
	s.entries = make(map[string]*storeEntry)
	s.order = nil
	s.bytes = 0
	return nil
}

// Len returns the number of entries currently held, including entries that
// have expired but not yet been swept.
func (s *BoundedStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Capacity returns the maximum number of entries.
func (s *BoundedStore) Capacity() int { return s.capacity }

// SizeBytes returns the total size of stored values. Entry and key
// overhead are not counted; this is the value payload only.
func (s *BoundedStore) SizeBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

// Counters returns the cumulative hit, miss and eviction counts.
func (s *BoundedStore) Counters() (hits, misses, evictions int64) {
	return s.hits.Load(), s.misses.Load(), s.evictions.Load()
}

func (s *BoundedStore) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep removes expired entries and compacts stale order slots.
func (s *BoundedStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	now := s.now()
	for key, e := range s.entries {
		if e.expiredAt(now) {
			delete(s.entries, key)
			s.bytes -= int64(len(e.value))
		}
	}
	live := s.order[:0]
	for _, key := range s.order {
		if _, ok := s.entries[key]; ok {
			live = append(live, key)
		}
	}
	s.order = live
	metrics.SetStoredKeys(len(s.entries))
}
