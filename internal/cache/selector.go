package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kedaihq/kedai/internal/logging"
	"github.com/kedaihq/kedai/internal/metrics"
)

// SelectorState tracks durable-backend availability.
type SelectorState int32

const (
	StateUnknown SelectorState = iota
	StateProbing
	StateAvailable
	StateUnavailable
)

func (s SelectorState) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateProbing:
		return "probing"
	case StateAvailable:
		return "available"
	case StateUnavailable:
		return "unavailable"
	default:
		return "invalid"
	}
}

// selectorProbeInterval is the minimum time between recovery probes of an
// unavailable durable backend. Probes are throttled so per-call traffic
// never turns into a retry storm; the Redis client's own backoff handles
// the actual reconnection attempts.
const selectorProbeInterval = 5 * time.Second

// Selector routes cache operations to the durable backend when it is
// available and to the bounded store otherwise. A durable-backend error
// mid-operation flips the state to unavailable and retries the same
// operation against the bounded store before returning, so a backend
// outage is never visible to the caller.
type Selector struct {
	durable Backend // nil when no durable backend is configured
	local   *BoundedStore

	state     atomic.Int32
	probeMu   sync.Mutex
	lastProbe atomic.Value // time.Time
}

// NewSelector builds a selector over the durable backend and bounded
// store. A nil durable backend means the selector is permanently in
// bounded-store mode — a valid configuration, not an error. Otherwise the
// backend is probed once, synchronously, with the given context.
func NewSelector(ctx context.Context, durable Backend, local *BoundedStore) *Selector {
	s := &Selector{durable: durable, local: local}
	s.lastProbe.Store(time.Time{})

	if durable == nil {
		s.setState(StateUnavailable)
		return s
	}

	s.setState(StateProbing)
	if err := durable.Ping(ctx); err != nil {
		logging.Op().Warn("durable cache backend unreachable, using bounded store", "error", err)
		s.setState(StateUnavailable)
	} else {
		s.setState(StateAvailable)
	}
	return s
}

// State returns the current selector state.
func (s *Selector) State() SelectorState {
	return SelectorState(s.state.Load())
}

// FallbackActive reports whether operations route to the bounded store.
func (s *Selector) FallbackActive() bool {
	return s.State() != StateAvailable
}

// Durable returns the durable backend, nil when not configured.
func (s *Selector) Durable() Backend { return s.durable }

// Local returns the bounded store tier.
func (s *Selector) Local() *BoundedStore { return s.local }

func (s *Selector) setState(st SelectorState) {
	s.state.Store(int32(st))
	metrics.SetFallbackActive(st != StateAvailable)
}

// useDurable reports whether the durable backend should serve the next
// operation, kicking off a throttled recovery probe when it is down.
func (s *Selector) useDurable(ctx context.Context) bool {
	switch s.State() {
	case StateAvailable:
		return true
	case StateUnavailable:
		if s.durable != nil {
			if last, ok := s.lastProbe.Load().(time.Time); ok && time.Since(last) > selectorProbeInterval {
				go s.probe(ctx)
			}
		}
		return false
	default:
		return false
	}
}

// probe checks whether the durable backend has recovered.
func (s *Selector) probe(ctx context.Context) {
	if !s.probeMu.TryLock() {
		return // another goroutine is already probing
	}
	defer s.probeMu.Unlock()

	s.lastProbe.Store(time.Now())

	probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.durable.Ping(probeCtx); err == nil {
		logging.Op().Info("durable cache backend recovered, resuming")
		s.setState(StateAvailable)
	}
}

// degrade flips the selector into bounded-store mode after a durable error.
func (s *Selector) degrade(op string, err error) {
	logging.Op().Warn("durable cache backend error, degrading to bounded store",
		"operation", op, "error", err)
	s.setState(StateUnavailable)
	s.lastProbe.Store(time.Now())
}

// servedBy labels the tier answering the next operation, for metrics.
func (s *Selector) servedBy() string {
	if s.State() == StateAvailable {
		return "redis"
	}
	return "memory"
}

func (s *Selector) Get(ctx context.Context, key string) ([]byte, error) {
	if s.useDurable(ctx) {
		val, err := s.durable.Get(ctx, key)
		if err == nil || err == ErrNotFound {
			return val, err
		}
		s.degrade("get", err)
	}
	return s.local.Get(ctx, key)
}

func (s *Selector) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.useDurable(ctx) {
		if err := s.durable.Set(ctx, key, value, ttl); err != nil {
			s.degrade("set", err)
			return s.local.Set(ctx, key, value, ttl)
		}
		return nil
	}
	return s.local.Set(ctx, key, value, ttl)
}

func (s *Selector) Delete(ctx context.Context, key string) (bool, error) {
	if s.useDurable(ctx) {
		ok, err := s.durable.Delete(ctx, key)
		if err == nil {
			// Remove any bounded-store copy written during a past outage.
			_, _ = s.local.Delete(ctx, key)
			return ok, nil
		}
		s.degrade("delete", err)
	}
	return s.local.Delete(ctx, key)
}

func (s *Selector) Exists(ctx context.Context, key string) (bool, error) {
	if s.useDurable(ctx) {
		ok, err := s.durable.Exists(ctx, key)
		if err == nil {
			return ok, nil
		}
		s.degrade("exists", err)
	}
	return s.local.Exists(ctx, key)
}

func (s *Selector) Keys(ctx context.Context, pattern string) ([]string, error) {
	if s.useDurable(ctx) {
		keys, err := s.durable.Keys(ctx, pattern)
		if err == nil {
			return keys, nil
		}
		s.degrade("keys", err)
	}
	return s.local.Keys(ctx, pattern)
}

func (s *Selector) FlushAll(ctx context.Context) error {
	if s.useDurable(ctx) {
		if err := s.durable.FlushAll(ctx); err != nil {
			s.degrade("flushall", err)
		}
	}
	return s.local.FlushAll(ctx)
}

// Ping reports durable-backend connectivity, or bounded-store liveness
// when no durable backend is configured.
func (s *Selector) Ping(ctx context.Context) error {
	if s.durable != nil {
		return s.durable.Ping(ctx)
	}
	return s.local.Ping(ctx)
}

// Close tears down both tiers.
func (s *Selector) Close() error {
	if s.durable != nil {
		if err := s.durable.Close(); err != nil {
			logging.Op().Warn("closing durable cache backend", "error", err)
		}
	}
	return s.local.Close()
}
