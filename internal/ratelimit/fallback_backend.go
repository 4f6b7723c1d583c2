package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kedaihq/kedai/internal/logging"
)

// FallbackBackend wraps a primary Backend (typically Redis) with a local
// in-memory fixed-window fallback. When the primary errors it degrades to
// local counting and periodically probes the primary to restore
// distributed behaviour once connectivity recovers.
type FallbackBackend struct {
	primary       Backend
	local         *LocalBackend
	degraded      atomic.Bool
	probeMu       sync.Mutex
	lastProbeTime atomic.Value // time.Time — throttles probe frequency
}

// NewFallbackBackend creates a rate-limit backend that falls back to local
// in-memory windows when the primary backend is unavailable.
func NewFallbackBackend(primary Backend) *FallbackBackend {
	fb := &FallbackBackend{
		primary: primary,
		local:   NewLocalBackend(),
	}
	fb.lastProbeTime.Store(time.Time{})
	return fb
}

// probeInterval is the minimum time between health probes of the primary.
const probeInterval = 5 * time.Second

func (f *FallbackBackend) Take(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	if f.degraded.Load() {
		if last, ok := f.lastProbeTime.Load().(time.Time); ok && time.Since(last) > probeInterval {
			go f.probeAndRecover(ctx)
		}
		return f.local.Take(ctx, key, limit, window)
	}

	allowed, remaining, err := f.primary.Take(ctx, key, limit, window)
	if err != nil {
		logging.Op().Warn("rate-limit primary backend error, degrading to local", "error", err)
		f.degraded.Store(true)
		f.lastProbeTime.Store(time.Now())
		return f.local.Take(ctx, key, limit, window)
	}
	return allowed, remaining, nil
}

// probeAndRecover checks whether the primary backend has recovered.
func (f *FallbackBackend) probeAndRecover(ctx context.Context) {
	if !f.probeMu.TryLock() {
		return // another goroutine is already probing
	}
	defer f.probeMu.Unlock()

	f.lastProbeTime.Store(time.Now())

	_, _, err := f.primary.Take(ctx, "kedai:rl:probe:health", 1000, time.Second)
	if err == nil {
		logging.Op().Info("rate-limit primary backend recovered, resuming distributed mode")
		f.degraded.Store(false)
	}
}

// Degraded reports whether the backend is currently in degraded (local) mode.
func (f *FallbackBackend) Degraded() bool {
	return f.degraded.Load()
}

// LocalBackend implements Backend with in-memory fixed windows. It is the
// fallback when the distributed backend is unavailable, and the default
// backend when no Redis is configured.
type LocalBackend struct {
	mu      sync.Mutex
	windows map[string]*localWindow
	now     func() time.Time
}

type localWindow struct {
	count   int
	started time.Time
}

// NewLocalBackend creates a local in-memory fixed-window backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{
		windows: make(map[string]*localWindow),
		now:     time.Now,
	}
}

func (l *LocalBackend) Take(_ context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.started) >= window {
		w = &localWindow{started: now}
		l.windows[key] = w
	}

	w.count++
	remaining := limit - w.count
	if remaining < 0 {
		remaining = 0
	}
	return w.count <= limit, remaining, nil
}
