package cache

import (
	"context"

	"github.com/kedaihq/kedai/internal/circuitbreaker"
	"github.com/kedaihq/kedai/internal/config"
	"github.com/kedaihq/kedai/internal/logging"
)

// System is the explicit root of the cache subsystem: one value built at
// process start and handed to every consumer, instead of hidden
// module-level singletons. Tests construct isolated Systems per test.
type System struct {
	Cache    *Cache
	Store    *BoundedStore
	Monitor  *Monitor
	Breakers *circuitbreaker.Registry
	Lock     *Lock // nil without a durable backend

	selector *Selector
	redis    *RedisBackend // nil without a durable backend
}

// NewSystem wires the bounded store, the durable backend (when
// configured), the selector and the facade from configuration. The
// durable backend is probed once with ctx; an unreachable backend is a
// degraded start, not a failed one.
func NewSystem(ctx context.Context, cfg *config.Config) (*System, error) {
	store := NewBoundedStore(cfg.Cache.MaxKeys)

	var rb *RedisBackend
	if cfg.Redis.Configured() {
		var err error
		rb, err = NewRedisBackend(cfg.Redis, cfg.Cache.DefaultTTL)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
	} else {
		logging.Op().Info("no durable cache backend configured, using bounded store only")
	}

	var sel *Selector
	if rb != nil {
		sel = NewSelector(ctx, rb, store)
	} else {
		sel = NewSelector(ctx, nil, store)
	}

	sys := &System{
		Cache:    New(sel, NewStrategyTable(), cfg.Cache),
		Store:    store,
		Monitor:  NewMonitor(cfg.Monitor.SlowOpThreshold, cfg.Monitor.ThrottleLimit, cfg.Monitor.QueueCapacity),
		Breakers: circuitbreaker.NewRegistry(circuitbreaker.Config(cfg.Breaker)),
		selector: sel,
		redis:    rb,
	}
	if rb != nil {
		sys.Lock = NewLock(rb, cfg.Cache.KeyPrefix)
	}
	return sys, nil
}

// Selector exposes the backend selector.
func (s *System) Selector() *Selector { return s.selector }

// Redis exposes the durable backend, nil when not configured.
func (s *System) Redis() *RedisBackend { return s.redis }

// Destroy clears the bounded store and closes the durable connection.
// Expected to be called during graceful shutdown.
func (s *System) Destroy(ctx context.Context) error {
	if err := s.Store.FlushAll(ctx); err != nil {
		logging.Op().Warn("clearing bounded store on shutdown", "error", err)
	}
	return s.selector.Close()
}
