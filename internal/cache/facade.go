package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kedaihq/kedai/internal/config"
	"github.com/kedaihq/kedai/internal/logging"
	"github.com/kedaihq/kedai/internal/metrics"
	"github.com/kedaihq/kedai/internal/observability"
)

// Options selects the namespace, TTL policy and tags for one operation.
// TTL precedence: explicit TTL > named strategy's TTL > the global default.
type Options struct {
	Namespace string
	Strategy  string
	TTL       time.Duration
	Tags      []string
}

// Cache is the facade every caller goes through. Failures internal to the
// cache (serialization, backend errors) degrade the operation to a miss or
// a dropped write; they are never surfaced to callers. The only errors
// that propagate are producer failures inside GetOrSet.
type Cache struct {
	sel        *Selector
	strategies *StrategyTable
	prefix     string
	defaultTTL time.Duration
	maxValue   int
	disabled   atomic.Bool
	startTime  time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

// New builds the facade over a selector and strategy table.
func New(sel *Selector, strategies *StrategyTable, cfg config.CacheConfig) *Cache {
	defaultTTL := cfg.DefaultTTL
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	c := &Cache{
		sel:        sel,
		strategies: strategies,
		prefix:     cfg.KeyPrefix,
		defaultTTL: defaultTTL,
		maxValue:   cfg.MaxValueBytes,
		startTime:  time.Now(),
	}
	c.disabled.Store(cfg.EmergencyDisable)
	return c
}

// Selector exposes the backend selector for health checks and warmup.
func (c *Cache) Selector() *Selector { return c.sel }

// Strategies exposes the strategy table for runtime registration.
func (c *Cache) Strategies() *StrategyTable { return c.strategies }

// SetDisabled toggles the emergency-disable flag: every read becomes a
// miss and every write a no-op until re-enabled.
func (c *Cache) SetDisabled(disabled bool) { c.disabled.Store(disabled) }

// Disabled reports the emergency-disable flag.
func (c *Cache) Disabled() bool { return c.disabled.Load() }

// RenderKey returns the stored key string for a namespace and raw key.
func (c *Cache) RenderKey(namespace, rawKey string) string {
	return renderKey(c.prefix, namespace, rawKey)
}

// Get decodes the cached value for key into dest and reports whether it
// was found. Decode failures count as misses.
func (c *Cache) Get(ctx context.Context, key string, dest any, opts Options) bool {
	if c.disabled.Load() {
		return false
	}
	full := c.RenderKey(opts.Namespace, key)

	start := time.Now()
	data, err := c.sel.Get(ctx, full)
	// Read the tier after the call: a mid-call degradation means the
	// bounded store answered, and the metrics label must say so.
	backend := c.sel.servedBy()
	metrics.ObserveOperation("get", backend, time.Since(start))

	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logging.Op().Warn("cache get failed, treating as miss", "key", full, "error", err)
		}
		c.misses.Add(1)
		metrics.RecordMiss(backend)
		return false
	}
	if err := decodeValue(data, dest); err != nil {
		logging.Op().Warn("cache decode failed, treating as miss", "key", full, "error", err)
		c.misses.Add(1)
		metrics.RecordMiss(backend)
		return false
	}
	c.hits.Add(1)
	metrics.RecordHit(backend)
	return true
}

// Set stores a value under key and reports whether it was written.
// Oversized and unserializable values are refused with a logged warning.
func (c *Cache) Set(ctx context.Context, key string, value any, opts Options) bool {
	if c.disabled.Load() {
		return false
	}
	full := c.RenderKey(opts.Namespace, key)

	data, err := encodeValue(value, c.maxValue)
	if err != nil {
		logging.Op().Warn("cache set refused", "key", full, "error", err)
		return false
	}

	ttl := c.strategies.resolveTTL(opts.TTL, opts.Strategy, c.defaultTTL)

	start := time.Now()
	err = c.sel.Set(ctx, full, data, ttl)
	metrics.ObserveOperation("set", c.sel.servedBy(), time.Since(start))
	if err != nil {
		logging.Op().Warn("cache set failed", "key", full, "error", err)
		return false
	}

	if len(opts.Tags) > 0 {
		c.indexTags(ctx, full, opts.Tags)
	}
	return true
}

// Delete removes a key, reporting whether it was present. Deleting an
// absent key is not an error.
func (c *Cache) Delete(ctx context.Context, key string, opts Options) bool {
	if c.disabled.Load() {
		return false
	}
	full := c.RenderKey(opts.Namespace, key)
	ok, err := c.sel.Delete(ctx, full)
	if err != nil {
		logging.Op().Warn("cache delete failed", "key", full, "error", err)
		return false
	}
	return ok
}

// Exists reports whether key is present and unexpired.
func (c *Cache) Exists(ctx context.Context, key string, opts Options) bool {
	if c.disabled.Load() {
		return false
	}
	full := c.RenderKey(opts.Namespace, key)
	ok, err := c.sel.Exists(ctx, full)
	if err != nil {
		logging.Op().Warn("cache exists failed", "key", full, "error", err)
		return false
	}
	return ok
}

// Clear removes every entry from the active tier and the bounded store.
func (c *Cache) Clear(ctx context.Context) {
	if err := c.sel.FlushAll(ctx); err != nil {
		logging.Op().Warn("cache clear failed", "error", err)
	}
}

// GetOrSet returns the cached value for key, invoking producer and caching
// its result on a miss. Producer errors propagate to the caller; a failed
// write of the produced value does not.
//
// Concurrent misses on the same key may each invoke producer and each
// write, last write wins. There is no single-flight guarantee; callers
// needing to bound duplicate recomputation use TryLocked.
func GetOrSet[T any](ctx context.Context, c *Cache, key string, producer func(context.Context) (T, error), opts Options) (T, error) {
	var value T
	if c.Get(ctx, key, &value, opts) {
		return value, nil
	}

	ctx, span := observability.Tracer().Start(ctx, "cache.produce",
		trace.WithAttributes(attribute.String("cache.key", key)))
	value, err := producer(ctx)
	span.End()
	if err != nil {
		var zero T
		return zero, err
	}

	c.Set(ctx, key, value, opts)
	return value, nil
}

// HitCounts returns the facade-level hit and miss counters.
func (c *Cache) HitCounts() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Uptime reports time since the facade was constructed.
func (c *Cache) Uptime() time.Duration {
	return time.Since(c.startTime)
}
