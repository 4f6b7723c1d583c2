// Package cache implements the multi-tier cache layer used across the
// kedai platform: a capacity-bounded in-process store, a durable Redis
// tier, and a selector that routes between them so callers never see a
// backend outage. Caching is strictly best-effort — internal failures
// degrade reads to misses and writes to no-ops rather than propagating.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist in the cache.
var ErrNotFound = errors.New("cache: key not found")

// ErrValueTooLarge is returned by the codec when an encoded value exceeds
// the configured maximum size. The facade refuses the write and logs it.
var ErrValueTooLarge = errors.New("cache: value exceeds maximum size")

// Backend abstracts a key-value cache tier with TTL support.
// All operations are safe for concurrent use.
type Backend interface {
	// Get retrieves the value associated with key.
	// Returns ErrNotFound if the key does not exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. A zero TTL means the entry
	// uses the implementation's default expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key, reporting whether it was present.
	Delete(ctx context.Context, key string) (bool, error)

	// Exists reports whether the key exists and has not expired.
	Exists(ctx context.Context, key string) (bool, error)

	// Keys returns the keys matching a glob pattern. Backends without an
	// indexed scan return nil.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// FlushAll removes every entry held by the backend.
	FlushAll(ctx context.Context) error

	// Ping verifies connectivity to the underlying backend.
	Ping(ctx context.Context) error

	// Close releases all resources held by the backend.
	Close() error
}
