package cache

import (
	"context"

	"github.com/kedaihq/kedai/internal/logging"
)

// CachedFunc is the shape of an operation the wrappers apply to. The
// wrappers take and return plain callables; nothing is reflected over.
type CachedFunc[T any] func(ctx context.Context, args ...any) (T, error)

// WrapOptions configures WithCache.
type WrapOptions struct {
	Options

	// Condition, when set, decides per call whether caching applies.
	// A false result bypasses the cache entirely for that call.
	Condition func(args ...any) bool
}

// WithCache wraps fn so results are served from the cache keyed by the
// operation name and a stable serialization of the arguments. Failed calls
// are never cached.
func WithCache[T any](c *Cache, operation string, fn CachedFunc[T], opts WrapOptions) CachedFunc[T] {
	return func(ctx context.Context, args ...any) (T, error) {
		if opts.Condition != nil && !opts.Condition(args...) {
			return fn(ctx, args...)
		}

		key := SerializeCall(operation, args...)
		var value T
		if c.Get(ctx, key, &value, opts.Options) {
			return value, nil
		}

		value, err := fn(ctx, args...)
		if err != nil {
			var zero T
			return zero, err
		}
		c.Set(ctx, key, value, opts.Options)
		return value, nil
	}
}

// InvalidationSpec names what WithInvalidation removes after a successful
// call.
type InvalidationSpec struct {
	Namespace string
	Keys      []string
	Patterns  []string
	Tags      []string
}

// WithInvalidation wraps fn so the named keys, patterns and tags are
// invalidated after it succeeds — never before, so a failed write cannot
// spuriously clear the cache. Invalidation failures are logged, not
// returned; the wrapped call's own result always wins.
func WithInvalidation[T any](c *Cache, fn CachedFunc[T], spec InvalidationSpec) CachedFunc[T] {
	return func(ctx context.Context, args ...any) (T, error) {
		value, err := fn(ctx, args...)
		if err != nil {
			return value, err
		}

		for _, key := range spec.Keys {
			c.Delete(ctx, key, Options{Namespace: spec.Namespace})
		}
		for _, pattern := range spec.Patterns {
			if _, err := c.ClearByPattern(ctx, pattern); err != nil {
				logging.Op().Warn("post-call pattern invalidation failed", "pattern", pattern, "error", err)
			}
		}
		if len(spec.Tags) > 0 {
			if _, err := c.InvalidateByTags(ctx, spec.Tags); err != nil {
				logging.Op().Warn("post-call tag invalidation failed", "tags", spec.Tags, "error", err)
			}
		}
		return value, nil
	}
}
