// Package ratelimit implements fixed-window rate limiting for wrapped
// operations. This is the one place the cache layer intentionally
// surfaces an error to business logic: callers must handle ErrRateLimited.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kedaihq/kedai/internal/metrics"
)

// ErrRateLimited is returned when a caller exhausts its window allowance.
var ErrRateLimited = errors.New("ratelimit: limit exceeded")

// Backend counts calls within fixed windows. Implementations must
// atomically increment and report the count for the current window.
type Backend interface {
	// Take increments the counter for key's current window and reports
	// whether the call is within limit, plus the remaining allowance.
	Take(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, remaining int, err error)
}

// Rule is the allowance for one operation.
type Rule struct {
	MaxCalls int
	Window   time.Duration
}

// Limiter applies per-operation fixed-window rules keyed by operation and
// caller identity.
type Limiter struct {
	backend     Backend
	rules       map[string]Rule
	defaultRule Rule
}

// New creates a limiter. A zero defaultRule means operations without an
// explicit rule are unlimited.
func New(backend Backend, rules map[string]Rule, defaultRule Rule) *Limiter {
	if rules == nil {
		rules = make(map[string]Rule)
	}
	return &Limiter{backend: backend, rules: rules, defaultRule: defaultRule}
}

// windowKey renders the counter key for an operation and caller.
func windowKey(operation, caller string) string {
	return "kedai:rl:" + operation + ":" + caller
}

// Allow checks and consumes one call for the operation and caller.
// It returns ErrRateLimited once the window's allowance is spent.
// Backend errors fail open: limiting is protection, not correctness.
func (l *Limiter) Allow(ctx context.Context, operation, caller string) error {
	rule, ok := l.rules[operation]
	if !ok {
		rule = l.defaultRule
	}
	if rule.MaxCalls <= 0 || rule.Window <= 0 {
		return nil
	}

	allowed, _, err := l.backend.Take(ctx, windowKey(operation, caller), rule.MaxCalls, rule.Window)
	if err != nil {
		return nil
	}
	if !allowed {
		metrics.RecordRateLimited(operation)
		return fmt.Errorf("%w: %s", ErrRateLimited, operation)
	}
	return nil
}

// WithRateLimit wraps fn so calls beyond the operation's allowance fail
// with ErrRateLimited instead of executing. caller extracts the caller
// identity from the arguments; a nil caller groups all calls together.
func WithRateLimit[T any](l *Limiter, operation string, caller func(args ...any) string, fn func(ctx context.Context, args ...any) (T, error)) func(ctx context.Context, args ...any) (T, error) {
	return func(ctx context.Context, args ...any) (T, error) {
		id := "global"
		if caller != nil {
			id = caller(args...)
		}
		if err := l.Allow(ctx, operation, id); err != nil {
			var zero T
			return zero, err
		}
		return fn(ctx, args...)
	}
}
