package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kedaihq/kedai/internal/logging"
)

// ErrLockNotHeld is returned by Release when the lock expired or was taken
// by another holder.
var ErrLockNotHeld = errors.New("cache: lock not held")

// releaseScript deletes the lock key only when the caller still holds it.
// KEYS[1] = lock key, ARGV[1] = holder token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// Lock is a best-effort distributed lock over the durable backend, used to
// reduce (not eliminate) duplicate recomputation of expensive cached
// resources. Acquisition failure degrades to unlocked cache-aside access.
type Lock struct {
	client *redis.Client
	prefix string
}

// NewLock builds a lock helper over the durable backend's client.
func NewLock(backend *RedisBackend, prefix string) *Lock {
	return &Lock{client: backend.Client(), prefix: prefix}
}

func (l *Lock) key(name string) string {
	return l.prefix + ":lock:" + name
}

// Acquire attempts to take the named lock for ttl, returning the holder
// token on success. ok is false when the lock is held elsewhere or the
// backend errored; callers proceed unlocked in both cases.
func (l *Lock) Acquire(ctx context.Context, name string, ttl time.Duration) (token string, ok bool) {
	token = uuid.NewString()
	set, err := l.client.SetNX(ctx, l.key(name), token, ttl).Result()
	if err != nil {
		logging.Op().Warn("lock acquire failed, proceeding unlocked", "lock", name, "error", err)
		return "", false
	}
	return token, set
}

// Release frees the named lock if the token still holds it.
func (l *Lock) Release(ctx context.Context, name, token string) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key(name)}, token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// TryLocked runs fn while holding the named lock when it can be acquired,
// and unlocked otherwise. The boolean reports whether the lock was held.
func (l *Lock) TryLocked(ctx context.Context, name string, ttl time.Duration, fn func(ctx context.Context) error) (bool, error) {
	token, ok := l.Acquire(ctx, name, ttl)
	if !ok {
		return false, fn(ctx)
	}
	defer func() {
		if err := l.Release(ctx, name, token); err != nil && !errors.Is(err, ErrLockNotHeld) {
			logging.Op().Warn("lock release failed", "lock", name, "error", err)
		}
	}()
	return true, fn(ctx)
}
