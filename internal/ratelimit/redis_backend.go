package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Fixed-window Lua script for atomic counting.
// KEYS[1] = window key
// ARGV[1] = limit (max calls per window)
// ARGV[2] = window length in milliseconds
// Returns: {allowed (0/1), remaining}
var fixedWindowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('PEXPIRE', KEYS[1], ARGV[2])
end

local limit = tonumber(ARGV[1])
local allowed = 0
local remaining = limit - count
if count <= limit then
    allowed = 1
end
if remaining < 0 then
    remaining = 0
end

return {allowed, remaining}
`)

// RedisBackend counts windows in Redis so limits hold across instances.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend creates a Redis-backed fixed-window counter.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Take(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	result, err := fixedWindowScript.Run(ctx, b.client, []string{key},
		limit,
		window.Milliseconds(),
	).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit check: %w", err)
	}
	if len(result) != 2 {
		return false, 0, fmt.Errorf("unexpected result length: %d", len(result))
	}

	allowed, _ := result[0].(int64)
	remaining, _ := result[1].(int64)
	return allowed == 1, int(remaining), nil
}
