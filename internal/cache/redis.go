package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kedaihq/kedai/internal/config"
)

// RedisBackend is the durable cache tier. It is only constructed when
// connection parameters are configured; connection failures surface as
// errors that the Selector converts into bounded-store fallback.
type RedisBackend struct {
	client     *redis.Client
	defaultTTL time.Duration
}

// NewRedisBackend creates the durable backend from configuration without
// attempting a connection; the Selector probes it.
func NewRedisBackend(cfg config.RedisConfig, defaultTTL time.Duration) (*RedisBackend, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	if cfg.ConnectTimeout > 0 {
		opts.DialTimeout = cfg.ConnectTimeout
	}
	if cfg.CommandTimeout > 0 {
		opts.ReadTimeout = cfg.CommandTimeout
		opts.WriteTimeout = cfg.CommandTimeout
	}
	return &RedisBackend{
		client:     redis.NewClient(opts),
		defaultTTL: defaultTTL,
	}, nil
}

// NewRedisBackendFromClient wraps an existing client; tests use this.
func NewRedisBackendFromClient(client *redis.Client, defaultTTL time.Duration) *RedisBackend {
	return &RedisBackend{client: client, defaultTTL: defaultTTL}
}

// Client returns the underlying Redis client for direct access (tag index,
// distributed lock, rate-limit scripts).
func (b *RedisBackend) Client() *redis.Client {
	return b.client
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := b.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = b.defaultTTL
	}
	return b.client.Set(ctx, key, value, ttl).Err()
}

func (b *RedisBackend) Delete(ctx context.Context, key string) (bool, error) {
	n, err := b.client.Del(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *RedisBackend) Exists(ctx context.Context, key string) (bool, error) {
	n, err := b.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Keys scans for keys matching a glob pattern. SCAN is used instead of
// KEYS so a large pattern never blocks the server.
func (b *RedisBackend) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := b.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

func (b *RedisBackend) FlushAll(ctx context.Context) error {
	return b.client.FlushDB(ctx).Err()
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}

// Info returns a section of the server's introspection text, parsed by the
// health reporter for memory pressure.
func (b *RedisBackend) Info(ctx context.Context, section string) (string, error) {
	return b.client.Info(ctx, section).Result()
}

// CountKeys counts keys matching a glob pattern via SCAN.
func (b *RedisBackend) CountKeys(ctx context.Context, pattern string) (int, error) {
	var count int
	var cursor uint64
	for {
		batch, next, err := b.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return 0, err
		}
		count += len(batch)
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}

// AddToTagSet appends a member to a tag set and refreshes the set's TTL.
func (b *RedisBackend) AddToTagSet(ctx context.Context, tagKey, member string, ttl time.Duration) error {
	pipe := b.client.Pipeline()
	pipe.SAdd(ctx, tagKey, member)
	pipe.Expire(ctx, tagKey, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// TagSetMembers returns every key recorded under a tag.
func (b *RedisBackend) TagSetMembers(ctx context.Context, tagKey string) ([]string, error) {
	return b.client.SMembers(ctx, tagKey).Result()
}

// DeleteBatch removes keys in one round trip and returns the number removed.
func (b *RedisBackend) DeleteBatch(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := b.client.Del(ctx, keys...).Result()
	return int(n), err
}

// BatchItem is one key/value pair for a pipelined bulk write.
type BatchItem struct {
	Key   string
	Value []byte
	TTL   time.Duration
}

// SetBatch writes items in a single pipeline round trip. The warmer uses
// this to populate batches without N round trips.
func (b *RedisBackend) SetBatch(ctx context.Context, items []BatchItem) error {
	if len(items) == 0 {
		return nil
	}
	pipe := b.client.Pipeline()
	for _, it := range items {
		ttl := it.TTL
		if ttl <= 0 {
			ttl = b.defaultTTL
		}
		pipe.SetEx(ctx, it.Key, it.Value, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}
