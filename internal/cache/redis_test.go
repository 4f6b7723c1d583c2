package cache

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestRedisBackend creates a backend against a local Redis instance.
// Tests that require a running Redis are skipped automatically.
func newTestRedisBackend(t *testing.T) *RedisBackend {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use a separate DB for tests
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available, skipping: %v", err)
	}
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return NewRedisBackendFromClient(client, time.Hour)
}

func TestRedisBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := newTestRedisBackend(t)

	if err := b.Set(ctx, "kedai:test:k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := b.Get(ctx, "kedai:test:k")
	if err != nil || !bytes.Equal(got, []byte("v")) {
		t.Fatalf("Get = %q, %v", got, err)
	}

	if _, err := b.Get(ctx, "kedai:test:absent"); err != ErrNotFound {
		t.Fatalf("Get absent = %v, want ErrNotFound", err)
	}

	ok, err := b.Delete(ctx, "kedai:test:k")
	if err != nil || !ok {
		t.Fatalf("Delete = %v, %v", ok, err)
	}
	ok, err = b.Delete(ctx, "kedai:test:k")
	if err != nil || ok {
		t.Fatalf("Delete absent = %v, %v", ok, err)
	}
}

func TestRedisBackendKeysAndCount(t *testing.T) {
	ctx := context.Background()
	b := newTestRedisBackend(t)

	for _, k := range []string{"kedai:products:1", "kedai:products:2", "kedai:sessions:1"} {
		b.Set(ctx, k, []byte("x"), time.Minute)
	}

	keys, err := b.Keys(ctx, "kedai:products:*")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("Keys = %v, want 2 matches", keys)
	}

	n, err := b.CountKeys(ctx, "kedai:*")
	if err != nil || n != 3 {
		t.Fatalf("CountKeys = %d, %v", n, err)
	}
}

func TestRedisBackendTagSets(t *testing.T) {
	ctx := context.Background()
	b := newTestRedisBackend(t)

	b.Set(ctx, "kedai:products:p1", []byte("1"), time.Minute)
	b.Set(ctx, "kedai:products:p2", []byte("2"), time.Minute)
	b.AddToTagSet(ctx, "kedai:tag:products", "kedai:products:p1", time.Minute)
	b.AddToTagSet(ctx, "kedai:tag:products", "kedai:products:p2", time.Minute)

	members, err := b.TagSetMembers(ctx, "kedai:tag:products")
	if err != nil || len(members) != 2 {
		t.Fatalf("TagSetMembers = %v, %v", members, err)
	}

	n, err := b.DeleteBatch(ctx, members)
	if err != nil || n != 2 {
		t.Fatalf("DeleteBatch = %d, %v", n, err)
	}
}

func TestRedisBackendSetBatch(t *testing.T) {
	ctx := context.Background()
	b := newTestRedisBackend(t)

	err := b.SetBatch(ctx, []BatchItem{
		{Key: "kedai:batch:1", Value: []byte("a"), TTL: time.Minute},
		{Key: "kedai:batch:2", Value: []byte("b")}, // default TTL
	})
	if err != nil {
		t.Fatalf("SetBatch: %v", err)
	}
	for _, k := range []string{"kedai:batch:1", "kedai:batch:2"} {
		if ok, _ := b.Exists(ctx, k); !ok {
			t.Fatalf("batch key %q missing", k)
		}
	}
}

func TestLockMutualExclusion(t *testing.T) {
	b := newTestRedisBackend(t)
	ctx := context.Background()
	lock := NewLock(b, "kedai")

	token, ok := lock.Acquire(ctx, "warmup", time.Minute)
	if !ok {
		t.Fatal("first Acquire failed")
	}
	if _, ok := lock.Acquire(ctx, "warmup", time.Minute); ok {
		t.Fatal("second Acquire succeeded while held")
	}

	if err := lock.Release(ctx, "warmup", token); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := lock.Release(ctx, "warmup", token); err != ErrLockNotHeld {
		t.Fatalf("double Release = %v, want ErrLockNotHeld", err)
	}

	if _, ok := lock.Acquire(ctx, "warmup", time.Minute); !ok {
		t.Fatal("Acquire after release failed")
	}
}

func TestTryLockedRunsEitherWay(t *testing.T) {
	b := newTestRedisBackend(t)
	ctx := context.Background()
	lock := NewLock(b, "kedai")

	ran := false
	held, err := lock.TryLocked(ctx, "job", time.Minute, func(context.Context) error {
		ran = true
		return nil
	})
	if err != nil || !held || !ran {
		t.Fatalf("TryLocked = held=%v ran=%v err=%v", held, ran, err)
	}

	// While another holder owns the lock, fn still runs unlocked.
	token, _ := lock.Acquire(ctx, "contended", time.Minute)
	defer lock.Release(ctx, "contended", token)

	ran = false
	held, err = lock.TryLocked(ctx, "contended", time.Minute, func(context.Context) error {
		ran = true
		return nil
	})
	if err != nil || held || !ran {
		t.Fatalf("contended TryLocked = held=%v ran=%v err=%v", held, ran, err)
	}
}
