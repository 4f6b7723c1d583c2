package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kedaihq/kedai/internal/config"
)

type product struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

func testCacheConfig() config.CacheConfig {
	return config.CacheConfig{
		KeyPrefix:     "kedai",
		DefaultTTL:    time.Hour,
		MaxKeys:       100,
		MaxValueBytes: 1 << 20,
	}
}

// newTestCache builds a facade over the bounded store only.
func newTestCache(t *testing.T) (*Cache, *BoundedStore) {
	t.Helper()
	store := newTestStore(t, 100)
	sel := NewSelector(context.Background(), nil, store)
	return New(sel, NewStrategyTable(), testCacheConfig()), store
}

// newTestCacheWithBackend builds a facade over a fake durable backend.
func newTestCacheWithBackend(t *testing.T) (*Cache, *fakeBackend) {
	t.Helper()
	fb := newFakeBackend()
	store := newTestStore(t, 100)
	sel := NewSelector(context.Background(), fb, store)
	return New(sel, NewStrategyTable(), testCacheConfig()), fb
}

func TestCacheSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	want := product{ID: "p1", Name: "Nasi Lemak Bundle", Price: 12.90}
	if !c.Set(ctx, "product:p1", want, Options{Namespace: "products"}) {
		t.Fatal("Set returned false")
	}

	var got product
	if !c.Get(ctx, "product:p1", &got, Options{Namespace: "products"}) {
		t.Fatal("Get missed a just-written key")
	}
	if got != want {
		t.Fatalf("Get = %+v, want %+v", got, want)
	}
}

func TestCacheNamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	c.Set(ctx, "id:1", "in products", Options{Namespace: "products"})
	c.Set(ctx, "id:1", "in sessions", Options{Namespace: "sessions"})

	var v string
	if !c.Get(ctx, "id:1", &v, Options{Namespace: "products"}) || v != "in products" {
		t.Fatalf("products namespace = %q", v)
	}
	if !c.Get(ctx, "id:1", &v, Options{Namespace: "sessions"}) || v != "in sessions" {
		t.Fatalf("sessions namespace = %q", v)
	}
	if c.Get(ctx, "id:1", &v, Options{}) {
		t.Fatal("default namespace sees a key written elsewhere")
	}
}

func TestCacheMissReturnsFalse(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	var v string
	if c.Get(ctx, "absent", &v, Options{}) {
		t.Fatal("Get hit on an absent key")
	}
	hits, misses := c.HitCounts()
	if hits != 0 || misses != 1 {
		t.Fatalf("counters = %d hits, %d misses", hits, misses)
	}
}

func TestCacheDecodeMismatchIsMiss(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	c.Set(ctx, "k", "not a number", Options{})
	var n int
	if c.Get(ctx, "k", &n, Options{}) {
		t.Fatal("Get reported a hit despite a decode failure")
	}
}

func TestCacheOversizedValueRefused(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 100)
	sel := NewSelector(ctx, nil, store)
	cfg := testCacheConfig()
	cfg.MaxValueBytes = 16
	c := New(sel, NewStrategyTable(), cfg)

	if c.Set(ctx, "big", "this value is far too large to store", Options{}) {
		t.Fatal("oversized value was accepted")
	}
	if c.Set(ctx, "small", "ok", Options{}) != true {
		t.Fatal("small value refused")
	}
}

func TestCacheUnserializableValueRefused(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	if c.Set(ctx, "ch", make(chan int), Options{}) {
		t.Fatal("unserializable value was accepted")
	}
}

func TestCacheDeleteReportsPresence(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	c.Set(ctx, "k", "v", Options{})
	if !c.Delete(ctx, "k", Options{}) {
		t.Fatal("Delete existing returned false")
	}
	if c.Delete(ctx, "k", Options{}) {
		t.Fatal("Delete absent returned true")
	}
}

func TestCacheTTLPrecedence(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCache(t)

	base := time.Now()
	store.now = func() time.Time { return base }

	// Explicit TTL wins over the strategy's.
	c.Set(ctx, "k", "v", Options{Strategy: "sessions", TTL: time.Minute})

	store.now = func() time.Time { return base.Add(2 * time.Minute) }
	var v string
	if c.Get(ctx, "k", &v, Options{}) {
		t.Fatal("explicit TTL was not applied")
	}
}

func TestCacheStrategyTTLApplied(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCache(t)

	base := time.Now()
	store.now = func() time.Time { return base }

	c.Set(ctx, "k", "v", Options{Strategy: "api"}) // 5 minutes

	store.now = func() time.Time { return base.Add(4 * time.Minute) }
	var v string
	if !c.Get(ctx, "k", &v, Options{}) {
		t.Fatal("key expired before the strategy TTL")
	}
	store.now = func() time.Time { return base.Add(6 * time.Minute) }
	if c.Get(ctx, "k", &v, Options{}) {
		t.Fatal("key survived past the strategy TTL")
	}
}

func TestCacheEmergencyDisable(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	c.Set(ctx, "k", "v", Options{})
	c.SetDisabled(true)

	var v string
	if c.Get(ctx, "k", &v, Options{}) {
		t.Fatal("Get hit while disabled")
	}
	if c.Set(ctx, "k2", "v", Options{}) {
		t.Fatal("Set wrote while disabled")
	}
	if c.Exists(ctx, "k", Options{}) {
		t.Fatal("Exists reported true while disabled")
	}

	c.SetDisabled(false)
	if !c.Get(ctx, "k", &v, Options{}) {
		t.Fatal("cached data lost across a disable toggle")
	}
}

func TestGetOrSetCachesProducerResult(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	calls := 0
	producer := func(context.Context) (product, error) {
		calls++
		return product{ID: "p1", Name: "Teh Tarik", Price: 3.50}, nil
	}

	first, err := GetOrSet(ctx, c, "product:p1", producer, Options{Namespace: "products"})
	if err != nil {
		t.Fatalf("GetOrSet: %v", err)
	}
	second, err := GetOrSet(ctx, c, "product:p1", producer, Options{Namespace: "products"})
	if err != nil {
		t.Fatalf("GetOrSet second call: %v", err)
	}
	if calls != 1 {
		t.Fatalf("producer called %d times, want 1", calls)
	}
	if first != second {
		t.Fatalf("cached value diverged: %+v vs %+v", first, second)
	}
}

func TestGetOrSetProducerErrorNotCached(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	wantErr := errors.New("load failed")
	calls := 0
	failing := func(context.Context) (string, error) {
		calls++
		return "", wantErr
	}

	if _, err := GetOrSet(ctx, c, "k", failing, Options{}); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if _, err := GetOrSet(ctx, c, "k", failing, Options{}); !errors.Is(err, wantErr) {
		t.Fatalf("second err = %v", err)
	}
	if calls != 2 {
		t.Fatalf("producer called %d times, want 2 (failures are not cached)", calls)
	}
}

func TestCacheRenderKey(t *testing.T) {
	c, _ := newTestCache(t)

	if got := c.RenderKey("products", "p1"); got != "kedai:products:p1" {
		t.Fatalf("RenderKey = %q", got)
	}
	if got := c.RenderKey("", "p1"); got != "kedai:default:p1" {
		t.Fatalf("RenderKey with empty namespace = %q", got)
	}
}

func TestCacheStatsMemoryOnly(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	c.Set(ctx, "a", "1", Options{})
	c.Set(ctx, "b", "2", Options{})
	var v string
	c.Get(ctx, "a", &v, Options{})
	c.Get(ctx, "absent", &v, Options{})

	s := c.Stats(ctx)
	if s.Hits != 1 || s.Misses != 1 {
		t.Fatalf("Stats counters = %d/%d, want 1/1", s.Hits, s.Misses)
	}
	if s.HitRate != 0.5 {
		t.Fatalf("HitRate = %v, want 0.5", s.HitRate)
	}
	if s.TotalKeys != 2 {
		t.Fatalf("TotalKeys = %d, want 2", s.TotalKeys)
	}
	if s.ConnectionStatus != "unavailable" {
		t.Fatalf("ConnectionStatus = %q", s.ConnectionStatus)
	}
	// With no durable tier the bounded store's payload size is reported.
	if s.MemoryUsedBytes <= 0 {
		t.Fatalf("MemoryUsedBytes = %d, want > 0", s.MemoryUsedBytes)
	}
}

func TestHealthCheckMemoryOnly(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	h := c.HealthCheck(ctx)
	if h.Status != StatusHealthy {
		t.Fatalf("Status = %v, want healthy", h.Status)
	}
	if !h.FallbackActive {
		t.Fatal("FallbackActive = false without a durable backend")
	}
}

func TestHealthCheckUnreachableDurable(t *testing.T) {
	ctx := context.Background()
	c, fb := newTestCacheWithBackend(t)

	fb.setFailing(true)
	h := c.HealthCheck(ctx)
	if h.Status != StatusUnhealthy {
		t.Fatalf("Status = %v, want unhealthy", h.Status)
	}
	if !h.FallbackActive {
		t.Fatal("FallbackActive = false while the durable backend is down")
	}
}
