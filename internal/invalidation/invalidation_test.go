package invalidation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kedaihq/kedai/internal/cache"
	"github.com/kedaihq/kedai/internal/config"
)

type fakeRevalidator struct {
	paths    []string
	failPath string
}

func (f *fakeRevalidator) Revalidate(_ context.Context, path string) error {
	if path == f.failPath {
		return errors.New("revalidation endpoint returned 500")
	}
	f.paths = append(f.paths, path)
	return nil
}

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	store := cache.NewBoundedStore(100)
	t.Cleanup(func() { store.Close() })
	sel := cache.NewSelector(context.Background(), nil, store)
	return cache.New(sel, cache.NewStrategyTable(), config.CacheConfig{
		KeyPrefix:  "kedai",
		DefaultTTL: time.Hour,
	})
}

func TestOnEventRevalidatesMappedPaths(t *testing.T) {
	ctx := context.Background()
	reval := &fakeRevalidator{}
	inv := New(newTestCache(t), reval)

	res := inv.OnEvent(ctx, ProductUpdated, "p42")
	if !res.Success {
		t.Fatalf("Result = %+v", res)
	}
	if res.PathsInvalidated != 2 {
		t.Fatalf("PathsInvalidated = %d, want 2", res.PathsInvalidated)
	}

	want := map[string]bool{"/products": true, "/products/p42": true}
	for _, p := range reval.paths {
		if !want[p] {
			t.Fatalf("unexpected path %q revalidated", p)
		}
		delete(want, p)
	}
	if len(want) != 0 {
		t.Fatalf("paths not revalidated: %v", want)
	}
}

func TestOnEventUnknownEventIsNoOp(t *testing.T) {
	reval := &fakeRevalidator{}
	inv := New(newTestCache(t), reval)

	res := inv.OnEvent(context.Background(), Event("warehouse.audited"), "x")
	if !res.Success || res.TagsInvalidated != 0 || res.PathsInvalidated != 0 {
		t.Fatalf("Result = %+v", res)
	}
	if len(reval.paths) != 0 {
		t.Fatalf("unknown event revalidated %v", reval.paths)
	}
}

func TestOnEventRevalidationFailureReported(t *testing.T) {
	reval := &fakeRevalidator{failPath: "/products"}
	inv := New(newTestCache(t), reval)

	res := inv.OnEvent(context.Background(), ProductUpdated, "p1")
	if res.Success {
		t.Fatal("failed revalidation reported as success")
	}
	if res.Err == nil {
		t.Fatal("Result missing the error")
	}
	// The other path is still attempted.
	if res.PathsInvalidated != 1 {
		t.Fatalf("PathsInvalidated = %d, want 1", res.PathsInvalidated)
	}
}

func TestOnEventNilRevalidatorSkipsPaths(t *testing.T) {
	inv := New(newTestCache(t), nil)

	res := inv.OnEvent(context.Background(), ProductCreated, "")
	if !res.Success {
		t.Fatalf("Result = %+v", res)
	}
	if res.PathsInvalidated != 0 {
		t.Fatalf("PathsInvalidated = %d without a revalidator", res.PathsInvalidated)
	}
}

func TestOnEventOrderPlacedHasNoPaths(t *testing.T) {
	reval := &fakeRevalidator{}
	inv := New(newTestCache(t), reval)

	res := inv.OnEvent(context.Background(), OrderPlaced, "ord-1")
	if !res.Success {
		t.Fatalf("Result = %+v", res)
	}
	if len(reval.paths) != 0 {
		t.Fatalf("order.placed revalidated %v", reval.paths)
	}
}

func TestExpandSkipsTemplatedEntriesWithoutSubject(t *testing.T) {
	got := expand([]string{"products", "product:%s"}, "")
	if len(got) != 1 || got[0] != "products" {
		t.Fatalf("expand = %v", got)
	}

	got = expand([]string{"products", "product:%s"}, "p1")
	if len(got) != 2 || got[1] != "product:p1" {
		t.Fatalf("expand with subject = %v", got)
	}
}
