package cache

import (
	"errors"
	"testing"
	"time"
)

func TestMemoizerComputesOnce(t *testing.T) {
	m := NewMemoizer(10, time.Minute)

	calls := 0
	compute := func() (any, error) {
		calls++
		return 42, nil
	}

	for range 3 {
		v, err := m.Do("answer", compute)
		if err != nil {
			t.Fatalf("Do: %v", err)
		}
		if v.(int) != 42 {
			t.Fatalf("Do = %v", v)
		}
	}
	if calls != 1 {
		t.Fatalf("compute called %d times, want 1", calls)
	}
}

func TestMemoizerTTLExpiry(t *testing.T) {
	m := NewMemoizer(10, time.Minute)
	base := time.Now()
	m.now = func() time.Time { return base }

	calls := 0
	compute := func() (any, error) {
		calls++
		return calls, nil
	}

	m.Do("k", compute)
	m.now = func() time.Time { return base.Add(2 * time.Minute) }
	v, _ := m.Do("k", compute)

	if calls != 2 {
		t.Fatalf("compute called %d times after expiry, want 2", calls)
	}
	if v.(int) != 2 {
		t.Fatalf("stale value returned: %v", v)
	}
}

func TestMemoizerErrorsNotStored(t *testing.T) {
	m := NewMemoizer(10, time.Minute)

	wantErr := errors.New("boom")
	calls := 0
	failing := func() (any, error) {
		calls++
		return nil, wantErr
	}

	for range 2 {
		if _, err := m.Do("k", failing); !errors.Is(err, wantErr) {
			t.Fatalf("err = %v", err)
		}
	}
	if calls != 2 {
		t.Fatalf("failed compute was memoized: %d calls", calls)
	}
	if m.Len() != 0 {
		t.Fatalf("Len = %d after failures, want 0", m.Len())
	}
}

func TestMemoizerCapacityEviction(t *testing.T) {
	m := NewMemoizer(2, time.Minute)

	m.Do("a", func() (any, error) { return 1, nil })
	m.Do("b", func() (any, error) { return 2, nil })
	m.Do("c", func() (any, error) { return 3, nil })

	if m.Len() != 2 {
		t.Fatalf("Len = %d, want 2", m.Len())
	}

	// "a" was the oldest entry; recomputing it proves it was evicted.
	calls := 0
	m.Do("a", func() (any, error) { calls++; return 1, nil })
	if calls != 1 {
		t.Fatal("oldest entry survived capacity eviction")
	}
}

func TestMemoizeWrapper(t *testing.T) {
	m := NewMemoizer(10, time.Minute)

	calls := 0
	double := func(n int) (int, error) {
		calls++
		return n * 2, nil
	}
	memoized := Memoize(m, "double", double)

	for range 2 {
		v, err := memoized(21)
		if err != nil || v != 42 {
			t.Fatalf("memoized(21) = %v, %v", v, err)
		}
	}
	v, err := memoized(5)
	if err != nil || v != 10 {
		t.Fatalf("memoized(5) = %v, %v", v, err)
	}
	if calls != 2 {
		t.Fatalf("fn called %d times, want 2 (one per distinct argument)", calls)
	}
}
