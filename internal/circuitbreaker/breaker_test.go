package circuitbreaker

import (
	"testing"
	"time"
)

func TestBreaker_ClosedAllowsCalls(t *testing.T) {
	b := New("test", Config{FailureThreshold: 3, ResetTimeout: time.Second})

	for i := 0; i < 10; i++ {
		if !b.Allow() {
			t.Fatal("closed breaker should allow calls")
		}
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %s", b.State())
	}
}

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	b := New("test", Config{FailureThreshold: 3, ResetTimeout: time.Minute})

	b.RecordFailure()
	b.RecordFailure()
	if b.State() != StateClosed {
		t.Fatal("breaker should stay closed below threshold")
	}

	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("expected open after 3 failures, got %s", b.State())
	}
	if b.Allow() {
		t.Fatal("open breaker should reject calls")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New("test", Config{FailureThreshold: 3, ResetTimeout: time.Minute})

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	if b.State() != StateClosed {
		t.Fatal("non-consecutive failures should not trip the breaker")
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b := New("test", Config{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})

	b.RecordFailure()
	if b.Allow() {
		t.Fatal("open breaker should reject calls")
	}

	time.Sleep(20 * time.Millisecond)

	// First call after the reset timeout is the probe.
	if !b.Allow() {
		t.Fatal("expected probe to be allowed after reset timeout")
	}
	// A second call while the probe is in flight is rejected.
	if b.Allow() {
		t.Fatal("only one probe should be allowed in half-open")
	}

	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Fatalf("expected closed after successful probe, got %s", b.State())
	}
	if !b.Allow() {
		t.Fatal("closed breaker should allow calls")
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b := New("test", Config{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})

	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("expected probe to be allowed")
	}
	b.RecordFailure()

	if b.State() != StateOpen {
		t.Fatalf("expected open after failed probe, got %s", b.State())
	}
	if b.Allow() {
		t.Fatal("reopened breaker should reject calls")
	}
}

func TestRegistry_GetCreatesOnce(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 2, ResetTimeout: time.Second})

	a := r.Get("warmup")
	b := r.Get("warmup")
	if a != b {
		t.Fatal("Get should return the same breaker for a feature")
	}

	if r.Get("monitor") == a {
		t.Fatal("different features should get different breakers")
	}
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 1, ResetTimeout: time.Minute})

	r.Get("monitor")
	b := r.Get("warmup")
	b.RecordFailure()

	snap := r.Snapshot()
	if snap["monitor"] != "closed" {
		t.Fatalf("expected monitor closed, got %s", snap["monitor"])
	}
	if snap["warmup"] != "open" {
		t.Fatalf("expected warmup open, got %s", snap["warmup"])
	}
}
