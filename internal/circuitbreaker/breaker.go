// Package circuitbreaker implements the per-feature circuit breaker that
// gates cross-cutting cache features (monitoring, auto-caching, warming)
// when they fail repeatedly.
//
// The breaker follows the standard three-state model:
//
//	Closed ──(consecutive failures ≥ threshold)──► Open ──(ResetTimeout elapsed)──► HalfOpen
//	  ▲                                                                                 │
//	  └──────────────────(probe succeeds)◄──────────────────────────────────────────────┘
//	                      (probe fails) ─────────────────────────────────────────► Open
//
// Unlike an error-rate breaker, this one counts consecutive failures: a
// single success in Closed state resets the counter. That matches how the
// gated features fail in practice: either the backing service is down and
// every call fails, or it is fine.
//
// All public methods are safe for concurrent use. The Registry uses a
// read-write mutex so the common read path (Get for an existing breaker)
// does not contend with the rare write path.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/kedaihq/kedai/internal/metrics"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Normal operation, calls pass through
	StateOpen                  // Calls are rejected
	StateHalfOpen              // A single probe call is allowed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds the circuit breaker configuration.
type Config struct {
	FailureThreshold int           // Consecutive failures that trip the breaker
	ResetTimeout     time.Duration // How long the breaker stays open before allowing a probe
}

// Breaker is a per-feature circuit breaker.
type Breaker struct {
	mu       sync.Mutex
	feature  string
	cfg      Config
	state    State
	failures int       // consecutive failures while closed
	openedAt time.Time // when the breaker transitioned to open
	probing  bool      // a half-open probe is in flight
}

// New creates a new circuit breaker for the named feature.
func New(feature string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &Breaker{feature: feature, cfg: cfg}
}

// Allow checks whether a call should be allowed through the breaker.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.openedAt) >= b.cfg.ResetTimeout {
			b.setState(StateHalfOpen)
			b.probing = true
			return true
		}
		return false
	case StateHalfOpen:
		if !b.probing {
			b.probing = true
			return true
		}
		return false
	}
	return true
}

// RecordSuccess records a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		// Probe succeeded, close the breaker.
		b.setState(StateClosed)
		b.failures = 0
		b.probing = false
	}
}

// RecordFailure records a failed call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.trip()
		}
	case StateHalfOpen:
		// Probe failed, reopen immediately.
		b.probing = false
		b.trip()
	}
}

// State returns the current breaker state, applying the automatic
// Open → HalfOpen transition when the reset timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && time.Since(b.openedAt) >= b.cfg.ResetTimeout {
		b.setState(StateHalfOpen)
		b.probing = false
	}
	return b.state
}

// trip transitions to open. Must be called under lock.
func (b *Breaker) trip() {
	b.setState(StateOpen)
	b.openedAt = time.Now()
	metrics.RecordBreakerTrip(b.feature)
}

// setState updates state and the exported gauge. Must be called under lock.
func (b *Breaker) setState(s State) {
	b.state = s
	metrics.SetBreakerState(b.feature, int(s))
}

// Registry holds per-feature circuit breakers.
type Registry struct {
	mu       sync.RWMutex
	cfg      Config
	breakers map[string]*Breaker
}

// NewRegistry creates a breaker registry with a default config applied to
// breakers created on first use.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:      cfg,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for a feature, creating one on first use.
func (r *Registry) Get(feature string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[feature]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Double check
	if b, ok := r.breakers[feature]; ok {
		return b
	}
	b = New(feature, r.cfg)
	r.breakers[feature] = b
	return b
}

// Snapshot returns a map of feature to breaker state for observability.
func (r *Registry) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.breakers))
	for feature, b := range r.breakers {
		out[feature] = b.State().String()
	}
	return out
}
