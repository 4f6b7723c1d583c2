package cache

import (
	"sync"
	"time"
)

// Strategy is a named TTL policy selected per cache operation.
type Strategy struct {
	Name string
	TTL  time.Duration
}

// StrategyTable maps strategy names to their configuration. Built-in
// strategies are seeded at construction; Register overwrites existing
// entries but strategies are never deleted.
type StrategyTable struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewStrategyTable returns a table seeded with the built-in strategies.
func NewStrategyTable() *StrategyTable {
	t := &StrategyTable{strategies: make(map[string]Strategy)}
	for _, s := range []Strategy{
		{Name: "products", TTL: 10 * time.Minute},
		{Name: "categories", TTL: time.Hour},
		{Name: "sessions", TTL: 24 * time.Hour},
		{Name: "cart", TTL: 30 * time.Minute},
		{Name: "api", TTL: 5 * time.Minute},
		{Name: "search", TTL: 10 * time.Minute},
		{Name: "static", TTL: 24 * time.Hour},
		{Name: "default", TTL: time.Hour},
	} {
		t.strategies[s.Name] = s
	}
	return t
}

// Register adds or overwrites a strategy.
func (t *StrategyTable) Register(s Strategy) {
	t.mu.Lock()
	t.strategies[s.Name] = s
	t.mu.Unlock()
}

// Lookup returns the named strategy.
func (t *StrategyTable) Lookup(name string) (Strategy, bool) {
	t.mu.RLock()
	s, ok := t.strategies[name]
	t.mu.RUnlock()
	return s, ok
}

// resolveTTL applies the TTL precedence: explicit > strategy > fallback.
func (t *StrategyTable) resolveTTL(explicit time.Duration, strategy string, fallback time.Duration) time.Duration {
	if explicit > 0 {
		return explicit
	}
	if strategy != "" {
		if s, ok := t.Lookup(strategy); ok && s.TTL > 0 {
			return s.TTL
		}
	}
	return fallback
}
