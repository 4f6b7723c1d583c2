package cache

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Stats is the point-in-time report exposed by the facade.
type Stats struct {
	Hits             int64         `json:"hits"`
	Misses           int64         `json:"misses"`
	HitRate          float64       `json:"hit_rate"`
	TotalKeys        int           `json:"total_keys"`
	MemoryUsedBytes  int64         `json:"memory_used_bytes"`
	ConnectionStatus string        `json:"connection_status"`
	Uptime           time.Duration `json:"uptime"`
}

// HealthStatus classifies the cache tier's condition.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// Health is the structured health-check result.
type Health struct {
	Status         HealthStatus  `json:"status"`
	Latency        time.Duration `json:"latency"`
	FallbackActive bool          `json:"fallback_active"`
	MemoryPressure float64       `json:"memory_pressure"`
}

// Health thresholds: above either, the backend is degraded.
const (
	healthyLatencyMax  = time.Second
	healthyPressureMax = 90.0
)

// infoProvider is the introspection capability of the durable backend.
type infoProvider interface {
	Info(ctx context.Context, section string) (string, error)
}

// Stats reports hit/miss counters, key counts and backend status.
func (c *Cache) Stats(ctx context.Context) Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	s := Stats{
		Hits:             hits,
		Misses:           misses,
		ConnectionStatus: c.sel.State().String(),
		Uptime:           c.Uptime(),
	}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}

	s.TotalKeys = c.sel.Local().Len()
	s.MemoryUsedBytes = c.sel.Local().SizeBytes()
	if !c.sel.FallbackActive() {
		if ip, ok := c.sel.Durable().(infoProvider); ok {
			if info, err := ip.Info(ctx, "memory"); err == nil {
				s.MemoryUsedBytes = parseInfoInt(info, "used_memory")
			}
		}
		if kc, ok := c.sel.Durable().(interface {
			CountKeys(ctx context.Context, pattern string) (int, error)
		}); ok {
			if n, err := kc.CountKeys(ctx, c.prefix+":*"); err == nil {
				s.TotalKeys = n
			}
		}
	}
	return s
}

// HealthCheck derives the structured health result. The durable tier is
// healthy when it answers a ping within one second and memory pressure is
// at most 90%; degraded when either threshold is exceeded; unhealthy when
// it is unreachable. Without a durable backend the bounded store's fill
// ratio is the only pressure signal.
func (c *Cache) HealthCheck(ctx context.Context) Health {
	h := Health{FallbackActive: c.sel.FallbackActive()}

	durable := c.sel.Durable()
	if durable == nil {
		store := c.sel.Local()
		h.MemoryPressure = float64(store.Len()) / float64(store.Capacity()) * 100
		h.Status = StatusHealthy
		if h.MemoryPressure > healthyPressureMax {
			h.Status = StatusDegraded
		}
		return h
	}

	start := time.Now()
	if err := durable.Ping(ctx); err != nil {
		h.Status = StatusUnhealthy
		h.FallbackActive = true
		return h
	}
	h.Latency = time.Since(start)

	if ip, ok := durable.(infoProvider); ok {
		if info, err := ip.Info(ctx, "memory"); err == nil {
			used := parseInfoInt(info, "used_memory")
			max := parseInfoInt(info, "maxmemory")
			if max > 0 {
				h.MemoryPressure = float64(used) / float64(max) * 100
			}
		}
	}

	if h.Latency > healthyLatencyMax || h.MemoryPressure > healthyPressureMax {
		h.Status = StatusDegraded
	} else {
		h.Status = StatusHealthy
	}
	return h
}

// parseInfoInt extracts an integer field from key:value introspection text.
func parseInfoInt(info, field string) int64 {
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, field+":"); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64)
			if err == nil {
				return n
			}
			return 0
		}
	}
	return 0
}
