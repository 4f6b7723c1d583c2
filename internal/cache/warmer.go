package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kedaihq/kedai/internal/logging"
	"github.com/kedaihq/kedai/internal/metrics"
	"github.com/kedaihq/kedai/internal/observability"
)

// WarmItem is one key the warmer may populate.
type WarmItem struct {
	Key  string
	Opts Options
}

// UsageSource supplies the most-referenced business identifiers, derived
// from persisted records, so warming is data-driven rather than hardcoded.
type UsageSource interface {
	TopProductIDs(ctx context.Context, limit int) ([]string, error)
	TopPostcodes(ctx context.Context, limit int) ([]string, error)
}

// Fetcher loads the value for a warm candidate from its source of truth.
type Fetcher func(ctx context.Context, item WarmItem) (any, error)

// WarmupSummary aggregates one warmup run.
type WarmupSummary struct {
	RunID    string
	Cached   int
	Existing int
	Errors   int
}

// Warmer populates frequently-accessed keys in fixed-size batches on
// startup and on an interval. Individual failures are tolerated and
// counted; a run never aborts because one key failed to load.
type Warmer struct {
	cache     *Cache
	source    UsageSource // nil when usage statistics are unavailable
	fetch     Fetcher
	batchSize int
	topLimit  int
	fallback  []WarmItem // representative list used when the source fails

	stopOnce sync.Once
	stop     chan struct{}
}

// NewWarmer creates a warmer. batchSize <= 0 defaults to 20.
func NewWarmer(c *Cache, source UsageSource, fetch Fetcher, batchSize int, fallback []WarmItem) *Warmer {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &Warmer{
		cache:     c,
		source:    source,
		fetch:     fetch,
		batchSize: batchSize,
		topLimit:  50,
		fallback:  fallback,
		stop:      make(chan struct{}),
	}
}

// Warmup populates the given keys, or a statistics-derived candidate list
// when none are given. Already-cached keys are skipped.
func (w *Warmer) Warmup(ctx context.Context, keys ...string) WarmupSummary {
	ctx, span := observability.Tracer().Start(ctx, "cache.warmup",
		trace.WithAttributes(attribute.Int("warmup.explicit_keys", len(keys))))
	defer span.End()

	var items []WarmItem
	if len(keys) > 0 {
		for _, k := range keys {
			items = append(items, WarmItem{Key: k, Opts: Options{Strategy: "default"}})
		}
	} else {
		items = w.candidates(ctx)
	}

	summary := WarmupSummary{RunID: uuid.NewString()}
	for start := 0; start < len(items); start += w.batchSize {
		end := min(start+w.batchSize, len(items))
		w.processBatch(ctx, items[start:end], &summary)
	}

	metrics.RecordWarmup("cached", summary.Cached)
	metrics.RecordWarmup("existing", summary.Existing)
	metrics.RecordWarmup("error", summary.Errors)
	logging.Op().Info("cache warmup complete",
		"run_id", summary.RunID,
		"cached", summary.Cached,
		"existing", summary.Existing,
		"errors", summary.Errors)
	return summary
}

// processBatch warms one batch concurrently, collecting per-item outcomes.
func (w *Warmer) processBatch(ctx context.Context, batch []WarmItem, summary *WarmupSummary) {
	var wg sync.WaitGroup
	results := make([]int, len(batch)) // 0=cached, 1=existing, 2=error

	for i, item := range batch {
		wg.Add(1)
		go func(i int, item WarmItem) {
			defer wg.Done()
			if w.cache.Exists(ctx, item.Key, item.Opts) {
				results[i] = 1
				return
			}
			value, err := w.fetch(ctx, item)
			if err != nil {
				logging.Op().Warn("warmup fetch failed", "key", item.Key, "error", err)
				results[i] = 2
				return
			}
			if !w.cache.Set(ctx, item.Key, value, item.Opts) {
				results[i] = 2
			}
		}(i, item)
	}
	wg.Wait()

	for _, r := range results {
		switch r {
		case 0:
			summary.Cached++
		case 1:
			summary.Existing++
		case 2:
			summary.Errors++
		}
	}
}

// candidates derives the warm list from usage statistics, falling back to
// the representative list when statistics are unavailable.
func (w *Warmer) candidates(ctx context.Context) []WarmItem {
	if w.source == nil {
		return w.fallback
	}

	var items []WarmItem
	products, err := w.source.TopProductIDs(ctx, w.topLimit)
	if err != nil {
		logging.Op().Warn("warmup usage statistics unavailable, using fallback list", "error", err)
		return w.fallback
	}
	for _, id := range products {
		items = append(items, WarmItem{
			Key:  "product:" + id,
			Opts: Options{Namespace: "products", Strategy: "products"},
		})
	}

	postcodes, err := w.source.TopPostcodes(ctx, w.topLimit)
	if err != nil {
		logging.Op().Warn("warmup postcode statistics unavailable", "error", err)
	}
	for _, pc := range postcodes {
		items = append(items, WarmItem{
			Key:  "shipping:rate:" + pc,
			Opts: Options{Namespace: "shipping", Strategy: "static"},
		})
	}

	if len(items) == 0 {
		return w.fallback
	}
	return items
}

// Start runs Warmup immediately and then on every interval tick until the
// context is cancelled or Stop is called.
func (w *Warmer) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	go func() {
		w.Warmup(ctx)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			case <-ticker.C:
				w.Warmup(ctx)
			}
		}
	}()
}

// Stop terminates the interval scheduler.
func (w *Warmer) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}
