package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kedaihq/kedai/internal/logging"
	"github.com/kedaihq/kedai/internal/metrics"
)

// throttleWindow is the fixed window for slow-op recording limits.
const throttleWindow = time.Minute

// SlowOp is one recorded slow-operation event.
type SlowOp struct {
	Operation string
	Duration  time.Duration
	At        time.Time
}

// Monitor measures wrapped operations and records those exceeding the
// slow-op threshold. Recording is throttled per fixed window and the
// pending queue is capacity-bounded with oldest items dropped, so a
// pathological burst cannot grow memory without bound.
type Monitor struct {
	threshold time.Duration
	limit     int // max events recorded per window
	queueCap  int

	mu          sync.Mutex
	callCount   int
	windowStart time.Time
	queue       []SlowOp
	processing  bool
}

// NewMonitor creates a performance monitor. threshold <= 0 defaults to
// 500ms, limit <= 0 to 100 events per window, queueCap <= 0 to 1000.
func NewMonitor(threshold time.Duration, limit, queueCap int) *Monitor {
	if threshold <= 0 {
		threshold = 500 * time.Millisecond
	}
	if limit <= 0 {
		limit = 100
	}
	if queueCap <= 0 {
		queueCap = 1000
	}
	return &Monitor{
		threshold:   threshold,
		limit:       limit,
		queueCap:    queueCap,
		windowStart: time.Now(),
	}
}

// Measure runs fn, passing its result and error through untouched, and
// records a slow-operation event when the wall-clock duration exceeds the
// threshold.
func Measure[T any](m *Monitor, operation string, fn func() (T, error)) (T, error) {
	start := time.Now()
	value, err := fn()
	if d := time.Since(start); d > m.threshold {
		m.recordSlow(operation, d)
	}
	return value, err
}

// MeasureCtx is Measure for context-taking operations.
func MeasureCtx[T any](ctx context.Context, m *Monitor, operation string, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	value, err := fn(ctx)
	if d := time.Since(start); d > m.threshold {
		m.recordSlow(operation, d)
	}
	return value, err
}

func (m *Monitor) recordSlow(operation string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if now.Sub(m.windowStart) >= throttleWindow {
		m.windowStart = now
		m.callCount = 0
	}
	m.callCount++
	if m.callCount > m.limit {
		// Throttled: the window's budget is spent.
		return
	}

	if len(m.queue) >= m.queueCap {
		m.queue = m.queue[1:]
	}
	m.queue = append(m.queue, SlowOp{Operation: operation, Duration: d, At: now})

	metrics.RecordSlowOperation(operation)
	logging.Op().Warn("slow operation", "operation", operation, "duration", d)
}

// Process drains the pending slow-op queue through fn and returns how
// many events were handled. A second Process while one is in flight
// returns 0 rather than double-processing.
func (m *Monitor) Process(fn func(SlowOp)) int {
	m.mu.Lock()
	if m.processing {
		m.mu.Unlock()
		return 0
	}
	m.processing = true
	batch := m.queue
	m.queue = nil
	m.mu.Unlock()

	for _, op := range batch {
		fn(op)
	}

	m.mu.Lock()
	m.processing = false
	m.mu.Unlock()
	return len(batch)
}

// QueueLen reports the number of pending slow-op events.
func (m *Monitor) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
