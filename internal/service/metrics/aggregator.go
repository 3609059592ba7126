// Package metrics keeps rolling request, query and error samples in capped
// ring buffers and derives percentile statistics, insights and a health
// verdict from them.
//
// Buffers drop their oldest sample on overflow, so statistics over long
// windows at high throughput are approximate.
package metrics

import (
	"runtime"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"invoice-api/internal/config"
	"invoice-api/internal/domain"
	"invoice-api/pkg/clock"

	"go.uber.org/zap"
)

const maxMessageLength = 200

// MemoryProbe reports current process memory usage
type MemoryProbe func() domain.MemoryUsage

// Aggregator records telemetry samples. Safe for concurrent use.
type Aggregator struct {
	cfg        config.MetricsConfig
	clock      clock.Clock
	memory     MemoryProbe
	collectors *Collectors
	logger     *zap.Logger
	startedAt  time.Time

	mu       sync.RWMutex
	requests *ring[domain.Sample]
	queries  *ring[domain.Sample]
	errors   *ring[domain.Sample]
}

// Option customises an Aggregator
type Option func(*Aggregator)

// WithMemoryProbe replaces the runtime memory probe
func WithMemoryProbe(probe MemoryProbe) Option {
	return func(a *Aggregator) {
		a.memory = probe
	}
}

// WithCollectors mirrors every recorded sample into Prometheus
func WithCollectors(c *Collectors) Option {
	return func(a *Aggregator) {
		a.collectors = c
	}
}

// NewAggregator creates an aggregator with empty buffers
func NewAggregator(cfg config.MetricsConfig, clk clock.Clock, logger *zap.Logger, opts ...Option) *Aggregator {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = 1000
	}
	if cfg.HealthWindow <= 0 {
		cfg.HealthWindow = 5 * time.Minute
	}

	a := &Aggregator{
		cfg:       cfg,
		clock:     clk,
		memory:    RuntimeMemory,
		logger:    logger,
		startedAt: clk.Now(),
		requests:  newRing[domain.Sample](cfg.MaxSamples),
		queries:   newRing[domain.Sample](cfg.MaxSamples),
		errors:    newRing[domain.Sample](cfg.MaxSamples),
	}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// RecordRequest records a completed HTTP request
func (a *Aggregator) RecordRequest(s domain.RequestSample) {
	defer a.recoverRecord("request")

	s.DurationMs = sanitize(s.DurationMs)
	s.Size = sanitize(s.Size)
	s.Timestamp = a.timestamp(s.Timestamp)

	a.push(a.requests, domain.Sample{
		Timestamp:  s.Timestamp,
		Kind:       domain.SampleKindRequest,
		DurationMs: s.DurationMs,
		Size:       s.Size,
		Meta: map[string]string{
			"method": s.Method,
			"path":   s.Path,
			"status": strconv.Itoa(s.StatusCode),
		},
	})

	if a.collectors != nil {
		a.collectors.observeRequest(s)
	}
}

// RecordDBQuery records a completed database query
func (a *Aggregator) RecordDBQuery(s domain.QuerySample) {
	defer a.recoverRecord("db_query")

	s.DurationMs = sanitize(s.DurationMs)
	s.Rows = sanitize(s.Rows)
	s.Timestamp = a.timestamp(s.Timestamp)

	a.push(a.queries, domain.Sample{
		Timestamp:  s.Timestamp,
		Kind:       domain.SampleKindDBQuery,
		DurationMs: s.DurationMs,
		Size:       s.Rows,
		Meta: map[string]string{
			"operation": s.Operation,
			"table":     s.Table,
		},
	})

	if a.collectors != nil {
		a.collectors.observeQuery(s)
	}
}

// RecordError records an error observed while serving a request
func (a *Aggregator) RecordError(s domain.ErrorSample) {
	defer a.recoverRecord("error")

	if s.Type == "" {
		s.Type = "unknown"
	}
	s.Message = truncateMessage(s.Message, maxMessageLength)
	s.Timestamp = a.timestamp(s.Timestamp)

	a.push(a.errors, domain.Sample{
		Timestamp: s.Timestamp,
		Kind:      domain.SampleKindError,
		Meta: map[string]string{
			"type":    s.Type,
			"message": s.Message,
			"path":    s.Path,
		},
	})

	if a.collectors != nil {
		a.collectors.observeError(s)
	}
}

// GetStats aggregates the samples newer than now-window. A non-positive
// window uses the configured health window.
func (a *Aggregator) GetStats(window time.Duration) domain.MetricsStats {
	if window <= 0 {
		window = a.cfg.HealthWindow
	}
	now := a.clock.Now()
	requests, queries, errs := a.snapshot(now.Add(-window))

	errorAgg := domain.ErrorAggregate{Count: len(errs), ByType: make(map[string]int)}
	for _, s := range errs {
		errorAgg.ByType[s.Meta["type"]]++
	}

	return domain.MetricsStats{
		Window:    window,
		Requests:  aggregate(requests),
		DBQueries: aggregate(queries),
		Errors:    errorAgg,
		Memory:    a.readMemory(),
		Uptime:    now.Sub(a.startedAt),
	}
}

// BufferSizes reports how many samples each buffer currently holds
func (a *Aggregator) BufferSizes() map[domain.SampleKind]int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return map[domain.SampleKind]int{
		domain.SampleKindRequest: a.requests.len(),
		domain.SampleKindDBQuery: a.queries.len(),
		domain.SampleKindError:   a.errors.len(),
	}
}

// RuntimeMemory reads heap usage from the Go runtime
func RuntimeMemory() domain.MemoryUsage {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	const mb = 1024 * 1024
	return domain.MemoryUsage{
		HeapAllocMB: round(float64(m.HeapAlloc) / mb),
		HeapSysMB:   round(float64(m.HeapSys) / mb),
		NumGC:       m.NumGC,
		Goroutines:  runtime.NumGoroutine(),
	}
}

func (a *Aggregator) push(r *ring[domain.Sample], s domain.Sample) {
	a.mu.Lock()
	r.push(s)
	a.mu.Unlock()
}

func (a *Aggregator) snapshot(since time.Time) (requests, queries, errs []domain.Sample) {
	newer := func(s domain.Sample) bool { return s.Timestamp.After(since) }

	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.requests.filter(newer), a.queries.filter(newer), a.errors.filter(newer)
}

// truncateMessage cuts s to at most n runes
func truncateMessage(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func (a *Aggregator) timestamp(ts time.Time) time.Time {
	if ts.IsZero() {
		return a.clock.Now()
	}
	return ts
}

func (a *Aggregator) readMemory() (usage domain.MemoryUsage) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Warn("Memory probe panicked", zap.Any("panic", r))
			usage = domain.MemoryUsage{}
		}
	}()
	return a.memory()
}

func (a *Aggregator) recoverRecord(kind string) {
	if r := recover(); r != nil {
		a.logger.Error("Failed to record metrics sample",
			zap.String("kind", kind),
			zap.Any("panic", r))
	}
}
