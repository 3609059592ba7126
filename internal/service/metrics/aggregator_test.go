package metrics

import (
	"fmt"
	"math"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"invoice-api/internal/config"
	"invoice-api/internal/domain"
	"invoice-api/pkg/clock"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func testConfig() config.MetricsConfig {
	return config.MetricsConfig{
		MaxSamples:    1000,
		HealthWindow:  5 * time.Minute,
		SlowRequestMs: 1000,
		SlowQueryMs:   500,
		MaxHeapMB:     512,
		MaxErrors:     10,
	}
}

func fixedMemory(heapMB float64) MemoryProbe {
	return func() domain.MemoryUsage {
		return domain.MemoryUsage{HeapAllocMB: heapMB, HeapSysMB: heapMB * 2}
	}
}

func newTestAggregator(cfg config.MetricsConfig, opts ...Option) (*Aggregator, *clock.Manual) {
	clk := clock.NewManual(epoch)
	opts = append([]Option{WithMemoryProbe(fixedMemory(64))}, opts...)
	return NewAggregator(cfg, clk, nil, opts...), clk
}

func TestAggregator_PercentilesMatchNearestRank(t *testing.T) {
	agg, _ := newTestAggregator(testConfig())

	// recorded out of order on purpose
	for i := 100; i >= 1; i-- {
		agg.RecordRequest(domain.RequestSample{Method: "GET", Path: "/api/invoices", StatusCode: 200, DurationMs: float64(i * 10)})
	}

	stats := agg.GetStats(time.Minute)

	assert.Equal(t, 100, stats.Requests.Count)
	assert.Equal(t, 950.0, stats.Requests.P95Ms)
	assert.Equal(t, 990.0, stats.Requests.P99Ms)
	assert.Equal(t, 500.0, stats.Requests.P50Ms)
	assert.Equal(t, 10.0, stats.Requests.MinMs)
	assert.Equal(t, 1000.0, stats.Requests.MaxMs)
	assert.Equal(t, 505.0, stats.Requests.AvgMs)
}

func TestAggregator_WindowFiltersOldSamples(t *testing.T) {
	agg, clk := newTestAggregator(testConfig())

	agg.RecordDBQuery(domain.QuerySample{Operation: "select", Table: "users", DurationMs: 100})
	clk.Advance(2 * time.Minute)
	agg.RecordDBQuery(domain.QuerySample{Operation: "select", Table: "users", DurationMs: 300})

	assert.Equal(t, 1, agg.GetStats(time.Minute).DBQueries.Count)
	assert.Equal(t, 300.0, agg.GetStats(time.Minute).DBQueries.AvgMs)
	assert.Equal(t, 2, agg.GetStats(5*time.Minute).DBQueries.Count)

	// non-positive window uses the health window
	assert.Equal(t, 5*time.Minute, agg.GetStats(0).Window)
}

func TestAggregator_RingBufferCapped(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSamples = 10
	agg, _ := newTestAggregator(cfg)

	for i := 1; i <= 25; i++ {
		agg.RecordRequest(domain.RequestSample{Method: "GET", Path: "/", StatusCode: 200, DurationMs: float64(i)})
	}

	stats := agg.GetStats(time.Hour)
	assert.Equal(t, 10, stats.Requests.Count)
	assert.Equal(t, 16.0, stats.Requests.MinMs, "oldest samples dropped first")
	assert.Equal(t, 10, agg.BufferSizes()[domain.SampleKindRequest])
}

func TestAggregator_MalformedInputCoerced(t *testing.T) {
	agg, _ := newTestAggregator(testConfig())

	assert.NotPanics(t, func() {
		agg.RecordRequest(domain.RequestSample{DurationMs: math.NaN(), Size: math.Inf(1)})
		agg.RecordRequest(domain.RequestSample{DurationMs: -50})
		agg.RecordDBQuery(domain.QuerySample{DurationMs: math.Inf(-1), Rows: math.NaN()})
		agg.RecordError(domain.ErrorSample{Message: strings.Repeat("x", 1000)})
	})

	stats := agg.GetStats(time.Minute)
	assert.Equal(t, 2, stats.Requests.Count)
	assert.Equal(t, 0.0, stats.Requests.MaxMs)
	assert.Equal(t, 0.0, stats.DBQueries.MaxMs)
	assert.Equal(t, 1, stats.Errors.ByType["unknown"])
}

func TestTruncateMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "timeout", 10, "timeout"},
		{"ascii", "abcdef", 3, "abc"},
		{"multibyte kept whole", "ééééé", 3, "ééé"},
		{"mixed", "a€b€c", 4, "a€b€"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateMessage(tt.in, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}

	long := truncateMessage(strings.Repeat("€", 1000), maxMessageLength)
	assert.Equal(t, maxMessageLength, utf8.RuneCountInString(long))
	assert.True(t, utf8.ValidString(long))
}

func TestAggregator_ErrorBreakdown(t *testing.T) {
	agg, _ := newTestAggregator(testConfig())

	agg.RecordError(domain.ErrorSample{Type: "database", Message: "timeout"})
	agg.RecordError(domain.ErrorSample{Type: "database", Message: "timeout"})
	agg.RecordError(domain.ErrorSample{Type: "http_5xx", Message: "boom"})

	stats := agg.GetStats(time.Minute)
	assert.Equal(t, 3, stats.Errors.Count)
	assert.Equal(t, map[string]int{"database": 2, "http_5xx": 1}, stats.Errors.ByType)
	assert.Equal(t, 64.0, stats.Memory.HeapAllocMB)
}

func TestAggregator_Uptime(t *testing.T) {
	agg, clk := newTestAggregator(testConfig())
	clk.Advance(90 * time.Second)

	assert.Equal(t, 90*time.Second, agg.GetStats(time.Minute).Uptime)
}

func TestAggregator_HealthCheck(t *testing.T) {
	tests := []struct {
		name           string
		heapMB         float64
		record         func(a *Aggregator)
		expectedStatus string
		expectedIssues int
	}{
		{
			name:           "healthy when idle",
			heapMB:         64,
			record:         func(a *Aggregator) {},
			expectedStatus: domain.StatusHealthy,
		},
		{
			name:   "slow requests",
			heapMB: 64,
			record: func(a *Aggregator) {
				a.RecordRequest(domain.RequestSample{Method: "GET", Path: "/slow", StatusCode: 200, DurationMs: 1500})
			},
			expectedStatus: domain.StatusPerformanceIssues,
			expectedIssues: 1,
		},
		{
			name:   "slow queries",
			heapMB: 64,
			record: func(a *Aggregator) {
				a.RecordDBQuery(domain.QuerySample{Operation: "select", DurationMs: 800})
			},
			expectedStatus: domain.StatusPerformanceIssues,
			expectedIssues: 1,
		},
		{
			name:           "heap over limit",
			heapMB:         600,
			record:         func(a *Aggregator) {},
			expectedStatus: domain.StatusPerformanceIssues,
			expectedIssues: 1,
		},
		{
			name:   "too many errors",
			heapMB: 64,
			record: func(a *Aggregator) {
				for i := 0; i < 11; i++ {
					a.RecordError(domain.ErrorSample{Type: "database"})
				}
			},
			expectedStatus: domain.StatusPerformanceIssues,
			expectedIssues: 1,
		},
		{
			name:   "ten errors is still healthy",
			heapMB: 64,
			record: func(a *Aggregator) {
				for i := 0; i < 10; i++ {
					a.RecordError(domain.ErrorSample{Type: "database"})
				}
			},
			expectedStatus: domain.StatusHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator(testConfig(), clock.NewManual(epoch), nil, WithMemoryProbe(fixedMemory(tt.heapMB)))
			tt.record(agg)

			health := agg.HealthCheck()

			assert.Equal(t, tt.expectedStatus, health.Status)
			assert.Len(t, health.Issues, tt.expectedIssues)
			assert.Len(t, health.Recommendations, tt.expectedIssues)
		})
	}
}

func TestAggregator_Insights(t *testing.T) {
	agg, _ := newTestAggregator(testConfig())

	for i := 0; i < 4; i++ {
		agg.RecordRequest(domain.RequestSample{Method: "GET", Path: "/api/invoices", StatusCode: 200, DurationMs: 20})
	}
	agg.RecordRequest(domain.RequestSample{Method: "POST", Path: "/api/invoices", StatusCode: 500, DurationMs: 1800})
	agg.RecordRequest(domain.RequestSample{Method: "POST", Path: "/api/invoices", StatusCode: 201, DurationMs: 1200})
	agg.RecordRequest(domain.RequestSample{Method: "GET", Path: "/api/clients", StatusCode: 404, DurationMs: 5})
	agg.RecordDBQuery(domain.QuerySample{Operation: "select", Table: "invoices", DurationMs: 700})
	agg.RecordDBQuery(domain.QuerySample{Operation: "select", Table: "users", DurationMs: 3})

	insights := agg.GetInsights()

	require.Len(t, insights.SlowestEndpoints, 3)
	slowest := insights.SlowestEndpoints[0]
	assert.Equal(t, "POST /api/invoices", slowest.Endpoint)
	assert.Equal(t, 1500.0, slowest.AvgMs)
	assert.Equal(t, 1800.0, slowest.MaxMs)
	assert.Equal(t, 0.5, slowest.ErrorRate)

	assert.Equal(t, map[string]int{"2xx": 5, "4xx": 1, "5xx": 1}, insights.StatusDistribution)
	assert.InDelta(t, 0.14, insights.ErrorRate, 0.001)

	require.Len(t, insights.SlowestQueries, 2)
	assert.Equal(t, "select invoices", insights.SlowestQueries[0].Operation)

	assert.Len(t, insights.Recommendations, 3)
}

func TestAggregator_InsightsTopFive(t *testing.T) {
	agg, _ := newTestAggregator(testConfig())

	for i := 0; i < 8; i++ {
		agg.RecordRequest(domain.RequestSample{Method: "GET", Path: fmt.Sprintf("/r%d", i), StatusCode: 200, DurationMs: float64(i)})
	}

	insights := agg.GetInsights()
	require.Len(t, insights.SlowestEndpoints, 5)
	assert.Equal(t, "GET /r7", insights.SlowestEndpoints[0].Endpoint)
	assert.Empty(t, insights.Recommendations)
}

func TestAggregator_ConcurrentRecording(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSamples = 50
	agg, _ := newTestAggregator(cfg)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				agg.RecordRequest(domain.RequestSample{Method: "GET", Path: "/", StatusCode: 200, DurationMs: float64(j)})
				_ = agg.GetStats(time.Minute)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, agg.GetStats(time.Minute).Requests.Count)
}

func TestAggregator_FeedsCollectors(t *testing.T) {
	collectors := NewCollectors()
	agg, _ := newTestAggregator(testConfig(), WithCollectors(collectors))

	agg.RecordRequest(domain.RequestSample{Method: "GET", Path: "/api/me", StatusCode: 200, DurationMs: 12})
	agg.RecordDBQuery(domain.QuerySample{Operation: "select", Table: "users", DurationMs: 3})
	agg.RecordError(domain.ErrorSample{Type: "database"})
	collectors.ObserveDecision(domain.Decision{Category: "auth", Allowed: false})
	collectors.ObserveFindings(domain.Findings{HasIssues: true, RiskLevel: domain.RiskMedium})
	collectors.ObserveFindings(domain.Findings{HasIssues: false, RiskLevel: domain.RiskLow})

	assert.Equal(t, 1, testutil.CollectAndCount(collectors.RequestDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(collectors.QueryDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(collectors.ErrorsTotal.WithLabelValues("database")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collectors.RateLimitDecision.WithLabelValues("auth", "denied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collectors.ThreatFindings.WithLabelValues("medium")))
	assert.Equal(t, 1, testutil.CollectAndCount(collectors.ThreatFindings))

	rec := httptest.NewRecorder()
	collectors.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "ratelimit_decisions_total")
	assert.Contains(t, rec.Body.String(), "http_request_duration_seconds")
}
