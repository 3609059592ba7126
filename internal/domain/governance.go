package domain

import "time"

// RequestInfo is the minimal request descriptor the governance layer works on
type RequestInfo struct {
	Headers    map[string]string `json:"headers"`
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	RemoteAddr string            `json:"remote_addr,omitempty"`
}

// Header returns a header value by canonical name
func (r RequestInfo) Header(name string) string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers[name]
}

// Decision is the outcome of a rate limit check
type Decision struct {
	Category          string    `json:"category"`
	Allowed           bool      `json:"allowed"`
	Limit             int       `json:"limit"`
	Remaining         int       `json:"remaining"`
	ResetAt           time.Time `json:"reset_at"`
	RetryAfterSeconds float64   `json:"retry_after_seconds"`
}

// RateLimitStats summarises live windows per category
type RateLimitStats struct {
	ActiveWindows int            `json:"active_windows"`
	ByCategory    map[string]int `json:"by_category"`
}

// CacheStats is a point-in-time view of a BoundedCache
type CacheStats struct {
	Size        int     `json:"size"`
	MaxSize     int     `json:"max_size"`
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Loads       uint64  `json:"loads"`
	LoadErrors  uint64  `json:"load_errors"`
	Evictions   uint64  `json:"evictions"`
	Expirations uint64  `json:"expirations"`
	HitRate     float64 `json:"hit_rate"`
}

// SampleKind identifies a metrics buffer
type SampleKind string

const (
	SampleKindRequest SampleKind = "request"
	SampleKindDBQuery SampleKind = "db_query"
	SampleKindError   SampleKind = "error"
)

// Sample is one telemetry observation
type Sample struct {
	Timestamp  time.Time         `json:"timestamp"`
	Kind       SampleKind        `json:"kind"`
	DurationMs float64           `json:"duration_ms"`
	Size       float64           `json:"size"`
	Meta       map[string]string `json:"meta,omitempty"`
}

// RequestSample describes a completed HTTP request
type RequestSample struct {
	Timestamp  time.Time
	Method     string
	Path       string
	StatusCode int
	DurationMs float64
	Size       float64
}

// QuerySample describes a completed database query
type QuerySample struct {
	Timestamp  time.Time
	Operation  string
	Table      string
	DurationMs float64
	Rows       float64
}

// ErrorSample describes an error observed while serving a request
type ErrorSample struct {
	Timestamp time.Time
	Type      string
	Message   string
	Path      string
}

// Aggregate holds duration statistics for one sample kind
type Aggregate struct {
	Count int     `json:"count"`
	AvgMs float64 `json:"avg_ms"`
	MinMs float64 `json:"min_ms"`
	MaxMs float64 `json:"max_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// ErrorAggregate holds error counts for a window
type ErrorAggregate struct {
	Count  int            `json:"count"`
	ByType map[string]int `json:"by_type"`
}

// MemoryUsage is a snapshot of process memory in megabytes
type MemoryUsage struct {
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	HeapSysMB   float64 `json:"heap_sys_mb"`
	NumGC       uint32  `json:"num_gc"`
	Goroutines  int     `json:"goroutines"`
}

// MetricsStats is the output of MetricsAggregator.GetStats
type MetricsStats struct {
	Window    time.Duration  `json:"window"`
	Requests  Aggregate      `json:"requests"`
	DBQueries Aggregate      `json:"db_queries"`
	Errors    ErrorAggregate `json:"errors"`
	Memory    MemoryUsage    `json:"memory"`
	Uptime    time.Duration  `json:"uptime"`
}

// EndpointInsight is the latency profile of one route
type EndpointInsight struct {
	Endpoint  string  `json:"endpoint"`
	Count     int     `json:"count"`
	AvgMs     float64 `json:"avg_ms"`
	MaxMs     float64 `json:"max_ms"`
	ErrorRate float64 `json:"error_rate"`
}

// QueryInsight is the latency profile of one query operation
type QueryInsight struct {
	Operation string  `json:"operation"`
	Count     int     `json:"count"`
	AvgMs     float64 `json:"avg_ms"`
	MaxMs     float64 `json:"max_ms"`
}

// Insights is the output of MetricsAggregator.GetInsights
type Insights struct {
	Window             time.Duration     `json:"window"`
	SlowestEndpoints   []EndpointInsight `json:"slowest_endpoints"`
	SlowestQueries     []QueryInsight    `json:"slowest_queries"`
	StatusDistribution map[string]int    `json:"status_distribution"`
	ErrorRate          float64           `json:"error_rate"`
	Recommendations    []string          `json:"recommendations"`
}

// Health statuses reported by governance components
const (
	StatusHealthy           = "healthy"
	StatusPerformanceIssues = "performance_issues"
	StatusElevated          = "elevated"
	StatusDegraded          = "degraded"
	StatusUnhealthy         = "unhealthy"
)

// MetricsHealth is the output of MetricsAggregator.HealthCheck
type MetricsHealth struct {
	Status          string       `json:"status"`
	Issues          []string     `json:"issues"`
	Recommendations []string     `json:"recommendations"`
	Stats           MetricsStats `json:"stats"`
}

// RiskLevel is a coarse ordinal of how suspicious something is
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Rank orders risk levels, low being 0
func (r RiskLevel) Rank() int {
	switch r {
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return 0
	}
}

// InspectRequest is what the threat scanner looks at
type InspectRequest struct {
	Identifier string
	Method     string
	URL        string
	Body       interface{}
}

// Findings is the verdict of ThreatScanner.Inspect
type Findings struct {
	HasIssues bool      `json:"has_issues"`
	Issues    []string  `json:"issues"`
	RiskLevel RiskLevel `json:"risk_level"`
}

// Threat types recorded in the audit log
const (
	ThreatTypeSQLInjection = "sql_injection"
	ThreatTypeXSS          = "xss"
	ThreatTypeMixed        = "mixed"
)

// ThreatEvent is one audit log entry
type ThreatEvent struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Type       string    `json:"type"`
	RiskLevel  RiskLevel `json:"risk_level"`
	Identifier string    `json:"identifier"`
	Method     string    `json:"method,omitempty"`
	URL        string    `json:"url,omitempty"`
	Details    []string  `json:"details"`
}

// SuspiciousIdentifier folds the threat events of one caller
type SuspiciousIdentifier struct {
	Identifier string        `json:"identifier"`
	Count      int           `json:"count"`
	Events     []ThreatEvent `json:"events"`
	FirstSeen  time.Time     `json:"first_seen"`
	LastSeen   time.Time     `json:"last_seen"`
	RiskLevel  RiskLevel     `json:"risk_level"`
}

// ThreatReport is the output of ThreatScanner.GetReport
type ThreatReport struct {
	TotalEvents    int                    `json:"total_events"`
	EventsByType   map[string]int         `json:"events_by_type"`
	EventsByRisk   map[RiskLevel]int      `json:"events_by_risk"`
	TopSuspicious  []SuspiciousIdentifier `json:"top_suspicious"`
	RecentEvents   []ThreatEvent          `json:"recent_events"`
	TrackedCallers int                    `json:"tracked_callers"`
}

// ThreatHealth is the output of ThreatScanner.HealthCheck
type ThreatHealth struct {
	Status            string `json:"status"`
	FlaggedCallers    int    `json:"flagged_callers"`
	EventsInRetention int    `json:"events_in_retention"`
	RepeatThreshold   int    `json:"repeat_threshold"`
}
