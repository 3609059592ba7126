package metrics

import (
	"net/http"
	"strconv"

	"invoice-api/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors exposes governance telemetry in Prometheus format on its own
// registry
type Collectors struct {
	registry *prometheus.Registry

	RequestDuration   *prometheus.HistogramVec
	QueryDuration     *prometheus.HistogramVec
	ErrorsTotal       *prometheus.CounterVec
	RateLimitDecision *prometheus.CounterVec
	ThreatFindings    *prometheus.CounterVec
}

// NewCollectors creates and registers all Prometheus metrics
func NewCollectors() *Collectors {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Collectors{
		registry: registry,
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		QueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "app_errors_total",
				Help: "Total number of errors observed while serving requests",
			},
			[]string{"type"},
		),
		RateLimitDecision: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratelimit_decisions_total",
				Help: "Total number of rate limit decisions",
			},
			[]string{"category", "outcome"},
		),
		ThreatFindings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threat_findings_total",
				Help: "Total number of requests flagged by the threat scanner",
			},
			[]string{"risk"},
		),
	}
}

// Registry returns the registry the collectors are registered on
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// ObserveDecision counts a rate limit decision
func (c *Collectors) ObserveDecision(d domain.Decision) {
	outcome := "allowed"
	if !d.Allowed {
		outcome = "denied"
	}
	c.RateLimitDecision.WithLabelValues(d.Category, outcome).Inc()
}

// ObserveFindings counts a threat scan that found something
func (c *Collectors) ObserveFindings(f domain.Findings) {
	if !f.HasIssues {
		return
	}
	c.ThreatFindings.WithLabelValues(string(f.RiskLevel)).Inc()
}

func (c *Collectors) observeRequest(s domain.RequestSample) {
	c.RequestDuration.
		WithLabelValues(s.Method, s.Path, strconv.Itoa(s.StatusCode)).
		Observe(s.DurationMs / 1000)
}

func (c *Collectors) observeQuery(s domain.QuerySample) {
	c.QueryDuration.WithLabelValues(s.Operation, s.Table).Observe(s.DurationMs / 1000)
}

func (c *Collectors) observeError(s domain.ErrorSample) {
	c.ErrorsTotal.WithLabelValues(s.Type).Inc()
}
