package handler

import (
	"context"
	"net/http"
	"time"

	"invoice-api/internal/container"
	"invoice-api/internal/domain"
)

const (
	// ServiceName is reported by the health endpoint
	ServiceName = "invoice-api"
	// Version is reported by the health endpoint
	Version = "1.0.0"

	dependencyTimeout = 2 * time.Second
)

// HealthHandler handles health check requests
type HealthHandler struct {
	container *container.Container
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(container *container.Container) *HealthHandler {
	return &HealthHandler{
		container: container,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Service   string                 `json:"service"`
	Checks    map[string]interface{} `json:"checks,omitempty"`
	Metrics   *domain.MetricsStats   `json:"metrics,omitempty"`
}

// MetricsCheck is the metrics verdict without the embedded stats
type MetricsCheck struct {
	Status          string   `json:"status"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
}

// CacheCheck reports the user directory cache
type CacheCheck struct {
	Status string `json:"status"`
	domain.CacheStats
}

// RateLimitCheck reports the limiter's open windows
type RateLimitCheck struct {
	Status string `json:"status"`
	domain.RateLimitStats
}

// DependencyCheck is the result of pinging an external dependency
type DependencyCheck struct {
	Status    string  `json:"status"`
	LatencyMs float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

// Check handles GET /health. With ?detailed=true it also runs every
// governance and dependency check and answers 503 when unhealthy.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	logger.Debug("Health check requested")

	response := HealthResponse{
		Status:    domain.StatusHealthy,
		Timestamp: h.container.Clock.Now().UTC(),
		Version:   Version,
		Service:   ServiceName,
	}
	statusCode := http.StatusOK

	if r.URL.Query().Get("detailed") == "true" {
		checks, status, stats := h.runChecks(r.Context())
		response.Checks = checks
		response.Status = status
		response.Metrics = &stats

		if status == domain.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
			logger.WithField("checks", checks).Warn("Health check reports unhealthy")
		}
	}

	writeJSON(w, statusCode, response, logger)
}

func (h *HealthHandler) runChecks(ctx context.Context) (map[string]interface{}, string, domain.MetricsStats) {
	services := h.container.Services
	checks := make(map[string]interface{})
	status := domain.StatusHealthy

	metricsHealth := services.Metrics.HealthCheck()
	checks["governance.metrics"] = MetricsCheck{
		Status:          metricsHealth.Status,
		Issues:          metricsHealth.Issues,
		Recommendations: metricsHealth.Recommendations,
	}

	threatHealth := services.Threats.HealthCheck()
	checks["governance.threats"] = threatHealth

	if services.Users != nil {
		checks["governance.cache"] = CacheCheck{Status: domain.StatusHealthy, CacheStats: services.Users.Stats()}
	} else {
		checks["governance.cache"] = CacheCheck{Status: "disabled"}
	}

	checks["governance.ratelimit"] = RateLimitCheck{
		Status:         domain.StatusHealthy,
		RateLimitStats: services.Limiter.Stats(),
	}

	if metricsHealth.Status != domain.StatusHealthy || threatHealth.Status != domain.StatusHealthy {
		status = domain.StatusDegraded
	}

	if h.container.HasRedis() {
		check := ping(ctx, h.container.RedisClient.Health)
		checks["redis"] = check
		if check.Status != domain.StatusHealthy {
			status = domain.StatusUnhealthy
		}
	}

	if h.container.HasDatabase() {
		check := ping(ctx, h.container.DB.Health)
		checks["database"] = check
		if check.Status != domain.StatusHealthy {
			status = domain.StatusUnhealthy
		}
	}

	return checks, status, metricsHealth.Stats
}

func ping(ctx context.Context, health func(context.Context) error) DependencyCheck {
	ctx, cancel := context.WithTimeout(ctx, dependencyTimeout)
	defer cancel()

	start := time.Now()
	err := health(ctx)
	check := DependencyCheck{
		Status:    domain.StatusHealthy,
		LatencyMs: float64(time.Since(start).Microseconds()) / 1000,
	}
	if err != nil {
		check.Status = domain.StatusUnhealthy
		check.Error = err.Error()
	}
	return check
}
