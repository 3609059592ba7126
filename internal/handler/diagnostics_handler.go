package handler

import (
	"net/http"
	"time"

	"invoice-api/internal/container"
	"invoice-api/internal/domain"
	"invoice-api/pkg/errors"
)

// DiagnosticsHandler exposes the governance state as JSON
type DiagnosticsHandler struct {
	container *container.Container
}

// NewDiagnosticsHandler creates a new diagnostics handler
func NewDiagnosticsHandler(container *container.Container) *DiagnosticsHandler {
	return &DiagnosticsHandler{
		container: container,
	}
}

// CacheDiagnostics lists the in-process stores
type CacheDiagnostics struct {
	Users     *domain.CacheStats    `json:"users"`
	RateLimit domain.RateLimitStats `json:"ratelimit"`
}

// Cache handles GET /api/diagnostics/cache
func (h *DiagnosticsHandler) Cache(w http.ResponseWriter, r *http.Request) {
	services := h.container.Services

	response := CacheDiagnostics{RateLimit: services.Limiter.Stats()}
	if services.Users != nil {
		stats := services.Users.Stats()
		response.Users = &stats
	}

	writeData(w, response, h.container.GetLogger())
}

// Metrics handles GET /api/diagnostics/metrics?window=5m. Without a
// window the health window is used.
func (h *DiagnosticsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	var window time.Duration
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			writeErrorResponse(w, r, errors.NewValidationError("Invalid window", map[string]interface{}{
				"window": raw,
				"hint":   "use a positive duration such as 30s, 5m or 1h",
			}), logger)
			return
		}
		window = parsed
	}

	writeData(w, h.container.Services.Metrics.GetStats(window), logger)
}

// Insights handles GET /api/diagnostics/insights
func (h *DiagnosticsHandler) Insights(w http.ResponseWriter, r *http.Request) {
	writeData(w, h.container.Services.Metrics.GetInsights(), h.container.GetLogger())
}

// Threats handles GET /api/diagnostics/threats
func (h *DiagnosticsHandler) Threats(w http.ResponseWriter, r *http.Request) {
	writeData(w, h.container.Services.Threats.GetReport(), h.container.GetLogger())
}
