package service

import (
	"context"
	"time"

	"invoice-api/internal/domain"
)

// AuthService defines the interface for authentication operations
type AuthService interface {
	// ValidateToken validates a bearer token and returns its claims
	ValidateToken(ctx context.Context, token string) (*domain.AuthClaims, error)
}

// RateLimiter admits or denies requests per (category, identifier)
type RateLimiter interface {
	Check(category, identifier string) domain.Decision
	Stats() domain.RateLimitStats
}

// MetricsRecorder receives telemetry samples
type MetricsRecorder interface {
	RecordRequest(sample domain.RequestSample)
	RecordDBQuery(sample domain.QuerySample)
	RecordError(sample domain.ErrorSample)
}

// MetricsReporter exposes aggregated telemetry
type MetricsReporter interface {
	GetStats(window time.Duration) domain.MetricsStats
	GetInsights() domain.Insights
	HealthCheck() domain.MetricsHealth
}

// ThreatInspector scans requests for suspicious input
type ThreatInspector interface {
	Inspect(req domain.InspectRequest) domain.Findings
	GetReport() domain.ThreatReport
	HealthCheck() domain.ThreatHealth
}

// UserDirectory resolves an external identity to a user record
type UserDirectory interface {
	Resolve(ctx context.Context, externalID string) (*domain.User, error)
	Stats() domain.CacheStats
}

// DecisionObserver counts governance verdicts for exposition
type DecisionObserver interface {
	ObserveDecision(d domain.Decision)
	ObserveFindings(f domain.Findings)
}
