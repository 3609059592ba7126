package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"invoice-api/internal/config"
	"invoice-api/internal/service"
	"invoice-api/internal/service/identity"
	"invoice-api/pkg/errors"
	"invoice-api/pkg/logger"
)

// Classify picks the rate limit category for a request
func Classify(r *http.Request) string {
	path := strings.ToLower(r.URL.Path)

	switch {
	case strings.HasPrefix(path, "/api/auth/") || path == "/api/auth":
		return config.CategoryAuth
	case strings.Contains(path, "search") || r.URL.Query().Has("q") || r.URL.Query().Has("search"):
		return config.CategorySearch
	}

	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return config.CategoryMutation
	}

	return config.CategoryDefault
}

// RateLimit enforces the fixed window limits. It must run after
// OptionalAuth so authenticated callers are keyed by user id.
func RateLimit(limiter service.RateLimiter, extractor *identity.Extractor, observer service.DecisionObserver, logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier := callerIdentifier(r, extractor)
			decision := limiter.Check(Classify(r), identifier)

			if observer != nil {
				observer.ObserveDecision(decision)
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if !decision.Allowed {
				retryAfter := errors.RetryAfterSeconds(decision.RetryAfterSeconds)
				h.Set("Retry-After", strconv.Itoa(retryAfter))

				logger.WithFields(map[string]interface{}{
					"identifier":  identifier,
					"category":    decision.Category,
					"limit":       decision.Limit,
					"retry_after": retryAfter,
					"path":        r.URL.Path,
				}).Warn("Rate limit exceeded")

				writeErrorResponse(w, r, errors.NewRateLimitError(
					"Too many requests, please try again later.",
					decision.RetryAfterSeconds,
				), logger)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func callerIdentifier(r *http.Request, extractor *identity.Extractor) string {
	explicitID := ""
	if claims, ok := ClaimsFromContext(r.Context()); ok {
		explicitID = claims.Sub
	}
	return extractor.Extract(identity.FromHTTP(r), explicitID)
}
