package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"invoice-api/internal/domain"
	"invoice-api/internal/service"
	"invoice-api/internal/service/identity"
	"invoice-api/pkg/logger"
)

// DefaultMaxInspectBytes caps how much of a body the scanner reads
const DefaultMaxInspectBytes = 1 << 20

// ThreatInspect scans the URL and JSON body of each request. It is
// advisory: findings are logged, counted and stored in the request context,
// and the request always proceeds.
func ThreatInspect(inspector service.ThreatInspector, extractor *identity.Extractor, observer service.DecisionObserver, maxBytes int64, logger *logger.Logger) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxInspectBytes
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			findings := inspector.Inspect(domain.InspectRequest{
				Identifier: callerIdentifier(r, extractor),
				Method:     r.Method,
				URL:        r.URL.RequestURI(),
				Body:       readJSONBody(r, maxBytes),
			})

			if findings.HasIssues {
				if observer != nil {
					observer.ObserveFindings(findings)
				}
				logger.WithFields(map[string]interface{}{
					"request_id": RequestIDFromContext(r.Context()),
					"method":     r.Method,
					"path":       r.URL.Path,
					"risk_level": string(findings.RiskLevel),
					"issues":     findings.Issues,
				}).Warn("Suspicious request")
			}

			ctx := context.WithValue(r.Context(), FindingsContextKey, findings)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FindingsFromContext returns the scan result stored by ThreatInspect
func FindingsFromContext(ctx context.Context) (domain.Findings, bool) {
	findings, ok := ctx.Value(FindingsContextKey).(domain.Findings)
	return findings, ok
}

// readJSONBody decodes up to maxBytes of a JSON body and restores r.Body so
// handlers can read it again. Non-JSON, oversized or malformed bodies yield
// nil and are not inspected.
func readJSONBody(r *http.Request, maxBytes int64) interface{} {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	if !strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "json") {
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	rest := r.Body
	r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(data), rest), Closer: rest}
	if err != nil || int64(len(data)) > maxBytes {
		return nil
	}

	var body interface{}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil
	}
	return body
}

type readCloser struct {
	io.Reader
	io.Closer
}
