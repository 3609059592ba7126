// Package identity derives the per-caller key that rate limits and threat
// ledgers are keyed by.
package identity

import (
	"net"
	"net/http"
	"strings"
	"unicode/utf8"

	"invoice-api/internal/domain"
)

// MaxUserAgentLength is how much of the user agent goes into an anonymous key
const MaxUserAgentLength = 50

// proxyHeaders are checked in order of preference
var proxyHeaders = []string{
	"Cf-Connecting-Ip",
	"X-Forwarded-For",
	"X-Real-Ip",
	"X-Client-Ip",
}

// Extractor builds caller identifiers
type Extractor struct {
	trustProxyHeaders bool
}

// NewExtractor creates an extractor. With trustProxyHeaders unset only the
// connection address is used for anonymous callers.
func NewExtractor(trustProxyHeaders bool) *Extractor {
	return &Extractor{trustProxyHeaders: trustProxyHeaders}
}

// Extract returns "user:<id>" for authenticated callers and
// "ip:<address>:<user agent prefix>" for everyone else.
func (e *Extractor) Extract(req domain.RequestInfo, explicitID string) string {
	if id := strings.TrimSpace(explicitID); id != "" {
		return "user:" + id
	}

	return "ip:" + e.ClientIP(req) + ":" + truncate(req.Header("User-Agent"), MaxUserAgentLength)
}

// ClientIP resolves the caller address from proxy headers or the connection
func (e *Extractor) ClientIP(req domain.RequestInfo) string {
	if e.trustProxyHeaders {
		for _, header := range proxyHeaders {
			value := strings.TrimSpace(req.Header(header))
			if value == "" {
				continue
			}
			// X-Forwarded-For can contain multiple IPs, the first is the client
			if first, _, found := strings.Cut(value, ","); found {
				value = strings.TrimSpace(first)
			}
			if value != "" {
				return value
			}
		}
	}

	addr := strings.TrimSpace(req.RemoteAddr)
	if addr == "" {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return addr
	}
	return host
}

// FromHTTP reduces an *http.Request to the governance request descriptor
func FromHTTP(r *http.Request) domain.RequestInfo {
	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		headers[http.CanonicalHeaderKey(name)] = strings.Join(values, ", ")
	}

	return domain.RequestInfo{
		Headers:    headers,
		URL:        r.URL.RequestURI(),
		Method:     r.Method,
		RemoteAddr: r.RemoteAddr,
	}
}

// truncate cuts s to at most n runes without splitting a UTF-8 sequence
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
