package middleware

import (
	"fmt"
	"net/http"

	"invoice-api/internal/domain"
	"invoice-api/internal/service"
	"invoice-api/pkg/clock"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Telemetry times every request and feeds the metrics aggregator. Server
// errors are also recorded as error samples. Install it outside Recoverer
// and Timeout so the statuses they write are seen. A panic reaching it is
// recorded as a 500 and re-raised.
func Telemetry(recorder service.MetricsRecorder, clk clock.Clock) func(http.Handler) http.Handler {
	if clk == nil {
		clk = clock.NewSystem()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := clk.Now()
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				rvr := recover()

				status := ww.Status()
				switch {
				case rvr != nil:
					status = http.StatusInternalServerError
				case status == 0:
					status = http.StatusOK
				}
				path := routePattern(r)

				recorder.RecordRequest(domain.RequestSample{
					Timestamp:  start,
					Method:     r.Method,
					Path:       path,
					StatusCode: status,
					DurationMs: float64(clk.Now().Sub(start).Microseconds()) / 1000,
					Size:       float64(ww.BytesWritten()),
				})

				switch {
				case rvr != nil:
					recorder.RecordError(domain.ErrorSample{
						Timestamp: start,
						Type:      "panic",
						Message:   fmt.Sprintf("%s %s panicked: %v", r.Method, path, rvr),
						Path:      path,
					})
					panic(rvr)
				case status >= http.StatusInternalServerError:
					recorder.RecordError(domain.ErrorSample{
						Timestamp: start,
						Type:      "http_5xx",
						Message:   fmt.Sprintf("%s %s returned %d", r.Method, path, status),
						Path:      path,
					})
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// routePattern keeps metric labels bounded by using the matched chi route
// instead of the raw path
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
