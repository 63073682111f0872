// Package httpmw holds the small cross-cutting HTTP middleware shared by the
// gateway and edge processes: access logging, panic recovery, and request
// IDs.
package httpmw

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/laurikarhu/streamcdn/internal/metrics"
)

type contextKey string

// RequestIDContextKey retrieves the per-request ID stamped by WithRequestID.
const RequestIDContextKey contextKey = "request_id"

// responseWriter wraps http.ResponseWriter to capture the status code and
// byte count written, for access logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// WithRequestID stamps every request with a fresh UUID, available to
// downstream handlers via RequestID and echoed on the response as
// X-Request-Id.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), RequestIDContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the request ID stamped by WithRequestID, or "" if absent.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDContextKey).(string)
	return id
}

// Logging logs every request's method, path, status, byte count, and
// duration, and — when registry is non-nil — observes RequestsTotal and
// RequestDuration keyed by the matched route pattern. CapabilityInvalid
// (403) responses are logged at debug — adversarial input against signed
// URLs is expected traffic, not an operational problem.
func Logging(registry *metrics.Registry, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		route := routeLabel(r)

		if registry != nil {
			registry.RequestsTotal.WithLabelValues(route, strconv.Itoa(wrapped.statusCode)).Inc()
			registry.RequestDuration.WithLabelValues(route).Observe(duration.Seconds())
		}

		event := log.Info()
		switch {
		case wrapped.statusCode == http.StatusForbidden:
			event = log.Debug()
		case wrapped.statusCode >= 500:
			event = log.Error()
		case wrapped.statusCode >= 400:
			event = log.Warn()
		}

		event.
			Str("request_id", RequestID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Int64("bytes", wrapped.written).
			Dur("duration", duration).
			Str("remote", r.RemoteAddr).
			Msg("http request")
	})
}

// routeLabel returns the matched mux pattern for a request (e.g.
// "GET /origin/{resource_path...}") so Prometheus labels stay low-
// cardinality, falling back to the raw path for requests a ServeMux never
// matched to a pattern.
func routeLabel(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return r.URL.Path
}

// Recovery recovers from handler panics, logging them and returning 500
// rather than crashing the process.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().
					Interface("error", err).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Msg("panic recovered")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
