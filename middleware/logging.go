package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bracketops/tournament-core/metrics"
)

// redactedKeys are never echoed into logs, in any casing.
var redactedKeys = []string{"password", "token", "secret", "apikey", "api_key"}

// Logging emits one structured line per request and feeds the Prometheus
// request counters. Metrics are labeled with the chi route pattern rather
// than the raw path to keep cardinality bounded.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)

			metrics.HTTPRequests.WithLabelValues(r.Method, route, fmt.Sprintf("%d", status)).Inc()
			metrics.HTTPDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Duration("duration", elapsed),
				slog.String("request_id", RequestIDFromContext(r.Context())),
			}
			if q := RedactQuery(r.URL.Query()); q != "" {
				attrs = append(attrs, slog.String("query", q))
			}
			if principal := PrincipalFromContext(r.Context()); principal != nil {
				attrs = append(attrs, slog.Int("tenant", principal.UserID))
			}

			switch {
			case status >= 500:
				logger.Error("request", attrs...)
			case status >= 400:
				logger.Warn("request", attrs...)
			default:
				logger.Info("request", attrs...)
			}
		})
	}
}

// RedactQuery renders query parameters with credential-bearing values
// masked. Websocket handshakes carry the JWT in the query string, so raw
// queries must never reach the log.
func RedactQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}

	masked := make(url.Values, len(values))
	for key, vals := range values {
		if isRedactedKey(key) {
			masked[key] = []string{"[REDACTED]"}
			continue
		}
		masked[key] = vals
	}
	return masked.Encode()
}

func isRedactedKey(key string) bool {
	lower := strings.ToLower(key)
	for _, sensitive := range redactedKeys {
		if lower == sensitive {
			return true
		}
	}
	return false
}
