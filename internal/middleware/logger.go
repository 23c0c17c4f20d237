package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"codegraph-backend/internal/infrastructure/observability"
)

// statusWriter captures the response status for logging and metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Logger logs one structured line per request and records request metrics.
// metrics may be nil.
func Logger(logger *zap.Logger, metrics *observability.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			elapsed := time.Since(started)
			logger.Info("http request",
				zap.String("requestId", GetRequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.status),
				zap.Duration("elapsed", elapsed))
			if metrics != nil {
				metrics.ObserveHTTPRequest(r.Method, r.URL.Path, sw.status, elapsed)
			}
		})
	}
}
