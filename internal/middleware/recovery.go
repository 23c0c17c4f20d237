package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"codegraph-backend/pkg/api"
)

// Recovery converts panics into 500 responses with a logged stack trace.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.String("requestId", GetRequestID(r.Context())),
						zap.Any("panic", rec),
						zap.ByteString("stack", debug.Stack()))
					if w.Header().Get("Content-Type") == "" {
						api.ErrorStatus(w, http.StatusInternalServerError, "internal", "internal error", "")
					}
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
