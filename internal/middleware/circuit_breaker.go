package middleware

import (
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"codegraph-backend/pkg/api"
)

// CircuitBreakerConfig tunes the admin endpoint breaker.
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultCircuitBreakerConfig returns the stock settings: half-open after
// 60s, trip at 80% failures over at least 5 requests.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// CircuitBreaker guards a handler: 5xx responses count as failures, and
// while the circuit is open requests are rejected with 503 without reaching
// the handler.
func CircuitBreaker(config CircuitBreakerConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= config.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, err := cb.Execute(func() (any, error) {
				sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
				next.ServeHTTP(sw, r)
				if sw.status >= 500 {
					return nil, http.ErrAbortHandler
				}
				return nil, nil
			})

			switch err {
			case nil:
				// Response already written by the handler.
			case gobreaker.ErrOpenState, gobreaker.ErrTooManyRequests:
				api.ErrorStatus(w, http.StatusServiceUnavailable,
					"internal", "service temporarily unavailable", "circuit open")
			case http.ErrAbortHandler:
				// Handler wrote its own 5xx; already counted as a failure.
			default:
				api.ErrorStatus(w, http.StatusInternalServerError, "internal", "internal error", "")
			}
		})
	}
}
