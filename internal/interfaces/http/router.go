package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"codegraph-backend/internal/infrastructure/observability"
	"codegraph-backend/internal/interfaces/ws"
	"codegraph-backend/internal/middleware"
)

// RouterConfig carries the router's collaborators and settings.
type RouterConfig struct {
	Handler     *Handler
	WS          *ws.Server
	Metrics     *observability.Collector
	Logger      *zap.Logger
	CORSOrigins []string
}

// NewRouter assembles the full HTTP surface.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger, cfg.Metrics))
	r.Use(middleware.Recovery(logger))

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", cfg.Handler.Health)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api/graph", func(r chi.Router) {
		r.Get("/stats", cfg.Handler.Stats)
		r.Get("/nodes/search", cfg.Handler.Search)
		// Canonical ids embed file paths, so the id spans path segments.
		r.Get("/nodes/*", cfg.Handler.GetNode)
		r.Post("/traverse", cfg.Handler.Traverse)
		r.Get("/call-chain/*", cfg.Handler.CallChain)
		r.Get("/query/{op}", cfg.Handler.Query)
		r.Get("/categories/{category}", cfg.Handler.Categories)
		r.Get("/seams", cfg.Handler.Seams)
		r.Post("/subgraph", cfg.Handler.Subgraph)

		r.Group(func(r chi.Router) {
			r.Use(middleware.CircuitBreaker(middleware.DefaultCircuitBreakerConfig("admin"), logger))
			r.Post("/admin/reanalyze", cfg.Handler.Reanalyze)
		})
	})

	if cfg.WS != nil {
		r.Get("/ws/events", cfg.WS.HandleEvents)
		r.Get("/ws/events/filtered", cfg.WS.HandleFiltered)
	}

	return r
}
