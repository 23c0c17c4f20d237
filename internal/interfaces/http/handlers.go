// Package http exposes the graph API over REST plus the health and metrics
// endpoints. All query responses carry executionTimeMs; errors follow the
// shared {"error":{kind,message}} shape.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"codegraph-backend/internal/application/dto"
	"codegraph-backend/internal/application/queries"
	"codegraph-backend/internal/domain/entity"
	"codegraph-backend/internal/errors"
	"codegraph-backend/internal/repository"
	"codegraph-backend/pkg/api"
)

// Pinger reports whether the Redis fan-out target is reachable. A nil
// Pinger means Redis is not configured.
type Pinger interface {
	Ping(ctx context.Context) bool
}

// Readiness reports whether at least one analysis batch has completed.
type Readiness interface {
	Ready() bool
}

// Handler serves the graph API.
type Handler struct {
	queries   *queries.Service
	readiness Readiness
	redis     Pinger
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewHandler creates the API handler. redis may be nil.
func NewHandler(qs *queries.Service, readiness Readiness, redis Pinger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		queries:   qs,
		readiness: readiness,
		redis:     redis,
		validate:  validator.New(),
		logger:    logger,
	}
}

// Health reports process liveness plus the readiness of its collaborators.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := dto.HealthResponse{Status: "ok"}
	if h.redis != nil {
		resp.RedisReachable = h.redis.Ping(r.Context())
	}
	if h.readiness != nil {
		resp.GraphReady = h.readiness.Ready()
	}
	api.Success(w, http.StatusOK, resp)
}

// Stats serves GET /api/graph/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	stats, err := h.queries.Stats(r.Context())
	if err != nil {
		api.Error(w, err)
		return
	}
	api.Success(w, http.StatusOK, dto.StatsResponse{Stats: stats, Timing: dto.NewTiming(time.Since(started))})
}

// GetNode serves GET /api/graph/nodes/{id}. The id is the full remainder
// of the path because canonical ids embed file paths.
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	node, err := h.queries.GetNode(r.Context(), chi.URLParam(r, "*"))
	if err != nil {
		api.Error(w, err)
		return
	}
	api.Success(w, http.StatusOK, dto.NodeResponse{Node: node, Timing: dto.NewTiming(time.Since(started))})
}

// Search serves GET /api/graph/nodes/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	q := r.URL.Query()
	limit := intQuery(q.Get("limit"), 0)

	var kind entity.Kind
	if raw := q.Get("kind"); raw != "" {
		kind = entity.ParseKind(raw)
	}
	results, err := h.queries.Search(r.Context(), q.Get("q"), q.Get("language"), kind, limit)
	if err != nil {
		api.Error(w, err)
		return
	}
	api.Success(w, http.StatusOK, dto.SearchResponse{
		Results: results,
		Count:   len(results),
		Timing:  dto.NewTiming(time.Since(started)),
	})
}

// Traverse serves POST /api/graph/traverse.
func (h *Handler) Traverse(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req dto.TraverseRequest
	if !h.decode(w, r, &req) {
		return
	}
	levels, err := h.queries.Traverse(r.Context(), queries.TraverseParams{
		StartID:      req.StartID,
		Kind:         req.Kind,
		MaxDepth:     req.MaxDepth,
		IncludeSeams: req.IncludeSeams,
	})
	if err != nil {
		api.Error(w, err)
		return
	}
	api.Success(w, http.StatusOK, dto.TraverseResponse{
		StartID: req.StartID,
		Kind:    req.Kind,
		Levels:  levels,
		Timing:  dto.NewTiming(time.Since(started)),
	})
}

// defaultCallChainDepth bounds call-chain searches when the request omits
// maxDepth; it matches the traverse request's depth ceiling.
const defaultCallChainDepth = 100

// CallChain serves GET /api/graph/call-chain/{startId}.
func (h *Handler) CallChain(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	q := r.URL.Query()
	startID := chi.URLParam(r, "*")
	target := q.Get("target")

	chain, err := h.queries.CallChain(r.Context(), queries.CallChainParams{
		StartID:     startID,
		TargetID:    target,
		FollowSeams: q.Get("followSeams") == "true",
		MaxDepth:    intQuery(q.Get("maxDepth"), defaultCallChainDepth),
	})
	if err != nil {
		api.Error(w, err)
		return
	}
	api.Success(w, http.StatusOK, dto.CallChainResponse{
		StartID: startID,
		Target:  target,
		Chain:   chain,
		Timing:  dto.NewTiming(time.Since(started)),
	})
}

// Query serves GET /api/graph/query/{op} for callers, callees, references.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	q := r.URL.Query()
	symbol := q.Get("symbol")
	page := pageFromQuery(q.Get("offset"), q.Get("limit"))

	switch op := chi.URLParam(r, "op"); op {
	case "callers", "callees":
		hop := h.queries.Callers
		if op == "callees" {
			hop = h.queries.Callees
		}
		result, err := hop(r.Context(), symbol, page)
		if err != nil {
			api.Error(w, err)
			return
		}
		api.Success(w, http.StatusOK, dto.NeighborsResponse{
			Symbol: symbol,
			Result: result,
			Timing: dto.NewTiming(time.Since(started)),
		})
	case "references":
		result, err := h.queries.References(r.Context(), symbol, page)
		if err != nil {
			api.Error(w, err)
			return
		}
		api.Success(w, http.StatusOK, dto.ReferencesResponse{
			Symbol: symbol,
			Result: result,
			Timing: dto.NewTiming(time.Since(started)),
		})
	default:
		api.Error(w, errors.Newf(errors.KindInvalidIdentifier, "unknown query operation %q", op))
	}
}

// Categories serves GET /api/graph/categories/{category}.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	q := r.URL.Query()
	category := chi.URLParam(r, "category")

	result, err := h.queries.Categorize(r.Context(), category, pageFromQuery(q.Get("offset"), q.Get("limit")))
	if err != nil {
		api.Error(w, err)
		return
	}
	api.Success(w, http.StatusOK, dto.CategoryResponse{
		Category: category,
		Result:   result,
		Timing:   dto.NewTiming(time.Since(started)),
	})
}

// Seams serves GET /api/graph/seams.
func (h *Handler) Seams(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	q := r.URL.Query()

	result, err := h.queries.Seams(r.Context(), pageFromQuery(q.Get("offset"), q.Get("limit")))
	if err != nil {
		api.Error(w, err)
		return
	}
	api.Success(w, http.StatusOK, dto.SeamsResponse{
		Result: result,
		Timing: dto.NewTiming(time.Since(started)),
	})
}

// Subgraph serves POST /api/graph/subgraph.
func (h *Handler) Subgraph(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req dto.SubgraphRequest
	if !h.decode(w, r, &req) {
		return
	}
	sub, err := h.queries.Subgraph(r.Context(), req.NodeID, req.Depth, req.Limit)
	if err != nil {
		api.Error(w, err)
		return
	}
	api.Success(w, http.StatusOK, dto.SubgraphResponse{
		NodeID:        req.NodeID,
		Nodes:         sub.Nodes,
		Relationships: sub.Relationships,
		Truncated:     sub.Truncated,
		Timing:        dto.NewTiming(time.Since(started)),
	})
}

// Reanalyze serves POST /api/graph/admin/reanalyze. The response is sent as
// soon as the new batch has begun.
func (h *Handler) Reanalyze(w http.ResponseWriter, r *http.Request) {
	batchID, _, err := h.queries.ForceReanalysis(r.Context())
	if err != nil {
		api.Error(w, err)
		return
	}
	api.Success(w, http.StatusAccepted, dto.ReanalyzeResponse{BatchID: batchID, Status: "started"})
}

// decode unmarshals and validates a request body, writing the error
// response itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		api.Error(w, errors.Wrap(err, errors.KindInvalidIdentifier, "invalid request body"))
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		api.Error(w, errors.New(errors.KindInvalidIdentifier, err.Error()))
		return false
	}
	return true
}

func intQuery(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func pageFromQuery(offset, limit string) repository.Pagination {
	return repository.Pagination{
		Offset: intQuery(offset, 0),
		Limit:  intQuery(limit, 0),
	}
}
