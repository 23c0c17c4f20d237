// Package dto defines the HTTP request and response shapes of the graph
// API. Requests carry validator tags; responses embed the shared
// executionTimeMs envelope.
package dto

import (
	"time"

	"codegraph-backend/internal/domain/entity"
	"codegraph-backend/internal/domain/relationship"
	"codegraph-backend/internal/repository"
)

// TraverseRequest is the POST /api/graph/traverse body.
type TraverseRequest struct {
	StartID      string `json:"startId" validate:"required"`
	Kind         string `json:"kind" validate:"required,oneof=bfs dfs"`
	MaxDepth     int    `json:"maxDepth" validate:"omitempty,min=1,max=100"`
	IncludeSeams bool   `json:"includeSeams"`
}

// SubgraphRequest is the POST /api/graph/subgraph body.
type SubgraphRequest struct {
	NodeID string `json:"nodeId" validate:"required"`
	Depth  int    `json:"depth" validate:"omitempty,min=1,max=100"`
	Limit  int    `json:"limit" validate:"omitempty,min=1,max=10000"`
}

// Timing is embedded in every query response.
type Timing struct {
	ExecutionTimeMs float64 `json:"executionTimeMs"`
}

// NewTiming converts an elapsed duration to the wire representation.
func NewTiming(elapsed time.Duration) Timing {
	return Timing{ExecutionTimeMs: float64(elapsed.Microseconds()) / 1000}
}

type StatsResponse struct {
	Stats repository.Stats `json:"stats"`
	Timing
}

type NodeResponse struct {
	Node *entity.Node `json:"node"`
	Timing
}

type SearchResponse struct {
	Results []*entity.Node `json:"results"`
	Count   int            `json:"count"`
	Timing
}

type TraverseResponse struct {
	StartID string                      `json:"startId"`
	Kind    string                      `json:"kind"`
	Levels  []repository.TraversalLevel `json:"levels"`
	Timing
}

type CallChainResponse struct {
	StartID string   `json:"startId"`
	Target  string   `json:"target,omitempty"`
	Chain   []string `json:"chain"`
	Timing
}

type NeighborsResponse struct {
	Symbol string                                          `json:"symbol"`
	Result repository.PaginatedResult[repository.Neighbor] `json:"result"`
	Timing
}

type ReferencesResponse struct {
	Symbol string                                   `json:"symbol"`
	Result repository.PaginatedResult[*entity.Node] `json:"result"`
	Timing
}

type CategoryResponse struct {
	Category string                                   `json:"category"`
	Result   repository.PaginatedResult[*entity.Node] `json:"result"`
	Timing
}

type SeamsResponse struct {
	Result repository.PaginatedResult[repository.SeamEdge] `json:"result"`
	Timing
}

type SubgraphResponse struct {
	NodeID        string                       `json:"nodeId"`
	Nodes         []*entity.Node               `json:"nodes"`
	Relationships []*relationship.Relationship `json:"relationships"`
	Truncated     bool                         `json:"truncated"`
	Timing
}

// ReanalyzeResponse acknowledges an accepted re-analysis batch.
type ReanalyzeResponse struct {
	BatchID string `json:"batchId"`
	Status  string `json:"status"`
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status         string `json:"status"`
	RedisReachable bool   `json:"redisReachable"`
	GraphReady     bool   `json:"graphReady"`
}
