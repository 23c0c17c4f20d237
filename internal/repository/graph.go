// Package repository defines the read and write contracts of the graph
// store plus the shared pagination types. The in-memory engine in
// internal/infrastructure/memgraph is the only implementation; queries and
// ingestion depend on these interfaces, not on the engine.
package repository

import (
	"context"

	"codegraph-backend/internal/domain/entity"
	"codegraph-backend/internal/domain/relationship"
)

// MutationResult reports the observable effect of an upsert.
type MutationResult int

const (
	Unchanged MutationResult = iota
	Added
	Updated
)

func (r MutationResult) String() string {
	switch r {
	case Added:
		return "added"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// Stats summarizes the current graph.
type Stats struct {
	TotalNodes         int            `json:"totalNodes"`
	TotalRelationships int            `json:"totalRelationships"`
	Languages          map[string]int `json:"languages"`
	Kinds              map[string]int `json:"kinds"`
}

// GraphReader is the read-side contract. Implementations must serve each
// call from a consistent snapshot and return defensive copies.
type GraphReader interface {
	GetNode(ctx context.Context, id string) (*entity.Node, error)
	// FindByName returns nodes whose name matches exactly, ordered by id.
	FindByName(ctx context.Context, name string) ([]*entity.Node, error)
	OutgoingEdges(ctx context.Context, id string) ([]*relationship.Relationship, error)
	IncomingEdges(ctx context.Context, id string) ([]*relationship.Relationship, error)
	// SearchByName ranks exact > case-insensitive exact > prefix > substring,
	// ties by ascending file then line.
	SearchByName(ctx context.Context, q, language string, kind entity.Kind, limit int) ([]*entity.Node, error)
	Stats(ctx context.Context) (Stats, error)
}

// GraphWriter is the mutation contract. Every observable state change emits
// exactly one CDC event; Unchanged results emit nothing.
type GraphWriter interface {
	UpsertNode(ctx context.Context, n *entity.Node) (MutationResult, error)
	// RemoveNode deletes the node and all incident edges atomically,
	// returning the number of edges removed. Absent id is a no-op.
	RemoveNode(ctx context.Context, id string) (int, error)
	UpsertRelationship(ctx context.Context, r *relationship.Relationship) (MutationResult, error)
	RemoveRelationship(ctx context.Context, sourceID, targetID string, t relationship.RelType) (bool, error)
}

// TraversalLevel groups the nodes discovered at one depth.
type TraversalLevel struct {
	Depth int            `json:"depth"`
	Nodes []*entity.Node `json:"nodes"`
}

// Neighbor is a one-hop query result: the neighbouring node together with
// the relationship that connects it.
type Neighbor struct {
	Node         *entity.Node         `json:"node"`
	EdgeType     relationship.RelType `json:"edgeType"`
	EdgeMetadata map[string]any       `json:"edgeMetadata,omitempty"`
	IsSeam       bool                 `json:"isSeam"`
}

// SeamEdge is a cross-language edge annotated with endpoint languages.
type SeamEdge struct {
	Relationship   *relationship.Relationship `json:"relationship"`
	SourceLanguage string                     `json:"sourceLanguage"`
	TargetLanguage string                     `json:"targetLanguage"`
}

// Categories holds the on-demand node categorization. Categories are not
// mutually exclusive.
type Categories struct {
	EntryPoints []*entity.Node `json:"entryPoints"`
	Hubs        []*entity.Node `json:"hubs"`
	Leaves      []*entity.Node `json:"leaves"`
}

// Subgraph is a BFS-bounded induced subgraph.
type Subgraph struct {
	Nodes         []*entity.Node               `json:"nodes"`
	Relationships []*relationship.Relationship `json:"relationships"`
	Truncated     bool                         `json:"truncated"`
}

// Traverser is the algorithm library contract. All results are
// deterministic: edge order equals insertion order, node ties break by
// ascending id.
type Traverser interface {
	BFS(ctx context.Context, startID string, maxDepth int, includeSeams bool) ([]TraversalLevel, error)
	DFS(ctx context.Context, startID string, maxDepth int, includeSeams bool) ([]TraversalLevel, error)
	// CallChain finds the shortest calls-path from startID to targetID, or
	// to the nearest terminal sink when targetID is empty. Ties break by
	// lexicographically smallest path. Returns not_found when no path exists.
	CallChain(ctx context.Context, startID, targetID string, followSeams bool, maxDepth int) ([]string, error)
	Callers(ctx context.Context, nodeID string) ([]Neighbor, error)
	Callees(ctx context.Context, nodeID string) ([]Neighbor, error)
	References(ctx context.Context, symbol string) ([]*entity.Node, error)
	Categorize(ctx context.Context, hubThreshold int) (Categories, error)
	Seams(ctx context.Context) ([]SeamEdge, error)
	Subgraph(ctx context.Context, nodeID string, depth, limit int) (Subgraph, error)
}
