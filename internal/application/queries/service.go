// Package queries is the read-side facade over the graph engine. Every
// operation is a pure read against the store's snapshot discipline, traced
// with an otel span, and paginated where it returns a list.
package queries

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"codegraph-backend/internal/application/ingestion"
	"codegraph-backend/internal/domain/entity"
	"codegraph-backend/internal/errors"
	"codegraph-backend/internal/repository"
)

// Graph is the engine surface the facade reads from.
type Graph interface {
	repository.GraphReader
	repository.Traverser
}

// Options tune facade behaviour.
type Options struct {
	// HubThreshold is the incoming-calls degree at which a node counts as
	// a hub (default 10).
	HubThreshold int
}

func (o Options) withDefaults() Options {
	if o.HubThreshold <= 0 {
		o.HubThreshold = 10
	}
	return o
}

// Service answers graph queries and triggers re-analysis.
type Service struct {
	graph  Graph
	runner *ingestion.Runner
	opts   Options
	tracer trace.Tracer
	logger *zap.Logger
}

// NewService creates the facade. runner may be nil when no analyzer is
// configured; ForceReanalysis then fails with parser_error.
func NewService(graph Graph, runner *ingestion.Runner, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		graph:  graph,
		runner: runner,
		opts:   opts.withDefaults(),
		tracer: otel.Tracer("queries"),
		logger: logger,
	}
}

func (s *Service) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "queries."+name, trace.WithAttributes(attrs...))
}

// Stats returns current graph totals and per-language/kind breakdowns.
func (s *Service) Stats(ctx context.Context) (repository.Stats, error) {
	ctx, span := s.span(ctx, "Stats")
	defer span.End()
	return s.graph.Stats(ctx)
}

// GetNode fetches one node by canonical id.
func (s *Service) GetNode(ctx context.Context, id string) (*entity.Node, error) {
	ctx, span := s.span(ctx, "GetNode", attribute.String("node.id", id))
	defer span.End()
	if _, err := entity.ParseID(id); err != nil {
		return nil, err
	}
	return s.graph.GetNode(ctx, id)
}

// Search ranks name matches: exact, case-insensitive exact, prefix, then
// substring, with optional language and kind narrowing.
func (s *Service) Search(ctx context.Context, q, language string, kind entity.Kind, limit int) ([]*entity.Node, error) {
	ctx, span := s.span(ctx, "Search", attribute.String("query", q))
	defer span.End()
	if q == "" {
		return nil, errors.InvalidIdentifier("empty search query")
	}
	return s.graph.SearchByName(ctx, q, language, kind, limit)
}

// TraverseParams selects a traversal.
type TraverseParams struct {
	StartID      string
	Kind         string // "bfs" | "dfs"
	MaxDepth     int
	IncludeSeams bool
}

// Traverse runs BFS or DFS from a start node, grouped by depth.
func (s *Service) Traverse(ctx context.Context, p TraverseParams) ([]repository.TraversalLevel, error) {
	ctx, span := s.span(ctx, "Traverse",
		attribute.String("start.id", p.StartID),
		attribute.String("kind", p.Kind))
	defer span.End()

	switch p.Kind {
	case "dfs":
		return s.graph.DFS(ctx, p.StartID, p.MaxDepth, p.IncludeSeams)
	case "", "bfs":
		return s.graph.BFS(ctx, p.StartID, p.MaxDepth, p.IncludeSeams)
	default:
		return nil, errors.Newf(errors.KindInvalidIdentifier, "unknown traversal kind %q", p.Kind)
	}
}

// CallChainParams selects a call-chain search.
type CallChainParams struct {
	StartID     string
	TargetID    string // empty = nearest terminal sink
	FollowSeams bool
	MaxDepth    int
}

// CallChain finds the shortest calls-path from start to target.
func (s *Service) CallChain(ctx context.Context, p CallChainParams) ([]string, error) {
	ctx, span := s.span(ctx, "CallChain",
		attribute.String("start.id", p.StartID),
		attribute.String("target.id", p.TargetID))
	defer span.End()
	return s.graph.CallChain(ctx, p.StartID, p.TargetID, p.FollowSeams, p.MaxDepth)
}

// Callers resolves a symbol name through the name index and returns the
// union of callers over every matching node, deduplicated by (node id,
// edge type) and ordered by node id.
func (s *Service) Callers(ctx context.Context, symbol string, page repository.Pagination) (repository.PaginatedResult[repository.Neighbor], error) {
	ctx, span := s.span(ctx, "Callers", attribute.String("symbol", symbol))
	defer span.End()
	return s.neighborsBySymbol(ctx, symbol, s.graph.Callers, page)
}

// Callees is the outgoing counterpart of Callers.
func (s *Service) Callees(ctx context.Context, symbol string, page repository.Pagination) (repository.PaginatedResult[repository.Neighbor], error) {
	ctx, span := s.span(ctx, "Callees", attribute.String("symbol", symbol))
	defer span.End()
	return s.neighborsBySymbol(ctx, symbol, s.graph.Callees, page)
}

func (s *Service) neighborsBySymbol(ctx context.Context, symbol string, hop func(context.Context, string) ([]repository.Neighbor, error), page repository.Pagination) (repository.PaginatedResult[repository.Neighbor], error) {
	var zero repository.PaginatedResult[repository.Neighbor]
	targets, err := s.resolveSymbol(ctx, symbol)
	if err != nil {
		return zero, err
	}

	type dedupKey struct {
		id       string
		edgeType string
	}
	seen := make(map[dedupKey]struct{})
	var all []repository.Neighbor
	for _, target := range targets {
		neighbors, err := hop(ctx, target.ID)
		if err != nil {
			return zero, err
		}
		for _, n := range neighbors {
			k := dedupKey{id: n.Node.ID, edgeType: string(n.EdgeType)}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			all = append(all, n)
		}
	}
	sortNeighbors(all)
	return repository.Paginate(all, page), nil
}

// References returns every node referencing the named symbol, across edge
// types, deduplicated and ordered by source id.
func (s *Service) References(ctx context.Context, symbol string, page repository.Pagination) (repository.PaginatedResult[*entity.Node], error) {
	ctx, span := s.span(ctx, "References", attribute.String("symbol", symbol))
	defer span.End()

	var zero repository.PaginatedResult[*entity.Node]
	if symbol == "" {
		return zero, errors.InvalidIdentifier("empty symbol")
	}
	nodes, err := s.graph.References(ctx, symbol)
	if err != nil {
		return zero, err
	}
	return repository.Paginate(nodes, page), nil
}

// Category names accepted by Categorize.
const (
	CategoryEntryPoints = "entryPoints"
	CategoryHubs        = "hubs"
	CategoryLeaves      = "leaves"
)

// Categorize returns one category of the on-demand node classification.
func (s *Service) Categorize(ctx context.Context, category string, page repository.Pagination) (repository.PaginatedResult[*entity.Node], error) {
	ctx, span := s.span(ctx, "Categorize", attribute.String("category", category))
	defer span.End()

	var zero repository.PaginatedResult[*entity.Node]
	cats, err := s.graph.Categorize(ctx, s.opts.HubThreshold)
	if err != nil {
		return zero, err
	}
	var nodes []*entity.Node
	switch category {
	case CategoryEntryPoints:
		nodes = cats.EntryPoints
	case CategoryHubs:
		nodes = cats.Hubs
	case CategoryLeaves:
		nodes = cats.Leaves
	default:
		return zero, errors.Newf(errors.KindInvalidIdentifier, "unknown category %q", category)
	}
	return repository.Paginate(nodes, page), nil
}

// Seams lists cross-language edges ordered by (sourceLanguage,
// targetLanguage, sourceId).
func (s *Service) Seams(ctx context.Context, page repository.Pagination) (repository.PaginatedResult[repository.SeamEdge], error) {
	ctx, span := s.span(ctx, "Seams")
	defer span.End()

	var zero repository.PaginatedResult[repository.SeamEdge]
	seams, err := s.graph.Seams(ctx)
	if err != nil {
		return zero, err
	}
	return repository.Paginate(seams, page), nil
}

// Subgraph extracts the BFS-bounded induced subgraph around a node.
func (s *Service) Subgraph(ctx context.Context, nodeID string, depth, limit int) (repository.Subgraph, error) {
	ctx, span := s.span(ctx, "Subgraph", attribute.String("node.id", nodeID))
	defer span.End()
	return s.graph.Subgraph(ctx, nodeID, depth, limit)
}

// ForceReanalysis starts a fresh analyzer run and returns the batch id once
// the batch has begun. The returned channel reports the batch outcome.
func (s *Service) ForceReanalysis(ctx context.Context) (string, <-chan error, error) {
	ctx, span := s.span(ctx, "ForceReanalysis")
	defer span.End()

	if s.runner == nil {
		return "", nil, errors.ParserError("no analyzer configured")
	}
	batchID, done, err := s.runner.ForceReanalysis(ctx)
	if err != nil {
		return "", nil, err
	}
	s.logger.Info("re-analysis started", zap.String("batchId", batchID))
	return batchID, done, nil
}

// resolveSymbol maps a symbol to nodes: a canonical id resolves directly,
// anything else goes through the exact-name index.
func (s *Service) resolveSymbol(ctx context.Context, symbol string) ([]*entity.Node, error) {
	if symbol == "" {
		return nil, errors.InvalidIdentifier("empty symbol")
	}
	if _, err := entity.ParseID(symbol); err == nil {
		n, err := s.graph.GetNode(ctx, symbol)
		if err != nil {
			return nil, err
		}
		return []*entity.Node{n}, nil
	}
	nodes, err := s.graph.FindByName(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, errors.Newf(errors.KindNotFound, "symbol %q not found", symbol)
	}
	return nodes, nil
}
