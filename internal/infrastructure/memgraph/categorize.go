package memgraph

import (
	"context"
	"sort"

	"codegraph-backend/internal/domain/entity"
	"codegraph-backend/internal/domain/relationship"
	"codegraph-backend/internal/repository"
)

// Categorize computes entry points, hubs and leaves on demand over the
// calls-typed degree of every node. Categories are not mutually exclusive;
// each list is ordered by ascending id so paging windows stay stable.
func (s *Store) Categorize(ctx context.Context, hubThreshold int) (repository.Categories, error) {
	if err := ctx.Err(); err != nil {
		return repository.Categories{}, err
	}
	if hubThreshold < 1 {
		hubThreshold = 1
	}

	snap := s.takeSnapshot(true, true)
	cats := repository.Categories{
		EntryPoints: []*entity.Node{},
		Hubs:        []*entity.Node{},
		Leaves:      []*entity.Node{},
	}

	callDegree := func(rels []*relationship.Relationship) int {
		n := 0
		for _, rel := range rels {
			if rel.Type == relationship.TypeCalls {
				n++
			}
		}
		return n
	}

	for _, id := range snap.sortedNodeIDs() {
		if err := ctx.Err(); err != nil {
			return repository.Categories{}, err
		}
		callers := callDegree(snap.in[id])
		callees := callDegree(snap.out[id])

		if callers == 0 && callees >= 1 {
			cats.EntryPoints = append(cats.EntryPoints, snap.nodes[id].Clone())
		}
		if callees == 0 && callers >= 1 {
			cats.Leaves = append(cats.Leaves, snap.nodes[id].Clone())
		}
		if callers+callees >= hubThreshold {
			cats.Hubs = append(cats.Hubs, snap.nodes[id].Clone())
		}
	}
	return cats, nil
}

// Seams enumerates every cross-language edge, annotated with the endpoint
// languages and ordered by (sourceLanguage, targetLanguage, sourceId).
func (s *Store) Seams(ctx context.Context) ([]repository.SeamEdge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := s.takeSnapshot(true, false)
	seams := []repository.SeamEdge{}
	for _, id := range snap.sortedNodeIDs() {
		for _, rel := range snap.out[id] {
			if !rel.IsSeam {
				continue
			}
			src := snap.nodes[rel.SourceID]
			dst := snap.nodes[rel.TargetID]
			seams = append(seams, repository.SeamEdge{
				Relationship:   rel.Clone(),
				SourceLanguage: src.Language,
				TargetLanguage: dst.Language,
			})
		}
	}

	sort.SliceStable(seams, func(i, j int) bool {
		a, b := seams[i], seams[j]
		if a.SourceLanguage != b.SourceLanguage {
			return a.SourceLanguage < b.SourceLanguage
		}
		if a.TargetLanguage != b.TargetLanguage {
			return a.TargetLanguage < b.TargetLanguage
		}
		if a.Relationship.SourceID != b.Relationship.SourceID {
			return a.Relationship.SourceID < b.Relationship.SourceID
		}
		if a.Relationship.TargetID != b.Relationship.TargetID {
			return a.Relationship.TargetID < b.Relationship.TargetID
		}
		return a.Relationship.Type < b.Relationship.Type
	})
	return seams, nil
}

// Subgraph returns the induced subgraph discovered by a BFS of all edge
// types from nodeID, bounded by depth and truncated at limit nodes in
// discovery order. Edges are included when both endpoints made the cut.
func (s *Store) Subgraph(ctx context.Context, nodeID string, depth, limit int) (repository.Subgraph, error) {
	if err := ctx.Err(); err != nil {
		return repository.Subgraph{}, err
	}
	if depth < 0 {
		depth = 0
	}

	snap := s.takeSnapshot(true, false)
	if _, ok := snap.nodes[nodeID]; !ok {
		return repository.Subgraph{Nodes: []*entity.Node{}, Relationships: []*relationship.Relationship{}}, nil
	}

	included := map[string]struct{}{nodeID: {}}
	order := []string{nodeID}
	frontier := []string{nodeID}
	truncated := false

	for d := 1; d <= depth && len(frontier) > 0 && !truncated; d++ {
		if err := ctx.Err(); err != nil {
			return repository.Subgraph{}, err
		}
		var next []string
		for _, id := range frontier {
			for _, rel := range snap.out[id] {
				child := rel.TargetID
				if _, seen := included[child]; seen {
					continue
				}
				if limit > 0 && len(order) >= limit {
					truncated = true
					break
				}
				included[child] = struct{}{}
				order = append(order, child)
				next = append(next, child)
			}
			if truncated {
				break
			}
		}
		frontier = next
	}

	sub := repository.Subgraph{
		Nodes:         make([]*entity.Node, 0, len(order)),
		Relationships: []*relationship.Relationship{},
		Truncated:     truncated,
	}
	for _, id := range order {
		sub.Nodes = append(sub.Nodes, snap.nodes[id].Clone())
	}
	for _, id := range order {
		for _, rel := range snap.out[id] {
			if _, ok := included[rel.TargetID]; !ok {
				continue
			}
			sub.Relationships = append(sub.Relationships, rel.Clone())
		}
	}
	return sub, nil
}
