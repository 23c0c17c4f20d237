package memgraph

import (
	"context"
	"sort"

	"codegraph-backend/internal/domain/entity"
	"codegraph-backend/internal/domain/relationship"
	"codegraph-backend/internal/errors"
	"codegraph-backend/internal/repository"
)

// BFS walks outgoing edges breadth-first from startID and groups the
// discovered nodes by depth 0..maxDepth. Seam edges are skipped unless
// includeSeams is set. An absent start node yields an empty result.
func (s *Store) BFS(ctx context.Context, startID string, maxDepth int, includeSeams bool) ([]repository.TraversalLevel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if maxDepth < 0 {
		maxDepth = 0
	}

	snap := s.takeSnapshot(true, false)
	start, ok := snap.nodes[startID]
	if !ok {
		return []repository.TraversalLevel{}, nil
	}

	levels := []repository.TraversalLevel{{Depth: 0, Nodes: []*entity.Node{start.Clone()}}}
	visited := map[string]struct{}{startID: {}}
	frontier := []string{startID}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var next []string
		var nodes []*entity.Node
		for _, id := range frontier {
			for _, rel := range snap.out[id] {
				if rel.IsSeam && !includeSeams {
					continue
				}
				child := rel.TargetID
				if _, seen := visited[child]; seen {
					continue
				}
				visited[child] = struct{}{}
				next = append(next, child)
				nodes = append(nodes, snap.nodes[child].Clone())
			}
		}
		if len(nodes) > 0 {
			levels = append(levels, repository.TraversalLevel{Depth: depth, Nodes: nodes})
		}
		frontier = next
	}
	return levels, nil
}

// DFS walks outgoing edges depth-first in pre-order and groups nodes by
// their discovery depth, with the same seam and cycle semantics as BFS.
func (s *Store) DFS(ctx context.Context, startID string, maxDepth int, includeSeams bool) ([]repository.TraversalLevel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if maxDepth < 0 {
		maxDepth = 0
	}

	snap := s.takeSnapshot(true, false)
	if _, ok := snap.nodes[startID]; !ok {
		return []repository.TraversalLevel{}, nil
	}

	grouped := make(map[int][]*entity.Node)
	visited := make(map[string]struct{})

	var walk func(id string, depth int) error
	walk = func(id string, depth int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		visited[id] = struct{}{}
		grouped[depth] = append(grouped[depth], snap.nodes[id].Clone())
		if depth == maxDepth {
			return nil
		}
		for _, rel := range snap.out[id] {
			if rel.IsSeam && !includeSeams {
				continue
			}
			if _, seen := visited[rel.TargetID]; seen {
				continue
			}
			if err := walk(rel.TargetID, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(startID, 0); err != nil {
		return nil, err
	}

	levels := make([]repository.TraversalLevel, 0, len(grouped))
	for depth := 0; depth <= maxDepth; depth++ {
		if nodes, ok := grouped[depth]; ok {
			levels = append(levels, repository.TraversalLevel{Depth: depth, Nodes: nodes})
		}
	}
	return levels, nil
}

// CallChain finds the shortest path over calls edges from startID to
// targetID, or to the nearest terminal sink (a node with no outgoing calls
// edges in the traversal-visible graph) when targetID is empty. Among paths
// of equal length the lexicographically smallest wins. maxDepth bounds the
// number of edges in the path.
func (s *Store) CallChain(ctx context.Context, startID, targetID string, followSeams bool, maxDepth int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if maxDepth < 0 {
		maxDepth = 0
	}

	snap := s.takeSnapshot(true, false)
	if _, ok := snap.nodes[startID]; !ok {
		return nil, errors.Newf(errors.KindNotFound, "start node %q not found", startID)
	}

	callsOut := func(id string) []*relationship.Relationship {
		var out []*relationship.Relationship
		for _, rel := range snap.out[id] {
			if rel.Type != relationship.TypeCalls {
				continue
			}
			if rel.IsSeam && !followSeams {
				continue
			}
			out = append(out, rel)
		}
		return out
	}
	isGoal := func(id string) bool {
		if targetID != "" {
			return id == targetID
		}
		return len(callsOut(id)) == 0
	}

	// Level-synchronous BFS keeping, for every node, the lexicographically
	// smallest path that reaches it at its first (shortest) level.
	best := map[string][]string{startID: {startID}}
	current := []string{startID}

	for depth := 0; ; depth++ {
		var winner []string
		for _, id := range current {
			if isGoal(id) && (winner == nil || lessPath(best[id], winner)) {
				winner = best[id]
			}
		}
		if winner != nil {
			return winner, nil
		}
		if depth == maxDepth {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		next := make(map[string][]string)
		for _, id := range current {
			for _, rel := range callsOut(id) {
				child := rel.TargetID
				if _, seen := best[child]; seen {
					continue
				}
				cand := append(append([]string(nil), best[id]...), child)
				if prev, ok := next[child]; !ok || lessPath(cand, prev) {
					next[child] = cand
				}
			}
		}
		if len(next) == 0 {
			break
		}
		current = current[:0]
		for child, path := range next {
			best[child] = path
			current = append(current, child)
		}
		sort.Strings(current)
	}

	if targetID != "" {
		return nil, errors.Newf(errors.KindNotFound, "no call chain from %q to %q within depth %d", startID, targetID, maxDepth)
	}
	return nil, errors.Newf(errors.KindNotFound, "no call chain from %q to a terminal sink within depth %d", startID, maxDepth)
}

func lessPath(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// Callers returns the one-hop neighbours that call nodeID, each with the
// connecting edge's type, metadata and seam flag. Absent nodes yield an
// empty result.
func (s *Store) Callers(ctx context.Context, nodeID string) ([]repository.Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := s.takeSnapshot(false, true)
	return neighbors(snap.in[nodeID], snap, func(r *relationship.Relationship) string { return r.SourceID }), nil
}

// Callees returns the one-hop neighbours called by nodeID.
func (s *Store) Callees(ctx context.Context, nodeID string) ([]repository.Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := s.takeSnapshot(true, false)
	return neighbors(snap.out[nodeID], snap, func(r *relationship.Relationship) string { return r.TargetID }), nil
}

func neighbors(rels []*relationship.Relationship, snap *snapshot, pick func(*relationship.Relationship) string) []repository.Neighbor {
	out := make([]repository.Neighbor, 0, len(rels))
	for _, rel := range rels {
		if rel.Type != relationship.TypeCalls {
			continue
		}
		n := snap.nodes[pick(rel)]
		clone := rel.Clone()
		out = append(out, repository.Neighbor{
			Node:         n.Clone(),
			EdgeType:     clone.Type,
			EdgeMetadata: clone.Metadata,
			IsSeam:       clone.IsSeam,
		})
	}
	return out
}

// References returns the deduplicated source nodes of every edge, of any
// type, whose target node's name matches symbol. Results are ordered by
// source id.
func (s *Store) References(ctx context.Context, symbol string) ([]*entity.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := s.takeSnapshot(false, true)
	seen := make(map[string]struct{})
	var ids []string
	for _, targetID := range snap.sortedNodeIDs() {
		if snap.nodes[targetID].Name != symbol {
			continue
		}
		for _, rel := range snap.in[targetID] {
			if _, dup := seen[rel.SourceID]; dup {
				continue
			}
			seen[rel.SourceID] = struct{}{}
			ids = append(ids, rel.SourceID)
		}
	}
	sort.Strings(ids)

	nodes := make([]*entity.Node, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, snap.nodes[id].Clone())
	}
	return nodes, nil
}
