package memgraph

import (
	"context"
	"sort"
	"strings"

	"codegraph-backend/internal/domain/entity"
	"codegraph-backend/internal/repository"
)

// Match ranks, best first. Exact and case-insensitive-exact are separate
// ranks; prefix and substring match case-insensitively.
const (
	rankExact = iota
	rankFoldExact
	rankPrefix
	rankSubstring
)

type searchHit struct {
	node *entity.Node
	rank int
}

// SearchByName returns up to limit nodes whose name matches q, ranked
// exact > case-insensitive exact > prefix > substring, ties broken by
// ascending file then line then id. Optional language and kind filters
// apply before ranking.
func (s *Store) SearchByName(ctx context.Context, q, language string, kind entity.Kind, limit int) ([]*entity.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q == "" {
		return []*entity.Node{}, nil
	}
	if limit <= 0 {
		limit = repository.DefaultPageSize
	}
	language = strings.ToLower(language)
	folded := strings.ToLower(q)

	s.mu.RLock()
	hits := make([]searchHit, 0, 16)
	for _, n := range s.nodes {
		if language != "" && n.Language != language {
			continue
		}
		if kind != "" && n.Kind != kind {
			continue
		}
		rank, ok := rankName(n.Name, q, folded)
		if !ok {
			continue
		}
		hits = append(hits, searchHit{node: n, rank: rank})
	}
	s.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.rank != b.rank {
			return a.rank < b.rank
		}
		if a.node.File != b.node.File {
			return a.node.File < b.node.File
		}
		if a.node.Line != b.node.Line {
			return a.node.Line < b.node.Line
		}
		return a.node.ID < b.node.ID
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]*entity.Node, len(hits))
	for i, h := range hits {
		out[i] = h.node.Clone()
	}
	return out, nil
}

func rankName(name, q, folded string) (int, bool) {
	switch {
	case name == q:
		return rankExact, true
	case strings.EqualFold(name, q):
		return rankFoldExact, true
	case strings.HasPrefix(strings.ToLower(name), folded):
		return rankPrefix, true
	case strings.Contains(strings.ToLower(name), folded):
		return rankSubstring, true
	}
	return 0, false
}
