package memgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegraph-backend/internal/domain/entity"
	"codegraph-backend/internal/domain/relationship"
	"codegraph-backend/internal/errors"
)

func TestBFSSeamVisibility(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	a := mkNode(t, entity.KindFunction, "a.py", "handle", 10, "python")
	b := mkNode(t, entity.KindFunction, "lib.ts", "worker", 3, "typescript")
	mustUpsert(t, s, a)
	mustUpsert(t, s, b)
	mustLink(t, s, a, b, relationship.TypeCalls)

	hidden, err := s.BFS(ctx, a.ID, 1, false)
	require.NoError(t, err)
	require.Len(t, hidden, 1)
	assert.Equal(t, 0, hidden[0].Depth)
	require.Len(t, hidden[0].Nodes, 1)
	assert.Equal(t, a.ID, hidden[0].Nodes[0].ID)

	visible, err := s.BFS(ctx, a.ID, 1, true)
	require.NoError(t, err)
	require.Len(t, visible, 2)
	assert.Equal(t, 1, visible[1].Depth)
	require.Len(t, visible[1].Nodes, 1)
	assert.Equal(t, b.ID, visible[1].Nodes[0].ID)
}

func TestBFS(t *testing.T) {
	ctx := context.Background()

	t.Run("absent start yields empty result", func(t *testing.T) {
		s, _ := newTestStore(t)
		levels, err := s.BFS(ctx, "function:a.py:f:1", 3, true)
		require.NoError(t, err)
		assert.Empty(t, levels)
	})

	t.Run("diamond visits shared node once", func(t *testing.T) {
		s, _ := newTestStore(t)
		root := mkNode(t, entity.KindFunction, "r.py", "root", 1, "python")
		x := mkNode(t, entity.KindFunction, "x.py", "x", 1, "python")
		y := mkNode(t, entity.KindFunction, "y.py", "y", 1, "python")
		z := mkNode(t, entity.KindFunction, "z.py", "z", 1, "python")
		for _, n := range []*entity.Node{root, x, y, z} {
			mustUpsert(t, s, n)
		}
		mustLink(t, s, root, x, relationship.TypeCalls)
		mustLink(t, s, root, y, relationship.TypeCalls)
		mustLink(t, s, x, z, relationship.TypeCalls)
		mustLink(t, s, y, z, relationship.TypeCalls)

		levels, err := s.BFS(ctx, root.ID, 5, true)
		require.NoError(t, err)
		require.Len(t, levels, 3)
		assert.Equal(t, []string{x.ID, y.ID}, nodeIDs(levels[1].Nodes), "edge insertion order")
		assert.Equal(t, []string{z.ID}, nodeIDs(levels[2].Nodes))
	})

	t.Run("cycles terminate", func(t *testing.T) {
		s, _ := newTestStore(t)
		a := mkNode(t, entity.KindFunction, "a.py", "a", 1, "python")
		b := mkNode(t, entity.KindFunction, "b.py", "b", 1, "python")
		mustUpsert(t, s, a)
		mustUpsert(t, s, b)
		mustLink(t, s, a, b, relationship.TypeCalls)
		mustLink(t, s, b, a, relationship.TypeCalls)

		levels, err := s.BFS(ctx, a.ID, 10, true)
		require.NoError(t, err)
		require.Len(t, levels, 2)
	})
}

func TestDFS(t *testing.T) {
	ctx := context.Background()

	t.Run("groups by discovery depth in pre-order", func(t *testing.T) {
		s, _ := newTestStore(t)
		root := mkNode(t, entity.KindFunction, "r.py", "root", 1, "python")
		x := mkNode(t, entity.KindFunction, "x.py", "x", 1, "python")
		y := mkNode(t, entity.KindFunction, "y.py", "y", 1, "python")
		z := mkNode(t, entity.KindFunction, "z.py", "z", 1, "python")
		for _, n := range []*entity.Node{root, x, y, z} {
			mustUpsert(t, s, n)
		}
		mustLink(t, s, root, x, relationship.TypeCalls)
		mustLink(t, s, root, y, relationship.TypeCalls)
		mustLink(t, s, x, z, relationship.TypeCalls)
		mustLink(t, s, y, z, relationship.TypeCalls)

		levels, err := s.DFS(ctx, root.ID, 5, true)
		require.NoError(t, err)
		require.Len(t, levels, 3)
		// z is discovered under x before y is visited, so it lands at depth 2.
		assert.Equal(t, []string{x.ID, y.ID}, nodeIDs(levels[1].Nodes))
		assert.Equal(t, []string{z.ID}, nodeIDs(levels[2].Nodes))
	})

	t.Run("depth bound stops descent", func(t *testing.T) {
		s, _ := newTestStore(t)
		a := mkNode(t, entity.KindFunction, "a.py", "a", 1, "python")
		b := mkNode(t, entity.KindFunction, "b.py", "b", 1, "python")
		c := mkNode(t, entity.KindFunction, "c.py", "c", 1, "python")
		for _, n := range []*entity.Node{a, b, c} {
			mustUpsert(t, s, n)
		}
		mustLink(t, s, a, b, relationship.TypeCalls)
		mustLink(t, s, b, c, relationship.TypeCalls)

		levels, err := s.DFS(ctx, a.ID, 1, true)
		require.NoError(t, err)
		require.Len(t, levels, 2)
		assert.Equal(t, []string{b.ID}, nodeIDs(levels[1].Nodes))
	})
}

// chainFixture is the shortest-path graph: n1→n2, n1→n3, n3→n4, n2→n4,
// n4→n5, all calls. langs optionally overrides per-node languages by name.
func chainFixture(t *testing.T, s *Store, langs map[string]string) map[string]string {
	t.Helper()
	ids := make(map[string]string, 5)
	for i, name := range []string{"n1", "n2", "n3", "n4", "n5"} {
		lang := "python"
		if l, ok := langs[name]; ok {
			lang = l
		}
		n := mkNode(t, entity.KindFunction, "chain.py", name, i+1, lang)
		mustUpsert(t, s, n)
		ids[name] = n.ID
	}
	link := func(src, dst string) {
		_, err := s.UpsertRelationship(context.Background(), &relationship.Relationship{
			SourceID: ids[src], TargetID: ids[dst], Type: relationship.TypeCalls,
		})
		require.NoError(t, err)
	}
	link("n1", "n2")
	link("n1", "n3")
	link("n3", "n4")
	link("n2", "n4")
	link("n4", "n5")
	return ids
}

func TestCallChain(t *testing.T) {
	ctx := context.Background()

	t.Run("shortest path with lexicographic tie-break", func(t *testing.T) {
		s, _ := newTestStore(t)
		ids := chainFixture(t, s, nil)

		path, err := s.CallChain(ctx, ids["n1"], ids["n5"], true, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{ids["n1"], ids["n2"], ids["n4"], ids["n5"]}, path)
	})

	t.Run("empty target walks to the nearest sink", func(t *testing.T) {
		s, _ := newTestStore(t)
		ids := chainFixture(t, s, nil)

		path, err := s.CallChain(ctx, ids["n1"], "", true, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{ids["n1"], ids["n2"], ids["n4"], ids["n5"]}, path)
	})

	t.Run("seam edges are dead ends unless followed", func(t *testing.T) {
		s, _ := newTestStore(t)
		ids := chainFixture(t, s, map[string]string{"n2": "typescript"})

		path, err := s.CallChain(ctx, ids["n1"], ids["n5"], false, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{ids["n1"], ids["n3"], ids["n4"], ids["n5"]}, path,
			"path through the seam endpoint must be avoided")

		path, err = s.CallChain(ctx, ids["n1"], ids["n5"], true, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{ids["n1"], ids["n2"], ids["n4"], ids["n5"]}, path)
	})

	t.Run("unreachable target is not_found", func(t *testing.T) {
		s, _ := newTestStore(t)
		ids := chainFixture(t, s, nil)

		_, err := s.CallChain(ctx, ids["n5"], ids["n1"], true, 10)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.KindNotFound))
	})

	t.Run("depth bound cuts long paths", func(t *testing.T) {
		s, _ := newTestStore(t)
		ids := chainFixture(t, s, nil)

		_, err := s.CallChain(ctx, ids["n1"], ids["n5"], true, 2)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.KindNotFound))
	})

	t.Run("absent start is not_found", func(t *testing.T) {
		s, _ := newTestStore(t)
		_, err := s.CallChain(ctx, "function:a.py:gone:1", "", true, 10)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.KindNotFound))
	})

	t.Run("non-calls edges do not extend chains", func(t *testing.T) {
		s, _ := newTestStore(t)
		ids := chainFixture(t, s, nil)
		extra := mkNode(t, entity.KindModule, "m.py", "m", 99, "python")
		mustUpsert(t, s, extra)
		_, err := s.UpsertRelationship(ctx, &relationship.Relationship{
			SourceID: ids["n5"], TargetID: extra.ID, Type: relationship.TypeReferences,
		})
		require.NoError(t, err)

		path, err := s.CallChain(ctx, ids["n1"], "", true, 10)
		require.NoError(t, err)
		assert.Equal(t, ids["n5"], path[len(path)-1], "n5 stays a sink despite the references edge")
	})
}

func TestCallersCallees(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	a := mkNode(t, entity.KindFunction, "a.py", "a", 1, "python")
	b := mkNode(t, entity.KindFunction, "b.py", "b", 1, "python")
	c := mkNode(t, entity.KindFunction, "c.py", "c", 1, "python")
	d := mkNode(t, entity.KindFunction, "d.py", "d", 1, "python")
	e := mkNode(t, entity.KindModule, "e.py", "e", 1, "python")
	for _, n := range []*entity.Node{a, b, c, d, e} {
		mustUpsert(t, s, n)
	}
	_, err := s.UpsertRelationship(ctx, &relationship.Relationship{
		SourceID: a.ID, TargetID: b.ID, Type: relationship.TypeCalls,
		Metadata: map[string]any{"callSite": 17},
	})
	require.NoError(t, err)
	mustLink(t, s, c, b, relationship.TypeCalls)
	mustLink(t, s, b, d, relationship.TypeCalls)
	mustLink(t, s, b, e, relationship.TypeImports)

	callers, err := s.Callers(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, callers, 2)
	assert.Equal(t, a.ID, callers[0].Node.ID)
	assert.Equal(t, c.ID, callers[1].Node.ID)
	assert.Equal(t, relationship.TypeCalls, callers[0].EdgeType)
	assert.Equal(t, 17, callers[0].EdgeMetadata["callSite"])

	callees, err := s.Callees(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, callees, 1, "imports edge must not appear")
	assert.Equal(t, d.ID, callees[0].Node.ID)

	none, err := s.Callers(ctx, "function:x.py:gone:1")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestReferences(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	w1 := mkNode(t, entity.KindFunction, "a.ts", "worker", 1, "typescript")
	w2 := mkNode(t, entity.KindFunction, "b.ts", "worker", 2, "typescript")
	u1 := mkNode(t, entity.KindFunction, "u1.py", "caller", 1, "python")
	u2 := mkNode(t, entity.KindFunction, "u2.py", "importer", 1, "python")
	for _, n := range []*entity.Node{w1, w2, u1, u2} {
		mustUpsert(t, s, n)
	}
	mustLink(t, s, u1, w1, relationship.TypeCalls)
	mustLink(t, s, u1, w2, relationship.TypeReferences)
	mustLink(t, s, u2, w2, relationship.TypeImports)

	refs, err := s.References(ctx, "worker")
	require.NoError(t, err)
	assert.Equal(t, []string{u1.ID, u2.ID}, nodeIDs(refs), "deduplicated, ordered by id")

	refs, err = s.References(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

// Two stores fed the same mutation sequence must produce identical query
// results regardless of map iteration order.
func TestDeterministicResults(t *testing.T) {
	ctx := context.Background()

	build := func() *Store {
		s, _ := newTestStore(t)
		chainFixture(t, s, map[string]string{"n4": "go", "n5": "typescript"})
		return s
	}
	s1, s2 := build(), build()

	for _, q := range []string{"n", "n1", "N2"} {
		r1, err := s1.SearchByName(ctx, q, "", "", 10)
		require.NoError(t, err)
		r2, err := s2.SearchByName(ctx, q, "", "", 10)
		require.NoError(t, err)
		assert.Equal(t, r1, r2)
	}

	start := "function:chain.py:n1:1"
	b1, err := s1.BFS(ctx, start, 4, true)
	require.NoError(t, err)
	b2, err := s2.BFS(ctx, start, 4, true)
	require.NoError(t, err)
	assert.Equal(t, b1, b2)

	d1, err := s1.DFS(ctx, start, 4, true)
	require.NoError(t, err)
	d2, err := s2.DFS(ctx, start, 4, true)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	sm1, err := s1.Seams(ctx)
	require.NoError(t, err)
	sm2, err := s2.Seams(ctx)
	require.NoError(t, err)
	assert.Equal(t, sm1, sm2)
}

func nodeIDs(nodes []*entity.Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}
