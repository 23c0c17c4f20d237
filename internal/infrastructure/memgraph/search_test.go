package memgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegraph-backend/internal/domain/entity"
)

func TestSearchByName(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	exact := mkNode(t, entity.KindFunction, "p1.py", "Parse", 10, "python")
	folded := mkNode(t, entity.KindFunction, "p2.py", "parse", 4, "python")
	prefixed := mkNode(t, entity.KindFunction, "p3.ts", "parseFile", 7, "typescript")
	substr := mkNode(t, entity.KindClass, "p4.py", "Unparsed", 2, "python")
	miss := mkNode(t, entity.KindFunction, "p5.py", "render", 1, "python")
	for _, n := range []*entity.Node{exact, folded, prefixed, substr, miss} {
		mustUpsert(t, s, n)
	}

	t.Run("rank order exact then folded then prefix then substring", func(t *testing.T) {
		got, err := s.SearchByName(ctx, "Parse", "", "", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{exact.ID, folded.ID, prefixed.ID, substr.ID}, nodeIDs(got))
	})

	t.Run("language filter", func(t *testing.T) {
		got, err := s.SearchByName(ctx, "parse", "typescript", "", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{prefixed.ID}, nodeIDs(got))
	})

	t.Run("kind filter", func(t *testing.T) {
		got, err := s.SearchByName(ctx, "parse", "", entity.KindClass, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{substr.ID}, nodeIDs(got))
	})

	t.Run("limit truncates after ranking", func(t *testing.T) {
		got, err := s.SearchByName(ctx, "parse", "", "", 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, folded.ID, got[0].ID, "the exact match for the folded query wins")
	})

	t.Run("empty query matches nothing", func(t *testing.T) {
		got, err := s.SearchByName(ctx, "", "", "", 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestSearchTieBreaks(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	late := mkNode(t, entity.KindFunction, "b.py", "run", 9, "python")
	early := mkNode(t, entity.KindFunction, "b.py", "run", 3, "python")
	otherFile := mkNode(t, entity.KindFunction, "a.py", "run", 50, "python")
	mustUpsert(t, s, late)
	mustUpsert(t, s, early)
	mustUpsert(t, s, otherFile)

	got, err := s.SearchByName(ctx, "run", "", "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{otherFile.ID, early.ID, late.ID}, nodeIDs(got),
		"equal rank orders by file, then line")
}
