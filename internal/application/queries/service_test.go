package queries

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegraph-backend/internal/domain/entity"
	"codegraph-backend/internal/domain/relationship"
	"codegraph-backend/internal/errors"
	"codegraph-backend/internal/infrastructure/memgraph"
	"codegraph-backend/internal/repository"
)

// fixture: two "handle" overloads called by distinct callers, plus a
// cross-language edge.
//
//	function:api.go:main:1 ──calls──> function:api.go:handle:10
//	function:cli.go:run:5  ──calls──> function:worker.py:handle:20  (seam)
//	function:api.go:handle:10 ──calls──> function:db.go:query:30
func newFixture(t *testing.T) *Service {
	t.Helper()
	store := memgraph.New(nil, nil)
	ctx := context.Background()

	nodes := []*entity.Node{
		{ID: "function:api.go:main:1", Name: "main", Kind: entity.KindFunction, Language: "go", File: "api.go", Line: 1, EndLine: 3},
		{ID: "function:api.go:handle:10", Name: "handle", Kind: entity.KindFunction, Language: "go", File: "api.go", Line: 10, EndLine: 20},
		{ID: "function:cli.go:run:5", Name: "run", Kind: entity.KindFunction, Language: "go", File: "cli.go", Line: 5, EndLine: 9},
		{ID: "function:worker.py:handle:20", Name: "handle", Kind: entity.KindFunction, Language: "python", File: "worker.py", Line: 20, EndLine: 40},
		{ID: "function:db.go:query:30", Name: "query", Kind: entity.KindFunction, Language: "go", File: "db.go", Line: 30, EndLine: 35},
	}
	for _, n := range nodes {
		_, err := store.UpsertNode(ctx, n)
		require.NoError(t, err)
	}
	edges := []*relationship.Relationship{
		{SourceID: "function:api.go:main:1", TargetID: "function:api.go:handle:10", Type: relationship.TypeCalls},
		{SourceID: "function:cli.go:run:5", TargetID: "function:worker.py:handle:20", Type: relationship.TypeCalls},
		{SourceID: "function:api.go:handle:10", TargetID: "function:db.go:query:30", Type: relationship.TypeCalls},
	}
	for _, e := range edges {
		_, err := store.UpsertRelationship(ctx, e)
		require.NoError(t, err)
	}
	return NewService(store, nil, Options{HubThreshold: 2}, nil)
}

func TestCallersResolvesSymbolAcrossOverloads(t *testing.T) {
	svc := newFixture(t)

	// "handle" names two nodes in different files; callers is the union.
	res, err := svc.Callers(context.Background(), "handle", repository.Pagination{})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "function:api.go:main:1", res.Items[0].Node.ID)
	assert.Equal(t, "function:cli.go:run:5", res.Items[1].Node.ID)
	assert.Equal(t, 2, res.TotalMatching)
}

func TestCallersAcceptsCanonicalID(t *testing.T) {
	svc := newFixture(t)

	res, err := svc.Callers(context.Background(), "function:api.go:handle:10", repository.Pagination{})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "function:api.go:main:1", res.Items[0].Node.ID)
}

func TestCalleesFollowsOutgoingCalls(t *testing.T) {
	svc := newFixture(t)

	res, err := svc.Callees(context.Background(), "handle", repository.Pagination{})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "function:db.go:query:30", res.Items[0].Node.ID)
}

func TestUnknownSymbolIsNotFound(t *testing.T) {
	svc := newFixture(t)

	_, err := svc.Callers(context.Background(), "nonexistent", repository.Pagination{})
	assert.True(t, errors.Is(err, errors.KindNotFound))

	_, err = svc.Callers(context.Background(), "", repository.Pagination{})
	assert.True(t, errors.Is(err, errors.KindInvalidIdentifier))
}

func TestTraverseSelectsAlgorithm(t *testing.T) {
	svc := newFixture(t)
	ctx := context.Background()

	levels, err := svc.Traverse(ctx, TraverseParams{StartID: "function:api.go:main:1", MaxDepth: 3})
	require.NoError(t, err)
	require.Len(t, levels, 3)
	assert.Equal(t, 0, levels[0].Depth)

	_, err = svc.Traverse(ctx, TraverseParams{StartID: "function:api.go:main:1", Kind: "dfs", MaxDepth: 3})
	require.NoError(t, err)

	_, err = svc.Traverse(ctx, TraverseParams{StartID: "function:api.go:main:1", Kind: "random"})
	assert.True(t, errors.Is(err, errors.KindInvalidIdentifier))
}

func TestCategorizeReturnsOneCategory(t *testing.T) {
	svc := newFixture(t)
	ctx := context.Background()

	entry, err := svc.Categorize(ctx, CategoryEntryPoints, repository.Pagination{})
	require.NoError(t, err)
	ids := make([]string, len(entry.Items))
	for i, n := range entry.Items {
		ids[i] = n.ID
	}
	assert.Contains(t, ids, "function:api.go:main:1")
	assert.Contains(t, ids, "function:cli.go:run:5")

	_, err = svc.Categorize(ctx, "villains", repository.Pagination{})
	assert.True(t, errors.Is(err, errors.KindInvalidIdentifier))
}

func TestSeamsArePaginated(t *testing.T) {
	svc := newFixture(t)

	res, err := svc.Seams(context.Background(), repository.Pagination{Limit: 10})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "function:cli.go:run:5", res.Items[0].Relationship.SourceID)
	assert.Equal(t, "go", res.Items[0].SourceLanguage)
	assert.Equal(t, "python", res.Items[0].TargetLanguage)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	svc := newFixture(t)

	_, err := svc.Search(context.Background(), "", "", "", 10)
	assert.True(t, errors.Is(err, errors.KindInvalidIdentifier))

	nodes, err := svc.Search(context.Background(), "handle", "python", "", 10)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "function:worker.py:handle:20", nodes[0].ID)
}

func TestReferencesPaginates(t *testing.T) {
	store := memgraph.New(nil, nil)
	ctx := context.Background()
	target := &entity.Node{ID: "function:lib.go:tgt:1", Name: "tgt", Kind: entity.KindFunction, Language: "go", File: "lib.go", Line: 1, EndLine: 1}
	_, err := store.UpsertNode(ctx, target)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		src := &entity.Node{
			ID:   fmt.Sprintf("function:u%d.go:use:1", i),
			Name: "use", Kind: entity.KindFunction, Language: "go",
			File: fmt.Sprintf("u%d.go", i), Line: 1, EndLine: 1,
		}
		_, err := store.UpsertNode(ctx, src)
		require.NoError(t, err)
		_, err = store.UpsertRelationship(ctx, &relationship.Relationship{
			SourceID: src.ID, TargetID: target.ID, Type: relationship.TypeReferences,
		})
		require.NoError(t, err)
	}
	svc := NewService(store, nil, Options{}, nil)

	page1, err := svc.References(ctx, "tgt", repository.Pagination{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page1.Items, 2)
	assert.Equal(t, 5, page1.TotalMatching)
	assert.True(t, page1.HasMore)

	page3, err := svc.References(ctx, "tgt", repository.Pagination{Offset: 4, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page3.Items, 1)
	assert.False(t, page3.HasMore)
}

func TestForceReanalysisWithoutRunner(t *testing.T) {
	svc := newFixture(t)

	_, _, err := svc.ForceReanalysis(context.Background())
	assert.True(t, errors.Is(err, errors.KindParserError))
}
