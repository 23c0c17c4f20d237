package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainevents "codegraph-backend/internal/domain/events"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := OpenInMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestArchiveWriteAndReplay(t *testing.T) {
	a := openTestArchive(t)

	for i := uint64(1); i <= 10; i++ {
		evt := domainevents.NewAnalysisStarted("batch")
		evt.EventID = i
		require.NoError(t, a.Write(evt))
	}

	var ids []uint64
	require.NoError(t, a.Replay(0, func(evt domainevents.ChangeEvent) error {
		ids = append(ids, evt.EventID)
		return nil
	}))
	require.Len(t, ids, 10)
	for i, id := range ids {
		assert.Equal(t, uint64(i+1), id)
	}

	ids = nil
	require.NoError(t, a.Replay(7, func(evt domainevents.ChangeEvent) error {
		ids = append(ids, evt.EventID)
		return nil
	}))
	assert.Equal(t, []uint64{8, 9, 10}, ids)
}

func TestArchiveLastID(t *testing.T) {
	a := openTestArchive(t)

	last, err := a.LastID()
	require.NoError(t, err)
	assert.Zero(t, last)

	evt := domainevents.NewAnalysisStarted("batch")
	evt.EventID = 42
	require.NoError(t, a.Write(evt))

	last, err = a.LastID()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), last)
}

func TestArchivePreservesPayload(t *testing.T) {
	a := openTestArchive(t)

	evt := domainevents.NewAnalysisFailed("batch-1", "parser_error", "analyzer exited 1")
	evt.EventID = 1
	require.NoError(t, a.Write(evt))

	var got domainevents.ChangeEvent
	require.NoError(t, a.Replay(0, func(e domainevents.ChangeEvent) error {
		got = e
		return nil
	}))
	assert.Equal(t, domainevents.TypeAnalysisFailed, got.Type)
	assert.Equal(t, "batch-1", got.EntityID)
	assert.Equal(t, "parser_error", got.Data["reason"])
}
