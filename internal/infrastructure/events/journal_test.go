package events

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainevents "codegraph-backend/internal/domain/events"
	"codegraph-backend/internal/errors"
)

func analysisEvent(batch string) domainevents.ChangeEvent {
	return domainevents.NewAnalysisStarted(batch)
}

func TestJournalAssignsMonotonicIDs(t *testing.T) {
	j := NewJournal(100)

	for i := 1; i <= 5; i++ {
		stamped := j.Append(analysisEvent(fmt.Sprintf("b%d", i)))
		assert.Equal(t, uint64(i), stamped.EventID)
	}
	assert.Equal(t, uint64(5), j.LastID())
	assert.Equal(t, 5, j.Len())
}

func TestJournalFrom(t *testing.T) {
	j := NewJournal(100)
	for i := 0; i < 50; i++ {
		j.Append(analysisEvent("b"))
	}

	got, err := j.From(0)
	require.NoError(t, err)
	require.Len(t, got, 50)
	for i, evt := range got {
		assert.Equal(t, uint64(i+1), evt.EventID)
	}

	got, err = j.From(47)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(48), got[0].EventID)

	got, err = j.From(50)
	require.NoError(t, err)
	assert.Empty(t, got)

	// Cursor ahead of the journal: nothing to replay.
	got, err = j.From(99)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestJournalEvictionAndLag(t *testing.T) {
	j := NewJournal(10)
	for i := 0; i < 100; i++ {
		j.Append(analysisEvent("b"))
	}
	assert.Equal(t, 10, j.Len())
	assert.Equal(t, uint64(100), j.LastID())

	// Oldest retained id is 91; a cursor at 0 has lost events 1..90.
	_, err := j.From(0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindLagExceeded))

	// A cursor exactly at the eviction boundary still replays cleanly.
	got, err := j.From(90)
	require.NoError(t, err)
	require.Len(t, got, 10)
	assert.Equal(t, uint64(91), got[0].EventID)
	assert.Equal(t, uint64(100), got[9].EventID)

	_, err = j.From(89)
	assert.True(t, errors.Is(err, errors.KindLagExceeded))
}

func TestJournalEmptyFrom(t *testing.T) {
	j := NewJournal(10)
	got, err := j.From(0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBroadcasterFansOutInOrder(t *testing.T) {
	b := NewBroadcaster(NewJournal(100), nil, nil)

	var mu sync.Mutex
	var seen []uint64
	b.RegisterTap(tapFunc{name: "rec", fn: func(evt domainevents.ChangeEvent) {
		mu.Lock()
		seen = append(seen, evt.EventID)
		mu.Unlock()
	}})

	for i := 0; i < 20; i++ {
		b.Publish(analysisEvent("b"))
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 20)
	for i, id := range seen {
		assert.Equal(t, uint64(i+1), id)
	}
}

func TestAsyncTapDropsWhenFull(t *testing.T) {
	started := make(chan struct{})
	block := make(chan struct{})
	drops := 0

	tap := NewAsyncTap("slow", 1, func(domainevents.ChangeEvent) {
		started <- struct{}{}
		<-block
	}, func() { drops++ }, nil)

	tap.Deliver(analysisEvent("a"))
	<-started // worker holds "a"; the buffer is empty again
	tap.Deliver(analysisEvent("b"))
	tap.Deliver(analysisEvent("c")) // buffer full, dropped

	assert.Equal(t, 1, drops)
	close(block)
	<-started // worker picked up "b"
	tap.Close()
}

func TestAsyncTapDeliverAfterCloseIsDiscarded(t *testing.T) {
	delivered := 0
	tap := NewAsyncTap("late", 4, func(domainevents.ChangeEvent) { delivered++ }, nil, nil)

	tap.Deliver(analysisEvent("a"))
	tap.Close()

	// A publisher racing shutdown must not panic on the closed channel.
	tap.Deliver(analysisEvent("b"))
	assert.Equal(t, 1, delivered)
}

type tapFunc struct {
	name string
	fn   func(domainevents.ChangeEvent)
}

func (t tapFunc) Name() string { return t.name }
func (t tapFunc) Deliver(evt domainevents.ChangeEvent) { t.fn(evt) }
