package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainevents "codegraph-backend/internal/domain/events"
	cdc "codegraph-backend/internal/infrastructure/events"
)

func newTestBus(retention int) (*cdc.Broadcaster, *Hub) {
	journal := cdc.NewJournal(retention)
	bus := cdc.NewBroadcaster(journal, nil, nil)
	hub := NewHub(journal, Options{QueueCapacity: 8, DrainDeadline: 200 * time.Millisecond}, nil, nil)
	bus.RegisterTap(hub)
	return bus, hub
}

func publishN(bus *cdc.Broadcaster, n int) {
	for i := 0; i < n; i++ {
		bus.Publish(domainevents.NewAnalysisStarted("batch"))
	}
}

// collect receives envelopes until want events arrived or the timeout hit.
func collect(t *testing.T, sub *Subscriber, want int, timeout time.Duration) []Envelope {
	t.Helper()
	var got []Envelope
	deadline := time.After(timeout)
	for len(got) < want {
		select {
		case env, ok := <-sub.Events():
			if !ok {
				return got
			}
			got = append(got, env)
		case <-deadline:
			t.Fatalf("timed out after %d/%d envelopes", len(got), want)
		}
	}
	return got
}

func TestLateJoinCatchUp(t *testing.T) {
	bus, hub := newTestBus(1000)
	hub.opts.QueueCapacity = 64

	publishN(bus, 50)

	sub, err := hub.Subscribe("s1", nil, 0)
	require.NoError(t, err)

	got := collect(t, sub, 50, 2*time.Second)
	for i, env := range got {
		require.NotNil(t, env.Event, "envelope %d must be an event", i)
		assert.Equal(t, uint64(i+1), env.Event.EventID)
	}

	// Wait for the live flip before the next publish so delivery is direct.
	require.Eventually(t, func() bool { return sub.State() == StateLive },
		time.Second, 5*time.Millisecond)

	publishN(bus, 1)
	got = collect(t, sub, 1, time.Second)
	assert.Equal(t, uint64(51), got[0].Event.EventID)
}

func TestLagBeyondRetention(t *testing.T) {
	bus, hub := newTestBus(10)

	publishN(bus, 100)

	sub, err := hub.Subscribe("s1", nil, 0)
	require.NoError(t, err)

	got := collect(t, sub, 1, time.Second)
	assert.Equal(t, ControlLagExceeded, got[0].Control)
	assert.Nil(t, got[0].Event)

	require.Eventually(t, func() bool { return sub.State() == StateLive },
		time.Second, 5*time.Millisecond)

	// No replay: the next envelope is the brand new event.
	publishN(bus, 1)
	got = collect(t, sub, 1, time.Second)
	require.NotNil(t, got[0].Event)
	assert.Equal(t, uint64(101), got[0].Event.EventID)
}

func TestFilterAdmitsOnlyListedTypes(t *testing.T) {
	bus, hub := newTestBus(100)

	sub, err := hub.Subscribe("s1", []domainevents.Type{domainevents.TypeAnalysisCompleted}, 0)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sub.State() == StateLive },
		time.Second, 5*time.Millisecond)

	bus.Publish(domainevents.NewAnalysisStarted("b"))
	bus.Publish(domainevents.NewAnalysisProgress("b", domainevents.Progress{Nodes: 1}))
	bus.Publish(domainevents.NewAnalysisCompleted("b", domainevents.Progress{Nodes: 1}))

	got := collect(t, sub, 1, time.Second)
	assert.Equal(t, domainevents.TypeAnalysisCompleted, got[0].Event.Type)
	assert.Equal(t, uint64(3), got[0].Event.EventID)
	assert.Zero(t, sub.queuedLen())
}

func TestSlowSubscriberIsIsolated(t *testing.T) {
	bus, hub := newTestBus(1000)

	slow, err := hub.Subscribe("slow", nil, 0)
	require.NoError(t, err)
	fast, err := hub.Subscribe("fast", nil, 0)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return slow.State() == StateLive && fast.State() == StateLive
	}, time.Second, 5*time.Millisecond)

	// Nobody reads slow's queue (capacity 8): publish enough to overflow it.
	done := make(chan struct{})
	go func() {
		publishN(bus, 20)
		close(done)
	}()

	// Publish must never block on the slow subscriber.
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// The fast subscriber still gets everything.
	got := collect(t, fast, 20, 2*time.Second)
	assert.Equal(t, uint64(20), got[len(got)-1].Event.EventID)

	// The slow one is disconnected within bounded time.
	require.Eventually(t, func() bool { return hub.Count() == 1 },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, StateClosed, slow.State())
}

func TestSubscriberOrderIsMonotonic(t *testing.T) {
	bus, hub := newTestBus(1000)
	hub.opts.QueueCapacity = 256

	// Subscribe mid-stream so delivery straddles the replay/live handoff.
	publishN(bus, 30)
	sub, err := hub.Subscribe("s1", nil, 0)
	require.NoError(t, err)
	publishN(bus, 30)

	require.Eventually(t, func() bool { return sub.State() == StateLive },
		2*time.Second, 5*time.Millisecond)
	publishN(bus, 10)

	got := collect(t, sub, 70, 2*time.Second)
	for i, env := range got {
		require.NotNil(t, env.Event)
		assert.Equal(t, uint64(i+1), env.Event.EventID, "position %d", i)
	}
}

func TestUnsubscribeReleasesQueue(t *testing.T) {
	_, hub := newTestBus(100)

	sub, err := hub.Subscribe("s1", nil, 0)
	require.NoError(t, err)
	require.Equal(t, 1, hub.Count())

	hub.Unsubscribe("s1")
	assert.Zero(t, hub.Count())
	assert.Equal(t, StateClosed, sub.State())

	_, ok := <-sub.Events()
	assert.False(t, ok, "queue must be closed")

	hub.Unsubscribe("s1") // idempotent
}

func TestDuplicateSessionRejected(t *testing.T) {
	_, hub := newTestBus(100)

	_, err := hub.Subscribe("s1", nil, 0)
	require.NoError(t, err)
	_, err = hub.Subscribe("s1", nil, 0)
	assert.Error(t, err)
}

func TestDrainAllFlushesAndRemoves(t *testing.T) {
	bus, hub := newTestBus(100)

	sub, err := hub.Subscribe("s1", nil, 0)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sub.State() == StateLive },
		time.Second, 5*time.Millisecond)
	publishN(bus, 3)

	go hub.DrainAll(time.Second)

	got := collect(t, sub, 3, time.Second)
	assert.Equal(t, uint64(3), got[2].Event.EventID)
	require.Eventually(t, func() bool { return hub.Count() == 0 },
		2*time.Second, 10*time.Millisecond)
}
