// Package events implements the CDC event bus: the bounded append-only
// journal that assigns event ids and serves late-joiner catch-up, and the
// broadcaster that fans published events out to registered taps without
// blocking mutators.
package events

import (
	"sync"

	domainevents "codegraph-backend/internal/domain/events"
	"codegraph-backend/internal/errors"
)

// DefaultRetention is the default maximum number of journaled events.
const DefaultRetention = 100000

// Journal is the append-only CDC log. It assigns monotonically increasing
// event ids and retains the most recent `retention` events in a ring.
type Journal struct {
	mu        sync.Mutex
	ring      []domainevents.ChangeEvent
	head      int // index of the oldest retained event
	size      int
	retention int
	lastID    uint64
}

// NewJournal creates a journal retaining at most retention events.
func NewJournal(retention int) *Journal {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Journal{
		ring:      make([]domainevents.ChangeEvent, retention),
		retention: retention,
	}
}

// Append assigns the next event id, stores the event, and returns the
// stamped copy. Append completes before Publish returns to its caller, so
// journal order always equals mutation order.
func (j *Journal) Append(evt domainevents.ChangeEvent) domainevents.ChangeEvent {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.lastID++
	evt.EventID = j.lastID

	tail := (j.head + j.size) % j.retention
	j.ring[tail] = evt
	if j.size < j.retention {
		j.size++
	} else {
		j.head = (j.head + 1) % j.retention
	}
	return evt
}

// LastID returns the most recently assigned event id (0 before any append).
func (j *Journal) LastID() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastID
}

// Len returns the number of retained events.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.size
}

// From returns every retained event with id > lastSeenID, in id order.
// When events after lastSeenID have already been evicted the consumer has
// outrun retention and must reconcile externally: From returns lag_exceeded
// and no events.
func (j *Journal) From(lastSeenID uint64) ([]domainevents.ChangeEvent, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if lastSeenID >= j.lastID {
		return nil, nil
	}
	oldest := j.lastID - uint64(j.size) + 1
	if j.size == 0 {
		oldest = j.lastID + 1
	}
	if lastSeenID+1 < oldest {
		return nil, errors.Newf(errors.KindLagExceeded,
			"events %d..%d evicted, journal starts at %d", lastSeenID+1, oldest-1, oldest)
	}

	count := int(j.lastID - lastSeenID)
	out := make([]domainevents.ChangeEvent, 0, count)
	start := j.size - count
	for i := start; i < j.size; i++ {
		out = append(out, j.ring[(j.head+i)%j.retention])
	}
	return out, nil
}
