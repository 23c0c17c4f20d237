package broadcast

import (
	"sync"
	"time"

	domainevents "codegraph-backend/internal/domain/events"
)

// State is a subscriber's liveness state.
type State int32

const (
	StateConnecting State = iota // catch-up replay in progress
	StateLive                    // receiving new publications
	StateDraining                // disconnect scheduled, queue flushing
	StateClosed                  // terminal
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Control frame names delivered alongside events.
const (
	ControlLagExceeded = "lag_exceeded"
	ControlHeartbeat   = "heartbeat"
)

// Envelope is one item on a subscriber queue: either a CDC event or a
// control frame.
type Envelope struct {
	Event   *domainevents.ChangeEvent
	Control string
}

// Subscriber is one consumer of the CDC stream. The hub enqueues; exactly
// one session endpoint dequeues from Events(). All queue sends happen under
// mu with a state check, so closing the queue is race-free.
type Subscriber struct {
	ID string

	mu       sync.Mutex
	state    State
	filter   map[domainevents.Type]struct{} // nil admits every type
	cursor   uint64                         // highest event id enqueued or skipped
	acked    uint64                         // highest id the client acknowledged
	queue    chan Envelope
	draining chan struct{} // closed on transition to draining
	once     sync.Once
}

func newSubscriber(id string, filter []domainevents.Type, lastSeenID uint64, capacity int) *Subscriber {
	return &Subscriber{
		ID:       id,
		state:    StateConnecting,
		filter:   filterSet(filter),
		cursor:   lastSeenID,
		queue:    make(chan Envelope, capacity),
		draining: make(chan struct{}),
	}
}

func filterSet(types []domainevents.Type) map[domainevents.Type]struct{} {
	if len(types) == 0 {
		return nil
	}
	set := make(map[domainevents.Type]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return set
}

// Events is the subscriber's outbound queue. It is closed when the
// subscriber is removed; buffered envelopes remain receivable after close.
func (s *Subscriber) Events() <-chan Envelope {
	return s.queue
}

// Draining is closed when the hub schedules this subscriber's disconnect.
func (s *Subscriber) Draining() <-chan struct{} {
	return s.draining
}

// State returns the current liveness state.
func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetFilter atomically replaces the event-type whitelist. An empty list
// admits all types.
func (s *Subscriber) SetFilter(types []domainevents.Type) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = filterSet(types)
}

// Ack records the client's delivery cursor.
func (s *Subscriber) Ack(lastSeenID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lastSeenID > s.acked {
		s.acked = lastSeenID
	}
}

// Acked returns the client's acknowledged cursor.
func (s *Subscriber) Acked() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acked
}

func (s *Subscriber) cursorID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// offer attempts a non-blocking enqueue of a live publication. The cursor
// advances for every admitted id whether or not the filter passes, which
// also dedups the replay/live handoff race. Returns overflow=true when the
// queue was full and the subscriber moved to draining.
func (s *Subscriber) offer(evt domainevents.ChangeEvent) (enqueued, overflow bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateLive {
		return false, false
	}
	if evt.EventID <= s.cursor {
		return false, false
	}
	s.cursor = evt.EventID
	if !s.admitsLocked(evt.Type) {
		return false, false
	}
	e := evt
	select {
	case s.queue <- Envelope{Event: &e}:
		return true, false
	default:
		s.toDrainingLocked()
		return false, true
	}
}

// offerReplay enqueues a journaled event during catch-up, waiting for queue
// space while the session endpoint drains. Returns false when the
// subscriber closed or the wait deadline expired.
func (s *Subscriber) offerReplay(evt domainevents.ChangeEvent, deadline time.Duration) bool {
	limit := time.Now().Add(deadline)
	for {
		s.mu.Lock()
		if s.state == StateClosed || s.state == StateDraining {
			s.mu.Unlock()
			return false
		}
		if evt.EventID <= s.cursor {
			s.mu.Unlock()
			return true
		}
		if !s.admitsLocked(evt.Type) {
			s.cursor = evt.EventID
			s.mu.Unlock()
			return true
		}
		e := evt
		select {
		case s.queue <- Envelope{Event: &e}:
			s.cursor = evt.EventID
			s.mu.Unlock()
			return true
		default:
		}
		s.mu.Unlock()
		if time.Now().After(limit) {
			return false
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// sendControl enqueues a control envelope, dropping it if the queue is full.
func (s *Subscriber) sendControl(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	select {
	case s.queue <- Envelope{Control: name}:
		return true
	default:
		return false
	}
}

func (s *Subscriber) admitsLocked(t domainevents.Type) bool {
	if s.filter == nil {
		return true
	}
	_, ok := s.filter[t]
	return ok
}

func (s *Subscriber) setLive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateConnecting {
		s.state = StateLive
	}
}

func (s *Subscriber) toDrainingLocked() {
	if s.state == StateDraining || s.state == StateClosed {
		return
	}
	s.state = StateDraining
	close(s.draining)
}

// startDraining moves the subscriber to draining from outside the hub's
// publish path (idle timeout, client close).
func (s *Subscriber) startDraining() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toDrainingLocked()
}

// close transitions to the terminal state and closes the queue. Buffered
// envelopes stay receivable; no further sends can happen because every send
// checks state under mu.
func (s *Subscriber) close() {
	s.once.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.toDrainingLocked()
		s.state = StateClosed
		close(s.queue)
	})
}

// queuedLen reports the number of undelivered envelopes.
func (s *Subscriber) queuedLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
