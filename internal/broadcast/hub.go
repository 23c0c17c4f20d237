// Package broadcast maintains the set of live CDC subscribers: per-client
// bounded queues, event-type filters, journal catch-up for late joiners,
// and per-subscriber backpressure that never blocks the publish path.
package broadcast

import (
	"sync"
	"time"

	"go.uber.org/zap"

	domainevents "codegraph-backend/internal/domain/events"
	"codegraph-backend/internal/errors"
	cdc "codegraph-backend/internal/infrastructure/events"
	"codegraph-backend/internal/infrastructure/observability"
)

// DefaultQueueCapacity bounds each subscriber's outbound queue.
const DefaultQueueCapacity = 1024

// catchupWait bounds how long a replay waits for queue space before giving
// up on a subscriber that is not draining its socket.
const catchupWait = 10 * time.Second

// Options tune the hub.
type Options struct {
	QueueCapacity int
	// DrainDeadline is how long a draining subscriber gets to flush its
	// queue before the hub removes it.
	DrainDeadline time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = DefaultQueueCapacity
	}
	if o.DrainDeadline <= 0 {
		o.DrainDeadline = 5 * time.Second
	}
	return o
}

// Hub is the broadcast layer between the CDC bus and session endpoints.
// It is registered as a tap on the broadcaster; Deliver is the publish
// path and must stay non-blocking.
type Hub struct {
	journal *cdc.Journal
	opts    Options

	mu   sync.RWMutex
	subs map[string]*Subscriber

	metrics *observability.Collector
	logger  *zap.Logger
}

// NewHub creates the hub over the CDC journal.
func NewHub(journal *cdc.Journal, opts Options, metrics *observability.Collector, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		journal: journal,
		opts:    opts.withDefaults(),
		subs:    make(map[string]*Subscriber),
		metrics: metrics,
		logger:  logger,
	}
}

// Name implements the tap interface.
func (h *Hub) Name() string { return "broadcast-hub" }

// Deliver fans one published event out to every live subscriber whose
// filter admits it. Full queues move the offender to draining and schedule
// its disconnect; nobody else is affected.
func (h *Hub) Deliver(evt domainevents.ChangeEvent) {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		enqueued, overflow := sub.offer(evt)
		if enqueued && h.metrics != nil {
			h.metrics.EventsDelivered.Inc()
		}
		if overflow {
			if h.metrics != nil {
				h.metrics.FanoutDropped.Inc()
			}
			h.logger.Warn("subscriber queue full, disconnecting",
				zap.String("sessionId", sub.ID),
				zap.Uint64("eventId", evt.EventID))
			h.scheduleRemoval(sub)
		}
	}
}

// Subscribe registers a session. The returned subscriber starts in the
// connecting state; a catch-up goroutine replays journaled events with
// id > lastSeenID and then flips it live. A cursor below journal retention
// gets a single lag_exceeded control envelope instead of a replay; the
// client reconciles by re-snapshotting.
func (h *Hub) Subscribe(sessionID string, filter []domainevents.Type, lastSeenID uint64) (*Subscriber, error) {
	sub := newSubscriber(sessionID, filter, lastSeenID, h.opts.QueueCapacity)

	h.mu.Lock()
	if _, exists := h.subs[sessionID]; exists {
		h.mu.Unlock()
		return nil, errors.Newf(errors.KindInternal, "session %q already subscribed", sessionID)
	}
	h.subs[sessionID] = sub
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.ActiveSubscribers.Inc()
	}
	h.logger.Info("subscriber registered",
		zap.String("sessionId", sessionID),
		zap.Uint64("lastSeenId", lastSeenID),
		zap.Int("filterTypes", len(filter)))

	// The consumer loop must never gate initialization: catch-up runs as
	// its own goroutine and readiness never waits on it.
	go h.runCatchup(sub)
	return sub, nil
}

// runCatchup replays the journal until the subscriber's cursor has caught
// the journal tail, then flips it live under the hub lock. The cursor-based
// dedup in offer makes the handoff exact: nothing is skipped or repeated.
func (h *Hub) runCatchup(sub *Subscriber) {
	for {
		evts, err := h.journal.From(sub.cursorID())
		if err != nil {
			if errors.Is(err, errors.KindLagExceeded) {
				if h.metrics != nil {
					h.metrics.LagExceeded.Inc()
				}
				h.logger.Warn("subscriber outran journal retention",
					zap.String("sessionId", sub.ID),
					zap.Uint64("lastSeenId", sub.cursorID()))
				sub.sendControl(ControlLagExceeded)
				sub.mu.Lock()
				sub.cursor = h.journal.LastID()
				sub.mu.Unlock()
				continue
			}
			h.logger.Error("catch-up read failed", zap.String("sessionId", sub.ID), zap.Error(err))
			h.Unsubscribe(sub.ID)
			return
		}

		if len(evts) > 0 && h.metrics != nil {
			h.metrics.CatchupReplays.Inc()
		}
		for _, evt := range evts {
			if !sub.offerReplay(evt, catchupWait) {
				h.logger.Warn("catch-up stalled, disconnecting",
					zap.String("sessionId", sub.ID), zap.Uint64("eventId", evt.EventID))
				h.scheduleRemoval(sub)
				return
			}
		}

		h.mu.Lock()
		if h.journal.LastID() == sub.cursorID() {
			sub.setLive()
			h.mu.Unlock()
			h.logger.Debug("subscriber live",
				zap.String("sessionId", sub.ID), zap.Uint64("cursor", sub.cursorID()))
			return
		}
		h.mu.Unlock()
	}
}

// scheduleRemoval moves the subscriber to draining and removes it once the
// queue empties or the drain deadline passes.
func (h *Hub) scheduleRemoval(sub *Subscriber) {
	sub.startDraining()
	go func() {
		deadline := time.Now().Add(h.opts.DrainDeadline)
		for time.Now().Before(deadline) && sub.queuedLen() > 0 {
			time.Sleep(10 * time.Millisecond)
		}
		h.Unsubscribe(sub.ID)
	}()
}

// Unsubscribe removes a session and releases its queue. Idempotent.
func (h *Hub) Unsubscribe(sessionID string) {
	h.mu.Lock()
	sub, ok := h.subs[sessionID]
	if ok {
		delete(h.subs, sessionID)
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	sub.close()
	if h.metrics != nil {
		h.metrics.ActiveSubscribers.Dec()
	}
	h.logger.Info("subscriber removed",
		zap.String("sessionId", sessionID),
		zap.Uint64("acked", sub.Acked()))
}

// Count returns the number of registered subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// DrainAll moves every subscriber to draining and waits until queues are
// flushed or the deadline elapses, then removes them. Used on shutdown.
func (h *Hub) DrainAll(deadline time.Duration) {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		sub.startDraining()
	}
	limit := time.Now().Add(deadline)
	for time.Now().Before(limit) {
		busy := false
		for _, sub := range subs {
			if sub.queuedLen() > 0 {
				busy = true
				break
			}
		}
		if !busy {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	for _, sub := range subs {
		h.Unsubscribe(sub.ID)
	}
}
