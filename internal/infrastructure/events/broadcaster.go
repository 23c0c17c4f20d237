package events

import (
	"sync"

	"go.uber.org/zap"

	domainevents "codegraph-backend/internal/domain/events"
	"codegraph-backend/internal/infrastructure/observability"
)

// Tap receives every published event. Deliver must not block: taps that do
// real I/O wrap themselves in an AsyncTap.
type Tap interface {
	Name() string
	Deliver(evt domainevents.ChangeEvent)
}

// Broadcaster is the publish side of the CDC bus. Publish journals the
// event, then hands it to each tap. The journal append is synchronous (the
// event is durable-ordered before the mutator returns); tap delivery must
// never block, so a slow downstream can never stall a graph mutation.
type Broadcaster struct {
	journal *Journal

	mu   sync.RWMutex
	taps []Tap

	metrics *observability.Collector
	logger  *zap.Logger
}

// NewBroadcaster creates a broadcaster over the given journal. metrics may
// be nil in tests.
func NewBroadcaster(journal *Journal, metrics *observability.Collector, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{journal: journal, metrics: metrics, logger: logger}
}

// Journal exposes the underlying journal for catch-up reads.
func (b *Broadcaster) Journal() *Journal {
	return b.journal
}

// RegisterTap adds a fan-out destination. Taps registered after events were
// published only see subsequent events; late joiners catch up via the
// journal.
func (b *Broadcaster) RegisterTap(t Tap) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.taps = append(b.taps, t)
	b.logger.Info("cdc tap registered", zap.String("tap", t.Name()))
}

// Publish assigns the event id, journals the event, and fans it out.
// Publish never fails the mutation that produced the event.
func (b *Broadcaster) Publish(evt domainevents.ChangeEvent) domainevents.ChangeEvent {
	stamped := b.journal.Append(evt)

	if b.metrics != nil {
		b.metrics.EventsPublished.Inc()
		b.metrics.JournalSize.Set(float64(b.journal.Len()))
	}

	b.mu.RLock()
	taps := b.taps
	b.mu.RUnlock()
	for _, t := range taps {
		t.Deliver(stamped)
	}
	return stamped
}

// AsyncTap decouples a blocking consumer from the publish path with a
// buffered channel and a single worker goroutine. When the buffer is full
// the event is dropped for this tap (the journal still has it) and the drop
// is logged and counted.
type AsyncTap struct {
	name    string
	ch      chan domainevents.ChangeEvent
	done    chan struct{}
	closeMu sync.Mutex
	closed  bool

	dropped func()
	logger  *zap.Logger
}

// NewAsyncTap starts the worker. fn is invoked once per event, in order;
// its errors are the consumer's to log. onDrop may be nil.
func NewAsyncTap(name string, buffer int, fn func(domainevents.ChangeEvent), onDrop func(), logger *zap.Logger) *AsyncTap {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &AsyncTap{
		name:    name,
		ch:      make(chan domainevents.ChangeEvent, buffer),
		done:    make(chan struct{}),
		dropped: onDrop,
		logger:  logger,
	}
	go func() {
		defer close(t.done)
		for evt := range t.ch {
			fn(evt)
		}
	}()
	return t
}

func (t *AsyncTap) Name() string { return t.name }

// Deliver enqueues without blocking; a full buffer drops the event. A
// publisher racing shutdown may still call Deliver after Close: the event
// is dropped rather than sent on the closed channel (the journal has it).
func (t *AsyncTap) Deliver(evt domainevents.ChangeEvent) {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.ch <- evt:
	default:
		if t.dropped != nil {
			t.dropped()
		}
		t.logger.Warn("async tap buffer full, event dropped",
			zap.String("tap", t.name), zap.Uint64("eventId", evt.EventID))
	}
}

// Close stops the worker after the buffered events are consumed.
func (t *AsyncTap) Close() {
	t.closeMu.Lock()
	if t.closed {
		t.closeMu.Unlock()
		return
	}
	t.closed = true
	close(t.ch)
	t.closeMu.Unlock()
	<-t.done
}
