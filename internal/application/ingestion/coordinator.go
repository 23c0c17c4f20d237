package ingestion

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"codegraph-backend/internal/domain/entity"
	domainevents "codegraph-backend/internal/domain/events"
	"codegraph-backend/internal/domain/relationship"
	"codegraph-backend/internal/errors"
	cdc "codegraph-backend/internal/infrastructure/events"
	"codegraph-backend/internal/infrastructure/memgraph"
	"codegraph-backend/internal/infrastructure/observability"
)

// Options tune batch application.
type Options struct {
	// BatchDeadline bounds one batch end to end; exceeding it rolls the
	// batch back (default 5m).
	BatchDeadline time.Duration
	// ProgressInterval rate-limits analysis_progress events (default 100ms).
	ProgressInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchDeadline <= 0 {
		o.BatchDeadline = 5 * time.Minute
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = 100 * time.Millisecond
	}
	return o
}

// batch holds one fully buffered, decoded analyzer batch. Messages may
// arrive interleaved; application order is fixed here regardless: nodes,
// then edges, then deletions (edges before nodes).
type batch struct {
	id          string
	nodes       []*entity.Node
	edges       []*relationship.Relationship
	edgeDeletes []*deletePayload
	nodeDeletes []*deletePayload
}

func (b *batch) units() int {
	return len(b.nodes) + len(b.edges) + len(b.edgeDeletes) + len(b.nodeDeletes)
}

// Coordinator applies analyzer batches to the graph store and drives the
// analysis lifecycle events. One batch runs at a time; a failed batch
// leaves the graph exactly as it was.
type Coordinator struct {
	store *memgraph.Store
	bus   *cdc.Broadcaster
	opts  Options

	applyMu sync.Mutex
	ready   atomic.Bool

	metrics *observability.Collector
	logger  *zap.Logger
}

// NewCoordinator creates the ingestion coordinator.
func NewCoordinator(store *memgraph.Store, bus *cdc.Broadcaster, opts Options, metrics *observability.Collector, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:   store,
		bus:     bus,
		opts:    opts.withDefaults(),
		metrics: metrics,
		logger:  logger,
	}
}

// Ready reports whether at least one batch has completed since startup.
func (c *Coordinator) Ready() bool {
	return c.ready.Load()
}

// Consume decodes an NDJSON message stream and applies each batch as its
// end marker arrives. It returns on stream exhaustion or the first fatal
// batch error.
func (c *Coordinator) Consume(ctx context.Context, r io.Reader) error {
	dec := json.NewDecoder(r)
	batches := make(map[string]*batch)

	for {
		var msg Message
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.Wrap(err, errors.KindParserError, "decode analyzer stream")
		}
		done, err := c.consumeMessage(ctx, batches, &msg)
		if err != nil {
			return err
		}
		if done != nil {
			if err := c.ApplyBatch(ctx, done); err != nil {
				return err
			}
		}
	}
}

// consumeMessage buffers one message; a non-nil batch return means its end
// marker arrived and it is ready to apply.
func (c *Coordinator) consumeMessage(ctx context.Context, batches map[string]*batch, msg *Message) (*batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg.BatchID == "" {
		return nil, errors.ParserError("message without batchId")
	}

	b, ok := batches[msg.BatchID]
	if !ok {
		b = &batch{id: msg.BatchID}
		batches[msg.BatchID] = b
	}

	switch msg.Kind {
	case MessageNode:
		n, err := decodeNode(msg.Payload)
		if err != nil {
			return nil, c.failBefore(msg.BatchID, err)
		}
		b.nodes = append(b.nodes, n)
	case MessageEdge:
		e, err := decodeEdge(msg.Payload)
		if err != nil {
			return nil, c.failBefore(msg.BatchID, err)
		}
		b.edges = append(b.edges, e)
	case MessageDelete:
		d, err := decodeDelete(msg.Payload)
		if err != nil {
			return nil, c.failBefore(msg.BatchID, err)
		}
		if d.Type == "edge" {
			b.edgeDeletes = append(b.edgeDeletes, d)
		} else {
			b.nodeDeletes = append(b.nodeDeletes, d)
		}
	case MessageProgress:
		// Analyzer-side progress; the engine emits its own during apply.
	case MessageEnd:
		delete(batches, msg.BatchID)
		return b, nil
	case MessageError:
		var p errorPayload
		_ = json.Unmarshal(msg.Payload, &p)
		err := errors.Newf(errors.KindParserError, "analyzer reported error: %s", p.Message)
		return nil, c.failBefore(msg.BatchID, err)
	default:
		return nil, c.failBefore(msg.BatchID, errors.Newf(errors.KindParserError, "unknown message kind %q", msg.Kind))
	}
	return nil, nil
}

// failBefore reports a batch that failed before any mutation was applied.
func (c *Coordinator) failBefore(batchID string, err error) error {
	c.bus.Publish(domainevents.NewAnalysisFailed(batchID, string(errors.KindOf(err)), err.Error()))
	if c.metrics != nil {
		c.metrics.BatchesTotal.WithLabelValues("failed").Inc()
	}
	c.logger.Error("batch rejected", zap.String("batchId", batchID), zap.Error(err))
	return err
}

// ApplyBatch applies one buffered batch under the batch deadline. Node
// upserts first, then relationship upserts, then deletions (edges before
// nodes), so every relationship insert sees both endpoints. Any failure
// restores the checkpoint; the compensating mutations emit their own CDC
// events, keeping replay equivalent to the live graph.
func (c *Coordinator) ApplyBatch(ctx context.Context, b *batch) error {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.opts.BatchDeadline)
	defer cancel()

	started := time.Now()
	c.bus.Publish(domainevents.NewAnalysisStarted(b.id))
	c.logger.Info("batch started",
		zap.String("batchId", b.id), zap.Int("units", b.units()))

	checkpoint := c.store.Checkpoint()
	progress := domainevents.Progress{}
	lastProgress := time.Now()

	tick := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Since(lastProgress) >= c.opts.ProgressInterval {
			c.bus.Publish(domainevents.NewAnalysisProgress(b.id, progress))
			lastProgress = time.Now()
		}
		return nil
	}

	apply := func() error {
		for _, n := range b.nodes {
			if _, err := c.store.UpsertNode(ctx, n); err != nil {
				return err
			}
			progress.Nodes++
			if err := tick(); err != nil {
				return err
			}
		}
		for _, e := range b.edges {
			if _, err := c.store.UpsertRelationship(ctx, e); err != nil {
				return err
			}
			progress.Relationships++
			if err := tick(); err != nil {
				return err
			}
		}
		for _, d := range b.edgeDeletes {
			relType, err := relationship.ParseType(d.EdgeType)
			if err != nil {
				return err
			}
			if _, err := c.store.RemoveRelationship(ctx, d.SourceID, d.TargetID, relType); err != nil {
				return err
			}
			progress.Deletions++
			if err := tick(); err != nil {
				return err
			}
		}
		for _, d := range b.nodeDeletes {
			if _, err := c.store.RemoveNode(ctx, d.ID); err != nil {
				return err
			}
			progress.Deletions++
			if err := tick(); err != nil {
				return err
			}
		}
		return nil
	}

	if err := apply(); err != nil {
		c.store.Restore(checkpoint)
		reason := errors.KindBatchRolledBack
		switch errors.KindOf(err) {
		case errors.KindDeadlineExceeded, errors.KindCancelled, errors.KindParserError:
			reason = errors.KindOf(err)
		}
		c.bus.Publish(domainevents.NewAnalysisFailed(b.id, string(reason), err.Error()))
		if c.metrics != nil {
			c.metrics.BatchesTotal.WithLabelValues("failed").Inc()
		}
		c.logger.Error("batch rolled back",
			zap.String("batchId", b.id),
			zap.String("reason", string(reason)),
			zap.Error(err))
		return errors.Wrap(err, errors.KindBatchRolledBack, "batch "+b.id+" rolled back")
	}

	c.bus.Publish(domainevents.NewAnalysisCompleted(b.id, progress))
	c.ready.Store(true)
	if c.metrics != nil {
		c.metrics.BatchesTotal.WithLabelValues("completed").Inc()
		c.metrics.BatchDuration.Observe(time.Since(started).Seconds())
	}
	c.logger.Info("batch completed",
		zap.String("batchId", b.id),
		zap.Int("nodes", progress.Nodes),
		zap.Int("relationships", progress.Relationships),
		zap.Int("deletions", progress.Deletions),
		zap.Duration("took", time.Since(started)))
	return nil
}
