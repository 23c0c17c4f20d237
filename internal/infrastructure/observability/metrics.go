// Package observability holds the Prometheus metrics collector. The
// collector owns its own registry so tests can build engines without
// clashing with the default global registry.
package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	globalCollector *Collector
	collectorMutex  sync.Mutex
)

// Collector holds every Prometheus metric the engine exposes.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Graph mutation metrics
	GraphMutations *prometheus.CounterVec
	GraphNodes     prometheus.Gauge
	GraphEdges     prometheus.Gauge

	// CDC metrics
	EventsPublished      prometheus.Counter
	JournalSize          prometheus.Gauge
	FanoutDropped        prometheus.Counter
	ArchiveFailures      prometheus.Counter
	RedisPublishFailures prometheus.Counter

	// Broadcast metrics
	ActiveSubscribers prometheus.Gauge
	EventsDelivered   prometheus.Counter
	CatchupReplays    prometheus.Counter
	LagExceeded       prometheus.Counter

	// Ingestion metrics
	BatchesTotal  *prometheus.CounterVec
	BatchDuration prometheus.Histogram
}

// NewCollector creates the metrics collector. A process-wide singleton is
// returned on repeated calls so tests that build multiple containers do not
// trip duplicate registration.
func NewCollector(namespace string) *Collector {
	collectorMutex.Lock()
	defer collectorMutex.Unlock()

	if globalCollector != nil {
		return globalCollector
	}

	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		GraphMutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "graph_mutations_total",
				Help:      "Total number of graph mutations by result",
			},
			[]string{"operation", "result"},
		),
		GraphNodes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "graph_nodes",
				Help:      "Current number of nodes in the graph",
			},
		),
		GraphEdges: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "graph_relationships",
				Help:      "Current number of relationships in the graph",
			},
		),
		EventsPublished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cdc_events_published_total",
				Help:      "Total number of CDC events published",
			},
		),
		JournalSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cdc_journal_events",
				Help:      "Number of events currently retained by the journal",
			},
		),
		FanoutDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cdc_fanout_dropped_total",
				Help:      "Events dropped because a subscriber queue was full",
			},
		),
		ArchiveFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cdc_archive_failures_total",
				Help:      "Failed archive writes",
			},
		),
		RedisPublishFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cdc_redis_publish_failures_total",
				Help:      "Failed Redis event publishes",
			},
		),
		ActiveSubscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "broadcast_active_subscribers",
				Help:      "Current number of broadcast subscribers",
			},
		),
		EventsDelivered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "broadcast_events_delivered_total",
				Help:      "Events enqueued to subscriber queues",
			},
		),
		CatchupReplays: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "broadcast_catchup_replays_total",
				Help:      "Subscriber catch-up replays performed",
			},
		),
		LagExceeded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "broadcast_lag_exceeded_total",
				Help:      "Subscribers whose cursor fell behind journal retention",
			},
		),
		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingestion_batches_total",
				Help:      "Ingestion batches by outcome",
			},
			[]string{"outcome"},
		),
		BatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ingestion_batch_duration_seconds",
				Help:      "Ingestion batch duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
			},
		),
	}

	registry.MustRegister(
		c.HTTPRequests, c.HTTPDuration,
		c.GraphMutations, c.GraphNodes, c.GraphEdges,
		c.EventsPublished, c.JournalSize, c.FanoutDropped,
		c.ArchiveFailures, c.RedisPublishFailures,
		c.ActiveSubscribers, c.EventsDelivered, c.CatchupReplays, c.LagExceeded,
		c.BatchesTotal, c.BatchDuration,
	)

	globalCollector = c
	return c
}

// ObserveHTTPRequest records one served request.
func (c *Collector) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler exposes the collector's registry for GET /metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
