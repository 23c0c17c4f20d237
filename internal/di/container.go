// Package di wires the service together: configuration, logging, metrics,
// the graph engine, the CDC pipeline and its taps, the broadcast hub, the
// ingestion stack, the query facade, and the HTTP surface.
package di

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"codegraph-backend/internal/application/ingestion"
	"codegraph-backend/internal/application/queries"
	"codegraph-backend/internal/broadcast"
	"codegraph-backend/internal/config"
	domainevents "codegraph-backend/internal/domain/events"
	"codegraph-backend/internal/infrastructure/archive"
	cdc "codegraph-backend/internal/infrastructure/events"
	"codegraph-backend/internal/infrastructure/memgraph"
	"codegraph-backend/internal/infrastructure/observability"
	"codegraph-backend/internal/infrastructure/redisfan"
	"codegraph-backend/internal/infrastructure/tracing"
	httpiface "codegraph-backend/internal/interfaces/http"
	"codegraph-backend/internal/interfaces/ws"
)

// Container holds every long-lived component and tears them down in
// reverse construction order.
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Collector

	Store       *memgraph.Store
	Journal     *cdc.Journal
	Broadcaster *cdc.Broadcaster
	Archive     *archive.Archive
	Redis       *redisfan.Fan
	Hub         *broadcast.Hub

	Coordinator *ingestion.Coordinator
	Runner      *ingestion.Runner
	Watcher     *ingestion.WorkspaceWatcher

	Queries *queries.Service
	Router  http.Handler

	tracer    *tracing.Provider
	shutdowns []func(context.Context) error
}

// NewContainer builds the full dependency graph from cfg.
func NewContainer(cfg *config.Config) (*Container, error) {
	c := &Container{Config: cfg}

	steps := []func() error{
		c.initLogger,
		c.initObservability,
		c.initEngine,
		c.initTaps,
		c.initIngestion,
		c.initQueries,
		c.initRouter,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			c.Shutdown(context.Background())
			return nil, err
		}
	}

	c.Logger.Info("container initialized",
		zap.String("environment", cfg.Environment),
		zap.String("addr", cfg.ListenAddr()))
	return c, nil
}

func (c *Container) initLogger() error {
	level, err := zapcore.ParseLevel(c.Config.LogLevel)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}

	var zcfg zap.Config
	if c.Config.Environment == config.Production {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	c.Logger = logger
	c.onShutdown(func(context.Context) error {
		_ = logger.Sync()
		return nil
	})
	return nil
}

func (c *Container) initObservability() error {
	c.Metrics = observability.NewCollector("codegraph")

	if c.Config.TracingEnabled {
		tp, err := tracing.Init("codegraph-api", c.Config.Environment, c.Config.TracingEndpoint)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		c.tracer = tp
		c.onShutdown(tp.Shutdown)
	}
	return nil
}

func (c *Container) initEngine() error {
	c.Journal = cdc.NewJournal(c.Config.JournalRetentionEvents)
	c.Broadcaster = cdc.NewBroadcaster(c.Journal, c.Metrics, c.Logger.Named("cdc"))
	c.Store = memgraph.New(func(evt domainevents.ChangeEvent) {
		c.Broadcaster.Publish(evt)
	}, c.Logger.Named("memgraph"))
	return nil
}

// initTaps attaches the hub plus the optional archive and Redis fan-out to
// the broadcaster.
func (c *Container) initTaps() error {
	c.Hub = broadcast.NewHub(c.Journal, broadcast.Options{
		QueueCapacity: c.Config.SubscriberQueueCapacity,
		DrainDeadline: c.Config.DrainDeadline(),
	}, c.Metrics, c.Logger.Named("hub"))
	c.Broadcaster.RegisterTap(c.Hub)

	if c.Config.ArchivePath != "" {
		arch, err := archive.Open(c.Config.ArchivePath, c.Logger.Named("archive"))
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		c.Archive = arch
		tap := cdc.NewAsyncTap("archive", 4096, func(evt domainevents.ChangeEvent) {
			if err := arch.Write(evt); err != nil {
				c.Metrics.ArchiveFailures.Inc()
				c.Logger.Warn("archive write failed",
					zap.Uint64("eventId", evt.EventID), zap.Error(err))
			}
		}, c.Metrics.ArchiveFailures.Inc, c.Logger.Named("archive"))
		c.Broadcaster.RegisterTap(tap)
		c.onShutdown(func(context.Context) error {
			tap.Close()
			return arch.Close()
		})
	}

	if c.Config.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		fan, err := redisfan.New(ctx, c.Config.RedisURL, c.Logger.Named("redis"))
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		c.Redis = fan
		tap := cdc.NewAsyncTap("redis", 4096, func(evt domainevents.ChangeEvent) {
			if err := fan.Publish(evt); err != nil {
				c.Metrics.RedisPublishFailures.Inc()
				c.Logger.Warn("redis publish failed",
					zap.Uint64("eventId", evt.EventID), zap.Error(err))
			}
		}, c.Metrics.RedisPublishFailures.Inc, c.Logger.Named("redis"))
		c.Broadcaster.RegisterTap(tap)
		c.onShutdown(func(context.Context) error {
			tap.Close()
			return fan.Close()
		})
	}
	return nil
}

func (c *Container) initIngestion() error {
	c.Coordinator = ingestion.NewCoordinator(c.Store, c.Broadcaster, ingestion.Options{
		BatchDeadline:    c.Config.BatchDeadline(),
		ProgressInterval: c.Config.ProgressInterval(),
	}, c.Metrics, c.Logger.Named("ingestion"))

	if len(c.Config.AnalyzerCommand) == 0 {
		return nil
	}
	analyzer, err := ingestion.NewCommandAnalyzer(
		c.Config.AnalyzerCommand,
		c.Config.WorkspaceRoot,
		c.Config.IgnorePatterns,
		c.Logger.Named("analyzer"))
	if err != nil {
		return err
	}
	c.Runner = ingestion.NewRunner(c.Coordinator, analyzer, c.Logger.Named("analyzer"))

	if c.Config.WatchEnabled {
		watcher, err := ingestion.NewWorkspaceWatcher(
			c.Config.WorkspaceRoot,
			c.Config.IgnorePatterns,
			c.Config.WatchDebounce(),
			ingestion.TriggerFunc(c.Runner, c.Logger.Named("watcher")),
			c.Logger.Named("watcher"))
		if err != nil {
			return fmt.Errorf("start workspace watcher: %w", err)
		}
		c.Watcher = watcher
		c.onShutdown(func(context.Context) error {
			watcher.Stop()
			return nil
		})
	}
	return nil
}

func (c *Container) initQueries() error {
	c.Queries = queries.NewService(c.Store, c.Runner, queries.Options{
		HubThreshold: c.Config.HubThresholdH,
	}, c.Logger.Named("queries"))
	return nil
}

func (c *Container) initRouter() error {
	wsServer := ws.NewServer(c.Hub, ws.Options{
		Heartbeat:     c.Config.Heartbeat(),
		IdleTimeout:   c.Config.IdleTimeout(),
		WriteDeadline: c.Config.WriteDeadline(),
		DrainDeadline: c.Config.DrainDeadline(),
	}, c.Logger.Named("ws"))

	handler := httpiface.NewHandler(c.Queries, c.Coordinator, redisPinger(c.Redis), c.Logger.Named("http"))
	c.Router = httpiface.NewRouter(httpiface.RouterConfig{
		Handler:     handler,
		WS:          wsServer,
		Metrics:     c.Metrics,
		Logger:      c.Logger.Named("http"),
		CORSOrigins: c.Config.CORSAllowedOrigins,
	})

	c.onShutdown(func(context.Context) error {
		c.Hub.DrainAll(c.Config.DrainDeadline())
		return nil
	})
	return nil
}

// redisPinger avoids handing the handler a non-nil interface wrapping a
// nil *redisfan.Fan.
func redisPinger(fan *redisfan.Fan) httpiface.Pinger {
	if fan == nil {
		return nil
	}
	return fan
}

func (c *Container) onShutdown(fn func(context.Context) error) {
	c.shutdowns = append(c.shutdowns, fn)
}

// Shutdown tears components down in reverse construction order.
func (c *Container) Shutdown(ctx context.Context) error {
	var firstErr error
	for i := len(c.shutdowns) - 1; i >= 0; i-- {
		if err := c.shutdowns[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.shutdowns = nil
	return firstErr
}
