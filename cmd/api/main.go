// Command api runs the source-code intelligence service: the in-memory
// code graph, the CDC pipeline, the WebSocket broadcast surface, and the
// REST query API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"codegraph-backend/internal/config"
	"codegraph-backend/internal/di"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	container, err := di.NewContainer(cfg)
	if err != nil {
		return err
	}
	logger := container.Logger

	watcher, err := config.NewWatcher(*configPath, cfg, logger.Named("config"))
	if err != nil {
		return err
	}
	defer watcher.Stop()

	if cfg.AnalyzeOnStart && container.Runner != nil {
		go func() {
			batchID, done, err := container.Runner.ForceReanalysis(context.Background())
			if err != nil {
				logger.Error("initial analysis failed to start", zap.Error(err))
				return
			}
			logger.Info("initial analysis started", zap.String("batchId", batchID))
			if err := <-done; err != nil {
				logger.Error("initial analysis failed", zap.Error(err))
			}
		}()
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           container.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	return container.Shutdown(ctx)
}
