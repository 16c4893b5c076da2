package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Zerr0-C00L/rdfetch/internal/api"
	"github.com/Zerr0-C00L/rdfetch/internal/app"
	"github.com/Zerr0-C00L/rdfetch/internal/config"
	"github.com/Zerr0-C00L/rdfetch/internal/logging"
	"github.com/Zerr0-C00L/rdfetch/internal/metrics"
	"github.com/Zerr0-C00L/rdfetch/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		slog.Error("failed to build logger", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	logger.Info("starting rdfetch API server")
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := context.Background()
	shutdownTracing, err := telemetry.Init(ctx, "rdfetch", cfg.OTLPEndpoint, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()
	metrics.Register(prometheus.DefaultRegisterer)

	hub := api.NewHub(logger.With("component", "ws"))
	go hub.Run()

	stack, err := app.Build(ctx, cfg, logger, app.Options{OnEvent: hub.Publish})
	if err != nil {
		hub.Close()
		return err
	}
	defer stack.Close()
	hub.Follow(stack.Feed)

	if stack.Manager.Enabled() {
		logger.Info("Real-Debrid enabled", "api_key", stack.RealDebrid.UsesAPIKey())
	} else {
		logger.Info("Real-Debrid not authorized yet, start the device flow with POST /api/v1/auth")
	}

	// Background workers share one context cancelled on shutdown
	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()

	scanner := api.NewAvailabilityScanner(stack.Manager, cfg.AvailabilityRescanInterval.Std(), logger.With("component", "scanner"))
	scanner.Start(workerCtx)

	if interval := cfg.TokenRefreshInterval.Std(); interval > 0 && !stack.RealDebrid.UsesAPIKey() {
		go tokenRefreshWorker(workerCtx, stack.RealDebrid, stack.Manager, interval, logger.With("component", "token_refresh"))
	}

	handler := api.NewHandler(workerCtx, stack.Manager, scanner, stack.Feed, hub, logger)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      otelhttp.NewHandler(router, "rdfetch"),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down server", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	// Stop background workers
	workerCancel()

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", "error", err)
	}
	if err := handler.Shutdown(shutdownCtx); err != nil {
		logger.Warn("background runs interrupted", "error", err)
	}

	logger.Info("server stopped")
	return nil
}
