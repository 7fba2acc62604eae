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

	"github.com/spf13/cobra"

	httphandler "github.com/ericfisherdev/railpanel/internal/adapter/driving/http"
	"github.com/ericfisherdev/railpanel/internal/application"
	"github.com/ericfisherdev/railpanel/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analysis API",
	Long: `Serve exposes POST /api/v1/analyses, GET /api/v1/health and GET /metrics
on RAILPANEL_LISTEN_ADDR. Requests may carry their own TestRail connection;
missing fields fall back to the server configuration.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	// 1. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()
	metrics := telemetry.NewMetrics()

	// 2. Open the build cache.
	cache, closeCache, err := openCache(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeCache(); err != nil {
			logger.Error("error closing cache", "error", err)
		}
	}()

	// 3. Wire the client provider and pipeline template.
	provider := application.NewTestRailClientProvider(defaultConnection(cfg), clientFactory(cfg, logger, metrics))
	if !provider.HasDefault() {
		logger.Info("no default TestRail connection configured, requests must carry credentials")
	}
	pipeline := newPipeline(cfg, nil, cache, logger, metrics)

	handler := httphandler.NewServeMux(
		httphandler.NewHandler(pipeline, provider, httphandler.Defaults{
			ProjectID:  cfg.ProjectID,
			BuildCount: cfg.BuildCount,
		}, metrics, logger),
		logger,
	)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Minute, // Analyses of large milestones take minutes.
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.Info("railpanel started",
		"listen_addr", cfg.ListenAddr,
		"cache_backend", cfg.CacheBackend,
		"workers", cfg.Workers,
	)

	// 4. Wait for shutdown signal or a server failure.
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	// 5. Graceful shutdown with 10s timeout for in-flight analyses.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
