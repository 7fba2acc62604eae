package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/afero"

	"github.com/ericfisherdev/railpanel/internal/adapter/driven/csvcache"
	sqliteadapter "github.com/ericfisherdev/railpanel/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/railpanel/internal/adapter/driven/testrail"
	"github.com/ericfisherdev/railpanel/internal/application"
	"github.com/ericfisherdev/railpanel/internal/config"
	"github.com/ericfisherdev/railpanel/internal/domain/port/driven"
	"github.com/ericfisherdev/railpanel/internal/telemetry"
)

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// openCache opens the configured cache backend. The returned close function
// is never nil.
func openCache(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *telemetry.Metrics) (driven.CacheStore, func() error, error) {
	switch cfg.CacheBackend {
	case config.BackendSQLite:
		db, version, err := sqliteadapter.Open(ctx, cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("sqlite cache opened", "path", db.Path(), "schema_version", version)
		return sqliteadapter.NewStatsRepo(db, logger, metrics), db.Close, nil
	case config.BackendCSV, "":
		logger.Info("csv cache opened", "dir", cfg.CacheDir)
		return csvcache.New(afero.NewOsFs(), cfg.CacheDir, logger, metrics), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// clientFactory builds TestRail clients that share the configured transport
// settings.
func clientFactory(cfg *config.Config, logger *slog.Logger, metrics *telemetry.Metrics) application.ClientFactory {
	return func(conn application.Connection) (driven.TestRailClient, error) {
		c, err := testrail.New(testrail.Config{
			BaseURL:           conn.URL,
			Username:          conn.Username,
			APIKey:            conn.APIKey,
			RequestTimeout:    cfg.RequestTimeout,
			MaxAttempts:       cfg.MaxAttempts,
			RetryWaitMin:      cfg.RetryWaitMin,
			RetryWaitMax:      cfg.RetryWaitMax,
			MaxRateLimitWait:  cfg.MaxRateLimitWait,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Burst:             cfg.Burst,
			IncludePlans:      cfg.IncludePlans,
		}, logger, metrics)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func defaultConnection(cfg *config.Config) application.Connection {
	return application.Connection{
		URL:      cfg.TestRailURL,
		Username: cfg.TestRailUsername,
		APIKey:   cfg.TestRailAPIKey,
	}
}

func newPipeline(cfg *config.Config, client driven.TestRailClient, cache driven.CacheStore, logger *slog.Logger, metrics *telemetry.Metrics) *application.Pipeline {
	return application.NewPipeline(
		client,
		cache,
		application.NewAggregator(cfg.StatusPolicy, logger),
		logger,
		metrics,
		application.PipelineOptions{
			Workers:            cfg.Workers,
			MaxCandidateRuns:   cfg.MaxCandidateRuns,
			MaxDetailedResults: cfg.MaxDetailedResults,
		},
	)
}
