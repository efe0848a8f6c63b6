package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/fanout/internal/api"
	"github.com/phrazzld/fanout/internal/config"
	"github.com/phrazzld/fanout/internal/fetch"
	"github.com/phrazzld/fanout/internal/pipeline"
	"github.com/phrazzld/fanout/internal/platform/memory"
	"github.com/phrazzld/fanout/internal/platform/postgres"
	"github.com/phrazzld/fanout/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	registry   *prometheus.Registry
	runs       store.RunStore
	service    *pipeline.Service
	dispatcher *pipeline.Dispatcher
}

// newApplication creates a new application instance with all dependencies initialized.
// db may be nil, which selects the in-memory run store. Unfinished runs left
// by a previous process are queued again before the dispatcher starts.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config:   cfg,
		logger:   logger,
		db:       db,
		registry: prometheus.NewRegistry(),
	}

	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if db != nil {
		app.runs = postgres.NewRunStore(db, logger)
		app.registry.MustRegister(collectors.NewDBStatsCollector(db, "fanout"))
	} else {
		app.runs = memory.NewRunStore(logger)
	}

	fetcher := fetch.NewClient(fetch.Config{
		Timeout:      cfg.Pipeline.FetchTimeout,
		MaxBodyBytes: cfg.Pipeline.MaxBodyBytes,
	}, nil)

	metrics := pipeline.NewMetrics(app.registry)

	var err error
	app.service, err = pipeline.NewService(
		app.runs,
		fetcher,
		pipeline.ServiceConfig{MaxInFlight: cfg.Pipeline.MaxInFlight},
		metrics,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline service: %w", err)
	}

	app.dispatcher, err = pipeline.NewDispatcher(app.service, pipeline.DispatcherConfig{
		WorkerCount: cfg.Pipeline.DispatcherWorkers,
		QueueSize:   cfg.Pipeline.QueueSize,
	}, metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	if _, err := app.dispatcher.Recover(ctx, app.runs); err != nil {
		return nil, fmt.Errorf("failed to recover unfinished runs: %w", err)
	}
	app.dispatcher.Start()

	logger.Info("application initialized successfully")
	return app, nil
}

// router creates the HTTP handler with all routes and middleware
func (app *application) router() http.Handler {
	var pinger api.Pinger
	if app.db != nil {
		pinger = app.db
	}

	return api.NewRouter(api.RouterConfig{
		Runs: api.NewRunHandler(app.runs, app.dispatcher, api.RunDefaults{
			Mode:       app.config.Pipeline.CompletionMode,
			MaxWorkers: app.config.Pipeline.MaxWorkers,
		}, app.logger),
		Health:   api.NewHealthHandler(pinger),
		Gatherer: app.registry,
		Logger:   app.logger,
	})
}

// shutdown drains the dispatcher, waits for fetches abandoned by fail-fast
// runs and closes the database. Every step runs even if an earlier one fails.
func (app *application) shutdown(ctx context.Context) error {
	var errs []error

	if err := app.dispatcher.Stop(ctx); err != nil {
		errs = append(errs, err)
	}

	if err := app.service.WaitStragglers(ctx); err != nil {
		app.logger.Warn("abandoned fetches still running at shutdown", slog.String("error", err.Error()))
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	app.logger.Info("application shutdown completed")
	return errors.Join(errs...)
}
