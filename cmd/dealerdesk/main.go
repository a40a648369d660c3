// Package main is the entry point for the dealerdesk console server.
// It wires all dependencies together and starts the HTTP server.
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

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pitabwire/dealerdesk/internal/config"
	"github.com/pitabwire/dealerdesk/internal/definition"
	"github.com/pitabwire/dealerdesk/internal/events"
	"github.com/pitabwire/dealerdesk/internal/lookup"
	"github.com/pitabwire/dealerdesk/internal/metadata"
	"github.com/pitabwire/dealerdesk/internal/observability"
	"github.com/pitabwire/dealerdesk/internal/session"
	"github.com/pitabwire/dealerdesk/internal/store"
	"github.com/pitabwire/dealerdesk/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "dealerdesk", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 4: Load definitions, validate, build registry.
	registry := definition.NewRegistry(nil)
	reloader := &definition.Reloader{
		Loader:      definition.NewLoader(cfg.Definitions.Include...),
		Validator:   definition.NewValidator(),
		Registry:    registry,
		Directories: cfg.Definitions.Directories,
		Logger:      logger,
	}
	report, err := reloader.Reload()
	if err != nil {
		for _, ve := range report.Errors {
			logger.Error("definition validation error",
				zap.String("path", ve.Path),
				zap.String("code", ve.Code),
				zap.String("message", ve.Message),
			)
		}
		metrics.RecordDefinitionReload("failure")
		logger.Error("definition loading failed", zap.Error(err))
		return 1
	}
	metrics.RecordDefinitionReload("success")
	metrics.SetDefinitionsLoaded(float64(registry.Len()))

	// Step 5: Open the record store and event publisher.
	backend, closeStore, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("record store initialization failed", zap.Error(err))
		return 1
	}
	defer closeStore()
	records := store.NewInstrumented(store.Guard(backend, cfg.Store, metrics, logger), metrics)

	if cfg.Store.SeedFile != "" {
		seed, err := store.LoadSeed(cfg.Store.SeedFile)
		if err != nil {
			logger.Error("seed loading failed", zap.Error(err))
			return 1
		}
		n, err := store.Seed(ctx, records, seed)
		if err != nil {
			logger.Error("seeding failed", zap.Error(err))
			return 1
		}
		logger.Info("record store seeded", zap.Int("records", n), zap.String("file", cfg.Store.SeedFile))
	}

	publisher, err := events.Open(cfg.Events, logger)
	if err != nil {
		logger.Error("event publisher initialization failed", zap.Error(err))
		return 1
	}
	instrumentedPublisher := events.NewInstrumented(publisher, metrics)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("event publisher close error", zap.Error(err))
		}
	}()

	// Step 6: Build providers and sessions.
	lookups := lookup.NewProvider(registry, records, metrics, cfg.Lookup.Cache.TTL, cfg.Lookup.Cache.MaxEntries, logger)
	tables := metadata.NewTableProvider(registry, records, metadata.TableDefaults{
		ItemsPerPage:    cfg.Tables.ItemsPerPage,
		HighlightWindow: cfg.Tables.HighlightWindow,
	}, logger)
	forms := metadata.NewFormProvider(metadata.FormDeps{
		Registry:  registry,
		Store:     records,
		Lookups:   lookups,
		Publisher: instrumentedPublisher,
		SpecDirs:  cfg.Definitions.SchemaDirs,
		Logger:    logger,
	})
	menu := metadata.NewMenuProvider(registry, records, logger)

	sessions := session.NewManager(session.Config{
		TTL:             cfg.Sessions.TTL,
		MaxSessions:     cfg.Sessions.MaxSessions,
		CleanupInterval: cfg.Sessions.CleanupInterval,
	}, session.Options{Metrics: metrics, Logger: logger})
	defer sessions.Close()

	// Step 7: Start background tasks.
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	sessions.Start(bgCtx)

	if cfg.Definitions.HotReload {
		watcher, err := definition.NewWatcher(reloader, logger,
			definition.WithDebounce(cfg.Definitions.ReloadDebounce),
			definition.WithReloadHook(func(err error) {
				if err != nil {
					metrics.RecordDefinitionReload("failure")
					return
				}
				metrics.RecordDefinitionReload("success")
				metrics.SetDefinitionsLoaded(float64(registry.Len()))
			}),
		)
		if err != nil {
			logger.Error("definition watcher initialization failed", zap.Error(err))
			return 1
		}
		defer func() { _ = watcher.Close() }()
		if err := watcher.Start(bgCtx); err != nil {
			logger.Error("definition watcher start failed", zap.Error(err))
			return 1
		}
	}

	// Step 8: Build HTTP router.
	router := transport.NewRouter(transport.Dependencies{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics,
		Tables:   tables,
		Forms:    forms,
		Menu:     menu,
		Lookups:  lookups,
		Sessions: sessions,
		Readiness: observability.ReadinessChecks{
			DefinitionsLoaded: func() bool { return registry.Len() > 0 },
			RecordStore:       records,
			EventPublisher:    instrumentedPublisher,
		},
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 9: Start HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("definitions", registry.Len()),
		zap.String("store", cfg.Store.Driver),
		zap.String("events", cfg.Events.Driver),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Cancel background tasks; sessions, publisher and store close on return.
	bgCancel()

	// Flush telemetry.
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}
