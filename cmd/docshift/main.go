package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/ryanbastic/go-docshift/internal/api"
	"github.com/ryanbastic/go-docshift/internal/circuitbreaker"
	"github.com/ryanbastic/go-docshift/internal/config"
	"github.com/ryanbastic/go-docshift/internal/document"
	"github.com/ryanbastic/go-docshift/internal/metrics"
	"github.com/ryanbastic/go-docshift/internal/runner"
	"github.com/ryanbastic/go-docshift/internal/store"
)

func main() {
	cfg := config.Load()

	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to PostgreSQL
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Create core tables
	if err := store.Bootstrap(ctx, pool); err != nil {
		logger.Error("failed to bootstrap schema", "error", err)
		os.Exit(1)
	}
	logger.Info("schema bootstrap complete")

	// Register views: the built-in by_id view plus any from the config file
	views := store.NewViewRegistry()
	if err := views.Register(store.ViewDefinition{Name: "by_id"}); err != nil {
		logger.Error("failed to register view", "view", "by_id", "error", err)
		os.Exit(1)
	}
	if cfg.ViewConfigPath != "" {
		viewCfg, err := config.LoadViewConfig(cfg.ViewConfigPath)
		if err != nil {
			logger.Error("failed to load view config", "path", cfg.ViewConfigPath, "error", err)
			os.Exit(1)
		}
		for _, v := range viewCfg.Views {
			def := store.ViewDefinition{
				Name:        v.Name,
				KeyField:    v.KeyField,
				ValueFields: v.ValueFields,
			}
			if err := views.Register(def); err != nil {
				logger.Error("failed to register view", "view", v.Name, "error", err)
				os.Exit(1)
			}
		}
	}
	if err := views.CreateTables(ctx, pool); err != nil {
		logger.Error("failed to create view tables", "error", err)
		os.Exit(1)
	}
	logger.Info("views ready", "views", views.Names())

	// Document store behind a circuit breaker
	breaker := circuitbreaker.New(cfg.BreakerMaxFailures, cfg.BreakerResetTimeout)
	docs := store.WithBreaker(store.NewPostgresStore(pool, views, cfg.QueryTimeout), breaker)

	prometheus.MustRegister(metrics.NewPoolCollector(pool))

	// Migration registry
	registry := runner.NewRegistry()

	// Example: touch every document, bumping its revision without changing
	// the body. Useful for exercising the pipeline end to end.
	err = registry.Register(&runner.Definition{
		Name:           "touch_all",
		View:           "by_id",
		BatchSize:      cfg.BatchSize,
		RetryConflicts: cfg.RetryConflicts,
		FetchKeys: func(row store.ViewRow) ([]string, error) {
			return []string{row.DocID}, nil
		},
		Changes: func(row store.ViewRow, docs []*document.Document) ([]document.Change, error) {
			doc := docs[0]
			if doc == nil || doc.Deleted {
				return nil, nil
			}
			return []document.Change{doc.Update(json.RawMessage(doc.Body))}, nil
		},
	})
	if err != nil {
		logger.Error("failed to register migration", "error", err)
		os.Exit(1)
	}

	runs := runner.NewPostgresRunStore(pool, cfg.QueryTimeout)
	checkpoints := runner.NewPostgresCheckpointStore(pool)
	run := runner.NewRunner(ctx, registry, docs, runs, checkpoints, logger)

	// Start HTTP server
	handler := api.NewServer(logger, run, registry, runs, pool)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	go func() {
		logger.Info("starting HTTP server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down...")

	// Cancel context to abort in-flight runs, then wait for them to record
	// their final state.
	cancel()
	run.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
