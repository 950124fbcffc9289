// Package main runs marketd, the asset marketplace engine, behind an HTTP
// server with Prometheus instrumentation and graceful shutdown.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	app "github.com/openasset/market-engine/internal/app"
	"github.com/openasset/market-engine/internal/app/httpapi"
	"github.com/openasset/market-engine/internal/app/metrics"
	marketsvc "github.com/openasset/market-engine/internal/app/services/market"
	"github.com/openasset/market-engine/internal/app/storage"
	"github.com/openasset/market-engine/internal/app/storage/postgres"
	"github.com/openasset/market-engine/internal/config"
	"github.com/openasset/market-engine/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "marketd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; config and env vars carry the real settings.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	}).WithComponent("marketd")

	store, db, err := buildStore(cfg.Database)
	if err != nil {
		return fmt.Errorf("configure store: %w", err)
	}
	if db != nil {
		defer db.Close()
		log.Info("using postgres market store")
	} else {
		log.Info("no database configured; using in-memory market store")
	}

	application, err := app.New(
		app.Stores{Market: store},
		log,
		app.WithEventBufferSize(cfg.Engine.EventBufferSize),
		app.WithEngineOptions(marketsvc.WithOperator(cfg.Engine.Operator)),
	)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", metrics.InstrumentHandler(httpapi.NewHandler(application)))

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.Addr).
			WithField("operator", application.Market.Operator()).
			Info("marketd listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application shutdown")
	}
	return nil
}

// buildStore opens the postgres store when a DSN is configured and falls back
// to the in-memory store otherwise. The returned *sql.DB is nil in the
// in-memory case.
func buildStore(cfg config.DatabaseConfig) (storage.MarketStore, *sql.DB, error) {
	if cfg.DSN == "" {
		return nil, nil, nil
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	return postgres.New(db), db, nil
}
