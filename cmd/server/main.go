// Package main is the entry point for the Career Connect API server.
//
// main only reads configuration, builds the logger, tracing and metrics, and
// picks the store driver. Everything else lives in internal/.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sakif/career-connect/internal/config"
	"github.com/sakif/career-connect/internal/metrics"
	"github.com/sakif/career-connect/internal/repository"
	"github.com/sakif/career-connect/internal/repository/mongodb"
	"github.com/sakif/career-connect/internal/repository/sqlite"
	"github.com/sakif/career-connect/internal/server"
	"github.com/sakif/career-connect/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	shutdownTracing, err := telemetry.Setup(context.Background(), cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("flushing traces", slog.String("error", err.Error()))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	connect, err := storeConnector(cfg, logger)
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Port:                 cfg.Port,
		CORSAllowedOrigins:   cfg.CORSAllowedOrigins,
		ExposeInternalErrors: cfg.ExposeInternalErrors,
		StoreTimeout:         cfg.StoreTimeout,
		StoreConnectTimeout:  cfg.StoreConnectTimeout,
	}, logger, metrics.New(reg))

	// Start blocks until SIGINT/SIGTERM.
	return srv.Start(connect)
}

// storeConnector returns the ConnectFunc for cfg.StoreDriver.
func storeConnector(cfg config.Config, logger *slog.Logger) (server.ConnectFunc, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
		logger.Info("using sqlite store", slog.String("path", cfg.DBPath))
		return func(ctx context.Context) (repository.UserProfileRepository, error) {
			db, err := sqlite.New(ctx, cfg.DBPath)
			if err != nil {
				return nil, err
			}
			return db, nil
		}, nil

	default:
		logger.Info("using mongodb store",
			slog.String("database", cfg.DBName),
			slog.String("collection", cfg.DBCollection),
		)
		mcfg := mongodb.Config{
			URI:        cfg.MongoConnectionURI(),
			Database:   cfg.DBName,
			Collection: cfg.DBCollection,
		}
		return func(ctx context.Context) (repository.UserProfileRepository, error) {
			store, err := mongodb.Connect(ctx, mcfg)
			if err != nil {
				return nil, err
			}
			return store, nil
		}, nil
	}
}
