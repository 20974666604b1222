package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tillworks/tillpoint/internal/fiscal"
	"github.com/tillworks/tillpoint/pkg/config"
	"github.com/tillworks/tillpoint/pkg/db"
	"github.com/tillworks/tillpoint/pkg/logger"
	"github.com/tillworks/tillpoint/pkg/metrics"
	"github.com/tillworks/tillpoint/pkg/migrate"
	"github.com/tillworks/tillpoint/pkg/outbox"
	"github.com/tillworks/tillpoint/pkg/pra"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "fiscal-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "fiscal-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	praClient, err := pra.NewClient(context.Background(), cfg.PRA, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create pra client", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	fiscalMetrics := metrics.NewFiscalMetrics(registry)
	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	service, err := fiscal.NewService(
		fiscal.NewRepository(dbClient.DB()),
		dbClient,
		outboxSvc,
		praClient,
		cfg.Fiscal,
		logg,
		fiscalMetrics,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create fiscal service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":           cfg.App.Env,
		"poll_interval": cfg.Fiscal.PollInterval.String(),
	})
	logg.Info(ctx, "starting fiscal worker")

	if err := run(ctx, service, cfg.Fiscal.PollInterval, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "fiscal worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "fiscal worker shutting down gracefully")
}

// run drains the submission queue on a fixed cadence. An empty pass just
// waits for the next tick; errors are logged and the loop keeps going so a
// transient authority outage never kills the worker.
func run(ctx context.Context, service fiscal.Service, interval time.Duration, logg *logger.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		processed, err := service.ProcessQueue(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "fiscal queue pass failed", err)
		} else if processed > 0 {
			logg.Info(logg.WithField(ctx, "processed", processed), "fiscal queue pass complete")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
