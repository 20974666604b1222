package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/tillworks/tillpoint/internal/terminal"
	"github.com/tillworks/tillpoint/pkg/config"
	"github.com/tillworks/tillpoint/pkg/db"
	"github.com/tillworks/tillpoint/pkg/logger"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "terminal"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "terminal",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.NewSQLite(context.Background(), cfg.Terminal.SQLitePath, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to open local database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing local database", err)
		}
	}()

	store, err := terminal.NewStore(dbClient.DB())
	if err != nil {
		logg.Error(context.Background(), "failed to prepare local store", err)
		os.Exit(1)
	}
	queue := terminal.NewQueue(dbClient.DB())

	client, err := terminal.NewClient(cfg.Terminal, cfg.Sync, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create sync client", err)
		os.Exit(1)
	}

	engine, err := terminal.NewEngine(terminal.EngineParams{
		Queue:      queue,
		Store:      store,
		Client:     client,
		Logger:     logg,
		Interval:   cfg.Sync.Interval,
		MaxRetries: cfg.Sync.MaxRetries,
		OnItemFailed: func(item terminal.FailedSyncItem) {
			ctx := logg.WithFields(context.Background(), map[string]any{
				"entity_type": item.EntityType,
				"entity_uuid": item.EntityUUID,
				"retry_count": item.RetryCount,
			})
			logg.Warn(ctx, "sync item parked for operator review")
		},
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sync engine", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"device_id": cfg.Terminal.DeviceID,
		"branch_id": cfg.Terminal.BranchID,
	})
	logg.Info(ctx, "starting terminal sync")

	// Stale reference data is usable; a failed pull never blocks startup.
	if _, err := terminal.RefreshReference(ctx, client, store, logg); err != nil {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "reference pull failed, continuing with cached data")
	}

	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sync engine stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "terminal shutting down gracefully")
}
