package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/danielortiz-dev/vendique-backend/api"
	"github.com/danielortiz-dev/vendique-backend/internal/cron"
	"github.com/danielortiz-dev/vendique-backend/internal/inventory"
	"github.com/danielortiz-dev/vendique-backend/pkg/config"
	"github.com/danielortiz-dev/vendique-backend/pkg/db"
	"github.com/danielortiz-dev/vendique-backend/pkg/instance"
	"github.com/danielortiz-dev/vendique-backend/pkg/logger"
	"github.com/danielortiz-dev/vendique-backend/pkg/metrics"
	"github.com/danielortiz-dev/vendique-backend/pkg/migrate"
	"github.com/danielortiz-dev/vendique-backend/pkg/outbox"
	"github.com/danielortiz-dev/vendique-backend/pkg/redis"
)

const (
	shutdownTimeout = 10 * time.Second

	// The retention sweep deletes by cutoff date, so it only needs to fire
	// once a day while the reservation sweep runs every cycle.
	retentionEvery = 24 * time.Hour
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "inventory-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), "no .env file, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "inventory-worker"

	logg = logger.New(logger.Options{
		ServiceName: "inventory-worker",
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

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	promRegistry := prometheus.NewRegistry()
	cronMetrics := metrics.NewCronJobMetrics(promRegistry)
	inventoryMetrics := metrics.NewInventoryMetrics(promRegistry)

	outboxRepo := outbox.NewRepository(dbClient.DB())
	dlqRepo := outbox.NewDLQRepository(dbClient.DB())
	inventoryService, err := inventory.NewService(inventory.ServiceParams{
		Repository: inventory.NewRepository(dbClient.DB()),
		TxRunner:   dbClient,
		Outbox:     outbox.NewService(outboxRepo, logg),
		Retry:      inventory.NewRetryCoordinator(cfg.Inventory, inventoryMetrics, logg),
		Metrics:    inventoryMetrics,
		Logger:     logg,
		Config:     cfg.Inventory,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	opsServer := &http.Server{
		Addr: ":" + cfg.App.Port,
		Handler: api.NewOpsHandler(api.OpsHandlerParams{
			Config:   cfg,
			Logger:   logg,
			DB:       dbClient,
			Redis:    redisClient,
			DLQ:      dlqRepo,
			Gatherer: promRegistry,
		}),
	}

	lock, err := cron.NewRedisLock(redisClient, "inventory-worker", cfg.App.Env, cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	sweepJob, err := cron.NewReservationSweepJob(cron.ReservationSweepJobParams{
		Logger:  logg,
		Sweeper: inventoryService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation sweep job", err)
		os.Exit(1)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:    logg,
		DB:        dbClient,
		Events:    outboxRepo,
		DLQ:       dlqRepo,
		EventDays: cfg.Outbox.RetentionDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(sweepJob)
	registry.Schedule(retentionJob, retentionEvery)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"service_kind": cfg.Service.Kind,
		"instance":     instance.GetID(),
	})
	logg.Info(logg.WithField(ctx, "lock_key", lock.Key()), "inventory worker starting")

	go func() {
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "ops server stopped unexpectedly", err)
			os.Exit(1)
		}
	}()

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "inventory worker stopped unexpectedly", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "error shutting down ops server", err)
	}

	logg.Info(ctx, "inventory worker stopped cleanly")
}
