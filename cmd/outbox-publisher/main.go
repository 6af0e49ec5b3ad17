package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/danielortiz-dev/vendique-backend/pkg/config"
	"github.com/danielortiz-dev/vendique-backend/pkg/db"
	"github.com/danielortiz-dev/vendique-backend/pkg/instance"
	"github.com/danielortiz-dev/vendique-backend/pkg/logger"
	"github.com/danielortiz-dev/vendique-backend/pkg/migrate"
	"github.com/danielortiz-dev/vendique-backend/pkg/outbox"
	"github.com/danielortiz-dev/vendique-backend/pkg/outbox/registry"
	"github.com/danielortiz-dev/vendique-backend/pkg/pubsub"
)

const (
	serviceName = "outbox-publisher"
	bootTimeout = 30 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})
	if err := run(logg); err != nil {
		logg.Error(context.Background(), "outbox publisher exited", err)
		os.Exit(1)
	}
}

func run(logg *logger.Logger) error {
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), "no .env file, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = serviceName

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), bootTimeout)
	defer cancelBoot()

	dbClient, err := db.New(bootCtx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeQuietly(logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(bootCtx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	pubsubClient, err := pubsub.NewClient(bootCtx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("bootstrap pubsub: %w", err)
	}
	defer closeQuietly(logg, "pubsub", pubsubClient.Close)

	eventRegistry, err := registry.New(cfg.PubSub)
	if err != nil {
		return fmt.Errorf("build event registry: %w", err)
	}

	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      eventRegistry,
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
	})
	if err != nil {
		return fmt.Errorf("build publisher service: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"service_kind": cfg.Service.Kind,
		"instance":     instance.GetID(),
	})

	logg.Info(ctx, "outbox publisher starting")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "outbox publisher stopped cleanly")
	return nil
}

func closeQuietly(logg *logger.Logger, name string, close func() error) {
	if err := close(); err != nil {
		logg.Error(context.Background(), "error closing "+name, err)
	}
}
