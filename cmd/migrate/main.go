package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/danielortiz-dev/vendique-backend/pkg/config"
	"github.com/danielortiz-dev/vendique-backend/pkg/db"
	"github.com/danielortiz-dev/vendique-backend/pkg/logger"
	"github.com/danielortiz-dev/vendique-backend/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	var (
		cmd     = flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
		dir     = flag.String("dir", migrate.DefaultDir, "goose migrations directory")
		name    = flag.String("name", "", "migration name, used by -cmd=create")
		version = flag.String("version", "", "target version (YYYYMMDDHHMMSS), used by -cmd=version")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
		"dir": *dir,
	})

	switch *cmd {
	case "create":
		runCreate(*dir, *name)
	case "validate":
		runValidate(*dir)
	case "up", "down", "status":
		withDB(ctx, cfg, logg, func(sqlDB *sql.DB) error {
			return migrate.Run(ctx, sqlDB, *dir, *cmd)
		})
	case "version":
		target, err := strconv.ParseInt(*version, 10, 64)
		if err != nil || target <= 0 {
			fatalf("invalid -version %q (expected YYYYMMDDHHMMSS)", *version)
		}
		withDB(ctx, cfg, logg, func(sqlDB *sql.DB) error {
			return migrate.MigrateTo(ctx, sqlDB, *dir, target)
		})
	default:
		fatalf("unknown -cmd value: %s", *cmd)
	}
}

func runCreate(dir, name string) {
	if name == "" {
		fatalf("missing -name for create")
	}
	path, err := migrate.CreateSQLMigration(dir, name)
	if err != nil {
		fatalf("create migration: %v", err)
	}
	fmt.Println("created migration:", path)
}

func runValidate(dir string) {
	if err := migrate.ValidateDir(dir); err != nil {
		fatalf("migration validation failed: %v", err)
	}
	fmt.Println("migration validation passed")
}

func withDB(ctx context.Context, cfg *config.Config, logg *logger.Logger, fn func(*sql.DB) error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		logg.Error(ctx, "failed to extract sql handle", err)
		os.Exit(1)
	}

	if err := fn(sqlDB); err != nil {
		logg.Error(ctx, "migration command failed", err)
		os.Exit(1)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
