package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/danielortiz-dev/vendique-backend/pkg/config"
	"github.com/danielortiz-dev/vendique-backend/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Client owns the process-wide GORM handle. Repositories borrow it through
// DB(); connection tuning happens here and nowhere else.
type Client struct {
	conn *gorm.DB
}

// Pinger is the probe surface the ops endpoints depend on.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New opens the configured datasource and tunes its pool. GORM's own SQL
// logging stays off; visibility comes from the structured app logs.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is not set")
	}

	conn, err := gorm.Open(dialectorFor(cfg), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pool, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("sql pool handle: %w", err)
	}
	tunePool(pool, cfg)

	if logg != nil {
		logg.Info(ctx, "database connection ready")
	}

	return &Client{conn: conn}, nil
}

// dialectorFor picks the driver. SQLite backs local development and tests;
// everything else runs postgres with the simple protocol for PgBouncer.
func dialectorFor(cfg config.DBConfig) gorm.Dialector {
	if cfg.Driver == "sqlite" {
		return sqlite.Open(cfg.DSN)
	}
	return postgres.New(postgres.Config{
		DSN:                  cfg.DSN,
		PreferSimpleProtocol: true,
	})
}

func tunePool(pool *sql.DB, cfg config.DBConfig) {
	if cfg.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		pool.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

// DB exposes the raw GORM handle.
func (c *Client) DB() *gorm.DB {
	return c.conn
}

// Ping checks the datasource end to end.
func (c *Client) Ping(ctx context.Context) error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

// Close drains the connection pool.
func (c *Client) Close() error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}

// WithTx runs fn inside a transaction. GORM rolls back when fn errors or
// panics and commits otherwise.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(fn)
}
