package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/danielortiz-dev/vendique-backend/pkg/config"
	"github.com/danielortiz-dev/vendique-backend/pkg/logger"
)

const (
	keyNamespace   = "vq"
	throttlePrefix = "throttle"
)

var errNotReady = errors.New("redis client not initialized")

// cmdable is the slice of go-redis the client touches; tests swap in fakes.
type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Incr(context.Context, string) *redis.IntCmd
	Expire(context.Context, string, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
}

// Client carries the redis-backed helpers the workers need: lease keys for
// the cron lock and fixed-window counters for alert throttling.
type Client struct {
	store cmdable
	conn  *redis.Client
}

// Pinger narrows Client to the health probe.
type Pinger interface {
	Ping(context.Context) error
}

// New dials redis from config and verifies connectivity before returning.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	o, err := buildOptions(cfg)
	if err != nil {
		return nil, err
	}
	conn := redis.NewClient(o)
	if err := conn.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "redis connection established")
	}
	return &Client{store: conn, conn: conn}, nil
}

// buildOptions prefers a full connection URL; discrete address fields are the
// fallback. Config values fill whatever the URL left unset.
func buildOptions(cfg config.RedisConfig) (*redis.Options, error) {
	var o *redis.Options
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		o = parsed
	case cfg.Address != "":
		o = &redis.Options{Addr: cfg.Address, Password: cfg.Password}
	default:
		return nil, errors.New("redis url or address is required")
	}

	if o.DB == 0 {
		o.DB = cfg.DB
	}
	if o.PoolSize == 0 {
		o.PoolSize = cfg.PoolSize
	}
	if o.MinIdleConns == 0 {
		o.MinIdleConns = cfg.MinIdleConns
	}
	if o.DialTimeout == 0 {
		o.DialTimeout = cfg.DialTimeout
	}
	if o.ReadTimeout == 0 {
		o.ReadTimeout = cfg.ReadTimeout
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = cfg.WriteTimeout
	}
	return o, nil
}

// Get returns the string stored at key. redis.Nil passes through untouched so
// callers can tell a missing key from a failure.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c.store == nil {
		return "", errNotReady
	}
	return c.store.Get(ctx, key).Result()
}

// SetNX writes key only when it does not exist yet and reports whether the
// write won.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c.store == nil {
		return false, errNotReady
	}
	return c.store.SetNX(ctx, key, value, ttl).Result()
}

// Del drops the given keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c.store == nil {
		return errNotReady
	}
	return c.store.Del(ctx, keys...).Err()
}

// FixedWindowAllow counts one hit against scope's current window and reports
// whether the hit stays within limit. The first hit of a window stamps the
// TTL, so the window starts when the first event lands.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	if c.store == nil {
		return false, 0, errNotReady
	}
	key := buildKey(throttlePrefix, scope)
	count, err := c.store.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if window > 0 && count == 1 {
		if err := c.store.Expire(ctx, key, window).Err(); err != nil {
			return false, count, err
		}
	}
	return count <= limit, count, nil
}

// Ping reports whether the server answers.
func (c *Client) Ping(ctx context.Context) error {
	if c.store == nil {
		return errNotReady
	}
	return c.store.Ping(ctx).Err()
}

// Close shuts down the underlying pool.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func buildKey(parts ...string) string {
	clean := []string{keyNamespace}
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			clean = append(clean, trimmed)
		}
	}
	return strings.Join(clean, ":")
}
