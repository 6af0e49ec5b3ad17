package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockTTL = 10 * time.Minute

// Lock serializes cycles across worker replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// redisStore is the slice of the redis client the lock needs.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock is a SETNX lease with an owner token. The token keeps a replica
// from releasing a lease that expired and was re-acquired by another instance.
type RedisLock struct {
	client redisStore
	key    string
	ttl    time.Duration
	owner  string
}

// NewRedisLock builds a lock scoped to one worker and environment.
func NewRedisLock(client redisStore, worker, env string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if worker == "" {
		return nil, errors.New("worker name is required")
	}
	if env == "" {
		env = "local"
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{
		client: client,
		key:    fmt.Sprintf("vq:%s:lock:%s", worker, env),
		ttl:    ttl,
	}, nil
}

// Key returns the redis key the lock leases.
func (l *RedisLock) Key() string { return l.key }

// Acquire takes the lease for the configured TTL. A false return means another
// instance holds it.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

// Release drops the lease when this instance still owns it. A lease that
// expired and was re-acquired elsewhere is left alone.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	defer func() { l.owner = "" }()
	value, err := l.client.Get(ctx, l.key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("read lock owner %s: %w", l.key, err)
	}
	if value != l.owner {
		return nil
	}
	if err := l.client.Del(ctx, l.key); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
