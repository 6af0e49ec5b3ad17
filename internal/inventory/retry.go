package inventory

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/danielortiz-dev/vendique-backend/pkg/config"
	dbpkg "github.com/danielortiz-dev/vendique-backend/pkg/db"
	pkgerrors "github.com/danielortiz-dev/vendique-backend/pkg/errors"
	"github.com/danielortiz-dev/vendique-backend/pkg/logger"
	"github.com/danielortiz-dev/vendique-backend/pkg/metrics"
)

const (
	defaultRetryAttempts = 3
	defaultRetryInitial  = 25 * time.Millisecond
	defaultRetryMax      = 250 * time.Millisecond
)

// RetryCoordinator re-runs an operation when it loses an optimistic version
// race. Only db.ErrStaleVersion triggers a retry; every other failure is
// returned untouched. Each attempt re-reads all state, so the operation body
// must be safe to run from scratch.
type RetryCoordinator struct {
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	metrics        *metrics.InventoryMetrics
	logg           *logger.Logger
}

// NewRetryCoordinator builds a coordinator from the inventory retry knobs.
func NewRetryCoordinator(cfg config.InventoryConfig, m *metrics.InventoryMetrics, logg *logger.Logger) *RetryCoordinator {
	attempts := cfg.RetryMaxAttempts
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	initial := cfg.RetryInitialBackoff
	if initial <= 0 {
		initial = defaultRetryInitial
	}
	max := cfg.RetryMaxBackoff
	if max < initial {
		max = defaultRetryMax
		if max < initial {
			max = initial
		}
	}
	return &RetryCoordinator{
		maxAttempts:    attempts,
		initialBackoff: initial,
		maxBackoff:     max,
		metrics:        m,
		logg:           logg,
	}
}

// Do runs fn up to the attempt budget. When the budget is exhausted the last
// stale-version error is wrapped with code conflict so callers can surface a
// retryable failure.
func (c *RetryCoordinator) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	attempts := 0
	backoff := c.initialBackoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !dbpkg.IsStaleVersion(err) {
			return err
		}

		attempts++
		c.metrics.IncConflict(operation)
		if attempts >= c.maxAttempts {
			c.metrics.IncRetryExhausted(operation)
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err,
				fmt.Sprintf("%s: concurrent update persisted after %d attempts", operation, attempts))
		}

		if c.logg != nil {
			logCtx := c.logg.WithFields(ctx, map[string]any{
				"operation": operation,
				"attempt":   attempts,
			})
			c.logg.Warn(logCtx, "version conflict, retrying with fresh reads")
		}

		timer := time.NewTimer(withJitter(backoff))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		timer.Stop()

		backoff = minDuration(backoff*2, c.maxBackoff)
	}
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(rand.Int63n(int64(d)/2+1))
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
