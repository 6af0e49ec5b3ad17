package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/danielortiz-dev/vendique-backend/pkg/cache"
	pkgerrors "github.com/danielortiz-dev/vendique-backend/pkg/errors"
	"github.com/danielortiz-dev/vendique-backend/pkg/logger"
)

// AlertPreferences controls low-stock alerting for one store. A positive
// Threshold overrides the per-product threshold.
type AlertPreferences struct {
	Enabled   bool
	Threshold int
}

// PreferenceSource supplies per-store alert preferences. Implementations live
// outside this module (preference storage is someone else's system).
type PreferenceSource interface {
	AlertPreferences(ctx context.Context, storeID uuid.UUID) (AlertPreferences, error)
}

// LowStockAlert is the payload handed to the notifier when stock crosses a
// threshold.
type LowStockAlert struct {
	ProductID uuid.UUID
	StoreID   uuid.UUID
	Quantity  int
	Threshold int
}

// AlertNotifier delivers low-stock alerts. Implementations live outside this
// module (email, push, whatever the platform wires in).
type AlertNotifier interface {
	NotifyLowStock(ctx context.Context, alert LowStockAlert) error
}

// AlertThrottle rate-limits alert delivery per scope.
type AlertThrottle interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// StockChange describes a committed quantity transition for alert evaluation.
type StockChange struct {
	ProductID uuid.UUID
	StoreID   uuid.UUID
	Previous  int
	New       int
	Threshold int
}

const lowStockThrottleScope = "low-stock"

// LowStockMonitor raises an alert when a committed decrement crosses a
// product below its effective threshold. Preferences are cached; delivery is
// throttled per product so a bouncing quantity cannot spam the notifier.
type LowStockMonitor struct {
	prefs    PreferenceSource
	notifier AlertNotifier
	throttle AlertThrottle
	cache    *cache.Cache[AlertPreferences]
	logg     *logger.Logger
	window   time.Duration
}

// LowStockMonitorParams collects the monitor dependencies.
type LowStockMonitorParams struct {
	Preferences    PreferenceSource
	Notifier       AlertNotifier
	Throttle       AlertThrottle
	PreferenceTTL  time.Duration
	ThrottleWindow time.Duration
	Logger         *logger.Logger
}

// NewLowStockMonitor builds the monitor. Preferences and notifier are
// required; a nil throttle disables rate limiting.
func NewLowStockMonitor(params LowStockMonitorParams) (*LowStockMonitor, error) {
	if params.Preferences == nil {
		return nil, errors.New("preference source is required")
	}
	if params.Notifier == nil {
		return nil, errors.New("alert notifier is required")
	}
	window := params.ThrottleWindow
	if window <= 0 {
		window = time.Hour
	}
	return &LowStockMonitor{
		prefs:    params.Preferences,
		notifier: params.Notifier,
		throttle: params.Throttle,
		cache:    cache.New[AlertPreferences](params.PreferenceTTL),
		logg:     params.Logger,
		window:   window,
	}, nil
}

// Evaluate inspects one committed stock change and delivers an alert when the
// quantity crossed to at or below the effective threshold. Callers run it
// after the transaction commits and treat failures as log-and-continue.
func (m *LowStockMonitor) Evaluate(ctx context.Context, change StockChange) error {
	if m == nil {
		return nil
	}

	prefs, err := m.cache.GetOrCompute(ctx, change.StoreID.String(), func(ctx context.Context) (AlertPreferences, error) {
		return m.prefs.AlertPreferences(ctx, change.StoreID)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load alert preferences")
	}
	if !prefs.Enabled {
		return nil
	}

	threshold := change.Threshold
	if prefs.Threshold > 0 {
		threshold = prefs.Threshold
	}
	if threshold <= 0 || !crossedBelow(change.Previous, change.New, threshold) {
		return nil
	}

	if m.throttle != nil {
		scope := lowStockThrottleScope + ":" + change.ProductID.String()
		allowed, _, err := m.throttle.FixedWindowAllow(ctx, scope, 1, m.window)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "low stock alert throttle")
		}
		if !allowed {
			if m.logg != nil {
				logCtx := m.logg.WithProductID(ctx, change.ProductID.String())
				logCtx = m.logg.WithStoreID(logCtx, change.StoreID.String())
				m.logg.Info(logCtx, "low stock alert suppressed by throttle")
			}
			return nil
		}
	}

	alert := LowStockAlert{
		ProductID: change.ProductID,
		StoreID:   change.StoreID,
		Quantity:  change.New,
		Threshold: threshold,
	}
	if err := m.notifier.NotifyLowStock(ctx, alert); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deliver low stock alert")
	}
	return nil
}

// InvalidatePreferences drops a store's cached preferences so the next
// evaluation reloads them.
func (m *LowStockMonitor) InvalidatePreferences(storeID uuid.UUID) {
	if m == nil {
		return
	}
	m.cache.Invalidate(storeID.String())
}

// crossedBelow reports a strict downward crossing: alerts fire on the
// transition, not on every write that stays under the threshold.
func crossedBelow(previous, current, threshold int) bool {
	return previous > threshold && current <= threshold
}
