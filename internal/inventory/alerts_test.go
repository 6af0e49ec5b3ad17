package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/danielortiz-dev/vendique-backend/pkg/errors"
)

type stubPreferenceSource struct {
	prefs AlertPreferences
	err   error
	calls int
}

func (s *stubPreferenceSource) AlertPreferences(ctx context.Context, storeID uuid.UUID) (AlertPreferences, error) {
	s.calls++
	return s.prefs, s.err
}

type stubNotifier struct {
	alerts []LowStockAlert
	err    error
}

func (s *stubNotifier) NotifyLowStock(ctx context.Context, alert LowStockAlert) error {
	s.alerts = append(s.alerts, alert)
	return s.err
}

type stubThrottle struct {
	allowed bool
	err     error
	scopes  []string
}

func (s *stubThrottle) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	s.scopes = append(s.scopes, scope)
	return s.allowed, 1, s.err
}

func newTestMonitor(t *testing.T, params LowStockMonitorParams) *LowStockMonitor {
	t.Helper()
	if params.PreferenceTTL == 0 {
		params.PreferenceTTL = time.Minute
	}
	monitor, err := NewLowStockMonitor(params)
	if err != nil {
		t.Fatalf("NewLowStockMonitor: %v", err)
	}
	return monitor
}

func TestLowStockMonitorNotifiesOnDownwardCrossing(t *testing.T) {
	t.Parallel()

	prefs := &stubPreferenceSource{prefs: AlertPreferences{Enabled: true}}
	notifier := &stubNotifier{}
	monitor := newTestMonitor(t, LowStockMonitorParams{Preferences: prefs, Notifier: notifier})

	change := StockChange{
		ProductID: uuid.New(),
		StoreID:   uuid.New(),
		Previous:  6,
		New:       5,
		Threshold: 5,
	}
	if err := monitor.Evaluate(context.Background(), change); err != nil {
		t.Fatalf("Evaluate returned %v, want nil", err)
	}
	if len(notifier.alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(notifier.alerts))
	}
	alert := notifier.alerts[0]
	if alert.ProductID != change.ProductID || alert.Quantity != 5 || alert.Threshold != 5 {
		t.Fatalf("unexpected alert %+v", alert)
	}
}

func TestLowStockMonitorSilentWithoutCrossing(t *testing.T) {
	t.Parallel()

	prefs := &stubPreferenceSource{prefs: AlertPreferences{Enabled: true}}
	notifier := &stubNotifier{}
	monitor := newTestMonitor(t, LowStockMonitorParams{Preferences: prefs, Notifier: notifier})

	storeID := uuid.New()
	cases := []struct {
		name     string
		previous int
		current  int
	}{
		{"already below threshold", 5, 4},
		{"still above threshold", 10, 6},
		{"unchanged", 5, 5},
	}
	for _, tc := range cases {
		change := StockChange{ProductID: uuid.New(), StoreID: storeID, Previous: tc.previous, New: tc.current, Threshold: 5}
		if err := monitor.Evaluate(context.Background(), change); err != nil {
			t.Fatalf("%s: Evaluate returned %v, want nil", tc.name, err)
		}
	}
	if len(notifier.alerts) != 0 {
		t.Fatalf("got %d alerts, want 0", len(notifier.alerts))
	}
}

func TestLowStockMonitorHonorsDisabledPreferences(t *testing.T) {
	t.Parallel()

	prefs := &stubPreferenceSource{prefs: AlertPreferences{Enabled: false}}
	notifier := &stubNotifier{}
	throttle := &stubThrottle{allowed: true}
	monitor := newTestMonitor(t, LowStockMonitorParams{Preferences: prefs, Notifier: notifier, Throttle: throttle})

	change := StockChange{ProductID: uuid.New(), StoreID: uuid.New(), Previous: 6, New: 5, Threshold: 5}
	if err := monitor.Evaluate(context.Background(), change); err != nil {
		t.Fatalf("Evaluate returned %v, want nil", err)
	}
	if len(notifier.alerts) != 0 {
		t.Fatal("disabled preferences should suppress alerts")
	}
	if len(throttle.scopes) != 0 {
		t.Fatal("disabled preferences should not consult the throttle")
	}
}

func TestLowStockMonitorStoreThresholdOverridesProduct(t *testing.T) {
	t.Parallel()

	prefs := &stubPreferenceSource{prefs: AlertPreferences{Enabled: true, Threshold: 8}}
	notifier := &stubNotifier{}
	monitor := newTestMonitor(t, LowStockMonitorParams{Preferences: prefs, Notifier: notifier})

	change := StockChange{ProductID: uuid.New(), StoreID: uuid.New(), Previous: 9, New: 8, Threshold: 5}
	if err := monitor.Evaluate(context.Background(), change); err != nil {
		t.Fatalf("Evaluate returned %v, want nil", err)
	}
	if len(notifier.alerts) != 1 {
		t.Fatalf("got %d alerts, want 1 (store threshold 8 should apply)", len(notifier.alerts))
	}
	if notifier.alerts[0].Threshold != 8 {
		t.Fatalf("alert threshold = %d, want 8", notifier.alerts[0].Threshold)
	}
}

func TestLowStockMonitorThrottleSuppressesDelivery(t *testing.T) {
	t.Parallel()

	prefs := &stubPreferenceSource{prefs: AlertPreferences{Enabled: true}}
	notifier := &stubNotifier{}
	throttle := &stubThrottle{allowed: false}
	monitor := newTestMonitor(t, LowStockMonitorParams{Preferences: prefs, Notifier: notifier, Throttle: throttle})

	productID := uuid.New()
	change := StockChange{ProductID: productID, StoreID: uuid.New(), Previous: 6, New: 5, Threshold: 5}
	if err := monitor.Evaluate(context.Background(), change); err != nil {
		t.Fatalf("Evaluate returned %v, want nil (throttled is not an error)", err)
	}
	if len(notifier.alerts) != 0 {
		t.Fatal("throttled alert should not reach the notifier")
	}
	if len(throttle.scopes) != 1 || throttle.scopes[0] != lowStockThrottleScope+":"+productID.String() {
		t.Fatalf("unexpected throttle scopes %v", throttle.scopes)
	}
}

func TestLowStockMonitorCachesPreferencesPerStore(t *testing.T) {
	t.Parallel()

	prefs := &stubPreferenceSource{prefs: AlertPreferences{Enabled: true}}
	notifier := &stubNotifier{}
	monitor := newTestMonitor(t, LowStockMonitorParams{Preferences: prefs, Notifier: notifier})

	storeID := uuid.New()
	change := StockChange{ProductID: uuid.New(), StoreID: storeID, Previous: 6, New: 5, Threshold: 5}
	for i := 0; i < 3; i++ {
		if err := monitor.Evaluate(context.Background(), change); err != nil {
			t.Fatalf("Evaluate %d returned %v", i, err)
		}
	}
	if prefs.calls != 1 {
		t.Fatalf("preference source called %d times, want 1 (cached)", prefs.calls)
	}

	monitor.InvalidatePreferences(storeID)
	if err := monitor.Evaluate(context.Background(), change); err != nil {
		t.Fatalf("Evaluate after invalidate returned %v", err)
	}
	if prefs.calls != 2 {
		t.Fatalf("preference source called %d times after invalidate, want 2", prefs.calls)
	}
}

func TestLowStockMonitorWrapsDependencyFailures(t *testing.T) {
	t.Parallel()

	change := StockChange{ProductID: uuid.New(), StoreID: uuid.New(), Previous: 6, New: 5, Threshold: 5}

	prefs := &stubPreferenceSource{err: errors.New("preference store down")}
	monitor := newTestMonitor(t, LowStockMonitorParams{Preferences: prefs, Notifier: &stubNotifier{}})
	err := monitor.Evaluate(context.Background(), change)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("preference failure returned %v, want code %s", err, pkgerrors.CodeDependency)
	}

	notifier := &stubNotifier{err: errors.New("smtp down")}
	monitor = newTestMonitor(t, LowStockMonitorParams{Preferences: &stubPreferenceSource{prefs: AlertPreferences{Enabled: true}}, Notifier: notifier})
	err = monitor.Evaluate(context.Background(), change)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("notifier failure returned %v, want code %s", err, pkgerrors.CodeDependency)
	}
}

func TestLowStockMonitorNilReceiverIsNoop(t *testing.T) {
	t.Parallel()

	var monitor *LowStockMonitor
	if err := monitor.Evaluate(context.Background(), StockChange{Previous: 6, New: 5, Threshold: 5}); err != nil {
		t.Fatalf("nil monitor Evaluate returned %v, want nil", err)
	}
	monitor.InvalidatePreferences(uuid.New())
}
