package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestInventoryMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewInventoryMetrics(reg)
	op := "reserve_stock"

	m.ObserveOperation(op, "success", 40*time.Millisecond)
	m.IncConflict(op)
	m.IncConflict(op)
	m.IncRetryExhausted(op)
	m.IncReservationEvent("created")

	if got := gatherValue(t, reg, "inventory_version_conflicts_total", map[string]string{"operation": op}); got != 2 {
		t.Fatalf("conflicts: got %f want 2", got)
	}
	if got := gatherValue(t, reg, "inventory_retry_exhausted_total", map[string]string{"operation": op}); got != 1 {
		t.Fatalf("exhausted: got %f want 1", got)
	}
	if got := gatherValue(t, reg, "inventory_reservation_events_total", map[string]string{"event": "created"}); got != 1 {
		t.Fatalf("reservation events: got %f want 1", got)
	}
	if got := gatherValue(t, reg, "inventory_operation_duration_seconds", map[string]string{"operation": op, "outcome": "success"}); got <= 0 {
		t.Fatalf("duration sum should be positive, got %f", got)
	}
}

func TestInventoryMetricsNilReceiversAreSafe(t *testing.T) {
	var m *InventoryMetrics
	m.ObserveOperation("x", "y", time.Second)
	m.IncConflict("x")
	m.IncRetryExhausted("x")
	m.IncReservationEvent("x")

	NewInventoryMetrics(nil).IncConflict("x")
}
