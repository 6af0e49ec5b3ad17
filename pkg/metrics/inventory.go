package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// InventoryMetrics records the behavior of the stock reservation subsystem:
// how long operations take, how often optimistic writes collide, and the
// reservation lifecycle volume.
type InventoryMetrics struct {
	duration     *prometheus.HistogramVec
	conflicts    *prometheus.CounterVec
	exhausted    *prometheus.CounterVec
	reservations *prometheus.CounterVec
}

// NewInventoryMetrics registers the inventory metrics on the provided registerer.
func NewInventoryMetrics(reg prometheus.Registerer) *InventoryMetrics {
	if reg == nil {
		return &InventoryMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inventory_operation_duration_seconds",
		Help:    "Duration of inventory operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "outcome"})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_version_conflicts_total",
		Help: "Optimistic version conflicts observed per operation.",
	}, []string{"operation"})
	exhausted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_retry_exhausted_total",
		Help: "Operations that gave up after exhausting the retry budget.",
	}, []string{"operation"})
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_reservation_events_total",
		Help: "Reservation lifecycle transitions by event.",
	}, []string{"event"})
	reg.MustRegister(duration, conflicts, exhausted, reservations)
	return &InventoryMetrics{
		duration:     duration,
		conflicts:    conflicts,
		exhausted:    exhausted,
		reservations: reservations,
	}
}

// ObserveOperation records the duration and outcome for the named operation.
func (m *InventoryMetrics) ObserveOperation(operation, outcome string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Observe(duration.Seconds())
}

// IncConflict increments the version-conflict counter for the named operation.
func (m *InventoryMetrics) IncConflict(operation string) {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncRetryExhausted increments the budget-exhausted counter for the named operation.
func (m *InventoryMetrics) IncRetryExhausted(operation string) {
	if m == nil || m.exhausted == nil {
		return
	}
	m.exhausted.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncReservationEvent increments the lifecycle counter for the named event.
func (m *InventoryMetrics) IncReservationEvent(event string) {
	if m == nil || m.reservations == nil {
		return
	}
	m.reservations.WithLabelValues(normalizeLabel(event)).Inc()
}
