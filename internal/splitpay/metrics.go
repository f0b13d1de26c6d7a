package splitpay

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// OpsTotal counts engine operations by name and result kind.
	OpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "travelconnect",
			Name:      "splitpay_operations_total",
			Help:      "Total split payment operations by operation and result.",
		},
		[]string{"op", "result"},
	)

	// OpDuration observes operation latency by name.
	OpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "travelconnect",
			Name:      "splitpay_operation_duration_seconds",
			Help:      "Split payment operation duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"op"},
	)

	// AmountMismatchTotal counts payment confirmations whose amount did not
	// match the milestone. Any increase warrants investigation.
	AmountMismatchTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "travelconnect",
			Name:      "splitpay_amount_mismatch_total",
			Help:      "Milestone payments rejected for amount mismatch.",
		},
	)

	// IdempotencyConflictsTotal counts replayed payment confirmations.
	IdempotencyConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "travelconnect",
			Name:      "splitpay_idempotency_conflicts_total",
			Help:      "Payment confirmations rejected as duplicates, by kind.",
		},
		[]string{"kind"},
	)

	// OverdueMilestones tracks the overdue count seen by the last sweep.
	OverdueMilestones = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "travelconnect",
			Name:      "splitpay_overdue_milestones",
			Help:      "Pending milestones past their due date at the last sweep.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		OpsTotal,
		OpDuration,
		AmountMismatchTotal,
		IdempotencyConflictsTotal,
		OverdueMilestones,
	)
}

// observeOp starts timing op and returns a function that records the outcome.
func observeOp(op string) func(err error) {
	start := time.Now()
	return func(err error) {
		OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		result := "ok"
		if k := KindOf(err); k != KindNone {
			result = string(k)
		}
		OpsTotal.WithLabelValues(op, result).Inc()
	}
}
