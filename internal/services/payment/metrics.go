package payment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics
var (
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seatpay_transitions_total",
			Help: "Status transitions applied, by kind, provider, new status and source",
		},
		[]string{"kind", "provider", "status", "source"},
	)

	callbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seatpay_callbacks_total",
			Help: "Provider callbacks received, by provider and result",
		},
		[]string{"provider", "result"},
	)

	reconcileRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seatpay_reconcile_runs_total",
			Help: "Reconciliation sweeps, by result",
		},
		[]string{"result"},
	)

	reconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "seatpay_reconcile_duration_seconds",
			Help:    "Duration of completed reconciliation sweeps",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300},
		},
	)
)
