// Package queue runs side effects of payment state changes on a bounded in-process worker pool.
package queue

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrPoolStopped is returned when a job is enqueued after Stop
var ErrPoolStopped = errors.New("worker pool stopped")

var jobsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "seatpay_side_effects_total",
		Help: "Side-effect job attempts, by result",
	},
	[]string{"result"},
)

// Job is a retryable unit of work. Run must be safe to call more than once.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}
