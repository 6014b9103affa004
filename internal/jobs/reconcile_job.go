// Package jobs schedules the background work that runs inside the server process.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/seatpay/backend/internal/services/payment"
	"go.uber.org/zap"
)

// Reconciler runs one reconciliation sweep
type Reconciler interface {
	Reconcile(ctx context.Context) (*payment.ReconcileReport, error)
}

// ReconcileJob runs the reconciliation sweep on a fixed interval
type ReconcileJob struct {
	reconciler Reconciler
	interval   time.Duration
	timeout    time.Duration
	scheduler  *gocron.Scheduler
	logger     *zap.Logger
}

// NewReconcileJob creates a new reconcile job. Each sweep is bounded by the interval so a
// stuck provider cannot pile sweeps up behind it.
func NewReconcileJob(reconciler Reconciler, interval time.Duration, logger *zap.Logger) *ReconcileJob {
	return &ReconcileJob{
		reconciler: reconciler,
		interval:   interval,
		timeout:    interval,
		scheduler:  gocron.NewScheduler(time.UTC),
		logger:     logger.Named("jobs"),
	}
}

// Start schedules the sweep. The first run happens one interval after Start.
func (j *ReconcileJob) Start() error {
	if j.interval <= 0 {
		return fmt.Errorf("reconcile interval must be positive, got %s", j.interval)
	}

	_, err := j.scheduler.Every(j.interval).SingletonMode().WaitForSchedule().Do(j.run)
	if err != nil {
		return fmt.Errorf("failed to schedule reconciliation: %w", err)
	}

	j.scheduler.StartAsync()
	j.logger.Info("reconciliation scheduled", zap.Duration("interval", j.interval))
	return nil
}

// Stop stops the scheduler; a sweep in flight runs to completion
func (j *ReconcileJob) Stop() {
	j.scheduler.Stop()
}

func (j *ReconcileJob) run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	report, err := j.reconciler.Reconcile(ctx)
	switch {
	case errors.Is(err, payment.ErrSweepInProgress):
		j.logger.Info("skipping reconciliation, another sweep is running")
	case err != nil:
		j.logger.Error("scheduled reconciliation failed", zap.Error(err))
	default:
		total := report.Total()
		j.logger.Debug("scheduled reconciliation done",
			zap.Int("checked", total.Checked),
			zap.Int("errors", total.Errors))
	}
}
