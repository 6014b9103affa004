package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/seatpay/backend/internal/models"
	"github.com/seatpay/backend/internal/providers"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	reconcileLockKey    = "reconcile:lock"
	reconcileTimeoutMsg = "reconciliation timeout"
)

// KindReport counts what one sweep did for one transaction kind
type KindReport struct {
	Checked   int `json:"checked"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Refunded  int `json:"refunded"`
	Pending   int `json:"pending"`
	Unknown   int `json:"unknown"`
	TimedOut  int `json:"timed_out"`
	Errors    int `json:"errors"`
}

// ReconcileReport is the result of one sweep
type ReconcileReport struct {
	StartedAt  time.Time                   `json:"started_at"`
	FinishedAt time.Time                   `json:"finished_at"`
	Kinds      map[models.Kind]*KindReport `json:"kinds"`

	mu sync.Mutex
}

func newReconcileReport(now time.Time) *ReconcileReport {
	r := &ReconcileReport{StartedAt: now, Kinds: make(map[models.Kind]*KindReport)}
	for _, k := range models.Kinds {
		r.Kinds[k] = &KindReport{}
	}
	return r
}

func (r *ReconcileReport) count(kind models.Kind, f func(k *KindReport)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f(r.Kinds[kind])
}

// Total sums the per-kind counters
func (r *ReconcileReport) Total() KindReport {
	var t KindReport
	for _, k := range r.Kinds {
		t.Checked += k.Checked
		t.Completed += k.Completed
		t.Failed += k.Failed
		t.Refunded += k.Refunded
		t.Pending += k.Pending
		t.Unknown += k.Unknown
		t.TimedOut += k.TimedOut
		t.Errors += k.Errors
	}
	return t
}

// ValidateProviders checks every registered adapter's credentials
func (s *Service) ValidateProviders() error {
	if len(s.providers) == 0 {
		return fmt.Errorf("%w: no provider registered", ErrMisconfigured)
	}
	var errs []error
	for _, name := range s.Providers() {
		if err := s.providers[name].ValidateConfig(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrMisconfigured, errors.Join(errs...))
	}
	return nil
}

// Reconcile polls providers for every payin, payout and refund that has been active for longer
// than StaleAfter and applies what they report. Transactions the provider cannot resolve are
// failed once they are older than FailAfter. A failure on one transaction never stops the sweep.
func (s *Service) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	if err := s.ValidateProviders(); err != nil {
		reconcileRunsTotal.WithLabelValues("misconfigured").Inc()
		return nil, err
	}
	if !s.sweeping.CompareAndSwap(false, true) {
		reconcileRunsTotal.WithLabelValues("skipped").Inc()
		return nil, ErrSweepInProgress
	}
	defer s.sweeping.Store(false)

	if s.locker != nil {
		locked, err := s.locker.TryLock(ctx, reconcileLockKey, s.opts.LockTTL)
		switch {
		case err != nil:
			s.logger.Warn("could not take reconcile lock, sweeping anyway", zap.Error(err))
		case !locked:
			reconcileRunsTotal.WithLabelValues("skipped").Inc()
			return nil, ErrSweepInProgress
		default:
			defer func() {
				if err := s.locker.Unlock(context.WithoutCancel(ctx), reconcileLockKey); err != nil {
					s.logger.Warn("could not release reconcile lock", zap.Error(err))
				}
			}()
		}
	}

	now := s.now()
	report := newReconcileReport(now)
	cutoff := now.Add(-s.opts.StaleAfter)

	for _, kind := range models.Kinds {
		stale, err := s.store.FindStale(ctx, kind, cutoff, models.ActiveStatuses, s.opts.BatchSize)
		if err != nil {
			s.logger.Error("could not load stale transactions", zap.String("kind", string(kind)), zap.Error(err))
			report.count(kind, func(k *KindReport) { k.Errors++ })
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.opts.Parallelism)
		for _, tx := range stale {
			tx := tx
			g.Go(func() error {
				s.reconcileOne(gctx, tx, now, report)
				return nil
			})
		}
		_ = g.Wait()
	}

	report.FinishedAt = s.now()
	reconcileRunsTotal.WithLabelValues("completed").Inc()
	reconcileDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	total := report.Total()
	s.logger.Info("reconciliation finished",
		zap.Int("checked", total.Checked),
		zap.Int("completed", total.Completed),
		zap.Int("failed", total.Failed),
		zap.Int("refunded", total.Refunded),
		zap.Int("timed_out", total.TimedOut),
		zap.Int("errors", total.Errors),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}

func (s *Service) reconcileOne(ctx context.Context, tx *models.Transaction, now time.Time, report *ReconcileReport) {
	log := s.logger.With(
		zap.String("kind", string(tx.Kind)),
		zap.String("transaction_id", tx.ID.String()),
		zap.String("provider", string(tx.Provider)))
	report.count(tx.Kind, func(k *KindReport) { k.Checked++ })
	expired := tx.Age(now) > s.opts.FailAfter

	adapter, err := s.adapter(tx.Provider)
	if err != nil {
		log.Error("no adapter for stale transaction", zap.Error(err))
		report.count(tx.Kind, func(k *KindReport) { k.Errors++ })
		return
	}

	res, err := adapter.CheckStatus(ctx, providers.StatusQuery{
		Kind:                  tx.Kind,
		ProviderReferenceID:   tx.ProviderReferenceID,
		ProviderTransactionID: tx.ProviderTransactionID,
	})
	if err != nil {
		log.Warn("status check failed", zap.Error(err))
		report.count(tx.Kind, func(k *KindReport) { k.Errors++ })
		return
	}

	if !res.Found {
		if expired {
			s.timeout(ctx, tx, res.RawResponse, report)
			return
		}
		report.count(tx.Kind, func(k *KindReport) { k.Pending++ })
		return
	}

	result, err := s.applyOutcome(ctx, tx, outcome{
		source:                "reconcile",
		rawStatus:             res.RawStatus,
		providerTransactionID: res.ProviderTransactionID,
		raw:                   res.RawResponse,
		reason:                res.Reason,
	})
	if err != nil {
		log.Error("could not apply status", zap.Error(err))
		report.count(tx.Kind, func(k *KindReport) { k.Errors++ })
		return
	}

	switch result {
	case models.StatusUnknown:
		if expired {
			s.timeout(ctx, tx, nil, report)
			return
		}
		report.count(tx.Kind, func(k *KindReport) { k.Unknown++ })
	case models.StatusCompleted:
		report.count(tx.Kind, func(k *KindReport) { k.Completed++ })
	case models.StatusFailed:
		report.count(tx.Kind, func(k *KindReport) { k.Failed++ })
	case models.StatusRefunded:
		report.count(tx.Kind, func(k *KindReport) { k.Refunded++ })
	default:
		report.count(tx.Kind, func(k *KindReport) { k.Pending++ })
	}
}

func (s *Service) timeout(ctx context.Context, tx *models.Transaction, raw []byte, report *ReconcileReport) {
	applied, err := s.fail(ctx, tx, reconcileTimeoutMsg, raw)
	switch {
	case err != nil:
		s.logger.Error("could not time out transaction", zap.String("transaction_id", tx.ID.String()), zap.Error(err))
		report.count(tx.Kind, func(k *KindReport) { k.Errors++ })
	case applied:
		report.count(tx.Kind, func(k *KindReport) { k.TimedOut++ })
	default:
		// Someone else resolved it meanwhile
		report.count(tx.Kind, func(k *KindReport) { k.Pending++ })
	}
}
