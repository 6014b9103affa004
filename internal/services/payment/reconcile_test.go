package payment

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/seatpay/backend/internal/models"
	"github.com/seatpay/backend/internal/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeLocker struct {
	held     bool
	err      error
	unlocked int
}

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key string) error {
	l.held = false
	l.unlocked++
	return nil
}

func statusQuery(tx *models.Transaction) interface{} {
	return mock.MatchedBy(func(q providers.StatusQuery) bool {
		return q.ProviderReferenceID == tx.ProviderReferenceID && q.Kind == tx.Kind
	})
}

func reconcileHarness(t *testing.T) *harness {
	h := newHarness(t)
	h.mtn.On("ValidateConfig").Return(nil)
	h.orange.On("ValidateConfig").Return(nil)
	return h
}

func TestReconcile_StillProcessingStaysPending(t *testing.T) {
	h := reconcileHarness(t)
	tx := h.seed(t, models.KindPayin, models.ProviderMTN, models.StatusPending, 6*time.Minute)
	h.mtn.On("CheckStatus", mock.Anything, statusQuery(tx)).Return(&providers.StatusResult{Found: true, RawStatus: "PENDING"}, nil)

	report, err := h.svc.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, h.get(t, tx).Status)
	assert.Equal(t, 1, report.Kinds[models.KindPayin].Checked)
	assert.Equal(t, 1, report.Kinds[models.KindPayin].Pending)
	assert.Zero(t, report.Kinds[models.KindPayin].TimedOut)
}

func TestReconcile_NotFoundPastDeadlineTimesOut(t *testing.T) {
	h := reconcileHarness(t)
	old := h.seed(t, models.KindPayin, models.ProviderMTN, models.StatusPending, 25*time.Hour)
	young := h.seed(t, models.KindPayin, models.ProviderMTN, models.StatusPending, time.Hour)
	h.mtn.On("CheckStatus", mock.Anything, mock.Anything).Return(&providers.StatusResult{Found: false}, nil)
	h.bookings.On("GetBooking", mock.Anything, old.BookingID).Return(booking(old.BookingID), nil)
	h.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil).Once()

	report, err := h.svc.Reconcile(context.Background())
	require.NoError(t, err)

	got := h.get(t, old)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "reconciliation timeout", got.ErrorMessage)
	assert.Equal(t, models.StatusPending, h.get(t, young).Status)
	assert.Equal(t, 1, report.Kinds[models.KindPayin].TimedOut)
	assert.Equal(t, 1, report.Kinds[models.KindPayin].Pending)
	h.notifier.AssertExpectations(t)
}

func TestReconcile_SkipsFreshTransactions(t *testing.T) {
	h := reconcileHarness(t)
	h.seed(t, models.KindPayin, models.ProviderMTN, models.StatusPending, time.Minute)

	report, err := h.svc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Total().Checked)
	h.mtn.AssertNotCalled(t, "CheckStatus", mock.Anything, mock.Anything)
}

func TestReconcile_AllKinds(t *testing.T) {
	h := reconcileHarness(t)
	payin := h.seed(t, models.KindPayin, models.ProviderMTN, models.StatusPending, 10*time.Minute)
	payout := h.seed(t, models.KindPayout, models.ProviderOrange, models.StatusProcessing, 10*time.Minute)
	refund := h.seed(t, models.KindRefund, models.ProviderMTN, models.StatusPending, 10*time.Minute)
	broken := h.seed(t, models.KindPayout, models.ProviderMTN, models.StatusPending, 10*time.Minute)

	h.mtn.On("CheckStatus", mock.Anything, statusQuery(payin)).Return(&providers.StatusResult{Found: true, RawStatus: "SUCCESSFUL", ProviderTransactionID: "FT-5"}, nil)
	h.orange.On("CheckStatus", mock.Anything, statusQuery(payout)).Return(&providers.StatusResult{Found: true, RawStatus: "FAILED", Reason: "insufficient float"}, nil)
	h.mtn.On("CheckStatus", mock.Anything, statusQuery(refund)).Return(&providers.StatusResult{Found: true, RawStatus: "SUCCESSFUL"}, nil)
	h.mtn.On("CheckStatus", mock.Anything, statusQuery(broken)).Return(nil, fmt.Errorf("status: %w", providers.ErrProviderUnavailable))

	h.bookings.On("ConfirmPayment", mock.Anything, payin.BookingID, payin.ID).Return(nil).Once()
	h.bookings.On("GetBooking", mock.Anything, mock.Anything).Return(booking("any"), nil)
	h.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil).Twice()

	report, err := h.svc.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, h.get(t, payin).Status)
	assert.Equal(t, "FT-5", h.get(t, payin).ProviderTransactionID)
	assert.Equal(t, models.StatusFailed, h.get(t, payout).Status)
	assert.Equal(t, "insufficient float", h.get(t, payout).ErrorMessage)
	assert.Equal(t, models.StatusRefunded, h.get(t, refund).Status)
	assert.Equal(t, models.StatusPending, h.get(t, broken).Status)

	assert.Equal(t, 1, report.Kinds[models.KindPayin].Completed)
	assert.Equal(t, 1, report.Kinds[models.KindPayout].Failed)
	assert.Equal(t, 1, report.Kinds[models.KindPayout].Errors)
	assert.Equal(t, 1, report.Kinds[models.KindRefund].Refunded)
	assert.Equal(t, 4, report.Total().Checked)
	h.bookings.AssertExpectations(t)
	h.notifier.AssertExpectations(t)
}

func TestReconcile_UnknownStatus(t *testing.T) {
	h := reconcileHarness(t)
	recent := h.seed(t, models.KindPayin, models.ProviderMTN, models.StatusPending, 10*time.Minute)
	ancient := h.seed(t, models.KindPayin, models.ProviderMTN, models.StatusPending, 30*time.Hour)
	h.mtn.On("CheckStatus", mock.Anything, mock.Anything).Return(&providers.StatusResult{Found: true, RawStatus: "HELD", RawResponse: []byte(`{"status":"HELD"}`)}, nil)
	h.bookings.On("GetBooking", mock.Anything, ancient.BookingID).Return(booking(ancient.BookingID), nil)
	h.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

	report, err := h.svc.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, h.get(t, recent).Status)
	assert.JSONEq(t, `{"status":"HELD"}`, string(h.get(t, recent).ProviderRawResponse))
	assert.Equal(t, models.StatusFailed, h.get(t, ancient).Status)
	assert.Equal(t, 1, report.Kinds[models.KindPayin].Unknown)
	assert.Equal(t, 1, report.Kinds[models.KindPayin].TimedOut)
}

func TestReconcile_Misconfigured(t *testing.T) {
	h := newHarness(t)
	h.mtn.On("ValidateConfig").Return(nil)
	h.orange.On("ValidateConfig").Return(fmt.Errorf("%w: client id missing", providers.ErrNotConfigured))
	h.seed(t, models.KindPayin, models.ProviderMTN, models.StatusPending, time.Hour)

	_, err := h.svc.Reconcile(context.Background())
	assert.ErrorIs(t, err, ErrMisconfigured)
	assert.ErrorIs(t, err, providers.ErrNotConfigured)
	assert.Contains(t, err.Error(), "orange")
	h.mtn.AssertNotCalled(t, "CheckStatus", mock.Anything, mock.Anything)
}

func TestReconcile_Lock(t *testing.T) {
	h := reconcileHarness(t)
	locker := &fakeLocker{held: true}
	h.svc.SetLocker(locker)

	_, err := h.svc.Reconcile(context.Background())
	assert.ErrorIs(t, err, ErrSweepInProgress)

	locker.held = false
	_, err = h.svc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.False(t, locker.held)
	assert.Equal(t, 1, locker.unlocked)

	// Redis being down does not stop the sweep
	locker.err = errors.New("connection refused")
	_, err = h.svc.Reconcile(context.Background())
	assert.NoError(t, err)
}
