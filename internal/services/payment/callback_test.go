package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/seatpay/backend/internal/models"
	"github.com/seatpay/backend/internal/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestHandleCallback_NoDowngradeAfterSuccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tx := h.seed(t, models.KindPayin, models.ProviderMTN, models.StatusPending, time.Minute)

	h.bookings.On("ConfirmPayment", mock.Anything, tx.BookingID, tx.ID).Return(nil).Once()
	h.mtn.On("ParseCallback", []byte(`first`)).Return(&providers.Callback{ReferenceID: tx.ProviderReferenceID, RawStatus: "SUCCESSFUL", TransactionID: "FT-9"}, nil)
	h.mtn.On("ParseCallback", []byte(`second`)).Return(&providers.Callback{ReferenceID: tx.ProviderReferenceID, RawStatus: "PENDING"}, nil)

	require.NoError(t, h.svc.HandleCallback(ctx, models.ProviderMTN, []byte(`first`)))
	require.NoError(t, h.svc.HandleCallback(ctx, models.ProviderMTN, []byte(`second`)))

	got := h.get(t, tx)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, "FT-9", got.ProviderTransactionID)
	h.bookings.AssertNumberOfCalls(t, "ConfirmPayment", 1)
}

func TestHandleCallback_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tx := h.seed(t, models.KindPayout, models.ProviderOrange, models.StatusPending, time.Minute)

	h.bookings.On("MarkPayoutApplied", mock.Anything, tx.BookingID, tx.ID).Return(nil)
	h.orange.On("ParseCallback", mock.Anything).Return(&providers.Callback{ReferenceID: tx.ProviderReferenceID, RawStatus: "SUCCESSFULL"}, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, h.svc.HandleCallback(ctx, models.ProviderOrange, []byte(`{}`)))
	}
	assert.Equal(t, models.StatusCompleted, h.get(t, tx).Status)
	h.bookings.AssertNumberOfCalls(t, "MarkPayoutApplied", 1)
}

func TestHandleCallback_ProcessingThenFailed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tx := h.seed(t, models.KindPayin, models.ProviderMTN, models.StatusPending, time.Minute)

	h.bookings.On("GetBooking", mock.Anything, tx.BookingID).Return(booking(tx.BookingID), nil)
	h.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil).Once()
	h.mtn.On("ParseCallback", []byte(`ongoing`)).Return(&providers.Callback{ReferenceID: tx.ProviderReferenceID, RawStatus: "ONGOING"}, nil)
	h.mtn.On("ParseCallback", []byte(`failed`)).Return(&providers.Callback{ReferenceID: tx.ProviderReferenceID, RawStatus: "FAILED", Reason: "PAYER_NOT_FOUND"}, nil)

	require.NoError(t, h.svc.HandleCallback(ctx, models.ProviderMTN, []byte(`ongoing`)))
	assert.Equal(t, models.StatusProcessing, h.get(t, tx).Status)

	require.NoError(t, h.svc.HandleCallback(ctx, models.ProviderMTN, []byte(`failed`)))
	got := h.get(t, tx)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "PAYER_NOT_FOUND", got.ErrorMessage)
	h.notifier.AssertExpectations(t)
}

func TestHandleCallback_StaleReadRetried(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tx := h.seed(t, models.KindPayin, models.ProviderMTN, models.StatusPending, time.Minute)

	// Another writer moved it to processing after we read it
	_, err := h.store.TransitionIfStatus(ctx, models.KindPayin, tx.ID, models.StatusPending, models.StatusProcessing, models.Patch{})
	require.NoError(t, err)
	h.bookings.On("ConfirmPayment", mock.Anything, tx.BookingID, tx.ID).Return(nil).Once()

	status, err := h.svc.applyOutcome(ctx, tx, outcome{source: "test", rawStatus: "SUCCESSFUL"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status)
	assert.Equal(t, models.StatusCompleted, h.get(t, tx).Status)
	h.bookings.AssertExpectations(t)
}

func TestHandleCallback_UnknownStatusRecordsPayload(t *testing.T) {
	h := newHarness(t)
	tx := h.seed(t, models.KindPayin, models.ProviderMTN, models.StatusPending, time.Minute)
	body := []byte(`{"status":"WAITING_FOR_OPERATOR"}`)
	h.mtn.On("ParseCallback", body).Return(&providers.Callback{ReferenceID: tx.ProviderReferenceID, RawStatus: "WAITING_FOR_OPERATOR"}, nil)

	require.NoError(t, h.svc.HandleCallback(context.Background(), models.ProviderMTN, body))

	got := h.get(t, tx)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.JSONEq(t, string(body), string(got.ProviderRawResponse))
}

func TestHandleCallback_FallsBackToProviderTransactionID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tx := h.seed(t, models.KindPayin, models.ProviderOrange, models.StatusPending, time.Minute)
	_, err := h.store.UpdateIfStatus(ctx, models.KindPayin, tx.ID, models.StatusPending, models.Patch{ProviderTransactionID: "MP-77"})
	require.NoError(t, err)

	h.bookings.On("ConfirmPayment", mock.Anything, tx.BookingID, tx.ID).Return(nil).Once()
	h.orange.On("ParseCallback", mock.Anything).Return(&providers.Callback{ReferenceID: "order-we-never-sent", TransactionID: "MP-77", RawStatus: "SUCCESSFULL"}, nil)

	require.NoError(t, h.svc.HandleCallback(ctx, models.ProviderOrange, []byte(`{}`)))
	assert.Equal(t, models.StatusCompleted, h.get(t, tx).Status)
}

func TestHandleCallback_OrphanAndGarbage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.mtn.On("ParseCallback", []byte(`orphan`)).Return(&providers.Callback{ReferenceID: "nobody", RawStatus: "SUCCESSFUL"}, nil)
	h.mtn.On("ParseCallback", []byte(`garbage`)).Return(nil, errors.New("unexpected end of JSON input"))

	assert.NoError(t, h.svc.HandleCallback(ctx, models.ProviderMTN, []byte(`orphan`)))
	assert.ErrorIs(t, h.svc.HandleCallback(ctx, models.ProviderMTN, []byte(`garbage`)), models.ErrInvalidRequest)
	assert.ErrorIs(t, h.svc.HandleCallback(ctx, models.ProviderPawaPay, []byte(`{}`)), ErrProviderNotRegistered)
	h.bookings.AssertNotCalled(t, "ConfirmPayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleCallback_LateSuccessAfterFailureIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tx := h.seed(t, models.KindPayin, models.ProviderMTN, models.StatusPending, time.Minute)
	_, err := h.store.TransitionIfStatus(ctx, models.KindPayin, tx.ID, models.StatusPending, models.StatusFailed, models.Patch{ErrorMessage: reconcileTimeoutMsg})
	require.NoError(t, err)

	h.mtn.On("ParseCallback", mock.Anything).Return(&providers.Callback{ReferenceID: tx.ProviderReferenceID, RawStatus: "SUCCESSFUL"}, nil)
	require.NoError(t, h.svc.HandleCallback(ctx, models.ProviderMTN, []byte(`{}`)))

	assert.Equal(t, models.StatusFailed, h.get(t, tx).Status)
	h.bookings.AssertNotCalled(t, "ConfirmPayment", mock.Anything, mock.Anything, mock.Anything)
}
