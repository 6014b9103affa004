// Package storetest runs the same behavioural checks against every Store implementation.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/seatpay/backend/internal/models"
	"github.com/seatpay/backend/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewTransaction builds a pending transaction with a fresh reference
func NewTransaction(kind models.Kind, provider models.Provider, bookingID string, amount int64) *models.Transaction {
	return &models.Transaction{
		ID:                  uuid.New(),
		Kind:                kind,
		Provider:            provider,
		BookingID:           bookingID,
		Amount:              decimal.NewFromInt(amount),
		Currency:            models.DefaultCurrency,
		PhoneNumber:         "237670000000",
		ProviderReferenceID: uuid.NewString(),
		Status:              models.StatusPending,
	}
}

// Run exercises st. Each subtest uses its own booking ids so a shared database works.
func Run(t *testing.T, st store.Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		tx := NewTransaction(models.KindPayin, models.ProviderMTN, booking(), 5000)
		require.NoError(t, st.Create(ctx, tx))

		got, err := st.Get(ctx, models.KindPayin, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, tx.ProviderReferenceID, got.ProviderReferenceID)
		assert.Equal(t, models.StatusPending, got.Status)
		assert.True(t, tx.Amount.Equal(got.Amount))
		assert.False(t, got.CreatedAt.IsZero())

		_, err = st.Get(ctx, models.KindPayout, tx.ID)
		assert.ErrorIs(t, err, models.ErrTransactionNotFound)
	})

	t.Run("one active payin per booking", func(t *testing.T) {
		b := booking()
		first := NewTransaction(models.KindPayin, models.ProviderMTN, b, 5000)
		require.NoError(t, st.Create(ctx, first))

		err := st.Create(ctx, NewTransaction(models.KindPayin, models.ProviderOrange, b, 5000))
		assert.ErrorIs(t, err, models.ErrDuplicatePayment)

		applied, err := st.TransitionIfStatus(ctx, models.KindPayin, first.ID, models.StatusPending, models.StatusFailed, models.Patch{ErrorMessage: "declined"})
		require.NoError(t, err)
		require.True(t, applied)

		assert.NoError(t, st.Create(ctx, NewTransaction(models.KindPayin, models.ProviderOrange, b, 5000)))
	})

	t.Run("concurrent payins for one booking", func(t *testing.T) {
		b := booking()
		const n = 8
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = st.Create(ctx, NewTransaction(models.KindPayin, models.ProviderPawaPay, b, 1000))
			}(i)
		}
		wg.Wait()

		ok := 0
		for _, err := range errs {
			if err == nil {
				ok++
				continue
			}
			assert.ErrorIs(t, err, models.ErrDuplicatePayment)
		}
		assert.Equal(t, 1, ok)
	})

	t.Run("one non-failed payout per booking", func(t *testing.T) {
		b := booking()
		first := NewTransaction(models.KindPayout, models.ProviderMTN, b, 4000)
		require.NoError(t, st.Create(ctx, first))
		assert.ErrorIs(t, st.Create(ctx, NewTransaction(models.KindPayout, models.ProviderMTN, b, 4000)), models.ErrDuplicatePayout)

		applied, err := st.TransitionIfStatus(ctx, models.KindPayout, first.ID, models.StatusPending, models.StatusFailed, models.Patch{})
		require.NoError(t, err)
		require.True(t, applied)
		assert.NoError(t, st.Create(ctx, NewTransaction(models.KindPayout, models.ProviderMTN, b, 4000)))
	})

	t.Run("provider reference is unique", func(t *testing.T) {
		tx := NewTransaction(models.KindPayin, models.ProviderMTN, booking(), 100)
		require.NoError(t, st.Create(ctx, tx))

		again := NewTransaction(models.KindPayin, models.ProviderMTN, booking(), 100)
		again.ProviderReferenceID = tx.ProviderReferenceID
		assert.Error(t, st.Create(ctx, again))
	})

	t.Run("transition compare and swap", func(t *testing.T) {
		tx := NewTransaction(models.KindPayin, models.ProviderOrange, booking(), 2500)
		require.NoError(t, st.Create(ctx, tx))
		payToken := "MP" + uuid.NewString()[:8]

		applied, err := st.TransitionIfStatus(ctx, models.KindPayin, tx.ID, models.StatusPending, models.StatusCompleted, models.Patch{
			ProviderTransactionID: payToken,
			ProviderRawResponse:   models.RawJSON(`{"status":"SUCCESSFULL"}`),
		})
		require.NoError(t, err)
		assert.True(t, applied)

		// A second writer expecting pending loses
		applied, err = st.TransitionIfStatus(ctx, models.KindPayin, tx.ID, models.StatusPending, models.StatusFailed, models.Patch{ErrorMessage: "late"})
		require.NoError(t, err)
		assert.False(t, applied)

		got, err := st.Get(ctx, models.KindPayin, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, got.Status)
		assert.Equal(t, payToken, got.ProviderTransactionID)
		assert.Empty(t, got.ErrorMessage)
		assert.JSONEq(t, `{"status":"SUCCESSFULL"}`, string(got.ProviderRawResponse))

		found, err := st.FindByProviderTransactionID(ctx, models.ProviderOrange, payToken)
		require.NoError(t, err)
		assert.Equal(t, tx.ID, found.ID)
	})

	t.Run("concurrent transitions have one winner", func(t *testing.T) {
		tx := NewTransaction(models.KindPayout, models.ProviderPawaPay, booking(), 900)
		require.NoError(t, st.Create(ctx, tx))

		const n = 10
		var wg sync.WaitGroup
		results := make([]bool, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				next := models.StatusCompleted
				if i%2 == 1 {
					next = models.StatusFailed
				}
				applied, err := st.TransitionIfStatus(ctx, models.KindPayout, tx.ID, models.StatusPending, next, models.Patch{})
				assert.NoError(t, err)
				results[i] = applied
			}(i)
		}
		wg.Wait()

		winners := 0
		for _, applied := range results {
			if applied {
				winners++
			}
		}
		assert.Equal(t, 1, winners)
	})

	t.Run("illegal transition and missing row", func(t *testing.T) {
		tx := NewTransaction(models.KindPayin, models.ProviderMTN, booking(), 100)
		require.NoError(t, st.Create(ctx, tx))

		_, err := st.TransitionIfStatus(ctx, models.KindPayin, tx.ID, models.StatusCompleted, models.StatusPending, models.Patch{})
		assert.ErrorIs(t, err, models.ErrIllegalTransition)

		_, err = st.TransitionIfStatus(ctx, models.KindPayin, uuid.New(), models.StatusPending, models.StatusFailed, models.Patch{})
		assert.ErrorIs(t, err, models.ErrTransactionNotFound)
	})

	t.Run("find by reference across kinds", func(t *testing.T) {
		payout := NewTransaction(models.KindPayout, models.ProviderMTN, booking(), 700)
		require.NoError(t, st.Create(ctx, payout))

		got, err := st.FindByProviderReferenceID(ctx, models.ProviderMTN, payout.ProviderReferenceID)
		require.NoError(t, err)
		assert.Equal(t, models.KindPayout, got.Kind)
		assert.Equal(t, payout.ID, got.ID)

		_, err = st.FindByProviderReferenceID(ctx, models.ProviderOrange, payout.ProviderReferenceID)
		assert.ErrorIs(t, err, models.ErrTransactionNotFound)
	})

	t.Run("refunds stay within the payin", func(t *testing.T) {
		payin := NewTransaction(models.KindPayin, models.ProviderMTN, booking(), 10000)
		require.NoError(t, st.Create(ctx, payin))

		refund := func(amount int64) *models.Transaction {
			r := NewTransaction(models.KindRefund, models.ProviderMTN, payin.BookingID, amount)
			r.OriginalTransactionID = &payin.ID
			return r
		}

		// Not completed yet
		assert.ErrorIs(t, st.CreateRefund(ctx, refund(1000)), models.ErrInvalidRequest)

		applied, err := st.TransitionIfStatus(ctx, models.KindPayin, payin.ID, models.StatusPending, models.StatusCompleted, models.Patch{})
		require.NoError(t, err)
		require.True(t, applied)

		first := refund(6000)
		require.NoError(t, st.CreateRefund(ctx, first))
		assert.ErrorIs(t, st.CreateRefund(ctx, refund(5000)), models.ErrRefundExceedsPayin)

		// Failed refunds free their amount
		applied, err = st.TransitionIfStatus(ctx, models.KindRefund, first.ID, models.StatusPending, models.StatusFailed, models.Patch{})
		require.NoError(t, err)
		require.True(t, applied)
		assert.NoError(t, st.CreateRefund(ctx, refund(10000)))

		missing := refund(1)
		id := uuid.New()
		missing.OriginalTransactionID = &id
		assert.ErrorIs(t, st.CreateRefund(ctx, missing), models.ErrTransactionNotFound)
	})

	t.Run("completed payin lookup", func(t *testing.T) {
		b := booking()
		_, err := st.FindCompletedPayin(ctx, b)
		assert.ErrorIs(t, err, models.ErrTransactionNotFound)

		tx := NewTransaction(models.KindPayin, models.ProviderPawaPay, b, 3000)
		require.NoError(t, st.Create(ctx, tx))
		_, err = st.TransitionIfStatus(ctx, models.KindPayin, tx.ID, models.StatusPending, models.StatusCompleted, models.Patch{})
		require.NoError(t, err)

		got, err := st.FindCompletedPayin(ctx, b)
		require.NoError(t, err)
		assert.Equal(t, tx.ID, got.ID)
	})

	t.Run("find stale", func(t *testing.T) {
		old := NewTransaction(models.KindRefund, models.ProviderOrange, booking(), 10)
		old.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
		require.NoError(t, st.Create(ctx, old))

		fresh := NewTransaction(models.KindRefund, models.ProviderOrange, booking(), 10)
		require.NoError(t, st.Create(ctx, fresh))

		stale, err := st.FindStale(ctx, models.KindRefund, time.Now().UTC().Add(-time.Hour), models.ActiveStatuses, 0)
		require.NoError(t, err)
		assert.Contains(t, ids(stale), old.ID)
		assert.NotContains(t, ids(stale), fresh.ID)

		stale, err = st.FindStale(ctx, models.KindRefund, time.Now().UTC().Add(-time.Hour), []models.Status{models.StatusProcessing}, 0)
		require.NoError(t, err)
		assert.NotContains(t, ids(stale), old.ID)
	})

	t.Run("update without transition", func(t *testing.T) {
		tx := NewTransaction(models.KindPayin, models.ProviderOrange, booking(), 100)
		require.NoError(t, st.Create(ctx, tx))
		payToken := "MP" + uuid.NewString()[:8]

		applied, err := st.UpdateIfStatus(ctx, models.KindPayin, tx.ID, models.StatusPending, models.Patch{ProviderTransactionID: payToken})
		require.NoError(t, err)
		assert.True(t, applied)

		applied, err = st.UpdateIfStatus(ctx, models.KindPayin, tx.ID, models.StatusCompleted, models.Patch{ErrorMessage: "x"})
		require.NoError(t, err)
		assert.False(t, applied)

		got, err := st.Get(ctx, models.KindPayin, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, got.Status)
		assert.Equal(t, payToken, got.ProviderTransactionID)
		assert.Empty(t, got.ErrorMessage)
	})

	t.Run("record raw response", func(t *testing.T) {
		tx := NewTransaction(models.KindPayin, models.ProviderMTN, booking(), 100)
		require.NoError(t, st.Create(ctx, tx))

		applied, err := st.RecordRawResponse(ctx, models.KindPayin, tx.ID, models.StatusPending, models.RawJSON(`{"status":"WEIRD"}`))
		require.NoError(t, err)
		assert.True(t, applied)

		applied, err = st.RecordRawResponse(ctx, models.KindPayin, tx.ID, models.StatusProcessing, models.RawJSON(`{}`))
		require.NoError(t, err)
		assert.False(t, applied)

		got, err := st.Get(ctx, models.KindPayin, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, got.Status)
		assert.JSONEq(t, `{"status":"WEIRD"}`, string(got.ProviderRawResponse))
	})
}

func booking() string {
	return fmt.Sprintf("bk-%s", uuid.NewString()[:13])
}

func ids(txs []*models.Transaction) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(txs))
	for _, tx := range txs {
		out = append(out, tx.ID)
	}
	return out
}
