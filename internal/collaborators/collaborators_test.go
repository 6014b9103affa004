package collaborators

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/seatpay/backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingClient(t *testing.T) {
	paymentID := uuid.New()
	var confirmed atomic.Bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/bookings/bk-1":
			_, _ = w.Write([]byte(`{"id":"bk-1","passenger_id":"p-1","driver_id":"d-1","amount":"5000","currency":"XAF","verification_confirmed":true}`))
		case r.Method == http.MethodGet && r.URL.Path == "/bookings/bk-1/earnings":
			_, _ = w.Write([]byte(`{"driver_id":"d-1","driver_name":"Jean","phone_number":"677123456","provider":"mtn","amount":"4500","currency":"XAF"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/bookings/bk-1/payment-confirmed":
			body, _ := io.ReadAll(r.Body)
			var req map[string]string
			require.NoError(t, json.Unmarshal(body, &req))
			assert.Equal(t, paymentID.String(), req["payment_id"])
			confirmed.Store(true)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewBookingClient(Options{BaseURL: srv.URL, APIKey: "secret", RetryCount: -1})
	ctx := context.Background()

	booking, err := c.GetBooking(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, "p-1", booking.PassengerID)
	assert.True(t, booking.VerificationConfirmed)
	assert.True(t, decimal.NewFromInt(5000).Equal(booking.Amount))

	earnings, err := c.GetEarnings(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, "bk-1", earnings.BookingID)
	assert.Equal(t, models.ProviderMTN, earnings.Provider)

	require.NoError(t, c.ConfirmPayment(ctx, "bk-1", paymentID))
	assert.True(t, confirmed.Load())

	_, err = c.GetBooking(ctx, "bk-missing")
	assert.ErrorIs(t, err, models.ErrBookingNotFound)
}

func TestBookingClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewBookingClient(Options{BaseURL: srv.URL, RetryCount: 1})
	err := c.MarkPayoutApplied(context.Background(), "bk-1", uuid.New())
	assert.ErrorIs(t, err, ErrCollaboratorUnavailable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNotificationClient(t *testing.T) {
	var got models.Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notifications", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewNotificationClient(Options{BaseURL: srv.URL, RetryCount: -1})
	err := c.Notify(context.Background(), models.Notification{
		UserID: "p-1",
		Title:  "Payment failed",
		Data:   map[string]string{"booking_id": "bk-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "p-1", got.UserID)
	assert.Equal(t, "bk-1", got.Data["booking_id"])
}
