package collaborators

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/seatpay/backend/internal/models"
)

// BookingClient reads bookings and driver earnings from the booking service
type BookingClient struct {
	http *resty.Client
}

// NewBookingClient creates a new booking service client
func NewBookingClient(opts Options) *BookingClient {
	return &BookingClient{http: newClient(opts)}
}

// GetBooking fetches a booking
func (c *BookingClient) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", bookingID).
		Get("/bookings/{id}")
	if err := check("get booking", resp, err, models.ErrBookingNotFound); err != nil {
		return nil, err
	}

	var booking models.Booking
	if err := json.Unmarshal(resp.Body(), &booking); err != nil {
		return nil, fmt.Errorf("error decoding booking: %w", err)
	}
	if booking.ID == "" {
		booking.ID = bookingID
	}
	return &booking, nil
}

// ConfirmPayment tells the booking service the seat is paid
func (c *BookingClient) ConfirmPayment(ctx context.Context, bookingID string, paymentID uuid.UUID) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", bookingID).
		SetBody(map[string]string{"payment_id": paymentID.String()}).
		Post("/bookings/{id}/payment-confirmed")
	return check("confirm payment", resp, err, models.ErrBookingNotFound)
}

// GetEarnings fetches the driver earnings owed for a booking
func (c *BookingClient) GetEarnings(ctx context.Context, bookingID string) (*models.DriverEarnings, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", bookingID).
		Get("/bookings/{id}/earnings")
	if err := check("get earnings", resp, err, models.ErrBookingNotFound); err != nil {
		return nil, err
	}

	var earnings models.DriverEarnings
	if err := json.Unmarshal(resp.Body(), &earnings); err != nil {
		return nil, fmt.Errorf("error decoding earnings: %w", err)
	}
	if earnings.BookingID == "" {
		earnings.BookingID = bookingID
	}
	return &earnings, nil
}

// MarkPayoutApplied flags the earnings of a booking as paid out
func (c *BookingClient) MarkPayoutApplied(ctx context.Context, bookingID string, payoutID uuid.UUID) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", bookingID).
		SetBody(map[string]string{"payout_id": payoutID.String()}).
		Post("/bookings/{id}/earnings/payout-applied")
	return check("mark payout applied", resp, err, models.ErrBookingNotFound)
}
