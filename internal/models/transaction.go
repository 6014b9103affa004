package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind represents the direction of a money movement
type Kind string

const (
	KindPayin  Kind = "payin"  // Passenger pays for a seat
	KindPayout Kind = "payout" // Driver receives earnings
	KindRefund Kind = "refund" // Passenger gets part or all of a payin back
)

// Kinds lists every transaction kind in sweep order.
var Kinds = []Kind{KindPayin, KindPayout, KindRefund}

// ParseKind converts a path or query value into a Kind
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindPayin, "payment", "payments":
		return KindPayin, nil
	case KindPayout, "payouts":
		return KindPayout, nil
	case KindRefund, "refunds":
		return KindRefund, nil
	}
	return "", fmt.Errorf("%w: unknown transaction kind %q", ErrInvalidRequest, s)
}

// TableName returns the table holding transactions of this kind.
func (k Kind) TableName() string {
	switch k {
	case KindPayout:
		return "payouts"
	case KindRefund:
		return "refunds"
	default:
		return "payments"
	}
}

// Provider represents a supported mobile-money provider
type Provider string

const (
	ProviderMTN     Provider = "mtn"
	ProviderOrange  Provider = "orange"
	ProviderPawaPay Provider = "pawapay"
)

// ParseProvider converts a request value into a Provider
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderMTN, ProviderOrange, ProviderPawaPay:
		return Provider(s), nil
	}
	return "", fmt.Errorf("%w: unsupported provider %q", ErrInvalidRequest, s)
}

// DefaultCurrency is used when a request does not name one.
const DefaultCurrency = "XAF"

// Transaction is the shape shared by payments, payouts and refunds.
type Transaction struct {
	ID                    uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Kind                  Kind            `gorm:"type:varchar(10);not null" json:"kind"`
	Provider              Provider        `gorm:"type:varchar(20);not null" json:"provider"`
	BookingID             string          `gorm:"type:varchar(100);not null;index" json:"booking_id"`
	Amount                decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	Currency              string          `gorm:"type:varchar(3);not null" json:"currency"`
	PhoneNumber           string          `gorm:"type:varchar(20);not null" json:"phone_number"`
	Reason                string          `gorm:"type:varchar(255)" json:"reason,omitempty"`
	CustomerName          string          `gorm:"type:varchar(255)" json:"customer_name,omitempty"`
	ProviderReferenceID   string          `gorm:"type:varchar(100);not null" json:"provider_reference_id"`
	ProviderTransactionID string          `gorm:"type:varchar(100)" json:"provider_transaction_id,omitempty"`
	Status                Status          `gorm:"type:varchar(20);not null" json:"status"`
	ProviderRawResponse   RawJSON         `gorm:"type:jsonb" json:"provider_raw_response,omitempty"`
	ErrorMessage          string          `gorm:"type:text" json:"error_message,omitempty"`
	OriginalTransactionID *uuid.UUID      `gorm:"type:uuid" json:"original_transaction_id,omitempty"`
	RefundViaPayout       bool            `gorm:"not null;default:false" json:"refund_via_payout,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// Age returns how long ago the transaction was created.
func (t *Transaction) Age(now time.Time) time.Duration {
	return now.Sub(t.CreatedAt)
}

// Patch carries the optional column updates applied together with a status transition.
// Empty fields are left untouched.
type Patch struct {
	ProviderTransactionID string
	ProviderRawResponse   RawJSON
	ErrorMessage          string
	RefundViaPayout       bool
}

// Booking is the subset of a booking the payment engine needs from the booking subsystem.
type Booking struct {
	ID                    string          `json:"id"`
	PassengerID           string          `json:"passenger_id"`
	DriverID              string          `json:"driver_id"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	VerificationConfirmed bool            `json:"verification_confirmed"`
	PaymentConfirmed      bool            `json:"payment_confirmed"`
}

// DriverEarnings is the earnings record owed to a driver for one booking.
type DriverEarnings struct {
	BookingID   string          `json:"booking_id"`
	DriverID    string          `json:"driver_id"`
	DriverName  string          `json:"driver_name"`
	PhoneNumber string          `json:"phone_number"`
	Provider    Provider        `json:"provider"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	PayoutPaid  bool            `json:"payout_paid"`
}

// Notification is a user-facing message handed to the notification subsystem.
type Notification struct {
	UserID string            `json:"user_id"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}
