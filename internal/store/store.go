// Package store persists payments, payouts and refunds.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/seatpay/backend/internal/models"
)

// Store is the transaction persistence contract. TransitionIfStatus is the single
// serialization point between callbacks, the sweeper and initiation.
type Store interface {
	// Create inserts a pending transaction. It returns models.ErrDuplicatePayment or
	// models.ErrDuplicatePayout when the booking already has one in flight.
	Create(ctx context.Context, tx *models.Transaction) error
	// CreateRefund inserts a refund after checking, under a lock on the payin, that the
	// refunds of that payin stay within its amount.
	CreateRefund(ctx context.Context, refund *models.Transaction) error
	Get(ctx context.Context, kind models.Kind, id uuid.UUID) (*models.Transaction, error)
	FindByProviderReferenceID(ctx context.Context, provider models.Provider, ref string) (*models.Transaction, error)
	FindByProviderTransactionID(ctx context.Context, provider models.Provider, txID string) (*models.Transaction, error)
	FindCompletedPayin(ctx context.Context, bookingID string) (*models.Transaction, error)
	// FindStale returns transactions of a kind in one of statuses created before the cutoff, oldest first.
	FindStale(ctx context.Context, kind models.Kind, createdBefore time.Time, statuses []models.Status, limit int) ([]*models.Transaction, error)
	// TransitionIfStatus moves a transaction to next only if it is still in expected.
	// applied is false when another writer got there first.
	TransitionIfStatus(ctx context.Context, kind models.Kind, id uuid.UUID, expected, next models.Status, patch models.Patch) (applied bool, err error)
	// UpdateIfStatus applies patch without changing the status, if the status is still expected.
	UpdateIfStatus(ctx context.Context, kind models.Kind, id uuid.UUID, expected models.Status, patch models.Patch) (applied bool, err error)
	// RecordRawResponse stores a payload without changing the status, if the status is still expected.
	RecordRawResponse(ctx context.Context, kind models.Kind, id uuid.UUID, expected models.Status, raw models.RawJSON) (applied bool, err error)
}
