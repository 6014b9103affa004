// Package memstore is an in-process Store with the same uniqueness and compare-and-swap
// semantics as the postgres store. It backs STORE_DRIVER=memory and the service tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/seatpay/backend/internal/models"
	"github.com/seatpay/backend/internal/store"
	"github.com/shopspring/decimal"
)

// Store keeps transactions in memory
type Store struct {
	mu  sync.Mutex
	txs map[models.Kind]map[uuid.UUID]*models.Transaction
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store
func New() *Store {
	s := &Store{
		txs: make(map[models.Kind]map[uuid.UUID]*models.Transaction),
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, k := range models.Kinds {
		s.txs[k] = make(map[uuid.UUID]*models.Transaction)
	}
	return s
}

// SetClock replaces the time source used for created_at and updated_at
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Create inserts a transaction, enforcing the same unique indexes as the database
func (s *Store) Create(_ context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(tx)
}

func (s *Store) insertLocked(tx *models.Transaction) error {
	table, ok := s.txs[tx.Kind]
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", models.ErrInvalidRequest, tx.Kind)
	}
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}

	for _, existing := range table {
		if existing.ID == tx.ID {
			return models.ErrDuplicateReference
		}
		if existing.Provider == tx.Provider && existing.ProviderReferenceID == tx.ProviderReferenceID {
			return models.ErrDuplicateReference
		}
		if existing.BookingID != tx.BookingID {
			continue
		}
		switch tx.Kind {
		case models.KindPayin:
			if existing.Status.IsActive() && tx.Status.IsActive() {
				return models.ErrDuplicatePayment
			}
		case models.KindPayout:
			if existing.Status != models.StatusFailed && tx.Status != models.StatusFailed {
				return models.ErrDuplicatePayout
			}
		}
	}

	now := s.now()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now
	table[tx.ID] = clone(tx)
	return nil
}

// CreateRefund inserts a refund if the non-failed refunds of the payin stay within its amount
func (s *Store) CreateRefund(_ context.Context, refund *models.Transaction) error {
	if refund.Kind != models.KindRefund || refund.OriginalTransactionID == nil {
		return fmt.Errorf("%w: refund must reference a payin", models.ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	payin, ok := s.txs[models.KindPayin][*refund.OriginalTransactionID]
	if !ok {
		return models.ErrTransactionNotFound
	}
	if payin.Status != models.StatusCompleted {
		return fmt.Errorf("%w: payin %s is %s", models.ErrInvalidRequest, payin.ID, payin.Status)
	}

	refunded := decimal.Zero
	for _, r := range s.txs[models.KindRefund] {
		if r.OriginalTransactionID != nil && *r.OriginalTransactionID == payin.ID && r.Status != models.StatusFailed {
			refunded = refunded.Add(r.Amount)
		}
	}
	if refunded.Add(refund.Amount).GreaterThan(payin.Amount) {
		return fmt.Errorf("%w: %s requested, %s of %s already refunded",
			models.ErrRefundExceedsPayin, refund.Amount, refunded, payin.Amount)
	}
	return s.insertLocked(refund)
}

// Get finds a transaction by id
func (s *Store) Get(_ context.Context, kind models.Kind, id uuid.UUID) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[kind][id]
	if !ok {
		return nil, models.ErrTransactionNotFound
	}
	return clone(tx), nil
}

// FindByProviderReferenceID searches every kind for our reference
func (s *Store) FindByProviderReferenceID(_ context.Context, provider models.Provider, ref string) (*models.Transaction, error) {
	return s.find(func(tx *models.Transaction) bool {
		return tx.Provider == provider && tx.ProviderReferenceID == ref
	})
}

// FindByProviderTransactionID searches every kind for the provider's id
func (s *Store) FindByProviderTransactionID(_ context.Context, provider models.Provider, txID string) (*models.Transaction, error) {
	return s.find(func(tx *models.Transaction) bool {
		return tx.Provider == provider && tx.ProviderTransactionID != "" && tx.ProviderTransactionID == txID
	})
}

func (s *Store) find(match func(*models.Transaction) bool) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, kind := range models.Kinds {
		if tx := latest(s.txs[kind], match); tx != nil {
			return clone(tx), nil
		}
	}
	return nil, models.ErrTransactionNotFound
}

// FindCompletedPayin returns the latest completed payin of a booking
func (s *Store) FindCompletedPayin(_ context.Context, bookingID string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := latest(s.txs[models.KindPayin], func(tx *models.Transaction) bool {
		return tx.BookingID == bookingID && tx.Status == models.StatusCompleted
	})
	if tx == nil {
		return nil, models.ErrTransactionNotFound
	}
	return clone(tx), nil
}

// FindStale returns matching transactions, oldest first
func (s *Store) FindStale(_ context.Context, kind models.Kind, createdBefore time.Time, statuses []models.Status, limit int) ([]*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Transaction
	for _, tx := range s.txs[kind] {
		if tx.CreatedAt.Before(createdBefore) && containsStatus(statuses, tx.Status) {
			out = append(out, clone(tx))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TransitionIfStatus applies the change only if the status is still expected
func (s *Store) TransitionIfStatus(_ context.Context, kind models.Kind, id uuid.UUID, expected, next models.Status, patch models.Patch) (bool, error) {
	if !models.CanTransition(kind, expected, next) {
		return false, fmt.Errorf("%w: %s %s -> %s", models.ErrIllegalTransition, kind, expected, next)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[kind][id]
	if !ok {
		return false, models.ErrTransactionNotFound
	}
	if tx.Status != expected {
		return false, nil
	}

	// The partial unique indexes only cover active payins and non-failed payouts,
	// and no transition re-enters those sets, so uniqueness cannot break here.
	tx.Status = next
	s.applyPatch(tx, patch)
	return true, nil
}

// UpdateIfStatus writes the patch fields if the status has not moved
func (s *Store) UpdateIfStatus(_ context.Context, kind models.Kind, id uuid.UUID, expected models.Status, patch models.Patch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[kind][id]
	if !ok {
		return false, models.ErrTransactionNotFound
	}
	if tx.Status != expected {
		return false, nil
	}
	s.applyPatch(tx, patch)
	return true, nil
}

func (s *Store) applyPatch(tx *models.Transaction, patch models.Patch) {
	if patch.ProviderTransactionID != "" {
		tx.ProviderTransactionID = patch.ProviderTransactionID
	}
	if len(patch.ProviderRawResponse) > 0 {
		tx.ProviderRawResponse = append(models.RawJSON(nil), patch.ProviderRawResponse...)
	}
	if patch.ErrorMessage != "" {
		tx.ErrorMessage = patch.ErrorMessage
	}
	if patch.RefundViaPayout {
		tx.RefundViaPayout = true
	}
	tx.UpdatedAt = s.now()
}

// RecordRawResponse stores a payload if the status has not moved
func (s *Store) RecordRawResponse(_ context.Context, kind models.Kind, id uuid.UUID, expected models.Status, raw models.RawJSON) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[kind][id]
	if !ok {
		return false, models.ErrTransactionNotFound
	}
	if tx.Status != expected {
		return false, nil
	}
	s.applyPatch(tx, models.Patch{ProviderRawResponse: raw})
	return true, nil
}

func latest(table map[uuid.UUID]*models.Transaction, match func(*models.Transaction) bool) *models.Transaction {
	var found *models.Transaction
	for _, tx := range table {
		if match(tx) && (found == nil || tx.CreatedAt.After(found.CreatedAt)) {
			found = tx
		}
	}
	return found
}

func containsStatus(statuses []models.Status, s models.Status) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func clone(tx *models.Transaction) *models.Transaction {
	c := *tx
	if tx.ProviderRawResponse != nil {
		c.ProviderRawResponse = append(models.RawJSON(nil), tx.ProviderRawResponse...)
	}
	if tx.OriginalTransactionID != nil {
		id := *tx.OriginalTransactionID
		c.OriginalTransactionID = &id
	}
	return &c
}
