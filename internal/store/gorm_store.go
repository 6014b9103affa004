package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/seatpay/backend/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const uniqueViolation = "23505"

// GormStore implements Store on postgres through gorm
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// NewGormStore creates a new gorm backed store
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) table(ctx context.Context, kind models.Kind) *gorm.DB {
	return s.db.WithContext(ctx).Table(kind.TableName())
}

// Create inserts a new transaction
func (s *GormStore) Create(ctx context.Context, tx *models.Transaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if err := s.table(ctx, tx.Kind).Create(tx).Error; err != nil {
		return translateCreateError(tx.Kind, err)
	}
	return nil
}

// CreateRefund inserts a refund while holding a row lock on the payin it refunds
func (s *GormStore) CreateRefund(ctx context.Context, refund *models.Transaction) error {
	if refund.Kind != models.KindRefund || refund.OriginalTransactionID == nil {
		return fmt.Errorf("%w: refund must reference a payin", models.ErrInvalidRequest)
	}
	if refund.ID == uuid.Nil {
		refund.ID = uuid.New()
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock the payin so concurrent refunds are checked one at a time
		var payin models.Transaction
		err := tx.Table(models.KindPayin.TableName()).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", *refund.OriginalTransactionID).
			Take(&payin).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ErrTransactionNotFound
		}
		if err != nil {
			return fmt.Errorf("error locking payin: %w", err)
		}
		if payin.Status != models.StatusCompleted {
			return fmt.Errorf("%w: payin %s is %s", models.ErrInvalidRequest, payin.ID, payin.Status)
		}

		var refunded decimal.NullDecimal
		err = tx.Table(models.KindRefund.TableName()).
			Select("SUM(amount)").
			Where("original_transaction_id = ? AND status <> ?", payin.ID, models.StatusFailed).
			Row().Scan(&refunded)
		if err != nil {
			return fmt.Errorf("error summing refunds: %w", err)
		}

		total := refund.Amount
		if refunded.Valid {
			total = total.Add(refunded.Decimal)
		}
		if total.GreaterThan(payin.Amount) {
			return fmt.Errorf("%w: %s requested, %s of %s already refunded",
				models.ErrRefundExceedsPayin, refund.Amount, refunded.Decimal, payin.Amount)
		}

		if err := tx.Table(models.KindRefund.TableName()).Create(refund).Error; err != nil {
			return translateCreateError(models.KindRefund, err)
		}
		return nil
	})
}

// Get finds a transaction by id
func (s *GormStore) Get(ctx context.Context, kind models.Kind, id uuid.UUID) (*models.Transaction, error) {
	var tx models.Transaction
	if err := s.table(ctx, kind).Where("id = ?", id).Take(&tx).Error; err != nil {
		return nil, translateFindError(err)
	}
	return &tx, nil
}

// FindByProviderReferenceID looks the reference up in payments, payouts and refunds
func (s *GormStore) FindByProviderReferenceID(ctx context.Context, provider models.Provider, ref string) (*models.Transaction, error) {
	return s.findAcrossKinds(ctx, "provider = ? AND provider_reference_id = ?", provider, ref)
}

// FindByProviderTransactionID looks the provider's id up in payments, payouts and refunds
func (s *GormStore) FindByProviderTransactionID(ctx context.Context, provider models.Provider, txID string) (*models.Transaction, error) {
	return s.findAcrossKinds(ctx, "provider = ? AND provider_transaction_id = ?", provider, txID)
}

func (s *GormStore) findAcrossKinds(ctx context.Context, query string, args ...interface{}) (*models.Transaction, error) {
	for _, kind := range models.Kinds {
		var tx models.Transaction
		err := s.table(ctx, kind).Where(query, args...).Order("created_at DESC").Take(&tx).Error
		if err == nil {
			return &tx, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("error finding %s: %w", kind, err)
		}
	}
	return nil, models.ErrTransactionNotFound
}

// FindCompletedPayin returns the latest completed payin of a booking
func (s *GormStore) FindCompletedPayin(ctx context.Context, bookingID string) (*models.Transaction, error) {
	var tx models.Transaction
	err := s.table(ctx, models.KindPayin).
		Where("booking_id = ? AND status = ?", bookingID, models.StatusCompleted).
		Order("created_at DESC").
		Take(&tx).Error
	if err != nil {
		return nil, translateFindError(err)
	}
	return &tx, nil
}

// FindStale returns transactions stuck in one of statuses since before the cutoff
func (s *GormStore) FindStale(ctx context.Context, kind models.Kind, createdBefore time.Time, statuses []models.Status, limit int) ([]*models.Transaction, error) {
	var txs []*models.Transaction
	q := s.table(ctx, kind).
		Where("status IN ? AND created_at < ?", statuses, createdBefore).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("error finding stale %s: %w", kind, err)
	}
	return txs, nil
}

// TransitionIfStatus is a single conditional UPDATE; the row count says who won
func (s *GormStore) TransitionIfStatus(ctx context.Context, kind models.Kind, id uuid.UUID, expected, next models.Status, patch models.Patch) (bool, error) {
	if !models.CanTransition(kind, expected, next) {
		return false, fmt.Errorf("%w: %s %s -> %s", models.ErrIllegalTransition, kind, expected, next)
	}

	updates := patchUpdates(patch)
	updates["status"] = next
	return s.conditionalUpdate(ctx, kind, id, expected, updates)
}

// UpdateIfStatus writes the patch columns if the status has not moved
func (s *GormStore) UpdateIfStatus(ctx context.Context, kind models.Kind, id uuid.UUID, expected models.Status, patch models.Patch) (bool, error) {
	return s.conditionalUpdate(ctx, kind, id, expected, patchUpdates(patch))
}

func patchUpdates(patch models.Patch) map[string]interface{} {
	updates := map[string]interface{}{
		"updated_at": time.Now().UTC(),
	}
	if patch.ProviderTransactionID != "" {
		updates["provider_transaction_id"] = patch.ProviderTransactionID
	}
	if len(patch.ProviderRawResponse) > 0 {
		updates["provider_raw_response"] = patch.ProviderRawResponse
	}
	if patch.ErrorMessage != "" {
		updates["error_message"] = patch.ErrorMessage
	}
	if patch.RefundViaPayout {
		updates["refund_via_payout"] = true
	}
	return updates
}

// RecordRawResponse stores a payload if the status has not moved
func (s *GormStore) RecordRawResponse(ctx context.Context, kind models.Kind, id uuid.UUID, expected models.Status, raw models.RawJSON) (bool, error) {
	return s.conditionalUpdate(ctx, kind, id, expected, map[string]interface{}{
		"provider_raw_response": raw,
		"updated_at":            time.Now().UTC(),
	})
}

func (s *GormStore) conditionalUpdate(ctx context.Context, kind models.Kind, id uuid.UUID, expected models.Status, updates map[string]interface{}) (bool, error) {
	res := s.table(ctx, kind).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("error updating %s %s: %w", kind, id, res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	// Lost the race, or the row does not exist
	var count int64
	if err := s.table(ctx, kind).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("error checking %s %s: %w", kind, id, err)
	}
	if count == 0 {
		return false, models.ErrTransactionNotFound
	}
	return false, nil
}

func translateFindError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ErrTransactionNotFound
	}
	return err
}

func translateCreateError(kind models.Kind, err error) error {
	if !isUniqueViolation(err) {
		return fmt.Errorf("error creating %s: %w", kind, err)
	}
	switch kind {
	case models.KindPayin:
		return models.ErrDuplicatePayment
	case models.KindPayout:
		return models.ErrDuplicatePayout
	default:
		return models.ErrDuplicateReference
	}
}

// isUniqueViolation detects unique violations with or without gorm's error translation
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
