package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/seatpay/backend/internal/models"
	"github.com/seatpay/backend/internal/providers"
	"github.com/seatpay/backend/internal/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PayinRequest represents a passenger paying for a seat.
// Amount and Currency default to the booking's.
type PayinRequest struct {
	BookingID   string          `json:"booking_id"`
	Provider    models.Provider `json:"provider"`
	PhoneNumber string          `json:"phone_number"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Reason      string          `json:"reason"`
}

// PayoutRequest asks for the driver earnings of a verified booking to be paid out
type PayoutRequest struct {
	BookingID string `json:"booking_id"`
}

// RefundRequest represents a full or partial refund of a booking's completed payin
type RefundRequest struct {
	BookingID string          `json:"booking_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
}

// InitiatePayin collects a seat payment from a passenger
func (s *Service) InitiatePayin(ctx context.Context, req PayinRequest) (*models.Transaction, error) {
	bookingID := strings.TrimSpace(req.BookingID)
	if bookingID == "" {
		return nil, fmt.Errorf("%w: booking_id is required", models.ErrInvalidRequest)
	}
	provider, err := models.ParseProvider(strings.ToLower(string(req.Provider)))
	if err != nil {
		return nil, err
	}
	adapter, err := s.adapter(provider)
	if err != nil {
		return nil, err
	}
	phone, err := utils.NormalizePhoneNumber(req.PhoneNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidRequest, err)
	}

	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("error loading booking: %w", err)
	}
	if booking.PaymentConfirmed {
		return nil, models.ErrAlreadyPaid
	}
	if _, err := s.store.FindCompletedPayin(ctx, bookingID); err == nil {
		return nil, models.ErrAlreadyPaid
	} else if !errors.Is(err, models.ErrTransactionNotFound) {
		return nil, err
	}

	amount := req.Amount
	if amount.IsZero() {
		amount = booking.Amount
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", models.ErrInvalidRequest)
	}
	currency := firstNonEmpty(req.Currency, booking.Currency, models.DefaultCurrency)
	reason := firstNonEmpty(req.Reason, "Seat payment "+bookingID)

	tx := &models.Transaction{
		ID:                  uuid.New(),
		Kind:                models.KindPayin,
		Provider:            provider,
		BookingID:           bookingID,
		Amount:              amount,
		Currency:            strings.ToUpper(currency),
		PhoneNumber:         phone,
		Reason:              reason,
		ProviderReferenceID: uuid.NewString(),
		Status:              models.StatusPending,
	}
	if err := s.store.Create(ctx, tx); err != nil {
		return nil, err
	}

	res, err := adapter.Payin(ctx, providers.PayinRequest{
		ReferenceID: tx.ProviderReferenceID,
		PhoneNumber: tx.PhoneNumber,
		Amount:      tx.Amount,
		Currency:    tx.Currency,
		Reason:      tx.Reason,
	})
	return s.finishInitiation(ctx, tx, res, err)
}

// InitiatePayout pays the driver of a verified booking
func (s *Service) InitiatePayout(ctx context.Context, req PayoutRequest) (*models.Transaction, error) {
	bookingID := strings.TrimSpace(req.BookingID)
	if bookingID == "" {
		return nil, fmt.Errorf("%w: booking_id is required", models.ErrInvalidRequest)
	}

	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("error loading booking: %w", err)
	}
	if !booking.VerificationConfirmed {
		return nil, fmt.Errorf("%w: ride %s is not verified", models.ErrPayoutNotAllowed, bookingID)
	}

	earnings, err := s.earnings.GetEarnings(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("error loading driver earnings: %w", err)
	}
	if earnings.PayoutPaid {
		return nil, models.ErrDuplicatePayout
	}
	if !earnings.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: no earnings to pay out", models.ErrPayoutNotAllowed)
	}
	phone, err := utils.NormalizePhoneNumber(earnings.PhoneNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: driver %w", models.ErrInvalidRequest, err)
	}

	provider := earnings.Provider
	if provider == "" {
		provider = providerForNetwork(utils.DetectNetwork(phone))
	}
	adapter, err := s.adapter(provider)
	if err != nil {
		return nil, err
	}

	tx := &models.Transaction{
		ID:                  uuid.New(),
		Kind:                models.KindPayout,
		Provider:            provider,
		BookingID:           bookingID,
		Amount:              earnings.Amount,
		Currency:            strings.ToUpper(firstNonEmpty(earnings.Currency, booking.Currency, models.DefaultCurrency)),
		PhoneNumber:         phone,
		Reason:              "Seat payout " + bookingID,
		CustomerName:        earnings.DriverName,
		ProviderReferenceID: uuid.NewString(),
		Status:              models.StatusPending,
	}
	if err := s.store.Create(ctx, tx); err != nil {
		return nil, err
	}

	res, err := adapter.Payout(ctx, providers.PayoutRequest{
		ReferenceID:  tx.ProviderReferenceID,
		PhoneNumber:  tx.PhoneNumber,
		Amount:       tx.Amount,
		Currency:     tx.Currency,
		Reason:       tx.Reason,
		CustomerName: tx.CustomerName,
	})
	return s.finishInitiation(ctx, tx, res, err)
}

// InitiateRefund returns part or all of a booking's completed payin to the passenger
func (s *Service) InitiateRefund(ctx context.Context, req RefundRequest) (*models.Transaction, error) {
	bookingID := strings.TrimSpace(req.BookingID)
	if bookingID == "" {
		return nil, fmt.Errorf("%w: booking_id is required", models.ErrInvalidRequest)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", models.ErrInvalidRequest)
	}

	payin, err := s.store.FindCompletedPayin(ctx, bookingID)
	if err != nil {
		if errors.Is(err, models.ErrTransactionNotFound) {
			return nil, fmt.Errorf("%w: no completed payment for booking %s", models.ErrTransactionNotFound, bookingID)
		}
		return nil, err
	}

	amount := req.Amount
	if amount.GreaterThan(payin.Amount) {
		return nil, fmt.Errorf("%w: %s requested, payment was %s", models.ErrRefundExceedsPayin, amount, payin.Amount)
	}
	adapter, err := s.adapter(payin.Provider)
	if err != nil {
		return nil, err
	}

	payinID := payin.ID
	tx := &models.Transaction{
		ID:                    uuid.New(),
		Kind:                  models.KindRefund,
		Provider:              payin.Provider,
		BookingID:             bookingID,
		Amount:                amount,
		Currency:              payin.Currency,
		PhoneNumber:           payin.PhoneNumber,
		Reason:                firstNonEmpty(req.Reason, "Seat refund "+bookingID),
		ProviderReferenceID:   uuid.NewString(),
		Status:                models.StatusPending,
		OriginalTransactionID: &payinID,
	}
	if err := s.store.CreateRefund(ctx, tx); err != nil {
		return nil, err
	}

	res, err := adapter.Refund(ctx, providers.RefundRequest{
		ReferenceID:                   tx.ProviderReferenceID,
		OriginalReferenceID:           payin.ProviderReferenceID,
		OriginalProviderTransactionID: payin.ProviderTransactionID,
		PhoneNumber:                   tx.PhoneNumber,
		Amount:                        tx.Amount,
		Currency:                      tx.Currency,
		Reason:                        tx.Reason,
	})
	return s.finishInitiation(ctx, tx, res, err)
}

// finishInitiation records the adapter's answer on the pending row. The caller's context may
// be gone by now, but the row must not be left behind without the answer.
func (s *Service) finishInitiation(ctx context.Context, tx *models.Transaction, res *providers.Result, callErr error) (*models.Transaction, error) {
	ctx = context.WithoutCancel(ctx)

	if callErr != nil {
		s.logger.Warn("provider call failed",
			zap.String("kind", string(tx.Kind)),
			zap.String("transaction_id", tx.ID.String()),
			zap.String("provider", string(tx.Provider)),
			zap.Error(callErr))
		if _, err := s.fail(ctx, tx, callErr.Error(), nil); err != nil {
			s.logger.Error("could not mark transaction failed", zap.String("transaction_id", tx.ID.String()), zap.Error(err))
		}
		return nil, callErr
	}

	if _, err := s.applyOutcome(ctx, tx, outcome{
		source:                "initiation",
		rawStatus:             res.RawStatus,
		providerTransactionID: res.ProviderTransactionID,
		raw:                   res.RawResponse,
		refundViaPayout:       res.RefundViaPayout,
	}); err != nil {
		return nil, err
	}
	return tx, nil
}

func providerForNetwork(n utils.Network) models.Provider {
	switch n {
	case utils.NetworkMTN:
		return models.ProviderMTN
	case utils.NetworkOrange:
		return models.ProviderOrange
	}
	return models.ProviderPawaPay
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
