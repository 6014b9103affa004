package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/seatpay/backend/internal/models"
	"go.uber.org/zap"
)

// HandleCallback applies a provider notification. Unknown references are logged and dropped;
// the caller acknowledges the provider whatever this returns.
func (s *Service) HandleCallback(ctx context.Context, provider models.Provider, body []byte) error {
	adapter, err := s.adapter(provider)
	if err != nil {
		callbacksTotal.WithLabelValues(string(provider), "disabled").Inc()
		return err
	}
	cb, err := adapter.ParseCallback(body)
	if err != nil {
		callbacksTotal.WithLabelValues(string(provider), "invalid").Inc()
		s.logger.Warn("unparseable callback", zap.String("provider", string(provider)), zap.Error(err))
		return fmt.Errorf("%w: %w", models.ErrInvalidRequest, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.CallbackTimeout)
	defer cancel()

	tx, err := s.findCallbackTarget(ctx, provider, cb.ReferenceID, cb.TransactionID)
	if errors.Is(err, models.ErrTransactionNotFound) {
		callbacksTotal.WithLabelValues(string(provider), "orphan").Inc()
		s.logger.Warn("callback for unknown transaction",
			zap.String("provider", string(provider)),
			zap.String("reference_id", cb.ReferenceID),
			zap.String("provider_transaction_id", cb.TransactionID),
			zap.String("raw_status", cb.RawStatus))
		return nil
	}
	if err != nil {
		callbacksTotal.WithLabelValues(string(provider), "error").Inc()
		return err
	}
	if cb.Kind != "" && cb.Kind != tx.Kind {
		s.logger.Warn("callback kind does not match transaction",
			zap.String("callback_kind", string(cb.Kind)),
			zap.String("transaction_kind", string(tx.Kind)),
			zap.String("transaction_id", tx.ID.String()))
	}

	_, err = s.applyOutcome(ctx, tx, outcome{
		source:                "callback",
		rawStatus:             cb.RawStatus,
		providerTransactionID: cb.TransactionID,
		raw:                   body,
		reason:                cb.Reason,
	})
	if err != nil {
		callbacksTotal.WithLabelValues(string(provider), "error").Inc()
		return err
	}
	callbacksTotal.WithLabelValues(string(provider), "applied").Inc()
	return nil
}

func (s *Service) findCallbackTarget(ctx context.Context, provider models.Provider, ref, txID string) (*models.Transaction, error) {
	if ref != "" {
		tx, err := s.store.FindByProviderReferenceID(ctx, provider, ref)
		if !errors.Is(err, models.ErrTransactionNotFound) {
			return tx, err
		}
	}
	if txID != "" {
		return s.store.FindByProviderTransactionID(ctx, provider, txID)
	}
	return nil, models.ErrTransactionNotFound
}
