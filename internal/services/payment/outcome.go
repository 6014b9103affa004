package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/seatpay/backend/internal/models"
	"github.com/seatpay/backend/internal/status"
	"go.uber.org/zap"
)

// maxTransitionAttempts bounds how often a lost CAS is retried against a fresh read
const maxTransitionAttempts = 3

// outcome is what a provider said about a transaction, from any source
type outcome struct {
	source                string
	rawStatus             string
	providerTransactionID string
	raw                   []byte
	reason                string
	refundViaPayout       bool
}

// applyOutcome maps the provider status and moves tx forward when the state machine allows it.
// It is the only place initiation, callbacks and the sweeper change a status, and side effects
// are dispatched here only by the writer whose transition applied. It returns the status the
// transaction ends up in, or models.StatusUnknown when the raw status could not be mapped.
// tx is updated in place.
func (s *Service) applyOutcome(ctx context.Context, tx *models.Transaction, o outcome) (models.Status, error) {
	log := s.logger.With(
		zap.String("source", o.source),
		zap.String("kind", string(tx.Kind)),
		zap.String("transaction_id", tx.ID.String()),
		zap.String("reference_id", tx.ProviderReferenceID),
		zap.String("provider", string(tx.Provider)),
		zap.String("raw_status", o.rawStatus),
	)

	raw := models.NewRawJSON(o.raw)
	mapped := status.Map(tx.Provider, o.rawStatus)
	if mapped == models.StatusUnknown {
		log.Warn("unrecognized provider status, keeping current status")
		if len(raw) > 0 {
			if _, err := s.store.RecordRawResponse(ctx, tx.Kind, tx.ID, tx.Status, raw); err != nil {
				return models.StatusUnknown, fmt.Errorf("error recording raw response: %w", err)
			}
			tx.ProviderRawResponse = raw
		}
		return models.StatusUnknown, nil
	}

	next := models.Persisted(tx.Kind, mapped)
	patch := models.Patch{
		ProviderTransactionID: o.providerTransactionID,
		ProviderRawResponse:   raw,
		RefundViaPayout:       o.refundViaPayout,
	}
	if next == models.StatusFailed {
		patch.ErrorMessage = o.reason
		if patch.ErrorMessage == "" {
			patch.ErrorMessage = fmt.Sprintf("provider reported %s", o.rawStatus)
		}
	}

	for attempt := 1; ; attempt++ {
		if next == tx.Status {
			return tx.Status, s.annotate(ctx, tx, patch)
		}
		if !models.CanTransition(tx.Kind, tx.Status, next) {
			if tx.Status.IsTerminal() && next.IsTerminal() {
				log.Warn("conflicting terminal status ignored", zap.String("current", string(tx.Status)), zap.String("reported", string(next)))
			} else {
				log.Debug("stale status ignored", zap.String("current", string(tx.Status)), zap.String("reported", string(next)))
			}
			return tx.Status, nil
		}

		applied, err := s.store.TransitionIfStatus(ctx, tx.Kind, tx.ID, tx.Status, next, patch)
		if err != nil {
			return tx.Status, fmt.Errorf("error transitioning %s %s: %w", tx.Kind, tx.ID, err)
		}
		if applied {
			log.Info("transaction status changed", zap.String("from", string(tx.Status)), zap.String("to", string(next)))
			transitionsTotal.WithLabelValues(string(tx.Kind), string(tx.Provider), string(next), o.source).Inc()
			apply(tx, next, patch)
			s.dispatchSideEffects(tx)
			return next, nil
		}

		// Another writer moved it first; decide again from what it wrote
		if attempt == maxTransitionAttempts {
			log.Warn("giving up after repeated concurrent updates")
			return tx.Status, nil
		}
		fresh, err := s.store.Get(ctx, tx.Kind, tx.ID)
		if err != nil {
			return tx.Status, fmt.Errorf("error reloading %s %s: %w", tx.Kind, tx.ID, err)
		}
		*tx = *fresh
	}
}

// annotate stores ids and payloads that arrive without a status change
func (s *Service) annotate(ctx context.Context, tx *models.Transaction, patch models.Patch) error {
	patch.ErrorMessage = ""
	if patch.ProviderTransactionID == tx.ProviderTransactionID {
		patch.ProviderTransactionID = ""
	}
	if patch.ProviderTransactionID == "" && len(patch.ProviderRawResponse) == 0 && !patch.RefundViaPayout {
		return nil
	}
	applied, err := s.store.UpdateIfStatus(ctx, tx.Kind, tx.ID, tx.Status, patch)
	if err != nil {
		return fmt.Errorf("error updating %s %s: %w", tx.Kind, tx.ID, err)
	}
	if applied {
		apply(tx, tx.Status, patch)
	}
	return nil
}

// fail moves an active transaction to failed with a message, outside the provider vocabulary
func (s *Service) fail(ctx context.Context, tx *models.Transaction, message string, raw []byte) (bool, error) {
	patch := models.Patch{ErrorMessage: message, ProviderRawResponse: models.NewRawJSON(raw)}
	applied, err := s.store.TransitionIfStatus(ctx, tx.Kind, tx.ID, tx.Status, models.StatusFailed, patch)
	if err != nil {
		if errors.Is(err, models.ErrIllegalTransition) {
			return false, nil
		}
		return false, fmt.Errorf("error failing %s %s: %w", tx.Kind, tx.ID, err)
	}
	if applied {
		s.logger.Info("transaction failed",
			zap.String("kind", string(tx.Kind)),
			zap.String("transaction_id", tx.ID.String()),
			zap.String("reason", message))
		transitionsTotal.WithLabelValues(string(tx.Kind), string(tx.Provider), string(models.StatusFailed), "failure").Inc()
		apply(tx, models.StatusFailed, patch)
		s.dispatchSideEffects(tx)
	}
	return applied, nil
}

func apply(tx *models.Transaction, next models.Status, patch models.Patch) {
	tx.Status = next
	if patch.ProviderTransactionID != "" {
		tx.ProviderTransactionID = patch.ProviderTransactionID
	}
	if len(patch.ProviderRawResponse) > 0 {
		tx.ProviderRawResponse = patch.ProviderRawResponse
	}
	if patch.ErrorMessage != "" {
		tx.ErrorMessage = patch.ErrorMessage
	}
	if patch.RefundViaPayout {
		tx.RefundViaPayout = true
	}
}
