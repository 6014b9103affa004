package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/seatpay/backend/internal/models"
	"github.com/seatpay/backend/internal/queue"
	"go.uber.org/zap"
)

const inlineSideEffectTimeout = 10 * time.Second

// dispatchSideEffects queues the collaborator calls owed for a terminal transition
func (s *Service) dispatchSideEffects(tx *models.Transaction) {
	t := *tx
	var job *queue.Job

	switch {
	case t.Kind == models.KindPayin && t.Status == models.StatusCompleted && s.bookings != nil:
		job = &queue.Job{Name: "confirm_payment:" + t.ID.String(), Run: func(ctx context.Context) error {
			return s.bookings.ConfirmPayment(ctx, t.BookingID, t.ID)
		}}
	case t.Kind == models.KindPayin && t.Status == models.StatusFailed:
		job = s.notifyJob(t, "passenger", "Payment failed",
			fmt.Sprintf("Your payment of %s %s for booking %s did not go through.", t.Amount, t.Currency, t.BookingID))
	case t.Kind == models.KindPayout && t.Status == models.StatusCompleted && s.earnings != nil:
		job = &queue.Job{Name: "payout_applied:" + t.ID.String(), Run: func(ctx context.Context) error {
			return s.earnings.MarkPayoutApplied(ctx, t.BookingID, t.ID)
		}}
	case t.Kind == models.KindPayout && t.Status == models.StatusFailed:
		job = s.notifyJob(t, "driver", "Payout failed",
			fmt.Sprintf("We could not send %s %s for booking %s. Please check your mobile money account details.", t.Amount, t.Currency, t.BookingID))
	case t.Kind == models.KindRefund && t.Status == models.StatusRefunded:
		job = s.notifyJob(t, "passenger", "Refund sent",
			fmt.Sprintf("%s %s for booking %s was refunded to %s.", t.Amount, t.Currency, t.BookingID, t.PhoneNumber))
	}
	if job == nil {
		return
	}

	if s.effects == nil {
		ctx, cancel := context.WithTimeout(context.Background(), inlineSideEffectTimeout)
		defer cancel()
		if err := job.Run(ctx); err != nil {
			s.logger.Error("side effect failed", zap.String("job", job.Name), zap.Error(err))
		}
		return
	}
	if err := s.effects.Enqueue(*job); err != nil {
		s.logger.Error("could not queue side effect", zap.String("job", job.Name), zap.Error(err))
	}
}

// notifyJob resolves the recipient from the booking at run time
func (s *Service) notifyJob(t models.Transaction, recipient, title, body string) *queue.Job {
	if s.notifier == nil || s.bookings == nil {
		return nil
	}
	return &queue.Job{Name: fmt.Sprintf("notify_%s:%s", recipient, t.ID), Run: func(ctx context.Context) error {
		booking, err := s.bookings.GetBooking(ctx, t.BookingID)
		if err != nil {
			return fmt.Errorf("error loading booking %s: %w", t.BookingID, err)
		}
		userID := booking.PassengerID
		if recipient == "driver" {
			userID = booking.DriverID
		}
		return s.notifier.Notify(ctx, models.Notification{
			UserID: userID,
			Title:  title,
			Body:   body,
			Data: map[string]string{
				"booking_id":     t.BookingID,
				"transaction_id": t.ID.String(),
				"kind":           string(t.Kind),
				"status":         string(t.Status),
			},
		})
	}}
}
