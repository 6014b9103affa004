// Package payment orchestrates payins, payouts and refunds across the mobile-money providers,
// applies provider callbacks and reconciles transactions that never received one.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/seatpay/backend/internal/models"
	"github.com/seatpay/backend/internal/providers"
	"github.com/seatpay/backend/internal/queue"
	"github.com/seatpay/backend/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrMisconfigured is returned by Reconcile when a registered adapter lacks credentials
	ErrMisconfigured = errors.New("payment providers misconfigured")
	// ErrSweepInProgress is returned by Reconcile when another sweep holds the lock
	ErrSweepInProgress = errors.New("reconciliation already in progress")
	// ErrProviderNotRegistered is returned when no adapter serves the requested provider
	ErrProviderNotRegistered = errors.New("payment provider not enabled")
)

// BookingService is the booking subsystem as seen by payments
type BookingService interface {
	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	ConfirmPayment(ctx context.Context, bookingID string, paymentID uuid.UUID) error
}

// EarningsService is the driver earnings subsystem
type EarningsService interface {
	GetEarnings(ctx context.Context, bookingID string) (*models.DriverEarnings, error)
	MarkPayoutApplied(ctx context.Context, bookingID string, payoutID uuid.UUID) error
}

// Notifier delivers user notifications
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// Dispatcher runs side effects off the request path
type Dispatcher interface {
	Enqueue(job queue.Job) error
}

// Locker guards the reconciliation sweep across instances
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Options tunes the service. Zero values fall back to the defaults.
type Options struct {
	StaleAfter      time.Duration
	FailAfter       time.Duration
	BatchSize       int
	Parallelism     int
	LockTTL         time.Duration
	CallbackTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.StaleAfter <= 0 {
		o.StaleAfter = 5 * time.Minute
	}
	if o.FailAfter <= 0 {
		o.FailAfter = 24 * time.Hour
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 200
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 8
	}
	if o.LockTTL <= 0 {
		o.LockTTL = 5 * time.Minute
	}
	if o.CallbackTimeout <= 0 {
		o.CallbackTimeout = 5 * time.Second
	}
	return o
}

// Service handles payment operations
type Service struct {
	store     store.Store
	providers map[models.Provider]providers.Adapter
	bookings  BookingService
	earnings  EarningsService
	notifier  Notifier
	effects   Dispatcher
	locker    Locker
	opts      Options
	logger    *zap.Logger
	now       func() time.Time

	sweeping atomic.Bool
}

// NewService creates a new payment service. Adapters are added with RegisterProvider.
func NewService(st store.Store, bookings BookingService, earnings EarningsService, notifier Notifier, effects Dispatcher, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     st,
		providers: make(map[models.Provider]providers.Adapter),
		bookings:  bookings,
		earnings:  earnings,
		notifier:  notifier,
		effects:   effects,
		opts:      opts.withDefaults(),
		logger:    logger.Named("payment"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RegisterProvider registers a payment provider
func (s *Service) RegisterProvider(adapter providers.Adapter) {
	s.providers[adapter.Name()] = adapter
}

// SetLocker enables the cross-instance sweep lock
func (s *Service) SetLocker(l Locker) {
	s.locker = l
}

// Providers returns the registered provider names, sorted
func (s *Service) Providers() []models.Provider {
	names := make([]models.Provider, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

func (s *Service) adapter(p models.Provider) (providers.Adapter, error) {
	a, ok := s.providers[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotRegistered, p)
	}
	return a, nil
}

// GetTransaction returns a payment, payout or refund
func (s *Service) GetTransaction(ctx context.Context, kind models.Kind, id uuid.UUID) (*models.Transaction, error) {
	return s.store.Get(ctx, kind, id)
}
