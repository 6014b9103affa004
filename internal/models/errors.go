package models

import "errors"

var (
	// ErrTransactionNotFound is returned when no transaction matches a lookup
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrDuplicatePayment is returned when a booking already has a payin in flight
	ErrDuplicatePayment = errors.New("a payment for this booking is already in progress")
	// ErrDuplicatePayout is returned when a booking already has a non-failed payout
	ErrDuplicatePayout = errors.New("a payout for this booking already exists")
	// ErrRefundExceedsPayin is returned when refunds would exceed the original payin amount
	ErrRefundExceedsPayin = errors.New("refund amount exceeds the original payment")
	// ErrPayoutNotAllowed is returned when a payout is requested before the ride is verified
	ErrPayoutNotAllowed = errors.New("payout not allowed for this booking")
	// ErrBookingNotFound is returned by the booking collaborator for unknown bookings
	ErrBookingNotFound = errors.New("booking not found")
	// ErrAlreadyPaid is returned when a booking's payment was already confirmed
	ErrAlreadyPaid = errors.New("booking is already paid")
	// ErrMappingUnknown marks an unrecognized provider status
	ErrMappingUnknown = errors.New("unrecognized provider status")
	// ErrIllegalTransition is returned when a status change would move backwards or leave a terminal state
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrDuplicateReference is returned when a provider reference id is reused
	ErrDuplicateReference = errors.New("provider reference already used")
	// ErrInvalidRequest marks caller input errors
	ErrInvalidRequest = errors.New("invalid request")
)
