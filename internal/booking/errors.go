package booking

import "github.com/pkg/errors"

var (
	// ErrDateConflict means the tenant already holds the date with an
	// active booking. Expected under contention, surfaced to the caller.
	ErrDateConflict = errors.New("date no longer available")

	// ErrInvalidTransition marks a rejected status change. Always a logic
	// or integration bug, never swallowed.
	ErrInvalidTransition = errors.New("invalid booking transition")

	// ErrTimeout means lock acquisition or the wrapping transaction ran
	// past its deadline. Retryable by the caller.
	ErrTimeout = errors.New("booking creation timed out")

	// ErrPaymentRefInUse means the provider payment reference is already
	// attached to a different booking.
	ErrPaymentRefInUse = errors.New("payment reference already in use")

	ErrNotFound     = errors.New("booking not found")
	ErrInvalidInput = errors.New("invalid booking input")
)
