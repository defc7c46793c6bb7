package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDateRange             = errors.New("check-out date must be after check-in date")
	ErrDateInPast                   = errors.New("check-in date cannot be in the past")
	ErrCapacityExceeded             = errors.New("party size exceeds room capacity")
	ErrRoomUnavailable              = errors.New("room is not available for the selected dates")
	ErrNotCancellable               = errors.New("this booking cannot be cancelled")
	ErrInvalidTransition            = errors.New("invalid booking status transition")
	ErrReferenceGenerationExhausted = errors.New("could not generate a unique booking reference")
	ErrNotFound                     = errors.New("not found")
	ErrInvalidInput                 = errors.New("invalid booking details")

	ErrConcurrentModification = errors.New("concurrent modification")
	ErrDuplicateReference     = errors.New("duplicate booking reference")

	// ErrOverlapConstraint is returned when the storage-level overlap guard
	// rejects a write that passed the in-transaction availability check.
	ErrOverlapConstraint = fmt.Errorf("%w: overlap constraint", ErrRoomUnavailable)
)

// ErrorCode returns a stable machine-readable code for a taxonomy error.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidDateRange):
		return "invalid_date_range"
	case errors.Is(err, ErrDateInPast):
		return "date_in_past"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrRoomUnavailable):
		return "room_unavailable"
	case errors.Is(err, ErrNotCancellable):
		return "not_cancellable"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrReferenceGenerationExhausted):
		return "reference_generation_exhausted"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrConcurrentModification):
		return "concurrent_modification"
	default:
		return "internal"
	}
}
