package domain

import "errors"

var (
	ErrValidation          = errors.New("validation error")
	ErrForbidden           = errors.New("forbidden")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrNotFound            = errors.New("not found")
	ErrBookingAlreadyTaken = errors.New("booking already taken")
	ErrDriverUnavailable   = errors.New("driver unavailable")
	ErrAlreadyFinalized    = errors.New("booking already finalized")
	ErrConflict            = errors.New("conflict")
	ErrUnavailable         = errors.New("service temporarily unavailable")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrValidation, "validation_error"},
	{ErrForbidden, "forbidden"},
	{ErrUnauthorized, "unauthorized"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrNotFound, "not_found"},
	{ErrBookingAlreadyTaken, "booking_already_taken"},
	{ErrDriverUnavailable, "driver_unavailable"},
	{ErrAlreadyFinalized, "already_finalized"},
	{ErrConflict, "conflict"},
	{ErrUnavailable, "unavailable"},
}

// KindOf returns the taxonomy name of err, or "internal_error" when err
// does not wrap one of the domain sentinels.
func KindOf(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal_error"
}

// IsRetryable reports whether the caller may retry the same request unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
