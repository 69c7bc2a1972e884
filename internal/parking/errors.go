package parking

import (
	"errors"
	"fmt"
)

var (
	ErrSlotUnavailable      = errors.New("slot is already occupied")
	ErrBookingNotFound      = errors.New("booking not found")
	ErrStatusRecordMissing  = errors.New("parking status not found")
	ErrTransportFailure     = errors.New("document store unavailable")
	ErrUnauthenticated      = errors.New("you need to be logged in to book a slot")
	ErrInvalidSlot          = errors.New("no such parking slot")
	ErrInvalidVehicle       = errors.New("vehicle number is required")
	ErrActiveBookingExists  = errors.New("you already have an active booking")
	ErrBookingNotActive     = errors.New("booking has already ended")
	ErrBookingNotCompleted  = errors.New("booking must be ended before payment")
	ErrAlreadyPaid          = errors.New("booking is already paid")
	ErrInvalidPaymentMethod = errors.New("payment method must be card, wallet or cash")
)

// transport wraps a store error so callers can match ErrTransportFailure
// while keeping the underlying cause.
func transport(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransportFailure, err)
}
