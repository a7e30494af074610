package domain

import (
	"fmt"
	"strings"
	"time"
)

// Invoice is the printable record of a finalized booking.
type Invoice struct {
	Number     string
	IssuedAt   time.Time
	Booking    Booking
	Customer   User
	DriverName string
}

func NewInvoice(b Booking, customer User, driverName string, now time.Time) (Invoice, error) {
	if !b.IsFinalized() {
		return Invoice{}, fmt.Errorf("%w: booking %s is not finalized", ErrInvalidTransition, b.ID)
	}
	return Invoice{
		Number:     "INV-" + strings.TrimPrefix(b.ID, "SRTA-"),
		IssuedAt:   now,
		Booking:    b,
		Customer:   customer,
		DriverName: driverName,
	}, nil
}
