package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingPending        BookingStatus = "pending"
	BookingDriverAssigned BookingStatus = "driver_assigned"
	BookingDriverReached  BookingStatus = "driver_reached"
	BookingOngoing        BookingStatus = "ongoing"
	BookingCompleted      BookingStatus = "completed"
	BookingCancelled      BookingStatus = "cancelled"
)

func ParseBookingStatus(s string) (BookingStatus, error) {
	switch st := BookingStatus(s); st {
	case BookingPending, BookingDriverAssigned, BookingDriverReached,
		BookingOngoing, BookingCompleted, BookingCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown booking status %q", ErrValidation, s)
	}
}

// HasDriver reports whether a booking in this status must carry a driver.
func (s BookingStatus) HasDriver() bool {
	switch s {
	case BookingDriverAssigned, BookingDriverReached, BookingOngoing, BookingCompleted:
		return true
	}
	return false
}

// Active reports whether a driver holding a booking in this status is busy.
func (s BookingStatus) Active() bool {
	switch s {
	case BookingDriverAssigned, BookingDriverReached, BookingOngoing:
		return true
	}
	return false
}

func (s BookingStatus) Terminal() bool {
	return s == BookingCompleted || s == BookingCancelled
}

type BookingEvent string

const (
	EventAssign      BookingEvent = "assign"
	EventCancel      BookingEvent = "cancel"
	EventMarkReached BookingEvent = "mark_reached"
	EventStart       BookingEvent = "start"
	EventComplete    BookingEvent = "complete"
	EventFinalize    BookingEvent = "finalize"
)

var transitions = map[BookingStatus]map[BookingEvent]BookingStatus{
	BookingPending: {
		EventAssign: BookingDriverAssigned,
		EventCancel: BookingCancelled,
	},
	BookingDriverAssigned: {
		EventMarkReached: BookingDriverReached,
		EventCancel:      BookingCancelled,
	},
	BookingDriverReached: {
		EventStart: BookingOngoing,
	},
	BookingOngoing: {
		EventComplete: BookingCompleted,
	},
	BookingCompleted: {
		EventFinalize: BookingCompleted,
	},
}

// NextStatus returns the status reached from s on ev, or ErrInvalidTransition.
func NextStatus(s BookingStatus, ev BookingEvent) (BookingStatus, error) {
	to, ok := transitions[s][ev]
	if !ok {
		return "", fmt.Errorf("%w: cannot %s a %s booking", ErrInvalidTransition, ev, s)
	}
	return to, nil
}

// EventFor maps a status requested by a driver to the event producing it.
func EventFor(target BookingStatus) (BookingEvent, error) {
	switch target {
	case BookingDriverReached:
		return EventMarkReached, nil
	case BookingOngoing:
		return EventStart, nil
	case BookingCompleted:
		return EventComplete, nil
	default:
		return "", fmt.Errorf("%w: status %q cannot be set directly", ErrInvalidTransition, target)
	}
}

type GoodsType string

const (
	GoodsCement       GoodsType = "cement"
	GoodsBricks       GoodsType = "bricks"
	GoodsSand         GoodsType = "sand"
	GoodsGravel       GoodsType = "gravel"
	GoodsFurniture    GoodsType = "furniture"
	GoodsElectronics  GoodsType = "electronics"
	GoodsHousehold    GoodsType = "household"
	GoodsMachinery    GoodsType = "machinery"
	GoodsAgricultural GoodsType = "agricultural"
	GoodsFoodItems    GoodsType = "food_items"
	GoodsTextiles     GoodsType = "textiles"
	GoodsOthers       GoodsType = "others"
)

var GoodsTypes = []GoodsType{
	GoodsCement, GoodsBricks, GoodsSand, GoodsGravel, GoodsFurniture, GoodsElectronics,
	GoodsHousehold, GoodsMachinery, GoodsAgricultural, GoodsFoodItems, GoodsTextiles, GoodsOthers,
}

func ParseGoodsType(s string) (GoodsType, error) {
	for _, g := range GoodsTypes {
		if string(g) == s {
			return g, nil
		}
	}
	return "", invalid("goods_type", fmt.Sprintf("unknown value %q", s))
}

type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch p := PaymentStatus(s); p {
	case PaymentUnpaid, PaymentPartial, PaymentPaid:
		return p, nil
	default:
		return "", invalid("payment_status", fmt.Sprintf("unknown value %q", s))
	}
}

func (p PaymentStatus) rank() int {
	switch p {
	case PaymentPartial:
		return 1
	case PaymentPaid:
		return 2
	}
	return 0
}

type Booking struct {
	ID                  string        `json:"booking_id"`
	CustomerID          string        `json:"customer_id"`
	DriverID            *string       `json:"driver_id"`
	Pickup              Place         `json:"pickup"`
	Drop                Place         `json:"drop"`
	GoodsType           GoodsType     `json:"goods_type"`
	WeightKg            *float64      `json:"weight_kg,omitempty"`
	VolumeCubicFt       *float64      `json:"volume_cubic_ft,omitempty"`
	SpecialInstructions string        `json:"special_instructions,omitempty"`
	ScheduledDate       time.Time     `json:"scheduled_date"`
	DistanceKm          float64       `json:"distance_km"`
	EstimatedFare       float64       `json:"estimated_fare"`
	FinalFare           *float64      `json:"final_fare"`
	AdminCommission     *float64      `json:"admin_commission"`
	DriverEarning       *float64      `json:"driver_earning"`
	CancellationFee     float64       `json:"cancellation_fee"`
	PaymentStatus       PaymentStatus `json:"payment_status"`
	Status              BookingStatus `json:"status"`
	Rating              *int          `json:"rating,omitempty"`
	Feedback            string        `json:"feedback,omitempty"`
	CancelledBy         Role          `json:"cancelled_by,omitempty"`
	CancelReason        string        `json:"cancel_reason,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	AssignedAt          *time.Time    `json:"assigned_at,omitempty"`
	ReachedAt           *time.Time    `json:"reached_at,omitempty"`
	StartedAt           *time.Time    `json:"started_at,omitempty"`
	CompletedAt         *time.Time    `json:"completed_at,omitempty"`
	CancelledAt         *time.Time    `json:"cancelled_at,omitempty"`
	FinalizedAt         *time.Time    `json:"finalized_at,omitempty"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// BookingDraft is a customer's booking request before fare computation.
type BookingDraft struct {
	CustomerID          string
	Pickup              Place
	Drop                Place
	GoodsType           GoodsType
	WeightKg            *float64
	VolumeCubicFt       *float64
	SpecialInstructions string
	ScheduledDate       time.Time
}

func (d BookingDraft) Validate(now time.Time) error {
	if strings.TrimSpace(d.CustomerID) == "" {
		return invalid("customer_id", "is required")
	}
	if err := d.Pickup.Validate("pickup"); err != nil {
		return err
	}
	if err := d.Drop.Validate("drop"); err != nil {
		return err
	}
	if _, err := ParseGoodsType(string(d.GoodsType)); err != nil {
		return err
	}
	if d.WeightKg != nil && *d.WeightKg < 0 {
		return invalid("weight_kg", "must not be negative")
	}
	if d.VolumeCubicFt != nil && *d.VolumeCubicFt < 0 {
		return invalid("volume_cubic_ft", "must not be negative")
	}
	if d.ScheduledDate.IsZero() {
		return invalid("scheduled_date", "is required")
	}
	if d.ScheduledDate.Before(now) {
		return invalid("scheduled_date", "must not be in the past")
	}
	return nil
}

// NewBooking builds a pending booking from a validated draft and its fare quote.
func NewBooking(d BookingDraft, quote FareQuote, now time.Time) Booking {
	return Booking{
		ID:                  NewBookingID(now),
		CustomerID:          d.CustomerID,
		Pickup:              d.Pickup,
		Drop:                d.Drop,
		GoodsType:           d.GoodsType,
		WeightKg:            d.WeightKg,
		VolumeCubicFt:       d.VolumeCubicFt,
		SpecialInstructions: strings.TrimSpace(d.SpecialInstructions),
		ScheduledDate:       d.ScheduledDate,
		DistanceKm:          quote.DistanceKm,
		EstimatedFare:       quote.EstimatedFare,
		PaymentStatus:       PaymentUnpaid,
		Status:              BookingPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// NewBookingID returns a human-referenceable id such as SRTA-20261019-9F3A01BC.
func NewBookingID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("SRTA-%s-%s", now.Format("20060102"), suffix)
}

func (b *Booking) IsFinalized() bool {
	return b.FinalFare != nil
}

func (b *Booking) AssignedTo(driverID string) bool {
	return driverID != "" && b.DriverID != nil && *b.DriverID == driverID
}

// stamp keeps lifecycle timestamps non-decreasing even if the clock steps back.
func (b *Booking) stamp(now time.Time) time.Time {
	if now.Before(b.UpdatedAt) {
		return b.UpdatedAt
	}
	return now
}

func (b *Booking) Assign(driverID string, now time.Time) error {
	if strings.TrimSpace(driverID) == "" {
		return invalid("driver_id", "is required")
	}
	to, err := NextStatus(b.Status, EventAssign)
	if err != nil {
		return err
	}
	at := b.stamp(now)
	id := driverID
	b.DriverID = &id
	b.Status = to
	b.AssignedAt = &at
	b.UpdatedAt = at
	return nil
}

// Cancel moves the booking to cancelled. fee is the cancellation charge
// already decided by policy; it is only recorded.
func (b *Booking) Cancel(by Role, reason string, fee float64, now time.Time) error {
	to, err := NextStatus(b.Status, EventCancel)
	if err != nil {
		return err
	}
	if fee < 0 {
		return invalid("cancellation_fee", "must not be negative")
	}
	at := b.stamp(now)
	b.Status = to
	b.DriverID = nil
	b.CancelledBy = by
	b.CancelReason = strings.TrimSpace(reason)
	b.CancellationFee = Round2(fee)
	b.CancelledAt = &at
	b.UpdatedAt = at
	return nil
}

// Advance applies a driver-driven progress event: mark_reached, start or complete.
func (b *Booking) Advance(ev BookingEvent, now time.Time) error {
	switch ev {
	case EventMarkReached, EventStart, EventComplete:
	default:
		return fmt.Errorf("%w: %s is not a progress event", ErrInvalidTransition, ev)
	}
	to, err := NextStatus(b.Status, ev)
	if err != nil {
		return err
	}
	at := b.stamp(now)
	b.Status = to
	b.UpdatedAt = at
	switch ev {
	case EventMarkReached:
		b.ReachedAt = &at
	case EventStart:
		b.StartedAt = &at
	case EventComplete:
		b.CompletedAt = &at
	}
	return nil
}

// Finalize fixes the authoritative fare split. It can succeed once.
func (b *Booking) Finalize(split FareSplit, payment PaymentStatus, now time.Time) error {
	if _, err := NextStatus(b.Status, EventFinalize); err != nil {
		return err
	}
	if b.IsFinalized() {
		return fmt.Errorf("%w: %s", ErrAlreadyFinalized, b.ID)
	}
	if split.FinalFare < 0 {
		return invalid("final_fare", "must not be negative")
	}
	if _, err := ParsePaymentStatus(string(payment)); err != nil {
		return err
	}
	at := b.stamp(now)
	fare, commission, earning := split.FinalFare, split.Commission, split.DriverEarning
	b.FinalFare = &fare
	b.AdminCommission = &commission
	b.DriverEarning = &earning
	b.PaymentStatus = payment
	b.FinalizedAt = &at
	b.UpdatedAt = at
	return nil
}

// UpdatePayment moves payment status forward on a finalized booking.
func (b *Booking) UpdatePayment(payment PaymentStatus, now time.Time) error {
	if _, err := ParsePaymentStatus(string(payment)); err != nil {
		return err
	}
	if !b.IsFinalized() {
		return fmt.Errorf("%w: booking %s is not finalized", ErrInvalidTransition, b.ID)
	}
	if payment.rank() < b.PaymentStatus.rank() {
		return fmt.Errorf("%w: payment cannot go from %s to %s", ErrInvalidTransition, b.PaymentStatus, payment)
	}
	b.PaymentStatus = payment
	b.UpdatedAt = b.stamp(now)
	return nil
}

func (b *Booking) Rate(rating int, feedback string, now time.Time) error {
	if rating < 1 || rating > 5 {
		return invalid("rating", "must be between 1 and 5")
	}
	if b.Status != BookingCompleted {
		return fmt.Errorf("%w: only completed bookings can be rated", ErrInvalidTransition)
	}
	if b.Rating != nil {
		return fmt.Errorf("%w: booking %s is already rated", ErrInvalidTransition, b.ID)
	}
	r := rating
	b.Rating = &r
	b.Feedback = strings.TrimSpace(feedback)
	b.UpdatedAt = b.stamp(now)
	return nil
}

// CheckInvariants verifies the driver/status and fare/status couplings.
func (b *Booking) CheckInvariants() error {
	if b.Status.HasDriver() != (b.DriverID != nil) {
		return fmt.Errorf("booking %s: driver presence does not match status %s", b.ID, b.Status)
	}
	if b.FinalFare != nil && b.Status != BookingCompleted {
		return fmt.Errorf("booking %s: final fare set on %s booking", b.ID, b.Status)
	}
	return nil
}
