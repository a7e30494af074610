package domain

import "time"

type EventType string

const (
	EventBookingCreated   EventType = "booking.created"
	EventBookingAssigned  EventType = "booking.assigned"
	EventBookingProgress  EventType = "booking.status_changed"
	EventBookingCancelled EventType = "booking.cancelled"
	EventBookingFinalized EventType = "booking.finalized"
)

// Event is published after a lifecycle change has been committed.
type Event struct {
	Type       EventType     `json:"type"`
	BookingID  string        `json:"booking_id"`
	CustomerID string        `json:"customer_id"`
	DriverID   string        `json:"driver_id,omitempty"`
	Status     BookingStatus `json:"status"`
	Pickup     *Place        `json:"pickup,omitempty"`
	Fare       float64       `json:"fare,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

func NewEvent(t EventType, b Booking, at time.Time) Event {
	ev := Event{
		Type:       t,
		BookingID:  b.ID,
		CustomerID: b.CustomerID,
		Status:     b.Status,
		Fare:       b.EstimatedFare,
		OccurredAt: at,
	}
	if b.DriverID != nil {
		ev.DriverID = *b.DriverID
	}
	if t == EventBookingCreated {
		p := b.Pickup
		ev.Pickup = &p
	}
	if b.FinalFare != nil {
		ev.Fare = *b.FinalFare
	}
	return ev
}
