package websocket

import (
	"encoding/json"

	"github.com/vantutran2k1/haulbook/internal/core/domain"
)

type MessageType string

// Inbound, sent by drivers.
const (
	MsgLocationUpdate  MessageType = "LOCATION_UPDATE"
	MsgBookingResponse MessageType = "BOOKING_RESPONSE"
)

// Outbound, sent to drivers.
const (
	MsgBookingOffer    MessageType = "BOOKING_OFFER"
	MsgBookingTaken    MessageType = "BOOKING_TAKEN"
	MsgBookingAssigned MessageType = "BOOKING_ASSIGNED"
	MsgBookingUpdate   MessageType = "BOOKING_UPDATE"
	MsgAcceptResult    MessageType = "ACCEPT_RESULT"
	MsgLocationAck     MessageType = "LOCATION_ACK"
	MsgError           MessageType = "ERROR"
)

type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type BookingResponsePayload struct {
	BookingID string `json:"booking_id"`
	Action    string `json:"action"`
}

const (
	ActionAccept  = "ACCEPT"
	ActionDecline = "DECLINE"
)

type LocationPayload struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type OfferPayload struct {
	BookingID          string        `json:"booking_id"`
	Pickup             *domain.Place `json:"pickup,omitempty"`
	EstimatedFare      float64       `json:"estimated_fare"`
	DistanceFromDriver float64       `json:"distance_from_driver"`
}

type BookingPayload struct {
	BookingID string               `json:"booking_id"`
	Status    domain.BookingStatus `json:"status"`
	Fare      float64              `json:"fare,omitempty"`
}

type ResultPayload struct {
	BookingID string `json:"booking_id,omitempty"`
	OK        bool   `json:"ok"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

type outbound struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload"`
}
