package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"iter"

	"github.com/vantutran2k1/haulbook/internal/core/domain"
	"go.uber.org/zap"
)

type DispatchLogic interface {
	AvailableDrivers(ctx context.Context, pickup domain.Location) iter.Seq2[domain.NearbyDriver, error]
	AcceptBooking(ctx context.Context, actor domain.Identity, bookingID string) (domain.Booking, error)
	UpdateDriverLocation(ctx context.Context, actor domain.Identity, driverID string, loc domain.Location) (domain.Driver, error)
}

type directMessage struct {
	driverID string
	data     []byte
}

// Hub tracks connected drivers. All client bookkeeping happens on the Run
// goroutine; other goroutines talk to it through channels.
type Hub struct {
	clients    map[*Client]bool
	byDriver   map[string]*Client
	broadcast  chan []byte
	direct     chan directMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	svc        DispatchLogic
	logger     *zap.Logger
}

func NewHub(svc DispatchLogic, logger *zap.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 64),
		direct:     make(chan directMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		byDriver:   make(map[string]*Client),
		svc:        svc,
		logger:     logger,
	}
}

// Run owns the client set until ctx is cancelled. Once it returns, register
// and unregister no longer block.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return
		case client := <-h.register:
			if old, ok := h.byDriver[client.driverID]; ok {
				h.drop(old)
			}
			h.clients[client] = true
			h.byDriver[client.driverID] = client
			h.logger.Info("driver connected", zap.String("driver_id", client.driverID))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.logger.Info("driver disconnected", zap.String("driver_id", client.driverID))
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				h.deliver(client, message)
			}
		case msg := <-h.direct:
			if client, ok := h.byDriver[msg.driverID]; ok {
				h.deliver(client, msg.data)
			}
		}
	}
}

func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) deliver(client *Client, message []byte) {
	select {
	case client.send <- message:
	default:
		h.logger.Warn("driver send buffer full, disconnecting", zap.String("driver_id", client.driverID))
		h.drop(client)
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	if h.byDriver[client.driverID] == client {
		delete(h.byDriver, client.driverID)
	}
	close(client.send)
}

func (h *Hub) SendToDriver(driverID string, message any) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("marshal websocket message", zap.Error(err))
		return
	}
	select {
	case h.direct <- directMessage{driverID: driverID, data: data}:
	default:
		h.logger.Warn("websocket queue full, message dropped", zap.String("driver_id", driverID))
	}
}

func (h *Hub) Broadcast(message any) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("marshal websocket message", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("websocket broadcast queue full, message dropped")
	}
}

// Publish pushes committed booking events to the drivers they concern. New
// bookings are offered to every match-eligible driver around the pickup.
func (h *Hub) Publish(ctx context.Context, ev domain.Event) error {
	switch ev.Type {
	case domain.EventBookingCreated:
		if ev.Pickup == nil || h.svc == nil {
			return nil
		}
		offered := 0
		for nd, err := range h.svc.AvailableDrivers(ctx, ev.Pickup.Location()) {
			if err != nil {
				return err
			}
			h.SendToDriver(nd.Driver.ID, outbound{Type: MsgBookingOffer, Payload: OfferPayload{
				BookingID:          ev.BookingID,
				Pickup:             ev.Pickup,
				EstimatedFare:      ev.Fare,
				DistanceFromDriver: nd.DistanceKm,
			}})
			offered++
		}
		h.logger.Debug("booking offered", zap.String("booking_id", ev.BookingID), zap.Int("drivers", offered))
	case domain.EventBookingAssigned:
		h.SendToDriver(ev.DriverID, outbound{Type: MsgBookingAssigned, Payload: bookingPayload(ev)})
		h.Broadcast(outbound{Type: MsgBookingTaken, Payload: BookingPayload{BookingID: ev.BookingID, Status: ev.Status}})
	case domain.EventBookingCancelled:
		if ev.DriverID == "" {
			h.Broadcast(outbound{Type: MsgBookingTaken, Payload: BookingPayload{BookingID: ev.BookingID, Status: ev.Status}})
			return nil
		}
		h.SendToDriver(ev.DriverID, outbound{Type: MsgBookingUpdate, Payload: bookingPayload(ev)})
	case domain.EventBookingProgress, domain.EventBookingFinalized:
		if ev.DriverID != "" {
			h.SendToDriver(ev.DriverID, outbound{Type: MsgBookingUpdate, Payload: bookingPayload(ev)})
		}
	}
	return nil
}

func bookingPayload(ev domain.Event) BookingPayload {
	return BookingPayload{BookingID: ev.BookingID, Status: ev.Status, Fare: ev.Fare}
}

// HandleMessage processes one inbound frame from a driver and replies on the
// same connection.
func (h *Hub) HandleMessage(ctx context.Context, client *Client, message []byte) {
	var env Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		h.logger.Debug("invalid json from driver", zap.String("driver_id", client.driverID), zap.Error(err))
		client.reply(outbound{Type: MsgError, Payload: ResultPayload{Code: "validation_error", Message: "invalid json"}})
		return
	}

	switch env.Type {
	case MsgLocationUpdate:
		var loc LocationPayload
		if err := json.Unmarshal(env.Payload, &loc); err != nil {
			client.reply(outbound{Type: MsgError, Payload: ResultPayload{Code: "validation_error", Message: "invalid location payload"}})
			return
		}
		_, err := h.svc.UpdateDriverLocation(ctx, client.identity, client.driverID, domain.Location{Latitude: loc.Lat, Longitude: loc.Lng})
		if err != nil {
			h.logger.Warn("failed to update driver location", zap.String("driver_id", client.driverID), zap.Error(err))
			client.reply(outbound{Type: MsgError, Payload: result("", err)})
			return
		}
		client.reply(outbound{Type: MsgLocationAck, Payload: ResultPayload{OK: true}})
	case MsgBookingResponse:
		var resp BookingResponsePayload
		if err := json.Unmarshal(env.Payload, &resp); err != nil {
			client.reply(outbound{Type: MsgError, Payload: ResultPayload{Code: "validation_error", Message: "invalid booking response"}})
			return
		}

		switch resp.Action {
		case ActionAccept:
			_, err := h.svc.AcceptBooking(ctx, client.identity, resp.BookingID)
			if err != nil {
				h.logger.Info("accept rejected",
					zap.String("driver_id", client.driverID),
					zap.String("booking_id", resp.BookingID),
					zap.Error(err))
			}
			client.reply(outbound{Type: MsgAcceptResult, Payload: result(resp.BookingID, err)})
		case ActionDecline:
			h.logger.Debug("offer declined", zap.String("driver_id", client.driverID), zap.String("booking_id", resp.BookingID))
		default:
			client.reply(outbound{Type: MsgError, Payload: ResultPayload{
				BookingID: resp.BookingID,
				Code:      "validation_error",
				Message:   "unknown action " + resp.Action,
			}})
		}
	default:
		client.reply(outbound{Type: MsgError, Payload: ResultPayload{Code: "validation_error", Message: "unknown message type"}})
	}
}

func result(bookingID string, err error) ResultPayload {
	if err == nil {
		return ResultPayload{BookingID: bookingID, OK: true}
	}
	msg := err.Error()
	if domain.KindOf(err) == "internal_error" && !errors.Is(err, context.Canceled) {
		msg = "internal error"
	}
	return ResultPayload{
		BookingID: bookingID,
		Code:      domain.KindOf(err),
		Message:   msg,
		Retryable: domain.IsRetryable(err),
	}
}
