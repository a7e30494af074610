package websocket

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vantutran2k1/haulbook/internal/core/domain"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Client is one connected driver.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	identity domain.Identity
	driverID string
}

// ServeDriver registers an upgraded connection and starts its pumps. It
// returns once the connection has been handed to the hub, or closes the
// connection when the hub has stopped.
func (h *Hub) ServeDriver(conn *websocket.Conn, identity domain.Identity) {
	c := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		identity: identity,
		driverID: identity.DriverID,
	}
	if !h.join(c) {
		h.logger.Info("hub stopped, refusing driver", zap.String("driver_id", c.driverID))
		c.conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// reply goes through the hub, which owns the send channel.
func (c *Client) reply(message any) {
	c.hub.SendToDriver(c.driverID, message)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read failed", zap.String("driver_id", c.driverID), zap.Error(err))
			}
			return
		}
		c.hub.HandleMessage(context.Background(), c, message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
