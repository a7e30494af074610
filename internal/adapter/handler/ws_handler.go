package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	ws "github.com/vantutran2k1/haulbook/internal/adapter/websocket"
	"github.com/vantutran2k1/haulbook/internal/core/domain"
	"github.com/vantutran2k1/haulbook/internal/core/service"
	"go.uber.org/zap"
)

type WSHandler struct {
	auth     *service.AuthService
	hub      *ws.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewWSHandler(auth *service.AuthService, hub *ws.Hub, checkOrigin func(r *http.Request) bool, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		auth: auth,
		hub:  hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

// DriverSocket upgrades a driver connection. Browsers cannot set headers on
// websocket requests, so the token may also come as ?token=.
func (h *WSHandler) DriverSocket(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		token = c.Query("token")
	}
	if token == "" {
		abortWithError(c, http.StatusUnauthorized, "unauthorized", "token required")
		return
	}

	id, err := h.auth.Authenticate(c.Request.Context(), token)
	if err != nil {
		abortAuthError(c, err)
		return
	}
	if id.Role != domain.RoleDriver {
		abortWithError(c, http.StatusForbidden, "forbidden", "only drivers may connect")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("driver_id", id.DriverID), zap.Error(err))
		return
	}
	h.hub.ServeDriver(conn, id)
}
