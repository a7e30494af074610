package handler

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/vantutran2k1/haulbook/internal/core/domain"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Env            string
	AllowedOrigins []string
}

type Handlers struct {
	Auth    *AuthHandler
	Booking *BookingHandler
	Driver  *DriverHandler
	Admin   *AdminHandler
	WS      *WSHandler
}

func NewRouter(cfg RouterConfig, h Handlers, authMW gin.HandlerFunc, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), Logger(logger), cors.New(corsConfig(cfg.AllowedOrigins)))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "UP", "env": cfg.Env})
	})

	if h.WS != nil {
		r.GET("/ws/drivers", h.WS.DriverSocket)
	}

	api := r.Group("/api/v1")
	{
		api.POST("/auth/register", h.Auth.Register)
		api.POST("/auth/login", h.Auth.Login)
		api.GET("/meta/goods-types", h.Booking.GoodsTypes)
	}

	authed := api.Group("", authMW)
	{
		authed.GET("/auth/me", h.Auth.Me)
		authed.POST("/fares/estimate", h.Booking.EstimateFare)

		authed.POST("/bookings", h.Booking.CreateBooking)
		authed.GET("/bookings", h.Booking.ListBookings)
		authed.GET("/bookings/:id", h.Booking.GetBooking)
		authed.POST("/bookings/:id/cancel", h.Booking.CancelBooking)
		authed.POST("/bookings/:id/rate", h.Booking.RateBooking)
		authed.POST("/bookings/:id/accept", h.Booking.AcceptBooking)
		authed.POST("/bookings/:id/status", h.Booking.UpdateStatus)
		authed.GET("/bookings/:id/invoice", h.Booking.Invoice)

		authed.GET("/drivers/bookings/available", h.Driver.AvailableBookings)
		authed.GET("/drivers/:id", h.Driver.GetDriver)
		authed.POST("/drivers/:id/status", h.Driver.UpdateStatus)
		authed.POST("/drivers/:id/location", h.Driver.UpdateLocation)
		authed.POST("/drivers/:id/vehicles", h.Driver.RegisterVehicle)
		authed.GET("/drivers/:id/vehicles", h.Driver.ListVehicles)
	}

	admin := authed.Group("/admin", RequireRoles(domain.RoleAdmin))
	{
		admin.GET("/dashboard", h.Admin.Dashboard)
		admin.GET("/reports/revenue", h.Admin.RevenueReport)
		admin.GET("/drivers", h.Admin.ListDrivers)
		admin.GET("/drivers/nearby", h.Admin.NearbyDrivers)
		admin.GET("/drivers/pending", h.Admin.PendingDrivers)
		admin.POST("/drivers/:id/verify", h.Admin.VerifyDriver)
		admin.POST("/bookings/:id/assign", h.Admin.AssignDriver)
		admin.POST("/bookings/:id/finalize", h.Admin.FinalizeBooking)
		admin.POST("/bookings/:id/payment", h.Admin.UpdatePayment)
		admin.POST("/users/:id/toggle-status", h.Admin.ToggleUserStatus)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID", "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

// OriginChecker applies the CORS origin list to websocket upgrades.
func OriginChecker(origins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || len(origins) == 0 || slices.Contains(origins, "*") || slices.Contains(origins, origin)
	}
}
