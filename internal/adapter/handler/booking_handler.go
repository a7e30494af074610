package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vantutran2k1/haulbook/internal/core/domain"
	"github.com/vantutran2k1/haulbook/internal/core/service"
)

type BookingHandler struct {
	bookings *service.BookingService
	dispatch *service.DispatchService
}

func NewBookingHandler(bookings *service.BookingService, dispatch *service.DispatchService) *BookingHandler {
	return &BookingHandler{bookings: bookings, dispatch: dispatch}
}

type PlaceRequest struct {
	Address   string  `json:"address" binding:"required"`
	Latitude  float64 `json:"latitude" binding:"latitude"`
	Longitude float64 `json:"longitude" binding:"longitude"`
	City      string  `json:"city"`
}

func (p PlaceRequest) place() domain.Place {
	return domain.Place{Address: p.Address, Latitude: p.Latitude, Longitude: p.Longitude, City: p.City}
}

type EstimateFareRequest struct {
	PickupLat float64 `json:"pickup_lat" binding:"latitude"`
	PickupLng float64 `json:"pickup_lng" binding:"longitude"`
	DropLat   float64 `json:"drop_lat" binding:"latitude"`
	DropLng   float64 `json:"drop_lng" binding:"longitude"`
	GoodsType string  `json:"goods_type"`
}

func (h *BookingHandler) EstimateFare(c *gin.Context) {
	var req EstimateFareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	quote, err := h.bookings.EstimateFare(c.Request.Context(),
		domain.Location{Latitude: req.PickupLat, Longitude: req.PickupLng},
		domain.Location{Latitude: req.DropLat, Longitude: req.DropLng},
		domain.GoodsType(req.GoodsType),
	)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, quote)
}

type CreateBookingRequest struct {
	Pickup              PlaceRequest `json:"pickup" binding:"required"`
	Drop                PlaceRequest `json:"drop" binding:"required"`
	GoodsType           string       `json:"goods_type" binding:"required"`
	WeightKg            *float64     `json:"weight_kg"`
	VolumeCubicFt       *float64     `json:"volume_cubic_ft"`
	SpecialInstructions string       `json:"special_instructions"`
	ScheduledDate       time.Time    `json:"scheduled_date" binding:"required"`
}

func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	b, err := h.bookings.CreateBooking(c.Request.Context(), actor(c), domain.BookingDraft{
		Pickup:              req.Pickup.place(),
		Drop:                req.Drop.place(),
		GoodsType:           domain.GoodsType(req.GoodsType),
		WeightKg:            req.WeightKg,
		VolumeCubicFt:       req.VolumeCubicFt,
		SpecialInstructions: req.SpecialInstructions,
		ScheduledDate:       req.ScheduledDate,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, b)
}

func (h *BookingHandler) ListBookings(c *gin.Context) {
	var statuses []domain.BookingStatus
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st, err := domain.ParseBookingStatus(strings.TrimSpace(s))
			if err != nil {
				RespondDomainError(c, err)
				return
			}
			statuses = append(statuses, st)
		}
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	bookings, err := h.bookings.ListBookings(c.Request.Context(), actor(c), statuses, limit)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "count": len(bookings)})
}

func (h *BookingHandler) GetBooking(c *gin.Context) {
	b, err := h.bookings.GetBooking(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type CancelBookingRequest struct {
	Reason string `json:"reason"`
}

func (h *BookingHandler) CancelBooking(c *gin.Context) {
	var req CancelBookingRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		respondBindError(c, err)
		return
	}

	b, err := h.bookings.CancelBooking(c.Request.Context(), actor(c), c.Param("id"), req.Reason)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type RateBookingRequest struct {
	Rating   int    `json:"rating" binding:"required"`
	Feedback string `json:"feedback"`
}

func (h *BookingHandler) RateBooking(c *gin.Context) {
	var req RateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	b, err := h.bookings.RateBooking(c.Request.Context(), actor(c), c.Param("id"), req.Rating, req.Feedback)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BookingHandler) AcceptBooking(c *gin.Context) {
	b, err := h.dispatch.AcceptBooking(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	target, err := domain.ParseBookingStatus(req.Status)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	b, err := h.bookings.UpdateBookingStatus(c.Request.Context(), actor(c), c.Param("id"), target)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BookingHandler) Invoice(c *gin.Context) {
	id := c.Param("id")
	var buf bytes.Buffer
	if err := h.bookings.WriteInvoice(c.Request.Context(), actor(c), id, &buf); err != nil {
		RespondDomainError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="invoice_%s.pdf"`, id))
	c.Data(http.StatusOK, h.bookings.InvoiceContentType(), buf.Bytes())
}

func (h *BookingHandler) GoodsTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"goods_types": domain.GoodsTypes})
}
