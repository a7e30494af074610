package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/vantutran2k1/haulbook/internal/core/domain"
	"github.com/vantutran2k1/haulbook/internal/core/service"
)

type DriverHandler struct {
	svc *service.DispatchService
}

func NewDriverHandler(svc *service.DispatchService) *DriverHandler {
	return &DriverHandler{svc: svc}
}

func (h *DriverHandler) AvailableBookings(c *gin.Context) {
	bookings, err := h.svc.ListAvailableBookings(c.Request.Context(), actor(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "count": len(bookings)})
}

func (h *DriverHandler) GetDriver(c *gin.Context) {
	d, err := h.svc.GetDriver(c.Request.Context(), actor(c), driverParam(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

type DriverStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=available offline busy"`
}

func (h *DriverHandler) UpdateStatus(c *gin.Context) {
	var req DriverStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	d, err := h.svc.UpdateDriverStatus(c.Request.Context(), actor(c), driverParam(c), domain.DriverStatus(req.Status))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

type DriverLocationRequest struct {
	Latitude  float64 `json:"latitude" binding:"latitude"`
	Longitude float64 `json:"longitude" binding:"longitude"`
}

func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	var req DriverLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	d, err := h.svc.UpdateDriverLocation(c.Request.Context(), actor(c), driverParam(c),
		domain.Location{Latitude: req.Latitude, Longitude: req.Longitude})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

type VehicleRequest struct {
	VehicleNumber   string   `json:"vehicle_number" binding:"required"`
	VehicleType     string   `json:"vehicle_type" binding:"required"`
	CapacityKg      float64  `json:"capacity_kg" binding:"required,gt=0"`
	CapacityCubicFt *float64 `json:"capacity_cubic_ft" binding:"omitempty,gt=0"`
	InsuranceExpiry string   `json:"insurance_expiry"`
}

func (h *DriverHandler) RegisterVehicle(c *gin.Context) {
	var req VehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	expiry, err := parseTime("insurance_expiry", req.InsuranceExpiry, true)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	v, err := h.svc.RegisterVehicle(c.Request.Context(), actor(c), driverParam(c), domain.VehicleDraft{
		Number:          req.VehicleNumber,
		Type:            domain.VehicleType(req.VehicleType),
		CapacityKg:      req.CapacityKg,
		CapacityCubicFt: req.CapacityCubicFt,
		InsuranceExpiry: expiry,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (h *DriverHandler) ListVehicles(c *gin.Context) {
	vehicles, err := h.svc.ListVehicles(c.Request.Context(), actor(c), driverParam(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vehicles": vehicles, "count": len(vehicles)})
}

// driverParam resolves "me" to the caller's own driver id.
func driverParam(c *gin.Context) string {
	id := c.Param("id")
	if id == "me" {
		return actor(c).DriverID
	}
	return id
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrValidation, key)
	}
	return n, nil
}

func queryFloat(c *gin.Context, key string) (float64, error) {
	v, err := strconv.ParseFloat(c.Query(key), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", domain.ErrValidation, key)
	}
	return v, nil
}
