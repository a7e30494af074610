package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vantutran2k1/haulbook/internal/core/domain"
	"github.com/vantutran2k1/haulbook/internal/core/service"
)

type AdminHandler struct {
	bookings *service.BookingService
	dispatch *service.DispatchService
	reports  *service.ReportService
	users    *service.AuthService
}

func NewAdminHandler(bookings *service.BookingService, dispatch *service.DispatchService, reports *service.ReportService, users *service.AuthService) *AdminHandler {
	return &AdminHandler{bookings: bookings, dispatch: dispatch, reports: reports, users: users}
}

func (h *AdminHandler) NearbyDrivers(c *gin.Context) {
	lat, err := queryFloat(c, "lat")
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	lng, err := queryFloat(c, "lng")
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	drivers, err := h.dispatch.FindDrivers(c.Request.Context(), actor(c), domain.Location{Latitude: lat, Longitude: lng}, limit)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drivers": drivers, "count": len(drivers)})
}

func (h *AdminHandler) ListDrivers(c *gin.Context) {
	var statuses []domain.DriverStatus
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st, err := domain.ParseDriverStatus(strings.TrimSpace(s))
			if err != nil {
				RespondDomainError(c, err)
				return
			}
			statuses = append(statuses, st)
		}
	}

	drivers, err := h.dispatch.ListDrivers(c.Request.Context(), actor(c), statuses)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drivers": drivers, "count": len(drivers)})
}

type AssignDriverRequest struct {
	DriverID string `json:"driver_id" binding:"required"`
}

func (h *AdminHandler) AssignDriver(c *gin.Context) {
	var req AssignDriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	b, err := h.dispatch.AssignDriver(c.Request.Context(), actor(c), c.Param("id"), req.DriverID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type FinalizeBookingRequest struct {
	FinalFare     *float64 `json:"final_fare"`
	PaymentStatus string   `json:"payment_status"`
}

func (h *AdminHandler) FinalizeBooking(c *gin.Context) {
	var req FinalizeBookingRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		respondBindError(c, err)
		return
	}

	b, err := h.bookings.FinalizeBooking(c.Request.Context(), actor(c), c.Param("id"), req.FinalFare, domain.PaymentStatus(req.PaymentStatus))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type PaymentStatusRequest struct {
	PaymentStatus string `json:"payment_status" binding:"required"`
}

func (h *AdminHandler) UpdatePayment(c *gin.Context) {
	var req PaymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	b, err := h.bookings.UpdatePaymentStatus(c.Request.Context(), actor(c), c.Param("id"), domain.PaymentStatus(req.PaymentStatus))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type VerifyDriverRequest struct {
	Verified *bool `json:"verified"`
}

func (h *AdminHandler) VerifyDriver(c *gin.Context) {
	var req VerifyDriverRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		respondBindError(c, err)
		return
	}
	verified := req.Verified == nil || *req.Verified

	d, err := h.dispatch.VerifyDriver(c.Request.Context(), actor(c), c.Param("id"), verified)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *AdminHandler) PendingDrivers(c *gin.Context) {
	drivers, err := h.dispatch.ListPendingDrivers(c.Request.Context(), actor(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drivers": drivers, "count": len(drivers)})
}

type UserStatusRequest struct {
	IsActive *bool `json:"is_active"`
}

// ToggleUserStatus sets is_active from the body, or flips it when omitted.
func (h *AdminHandler) ToggleUserStatus(c *gin.Context) {
	var req UserStatusRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		respondBindError(c, err)
		return
	}

	u, err := h.users.SetUserActive(c.Request.Context(), actor(c), c.Param("id"), req.IsActive)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *AdminHandler) Dashboard(c *gin.Context) {
	d, err := h.reports.Dashboard(c.Request.Context(), actor(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *AdminHandler) RevenueReport(c *gin.Context) {
	from, err := queryTime(c, "from", false)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	to, err := queryTime(c, "to", true)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	report, err := h.reports.RevenueReport(c.Request.Context(), actor(c), from, to)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// queryTime accepts RFC 3339 or a bare date. A bare "to" date covers the
// whole day.
func queryTime(c *gin.Context, key string, endOfDay bool) (*time.Time, error) {
	return parseTime(key, c.Query(key), endOfDay)
}

func parseTime(key, raw string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a date or RFC 3339 time", domain.ErrValidation, key)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
