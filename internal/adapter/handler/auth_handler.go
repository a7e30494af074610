package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vantutran2k1/haulbook/internal/core/service"
)

type AuthHandler struct {
	svc *service.AuthService
}

func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

type RegisterRequest struct {
	Phone         string `json:"phone" binding:"required"`
	Name          string `json:"name" binding:"required"`
	Password      string `json:"password" binding:"required,min=6"`
	Role          string `json:"role" binding:"required,oneof=customer driver"`
	LicenseNumber string `json:"license_number"`
	ServiceArea   string `json:"service_area"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	session, err := h.svc.Register(c.Request.Context(), service.RegisterInput{
		Phone:         req.Phone,
		Name:          req.Name,
		Password:      req.Password,
		Role:          req.Role,
		LicenseNumber: req.LicenseNumber,
		ServiceArea:   req.ServiceArea,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

type LoginRequest struct {
	Phone    string `json:"phone" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	session, err := h.svc.Login(c.Request.Context(), req.Phone, req.Password)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func (h *AuthHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"identity": actor(c)})
}
