package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vantutran2k1/haulbook/internal/core/domain"
	"github.com/vantutran2k1/haulbook/internal/core/service"
	"go.uber.org/zap"
)

const (
	requestIDKey = "request_id"
	identityKey  = "identity"
)

// RequestID honours an incoming X-Request-ID and generates one otherwise.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Next()
	}
}

func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", GetRequestID(c)),
		}
		if id, ok := identityFrom(c); ok {
			fields = append(fields, zap.String("user_id", id.UserID), zap.String("role", string(id.Role)))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			logger.Error("request", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}

func AuthMiddleware(authSvc *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "authorization header required")
			return
		}

		token, ok := bearerToken(c)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "invalid authorization format")
			return
		}

		id, err := authSvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			abortAuthError(c, err)
			return
		}

		c.Set(identityKey, id)
		c.Next()
	}
}

// abortAuthError answers 401 for rejected credentials and maps store failures
// like any other domain error.
func abortAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAccountDeactivated):
		abortWithError(c, http.StatusUnauthorized, "unauthorized", "account is deactivated")
	case errors.Is(err, domain.ErrUnauthorized):
		abortWithError(c, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
	default:
		RespondDomainError(c, err)
	}
}

// RequireRoles rejects callers outside roles before the handler runs. The
// service gate still performs the authoritative check.
func RequireRoles(roles ...domain.Role) gin.HandlerFunc {
	allowed := make(map[domain.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		id, ok := identityFrom(c)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, "unauthorized", "identity missing")
			return
		}
		if _, ok := allowed[id.Role]; !ok {
			abortWithError(c, http.StatusForbidden, "forbidden", "role not allowed")
			return
		}
		c.Next()
	}
}

func identityFrom(c *gin.Context) (domain.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return domain.Identity{}, false
	}
	id, ok := v.(domain.Identity)
	return id, ok
}

// actor returns the authenticated identity; routes behind AuthMiddleware
// always have one.
func actor(c *gin.Context) domain.Identity {
	id, _ := identityFrom(c)
	return id
}
