package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/vantutran2k1/haulbook/internal/core/domain"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
	RequestID string `json:"request_id,omitempty"`
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     message,
		Code:      code,
		Retryable: status == http.StatusServiceUnavailable,
		RequestID: GetRequestID(c),
	})
}

var statusByKind = map[string]int{
	"validation_error":      http.StatusBadRequest,
	"unauthorized":          http.StatusUnauthorized,
	"forbidden":             http.StatusForbidden,
	"not_found":             http.StatusNotFound,
	"invalid_transition":    http.StatusConflict,
	"booking_already_taken": http.StatusConflict,
	"driver_unavailable":    http.StatusConflict,
	"already_finalized":     http.StatusConflict,
	"conflict":              http.StatusConflict,
	"unavailable":           http.StatusServiceUnavailable,
}

// RespondDomainError maps domain errors to HTTP responses. Internal errors
// are logged by the request logger and hidden from the client.
func RespondDomainError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		_ = c.Error(err)
		abortWithError(c, http.StatusInternalServerError, kind, "internal server error")
		return
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     err.Error(),
		Code:      kind,
		Retryable: domain.IsRetryable(err),
		RequestID: GetRequestID(c),
	})
}

// respondBindError reports request binding failures as validation errors.
func respondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		abortWithError(c, http.StatusBadRequest, "validation_error", verrs[0].Field()+" failed on "+verrs[0].Tag())
		return
	}
	abortWithError(c, http.StatusBadRequest, "validation_error", err.Error())
}

// bindOptionalJSON binds a body the client may omit. Chunked bodies carry no
// Content-Length, so emptiness is only known once decoding hits EOF.
func bindOptionalJSON(c *gin.Context, obj any) error {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return nil
	}
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
