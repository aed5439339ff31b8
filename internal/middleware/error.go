package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/medtrack/server/pkg/errors"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// ErrorHandler translates errors attached to the context into the wire
// error envelope. Handlers push errors with c.Error and return.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)
		for _, e := range c.Errors {
			log.Error().
				Err(e.Err).
				Str("request_id", requestID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Msg("request error")
		}

		lastErr := c.Errors.Last().Err
		status, code := statusFor(lastErr)
		message := lastErr.Error()
		if status == http.StatusInternalServerError {
			message = "internal server error"
		}

		c.JSON(status, ErrorResponse{
			Code:    code,
			Message: message,
			TraceID: requestID,
		})
	}
}

func statusFor(err error) (int, string) {
	for _, m := range []struct {
		code   apperrors.ErrorCode
		status int
	}{
		{apperrors.ErrValidationFailed, http.StatusBadRequest},
		{apperrors.ErrAuthExpired, http.StatusUnauthorized},
		{apperrors.ErrForbidden, http.StatusForbidden},
		{apperrors.ErrNotFound, http.StatusNotFound},
		{apperrors.ErrAuthConflict, http.StatusConflict},
		{apperrors.ErrContextUnavailable, http.StatusServiceUnavailable},
		{apperrors.ErrBackendUnreachable, http.StatusBadGateway},
	} {
		if apperrors.IsCode(err, m.code) {
			return m.status, m.code.String()
		}
	}
	return http.StatusInternalServerError, apperrors.ErrInternal.String()
}
