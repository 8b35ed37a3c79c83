package httpkit

import (
	"context"
	"errors"
	"net/http"

	"clinicbook_backend/platform/apperr"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(c *gin.Context, status int, payload interface{}) {
	c.JSON(status, payload)
}

// Error sends an error response with the given status code and message.
func Error(c *gin.Context, status int, message string, details interface{}) {
	c.JSON(status, ErrorResponse{Error: message, Details: details})
}

// OK sends a 200 OK response with the given payload.
func OK(c *gin.Context, payload interface{}) {
	c.JSON(http.StatusOK, payload)
}

// HandleError writes err as a response and reports whether there was one.
// An *apperr.Error anywhere in the chain decides status, message and code. A
// request deadline is 503. Anything else is 500 with a generic message; 5xx
// causes are attached to the gin context for RequestLogger.
func HandleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}

	resp := ErrorResponse{Error: "internal server error", Code: apperr.KindInternal.String()}
	status := http.StatusInternalServerError

	var domainErr *apperr.Error
	switch {
	case errors.As(err, &domainErr):
		status = domainErr.HTTPStatus()
		resp = ErrorResponse{Error: domainErr.Message, Code: domainErr.Kind.String(), Details: domainErr.Details}
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
		resp = ErrorResponse{Error: "request timed out", Code: apperr.KindTransient.String()}
	}

	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, resp)
	return true
}
