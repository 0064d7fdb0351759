// Package httpkit provides HTTP response utilities.
// This is part of the platform layer and contains no business logic.
package httpkit

import (
	"net/http"

	"driveassist_backend/platform/apperr"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the standard error response format. Kind carries the stable
// machine-readable failure category so clients can decide between a retry, an
// upsell, or an alternate action without parsing the message.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Kind    string      `json:"kind,omitempty"`
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

// HandleError maps domain errors to HTTP responses.
// If the error is a typed *apperr.Error, it uses the error's Kind to determine
// the HTTP status code. Otherwise, it defaults to 400 Bad Request.
// Returns true if an error was handled, false otherwise.
func HandleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}

	if domainErr, ok := err.(*apperr.Error); ok {
		c.JSON(domainErr.HTTPStatus(), ErrorResponse{
			Error:   domainErr.Message,
			Kind:    kindLabel(domainErr.Kind),
			Details: domainErr.Details,
		})
		return true
	}

	// Fallback for non-typed errors
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	return true
}

func kindLabel(kind apperr.Kind) string {
	switch kind {
	case apperr.KindNotFound:
		return "not_found"
	case apperr.KindValidation:
		return "validation"
	case apperr.KindConflict:
		return "slot_conflict"
	case apperr.KindForbidden:
		return "forbidden"
	case apperr.KindUnauthorized:
		return "unauthorized"
	case apperr.KindBadRequest:
		return "bad_request"
	case apperr.KindInternal:
		return "internal"
	case apperr.KindOutOfCredit:
		return "out_of_credit"
	case apperr.KindInvalidTransition:
		return "invalid_transition"
	case apperr.KindUnavailable:
		return "provider_unavailable"
	default:
		return ""
	}
}
