package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/radio-control/meshchan/internal/channels"
)

// APIError represents an API-layer error with HTTP status code.
type APIError struct {
	Code       string
	Message    string
	Details    interface{}
	StatusCode int
}

// NewAPIError creates a new API error.
func NewAPIError(code, message string, statusCode int, details interface{}) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		Details:    details,
		StatusCode: statusCode,
	}
}

// Error implements the error interface for APIError.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// API-layer conditions that do not originate in the channel table.
var (
	ErrBadRequest = errors.New("BAD_REQUEST")
	ErrNotFound   = errors.New("NOT_FOUND")
)

// ToAPIError maps err to an HTTP status and envelope.
func ToAPIError(err error) (int, *Response) {
	var apiErr *APIError
	var valErr *channels.ValidationError

	switch {
	case err == nil:
		return http.StatusOK, SuccessResponse(nil)
	case errors.As(err, &apiErr):
		return apiErr.StatusCode, ErrorResponse(apiErr.Code, apiErr.Message, apiErr.Details)
	case channels.IsInvalidIndex(err):
		return http.StatusBadRequest, ErrorResponse("INVALID_INDEX",
			fmt.Sprintf("Channel index must be between 0 and %d", channels.MaxChannels-1), nil)
	case errors.As(err, &valErr):
		return http.StatusBadRequest, ErrorResponse("VALIDATION_FAILED", "Channel settings rejected",
			map[string]string{"field": valErr.Field, "reason": valErr.Reason})
	case channels.IsValidationFailed(err):
		return http.StatusBadRequest, ErrorResponse("VALIDATION_FAILED", err.Error(), nil)
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, ErrorResponse("BAD_REQUEST", "Malformed or missing required parameter", nil)
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, ErrorResponse("NOT_FOUND", "Resource not found", nil)
	case channels.IsPersistence(err):
		return http.StatusInternalServerError, ErrorResponse("PERSISTENCE_FAILED", "Channel file could not be written", nil)
	default:
		return http.StatusInternalServerError, ErrorResponse("INTERNAL", "Internal server error",
			map[string]interface{}{"original": err.Error()})
	}
}

// writeAPIError writes the envelope ToAPIError chooses for err.
func writeAPIError(w http.ResponseWriter, err error) {
	status, resp := ToAPIError(err)
	writeResponse(w, status, resp)
}
