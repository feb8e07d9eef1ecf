package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/getsentry/sentry-go"
)

// SuccessResponse wraps successful API responses
type SuccessResponse struct {
	Data interface{} `json:"data"`
}

// ErrorResponse represents an error API response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// ListResponse is the data of a paginated listing.
type ListResponse struct {
	Items      interface{} `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
	HasMore    bool        `json:"has_more"`
}

// JSON writes a JSON response with the given status code
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// Success writes a successful JSON response
func Success(w http.ResponseWriter, status int, data interface{}) {
	JSON(w, status, SuccessResponse{Data: data})
}

// Error writes an error JSON response
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// DomainErrorToHTTP maps domain errors to HTTP status codes
func DomainErrorToHTTP(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		return http.StatusInternalServerError
	}

	switch domainErr.Code {
	case domain.ErrCodeValidation:
		return http.StatusBadRequest
	case domain.ErrCodeNotFound:
		return http.StatusNotFound
	case domain.ErrCodeAlreadyExists:
		return http.StatusConflict
	case domain.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case domain.ErrCodeForbidden:
		return http.StatusForbidden
	case domain.ErrCodeInvalidOperation:
		return http.StatusConflict
	case domain.ErrCodeQuotaExceeded:
		return http.StatusPaymentRequired
	case domain.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case domain.ErrCodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// HandleError writes an appropriate error response based on the error type.
// Unexpected errors are reported to Sentry and answered with a generic message.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	status := DomainErrorToHTTP(err)

	var domainErr *domain.DomainError
	if status >= http.StatusInternalServerError || !errors.As(err, &domainErr) {
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.CaptureException(err)
		}
		JSON(w, status, ErrorResponse{Error: "internal server error", Code: domain.ErrCodeInternalError})
		return
	}

	JSON(w, status, ErrorResponse{Error: domainErr.Message, Code: domainErr.Code})
}
