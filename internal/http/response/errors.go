package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/devalaya/temple-darshan/internal/domain"
	"github.com/devalaya/temple-darshan/pkg/logger"
)

// ErrorResponse represents a structured JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// WriteJSON writes a JSON body with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// WriteError writes a structured JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

// DomainError maps a domain error to its HTTP status and writes it. Unknown
// errors are masked as a generic 500 so internals never leak to gate
// devices or the dashboard.
func DomainError(w http.ResponseWriter, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		logger.Error("unhandled internal error", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
		return
	}
	WriteError(w, statusFor(de.Code), de.Message, string(de.Code))
}

func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeInvalidInput, domain.CodeInvalidSlot, domain.CodeInvalidVisitorCount,
		domain.CodeTempleClosed, domain.CodePassExpired:
		return http.StatusBadRequest
	case domain.CodeTempleNotFound, domain.CodePassNotFound:
		return http.StatusNotFound
	case domain.CodeCapacityExceeded, domain.CodePassAlreadyUsed, domain.CodePassCancelled,
		domain.CodeConflict, domain.CodeTempleMismatch:
		return http.StatusConflict
	case domain.CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Convenience functions for common errors
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, string(domain.CodeInvalidInput))
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, "NOT_FOUND")
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, "INTERNAL_ERROR")
}
