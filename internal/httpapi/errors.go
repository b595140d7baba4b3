package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"darkdrop/internal/drop"
)

// Machine-readable error codes returned in the envelope.
const (
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeForbidden      = "FORBIDDEN"
	CodeNotFound       = "NOT_FOUND"
	CodeValidation     = "VALIDATION_ERROR"
	CodeIntegrity      = "INTEGRITY_ERROR"
	CodeCapacity       = "CAPACITY_EXCEEDED"
	CodeUnavailable    = "DEPENDENCY_UNAVAILABLE"
	CodeInternalError  = "INTERNAL_ERROR"
	unavailableMessage = "a storage dependency is unavailable, try again later"
	internalMessage    = "internal error"
)

// errorBody is the JSON error envelope: {"error": {"code": "...", "message": "..."}}.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes the error envelope with the given status.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{Code: code, Message: message},
	})
}

// statusFor maps an error category to an HTTP status and code.
func statusFor(err error) (int, string) {
	switch drop.Category(err) {
	case drop.ErrUnauthenticated:
		return http.StatusUnauthorized, CodeUnauthorized
	case drop.ErrForbidden:
		return http.StatusForbidden, CodeForbidden
	case drop.ErrNotFound:
		return http.StatusNotFound, CodeNotFound
	case drop.ErrValidation:
		return http.StatusBadRequest, CodeValidation
	case drop.ErrIntegrity:
		return http.StatusUnprocessableEntity, CodeIntegrity
	case drop.ErrCapacity:
		return http.StatusRequestEntityTooLarge, CodeCapacity
	case drop.ErrDependency:
		return http.StatusServiceUnavailable, CodeUnavailable
	default:
		return http.StatusInternalServerError, CodeInternalError
	}
}

// writeServiceError maps err to the envelope. Dependency and uncategorised
// failures are logged in full and answered with a generic message.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	message := err.Error()
	switch {
	case errors.Is(err, drop.ErrDependency):
		message = unavailableMessage
	case status == http.StatusInternalServerError:
		message = internalMessage
	}
	if status >= http.StatusInternalServerError {
		s.logger.LogAttrs(r.Context(), slog.LevelError, "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeError(w, status, code, message)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
