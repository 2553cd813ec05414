// Package response renders the JSON envelope shared by every endpoint.
package response

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/V4T54L/event-analytics/internal/domain"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool     `json:"success"`
	Data    any      `json:"data,omitempty"`
	Message string   `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
	Details []string `json:"details,omitempty"`
}

// queryEnvelope always carries data and the cache flag, even for empty results.
type queryEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
	Cached  bool `json:"cached"`
}

// Messages holds the client-facing text used when mapping an error.
type Messages struct {
	NotFound string
	Failure  string
}

// JSON writes env with the given status code.
func JSON(w http.ResponseWriter, status int, env any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

// OK writes a successful envelope.
func OK(w http.ResponseWriter, status int, data any, message string) {
	JSON(w, status, Envelope{Success: true, Data: data, Message: message})
}

// Query writes a successful query result along with its cache flag.
func Query(w http.ResponseWriter, data any, cached bool) {
	JSON(w, http.StatusOK, queryEnvelope{Success: true, Data: data, Cached: cached})
}

// Fail writes an error envelope.
func Fail(w http.ResponseWriter, status int, msg string, details ...string) {
	JSON(w, status, Envelope{Error: msg, Details: details})
}

// Status maps a domain error to an HTTP status code.
func Status(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateOwner):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error maps err to a status and a client-safe message and writes it.
// Server-side failures are logged; their details never reach the client.
func Error(w http.ResponseWriter, logger *slog.Logger, err error, msgs Messages) {
	status := Status(err)
	switch status {
	case http.StatusBadRequest:
		Fail(w, status, "Validation failed", err.Error())
	case http.StatusUnauthorized:
		Fail(w, status, "Invalid or expired API key")
	case http.StatusNotFound:
		Fail(w, status, orDefault(msgs.NotFound, "Not found"))
	case http.StatusConflict:
		Fail(w, status, "An app is already registered with this email")
	case http.StatusServiceUnavailable:
		logger.Error("store unavailable", "error", err)
		Fail(w, status, "Service temporarily unavailable")
	default:
		logger.Error("request failed", "error", err)
		Fail(w, status, orDefault(msgs.Failure, "Internal server error"))
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
