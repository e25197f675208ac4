package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/udon-flasher/udon-core/internal/flash"
)

// Error is the body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeAlreadyRunning = "already_running"
	ErrCodeShuttingDown   = "shutting_down"
	ErrCodeUnavailable    = "unavailable"
)

// commandRejections maps supervisor rejections to responses. The
// supervisor's message is passed through unchanged.
var commandRejections = []struct {
	err    error
	status int
	code   string
}{
	{flash.ErrValidation, http.StatusBadRequest, ErrCodeValidation},
	{flash.ErrAlreadyRunning, http.StatusConflict, ErrCodeAlreadyRunning},
	{flash.ErrShuttingDown, http.StatusServiceUnavailable, ErrCodeShuttingDown},
}

// writeRejection writes the response for a known supervisor rejection.
// It reports false for any other error.
func writeRejection(w http.ResponseWriter, err error) bool {
	for _, r := range commandRejections {
		if errors.Is(err, r.err) {
			writeError(w, r.status, r.code, err.Error())
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized also sets the Bearer challenge.
func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="udon"`)
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

func writeUnavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}
