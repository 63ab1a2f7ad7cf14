package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/teemow/ecgdrive/internal/drive"
	"github.com/teemow/ecgdrive/internal/google"
	"github.com/teemow/ecgdrive/internal/reports"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error      string `json:"error"`
	ConsentURL string `json:"consent_url,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

// statusForError maps an error category onto an HTTP status code.
func statusForError(err error) int {
	var denied *google.AuthorizationDeniedError

	switch {
	case errors.Is(err, reports.ErrEmptyReport), errors.Is(err, google.ErrCSRFMismatch):
		return http.StatusBadRequest
	case errors.Is(err, google.ErrReauthorizationRequired):
		return http.StatusUnauthorized
	case errors.As(err, &denied):
		return http.StatusForbidden
	case errors.Is(err, drive.ErrQuotaExceeded):
		return http.StatusInsufficientStorage
	case errors.Is(err, drive.ErrRemoteRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, google.ErrTransientNetwork):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:     message,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

// writeConsentRequired answers 401 with the URL the user must visit.
func writeConsentRequired(w http.ResponseWriter, r *http.Request, consentURL string) {
	writeJSON(w, http.StatusUnauthorized, ErrorResponse{
		Error:      reports.UserMessage(google.ErrReauthorizationRequired),
		ConsentURL: consentURL,
		RequestID:  RequestIDFromContext(r.Context()),
	})
}
