package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/teemow/ecgdrive/internal/google"
	"github.com/teemow/ecgdrive/internal/logging"
	"github.com/teemow/ecgdrive/internal/reports"
)

// ConnectResponse is returned by /google_drive/connect for JSON clients.
type ConnectResponse struct {
	ConsentURL string `json:"consent_url"`
}

// CallbackResponse reports a completed authorization.
type CallbackResponse struct {
	Status string    `json:"status"`
	Expiry time.Time `json:"expiry,omitempty"`
	Scopes []string  `json:"scopes,omitempty"`
}

// RevokeResponse reports a revocation. Revoked is always true when the
// local credentials were cleared.
type RevokeResponse struct {
	Revoked       bool   `json:"revoked"`
	RemoteRevoked bool   `json:"remote_revoked"`
	RemoteError   string `json:"remote_error,omitempty"`
}

// handleConnect starts an authorization. Browsers are redirected to the
// consent page; clients asking for JSON receive the URL instead.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	consentURL, err := s.auth.BeginAuthorization(r.Context())
	if err != nil {
		s.writeFailure(w, r, "connect", err)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, ConnectResponse{ConsentURL: consentURL})
		return
	}
	http.Redirect(w, r, consentURL, http.StatusFound)
}

// handleCallback receives Google's redirect after the consent page.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := q.Get("state")

	if oauthErr := q.Get("error"); oauthErr != "" {
		err := s.auth.AbortAuthorization(r.Context(), state, oauthErr, q.Get("error_description"))
		s.writeFailure(w, r, "callback", err)
		return
	}

	code := q.Get("code")
	if code == "" {
		writeError(w, r, http.StatusBadRequest, "The callback is missing the authorization code.")
		return
	}

	rec, err := s.auth.CompleteAuthorization(r.Context(), state, code)
	if err != nil {
		s.writeFailure(w, r, "callback", err)
		return
	}

	writeJSON(w, http.StatusOK, CallbackResponse{
		Status: string(google.StateAuthenticated),
		Expiry: rec.Expiry,
		Scopes: rec.Scopes,
	})
}

// handleRevoke revokes the grant and clears the stored credentials.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	res, err := s.auth.Revoke(r.Context())
	if err != nil {
		s.writeFailure(w, r, "revoke", err)
		return
	}

	resp := RevokeResponse{Revoked: true, RemoteRevoked: res.RemoteRevoked}
	if res.RemoteErr != nil {
		resp.RemoteError = res.RemoteErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.auth.Status(r.Context())
	if err != nil {
		s.writeFailure(w, r, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// writeFailure logs err and answers with its status code and a user
// facing message. Missing or revoked access is answered with a fresh
// consent URL.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	logger := requestLogger(r.Context(), s.logger)
	status := statusForError(err)

	if errors.Is(err, google.ErrReauthorizationRequired) {
		consentURL, berr := s.auth.BeginAuthorization(r.Context())
		if berr == nil {
			logger.Info("Google consent required", logging.Operation(op))
			writeConsentRequired(w, r, consentURL)
			return
		}
		logger.Error("Failed to start authorization", logging.Operation(op), logging.Err(berr))
		err, status = berr, http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", logging.Operation(op), logging.Err(err))
	} else {
		logger.Warn("Request rejected", logging.Operation(op), logging.Err(err))
	}
	writeError(w, r, status, reports.UserMessage(err))
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		r.URL.Query().Get("format") == "json"
}
