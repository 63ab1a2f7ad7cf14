package google

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/teemow/ecgdrive/internal/instrumentation"
	"github.com/teemow/ecgdrive/internal/logging"
)

// RevokeResult describes the remote half of a revocation. The local record
// is always cleared when Revoke returns a nil error.
type RevokeResult struct {
	// RemoteRevoked is true when Google confirmed the revocation
	RemoteRevoked bool

	// RemoteErr is the reason the remote call failed, if it did
	RemoteErr error
}

// Revoke asks Google to revoke the grant and then clears the stored record
// regardless of the remote outcome. The returned error is non-nil only if
// the local record could not be cleared.
func (a *Authorizer) Revoke(ctx context.Context) (*RevokeResult, error) {
	ctx, span := instrumentation.StartOAuthSpan(ctx, instrumentation.OAuthEventRevoke)
	ev := instrumentation.NewAuditEvent(instrumentation.AuditActionRevoke).WithSpanContext(ctx)

	res := &RevokeResult{}

	// An unreadable record cannot be revoked remotely but is still cleared
	rec, _ := a.store.Load(ctx)
	if rec != nil {
		token := rec.RefreshToken
		if token == "" {
			token = rec.AccessToken
		}
		if err := a.revokeRemote(ctx, token); err != nil {
			res.RemoteErr = err
			a.logger.Warn("Remote revocation failed, clearing local token anyway", logging.Err(err))
		} else {
			res.RemoteRevoked = true
		}
	}

	err := a.store.Clear(ctx)
	if err == nil {
		a.setRevoked(true)
		a.grantChanged()
	}

	instrumentation.EndSpan(span, err)
	a.audit.Log(ev.Complete(err))
	result := instrumentation.OAuthResultSuccess
	if err != nil || res.RemoteErr != nil {
		result = instrumentation.OAuthResultFailure
	}
	a.metrics.RecordOAuthEvent(ctx, instrumentation.OAuthEventRevoke, result)

	if err != nil {
		return res, fmt.Errorf("failed to clear token: %w", err)
	}
	a.logger.Info("Access revoked", "remote_revoked", res.RemoteRevoked)
	return res, nil
}

func (a *Authorizer) revokeRemote(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := a.httpClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return &TransientError{Op: "revoke", Err: err}
	}
	defer resp.Body.Close()

	// Google answers 400 invalid_token for grants that are already gone,
	// which is the outcome we want.
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusBadRequest {
		return nil
	}
	return fmt.Errorf("revoke endpoint returned %s", resp.Status)
}
