package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/teemow/ecgdrive/internal/credentials"
	"github.com/teemow/ecgdrive/internal/instrumentation"
	"github.com/teemow/ecgdrive/internal/logging"
)

// refreshTimeout bounds a shared refresh of the access token.
const refreshTimeout = 30 * time.Second

// EnsureValidToken returns an access token valid for at least the refresh
// margin, refreshing and persisting a new one when needed.
//
// It returns ErrReauthorizationRequired when there is no usable record or
// the refresh token was rejected, and a *TransientError when the provider
// could not be reached.
func (a *Authorizer) EnsureValidToken(ctx context.Context) (string, error) {
	rec, err := a.loadUsable(ctx)
	if err != nil {
		return "", err
	}
	if !rec.NeedsRefresh(a.now(), a.margin) {
		return rec.AccessToken, nil
	}

	// Concurrent callers share one refresh. It outlives the caller that
	// started it so a canceled request does not fail the others.
	ch := a.refreshGroup.DoChan("refresh", func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return a.refresh(refreshCtx)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return "", &TransientError{Op: "refresh", Err: ctx.Err()}
	}

	v, err, shared := res.Val, res.Err, res.Shared
	if errors.Is(err, ErrTransientNetwork) && rec.AccessToken != "" && a.now().Before(rec.Expiry) {
		a.logger.Warn("Token refresh failed, using current token until it expires",
			"expiry", rec.Expiry, logging.Err(err))
		return rec.AccessToken, nil
	}
	if err != nil {
		return "", err
	}
	if shared {
		a.logger.Debug("Joined in-flight token refresh")
	}
	return v.(*credentials.TokenRecord).AccessToken, nil
}

// loadUsable loads the record and maps absent, corrupt or unrefreshable
// records to ErrReauthorizationRequired.
func (a *Authorizer) loadUsable(ctx context.Context) (*credentials.TokenRecord, error) {
	rec, err := a.store.Load(ctx)
	if err != nil {
		var storageErr *credentials.StorageError
		if !errors.As(err, &storageErr) {
			return nil, err
		}
		a.logger.Warn("Stored token is unreadable, clearing it", logging.Err(err))
		if clearErr := a.store.Clear(ctx); clearErr != nil {
			a.logger.Error("Failed to clear unreadable token", logging.Err(clearErr))
		}
		return nil, ErrReauthorizationRequired
	}
	if rec == nil {
		return nil, ErrReauthorizationRequired
	}
	if rec.NeedsRefresh(a.now(), a.margin) && !rec.CanRefresh() {
		return nil, ErrReauthorizationRequired
	}
	return rec, nil
}

func (a *Authorizer) refresh(ctx context.Context) (*credentials.TokenRecord, error) {
	ctx, span := instrumentation.StartOAuthSpan(ctx, "refresh")
	var err error
	defer func() { instrumentation.EndSpan(span, err) }()

	// Another process or a request that finished just before us may have
	// refreshed already.
	rec, err := a.loadUsable(ctx)
	if err != nil {
		return nil, err
	}
	if !rec.NeedsRefresh(a.now(), a.margin) {
		return rec, nil
	}

	// An empty access token forces the oauth2 package to hit the token
	// endpoint regardless of its own expiry delta.
	src := a.config.TokenSource(a.clientContext(ctx), &oauth2.Token{RefreshToken: rec.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		err = a.classifyRefreshError(ctx, err)
		return nil, err
	}

	updated := rec.Clone()
	updated.AccessToken = tok.AccessToken
	updated.Expiry = tok.Expiry
	if tok.TokenType != "" {
		updated.TokenType = tok.TokenType
	}
	if tok.RefreshToken != "" {
		updated.RefreshToken = tok.RefreshToken
	}
	if scopes := grantedScopes(tok, nil); scopes != nil {
		updated.Scopes = scopes
	}

	if err = a.store.Save(ctx, updated); err != nil {
		a.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		a.logger.Error("Failed to save refreshed token", logging.Err(err))
		err = fmt.Errorf("failed to persist refreshed token: %w", err)
		return nil, err
	}

	a.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)
	a.logger.Debug("Refreshed access token", "expiry", updated.Expiry)
	return updated, nil
}

// InvalidateAccessToken drops token from the stored record when it is still
// the current access token, so the next EnsureValidToken refreshes instead
// of handing it out again. The refresh token is kept; if Google rejects it
// too, EnsureValidToken reports ErrReauthorizationRequired.
func (a *Authorizer) InvalidateAccessToken(ctx context.Context, token string) error {
	rec, err := a.store.Load(ctx)
	if err != nil || rec == nil || rec.AccessToken != token {
		// Unreadable records are handled by EnsureValidToken; a different
		// token means a refresh already replaced the rejected one.
		return nil
	}

	updated := rec.Clone()
	updated.AccessToken = ""
	if err := a.store.Save(ctx, updated); err != nil {
		return fmt.Errorf("failed to invalidate access token: %w", err)
	}
	a.logger.Info("Invalidated rejected access token", "access_token", logging.SanitizeToken(token))
	return nil
}

func (a *Authorizer) classifyRefreshError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		a.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		return &TransientError{Op: "refresh", Err: ctxErr}
	}

	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		status := 0
		if rErr.Response != nil {
			status = rErr.Response.StatusCode
		}
		if rErr.ErrorCode == "invalid_grant" || status == http.StatusBadRequest || status == http.StatusUnauthorized {
			a.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultExpired)
			a.logger.Warn("Refresh token rejected, clearing stored token",
				"oauth_error", rErr.ErrorCode)
			if clearErr := a.store.Clear(ctx); clearErr != nil {
				a.logger.Error("Failed to clear rejected token", logging.Err(clearErr))
			}
			return ErrReauthorizationRequired
		}
	}

	a.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
	return &TransientError{Op: "refresh", Err: err}
}
