package google

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/teemow/ecgdrive/internal/credentials"
	"github.com/teemow/ecgdrive/internal/instrumentation"
	"github.com/teemow/ecgdrive/internal/logging"
)

// DefaultRefreshMargin is how long before expiry an access token is renewed.
const DefaultRefreshMargin = 60 * time.Second

// AuthState is the position of the application identity in the
// authorization lifecycle.
type AuthState string

const (
	StateUnauthenticated AuthState = "unauthenticated"
	StateAwaitingConsent AuthState = "awaiting_consent"
	StateAuthenticated   AuthState = "authenticated"
	StateExpired         AuthState = "expired"
	StateRevoked         AuthState = "revoked"
)

// AuthStatus describes the current authorization without exposing tokens.
type AuthStatus struct {
	State      AuthState `json:"state"`
	Expiry     time.Time `json:"expiry,omitempty"`
	Scopes     []string  `json:"scopes,omitempty"`
	CanRefresh bool      `json:"can_refresh"`
}

// Authorizer drives the OAuth2 authorization code flow and keeps the stored
// token fresh.
type Authorizer struct {
	config     *oauth2.Config
	store      credentials.Store
	pending    PendingStore
	httpClient *http.Client
	revokeURL  string
	margin     time.Duration
	stateTTL   time.Duration
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
	audit      *instrumentation.AuditLogger
	now        func() time.Time

	refreshGroup singleflight.Group

	// onGrantChange runs after a new grant is stored or the grant is revoked
	onGrantChange func()

	// revoked records an explicit revoke until the next successful consent
	mu      sync.Mutex
	revoked bool
}

// Option configures an Authorizer.
type Option func(*Authorizer)

// WithHTTPClient sets the client used for token, refresh and revoke calls.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Authorizer) { a.httpClient = c }
}

// WithRevokeURL overrides DefaultRevokeURL.
func WithRevokeURL(u string) Option {
	return func(a *Authorizer) { a.revokeURL = u }
}

// WithRefreshMargin overrides DefaultRefreshMargin.
func WithRefreshMargin(d time.Duration) Option {
	return func(a *Authorizer) { a.margin = d }
}

// WithStateTTL overrides DefaultStateTTL.
func WithStateTTL(d time.Duration) Option {
	return func(a *Authorizer) { a.stateTTL = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Authorizer) { a.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(a *Authorizer) { a.metrics = m }
}

// WithAuditLogger sets the audit trail for consent and revocation events.
func WithAuditLogger(al *instrumentation.AuditLogger) Option {
	return func(a *Authorizer) { a.audit = al }
}

// WithGrantChangeHook registers fn to run after a consent completes or the
// grant is revoked, i.e. whenever the account behind the token may change.
func WithGrantChangeHook(fn func()) Option {
	return func(a *Authorizer) { a.onGrantChange = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Authorizer) { a.now = now }
}

// NewAuthorizer creates an Authorizer. config must carry the redirect URI
// and scopes; it is not modified.
func NewAuthorizer(config *oauth2.Config, store credentials.Store, pending PendingStore, opts ...Option) *Authorizer {
	a := &Authorizer{
		config:    config,
		store:     store,
		pending:   pending,
		revokeURL: DefaultRevokeURL,
		margin:    DefaultRefreshMargin,
		stateTTL:  DefaultStateTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.logger = logging.WithService(a.logger, "oauth")
	return a
}

// RedirectURI returns the configured redirect URI.
func (a *Authorizer) RedirectURI() string {
	return a.config.RedirectURL
}

// BeginAuthorization records a new pending authorization and returns the
// consent URL the user must visit.
func (a *Authorizer) BeginAuthorization(ctx context.Context) (string, error) {
	ctx, span := instrumentation.StartOAuthSpan(ctx, instrumentation.OAuthEventBegin)
	var err error
	defer func() { instrumentation.EndSpan(span, err) }()

	state, err := randomState()
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	now := a.now()
	p := &PendingAuthorization{
		State:        state,
		CodeVerifier: oauth2.GenerateVerifier(),
		RedirectURI:  a.config.RedirectURL,
		CreatedAt:    now,
		ExpiresAt:    now.Add(a.stateTTL),
	}
	if err = a.pending.Put(ctx, p); err != nil {
		a.metrics.RecordOAuthEvent(ctx, instrumentation.OAuthEventBegin, instrumentation.OAuthResultFailure)
		return "", fmt.Errorf("failed to save authorization state: %w", err)
	}

	consentURL := a.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.S256ChallengeOption(p.CodeVerifier),
	)

	a.metrics.RecordOAuthEvent(ctx, instrumentation.OAuthEventBegin, instrumentation.OAuthResultSuccess)
	a.logger.Info("Issued consent URL", "expires_at", p.ExpiresAt)
	return consentURL, nil
}

// CompleteAuthorization validates the callback state, exchanges the code and
// persists the resulting token record.
func (a *Authorizer) CompleteAuthorization(ctx context.Context, state, code string) (*credentials.TokenRecord, error) {
	ctx, span := instrumentation.StartOAuthSpan(ctx, instrumentation.OAuthEventComplete)
	ev := instrumentation.NewAuditEvent(instrumentation.AuditActionCallback).WithSpanContext(ctx)

	rec, err := a.completeAuthorization(ctx, state, code)

	instrumentation.EndSpan(span, err)
	a.audit.Log(ev.Complete(err))
	a.metrics.RecordOAuthEvent(ctx, instrumentation.OAuthEventComplete, oauthResult(err))
	return rec, err
}

func (a *Authorizer) completeAuthorization(ctx context.Context, state, code string) (*credentials.TokenRecord, error) {
	p, err := a.takePending(ctx, state)
	if err != nil {
		return nil, err
	}
	if code == "" {
		return nil, &AuthorizationDeniedError{Code: "invalid_request", Description: "missing authorization code"}
	}

	tok, err := a.config.Exchange(a.clientContext(ctx), code,
		oauth2.VerifierOption(p.CodeVerifier),
		oauth2.SetAuthURLParam("redirect_uri", p.RedirectURI),
	)
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) && !isServerError(rErr) {
			errCode := rErr.ErrorCode
			if errCode == "" {
				errCode = "exchange_failed"
			}
			return nil, &AuthorizationDeniedError{Code: errCode, Description: rErr.ErrorDescription}
		}
		return nil, &TransientError{Op: "exchange", Err: err}
	}

	rec := credentials.FromOAuth2Token(tok, grantedScopes(tok, a.config.Scopes))

	// Google omits the refresh token when the user re-consents to an
	// existing grant; keep the one we already have.
	if rec.RefreshToken == "" {
		if prev, loadErr := a.store.Load(ctx); loadErr == nil && prev != nil {
			rec.RefreshToken = prev.RefreshToken
		}
	}
	if rec.RefreshToken == "" {
		a.logger.Warn("Provider returned no refresh token, access will end at expiry",
			"expiry", rec.Expiry)
	}

	if err := a.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to persist token: %w", err)
	}

	a.setRevoked(false)
	a.grantChanged()
	a.logger.Info("Authorization completed",
		"expiry", rec.Expiry,
		"scopes", strings.Join(rec.Scopes, " "),
		"access_token", logging.SanitizeToken(rec.AccessToken))
	return rec, nil
}

// AbortAuthorization handles a callback that carries an OAuth error instead
// of a code. The state is still validated and consumed.
func (a *Authorizer) AbortAuthorization(ctx context.Context, state, errorCode, description string) error {
	ev := instrumentation.NewAuditEvent(instrumentation.AuditActionCallback).WithSpanContext(ctx)

	err := error(&AuthorizationDeniedError{Code: errorCode, Description: description})
	if _, takeErr := a.takePending(ctx, state); takeErr != nil {
		err = takeErr
	}

	a.audit.Log(ev.Complete(err))
	a.metrics.RecordOAuthEvent(ctx, instrumentation.OAuthEventComplete, oauthResult(err))
	a.logger.Info("Authorization aborted by provider", "oauth_error", errorCode)
	return err
}

func (a *Authorizer) takePending(ctx context.Context, state string) (*PendingAuthorization, error) {
	if state == "" {
		return nil, ErrCSRFMismatch
	}
	p, err := a.pending.Take(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("failed to load authorization state: %w", err)
	}
	if p == nil || p.Expired(a.now()) {
		a.logger.Warn("Rejected callback with unknown or expired state")
		return nil, ErrCSRFMismatch
	}
	return p, nil
}

// Status reports the current lifecycle state.
func (a *Authorizer) Status(ctx context.Context) (*AuthStatus, error) {
	rec, err := a.store.Load(ctx)
	var storageErr *credentials.StorageError
	if err != nil && !errors.As(err, &storageErr) {
		return nil, err
	}

	if rec != nil {
		st := &AuthStatus{
			State:      StateAuthenticated,
			Expiry:     rec.Expiry,
			Scopes:     rec.Scopes,
			CanRefresh: rec.CanRefresh(),
		}
		if rec.NeedsRefresh(a.now(), a.margin) {
			st.State = StateExpired
		}
		return st, nil
	}

	if a.isRevoked() {
		return &AuthStatus{State: StateRevoked}, nil
	}
	if n, err := a.pending.Len(ctx); err == nil && n > 0 {
		return &AuthStatus{State: StateAwaitingConsent}, nil
	}
	return &AuthStatus{State: StateUnauthenticated}, nil
}

// clientContext injects the configured HTTP client for the oauth2 package.
func (a *Authorizer) clientContext(ctx context.Context) context.Context {
	if a.httpClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	}
	return ctx
}

func (a *Authorizer) grantChanged() {
	if a.onGrantChange != nil {
		a.onGrantChange()
	}
}

func (a *Authorizer) setRevoked(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revoked = v
}

func (a *Authorizer) isRevoked() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.revoked
}

// randomState returns 32 random bytes, base64url encoded.
func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// grantedScopes reads the space separated "scope" field of a token response.
func grantedScopes(tok *oauth2.Token, fallback []string) []string {
	if s, ok := tok.Extra("scope").(string); ok && s != "" {
		return strings.Fields(s)
	}
	return fallback
}

func isServerError(rErr *oauth2.RetrieveError) bool {
	return rErr.Response != nil && rErr.Response.StatusCode >= http.StatusInternalServerError
}

func oauthResult(err error) string {
	var denied *AuthorizationDeniedError
	switch {
	case err == nil:
		return instrumentation.OAuthResultSuccess
	case errors.As(err, &denied), errors.Is(err, ErrCSRFMismatch):
		return instrumentation.OAuthResultDenied
	default:
		return instrumentation.OAuthResultFailure
	}
}
