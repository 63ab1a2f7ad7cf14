// Package google implements the OAuth2 authorization lifecycle for the
// Google Drive integration.
//
// The Authorizer moves the application identity through these states:
//
//	Unauthenticated -> AwaitingConsent -> Authenticated(valid) <-> Authenticated(expired) -> Revoked
//
// BeginAuthorization issues a consent URL bound to a single-use state value
// and a PKCE verifier. CompleteAuthorization consumes the state on the
// callback and exchanges the code. EnsureValidToken hands out an access token,
// refreshing it transparently when it expires within the refresh margin.
// Revoke tells Google to drop the grant and always clears the local record.
//
// Every failure that means "the user has to consent again" collapses to
// ErrReauthorizationRequired so callers only handle one case.
package google
