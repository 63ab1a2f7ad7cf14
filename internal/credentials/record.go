package credentials

import (
	"slices"
	"time"

	"golang.org/x/oauth2"
)

// TokenRecord is the persisted authorization state for the application identity.
type TokenRecord struct {
	// AccessToken is the short-lived bearer token
	AccessToken string `json:"access_token"`

	// RefreshToken is long-lived; empty once access has been revoked
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is normally "Bearer"
	TokenType string `json:"token_type,omitempty"`

	// Expiry is when AccessToken stops being accepted. Zero means unknown.
	Expiry time.Time `json:"expiry"`

	// Scopes are the scopes granted by the user
	Scopes []string `json:"scopes,omitempty"`

	// UpdatedAt is when the record was last written
	UpdatedAt time.Time `json:"updated_at"`
}

// NeedsRefresh reports whether the access token is missing, expired, or
// expires within margin of now.
func (r *TokenRecord) NeedsRefresh(now time.Time, margin time.Duration) bool {
	if r.AccessToken == "" {
		return true
	}
	if r.Expiry.IsZero() {
		return false
	}
	return !now.Add(margin).Before(r.Expiry)
}

// CanRefresh reports whether the record carries a refresh token.
func (r *TokenRecord) CanRefresh() bool {
	return r.RefreshToken != ""
}

// OAuth2Token converts the record to an oauth2.Token.
func (r *TokenRecord) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		Expiry:       r.Expiry,
	}
}

// Clone returns a deep copy of the record.
func (r *TokenRecord) Clone() *TokenRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Scopes = slices.Clone(r.Scopes)
	return &c
}

// FromOAuth2Token builds a record from a token returned by the provider.
func FromOAuth2Token(tok *oauth2.Token, scopes []string) *TokenRecord {
	return &TokenRecord{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
		Scopes:       slices.Clone(scopes),
	}
}
