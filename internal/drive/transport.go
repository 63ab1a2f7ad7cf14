package drive

import (
	"context"
	"errors"
	"net/http"
)

// TokenSource hands out access tokens that are valid for the next call.
// *google.Authorizer implements it.
type TokenSource interface {
	EnsureValidToken(ctx context.Context) (string, error)

	// InvalidateAccessToken marks token as rejected so the next
	// EnsureValidToken does not return it again.
	InvalidateAccessToken(ctx context.Context, token string) error
}

type tokenKey struct{}

func withToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey{}).(string)
	return token, ok && token != ""
}

var errNoToken = errors.New("drive: request issued without an access token")

// bearerTransport sets the Authorization header from the request context.
type bearerTransport struct {
	base http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, ok := tokenFromContext(req.Context())
	if !ok {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, errNoToken
	}

	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+token)

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(r)
}
