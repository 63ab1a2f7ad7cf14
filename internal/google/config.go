package google

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// DefaultRevokeURL is Google's token revocation endpoint.
const DefaultRevokeURL = "https://oauth2.googleapis.com/revoke"

// ClientOptions locate the OAuth client registration.
type ClientOptions struct {
	// CredentialsFile is the client secrets JSON downloaded from the Google
	// Cloud console ("web" or "installed" application).
	CredentialsFile string

	// ClientID and ClientSecret are used when CredentialsFile is empty.
	ClientID     string
	ClientSecret string

	// RedirectURI overrides the first redirect URI of the credentials file.
	// It must match a URI registered in the console exactly.
	RedirectURI string
}

// LoadClientConfig builds the immutable OAuth client configuration with the
// drive.file scope.
func LoadClientConfig(opts ClientOptions) (*oauth2.Config, error) {
	var conf *oauth2.Config

	if opts.CredentialsFile != "" {
		data, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read client credentials: %w", err)
		}
		conf, err = google.ConfigFromJSON(data, DefaultOAuthScopes...)
		if err != nil {
			return nil, fmt.Errorf("failed to parse client credentials: %w", err)
		}
	} else {
		if opts.ClientID == "" || opts.ClientSecret == "" {
			return nil, errors.New("either a credentials file or client id and secret are required")
		}
		conf = &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       DefaultOAuthScopes,
		}
	}

	if opts.RedirectURI != "" {
		conf.RedirectURL = opts.RedirectURI
	}
	if err := ValidateRedirectURI(conf.RedirectURL); err != nil {
		return nil, err
	}

	return conf, nil
}

// ValidateRedirectURI checks that uri is an absolute http(s) URL. Plain http
// is only accepted for loopback hosts.
func ValidateRedirectURI(uri string) error {
	if uri == "" {
		return errors.New("redirect URI is required")
	}

	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid redirect URI: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("redirect URI %q must be absolute", uri)
	}
	if u.Fragment != "" {
		return fmt.Errorf("redirect URI %q must not contain a fragment", uri)
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if isLoopback(u.Hostname()) {
			return nil
		}
		return fmt.Errorf("redirect URI %q must use https for non-loopback hosts", uri)
	default:
		return fmt.Errorf("redirect URI %q has unsupported scheme %q", uri, u.Scheme)
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
