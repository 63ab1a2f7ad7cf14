package google

import (
	"errors"
	"fmt"
)

var (
	// ErrCSRFMismatch is returned when a callback carries a state value that
	// is unknown, expired or already consumed.
	ErrCSRFMismatch = errors.New("google: authorization state mismatch")

	// ErrReauthorizationRequired means no usable token exists and the user
	// has to go through the consent flow again.
	ErrReauthorizationRequired = errors.New("google: reauthorization required")

	// ErrTransientNetwork matches every *TransientError.
	ErrTransientNetwork = errors.New("google: transient network failure")
)

// AuthorizationDeniedError reports that the provider refused the grant:
// the user declined consent or the code was invalid, expired or reused.
type AuthorizationDeniedError struct {
	Code        string // OAuth error code, e.g. "access_denied", "invalid_grant"
	Description string
}

func (e *AuthorizationDeniedError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("google: authorization denied: %s", e.Code)
	}
	return fmt.Sprintf("google: authorization denied: %s: %s", e.Code, e.Description)
}

// TransientError wraps a failure that may succeed when retried later:
// network errors, provider 5xx responses, caller timeouts.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("google: %s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrTransientNetwork) hold for any TransientError.
func (e *TransientError) Is(target error) bool {
	return target == ErrTransientNetwork
}

// IsReauthorizationRequired reports whether err means the consent flow must restart.
func IsReauthorizationRequired(err error) bool {
	return errors.Is(err, ErrReauthorizationRequired)
}
