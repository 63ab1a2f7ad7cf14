package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"slices"

	"google.golang.org/api/googleapi"

	"github.com/teemow/ecgdrive/internal/google"
)

var (
	// ErrRemoteRejected matches every *RemoteRejectedError.
	ErrRemoteRejected = errors.New("drive: request rejected")

	// ErrQuotaExceeded matches a *RemoteRejectedError caused by an exhausted
	// storage or daily quota.
	ErrQuotaExceeded = errors.New("drive: quota exceeded")
)

// quotaReasons are the googleapi error reasons reported for exhausted quotas.
var quotaReasons = []string{
	"quotaExceeded",
	"storageQuotaExceeded",
	"dailyLimitExceeded",
}

// rateLimitReasons come with 403 but clear up after a backoff.
var rateLimitReasons = []string{
	"rateLimitExceeded",
	"userRateLimitExceeded",
}

// RemoteRejectedError is a non-retryable 4xx answer from Drive.
type RemoteRejectedError struct {
	Op      string
	Status  int
	Reason  string // first googleapi error reason, e.g. "storageQuotaExceeded"
	Message string
}

func (e *RemoteRejectedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("drive: %s: HTTP %d (%s): %s", e.Op, e.Status, e.Reason, e.Message)
	}
	return fmt.Sprintf("drive: %s: HTTP %d: %s", e.Op, e.Status, e.Message)
}

// Is matches ErrRemoteRejected, and ErrQuotaExceeded for quota reasons.
func (e *RemoteRejectedError) Is(target error) bool {
	switch target {
	case ErrRemoteRejected:
		return true
	case ErrQuotaExceeded:
		return e.QuotaExceeded()
	}
	return false
}

// QuotaExceeded reports whether the rejection was caused by a quota.
func (e *RemoteRejectedError) QuotaExceeded() bool {
	return slices.Contains(quotaReasons, e.Reason)
}

// classifyError maps a failed Drive call onto the package error taxonomy.
// Retryable failures come back as *google.TransientError.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		if isRetryableStatus(gErr.Code) || hasReason(gErr, rateLimitReasons) {
			return &google.TransientError{Op: "drive " + op, Err: err}
		}
		if gErr.Code == http.StatusUnauthorized {
			return fmt.Errorf("drive: %s: HTTP 401: %s: %w", op, gErr.Message, google.ErrReauthorizationRequired)
		}
		rejected := &RemoteRejectedError{
			Op:      op,
			Status:  gErr.Code,
			Message: gErr.Message,
		}
		if len(gErr.Errors) > 0 {
			rejected.Reason = gErr.Errors[0].Reason
			if rejected.Message == "" {
				rejected.Message = gErr.Errors[0].Message
			}
		}
		return rejected
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &google.TransientError{Op: "drive " + op, Err: err}
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return &google.TransientError{Op: "drive " + op, Err: err}
	}

	return fmt.Errorf("drive: %s: %w", op, err)
}

// isNotFound reports whether Drive answered 404 for the request.
func isNotFound(err error) bool {
	var rejected *RemoteRejectedError
	return errors.As(err, &rejected) && rejected.Status == http.StatusNotFound
}

func hasReason(gErr *googleapi.Error, reasons []string) bool {
	for _, item := range gErr.Errors {
		if slices.Contains(reasons, item.Reason) {
			return true
		}
	}
	return false
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusRequestTimeout ||
		code >= http.StatusInternalServerError
}
