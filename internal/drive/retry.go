package drive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/teemow/ecgdrive/internal/google"
	"github.com/teemow/ecgdrive/internal/logging"
)

// RetryPolicy bounds retries of transient Drive failures.
type RetryPolicy struct {
	// MaxAttempts counts the first try; 1 disables retries
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns 4 attempts, starting at 500ms and capped at 8s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     4,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     8 * time.Second,
	}
}

// chunkRetryDeadline bounds googleapi's own retries of a resumable chunk to
// one backoff step, leaving the attempt budget to withRetry.
func (p RetryPolicy) chunkRetryDeadline() time.Duration {
	if p.MaxInterval > 0 {
		return p.MaxInterval
	}
	return DefaultRetryPolicy().MaxInterval
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	return b
}

// withRetry runs call behind the token guard, retrying transient failures.
// Guard errors and rejections end the loop immediately. A 401 for a token
// the guard considered valid invalidates it and repeats the call once with
// whatever the guard hands out next.
func withRetry[T any](ctx context.Context, c *Client, op string, call func(ctx context.Context) (T, error)) (T, error) {
	attempts := c.retry.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	invalidated := false
	operation := func() (T, error) {
		var zero T

		for {
			token, err := c.tokens.EnsureValidToken(ctx)
			if err != nil {
				return zero, backoff.Permanent(err)
			}

			res, err := call(withToken(ctx, token))
			if err == nil {
				return res, nil
			}

			err = classifyError(op, err)
			if errors.Is(err, google.ErrReauthorizationRequired) && !invalidated {
				invalidated = true
				c.logger.Warn("Drive rejected the access token, refreshing it", logging.Operation(op))
				if ierr := c.tokens.InvalidateAccessToken(ctx, token); ierr != nil {
					return zero, backoff.Permanent(fmt.Errorf("drive: %s: failed to invalidate rejected token: %w", op, ierr))
				}
				continue
			}
			if !errors.Is(err, google.ErrTransientNetwork) || ctx.Err() != nil {
				return zero, backoff.Permanent(err)
			}
			return zero, err
		}
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.retry.backOff()),
		backoff.WithMaxTries(attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.metrics.RecordDriveRetry(ctx, op)
			c.logger.Warn("Retrying Drive call",
				logging.Operation(op),
				"backoff", next,
				logging.Err(err))
		}),
	)
	if err == nil {
		return res, nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	if (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) &&
		!errors.Is(err, google.ErrTransientNetwork) {
		err = &google.TransientError{Op: "drive " + op, Err: err}
	}
	return res, err
}
