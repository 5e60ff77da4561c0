package providers

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// baseBackoff is the wait before the first retry; it doubles per attempt.
var baseBackoff = 250 * time.Millisecond

type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func retryable(err error) error {
	return &retryableError{err: err}
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// withRetry runs call until it succeeds, fails permanently, or maxRetries
// retries are spent. Only errors marked retryable are retried.
func withRetry(ctx context.Context, maxRetries int, call func() error) error {
	backoff := baseBackoff
	for attempt := 0; ; attempt++ {
		err := call()
		var rerr *retryableError
		if err == nil || !errors.As(err, &rerr) || attempt >= maxRetries {
			if rerr != nil {
				return rerr.err
			}
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
