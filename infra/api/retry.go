package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/yatrik/scheduler/core/scheduler"
)

// statusError is a non-2xx response.
type statusError struct {
	Status int
	Msg    string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Msg)
}

// retryable reports whether a response status may succeed when repeated.
func retryable(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Duration(c.cfg.BackoffMS) * time.Millisecond
	eb.MaxInterval = 10 * eb.InitialInterval
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.cfg.MaxRetries)), ctx)
}

// withRetry runs op until it succeeds, fails permanently or the retry budget
// is spent. Transport errors and retryable statuses are retried; everything
// else is returned at once.
func withRetry[T any](ctx context.Context, c *Client, what string, op func() (T, error)) (T, error) {
	attempt := 0
	wrapped := func() (T, error) {
		attempt++
		v, err := op()
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return v, backoff.Permanent(err)
		}
		var se *statusError
		if errors.As(err, &se) && !retryable(se.Status) {
			return v, backoff.Permanent(err)
		}
		var ae *scheduler.AuthError
		if errors.As(err, &ae) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, d time.Duration) {
		c.log.Warnf("%s attempt %d failed: %v; retrying in %s", what, attempt, err, d)
	}
	return backoff.RetryNotifyWithData(wrapped, c.newBackOff(ctx), notify)
}
