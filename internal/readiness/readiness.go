// Package readiness waits for a database to accept connections.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrNotReady is returned when every attempt failed.
var ErrNotReady = errors.New("not ready")

// Policy bounds the poll: at most Attempts tries, Interval apart.
type Policy struct {
	Attempts int
	Interval time.Duration
}

// DefaultPolicy is 30 attempts, 2s apart.
var DefaultPolicy = Policy{Attempts: 30, Interval: 2 * time.Second}

// Notify is called after each failed attempt with the attempt number (1-based),
// the error and the wait before the next attempt.
type Notify func(attempt int, err error, next time.Duration)

// Poll calls fn until it succeeds, the policy is exhausted or ctx is done.
// The returned error wraps ErrNotReady and the last failure from fn.
func Poll(ctx context.Context, p Policy, name string, fn func(context.Context) error, notify Notify) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(p.Interval)
	b = backoff.WithMaxRetries(b, uint64(attempts-1))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	var last error
	op := func() error {
		attempt++
		last = fn(ctx)
		return last
	}
	onRetry := func(err error, next time.Duration) {
		if notify != nil {
			notify(attempt, err, next)
		}
	}

	if err := backoff.RetryNotify(op, b, onRetry); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && last == nil {
			last = ctxErr
		}
		return fmt.Errorf("%s: %w after %d attempt(s): %w", name, ErrNotReady, attempt, last)
	}
	return nil
}
