// Package retry provides a small retry combinator used by the fetch
// layer. Policies are plain values so callers can derive per-request
// variants without shared state.
package retry

import (
	"context"
	"time"
)

// DefaultMaxAttempts bounds an operation to one initial try plus two
// retries unless the policy says otherwise.
const DefaultMaxAttempts = 3

// Policy describes how often and how patiently an operation is retried.
// The zero value retries nothing useful; build one with NewPolicy or
// set the fields directly.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// Backoff returns the pause before the given retry. attempt is
	// 1-based and counts the tries already made. A nil Backoff means
	// no pause between tries.
	Backoff func(attempt int) time.Duration

	// Retryable reports whether the error is worth another try. A nil
	// Retryable retries every error.
	Retryable func(err error) bool

	// Notify, when set, observes each failed try before the backoff
	// pause. The final failure is not notified; it is returned.
	Notify func(attempt int, err error)
}

// NewPolicy returns the default policy: DefaultMaxAttempts tries with
// linear backoff on the given base delay.
func NewPolicy(baseDelay time.Duration) Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     Linear(baseDelay),
	}
}

// Linear returns a backoff that grows by one base delay per attempt:
// base, 2*base, 3*base and so on.
func Linear(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * base
	}
}

// Do runs op until it succeeds, exhausts the policy, hits a
// non-retryable error, or the context ends. It returns nil on success,
// ctx.Err() when cancelled, and otherwise the last error from op.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		if p.Notify != nil {
			p.Notify(attempt, lastErr)
		}
		if err := sleep(ctx, p.backoffFor(attempt)); err != nil {
			return err
		}
	}
	return lastErr
}

func (p Policy) backoffFor(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(attempt)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
