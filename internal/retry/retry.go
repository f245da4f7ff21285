// Package retry implements the exponential-backoff-with-jitter policy used
// by the build-system XML-RPC client (the document-store OCC loop has its
// own retry bound), grounded on the teacher's webhook.Adapter.Publish retry
// loop.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// Policy configures a bounded exponential backoff with jitter.
type Policy struct {
	// Attempts is the total number of tries, including the first (non-retry) one.
	Attempts int
	// Factor multiplies the delay after each failed attempt.
	Factor float64
	// Min is the delay before the second attempt.
	Min time.Duration
	// Max caps the delay between attempts.
	Max time.Duration
}

// Default is the XML-RPC retry policy: 5 attempts, factor 3, jittered,
// 1s to 60s.
var Default = Policy{Attempts: 5, Factor: 3, Min: time.Second, Max: 60 * time.Second}

// ErrExhausted wraps the last error after all attempts are spent.
type ErrExhausted struct {
	Attempts int
	Last     error
}

func (e *ErrExhausted) Error() string {
	return fmt.Sprintf("retry: exhausted %d attempts: %v", e.Attempts, e.Last)
}

func (e *ErrExhausted) Unwrap() error { return e.Last }

// Do calls fn until it succeeds, fn returns a non-retriable error (via
// errors.As against a *NonRetriable), ctx is canceled, or the policy's
// attempts are exhausted.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}

	var lastErr error
	delay := p.Min

	for attempt := 0; attempt < p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry: context canceled: %w", err)
		}

		if attempt > 0 {
			wait := jitter(delay)
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry: context canceled during backoff: %w", ctx.Err())
			case <-time.After(wait):
			}
			delay = time.Duration(float64(delay) * p.Factor)
			if delay > p.Max {
				delay = p.Max
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		var nonRetriable *NonRetriable
		if errors.As(lastErr, &nonRetriable) {
			return lastErr
		}
	}

	return &ErrExhausted{Attempts: p.Attempts, Last: lastErr}
}

// jitter returns a random duration in [d/2, d/2 + d/2], at most d, so every
// wait is at least half the base delay.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	half := d / 2
	return half + time.Duration(rand.Int64N(int64(half+1)))
}

// NonRetriable wraps an error that Do must not retry, e.g. a 4xx-equivalent
// permanent rejection from a collaborator.
type NonRetriable struct {
	Err error
}

func (e *NonRetriable) Error() string { return e.Err.Error() }
func (e *NonRetriable) Unwrap() error { return e.Err }
