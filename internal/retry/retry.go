// Package retry provides a bounded, fixed-delay retry policy that can be
// exercised without any network I/O.
package retry

import (
	"context"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultDelay       = 2 * time.Second
)

// Policy retries an operation up to MaxAttempts total attempts, waiting a
// fixed Delay between attempts. Only errors accepted by Retryable consume
// further attempts; a nil Retryable treats every error as retryable.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Retryable   func(error) bool

	// OnAttempt observes every finished attempt (err is nil on success).
	OnAttempt func(attempt int, err error)
}

// DefaultPolicy returns the 3 attempts / 2s policy with the given classifier.
func DefaultPolicy(retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultDelay,
		Retryable:   retryable,
	}
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent, in which case the last error is returned. If ctx
// ends while waiting between attempts, ctx.Err() is returned.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	var attempt int
	for {
		attempt++
		err := fn(ctx, attempt)
		if p.OnAttempt != nil {
			p.OnAttempt(attempt, err)
		}
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if !p.retryable(err) || !p.shouldRetry(attempt) {
			return err
		}
		if err := Sleep(ctx, p.Delay); err != nil {
			return err
		}
	}
}

func (p Policy) retryable(err error) bool {
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

func (p Policy) shouldRetry(attempt int) bool {
	max := p.MaxAttempts
	if max <= 0 {
		max = 1
	}
	return attempt < max
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
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
