// Package retry provides a small fixed-policy retry helper with doubling
// backoff, used around store writes during fetch cycles.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy controls how many times an operation is attempted and how long to
// wait between attempts. The delay doubles after every failure.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration

	// OnRetry, when set, is called with the failed attempt's error before
	// each backoff sleep. It never fires for the final attempt, so its call
	// count equals the number of retries actually performed.
	OnRetry func(err error)
}

// DefaultPolicy returns the policy used for store writes: three attempts
// starting at one second.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second}
}

// Do runs op until it succeeds, the attempts are exhausted, or the context
// is done. The last error is returned wrapped with the attempt count.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := p.BaseDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(lastErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}
