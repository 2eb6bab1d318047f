// Package retry provides small bounded waiting primitives: a fixed-interval
// poll with a hard ceiling, and a fixed-count attempt loop with a fixed
// delay. Both composer readiness checks and delivery retries go through
// these so the timer logic lives in one place.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCeiling is returned by Poll when the predicate never succeeded within
// the configured ceiling.
var ErrCeiling = errors.New("retry: ceiling reached")

// Poll calls pred every interval until it returns true, an error, or the
// ceiling elapses. The first call happens immediately, not after one
// interval. A pred error stops the loop and is returned as-is.
func Poll(ctx context.Context, interval, ceiling time.Duration, pred func(ctx context.Context) (bool, error)) error {
	deadline := time.Now().Add(ceiling)

	for {
		ok, err := pred(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().Add(interval).After(deadline) {
			return ErrCeiling
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// Attempts runs fn up to max times with a fixed delay between attempts,
// returning nil on the first success. The last error is wrapped with the
// attempt count when the budget is exhausted.
func Attempts(ctx context.Context, max int, delay time.Duration, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= max; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt < max {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("gave up after %d attempts: %w", max, lastErr)
}
