// Package poll runs a check function at a fixed interval until it reports a
// terminal result, the budget is spent, or the context ends.
package poll

import (
	"context"
	"errors"
	"time"
)

// ErrBudgetExceeded is returned when the poll budget elapses without a
// terminal result.
var ErrBudgetExceeded = errors.New("poll budget exceeded")

// CheckFunc inspects the polled resource. done=true stops polling and
// returns result; a non-nil error stops polling immediately.
type CheckFunc[T any] func(ctx context.Context) (result T, done bool, err error)

// Until polls check every interval until done, error, context cancellation,
// or budget exhaustion.
func Until[T any](ctx context.Context, interval, budget time.Duration, check CheckFunc[T]) (T, error) {
	var zero T
	if interval <= 0 {
		return zero, errors.New("poll interval must be positive")
	}
	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result, done, err := check(ctx)
		if err != nil {
			return zero, err
		}
		if done {
			return result, nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return zero, ErrBudgetExceeded
			}
			return zero, ctx.Err()
		case <-ticker.C:
		}
	}
}
