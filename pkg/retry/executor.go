// Package retry provides the retry executor implementation
package retry

import (
	"context"
	"fmt"

	"github.com/routecalc/prefork/pkg/types"
)

// Executor runs functions under a retry policy
type Executor struct {
	policy    Policy
	clock     types.Clock
	onAttempt func(attempt int, err error)
}

// ExecuteFunc is the function type to retry
type ExecuteFunc[T any] func(ctx context.Context) (T, error)

// Option configures an Executor
type Option func(*Executor)

// WithClock sets the clock used for retry delays
func WithClock(clock types.Clock) Option {
	return func(e *Executor) {
		e.clock = clock
	}
}

// WithAttemptCallback registers a callback invoked after each failed attempt
func WithAttemptCallback(fn func(attempt int, err error)) Option {
	return func(e *Executor) {
		e.onAttempt = fn
	}
}

// NewExecutor creates a retry executor
func NewExecutor(policy Policy, opts ...Option) *Executor {
	e := &Executor{
		policy: policy,
		clock:  types.NewRealClock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs fn until it succeeds, the policy gives up, or the context is
// cancelled. The last error is returned when all attempts fail.
func Execute[T any](e *Executor, ctx context.Context, fn ExecuteFunc[T]) (T, error) {
	var zero T
	var lastErr error

	attempt := 1
	for ; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if e.onAttempt != nil {
			e.onAttempt(attempt, err)
		}

		if !e.policy.ShouldRetry(err, attempt) {
			break
		}

		delay := e.policy.NextDelay(attempt)
		if delay <= 0 {
			continue
		}

		timer := e.clock.NewTimer(delay)
		select {
		case <-timer.C():
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		}
	}

	return zero, fmt.Errorf("all %d attempts failed: %w", attempt, lastErr)
}
