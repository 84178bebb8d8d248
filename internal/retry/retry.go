// Package retry wraps fallible operations with bounded attempts and
// exponential backoff. Container exec and health-check calls are expected
// to fail transiently while the measured server is starting.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted tags the last error after all attempts failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy configures Do. MaxAttempts counts the initial try.
type Policy struct {
	MaxAttempts int
	InitialWait time.Duration
	Factor      float64
}

// DefaultPolicy covers in-container exec calls during startup and shutdown.
var DefaultPolicy = Policy{MaxAttempts: 3, InitialWait: 500 * time.Millisecond, Factor: 2}

// Do runs op until it succeeds or the policy is exhausted. The wait before
// attempt n+1 is InitialWait * Factor^(n-1); there is no wait after the
// final attempt. Context cancellation aborts the wait and returns the
// context error.
func Do[T any](ctx context.Context, policy Policy, op func() (T, error)) (T, error) {
	var zero T
	if policy.MaxAttempts < 1 {
		return zero, fmt.Errorf("retry: MaxAttempts must be at least 1, got %d", policy.MaxAttempts)
	}

	wait := policy.InitialWait
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt < policy.MaxAttempts {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
			wait = time.Duration(float64(wait) * policy.Factor)
		}
	}
	return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, policy.MaxAttempts, lastErr)
}
