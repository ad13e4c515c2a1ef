// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	"time"

	"github.com/taskbridge/taskbridge/pkg/errors"
)

// TimeoutConfig controls timeout behavior.
type TimeoutConfig struct {
	// Duration is the maximum time allowed for the operation.
	// Zero means no timeout boundary.
	Duration time.Duration
}

// WithTimeout executes fn under a deadline derived from config. fn receives
// the bounded context and must honor its cancellation. Deadline expiry is
// reported as errors.CodeTimeout unless the parent context was already done.
func WithTimeout(ctx context.Context, config TimeoutConfig, fn func(ctx context.Context) error) error {
	if config.Duration <= 0 {
		return fn(ctx)
	}

	tctx, cancel := context.WithTimeout(ctx, config.Duration)
	defer cancel()

	err := fn(tctx)
	if err != nil && tctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return timeoutError(config.Duration, err)
	}
	return err
}

// WithTimeoutResult is WithTimeout for operations that return a value.
func WithTimeoutResult[T any](ctx context.Context, config TimeoutConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	if config.Duration <= 0 {
		return fn(ctx)
	}

	tctx, cancel := context.WithTimeout(ctx, config.Duration)
	defer cancel()

	value, err := fn(tctx)
	if err != nil && tctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		var zero T
		return zero, timeoutError(config.Duration, err)
	}
	return value, err
}

func timeoutError(d time.Duration, cause error) error {
	return errors.New(errors.CodeTimeout, "operation exceeded timeout", cause).
		WithContext("timeout", d.String()).
		WithRecoverable(true)
}
