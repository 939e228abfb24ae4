package retryx

import (
	"context"
	"time"
)

const (
	// DefaultMaxAttempts is used when Options.MaxAttempts is zero.
	DefaultMaxAttempts = 3

	maxBackoff       = 30 * time.Second
	baseBackoff      = 1 * time.Second
	rateLimitBackoff = 5 * time.Second
)

// Options tunes a Do call.
type Options struct {
	// MaxAttempts caps the total number of invocations (not just retries).
	MaxAttempts int

	// OnError, when set, is invoked with the classified failure and the
	// 1-based attempt number after every failed invocation.
	OnError func(info ErrorInfo, attempt int)

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Do invokes op, classifying failures and retrying retryable ones with
// exponential backoff. Non-retryable failures are returned immediately even
// when attempts remain. The original error, not the classification, is
// returned so callers keep errors.Is/As matching.
func Do[T any](ctx context.Context, opts Options, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	sleep := opts.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err

		info := Classify(err)
		if opts.OnError != nil {
			opts.OnError(info, attempt)
		}
		if !info.Retryable || attempt == maxAttempts {
			return zero, err
		}
		if err := sleep(ctx, Delay(info, attempt)); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}

// Run is Do for operations without a result value.
func Run(ctx context.Context, opts Options, op func(ctx context.Context) error) error {
	_, err := Do(ctx, opts, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Delay computes how long to wait before the attempt following the given
// 1-based failed attempt. An explicit server retry-after hint wins; otherwise
// exponential backoff base*2^(attempt-1) capped at 30s, with a 5s base for
// rate-limit failures and 1s for everything else.
func Delay(info ErrorInfo, attempt int) time.Duration {
	if info.RetryAfter > 0 {
		return info.RetryAfter
	}
	base := baseBackoff
	if info.Kind == KindRateLimit {
		base = rateLimitBackoff
	}
	d := base << (attempt - 1)
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
