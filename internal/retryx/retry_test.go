package retryx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep() func(ctx context.Context, d time.Duration) error {
	return func(ctx context.Context, d time.Duration) error { return nil }
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	res, err := Do(context.Background(), Options{sleep: noSleep()}, func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, res)
	assert.Equal(t, 1, calls)
}

func TestDo_NonRetryableCalledOnce(t *testing.T) {
	calls := 0
	authErr := &APIError{StatusCode: 401}
	_, err := Do(context.Background(), Options{MaxAttempts: 5, sleep: noSleep()}, func(ctx context.Context) (int, error) {
		calls++
		return 0, authErr
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "auth errors must never be retried")
	assert.ErrorIs(t, err, error(authErr), "original error is rethrown")
}

func TestDo_RetryableExhaustsAttempts(t *testing.T) {
	calls := 0
	srvErr := &APIError{StatusCode: 500}
	_, err := Do(context.Background(), Options{MaxAttempts: 3, sleep: noSleep()}, func(ctx context.Context) (int, error) {
		calls++
		return 0, srvErr
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var aerr *APIError
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, 500, aerr.StatusCode)
}

func TestDo_EventualSuccess(t *testing.T) {
	calls := 0
	res, err := Do(context.Background(), Options{MaxAttempts: 3, sleep: noSleep()}, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &APIError{StatusCode: 503}
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, 3, calls)
}

func TestDo_OnErrorObserved(t *testing.T) {
	var kinds []Kind
	var attempts []int
	_, _ = Do(context.Background(), Options{
		MaxAttempts: 2,
		OnError: func(info ErrorInfo, attempt int) {
			kinds = append(kinds, info.Kind)
			attempts = append(attempts, attempt)
		},
		sleep: noSleep(),
	}, func(ctx context.Context) (int, error) {
		return 0, &APIError{StatusCode: 500}
	})
	assert.Equal(t, []Kind{KindServer, KindServer}, kinds)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDo_ContextCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Do(ctx, Options{MaxAttempts: 3}, func(ctx context.Context) (int, error) {
		calls++
		return 0, &APIError{StatusCode: 500}
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRun(t *testing.T) {
	calls := 0
	err := Run(context.Background(), Options{sleep: noSleep()}, func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDelay_Backoff(t *testing.T) {
	srv := ErrorInfo{Kind: KindServer}
	assert.Equal(t, 1*time.Second, Delay(srv, 1))
	assert.Equal(t, 2*time.Second, Delay(srv, 2))
	assert.Equal(t, 4*time.Second, Delay(srv, 3))
	assert.Equal(t, 30*time.Second, Delay(srv, 6), "capped at 30s")

	rl := ErrorInfo{Kind: KindRateLimit}
	assert.Equal(t, 5*time.Second, Delay(rl, 1))
	assert.Equal(t, 10*time.Second, Delay(rl, 2))
	assert.Equal(t, 30*time.Second, Delay(rl, 4), "capped at 30s")
}

func TestDelay_RetryAfterWins(t *testing.T) {
	info := ErrorInfo{Kind: KindRateLimit, RetryAfter: 12 * time.Second}
	assert.Equal(t, 12*time.Second, Delay(info, 1))
}
