package errors

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(n int) RetryConfig {
	return RetryConfig{
		MaxRetries:   n,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func lockHeld() error {
	return New(ErrCodeLockHeld, "write lock held", nil)
}

func TestRetry_SucceedsAfterRetryableFailures(t *testing.T) {
	// Given: a function that fails twice with a held lock
	calls := 0
	fn := func() (string, error) {
		calls++
		if calls < 3 {
			return "", lockHeld()
		}
		return "lock", nil
	}

	// When: retrying with room for three retries
	got, err := Retry(context.Background(), fastRetry(3), fn)

	// Then: the third call's result comes back
	require.NoError(t, err)
	assert.Equal(t, "lock", got)
	assert.Equal(t, 3, calls)
}

func TestRetry_NonRetryableReturnsImmediately(t *testing.T) {
	// Given: a function that fails with a plain error
	boom := stderrors.New("boom")
	calls := 0

	// When: retrying
	_, err := Retry(context.Background(), fastRetry(5), func() (int, error) {
		calls++
		return 0, boom
	})

	// Then: it is called once and the error is not wrapped
	assert.Same(t, boom, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_ExhaustedWrapsLastError(t *testing.T) {
	calls := 0

	_, err := Retry(context.Background(), fastRetry(2), func() (int, error) {
		calls++
		return 0, lockHeld()
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "failed after 2 retries")
	assert.True(t, stderrors.Is(err, ErrLockHeld))
	assert.True(t, IsRetryable(err))
}

func TestRetry_ZeroRetriesCallsOnce(t *testing.T) {
	calls := 0

	_, err := Retry(context.Background(), fastRetry(0), func() (int, error) {
		calls++
		return 0, lockHeld()
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_OnRetryReportsBackoff(t *testing.T) {
	// Given: a config with an OnRetry hook
	cfg := fastRetry(3)
	var waits []time.Duration
	var attempts []int
	cfg.OnRetry = func(attempt int, wait time.Duration, err error) {
		attempts = append(attempts, attempt)
		waits = append(waits, wait)
		assert.True(t, IsRetryable(err))
	}

	// When: every call fails
	_, _ = Retry(context.Background(), cfg, func() (int, error) { return 0, lockHeld() })

	// Then: waits double and stop at MaxDelay
	assert.Equal(t, []int{1, 2, 3}, attempts)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond}, waits)
}

func TestRetry_JitterStaysInRange(t *testing.T) {
	cfg := fastRetry(4)
	cfg.InitialDelay = 2 * time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	cfg.Jitter = true
	cfg.OnRetry = func(_ int, wait time.Duration, _ error) {
		assert.GreaterOrEqual(t, wait, time.Millisecond)
		assert.Less(t, wait, 2*time.Millisecond)
	}

	_, _ = Retry(context.Background(), cfg, func() (int, error) { return 0, lockHeld() })
}

func TestRetry_ContextCancelled(t *testing.T) {
	t.Run("before the first call", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0

		_, err := Retry(ctx, fastRetry(3), func() (int, error) {
			calls++
			return 1, nil
		})

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, calls)
	})

	t.Run("while waiting", func(t *testing.T) {
		// Given: a long backoff
		ctx, cancel := context.WithCancel(context.Background())
		cfg := fastRetry(3)
		cfg.InitialDelay = time.Hour
		cfg.OnRetry = func(int, time.Duration, error) { cancel() }

		// When: the context is cancelled during the wait
		start := time.Now()
		_, err := Retry(ctx, cfg, func() (int, error) { return 0, lockHeld() })

		// Then: Retry returns promptly
		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
	assert.False(t, cfg.Jitter)
}
