package resilience

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastBackoff(attempts int) Backoff {
	return Backoff{Attempts: attempts, Initial: time.Millisecond, Max: 5 * time.Millisecond}
}

func TestRetry_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	v, err := Retry(context.Background(), fastBackoff(3), "test", func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, calls)
}

func TestRetry_SuccessAfterTransientErrors(t *testing.T) {
	var calls int
	v, err := Retry(context.Background(), fastBackoff(3), "test", func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, fmt.Errorf("dial: %w", syscall.ECONNREFUSED)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	var calls int
	_, err := Retry(context.Background(), fastBackoff(3), "test", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("connection refused")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	var calls int
	_, err := Retry(context.Background(), fastBackoff(5), "test", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("password authentication failed")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_CustomRetryable(t *testing.T) {
	var calls int
	b := fastBackoff(4)
	b.Retryable = func(error) bool { return true }
	_, err := Retry(context.Background(), b, "test", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("anything")
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	b := Backoff{Attempts: 10, Initial: time.Hour}
	_, err := Retry(ctx, b, "test", func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("i/o timeout")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: time.Second}
	assert.Equal(t, 100*time.Millisecond, b.delay(1))
	assert.Equal(t, 200*time.Millisecond, b.delay(2))
	assert.Equal(t, 400*time.Millisecond, b.delay(3))
	assert.Equal(t, time.Second, b.delay(10))

	b.Jitter = 0.5
	for i := 0; i < 20; i++ {
		d := b.delay(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("syntax error at or near"), false},
		{fmt.Errorf("wrap: %w", syscall.ECONNRESET), true},
		{errors.New("FATAL: the database system is starting up"), true},
		{errors.New("read tcp: i/o timeout"), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsTransient(tt.err), "%v", tt.err)
	}
}
