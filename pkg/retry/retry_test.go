package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ReturnsLastErrorUnchanged(t *testing.T) {
	sentinel := errors.New("store down")
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		attempts++
		return sentinel
	})

	assert.Same(t, sentinel, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_RetryablePredicate(t *testing.T) {
	cfg := fastConfig(5)
	cfg.Retryable = func(err error) bool { return err.Error() == "retry me" }

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return errors.New("bad request")
	})

	assert.EqualError(t, err, "bad request")
	assert.Equal(t, 1, attempts)
}

func TestRetry_NonRetryable(t *testing.T) {
	sentinel := errors.New("malformed")
	attempts := 0
	err := Do(context.Background(), fastConfig(5), func() error {
		attempts++
		return NonRetryable(sentinel)
	})

	assert.Same(t, sentinel, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, IsNonRetryable(NonRetryable(sentinel)))
	assert.Nil(t, NonRetryable(nil))
}

func TestRetry_ContextCancelledStopsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 10, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 1}

	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := Do(ctx, cfg, func() error {
		attempts++
		return errors.New("timeout")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRetry_Once(t *testing.T) {
	attempts := 0
	_ = Do(context.Background(), Once(), func() error {
		attempts++
		return errors.New("fail")
	})
	assert.Equal(t, 1, attempts)
}

func TestRetry_InvalidConfig(t *testing.T) {
	err := Do(context.Background(), Config{MaxAttempts: 2, InitialDelay: -1}, func() error { return nil })
	assert.Error(t, err)

	err = Do(context.Background(), Config{MaxAttempts: 2, InitialDelay: time.Second, MaxDelay: time.Millisecond}, func() error { return nil })
	assert.Error(t, err)
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	result, err := DoWithResult(context.Background(), fastConfig(3), func() (int, error) {
		attempts++
		if attempts == 1 {
			return 0, errors.New("timeout")
		}
		return 42, nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 42, result)
}
