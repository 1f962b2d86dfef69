package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverside-labs/pgmux/internal/errcat"
	"github.com/riverside-labs/pgmux/internal/resilience"
)

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	p := resilience.NewPolicy(resilience.RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      time.Millisecond,
		BackoffFactor: 1,
	}, nil)

	calls := 0
	result, err := resilience.Do(context.Background(), p, nil, "op", func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errcat.New(errcat.Timeout, "ETIMEDOUT")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsAtMaxAttempts(t *testing.T) {
	p := resilience.NewPolicy(resilience.RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond,
		BackoffFactor: 1,
	}, nil)

	calls := 0
	_, err := resilience.Do(context.Background(), p, nil, "op", func(context.Context) (int, error) {
		calls++
		return 0, errcat.New(errcat.Timeout, "ETIMEDOUT")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_NonRetryableFailsFast(t *testing.T) {
	p := resilience.NewPolicy(resilience.RetryConfig{MaxAttempts: 5}, nil)

	calls := 0
	_, err := resilience.Do(context.Background(), p, nil, "op", func(context.Context) (int, error) {
		calls++
		return 0, errcat.New(errcat.Syntax, "syntax error at or near")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RespectsContextCancellation(t *testing.T) {
	p := resilience.NewPolicy(resilience.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 50 * time.Millisecond,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := resilience.Do(ctx, p, nil, "op", func(context.Context) (int, error) {
		return 0, errcat.New(errcat.Timeout, "boom")
	})

	require.Error(t, err)
}

func TestDo_BreakerOpensAndShortCircuits(t *testing.T) {
	p := resilience.NewPolicy(resilience.RetryConfig{MaxAttempts: 1}, nil)
	br := resilience.NewBreaker(resilience.BreakerConfig{
		FailureThreshold: 1,
		Cooldown:         time.Minute,
	}, nil, "test")

	_, err := resilience.Do(context.Background(), p, br, "op", func(context.Context) (int, error) {
		return 0, errcat.New(errcat.Connection, "connection refused")
	})
	require.Error(t, err)

	calls := 0
	_, err = resilience.Do(context.Background(), p, br, "op", func(context.Context) (int, error) {
		calls++
		return 1, nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrOpen)
	assert.Equal(t, 0, calls)
}

func TestDo_PerCallTimeoutClassifiedAsTimeout(t *testing.T) {
	p := resilience.NewPolicy(resilience.RetryConfig{
		MaxAttempts:    1,
		PerCallTimeout: 5 * time.Millisecond,
	}, nil)

	_, err := resilience.Do(context.Background(), p, nil, "op", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	require.Error(t, err)
	var we *errcat.WrappedError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, errcat.Timeout, we.Category)
}
