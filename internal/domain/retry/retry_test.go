package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	value string
}

// recordSleeps returns a SleepFunc that records requested delays without waiting.
func recordSleeps(delays *[]time.Duration) SleepFunc {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	var delays []time.Duration
	e := New(DefaultPolicy(), WithSleep(recordSleeps(&delays)))

	res, err := Do(context.Background(), e, func(_ context.Context) (*payload, error) {
		return &payload{value: "ok"}, nil
	})

	require.NoError(t, err)
	require.NotNil(t, res.Value)
	assert.Equal(t, "ok", res.Value.value)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, delays, "no sleep before a successful first attempt")
}

func TestDoRetriesWithExponentialBackoff(t *testing.T) {
	var delays []time.Duration
	e := New(DefaultPolicy(), WithSleep(recordSleeps(&delays)))

	calls := 0
	res, err := Do(context.Background(), e, func(_ context.Context) (*payload, error) {
		calls++
		return nil, errors.New("boom")
	})

	require.Error(t, err)
	assert.Nil(t, res.Value)
	assert.Equal(t, 3, calls, "default policy allows three attempts")
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, delays)
	assert.Contains(t, err.Error(), "all 3 attempts failed")
	assert.Contains(t, err.Error(), "boom")
}

func TestDoSucceedsAfterTransientFailure(t *testing.T) {
	var delays []time.Duration
	e := New(DefaultPolicy(), WithSleep(recordSleeps(&delays)))

	calls := 0
	res, err := Do(context.Background(), e, func(_ context.Context) (*payload, error) {
		calls++
		if calls < 2 {
			return nil, errors.New("transient")
		}
		return &payload{value: "recovered"}, nil
	})

	require.NoError(t, err)
	require.NotNil(t, res.Value)
	assert.Equal(t, "recovered", res.Value.value)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, []time.Duration{5 * time.Second}, delays, "only one backoff before the second attempt")
}

func TestDoRetriesEmptyResults(t *testing.T) {
	var delays []time.Duration
	e := New(DefaultPolicy(), WithSleep(recordSleeps(&delays)))

	calls := 0
	res, err := Do(context.Background(), e, func(_ context.Context) (*payload, error) {
		calls++
		return nil, nil
	})

	require.ErrorIs(t, err, ErrEmptyExhausted)
	assert.Nil(t, res.Value)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, res.Attempts)
}

func TestDoEmptyAfterFailureSurfacesLastError(t *testing.T) {
	var delays []time.Duration
	e := New(DefaultPolicy(), WithSleep(recordSleeps(&delays)))

	calls := 0
	_, err := Do(context.Background(), e, func(_ context.Context) (*payload, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("network down")
		}
		return nil, nil
	})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmptyExhausted, "a real fault should win over an empty result")
	assert.Contains(t, err.Error(), "network down")
}

func TestDoEmptyReturnedImmediatelyWhenNotRetried(t *testing.T) {
	policy := DefaultPolicy()
	policy.RetryOnEmpty = false

	var delays []time.Duration
	e := New(policy, WithSleep(recordSleeps(&delays)))

	calls := 0
	res, err := Do(context.Background(), e, func(_ context.Context) (*payload, error) {
		calls++
		return nil, nil
	})

	require.NoError(t, err)
	assert.Nil(t, res.Value)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, delays)
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := New(DefaultPolicy(), WithSleep(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	calls := 0
	_, err := Do(ctx, e, func(_ context.Context) (*payload, error) {
		calls++
		return nil, errors.New("boom")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "cancellation during backoff prevents further attempts")
}

func TestDoSanitizesPolicy(t *testing.T) {
	e := New(Policy{MaxAttempts: 0, Factor: 0, InitialDelay: -time.Second})

	p := e.Policy()
	assert.Equal(t, 1, p.MaxAttempts)
	assert.InEpsilon(t, 1.0, p.Factor, 0.0001)
	assert.Equal(t, time.Duration(0), p.InitialDelay)
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 5*time.Second, p.InitialDelay)
	assert.InEpsilon(t, 2.0, p.Factor, 0.0001)
	assert.True(t, p.RetryOnEmpty)
}
