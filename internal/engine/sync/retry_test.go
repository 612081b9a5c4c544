package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock advances virtual time on Sleep and records every delay.
type testClock struct {
	now    time.Time
	slept  []time.Duration
	sleepE error
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1700000000, 0)}
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Sleep(ctx context.Context, d time.Duration) error {
	if c.sleepE != nil {
		return c.sleepE
	}
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return nil
}

func TestWithRetry_SucceedsAfterFailures(t *testing.T) {
	clock := newTestClock()
	calls := 0

	err := WithRetry(context.Background(), clock, Policy{Attempts: 5, BaseDelay: 100 * time.Millisecond}, func(ctx context.Context) error {
		calls++
		if calls <= 2 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls, "fails twice then succeeds on the third invocation")
}

func TestWithRetry_ExhaustsAttempts(t *testing.T) {
	clock := newTestClock()
	calls := 0
	last := errors.New("provider outage")

	err := WithRetry(context.Background(), clock, Policy{Attempts: 4, BaseDelay: 10 * time.Millisecond}, func(ctx context.Context) error {
		calls++
		return last
	})

	assert.Equal(t, 4, calls)
	assert.Same(t, last, err, "last error returned unmodified")
}

func TestWithRetry_ExponentialBackoff(t *testing.T) {
	clock := newTestClock()

	_ = WithRetry(context.Background(), clock, Policy{Attempts: 4, BaseDelay: 100 * time.Millisecond}, func(ctx context.Context) error {
		return errors.New("nope")
	})

	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
	}, clock.slept)
}

func TestWithRetry_MaxElapsedCap(t *testing.T) {
	clock := newTestClock()
	calls := 0

	err := WithRetry(context.Background(), clock, Policy{
		Attempts:   10,
		BaseDelay:  time.Second,
		MaxElapsed: 2 * time.Second,
	}, func(ctx context.Context) error {
		calls++
		return errors.New("slow outage")
	})

	require.Error(t, err)
	// 1s + 2s backoff would cross the 2s cap before the third attempt.
	assert.Equal(t, 2, calls)
}

func TestWithRetry_ZeroAttemptsStillRunsOnce(t *testing.T) {
	clock := newTestClock()
	calls := 0

	err := WithRetry(context.Background(), clock, Policy{}, func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_CancelledContext(t *testing.T) {
	clock := newTestClock()
	clock.sleepE = context.Canceled
	boom := errors.New("boom")
	calls := 0

	err := WithRetry(context.Background(), clock, Policy{Attempts: 5, BaseDelay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return boom
	})

	assert.Equal(t, 1, calls, "cancellation during backoff stops the loop")
	assert.Same(t, boom, err)
}
