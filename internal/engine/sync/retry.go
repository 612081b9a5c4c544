package sync

import (
	"context"
	"time"
)

// Clock abstracts time so the retry executor can be tested without real
// delays.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NewClock returns the wall clock.
func NewClock() Clock { return realClock{} }

// Policy bounds the retry executor. Attempts is the total number of
// invocations, not the number of retries. MaxElapsed caps the whole loop so
// a stuck dependency cannot hold a run open indefinitely; zero means no cap.
type Policy struct {
	Attempts   int
	BaseDelay  time.Duration
	MaxElapsed time.Duration
}

// WithRetry runs op up to policy.Attempts times with exponential backoff
// between failures (BaseDelay doubling each attempt). Every error is retried
// uniformly; callers that need to classify do so on the returned error,
// which is always the last one observed, unmodified.
func WithRetry(ctx context.Context, clock Clock, policy Policy, op func(context.Context) error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	start := clock.Now()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == attempts {
			break
		}

		delay := policy.BaseDelay << uint(attempt-1)
		if policy.MaxElapsed > 0 && clock.Now().Add(delay).Sub(start) > policy.MaxElapsed {
			break
		}
		if err := clock.Sleep(ctx, delay); err != nil {
			break
		}
	}

	return lastErr
}
