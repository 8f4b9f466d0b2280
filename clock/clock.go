// Package clock abstracts the monotonic time source used by the wait engine.
//
// Real reads time.Now, whose readings carry the monotonic clock, so elapsed
// durations are immune to wall-clock adjustments. Fake simulates time for
// tests: sleeping on it advances it instantly.
package clock

import (
	"context"
	"time"
)

// Clock is the time source for polling loops.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	// Sleep suspends the caller for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

// Real is the production clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) Since(t time.Time) time.Duration { return time.Since(t) }

func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
