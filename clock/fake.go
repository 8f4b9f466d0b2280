package clock

import (
	"context"
	"sync"
	"time"
)

// Fake is a controllable Clock for testing time-dependent behavior.
// Thread-safe for use across goroutines.
//
// Sleep advances the fake time by the requested duration and returns at once,
// so a polling loop runs through simulated seconds in microseconds.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  int
	onSleep func(d time.Duration)
}

// NewFake creates a Fake frozen at the given time.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

// Now returns the current fake time.
func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns the fake time elapsed since t.
func (c *Fake) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Advance moves the clock forward by d.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Sleep advances the clock by d unless ctx is already done.
func (c *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	c.sleeps++
	hook := c.onSleep
	c.mu.Unlock()

	if hook != nil {
		hook(d)
	}
	return ctx.Err()
}

// Sleeps returns how many times Sleep was called.
func (c *Fake) Sleeps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sleeps
}

// OnSleep registers a hook run after every Sleep, e.g. to cancel a context
// at a chosen simulated instant.
func (c *Fake) OnSleep(hook func(d time.Duration)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSleep = hook
}
