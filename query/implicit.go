package query

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/teranos/focuspuller/clock"
)

// ImplicitRetryInterval is how often an implicit wait re-issues FindAll.
const ImplicitRetryInterval = 100 * time.Millisecond

// ImplicitWait is a per-session implicit wait duration. It is safe for one
// writer and many concurrent readers.
type ImplicitWait struct {
	nanos atomic.Int64
}

// NewImplicitWait returns a policy holding d. A non-positive d disables it.
func NewImplicitWait(d time.Duration) *ImplicitWait {
	w := &ImplicitWait{}
	w.Set(d)
	return w
}

// Set atomically replaces the duration. Set(0) disables implicit waiting.
func (w *ImplicitWait) Set(d time.Duration) {
	if d < 0 {
		d = 0
	}
	w.nanos.Store(int64(d))
}

func (w *ImplicitWait) Duration() time.Duration {
	if w == nil {
		return 0
	}
	return time.Duration(w.nanos.Load())
}

// Active reports whether FindAll calls will block waiting for matches.
func (w *ImplicitWait) Active() bool {
	return w.Duration() > 0
}

var processImplicitWait = &ImplicitWait{}

// DefaultImplicitWait returns the process-wide policy. Only drivers built with
// their UseProcessImplicitWait option consult it; everything else should hold
// its own policy.
func DefaultImplicitWait() *ImplicitWait {
	return processImplicitWait
}

// ImplicitOption configures WithImplicitWait.
type ImplicitOption func(*implicitSession)

// WithImplicitClock sets the clock used for the implicit retry loop.
func WithImplicitClock(c clock.Clock) ImplicitOption {
	return func(s *implicitSession) {
		s.clock = c
	}
}

// WithImplicitInterval overrides ImplicitRetryInterval.
func WithImplicitInterval(d time.Duration) ImplicitOption {
	return func(s *implicitSession) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithImplicitWait wraps session so that FindAll keeps retrying an empty
// result until policy's duration has elapsed. The policy is read on every
// call, so Set takes effect immediately. Errors are returned as soon as they
// occur; only absence is retried.
func WithImplicitWait(session Session, policy *ImplicitWait, opts ...ImplicitOption) Session {
	s := &implicitSession{
		Session:  session,
		policy:   policy,
		clock:    clock.Real{},
		interval: ImplicitRetryInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type implicitSession struct {
	Session
	policy   *ImplicitWait
	clock    clock.Clock
	interval time.Duration
}

func (s *implicitSession) FindAll(ctx context.Context, loc Locator) ([]Element, error) {
	budget := s.policy.Duration()
	start := s.clock.Now()
	for {
		els, err := s.Session.FindAll(ctx, loc)
		if err != nil || len(els) > 0 {
			return els, err
		}
		remaining := budget - s.clock.Since(start)
		if remaining <= 0 {
			return els, nil
		}
		if err := s.clock.Sleep(ctx, min(s.interval, remaining)); err != nil {
			return nil, err
		}
	}
}

// Unwrap returns the wrapped session so optional interfaces can be discovered.
func (s *implicitSession) Unwrap() Session {
	return s.Session
}

// As reports whether session, or any session it wraps, implements T.
func As[T any](session Session) (T, bool) {
	for session != nil {
		if v, ok := session.(T); ok {
			return v, true
		}
		u, ok := session.(interface{ Unwrap() Session })
		if !ok {
			break
		}
		session = u.Unwrap()
	}
	var zero T
	return zero, false
}
