package focuspuller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/teranos/focuspuller/clock"
	"github.com/teranos/focuspuller/condition"
	"github.com/teranos/focuspuller/internal/obs"
	"github.com/teranos/focuspuller/query"
	"github.com/teranos/focuspuller/trip"
)

// PollResult describes a satisfied wait.
type PollResult struct {
	Outcome  condition.Outcome
	Elapsed  time.Duration
	Attempts int
}

// Value returns the payload of the satisfied condition.
func (r PollResult) Value() any {
	return r.Outcome.Value
}

// Engine polls conditions against one session. An Engine holds no mutable
// state, so concurrent Awaits are safe whenever the session itself is.
type Engine struct {
	session   query.Session
	sessionID string
	clock     clock.Clock
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the real clock, typically with a *clock.Fake in tests.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the logger used for wait diagnostics. Without it each Await
// logs through obs.Pkg("engine"), resolved when the wait starts.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine returns an engine that polls session.
func NewEngine(session query.Session, opts ...Option) *Engine {
	e := &Engine{
		session: session,
		clock:   clock.Real{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if id, ok := query.As[query.Identified](session); ok {
		e.sessionID = id.SessionID()
	}
	return e
}

func (e *Engine) log() *slog.Logger {
	l := e.logger
	if l == nil {
		l = obs.Pkg("engine")
	}
	if e.sessionID != "" {
		l = l.With("session_id", e.sessionID)
	}
	return l
}

// Session returns the session the engine polls.
func (e *Engine) Session() query.Session {
	return e.session
}

// Clock returns the engine's clock.
func (e *Engine) Clock() clock.Clock {
	return e.clock
}

// Await evaluates cond once per poll tick until it is satisfied, fails with a
// kind spec does not ignore, ctx is done, or spec.Timeout passes.
//
// The sleep before each tick is clamped to the time remaining, so the final
// evaluation starts no later than the deadline. A timeout shorter than the
// poll interval evaluates exactly once.
func (e *Engine) Await(ctx context.Context, cond condition.Condition, spec WaitSpec) (PollResult, error) {
	if err := spec.Validate(); err != nil {
		obs.AwaitsTotal.WithLabelValues("invalid").Inc()
		return PollResult{}, err
	}
	spec = spec.normalized()
	desc := cond.String()
	logger := e.log()

	ctx, span := obs.StartSpan(ctx, "focuspuller.Await", trace.WithAttributes(
		attribute.String("focuspuller.condition", desc),
		attribute.Int64("focuspuller.timeout_ms", spec.Timeout.Milliseconds()),
		attribute.Int64("focuspuller.poll_interval_ms", spec.PollInterval.Milliseconds()),
	))
	defer span.End()

	start := e.clock.Now()
	var (
		attempts int
		lastNote string
		lastErr  error
	)

	cancelled := func(cause error) (PollResult, error) {
		err := &trip.Cancelled{
			Description: desc,
			Elapsed:     e.clock.Since(start),
			Attempts:    attempts,
			Cause:       cause,
		}
		e.finish(span, "cancelled", err.Elapsed, attempts)
		logger.Info("wait cancelled", "condition", desc, "attempts", attempts, "elapsed", err.Elapsed)
		return PollResult{Elapsed: err.Elapsed, Attempts: attempts}, err
	}

	for {
		attempts++
		out := cond.Evaluate(ctx, e.session)
		elapsed := e.clock.Since(start)

		switch out.State {
		case condition.StateSatisfied:
			e.finish(span, "satisfied", elapsed, attempts)
			logger.Debug("wait satisfied", "condition", desc, "attempts", attempts, "elapsed", elapsed)
			return PollResult{Outcome: out, Elapsed: elapsed, Attempts: attempts}, nil

		case condition.StateFailed:
			if out.Err == nil {
				out.Err = trip.New(trip.Other, "condition failed without an error", nil)
			}
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(out.Err, ctxErr) {
				return cancelled(ctxErr)
			}
			kind := trip.KindOf(out.Err)
			if !spec.ignores(kind) {
				var t *trip.Trip
				if errors.As(out.Err, &t) {
					t.WithAttempt(attempts)
				}
				obs.RecordError(span, out.Err)
				e.finish(span, "failed", elapsed, attempts)
				logger.Error("wait failed", "condition", desc, "kind", kind.String(),
					"attempts", attempts, "elapsed", elapsed, "error", out.Err)
				return PollResult{Outcome: out, Elapsed: elapsed, Attempts: attempts}, out.Err
			}
			lastErr = out.Err
			obs.IgnoredErrors.WithLabelValues(kind.String()).Inc()
			obs.AddEvent(ctx, "ignored error",
				attribute.Int("attempt", attempts), attribute.String("kind", kind.String()))

		default:
			lastNote = out.Note
		}

		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}

		if elapsed >= spec.Timeout || spec.Timeout < spec.PollInterval {
			err := &trip.TimeoutExceeded{
				Description: desc,
				Message:     spec.Message,
				Elapsed:     elapsed,
				Attempts:    attempts,
				LastNote:    lastNote,
				LastErr:     lastErr,
			}
			obs.RecordError(span, err)
			e.finish(span, "timeout", elapsed, attempts)
			logger.Warn("wait timed out", "condition", desc, "attempts", attempts,
				"elapsed", elapsed, "last_note", lastNote)
			return PollResult{Outcome: out, Elapsed: elapsed, Attempts: attempts}, err
		}

		if err := e.clock.Sleep(ctx, min(spec.PollInterval, spec.Timeout-elapsed)); err != nil {
			return cancelled(err)
		}
	}
}

func (e *Engine) finish(span trace.Span, result string, elapsed time.Duration, attempts int) {
	span.SetAttributes(
		attribute.String("focuspuller.result", result),
		attribute.Int("focuspuller.attempts", attempts),
	)
	obs.AwaitsTotal.WithLabelValues(result).Inc()
	obs.AwaitDuration.WithLabelValues(result).Observe(elapsed.Seconds())
	obs.AwaitAttempts.Observe(float64(attempts))
}

// Await polls cond against session with a throwaway engine.
func Await(ctx context.Context, session query.Session, cond condition.Condition, spec WaitSpec) (PollResult, error) {
	return NewEngine(session).Await(ctx, cond, spec)
}
