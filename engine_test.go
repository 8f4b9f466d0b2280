package focuspuller

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/teranos/focuspuller/clock"
	"github.com/teranos/focuspuller/condition"
	"github.com/teranos/focuspuller/internal/obs"
	"github.com/teranos/focuspuller/query"
	"github.com/teranos/focuspuller/query/querytest"
	"github.com/teranos/focuspuller/trip"
)

var epoch = time.Unix(1700000000, 0)

func newFakeEngine(session query.Session) (*Engine, *clock.Fake) {
	clk := clock.NewFake(epoch)
	return NewEngine(session, WithClock(clk)), clk
}

func TestWaitSpec_Validate(t *testing.T) {
	assert.NoError(t, Within(time.Second).Validate())
	assert.NoError(t, Within(time.Second).Ignoring().Validate())

	tests := []struct {
		name string
		spec WaitSpec
		want string
	}{
		{"zero timeout", WaitSpec{}, "timeout must be positive"},
		{"negative timeout", Within(-time.Second), "timeout must be positive"},
		{"negative interval", Within(time.Second).WithPollInterval(-1), "poll interval"},
		{"fatal kind", Within(time.Second).Ignoring(trip.SessionLost), "session_lost errors cannot be ignored"},
		{"other kind", Within(time.Second).Ignoring(trip.NotFound, trip.Other), "other errors cannot be ignored"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			assert.ErrorIs(t, err, ErrInvalidSpec)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWaitSpec_Defaults(t *testing.T) {
	s := Within(time.Second).normalized()
	assert.Equal(t, DefaultPollInterval, s.PollInterval)
	assert.Equal(t, DefaultIgnoredKinds(), s.IgnoredKinds)

	s = Within(time.Second).Ignoring().normalized()
	assert.NotNil(t, s.IgnoredKinds)
	assert.Empty(t, s.IgnoredKinds)
	assert.False(t, s.ignores(trip.NotFound))
}

func TestAwait_InvalidSpecDoesNotEvaluate(t *testing.T) {
	engine, _ := newFakeEngine(querytest.NewSession(nil))
	calls := 0
	cond := condition.Custom("counted", func(context.Context, query.Session) condition.Outcome {
		calls++
		return condition.Satisfied(true)
	})

	_, err := engine.Await(context.Background(), cond, WaitSpec{})
	assert.ErrorIs(t, err, ErrInvalidSpec)
	assert.Zero(t, calls)
}

func TestAwait_SatisfiedImmediately(t *testing.T) {
	loc := query.CSS("#ready")
	session := querytest.NewSession(nil).Always(loc, querytest.NewElement("ready", ""))
	engine, clk := newFakeEngine(session)

	res, err := engine.Await(context.Background(), condition.Presence(loc), Within(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Zero(t, res.Elapsed)
	assert.Zero(t, clk.Sleeps())
	el, ok := res.Outcome.Element()
	require.True(t, ok)
	assert.Equal(t, "ready", el.ID())
}

func TestAwait_TimeoutCarriesDiagnostics(t *testing.T) {
	loc := query.CSS("#never")
	engine, clk := newFakeEngine(querytest.NewSession(nil))

	spec := Within(time.Second).WithPollInterval(300 * time.Millisecond).WithMessage("search box never rendered")
	res, err := engine.Await(context.Background(), condition.Presence(loc), spec)

	require.ErrorIs(t, err, trip.ErrTimeout)
	var timeout *trip.TimeoutExceeded
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "presence of css=#never", timeout.Description)
	assert.Equal(t, "search box never rendered", timeout.Message)
	assert.Equal(t, time.Second, timeout.Elapsed)
	assert.Equal(t, 5, timeout.Attempts)
	assert.Contains(t, timeout.LastNote, "no element matches")
	assert.Equal(t, 5, res.Attempts)
	assert.Equal(t, time.Second, clk.Since(epoch))
}

func TestAwait_TimeoutShorterThanIntervalEvaluatesOnce(t *testing.T) {
	engine, clk := newFakeEngine(querytest.NewSession(nil))

	_, err := engine.Await(context.Background(), condition.Presence(query.CSS("#x")),
		Within(100*time.Millisecond).WithPollInterval(time.Second))

	var timeout *trip.TimeoutExceeded
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 1, timeout.Attempts)
	assert.Zero(t, clk.Sleeps())
}

func TestAwait_IgnoresTransientErrors(t *testing.T) {
	loc := query.CSS("#flaky")
	stale := trip.New(trip.StaleReference, "re-rendered", nil)
	session := querytest.NewSession(nil).Script(loc,
		querytest.Fail(stale),
		querytest.Fail(stale),
		querytest.Found(querytest.NewElement("flaky", "")),
	)
	engine, _ := newFakeEngine(session)

	res, err := engine.Await(context.Background(), condition.Presence(loc), Within(5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, time.Second, res.Elapsed)
}

func TestAwait_TimeoutKeepsLastIgnoredError(t *testing.T) {
	loc := query.CSS("#flaky")
	stale := trip.New(trip.StaleReference, "re-rendered", nil)
	engine, _ := newFakeEngine(querytest.NewSession(nil).Script(loc, querytest.Fail(stale)))

	_, err := engine.Await(context.Background(), condition.Presence(loc), Within(time.Second))
	assert.ErrorIs(t, err, trip.ErrTimeout)
	assert.NotErrorIs(t, err, stale)
	assert.Contains(t, err.Error(), "re-rendered")

	var timeout *trip.TimeoutExceeded
	require.ErrorAs(t, err, &timeout)
	assert.Same(t, stale, timeout.LastErr)
	assert.False(t, trip.KindOf(err).Transient(), "a timeout must never be retried as a stumble")
}

func TestAwait_FailsFastOnInfrastructureErrors(t *testing.T) {
	for _, kind := range []trip.Kind{trip.SessionLost, trip.InvalidLocator, trip.Other} {
		t.Run(kind.String(), func(t *testing.T) {
			loc := query.CSS("#x")
			cause := trip.New(kind, "broken", nil)
			session := querytest.NewSession(nil).Script(loc, querytest.Absent(), querytest.Fail(cause))
			engine, clk := newFakeEngine(session)

			res, err := engine.Await(context.Background(), condition.Presence(loc), Within(10*time.Second))
			assert.Same(t, cause, err)
			assert.Equal(t, 2, res.Attempts)
			assert.Equal(t, DefaultPollInterval, clk.Since(epoch))
		})
	}
}

func TestAwait_UnclassifiedErrorsAreFatal(t *testing.T) {
	plain := errors.New("driver exploded")
	engine, _ := newFakeEngine(querytest.NewSession(nil))
	cond := condition.Custom("explodes", func(context.Context, query.Session) condition.Outcome {
		return condition.Failed(plain)
	})

	res, err := engine.Await(context.Background(), cond, Within(time.Second))
	assert.Same(t, plain, err)
	assert.Equal(t, 1, res.Attempts)
}

func TestAwait_EmptyIgnoreSetMakesNotFoundFatal(t *testing.T) {
	notFound := trip.New(trip.NotFound, "gone", nil)
	engine, _ := newFakeEngine(querytest.NewSession(nil))
	cond := condition.Custom("missing", func(context.Context, query.Session) condition.Outcome {
		return condition.Failed(notFound)
	})

	_, err := engine.Await(context.Background(), cond, Within(time.Second).Ignoring())
	assert.Same(t, notFound, err)
}

func TestAwait_FatalTripCarriesAttempt(t *testing.T) {
	gone := trip.New(trip.SessionLost, "gone", nil)
	engine, _ := newFakeEngine(querytest.NewSession(nil))
	calls := 0
	cond := condition.Custom("flaky session", func(context.Context, query.Session) condition.Outcome {
		calls++
		if calls < 3 {
			return condition.Pending("not yet")
		}
		return condition.Failed(gone)
	})

	res, err := engine.Await(context.Background(), cond, Within(time.Second))
	assert.Same(t, gone, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, gone.Attempt)
	assert.Contains(t, gone.DetailedString(), "Attempt: 3")
}

func TestAwait_FailedWithoutErrorIsFatal(t *testing.T) {
	engine, _ := newFakeEngine(querytest.NewSession(nil))
	cond := condition.Custom("broken", func(context.Context, query.Session) condition.Outcome {
		return condition.Outcome{State: condition.StateFailed}
	})

	_, err := engine.Await(context.Background(), cond, Within(time.Second))
	require.Error(t, err)
	assert.Equal(t, trip.Other, trip.KindOf(err))
}

func TestAwait_CancelledDuringSleep(t *testing.T) {
	engine, clk := newFakeEngine(querytest.NewSession(nil))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clk.OnSleep(func(time.Duration) {
		if clk.Sleeps() == 2 {
			cancel()
		}
	})

	_, err := engine.Await(ctx, condition.Presence(query.CSS("#x")), Within(10*time.Second))

	require.ErrorIs(t, err, trip.ErrCancelled)
	assert.NotErrorIs(t, err, trip.ErrTimeout)
	assert.ErrorIs(t, err, context.Canceled)
	var cancelled *trip.Cancelled
	require.ErrorAs(t, err, &cancelled)
	assert.Equal(t, 2, cancelled.Attempts)
}

func TestAwait_CancelledBeforeStart(t *testing.T) {
	engine, _ := newFakeEngine(querytest.NewSession(nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Await(ctx, condition.Presence(query.CSS("#x")), Within(time.Second))
	assert.ErrorIs(t, err, trip.ErrCancelled)
}

func TestAwait_ConditionReturningContextError(t *testing.T) {
	engine, _ := newFakeEngine(querytest.NewSession(nil))
	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	cond := condition.Custom("interrupted", func(ctx context.Context, _ query.Session) condition.Outcome {
		cancel()
		return condition.Failed(ctx.Err())
	})

	_, err := engine.Await(ctx, cond, Within(time.Second))
	assert.ErrorIs(t, err, trip.ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAwait_RealClockCancellationWithinOneInterval(t *testing.T) {
	session := querytest.NewSession(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := Await(ctx, session, condition.Presence(query.CSS("#x")),
		Within(30*time.Second).WithPollInterval(2*time.Second))

	assert.ErrorIs(t, err, trip.ErrCancelled)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAwait_RecordsSpanAndMetrics(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	defer otel.SetTracerProvider(prev)

	before := testutil.ToFloat64(obs.AwaitsTotal.WithLabelValues("timeout"))

	engine, _ := newFakeEngine(querytest.NewSession(nil))
	_, err := engine.Await(context.Background(), condition.Presence(query.CSS("#x")), Within(time.Second))
	require.ErrorIs(t, err, trip.ErrTimeout)

	assert.Equal(t, before+1, testutil.ToFloat64(obs.AwaitsTotal.WithLabelValues("timeout")))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "focuspuller.Await", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("focuspuller.result", "timeout"))
	assert.Contains(t, spans[0].Attributes(), attribute.Int("focuspuller.attempts", 3))
}

func TestAwait_LogsTimeouts(t *testing.T) {
	var buf bytes.Buffer
	restore := obs.SetOutputForTests(&buf)
	defer restore()

	engine := NewEngine(querytest.NewSession(nil), WithClock(clock.NewFake(epoch)), WithLogger(obs.Pkg("engine")))
	_, err := engine.Await(context.Background(), condition.Presence(query.CSS("#x")), Within(time.Second))
	require.Error(t, err)

	assert.Contains(t, buf.String(), `"msg":"wait timed out"`)
	assert.Contains(t, buf.String(), `"condition":"presence of css=#x"`)
}

func TestAwait_DefaultLoggerFollowsOutputChanges(t *testing.T) {
	engine := NewEngine(querytest.NewSession(nil), WithClock(clock.NewFake(epoch)))

	var buf bytes.Buffer
	restore := obs.SetOutputForTests(&buf)
	defer restore()

	_, err := engine.Await(context.Background(), condition.Presence(query.CSS("#late")), Within(time.Second))
	require.Error(t, err)
	assert.Contains(t, buf.String(), `"pkg":"engine"`)
	assert.Contains(t, buf.String(), `"condition":"presence of css=#late"`)
}
