package focuspuller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/focuspuller/condition"
	"github.com/teranos/focuspuller/query"
	"github.com/teranos/focuspuller/query/querytest"
	"github.com/teranos/focuspuller/trip"
)

func TestScenario_PresenceAfter600ms(t *testing.T) {
	engine, clk := newFakeEngine(nil)
	loc := query.CSS("#results")
	engine.session = querytest.NewSession(clk).At(loc, 600*time.Millisecond, querytest.Found(querytest.NewElement("results", "")))

	res, err := engine.Await(context.Background(), condition.Presence(loc),
		Within(2*time.Second).WithPollInterval(250*time.Millisecond))

	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Attempts, 2)
	assert.LessOrEqual(t, res.Attempts, 4)
	assert.GreaterOrEqual(t, res.Elapsed, 600*time.Millisecond)
	assert.LessOrEqual(t, res.Elapsed, 850*time.Millisecond)
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, 750*time.Millisecond, res.Elapsed)
}

func TestScenario_CountSequence(t *testing.T) {
	loc := query.CSS(".item")
	a, b, c := querytest.NewElement("a", ""), querytest.NewElement("b", ""), querytest.NewElement("c", "")
	session := querytest.NewSession(nil).Script(loc,
		querytest.Absent(),
		querytest.Found(a),
		querytest.Found(a),
		querytest.Found(a, b, c),
	)
	engine, _ := newFakeEngine(session)

	res, err := engine.Await(context.Background(), condition.CountAtLeast(loc, 3), Within(5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 4, res.Attempts)
	els, ok := res.Outcome.Elements()
	require.True(t, ok)
	assert.Len(t, els, 3)
}

// An active implicit wait nested in an explicit wait compounds latency: the
// explicit timeout only bounds when the last query may start, and that query
// may then block for the whole implicit duration.
func TestScenario_ImplicitWaitCompoundsLatency(t *testing.T) {
	const (
		implicit = 5000 * time.Millisecond
		explicit = 1000 * time.Millisecond
	)
	loc := query.CSS("#slow")

	t.Run("first query blocks", func(t *testing.T) {
		engine, clk := newFakeEngine(nil)
		engine.session = query.WithImplicitWait(querytest.NewSession(clk), query.NewImplicitWait(implicit), query.WithImplicitClock(clk))

		_, err := engine.Await(context.Background(), condition.Presence(loc), Within(explicit))

		var timeout *trip.TimeoutExceeded
		require.ErrorAs(t, err, &timeout)
		assert.Equal(t, 1, timeout.Attempts)
		assert.Equal(t, implicit, timeout.Elapsed)
		assert.Greater(t, timeout.Elapsed, explicit)
	})

	t.Run("worst case", func(t *testing.T) {
		engine, clk := newFakeEngine(nil)
		stale := trip.New(trip.StaleReference, "re-rendered", nil)
		fake := querytest.NewSession(clk).Script(loc, querytest.Fail(stale), querytest.Fail(stale), querytest.Absent())
		engine.session = query.WithImplicitWait(fake, query.NewImplicitWait(implicit), query.WithImplicitClock(clk))

		_, err := engine.Await(context.Background(), condition.Presence(loc), Within(explicit))

		var timeout *trip.TimeoutExceeded
		require.ErrorAs(t, err, &timeout)
		assert.Equal(t, 3, timeout.Attempts)
		assert.Equal(t, implicit+explicit, timeout.Elapsed)
		assert.Greater(t, timeout.Elapsed, implicit)
		assert.LessOrEqual(t, timeout.Elapsed, implicit+explicit)
	})

	t.Run("disabled implicit wait restores the bound", func(t *testing.T) {
		engine, clk := newFakeEngine(nil)
		policy := query.NewImplicitWait(implicit)
		engine.session = query.WithImplicitWait(querytest.NewSession(clk), policy, query.WithImplicitClock(clk))
		policy.Set(0)

		_, err := engine.Await(context.Background(), condition.Presence(loc), Within(explicit))

		var timeout *trip.TimeoutExceeded
		require.ErrorAs(t, err, &timeout)
		assert.Equal(t, explicit, timeout.Elapsed)
	})
}
