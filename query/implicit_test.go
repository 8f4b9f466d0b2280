package query_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/focuspuller/clock"
	"github.com/teranos/focuspuller/query"
	"github.com/teranos/focuspuller/query/querytest"
	"github.com/teranos/focuspuller/trip"
)

func TestImplicitWait_SetAndDisable(t *testing.T) {
	w := query.NewImplicitWait(2 * time.Second)
	assert.True(t, w.Active())
	assert.Equal(t, 2*time.Second, w.Duration())

	w.Set(0)
	assert.False(t, w.Active())

	w.Set(-time.Second)
	assert.Equal(t, time.Duration(0), w.Duration())

	var nilPolicy *query.ImplicitWait
	assert.False(t, nilPolicy.Active())
}

func TestImplicitWait_ConcurrentReaders(t *testing.T) {
	w := query.NewImplicitWait(time.Second)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				d := w.Duration()
				assert.True(t, d == time.Second || d == 3*time.Second)
			}
		}()
	}
	for j := 0; j < 1000; j++ {
		w.Set(3 * time.Second)
		w.Set(time.Second)
	}
	wg.Wait()
}

func TestWithImplicitWait_RetriesUntilFound(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	loc := query.CSS("#late")
	fake := querytest.NewSession(clk).At(loc, 350*time.Millisecond, querytest.Found(querytest.NewElement("late", "hi")))

	session := query.WithImplicitWait(fake, query.NewImplicitWait(time.Second), query.WithImplicitClock(clk))
	els, err := session.FindAll(context.Background(), loc)

	require.NoError(t, err)
	require.Len(t, els, 1)
	assert.Equal(t, 5, fake.Calls(loc))
	assert.Equal(t, 400*time.Millisecond, clk.Since(time.Unix(0, 0)))
}

func TestWithImplicitWait_ExhaustsBudget(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	loc := query.CSS("#never")
	fake := querytest.NewSession(clk)

	session := query.WithImplicitWait(fake, query.NewImplicitWait(250*time.Millisecond), query.WithImplicitClock(clk))
	els, err := session.FindAll(context.Background(), loc)

	require.NoError(t, err)
	assert.Empty(t, els)
	assert.Equal(t, 250*time.Millisecond, clk.Since(time.Unix(0, 0)))
	assert.Equal(t, 3, clk.Sleeps())
	assert.Equal(t, 4, fake.Calls(loc))
}

func TestWithImplicitWait_DisabledIsSingleQuery(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	loc := query.CSS("#never")
	fake := querytest.NewSession(clk)
	policy := query.NewImplicitWait(time.Second)
	policy.Set(0)

	session := query.WithImplicitWait(fake, policy, query.WithImplicitClock(clk))
	_, err := session.FindAll(context.Background(), loc)

	require.NoError(t, err)
	assert.Equal(t, 1, fake.Calls(loc))
	assert.Zero(t, clk.Sleeps())
}

func TestWithImplicitWait_ErrorsAreNotRetried(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	loc := query.CSS("#gone")
	lost := trip.New(trip.SessionLost, "browser closed", nil)
	fake := querytest.NewSession(clk).Script(loc, querytest.Fail(lost))

	session := query.WithImplicitWait(fake, query.NewImplicitWait(time.Second), query.WithImplicitClock(clk))
	_, err := session.FindAll(context.Background(), loc)

	assert.True(t, errors.Is(err, lost))
	assert.Equal(t, 1, fake.Calls(loc))
}

func TestWithImplicitWait_Cancelled(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	loc := query.CSS("#never")
	ctx, cancel := context.WithCancel(context.Background())
	clk.OnSleep(func(time.Duration) { cancel() })

	session := query.WithImplicitWait(querytest.NewSession(clk), query.NewImplicitWait(time.Second), query.WithImplicitClock(clk))
	_, err := session.FindAll(ctx, loc)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestAs_FindsWrappedInterfaces(t *testing.T) {
	fake := querytest.NewSession(nil)
	wrapped := query.WithImplicitWait(fake, query.NewImplicitWait(0))

	doc, ok := query.As[query.Document](wrapped)
	require.True(t, ok)
	assert.Same(t, fake, doc)

	_, ok = query.As[query.Identified](wrapped)
	assert.False(t, ok)
}

func TestDefaultImplicitWait_IsShared(t *testing.T) {
	assert.Same(t, query.DefaultImplicitWait(), query.DefaultImplicitWait())
}
