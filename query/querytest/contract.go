package querytest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/focuspuller/query"
	"github.com/teranos/focuspuller/trip"
)

// Fixture names locators a driver's test page is known to satisfy.
type Fixture struct {
	// Present matches at least one visible element whose text contains PresentText.
	Present     query.Locator
	PresentText string
	// Missing matches nothing.
	Missing query.Locator
	// Malformed is rejected by the driver's query mechanism. Leave the zero
	// value to skip that check.
	Malformed query.Locator
}

// TestSessionContract verifies the behaviour every query.Session must share.
func TestSessionContract(t *testing.T, session query.Session, fx Fixture) {
	ctx := context.Background()

	t.Run("absence is an empty result", func(t *testing.T) {
		els, err := session.FindAll(ctx, fx.Missing)
		require.NoError(t, err)
		assert.Empty(t, els)
	})

	t.Run("present elements are readable", func(t *testing.T) {
		els, err := session.FindAll(ctx, fx.Present)
		require.NoError(t, err)
		require.NotEmpty(t, els)

		el := els[0]
		assert.NotEmpty(t, el.ID())

		visible, err := el.IsVisible(ctx)
		require.NoError(t, err)
		assert.True(t, visible)

		text, err := el.Text(ctx)
		require.NoError(t, err)
		assert.Contains(t, text, fx.PresentText)

		_, _, err = el.Attribute(ctx, "data-focuspuller-missing")
		assert.NoError(t, err)

		_, err = el.IsSelected(ctx)
		assert.NoError(t, err)
	})

	t.Run("ids are stable across queries", func(t *testing.T) {
		first, err := session.FindAll(ctx, fx.Present)
		require.NoError(t, err)
		second, err := session.FindAll(ctx, fx.Present)
		require.NoError(t, err)
		require.NotEmpty(t, first)
		require.NotEmpty(t, second)
		assert.Equal(t, first[0].ID(), second[0].ID())
	})

	t.Run("empty selector is an invalid locator", func(t *testing.T) {
		_, err := session.FindAll(ctx, query.Locator{Strategy: fx.Present.Strategy})
		assert.True(t, trip.Is(err, trip.InvalidLocator), "got %v", err)
	})

	if fx.Malformed != (query.Locator{}) {
		t.Run("malformed locator is an invalid locator", func(t *testing.T) {
			_, err := session.FindAll(ctx, fx.Malformed)
			assert.True(t, trip.Is(err, trip.InvalidLocator), "got %v", err)
		})
	}

	t.Run("cancelled context is reported", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := session.FindAll(cctx, fx.Present)
		assert.Error(t, err)
	})
}
