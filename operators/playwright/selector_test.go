package pwoperator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/focuspuller/query"
	"github.com/teranos/focuspuller/trip"
)

func TestSelector(t *testing.T) {
	tests := []struct {
		loc  query.Locator
		want string
	}{
		{query.CSS("#q"), "css=#q"},
		{query.XPath("//input"), "xpath=//input"},
		{query.ID("q"), `css=[id="q"]`},
		{query.ID(`we"ird`), `css=[id="we\"ird"]`},
		{query.Name("q"), `css=[name="q"]`},
		{query.TagName("li"), "css=li"},
		{query.ClassName("result"), `css=[class~="result"]`},
		{query.LinkText("Next page"), `css=a:text-is("Next page")`},
		{query.PartialLinkText("Next"), `css=a:has-text("Next")`},
		{query.Text("Result for"), `css=:text("Result for")`},
		{query.Regex(`Result for \w+`), `css=:text-matches("Result for \\w+")`},
	}
	for _, tt := range tests {
		t.Run(tt.loc.String(), func(t *testing.T) {
			got, err := selector(tt.loc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelector_Invalid(t *testing.T) {
	for _, loc := range []query.Locator{
		query.CSS("  "),
		query.Regex("(unclosed"),
		query.Condition("has_output"),
		{Strategy: "shadow", Selector: "x"},
	} {
		_, err := selector(loc)
		assert.True(t, trip.Is(err, trip.InvalidLocator), "%s: got %v", loc, err)
	}
}

func TestClassify(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		err  error
		want trip.Kind
	}{
		{errors.New("Error: Element is not attached to the DOM"), trip.StaleReference},
		{errors.New(staleMarker), trip.StaleReference},
		{errors.New("Execution context was destroyed, most likely because of a navigation"), trip.StaleReference},
		{errors.New(`Unexpected token "[" while parsing selector "div[[["`), trip.InvalidLocator},
		{errors.New(`"div[[[" is not a valid selector`), trip.InvalidLocator},
		{fmt.Errorf("click: %w", playwright.ErrTargetClosed), trip.SessionLost},
		{errors.New("Target page, context or browser has been closed"), trip.SessionLost},
		{errors.New("something unexpected"), trip.Other},
	}
	for _, tt := range tests {
		err := classify(ctx, "op", tt.err)
		assert.Equal(t, tt.want, trip.KindOf(err), tt.err.Error())
		assert.ErrorIs(t, err, tt.err)
	}

	assert.NoError(t, classify(ctx, "op", nil))
}

func TestClassify_CallerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := classify(ctx, "op", errors.New("target closed"))
	assert.ErrorIs(t, err, context.Canceled)
}
