package pwoperator

import (
	"context"
	"errors"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/teranos/focuspuller/trip"
)

// staleMarker is thrown by element scripts when the element has left the DOM.
const staleMarker = "focuspuller: element is not attached to the DOM"

var (
	staleMessages = []string{
		"not attached to the dom",
		"element is detached",
		"execution context was destroyed",
		"element handle is disposed",
	}
	invalidMessages = []string{
		"is not a valid selector",
		"unexpected token",
		"unknown engine",
		"invalid regular expression",
		"syntaxerror",
	}
	lostMessages = []string{
		"target closed",
		"has been closed",
		"browser has disconnected",
		"connection closed",
	}
)

// classify maps a Playwright error onto the trip taxonomy.
func classify(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, playwright.ErrTargetClosed) {
		return trip.Wrap(trip.SessionLost, op, err)
	}

	lower := strings.ToLower(err.Error())
	switch {
	case containsAny(lower, staleMessages):
		return trip.Wrap(trip.StaleReference, op, err)
	case containsAny(lower, invalidMessages):
		return trip.Wrap(trip.InvalidLocator, op, err)
	case containsAny(lower, lostMessages):
		return trip.Wrap(trip.SessionLost, op, err)
	default:
		return trip.Wrap(trip.Other, op, err)
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
