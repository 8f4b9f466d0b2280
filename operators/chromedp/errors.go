package cdpoperator

import (
	"context"
	"errors"
	"strings"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/teranos/focuspuller/trip"
)

var (
	staleMessages = []string{
		"not attached to the dom",
		"execution context was destroyed",
		"cannot find context with specified id",
		"no node with given id",
		"could not find node",
	}
	invalidMessages = []string{
		"is not a valid selector",
		"is not a valid xpath expression",
		"invalid regular expression",
	}
)

// classify maps a chromedp error onto the trip taxonomy. Exceptions thrown by
// page scripts arrive as *runtime.ExceptionDetails.
func classify(ctx, browser context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if browser.Err() != nil || errors.Is(err, chromedp.ErrInvalidContext) || errors.Is(err, chromedp.ErrChannelClosed) {
		return trip.Wrap(trip.SessionLost, op, err)
	}

	msg := err.Error()
	var exc *runtime.ExceptionDetails
	if errors.As(err, &exc) && exc.Exception != nil {
		msg += " " + exc.Exception.Description
	}
	lower := strings.ToLower(msg)
	switch {
	case containsAny(lower, staleMessages):
		return trip.Wrap(trip.StaleReference, op, err)
	case containsAny(lower, invalidMessages):
		return trip.Wrap(trip.InvalidLocator, op, err)
	case strings.Contains(lower, "target closed"), strings.Contains(lower, "websocket"):
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
