// Package query defines the contract between focuspuller and the remote system
// it synchronizes with.
//
// A Session issues element queries and actions; operators (see the operators
// directory) implement it for terminal programs, Playwright pages and Chrome
// DevTools targets. Absence is never an error: FindAll returns an empty slice.
// Every fallible call returns a *trip.Trip whose Kind tells the wait engine
// whether to retry.
//
// Implicit waits: WithImplicitWait makes FindAll itself retry for up to a fixed
// duration before reporting absence. Combining an active implicit wait with
// explicit waits compounds latency: every FindAll issued by a condition may
// block for up to the implicit duration, nested inside an outer poll of up to
// the explicit timeout, so a single wait can take implicit+timeout. Disable the
// implicit wait (Set(0)) before relying on explicit waits.
package query

import (
	"context"
	"fmt"
)

// Element is a handle to one matched target. Handles may go stale when the
// remote system re-renders; accessors then fail with trip.StaleReference.
type Element interface {
	// ID distinguishes elements; two handles to the same target share an ID.
	ID() string
	IsVisible(ctx context.Context) (bool, error)
	IsEnabled(ctx context.Context) (bool, error)
	// IsSelected reports whether a checkbox, radio button or option is selected.
	IsSelected(ctx context.Context) (bool, error)
	Text(ctx context.Context) (string, error)
	// Attribute returns the attribute value and whether it is present.
	Attribute(ctx context.Context, name string) (string, bool, error)
}

// Session is one logical conversation with the remote system. At most one
// call is in flight per session.
type Session interface {
	FindAll(ctx context.Context, loc Locator) ([]Element, error)
	Perform(ctx context.Context, el Element, action Action) error
}

// Document is implemented by sessions that expose page-level state.
type Document interface {
	Title(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	// ReadyState reports document.readyState ("loading", "interactive", "complete").
	ReadyState(ctx context.Context) (string, error)
}

// Navigator is implemented by sessions that can move between pages.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
	Back(ctx context.Context) error
	Forward(ctx context.Context) error
	Reload(ctx context.Context) error
}

// Identified is implemented by sessions carrying a correlation ID for logs.
type Identified interface {
	SessionID() string
}

// ActionKind enumerates the interactions a Session can perform.
type ActionKind string

const (
	ActionClick ActionKind = "click"
	ActionType  ActionKind = "type"
	ActionClear ActionKind = "clear"
	ActionPress ActionKind = "press"
)

// Action is an interaction performed on an element.
type Action struct {
	Kind ActionKind
	// Text is the text to type for ActionType or the key name for ActionPress.
	Text string
}

func Click() Action { return Action{Kind: ActionClick} }
func Type(text string) Action { return Action{Kind: ActionType, Text: text} }
func Clear() Action { return Action{Kind: ActionClear} }
func Press(key string) Action { return Action{Kind: ActionPress, Text: key} }

func (a Action) String() string {
	if a.Text == "" {
		return string(a.Kind)
	}
	return fmt.Sprintf("%s(%q)", a.Kind, a.Text)
}

// Common key names understood by every operator's ActionPress.
const (
	KeyEnter     = "Enter"
	KeyTab       = "Tab"
	KeyEscape    = "Escape"
	KeyBackspace = "Backspace"
	KeyArrowUp   = "ArrowUp"
	KeyArrowDown = "ArrowDown"
)
