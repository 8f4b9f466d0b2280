// Package condition provides the predicates focuspuller polls.
//
// A Condition is evaluated once per poll tick against a fresh view of the
// remote system and answers with an Outcome: still Pending, Satisfied with a
// payload, or Failed with a classified error. Conditions never sleep and never
// remember anything between ticks.
package condition

import (
	"context"
	"fmt"

	"github.com/teranos/focuspuller/query"
)

// State is the variant held by an Outcome.
type State int

const (
	StatePending State = iota
	StateSatisfied
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSatisfied:
		return "satisfied"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of evaluating a Condition once.
type Outcome struct {
	State State
	// Value is the payload of a Satisfied outcome.
	Value any
	// Note explains a Pending outcome. Diagnostic only.
	Note string
	// Err is set on Failed outcomes.
	Err error
}

// Pending reports that the condition does not hold yet.
func Pending(note string) Outcome {
	return Outcome{State: StatePending, Note: note}
}

// Pendingf is Pending with a formatted note.
func Pendingf(format string, args ...any) Outcome {
	return Pending(fmt.Sprintf(format, args...))
}

// Satisfied reports that the condition holds, carrying value to the caller.
func Satisfied(value any) Outcome {
	return Outcome{State: StateSatisfied, Value: value}
}

// Failed reports that evaluation raised err.
func Failed(err error) Outcome {
	return Outcome{State: StateFailed, Err: err}
}

func (o Outcome) IsPending() bool   { return o.State == StatePending }
func (o Outcome) IsSatisfied() bool { return o.State == StateSatisfied }
func (o Outcome) IsFailed() bool    { return o.State == StateFailed }

func (o Outcome) String() string {
	switch o.State {
	case StateSatisfied:
		return fmt.Sprintf("satisfied(%v)", o.Value)
	case StateFailed:
		return fmt.Sprintf("failed(%v)", o.Err)
	default:
		if o.Note == "" {
			return "pending"
		}
		return "pending: " + o.Note
	}
}

// Element returns the payload as a single element, if it is one.
func (o Outcome) Element() (query.Element, bool) {
	el, ok := o.Value.(query.Element)
	return el, ok
}

// Elements returns the payload as an element list, if it is one.
func (o Outcome) Elements() ([]query.Element, bool) {
	els, ok := o.Value.([]query.Element)
	return els, ok
}

// Condition is a side-effect-free predicate over remote state.
type Condition interface {
	Evaluate(ctx context.Context, session query.Session) Outcome
	// String describes what is awaited; it appears in timeout errors.
	String() string
}

// Func adapts a function to Condition.
type Func struct {
	Description string
	Fn          func(ctx context.Context, session query.Session) Outcome
}

func (f Func) Evaluate(ctx context.Context, session query.Session) Outcome {
	return f.Fn(ctx, session)
}

func (f Func) String() string { return f.Description }

// Custom wraps fn as a Condition. fn is called once per tick and must not sleep.
func Custom(description string, fn func(ctx context.Context, session query.Session) Outcome) Condition {
	return Func{Description: description, Fn: fn}
}
