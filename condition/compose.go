package condition

import (
	"context"
	"strings"

	"github.com/teranos/focuspuller/query"
)

type allOf []Condition

// AllOf is satisfied only when every condition is satisfied on the same tick.
// Its payload is the children's payloads in order. The first failing child
// fails the whole condition.
func AllOf(conds ...Condition) Condition {
	return allOf(conds)
}

func (a allOf) Evaluate(ctx context.Context, s query.Session) Outcome {
	values := make([]any, 0, len(a))
	var pending []string
	for _, c := range a {
		out := c.Evaluate(ctx, s)
		switch out.State {
		case StateFailed:
			return out
		case StatePending:
			pending = append(pending, c.String())
		default:
			values = append(values, out.Value)
		}
	}
	if len(pending) > 0 {
		return Pending("waiting on " + strings.Join(pending, ", "))
	}
	return Satisfied(values)
}

func (a allOf) String() string {
	return "all of (" + join(a) + ")"
}

type anyOf []Condition

// AnyOf is satisfied by the first satisfied condition, in argument order. If
// none is satisfied, the first failure is returned, otherwise it is pending.
func AnyOf(conds ...Condition) Condition {
	return anyOf(conds)
}

func (a anyOf) Evaluate(ctx context.Context, s query.Session) Outcome {
	var failed *Outcome
	for _, c := range a {
		out := c.Evaluate(ctx, s)
		switch out.State {
		case StateSatisfied:
			return out
		case StateFailed:
			if failed == nil {
				failed = &out
			}
		}
	}
	if failed != nil {
		return *failed
	}
	return Pending("none of " + join(a) + " holds")
}

func (a anyOf) String() string {
	return "any of (" + join(a) + ")"
}

func join(conds []Condition) string {
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = c.String()
	}
	return strings.Join(parts, "; ")
}
