package condition

import (
	"context"
	"fmt"
	"strings"

	"github.com/teranos/focuspuller/query"
	"github.com/teranos/focuspuller/trip"
)

// Presence is satisfied by the first element matching loc.
func Presence(loc query.Locator) Condition {
	return Custom("presence of "+loc.String(), func(ctx context.Context, s query.Session) Outcome {
		els, err := s.FindAll(ctx, loc)
		if err != nil {
			return Failed(err)
		}
		if len(els) == 0 {
			return Pendingf("no element matches %s", loc)
		}
		return Satisfied(els[0])
	})
}

// PresenceOfAll is satisfied by every element matching loc once there is at least one.
func PresenceOfAll(loc query.Locator) Condition {
	return Custom("presence of all "+loc.String(), func(ctx context.Context, s query.Session) Outcome {
		els, err := s.FindAll(ctx, loc)
		if err != nil {
			return Failed(err)
		}
		if len(els) == 0 {
			return Pendingf("no element matches %s", loc)
		}
		return Satisfied(els)
	})
}

// Visibility is satisfied by the first visible element matching loc.
func Visibility(loc query.Locator) Condition {
	return Custom("visibility of "+loc.String(), func(ctx context.Context, s query.Session) Outcome {
		els, err := s.FindAll(ctx, loc)
		if err != nil {
			return Failed(err)
		}
		if len(els) == 0 {
			return Pendingf("no element matches %s", loc)
		}
		for _, el := range els {
			visible, err := el.IsVisible(ctx)
			if err != nil {
				return Failed(err)
			}
			if visible {
				return Satisfied(el)
			}
		}
		return Pendingf("%d elements match %s, none visible", len(els), loc)
	})
}

// Invisibility is satisfied once no element matching loc is visible. Elements
// that go stale while being checked count as gone.
func Invisibility(loc query.Locator) Condition {
	return Custom("invisibility of "+loc.String(), func(ctx context.Context, s query.Session) Outcome {
		els, err := s.FindAll(ctx, loc)
		if err != nil {
			return Failed(err)
		}
		for _, el := range els {
			visible, err := el.IsVisible(ctx)
			if trip.Is(err, trip.StaleReference) {
				continue
			}
			if err != nil {
				return Failed(err)
			}
			if visible {
				return Pendingf("%s is still visible", el.ID())
			}
		}
		return Satisfied(true)
	})
}

// Clickable is satisfied by the first element matching loc that is both
// visible and enabled.
func Clickable(loc query.Locator) Condition {
	return Custom("clickability of "+loc.String(), func(ctx context.Context, s query.Session) Outcome {
		els, err := s.FindAll(ctx, loc)
		if err != nil {
			return Failed(err)
		}
		if len(els) == 0 {
			return Pendingf("no element matches %s", loc)
		}
		for _, el := range els {
			visible, err := el.IsVisible(ctx)
			if err != nil {
				return Failed(err)
			}
			if !visible {
				continue
			}
			enabled, err := el.IsEnabled(ctx)
			if err != nil {
				return Failed(err)
			}
			if enabled {
				return Satisfied(el)
			}
		}
		return Pendingf("no visible, enabled element matches %s", loc)
	})
}

// Selected is satisfied by the first element matching loc that is selected.
func Selected(loc query.Locator) Condition {
	return SelectionState(loc, true)
}

// SelectionState is satisfied by the first element matching loc whose
// selection state equals selected.
func SelectionState(loc query.Locator, selected bool) Condition {
	desc := "selection of " + loc.String()
	if !selected {
		desc = "deselection of " + loc.String()
	}
	return Custom(desc, func(ctx context.Context, s query.Session) Outcome {
		els, err := s.FindAll(ctx, loc)
		if err != nil {
			return Failed(err)
		}
		if len(els) == 0 {
			return Pendingf("no element matches %s", loc)
		}
		for _, el := range els {
			got, err := el.IsSelected(ctx)
			if err != nil {
				return Failed(err)
			}
			if got == selected {
				return Satisfied(el)
			}
		}
		return Pendingf("no element matching %s has selected=%t", loc, selected)
	})
}

// TextContains is satisfied when the single element matching loc has text
// containing substring. A locator resolving to several distinct elements is
// ambiguous and fails with trip.InvalidLocator.
func TextContains(loc query.Locator, substring string) Condition {
	desc := fmt.Sprintf("text %q in %s", substring, loc)
	return Custom(desc, func(ctx context.Context, s query.Session) Outcome {
		els, err := s.FindAll(ctx, loc)
		if err != nil {
			return Failed(err)
		}
		if len(els) == 0 {
			return Pendingf("no element matches %s", loc)
		}
		if n := distinctIDs(els); n > 1 {
			return Failed(trip.New(trip.InvalidLocator,
				fmt.Sprintf("%s is ambiguous: %d elements match", loc, n),
				trip.Context{"locator": loc.String(), "matches": n}))
		}
		text, err := els[0].Text(ctx)
		if err != nil {
			return Failed(err)
		}
		if !strings.Contains(text, substring) {
			return Pendingf("text is %q", truncate(text, 80))
		}
		return Satisfied(els[0])
	})
}

// CountAtLeast is satisfied by the matches of loc once there are at least n.
func CountAtLeast(loc query.Locator, n int) Condition {
	desc := fmt.Sprintf("at least %d of %s", n, loc)
	return Custom(desc, func(ctx context.Context, s query.Session) Outcome {
		els, err := s.FindAll(ctx, loc)
		if err != nil {
			return Failed(err)
		}
		if len(els) < n {
			return Pendingf("%d of %d present", len(els), n)
		}
		return Satisfied(els)
	})
}

// AttributeEquals is satisfied by the first element matching loc whose
// attribute name is present and equal to value.
func AttributeEquals(loc query.Locator, name, value string) Condition {
	desc := fmt.Sprintf("%s[%s=%q]", loc, name, value)
	return Custom(desc, func(ctx context.Context, s query.Session) Outcome {
		els, err := s.FindAll(ctx, loc)
		if err != nil {
			return Failed(err)
		}
		if len(els) == 0 {
			return Pendingf("no element matches %s", loc)
		}
		last := ""
		for _, el := range els {
			got, ok, err := el.Attribute(ctx, name)
			if err != nil {
				return Failed(err)
			}
			if ok && got == value {
				return Satisfied(el)
			}
			if ok {
				last = got
			}
		}
		return Pendingf("%s is %q", name, last)
	})
}

func distinctIDs(els []query.Element) int {
	seen := make(map[string]struct{}, len(els))
	for _, el := range els {
		seen[el.ID()] = struct{}{}
	}
	return len(seen)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
