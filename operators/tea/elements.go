package teaoperator

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/teranos/focuspuller/query"
	"github.com/teranos/focuspuller/trip"
)

// Element attributes exposed by the tea session.
const (
	AttrMode  = "mode"
	AttrInput = "input"
	AttrLine  = "line"
	AttrRaw   = "raw"
)

// lines returns the view with styling stripped, one entry per row.
func lines(view string) []string {
	rows := strings.Split(ansi.Strip(view), "\n")
	for i, row := range rows {
		rows[i] = strings.TrimRight(row, "\r ")
	}
	return rows
}

func (s *Session) findAll(ctx context.Context, loc query.Locator) ([]query.Element, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.alive(); err != nil {
		return nil, err
	}

	model, _ := s.snapshot()
	switch loc.Strategy {
	case query.ByText:
		return s.matchLines(model, func(line string) bool {
			return strings.Contains(line, loc.Selector)
		}), nil
	case query.ByRegex:
		re, err := regexp.Compile(loc.Selector)
		if err != nil {
			return nil, trip.Wrap(trip.InvalidLocator, fmt.Sprintf("invalid pattern in %s", loc), err)
		}
		return s.matchLines(model, re.MatchString), nil
	case query.ByCondition:
		if !model.CheckCondition(loc.Selector) {
			return nil, nil
		}
		return []query.Element{&element{session: s, condition: loc.Selector, index: -1}}, nil
	default:
		return nil, trip.New(trip.InvalidLocator,
			fmt.Sprintf("strategy %q is not supported by terminal sessions", loc.Strategy),
			trip.Context{"locator": loc.String()})
	}
}

func (s *Session) matchLines(model Model, match func(string) bool) []query.Element {
	var found []query.Element
	for i, line := range lines(model.View()) {
		if line != "" && match(line) {
			found = append(found, &element{session: s, index: i, line: line})
		}
	}
	return found
}

// element is either a rendered line or a named model condition.
type element struct {
	session   *Session
	index     int
	line      string
	condition string
}

func (e *element) ID() string {
	if e.condition != "" {
		return "condition:" + e.condition
	}
	return "line:" + strconv.Itoa(e.index)
}

// current returns the element's text as rendered now, or a StaleReference
// trip once the view has moved on.
func (e *element) current() (string, error) {
	if err := e.session.alive(); err != nil {
		return "", err
	}
	model := e.session.model()
	if e.condition != "" {
		if !model.CheckCondition(e.condition) {
			return "", trip.New(trip.StaleReference, fmt.Sprintf("condition %q no longer holds", e.condition), nil)
		}
		return ansi.Strip(model.View()), nil
	}
	rows := lines(model.View())
	if e.index >= len(rows) || rows[e.index] != e.line {
		return "", trip.New(trip.StaleReference, fmt.Sprintf("line %d was re-rendered", e.index),
			trip.Context{"was": e.line})
	}
	return e.line, nil
}

func (e *element) IsVisible(ctx context.Context) (bool, error) {
	if _, err := e.current(); err != nil {
		return false, err
	}
	return true, nil
}

func (e *element) IsEnabled(ctx context.Context) (bool, error) {
	return e.IsVisible(ctx)
}

// IsSelected is always false: terminal lines have no selection state.
func (e *element) IsSelected(ctx context.Context) (bool, error) {
	if _, err := e.current(); err != nil {
		return false, err
	}
	return false, nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	return e.current()
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	text, err := e.current()
	if err != nil {
		return "", false, err
	}
	model := e.session.model()
	switch name {
	case AttrMode:
		return model.CurrentMode(), true, nil
	case AttrInput:
		return model.CurrentInput(), true, nil
	case AttrLine:
		if e.condition != "" {
			return "", false, nil
		}
		return strconv.Itoa(e.index), true, nil
	case AttrRaw:
		if e.condition != "" {
			return model.View(), true, nil
		}
		rows := strings.Split(model.View(), "\n")
		if e.index < len(rows) {
			return rows[e.index], true, nil
		}
		return text, true, nil
	default:
		return "", false, nil
	}
}
