// Package teaoperator drives a Bubble Tea program headlessly and exposes it as
// a query.Session, so terminal UIs can be synchronized with the same wait
// engine and conditions as browser pages.
//
// Each line of the rendered view (with ANSI styling stripped) is an element.
// Locators use the text, regex and condition strategies:
//
//	query.Text("Output:")         // lines containing the text
//	query.Regex(`^Mode: \w+$`)    // lines matching the pattern
//	query.Condition("has_output") // the whole view, while Model.CheckCondition holds
//
// Elements expose the program's current input and mode as the "input" and
// "mode" attributes.
package teaoperator

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Model is a Bubble Tea model that can be inspected by a session.
//
// Example implementation:
//
//	func (m MyREPL) CurrentInput() string { return m.input }
//	func (m MyREPL) CurrentMode() string { return m.mode.String() }
//	func (m MyREPL) CheckCondition(condition string) bool {
//		switch condition {
//		case "has_results": return len(m.results) > 0
//		default: return false
//		}
//	}
type Model interface {
	tea.Model
	// CurrentInput returns the current user input text
	CurrentInput() string
	// CurrentMode returns the current application mode as a string
	CurrentMode() string
	// CheckCondition reports whether a named application condition holds
	CheckCondition(condition string) bool
}

// Closeable models have Close called when the session stops.
type Closeable interface {
	Close() error
}

// barrierMsg is sent after every interaction. Messages are handled in order,
// so once the barrier is acknowledged the interaction has been applied.
type barrierMsg struct {
	seq uint64
}

// modelWrapper intercepts updates so the session always sees the latest model.
type modelWrapper struct {
	Model
	session *Session
}

func (w modelWrapper) Update(msg tea.Msg) (next tea.Model, cmd tea.Cmd) {
	if b, ok := msg.(barrierMsg); ok {
		w.session.acknowledge(b.seq)
		return w, nil
	}

	defer func() {
		if r := recover(); r != nil {
			w.session.fail(fmt.Errorf("model panicked handling %T: %v", msg, r))
			next, cmd = w, tea.Quit
		}
	}()

	updated, cmd := w.Model.Update(msg)
	m, ok := updated.(Model)
	if !ok {
		w.session.fail(fmt.Errorf("Update returned %T, which does not implement teaoperator.Model", updated))
		return w, tea.Quit
	}
	w.session.publish(m)
	return modelWrapper{Model: m, session: w.session}, cmd
}
