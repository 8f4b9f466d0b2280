package teaoperator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/teranos/focuspuller/query"
	"github.com/teranos/focuspuller/trip"
)

var namedKeys = map[string]tea.KeyType{
	strings.ToLower(query.KeyEnter):     tea.KeyEnter,
	strings.ToLower(query.KeyTab):       tea.KeyTab,
	strings.ToLower(query.KeyEscape):    tea.KeyEsc,
	strings.ToLower(query.KeyBackspace): tea.KeyBackspace,
	strings.ToLower(query.KeyArrowUp):   tea.KeyUp,
	strings.ToLower(query.KeyArrowDown): tea.KeyDown,
	"arrowleft":                         tea.KeyLeft,
	"arrowright":                        tea.KeyRight,
	"space":                             tea.KeySpace,
	"delete":                            tea.KeyDelete,
	"home":                              tea.KeyHome,
	"end":                               tea.KeyEnd,
	"ctrl+c":                            tea.KeyCtrlC,
}

// keyMsg translates a key name from query.Press into a Bubble Tea key message.
func keyMsg(name string) (tea.KeyMsg, error) {
	if t, ok := namedKeys[strings.ToLower(name)]; ok {
		return tea.KeyMsg{Type: t}, nil
	}
	if utf8.RuneCountInString(name) == 1 {
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(name)}, nil
	}
	return tea.KeyMsg{}, trip.New(trip.Other, fmt.Sprintf("unknown key %q", name), trip.Context{"key": name})
}

// runeMsgs returns one key message per rune of text.
func runeMsgs(text string) []tea.Msg {
	msgs := make([]tea.Msg, 0, utf8.RuneCountInString(text))
	for _, r := range text {
		msgs = append(msgs, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return msgs
}
