// Package querytest provides a scripted in-memory query.Session for tests and
// a contract suite that every driver runs against its own fixtures.
package querytest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/teranos/focuspuller/clock"
	"github.com/teranos/focuspuller/query"
	"github.com/teranos/focuspuller/trip"
)

// Element is a fake element. Fields may be changed between ticks through
// Session.Update.
type Element struct {
	Key     string
	Visible bool
	Enabled  bool
	Selected bool
	Content  string
	Attrs   map[string]string
	Stale   bool
}

// NewElement returns a visible, enabled element.
func NewElement(key, text string) *Element {
	return &Element{Key: key, Visible: true, Enabled: true, Content: text}
}

// Hidden marks the element invisible and returns it.
func (e *Element) Hidden() *Element {
	e.Visible = false
	return e
}

// Disabled marks the element disabled and returns it.
func (e *Element) Disabled() *Element {
	e.Enabled = false
	return e
}

// Checked marks the element selected and returns it.
func (e *Element) Checked() *Element {
	e.Selected = true
	return e
}

// WithAttr sets an attribute and returns the element.
func (e *Element) WithAttr(name, value string) *Element {
	if e.Attrs == nil {
		e.Attrs = make(map[string]string)
	}
	e.Attrs[name] = value
	return e
}

// Step is one scripted FindAll response.
type Step struct {
	Elements []*Element
	Err      error
}

// Found is a Step returning els.
func Found(els ...*Element) Step { return Step{Elements: els} }

// Absent is a Step returning no elements.
func Absent() Step { return Step{} }

// Fail is a Step returning err.
func Fail(err error) Step { return Step{Err: err} }

type timedStep struct {
	at   time.Duration
	step Step
}

type script struct {
	steps []Step
	timed []timedStep
	calls int
}

// Performed records one action executed on the fake session.
type Performed struct {
	ElementID string
	Action    query.Action
}

// Session is a scripted query.Session. Each locator has either a sequence of
// steps consumed one per FindAll (the last one repeats) or a timeline of steps
// keyed by elapsed clock time. Unscripted locators match nothing.
type Session struct {
	mu        sync.Mutex
	clock     clock.Clock
	start     time.Time
	scripts   map[query.Locator]*script
	latency   time.Duration
	performed []Performed
	onPerform func(Performed) error

	title      string
	url        string
	readyState string
	history    []string
}

// NewSession returns an empty fake session timed by c (clock.Real{} if nil).
func NewSession(c clock.Clock) *Session {
	if c == nil {
		c = clock.Real{}
	}
	return &Session{
		clock:      c,
		start:      c.Now(),
		scripts:    make(map[query.Locator]*script),
		readyState: "complete",
	}
}

func (s *Session) scriptFor(loc query.Locator) *script {
	sc, ok := s.scripts[loc]
	if !ok {
		sc = &script{}
		s.scripts[loc] = sc
	}
	return sc
}

// Script appends per-call steps for loc.
func (s *Session) Script(loc query.Locator, steps ...Step) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.scriptFor(loc)
	sc.steps = append(sc.steps, steps...)
	return s
}

// At makes loc answer with step from the given elapsed time onwards.
func (s *Session) At(loc query.Locator, at time.Duration, step Step) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.scriptFor(loc)
	sc.timed = append(sc.timed, timedStep{at: at, step: step})
	sort.SliceStable(sc.timed, func(i, j int) bool { return sc.timed[i].at < sc.timed[j].at })
	return s
}

// Always makes every FindAll on loc return els.
func (s *Session) Always(loc query.Locator, els ...*Element) *Session {
	return s.At(loc, 0, Found(els...))
}

// SetLatency makes each FindAll consume d of clock time.
func (s *Session) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// OnPerform installs a hook run after each recorded action. A non-nil error
// is returned from Perform.
func (s *Session) OnPerform(fn func(Performed) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPerform = fn
}

// Calls returns how many times FindAll was issued for loc.
func (s *Session) Calls(loc query.Locator) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.scripts[loc]; ok {
		return sc.calls
	}
	return 0
}

// Performed returns every action executed so far.
func (s *Session) Performed() []Performed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Performed(nil), s.performed...)
}

// Update runs fn under the session lock so element fields can change safely.
func (s *Session) Update(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

func (s *Session) FindAll(ctx context.Context, loc query.Locator) ([]query.Element, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	latency := s.latency
	s.mu.Unlock()
	if latency > 0 {
		if err := s.clock.Sleep(ctx, latency); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.scriptFor(loc)
	sc.calls++

	step := Absent()
	switch {
	case len(sc.timed) > 0:
		elapsed := s.clock.Since(s.start)
		for _, ts := range sc.timed {
			if ts.at <= elapsed {
				step = ts.step
			}
		}
	case len(sc.steps) > 0:
		idx := min(sc.calls-1, len(sc.steps)-1)
		step = sc.steps[idx]
	}
	if step.Err != nil {
		return nil, step.Err
	}

	out := make([]query.Element, 0, len(step.Elements))
	for _, el := range step.Elements {
		out = append(out, &handle{el: el, session: s})
	}
	return out, nil
}

func (s *Session) Perform(ctx context.Context, el query.Element, action query.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h, ok := el.(*handle)
	if !ok {
		return trip.New(trip.Other, fmt.Sprintf("element %s does not belong to this session", el.ID()), nil)
	}

	s.mu.Lock()
	if h.el.Stale {
		s.mu.Unlock()
		return staleTrip(h.el)
	}
	switch action.Kind {
	case query.ActionClear:
		h.el.Content = ""
	case query.ActionType:
		h.el.Content += action.Text
	}
	p := Performed{ElementID: h.el.Key, Action: action}
	s.performed = append(s.performed, p)
	hook := s.onPerform
	s.mu.Unlock()

	if hook != nil {
		return hook(p)
	}
	return nil
}

// SetDocument sets the page-level state reported through query.Document.
func (s *Session) SetDocument(title, url, readyState string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title, s.url, s.readyState = title, url, readyState
}

func (s *Session) Title(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title, ctx.Err()
}

func (s *Session) URL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url, ctx.Err()
}

func (s *Session) ReadyState(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readyState, ctx.Err()
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, url)
	s.url = url
	return ctx.Err()
}

func (s *Session) Back(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.history); n > 1 {
		s.history = s.history[:n-1]
		s.url = s.history[n-2]
	}
	return ctx.Err()
}

func (s *Session) Forward(ctx context.Context) error {
	return ctx.Err()
}

func (s *Session) Reload(ctx context.Context) error {
	return ctx.Err()
}

// History returns every URL passed to Navigate that has not been popped by Back.
func (s *Session) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.history...)
}

type handle struct {
	el      *Element
	session *Session
}

func staleTrip(el *Element) error {
	return trip.New(trip.StaleReference, fmt.Sprintf("element %s is no longer attached", el.Key),
		trip.Context{"element": el.Key})
}

func (h *handle) ID() string { return h.el.Key }

func (h *handle) read(ctx context.Context, fn func(*Element)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.session.mu.Lock()
	defer h.session.mu.Unlock()
	if h.el.Stale {
		return staleTrip(h.el)
	}
	fn(h.el)
	return nil
}

func (h *handle) IsVisible(ctx context.Context) (bool, error) {
	var v bool
	err := h.read(ctx, func(e *Element) { v = e.Visible })
	return v, err
}

func (h *handle) IsEnabled(ctx context.Context) (bool, error) {
	var v bool
	err := h.read(ctx, func(e *Element) { v = e.Enabled })
	return v, err
}

func (h *handle) IsSelected(ctx context.Context) (bool, error) {
	var v bool
	err := h.read(ctx, func(e *Element) { v = e.Selected })
	return v, err
}

func (h *handle) Text(ctx context.Context) (string, error) {
	var v string
	err := h.read(ctx, func(e *Element) { v = e.Content })
	return v, err
}

func (h *handle) Attribute(ctx context.Context, name string) (string, bool, error) {
	var (
		v  string
		ok bool
	)
	err := h.read(ctx, func(e *Element) { v, ok = e.Attrs[name] })
	return v, ok, err
}

var (
	_ query.Session   = (*Session)(nil)
	_ query.Document  = (*Session)(nil)
	_ query.Navigator = (*Session)(nil)
)
