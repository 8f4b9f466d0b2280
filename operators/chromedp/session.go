// Package cdpoperator exposes a Chrome tab, driven over the DevTools protocol
// with chromedp, as a query.Session.
//
// chromedp's own query actions wait for nodes to appear. This package avoids
// them: every call evaluates a script against the current DOM once, and the
// focuspuller engine does the polling.
package cdpoperator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/oklog/ulid/v2"

	"github.com/teranos/focuspuller/internal/obs"
	"github.com/teranos/focuspuller/query"
	"github.com/teranos/focuspuller/trip"
)

// Session adapts one chromedp tab.
type Session struct {
	// tab is the chromedp context; cancelling it closes the tab.
	tab       context.Context
	cancels   []context.CancelFunc
	id        string
	logger    *slog.Logger
	implicit  *query.ImplicitWait
	finder    query.Session
	allocOpts []chromedp.ExecAllocatorOption

	mu sync.Mutex
}

// Option configures a Session.
type Option func(*Session)

// WithImplicitWait gives the session its own implicit wait policy. Sessions
// start with implicit waiting disabled.
func WithImplicitWait(policy *query.ImplicitWait) Option {
	return func(s *Session) {
		s.implicit = policy
	}
}

// UseProcessImplicitWait makes the session follow query.DefaultImplicitWait.
func UseProcessImplicitWait() Option {
	return WithImplicitWait(query.DefaultImplicitWait())
}

// WithAllocatorOptions adds Chrome flags for Launch, on top of
// chromedp.DefaultExecAllocatorOptions.
func WithAllocatorOptions(opts ...chromedp.ExecAllocatorOption) Option {
	return func(s *Session) {
		s.allocOpts = append(s.allocOpts, opts...)
	}
}

// New wraps a context created by chromedp.NewContext. The caller keeps
// ownership of the tab.
func New(tab context.Context, opts ...Option) *Session {
	id := ulid.Make().String()
	s := &Session{
		tab:      tab,
		id:       id,
		logger:   obs.Pkg("cdpoperator").With("session_id", id),
		implicit: query.NewImplicitWait(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.finder = query.WithImplicitWait(finder{s}, s.implicit)
	return s
}

// Launch starts a headless Chrome and opens a tab in it. Close shuts both down.
func Launch(parent context.Context, opts ...Option) (*Session, error) {
	var cfg Session
	for _, opt := range opts {
		opt(&cfg)
	}
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:], cfg.allocOpts...)
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocOpts...)
	tab, tabCancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(tab); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("launching chrome: %w", err)
	}

	s := New(tab, opts...)
	s.cancels = []context.CancelFunc{tabCancel, allocCancel}
	return s, nil
}

func (s *Session) SessionID() string { return s.id }

// ImplicitWait returns the session's implicit wait policy.
func (s *Session) ImplicitWait() *query.ImplicitWait { return s.implicit }

// Close closes a tab opened by Launch, and its browser.
func (s *Session) Close() error {
	for _, cancel := range s.cancels {
		cancel()
	}
	return nil
}

// run executes actions on the tab. Cancelling ctx aborts the actions without
// closing the tab.
func (s *Session) run(ctx context.Context, op string, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tab.Err() != nil {
		err := trip.Wrap(trip.SessionLost, "tab is closed", s.tab.Err())
		obs.DriverCalls.WithLabelValues("chromedp", op, err.Kind.String()).Inc()
		return err
	}

	runCtx, cancel := context.WithCancel(s.tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := classify(ctx, s.tab, op, chromedp.Run(runCtx, actions...))
	outcome := "ok"
	if err != nil {
		outcome = trip.KindOf(err).String()
		s.logger.Debug("driver call failed", "op", op, "error", err)
	}
	obs.DriverCalls.WithLabelValues("chromedp", op, outcome).Inc()
	return err
}

// FindAll queries the DOM once, then keeps retrying an empty result for as
// long as the implicit wait policy allows.
func (s *Session) FindAll(ctx context.Context, loc query.Locator) ([]query.Element, error) {
	return s.finder.FindAll(ctx, loc)
}

// finder is the single-attempt query, wrapped by the implicit wait policy.
type finder struct {
	s *Session
}

func (f finder) FindAll(ctx context.Context, loc query.Locator) ([]query.Element, error) {
	return f.s.findAll(ctx, loc)
}

func (f finder) Perform(ctx context.Context, el query.Element, action query.Action) error {
	return f.s.Perform(ctx, el, action)
}

func (s *Session) findAll(ctx context.Context, loc query.Locator) ([]query.Element, error) {
	c, err := compile(loc)
	if err != nil {
		return nil, err
	}

	var ids []string
	if err := s.run(ctx, "find_all", chromedp.Evaluate(findScript(c), &ids)); err != nil {
		return nil, err
	}
	els := make([]query.Element, len(ids))
	for i, id := range ids {
		els[i] = &element{session: s, id: id}
	}
	return els, nil
}

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

const (
	clickPointScript = `(() => {
	el.scrollIntoView({block: "center", inline: "center"});
	const r = el.getBoundingClientRect();
	return {x: r.left + r.width / 2, y: r.top + r.height / 2};
})()`
	focusScript = `(el.focus(), true)`
	clearScript = `(() => {
	if ("value" in el) {
		el.value = "";
		el.dispatchEvent(new Event("input", {bubbles: true}));
		el.dispatchEvent(new Event("change", {bubbles: true}));
	} else if (el.isContentEditable) {
		el.textContent = "";
	}
	return true;
})()`
)

func (s *Session) Perform(ctx context.Context, el query.Element, action query.Action) error {
	target, ok := el.(*element)
	if !ok || target.session != s {
		return trip.New(trip.Other, fmt.Sprintf("element %s does not belong to this session", el.ID()), nil)
	}

	var done bool
	switch action.Kind {
	case query.ActionClick:
		var p point
		return s.run(ctx, "click",
			chromedp.Evaluate(elementScript(target.id, clickPointScript), &p),
			chromedp.ActionFunc(func(ctx context.Context) error {
				return chromedp.MouseClickXY(p.X, p.Y).Do(ctx)
			}),
		)
	case query.ActionType:
		return s.run(ctx, "type",
			chromedp.Evaluate(elementScript(target.id, focusScript), &done),
			chromedp.KeyEvent(action.Text),
		)
	case query.ActionClear:
		return s.run(ctx, "clear", chromedp.Evaluate(elementScript(target.id, clearScript), &done))
	case query.ActionPress:
		key, err := keyFor(action.Text)
		if err != nil {
			return err
		}
		return s.run(ctx, "press",
			chromedp.Evaluate(elementScript(target.id, focusScript), &done),
			chromedp.KeyEvent(key),
		)
	default:
		return trip.New(trip.Other, fmt.Sprintf("unsupported action %s", action), nil)
	}
}

var namedKeys = map[string]string{
	query.KeyEnter:     kb.Enter,
	query.KeyTab:       kb.Tab,
	query.KeyEscape:    kb.Escape,
	query.KeyBackspace: kb.Backspace,
	query.KeyArrowUp:   kb.ArrowUp,
	query.KeyArrowDown: kb.ArrowDown,
	"ArrowLeft":        kb.ArrowLeft,
	"ArrowRight":       kb.ArrowRight,
	"Delete":           kb.Delete,
	"Home":             kb.Home,
	"End":              kb.End,
}

// keyFor maps a key name to the sequence chromedp.KeyEvent understands.
// Single characters are sent as typed.
func keyFor(name string) (string, error) {
	if k, ok := namedKeys[name]; ok {
		return k, nil
	}
	if len([]rune(name)) == 1 {
		return name, nil
	}
	return "", trip.New(trip.Other, fmt.Sprintf("unknown key %q", name), trip.Context{"key": name})
}

func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	err := s.run(ctx, "title", chromedp.Title(&title))
	return title, err
}

func (s *Session) URL(ctx context.Context) (string, error) {
	var url string
	err := s.run(ctx, "url", chromedp.Location(&url))
	return url, err
}

func (s *Session) ReadyState(ctx context.Context) (string, error) {
	var state string
	err := s.run(ctx, "ready_state", chromedp.Evaluate(`document.readyState`, &state))
	return state, err
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, "navigate", chromedp.Navigate(url))
}

func (s *Session) Back(ctx context.Context) error {
	return s.run(ctx, "back", chromedp.NavigateBack())
}

func (s *Session) Forward(ctx context.Context) error {
	return s.run(ctx, "forward", chromedp.NavigateForward())
}

func (s *Session) Reload(ctx context.Context) error {
	return s.run(ctx, "reload", chromedp.Reload())
}

var (
	_ query.Session    = (*Session)(nil)
	_ query.Document   = (*Session)(nil)
	_ query.Navigator  = (*Session)(nil)
	_ query.Identified = (*Session)(nil)
)
