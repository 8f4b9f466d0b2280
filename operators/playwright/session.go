// Package pwoperator exposes a Playwright page as a query.Session.
//
// Playwright's own auto-waiting is bypassed: every call is a single query of
// the current DOM, and the focuspuller engine does the polling.
package pwoperator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/playwright-community/playwright-go"

	"github.com/teranos/focuspuller/internal/obs"
	"github.com/teranos/focuspuller/query"
	"github.com/teranos/focuspuller/trip"
)

// Browser owns a Playwright driver and one launched Chromium.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
}

// Launch starts Playwright and a headless Chromium.
func Launch() (*Browser, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("starting playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launching chromium: %w", err)
	}
	return &Browser{pw: pw, browser: browser}, nil
}

// NewSession opens a fresh page.
func (b *Browser) NewSession(opts ...Option) (*Session, error) {
	page, err := b.browser.NewPage()
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}
	return New(page, opts...), nil
}

// Close shuts down the browser and the driver.
func (b *Browser) Close() error {
	if err := b.browser.Close(); err != nil {
		_ = b.pw.Stop()
		return err
	}
	return b.pw.Stop()
}

// Session adapts a playwright.Page.
type Session struct {
	page     playwright.Page
	id       string
	logger   *slog.Logger
	implicit *query.ImplicitWait
	finder   query.Session

	// Playwright pages are not safe for concurrent use.
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

// New wraps page.
func New(page playwright.Page, opts ...Option) *Session {
	id := ulid.Make().String()
	s := &Session{
		page:     page,
		id:       id,
		logger:   obs.Pkg("pwoperator").With("session_id", id),
		implicit: query.NewImplicitWait(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.finder = query.WithImplicitWait(finder{s}, s.implicit)
	return s
}

func (s *Session) SessionID() string { return s.id }

// ImplicitWait returns the session's implicit wait policy.
func (s *Session) ImplicitWait() *query.ImplicitWait { return s.implicit }

// Page returns the underlying Playwright page.
func (s *Session) Page() playwright.Page { return s.page }

// Close closes the page.
func (s *Session) Close() error {
	return s.page.Close()
}

// call runs fn under the session lock and classifies its error.
func (s *Session) call(ctx context.Context, op string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.page.IsClosed() {
		err := trip.New(trip.SessionLost, "page is closed", nil)
		obs.DriverCalls.WithLabelValues("playwright", op, err.Kind.String()).Inc()
		return err
	}
	err := classify(ctx, op, fn())
	outcome := "ok"
	if err != nil {
		outcome = trip.KindOf(err).String()
		s.logger.Debug("driver call failed", "op", op, "error", err)
	}
	obs.DriverCalls.WithLabelValues("playwright", op, outcome).Inc()
	return err
}

const idScript = `(el, id) => {
	const ids = (window.__focuspullerIDs ||= new WeakMap());
	if (!ids.has(el)) ids.set(el, id);
	return ids.get(el);
}`

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
	sel, err := selector(loc)
	if err != nil {
		return nil, err
	}

	var found []query.Element
	err = s.call(ctx, "find_all", func() error {
		handles, err := s.page.Locator(sel).ElementHandles()
		if err != nil {
			return err
		}
		found = make([]query.Element, 0, len(handles))
		for _, h := range handles {
			v, err := h.Evaluate(idScript, ulid.Make().String())
			if err != nil {
				return err
			}
			id, _ := v.(string)
			found = append(found, &element{session: s, handle: h, id: id})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (s *Session) Perform(ctx context.Context, el query.Element, action query.Action) error {
	target, ok := el.(*element)
	if !ok || target.session != s {
		return trip.New(trip.Other, fmt.Sprintf("element %s does not belong to this session", el.ID()), nil)
	}
	h := target.handle
	return s.call(ctx, string(action.Kind), func() error {
		switch action.Kind {
		case query.ActionClick:
			return h.Click()
		case query.ActionType:
			return h.Type(action.Text)
		case query.ActionClear:
			return h.Fill("")
		case query.ActionPress:
			return h.Press(action.Text)
		default:
			return trip.New(trip.Other, fmt.Sprintf("unsupported action %s", action), nil)
		}
	})
}

func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	err := s.call(ctx, "title", func() (err error) {
		title, err = s.page.Title()
		return err
	})
	return title, err
}

func (s *Session) URL(ctx context.Context) (string, error) {
	var url string
	err := s.call(ctx, "url", func() error {
		url = s.page.URL()
		return nil
	})
	return url, err
}

func (s *Session) ReadyState(ctx context.Context) (string, error) {
	var state string
	err := s.call(ctx, "ready_state", func() error {
		v, err := s.page.Evaluate("() => document.readyState")
		if err != nil {
			return err
		}
		state, _ = v.(string)
		return nil
	})
	return state, err
}

// Navigate only waits for the navigation to commit. Callers wait for the
// document to load with condition.DocumentReady.
func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.call(ctx, "navigate", func() error {
		_, err := s.page.Goto(url, playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateCommit})
		return err
	})
}

func (s *Session) Back(ctx context.Context) error {
	return s.call(ctx, "back", func() error {
		_, err := s.page.GoBack(playwright.PageGoBackOptions{WaitUntil: playwright.WaitUntilStateCommit})
		return err
	})
}

func (s *Session) Forward(ctx context.Context) error {
	return s.call(ctx, "forward", func() error {
		_, err := s.page.GoForward(playwright.PageGoForwardOptions{WaitUntil: playwright.WaitUntilStateCommit})
		return err
	})
}

func (s *Session) Reload(ctx context.Context) error {
	return s.call(ctx, "reload", func() error {
		_, err := s.page.Reload(playwright.PageReloadOptions{WaitUntil: playwright.WaitUntilStateCommit})
		return err
	})
}

var (
	_ query.Session    = (*Session)(nil)
	_ query.Document   = (*Session)(nil)
	_ query.Navigator  = (*Session)(nil)
	_ query.Identified = (*Session)(nil)
)
