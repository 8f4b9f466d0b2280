// Package page provides the page-object layer on top of the wait engine.
//
// A concrete page object embeds *Base and exposes domain operations built from
// Base's primitives:
//
//	type SearchPage struct{ *page.Base }
//
//	func (p SearchPage) Search(ctx context.Context, q string) error {
//		if err := p.TypeText(ctx, query.Name("q"), q); err != nil {
//			return err
//		}
//		return p.ClickAndSettle(ctx, query.CSS("button[type=submit]"),
//			condition.Visibility(query.ID("results")))
//	}
//
// Base never sleeps; every wait goes through the engine with the page's
// default WaitSpec. Errors are returned to the caller unmodified. Each step is
// also written to an action journal and failures to a trip.Handler, purely for
// diagnostics.
package page

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teranos/focuspuller"
	"github.com/teranos/focuspuller/condition"
	"github.com/teranos/focuspuller/internal/obs"
	"github.com/teranos/focuspuller/query"
	"github.com/teranos/focuspuller/trip"
)

// Action records a single step performed by a page object.
type Action struct {
	Timestamp time.Time
	Type      string      // "find", "click", "type", "press", "wait", "navigate", ...
	Details   interface{} // Locator, condition or URL the step worked on
	Result    interface{} // Payload on success, the error on failure
}

// Failed reports whether the step returned an error.
func (a Action) Failed() bool {
	_, ok := a.Result.(error)
	return ok
}

// Base binds one session, one engine and a default WaitSpec.
type Base struct {
	engine *focuspuller.Engine
	spec   focuspuller.WaitSpec
	trips  *trip.Handler
	logger *slog.Logger

	mu      sync.Mutex
	actions []Action
}

// Option configures a Base.
type Option func(*Base)

// WithName names the page in its trip handler and logs.
func WithName(name string) Option {
	return func(b *Base) {
		b.trips = trip.NewHandler(name, trip.DefaultPolicy())
		b.logger = b.logger.With("page", name)
	}
}

// WithPolicy replaces the trip handler policy.
func WithPolicy(name string, policy *trip.Policy) Option {
	return func(b *Base) {
		b.trips = trip.NewHandler(name, policy)
	}
}

// New returns a Base waiting with spec on engine's session.
func New(engine *focuspuller.Engine, spec focuspuller.WaitSpec, opts ...Option) *Base {
	b := &Base{
		engine:  engine,
		spec:    spec,
		trips:   trip.NewHandler("page", trip.DefaultPolicy()),
		logger:  obs.Pkg("page"),
		actions: make([]Action, 0),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Base) Engine() *focuspuller.Engine { return b.engine }
func (b *Base) Session() query.Session { return b.engine.Session() }
func (b *Base) Spec() focuspuller.WaitSpec { return b.currentSpec() }
func (b *Base) Trips() *trip.Handler { return b.trips }

// SetSpec replaces the default WaitSpec used by every operation.
func (b *Base) SetSpec(spec focuspuller.WaitSpec) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spec = spec
}

// Actions returns a copy of the journal.
func (b *Base) Actions() []Action {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Action(nil), b.actions...)
}

func (b *Base) currentSpec() focuspuller.WaitSpec {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spec
}

func (b *Base) record(kind string, details interface{}, result interface{}, err error) {
	entry := Action{Timestamp: time.Now(), Type: kind, Details: details, Result: result}
	if err != nil {
		entry.Result = err
		b.trips.Record(err)
		b.logger.Debug("page step failed", "step", kind, "details", fmt.Sprint(details), "error", err)
	}
	b.mu.Lock()
	b.actions = append(b.actions, entry)
	b.mu.Unlock()
}

// WaitFor awaits cond with the page's default spec.
func (b *Base) WaitFor(ctx context.Context, cond condition.Condition) (focuspuller.PollResult, error) {
	res, err := b.engine.Await(ctx, cond, b.currentSpec())
	b.record("wait", cond.String(), res.Value(), err)
	return res, err
}

func (b *Base) awaitElement(ctx context.Context, cond condition.Condition) (query.Element, error) {
	res, err := b.engine.Await(ctx, cond, b.currentSpec())
	if err != nil {
		return nil, err
	}
	el, ok := res.Outcome.Element()
	if !ok {
		return nil, trip.New(trip.Other, fmt.Sprintf("%s did not yield an element", cond), nil)
	}
	return el, nil
}

// Find waits for the first element matching loc.
func (b *Base) Find(ctx context.Context, loc query.Locator) (query.Element, error) {
	el, err := b.awaitElement(ctx, condition.Presence(loc))
	b.record("find", loc, elementID(el), err)
	return el, err
}

// FindAll waits until loc matches at least one element and returns every match.
func (b *Base) FindAll(ctx context.Context, loc query.Locator) ([]query.Element, error) {
	res, err := b.engine.Await(ctx, condition.PresenceOfAll(loc), b.currentSpec())
	var els []query.Element
	if err == nil {
		els, _ = res.Outcome.Elements()
	}
	b.record("find_all", loc, len(els), err)
	return els, err
}

// Click waits for loc to be clickable and clicks it.
func (b *Base) Click(ctx context.Context, loc query.Locator) error {
	err := b.perform(ctx, condition.Clickable(loc), query.Click())
	b.record("click", loc, nil, err)
	return err
}

// ClickAndSettle clicks loc and then waits for settled, typically the
// condition the click is expected to bring about.
func (b *Base) ClickAndSettle(ctx context.Context, loc query.Locator, settled condition.Condition) error {
	if err := b.Click(ctx, loc); err != nil {
		return err
	}
	_, err := b.WaitFor(ctx, settled)
	return err
}

// TypeText waits for loc to be visible and enabled, clears it and types text.
func (b *Base) TypeText(ctx context.Context, loc query.Locator, text string) error {
	err := b.perform(ctx, condition.Clickable(loc), query.Clear(), query.Type(text))
	b.record("type", loc, text, err)
	return err
}

// Press waits for loc to be visible and sends key to it.
func (b *Base) Press(ctx context.Context, loc query.Locator, key string) error {
	err := b.perform(ctx, condition.Visibility(loc), query.Press(key))
	b.record("press", loc, key, err)
	return err
}

func (b *Base) perform(ctx context.Context, cond condition.Condition, actions ...query.Action) error {
	el, err := b.awaitElement(ctx, cond)
	if err != nil {
		return err
	}
	for _, action := range actions {
		if err := b.Session().Perform(ctx, el, action); err != nil {
			return err
		}
	}
	return nil
}

// Text waits for loc to be visible and returns its text.
func (b *Base) Text(ctx context.Context, loc query.Locator) (string, error) {
	text, err := func() (string, error) {
		el, err := b.awaitElement(ctx, condition.Visibility(loc))
		if err != nil {
			return "", err
		}
		return el.Text(ctx)
	}()
	b.record("text", loc, text, err)
	return text, err
}

// IsVisible reports whether loc becomes visible within the page's timeout.
// Running out of time means false; any other error is returned.
func (b *Base) IsVisible(ctx context.Context, loc query.Locator) (bool, error) {
	_, err := b.awaitElement(ctx, condition.Visibility(loc))
	if errors.Is(err, trip.ErrTimeout) {
		b.record("is_visible", loc, false, nil)
		return false, nil
	}
	b.record("is_visible", loc, err == nil, err)
	return err == nil, err
}

// Navigate loads url and waits for the document to finish loading.
func (b *Base) Navigate(ctx context.Context, url string) error {
	return b.navigate(ctx, "navigate", url, func(nav query.Navigator) error {
		return nav.Navigate(ctx, url)
	})
}

// Back goes back in history and waits for the page to load.
func (b *Base) Back(ctx context.Context) error {
	return b.navigate(ctx, "back", nil, func(nav query.Navigator) error { return nav.Back(ctx) })
}

// Forward goes forward in history and waits for the page to load.
func (b *Base) Forward(ctx context.Context) error {
	return b.navigate(ctx, "forward", nil, func(nav query.Navigator) error { return nav.Forward(ctx) })
}

// Reload reloads the page and waits for it to load.
func (b *Base) Reload(ctx context.Context) error {
	return b.navigate(ctx, "reload", nil, func(nav query.Navigator) error { return nav.Reload(ctx) })
}

func (b *Base) navigate(ctx context.Context, kind string, details interface{}, fn func(query.Navigator) error) error {
	nav, ok := query.As[query.Navigator](b.Session())
	if !ok {
		err := trip.New(trip.Other, fmt.Sprintf("session %T cannot navigate", b.Session()), nil)
		b.record(kind, details, nil, err)
		return err
	}
	err := fn(nav)
	if err == nil {
		_, err = b.engine.Await(ctx, condition.DocumentReady(), b.currentSpec())
	}
	b.record(kind, details, nil, err)
	return err
}

// WaitForPageLoad waits until the document reports it has finished loading.
func (b *Base) WaitForPageLoad(ctx context.Context) error {
	_, err := b.WaitFor(ctx, condition.DocumentReady())
	return err
}

// Title returns the current document title.
func (b *Base) Title(ctx context.Context) (string, error) {
	return b.document("title", func(doc query.Document) (string, error) { return doc.Title(ctx) })
}

// URL returns the current document URL.
func (b *Base) URL(ctx context.Context) (string, error) {
	return b.document("url", func(doc query.Document) (string, error) { return doc.URL(ctx) })
}

func (b *Base) document(kind string, fn func(query.Document) (string, error)) (string, error) {
	doc, ok := query.As[query.Document](b.Session())
	if !ok {
		err := trip.New(trip.Other, fmt.Sprintf("session %T does not expose document state", b.Session()), nil)
		b.record(kind, nil, nil, err)
		return "", err
	}
	v, err := fn(doc)
	b.record(kind, nil, v, err)
	return v, err
}

func elementID(el query.Element) string {
	if el == nil {
		return ""
	}
	return el.ID()
}
