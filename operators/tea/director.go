package teaoperator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teranos/focuspuller"
	"github.com/teranos/focuspuller/condition"
	"github.com/teranos/focuspuller/page"
	"github.com/teranos/focuspuller/query"
	"github.com/teranos/focuspuller/trip"
)

// DirectorConfig configures a Director.
//
// Example usage:
//
//	config := teaoperator.DirectorConfig{
//		Timeout:      2 * time.Second,      // Budget for each wait
//		PollInterval: 5 * time.Millisecond, // How often waits re-check the view
//		CaptureViews: false,                // Skip snapshots for speed
//	}
//
//	director := teaoperator.NewDirectorWithConfig(t, model, config)
type DirectorConfig struct {
	// Timeout bounds every wait and the program start
	Timeout time.Duration
	// PollInterval is how often waits re-evaluate their condition
	PollInterval time.Duration
	// TypingSpeed is the delay between keystrokes (0 = no delay)
	TypingSpeed time.Duration
	// CaptureViews records a Snapshot after every interaction
	CaptureViews bool
}

// DefaultDirectorConfig returns a DirectorConfig with sensible defaults.
//
// The default configuration provides:
//   - 5 second timeout for waits
//   - 10ms poll interval
//   - no typing delay
//   - view snapshot capture enabled
func DefaultDirectorConfig() DirectorConfig {
	return DirectorConfig{
		Timeout:      5 * time.Second,
		PollInterval: 10 * time.Millisecond,
		CaptureViews: true,
	}
}

// Snapshot captures the program's state at a specific moment.
type Snapshot struct {
	Timestamp time.Time
	View      string
	Mode      string
	Input     string
}

// Result contains everything a Director run did.
//
// Example usage:
//
//	result := director.Stop()
//	if !result.Success {
//		t.Logf("run failed after %v: %v", result.Duration, result.Error)
//		t.Log(result.TripReport)
//	}
type Result struct {
	Actions    []page.Action // Every interaction, wait and assertion
	Snapshots  []Snapshot    // View snapshots captured
	Success    bool          // Whether the run completed without errors
	Duration   time.Duration // Time from Start to Stop
	Error      error         // First error that stopped the run
	TripReport string        // Detailed report of recorded trips
}

// Director scripts a terminal program fluently for tests.
//
// Every wait goes through the focuspuller engine, so a Director waits exactly
// as long as the program needs and no longer. Once a step fails, later steps
// are skipped and the failure is reported to the test.
//
// Example:
//
//	result := teaoperator.NewDirector(t, model).
//		Start().
//		Type("world").
//		PressEnter().
//		WaitForMode("result").
//		AssertViewContains("Hello, world").
//		Stop()
type Director struct {
	t       testing.TB
	session *Session
	engine  *focuspuller.Engine
	config  DirectorConfig
	trips   *trip.Handler

	mu        sync.Mutex
	actions   []page.Action
	snapshots []Snapshot
	err       error
	started   time.Time
}

// NewDirector creates a Director with the default configuration. t may be nil,
// in which case failures are only reported through the Result.
func NewDirector(t testing.TB, model Model, opts ...Option) *Director {
	return NewDirectorWithConfig(t, model, DefaultDirectorConfig(), opts...)
}

// NewDirectorWithConfig creates a Director with a custom configuration.
func NewDirectorWithConfig(t testing.TB, model Model, config DirectorConfig, opts ...Option) *Director {
	opts = append([]Option{WithStartTimeout(config.Timeout), WithTypingDelay(config.TypingSpeed)}, opts...)
	session := New(model, opts...)
	return &Director{
		t:       t,
		session: session,
		engine:  focuspuller.NewEngine(session, focuspuller.WithClock(session.clock)),
		config:  config,
		trips:   trip.NewHandler("director", trip.DefaultPolicy()),
	}
}

// WithTimeout sets the budget for subsequent waits.
func (d *Director) WithTimeout(timeout time.Duration) *Director {
	d.config.Timeout = timeout
	return d
}

// Session returns the session the director drives.
func (d *Director) Session() *Session { return d.session }

// Trips returns the director's trip journal.
func (d *Director) Trips() *trip.Handler { return d.trips }

func (d *Director) spec(what string) focuspuller.WaitSpec {
	return focuspuller.Within(d.config.Timeout).
		WithPollInterval(d.config.PollInterval).
		WithMessage(what)
}

// Start runs the program and waits for its first render.
func (d *Director) Start() *Director {
	d.started = time.Now()
	if d.t != nil {
		d.t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), d.config.Timeout)
			defer cancel()
			_ = d.session.Stop(ctx)
		})
	}
	d.step("start", nil, func(ctx context.Context) error {
		// The program outlives this step; Stop ends it.
		return d.session.Start(context.WithoutCancel(ctx))
	})
	return d
}

// Type sends text to the program one rune at a time.
func (d *Director) Type(text string) *Director {
	return d.step("type", text, func(ctx context.Context) error {
		return d.session.Type(ctx, text)
	})
}

// Press sends a named key, as accepted by query.Press.
func (d *Director) Press(key string) *Director {
	return d.step("keypress", key, func(ctx context.Context) error {
		return d.session.Press(ctx, key)
	})
}

func (d *Director) PressEnter() *Director     { return d.Press(query.KeyEnter) }
func (d *Director) PressTab() *Director       { return d.Press(query.KeyTab) }
func (d *Director) PressEscape() *Director    { return d.Press(query.KeyEscape) }
func (d *Director) PressBackspace() *Director { return d.Press(query.KeyBackspace) }
func (d *Director) PressArrowUp() *Director   { return d.Press(query.KeyArrowUp) }
func (d *Director) PressArrowDown() *Director { return d.Press(query.KeyArrowDown) }

// ClearInput deletes the current input with one backspace per character.
func (d *Director) ClearInput() *Director {
	return d.step("clear", nil, func(ctx context.Context) error {
		for range []rune(d.session.Input()) {
			if err := d.session.Press(ctx, query.KeyBackspace); err != nil {
				return err
			}
		}
		return nil
	})
}

// WaitForText waits until some line of the view contains text.
func (d *Director) WaitForText(text string) *Director {
	return d.await(condition.Presence(query.Text(text)))
}

// WaitForCondition waits until the model reports the named condition.
func (d *Director) WaitForCondition(name string) *Director {
	return d.await(condition.Presence(query.Condition(name)))
}

// WaitForMode waits until the model is in the given mode.
func (d *Director) WaitForMode(mode string) *Director {
	return d.await(condition.Custom(fmt.Sprintf("mode %q", mode), func(context.Context, query.Session) condition.Outcome {
		if current := d.session.Mode(); current != mode {
			return condition.Pendingf("mode is %q", current)
		}
		return condition.Satisfied(mode)
	}))
}

func (d *Director) await(cond condition.Condition) *Director {
	return d.step("wait", cond.String(), func(ctx context.Context) error {
		_, err := d.engine.Await(ctx, cond, d.spec(cond.String()))
		return err
	})
}

// AssertViewContains checks the current view (styling stripped) without waiting.
func (d *Director) AssertViewContains(text string) *Director {
	return d.assert("contains="+text, func() error {
		view := strings.Join(lines(d.session.View()), "\n")
		if !strings.Contains(view, text) {
			return assertion("view does not contain "+fmt.Sprintf("%q", text), trip.Context{"expected": text, "actual_view": view})
		}
		return nil
	})
}

// AssertMode checks the model's current mode without waiting.
func (d *Director) AssertMode(mode string) *Director {
	return d.assert("mode="+mode, func() error {
		if actual := d.session.Mode(); actual != mode {
			return assertion(fmt.Sprintf("expected mode %q, got %q", mode, actual), trip.Context{"expected": mode, "actual": actual})
		}
		return nil
	})
}

// AssertInputEquals checks the model's current input without waiting.
func (d *Director) AssertInputEquals(input string) *Director {
	return d.assert("input="+input, func() error {
		if actual := d.session.Input(); actual != input {
			return assertion(fmt.Sprintf("expected input %q, got %q", input, actual), trip.Context{"expected": input, "actual": actual})
		}
		return nil
	})
}

// CheckCondition checks a named model condition without waiting.
func (d *Director) CheckCondition(name string) *Director {
	return d.assert("condition="+name, func() error {
		if !d.session.model().CheckCondition(name) {
			return assertion(fmt.Sprintf("condition %q does not hold", name), trip.Context{"condition": name})
		}
		return nil
	})
}

func assertion(message string, context trip.Context) *trip.Trip {
	return trip.New(trip.Other, message, context).WithSeverity(trip.Error)
}

func (d *Director) assert(details string, check func() error) *Director {
	return d.step("assertion", details, func(context.Context) error {
		return check()
	})
}

// step runs fn unless an earlier step failed, and journals the outcome.
func (d *Director) step(kind string, details interface{}, fn func(ctx context.Context) error) *Director {
	if d.HasFailed() {
		return d
	}
	if d.t != nil {
		d.t.Helper()
	}

	// Waits enforce their own budget; the context only guards against hangs.
	ctx, cancel := context.WithTimeout(context.Background(), 2*d.config.Timeout)
	defer cancel()
	err := fn(ctx)

	action := page.Action{Timestamp: time.Now(), Type: kind, Details: details, Result: "success"}
	if err != nil {
		action.Result = err
	}
	d.mu.Lock()
	d.actions = append(d.actions, action)
	d.mu.Unlock()

	if err != nil {
		d.fail(err)
		return d
	}
	if kind != "assertion" {
		d.capture()
	}
	return d
}

func (d *Director) fail(err error) {
	d.trips.Record(err)
	d.mu.Lock()
	if d.err == nil {
		d.err = err
	}
	d.mu.Unlock()
	d.capture()

	if d.t != nil {
		d.t.Helper()
		var t *trip.Trip
		if errors.As(err, &t) {
			d.t.Error(t.DetailedString())
			return
		}
		d.t.Error(err)
	}
}

func (d *Director) capture() {
	if !d.config.CaptureViews || d.session.program == nil {
		return
	}
	snap := Snapshot{
		Timestamp: time.Now(),
		View:      d.session.View(),
		Mode:      d.session.Mode(),
		Input:     d.session.Input(),
	}
	d.mu.Lock()
	d.snapshots = append(d.snapshots, snap)
	d.mu.Unlock()
}

// HasFailed reports whether a step has failed.
func (d *Director) HasFailed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err != nil
}

// Err returns the error that stopped the run, if any.
func (d *Director) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Actions returns a copy of the journal.
func (d *Director) Actions() []page.Action {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]page.Action(nil), d.actions...)
}

// Stop captures the final state, stops the program and returns the Result.
func (d *Director) Stop() *Result {
	d.capture()

	ctx, cancel := context.WithTimeout(context.Background(), d.config.Timeout)
	defer cancel()
	if err := d.session.Stop(ctx); err != nil && !d.HasFailed() {
		d.fail(err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	result := &Result{
		Actions:   append([]page.Action(nil), d.actions...),
		Snapshots: append([]Snapshot(nil), d.snapshots...),
		Success:   d.err == nil,
		Duration:  time.Since(d.started),
		Error:     d.err,
	}
	if d.err != nil {
		result.TripReport = d.trips.DetailedReport()
	}
	return result
}
