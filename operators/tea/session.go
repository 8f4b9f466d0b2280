package teaoperator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/oklog/ulid/v2"

	"github.com/teranos/focuspuller"
	"github.com/teranos/focuspuller/clock"
	"github.com/teranos/focuspuller/condition"
	"github.com/teranos/focuspuller/internal/obs"
	"github.com/teranos/focuspuller/query"
	"github.com/teranos/focuspuller/trip"
)

// DefaultStartTimeout bounds how long Start waits for the first render.
const DefaultStartTimeout = 5 * time.Second

// Session runs a Bubble Tea program without a terminal and answers element
// queries against its rendered view.
type Session struct {
	id      string
	initial Model
	program *tea.Program
	logger  *slog.Logger
	clock   clock.Clock

	startTimeout time.Duration
	typingDelay  time.Duration
	implicit     *query.ImplicitWait
	finder       query.Session

	// One interaction in flight at a time.
	callMu sync.Mutex

	modelMu sync.RWMutex
	latest  Model
	version uint64
	err     error

	barrierMu sync.Mutex
	acked     uint64
	ackCh     chan struct{}
	barriers  atomic.Uint64

	started  bool
	done     chan struct{}
	runErr   error
	stopOnce sync.Once
	stopErr  error

	updates atomic.Int64
}

// Option configures a Session.
type Option func(*Session)

// WithStartTimeout sets how long Start waits for the program to render.
func WithStartTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.startTimeout = d
	}
}

// WithTypingDelay paces query.Type one rune at a time.
func WithTypingDelay(d time.Duration) Option {
	return func(s *Session) {
		s.typingDelay = d
	}
}

// WithClock sets the clock used for typing delays and implicit waits.
func WithClock(c clock.Clock) Option {
	return func(s *Session) {
		s.clock = c
	}
}

// WithImplicitWait gives the session its own implicit wait policy.
func WithImplicitWait(policy *query.ImplicitWait) Option {
	return func(s *Session) {
		s.implicit = policy
	}
}

// UseProcessImplicitWait makes the session follow query.DefaultImplicitWait.
func UseProcessImplicitWait() Option {
	return WithImplicitWait(query.DefaultImplicitWait())
}

// New prepares a session for model. Call Start before querying it.
func New(model Model, opts ...Option) *Session {
	s := &Session{
		id:           ulid.Make().String(),
		initial:      model,
		latest:       model,
		clock:        clock.Real{},
		startTimeout: DefaultStartTimeout,
		implicit:     query.NewImplicitWait(0),
		ackCh:        make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = obs.Pkg("teaoperator").With("session_id", s.id)
	s.finder = query.WithImplicitWait(finder{s}, s.implicit, query.WithImplicitClock(s.clock))
	return s
}

func (s *Session) SessionID() string { return s.id }

// ImplicitWait returns the session's implicit wait policy.
func (s *Session) ImplicitWait() *query.ImplicitWait { return s.implicit }

// Start runs the program and waits until it has rendered a non-empty view.
// The program lives until Stop is called or ctx ends.
func (s *Session) Start(ctx context.Context) error {
	if s.started {
		return trip.New(trip.Other, "session already started", nil)
	}
	s.started = true

	s.program = tea.NewProgram(modelWrapper{Model: s.initial, session: s},
		tea.WithContext(ctx),
		tea.WithoutRenderer(),
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
		tea.WithoutSignalHandler(),
	)

	go func() {
		defer close(s.done)
		_, err := s.program.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			err = nil
		}
		s.runErr = err
		s.logger.Debug("program exited", "error", err)
	}()

	if err := s.sync(ctx); err != nil {
		return err
	}

	engine := focuspuller.NewEngine(s, focuspuller.WithClock(s.clock), focuspuller.WithLogger(s.logger))
	_, err := engine.Await(ctx, condition.Custom("first render", func(context.Context, query.Session) condition.Outcome {
		if s.View() == "" {
			return condition.Pending("view is empty")
		}
		return condition.Satisfied(true)
	}), focuspuller.Within(s.startTimeout).WithPollInterval(20*time.Millisecond))
	if err != nil {
		return fmt.Errorf("starting program: %w", err)
	}
	s.logger.Debug("program started")
	return nil
}

// Stop quits the program and waits for it to exit. If ctx ends first the
// program is killed.
func (s *Session) Stop(ctx context.Context) error {
	if s.program == nil {
		return nil
	}
	s.stopOnce.Do(func() {
		s.stopErr = s.stop(ctx)
	})
	return s.stopErr
}

func (s *Session) stop(ctx context.Context) error {
	s.program.Quit()
	select {
	case <-s.done:
	case <-ctx.Done():
		s.program.Kill()
		<-s.done
	}

	var errs []error
	if s.runErr != nil {
		errs = append(errs, s.runErr)
	}
	if c, ok := s.model().(Closeable); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing model: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Done is closed once the program has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// View returns the latest rendered view, including ANSI styling.
func (s *Session) View() string {
	return s.model().View()
}

// Mode returns the model's current mode.
func (s *Session) Mode() string {
	return s.model().CurrentMode()
}

// Input returns the model's current input.
func (s *Session) Input() string {
	return s.model().CurrentInput()
}

// Stats reports how many model updates and interaction barriers the session saw.
func (s *Session) Stats() map[string]int64 {
	s.barrierMu.Lock()
	acked := s.acked
	s.barrierMu.Unlock()
	return map[string]int64{
		"updates_processed": s.updates.Load(),
		"barriers_sent":     int64(s.barriers.Load()),
		"barriers_acked":    int64(acked),
	}
}

func (s *Session) model() Model {
	s.modelMu.RLock()
	defer s.modelMu.RUnlock()
	return s.latest
}

func (s *Session) snapshot() (Model, uint64) {
	s.modelMu.RLock()
	defer s.modelMu.RUnlock()
	return s.latest, s.version
}

func (s *Session) publish(m Model) {
	s.modelMu.Lock()
	s.latest = m
	s.version++
	s.modelMu.Unlock()
	s.updates.Add(1)
}

func (s *Session) fail(err error) {
	s.modelMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.modelMu.Unlock()
	s.logger.Error("model failed", "error", err)
}

func (s *Session) acknowledge(seq uint64) {
	s.barrierMu.Lock()
	defer s.barrierMu.Unlock()
	if seq > s.acked {
		s.acked = seq
	}
	close(s.ackCh)
	s.ackCh = make(chan struct{})
}

// failure reports SessionLost if the model panicked or misbehaved.
func (s *Session) failure() error {
	s.modelMu.RLock()
	err := s.err
	s.modelMu.RUnlock()
	if err != nil {
		return trip.Wrap(trip.SessionLost, "program model failed", err)
	}
	return nil
}

// alive reports SessionLost once the program has exited or the model failed.
func (s *Session) alive() error {
	if err := s.failure(); err != nil {
		return err
	}
	if s.program == nil {
		return trip.New(trip.SessionLost, "session not started", nil)
	}
	select {
	case <-s.done:
		return trip.Wrap(trip.SessionLost, "program has exited", s.runErr)
	default:
		return nil
	}
}

// send delivers msgs to the program and waits until it has handled them.
func (s *Session) send(ctx context.Context, msgs ...tea.Msg) error {
	for i, msg := range msgs {
		if i > 0 && s.typingDelay > 0 {
			if err := s.clock.Sleep(ctx, s.typingDelay); err != nil {
				return err
			}
		}
		select {
		case <-s.done:
			return s.alive()
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s.program.Send(msg)
	}
	return s.sync(ctx)
}

// sync sends a barrier and waits for the program to acknowledge it.
func (s *Session) sync(ctx context.Context) error {
	seq := s.barriers.Add(1)
	go s.program.Send(barrierMsg{seq: seq})

	for {
		s.barrierMu.Lock()
		acked, ch := s.acked, s.ackCh
		s.barrierMu.Unlock()
		if acked >= seq {
			return s.failure()
		}
		select {
		case <-ch:
		case <-s.done:
			return s.alive()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// FindAll returns the view lines (or the condition) matching loc.
func (s *Session) FindAll(ctx context.Context, loc query.Locator) ([]query.Element, error) {
	return s.finder.FindAll(ctx, loc)
}

// Perform sends the key or mouse messages for action and waits until the
// program has handled them.
func (s *Session) Perform(ctx context.Context, el query.Element, action query.Action) error {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	err := s.perform(ctx, el, action)
	obs.DriverCalls.WithLabelValues("tea", "perform", outcomeLabel(err)).Inc()
	return err
}

func (s *Session) perform(ctx context.Context, el query.Element, action query.Action) error {
	if err := s.alive(); err != nil {
		return err
	}
	target, ok := el.(*element)
	if !ok || target.session != s {
		return trip.New(trip.Other, fmt.Sprintf("element %s does not belong to this session", el.ID()), nil)
	}

	// Keys go to the program, not to a position, so only clicks need the
	// target line to still be on screen.
	switch action.Kind {
	case query.ActionClick:
		if target.condition != "" {
			return trip.New(trip.Other, fmt.Sprintf("%s has no position to click", target.ID()), nil)
		}
		if _, err := target.current(); err != nil {
			return err
		}
		return s.send(ctx, tea.MouseMsg{
			X:      0,
			Y:      target.index,
			Action: tea.MouseActionPress,
			Button: tea.MouseButtonLeft,
		})
	case query.ActionType:
		return s.send(ctx, runeMsgs(action.Text)...)
	case query.ActionClear:
		n := len([]rune(s.Input()))
		msgs := make([]tea.Msg, n)
		for i := range msgs {
			msgs[i] = tea.KeyMsg{Type: tea.KeyBackspace}
		}
		return s.send(ctx, msgs...)
	case query.ActionPress:
		msg, err := keyMsg(action.Text)
		if err != nil {
			return err
		}
		return s.send(ctx, msg)
	default:
		return trip.New(trip.Other, fmt.Sprintf("unsupported action %s", action), nil)
	}
}

// Type sends text to the program one rune at a time. Keys go to the program
// as a whole, so no element is needed.
func (s *Session) Type(ctx context.Context, text string) error {
	return s.keyboard(ctx, "type", runeMsgs(text)...)
}

// Press sends the named key (see query.Press) to the program.
func (s *Session) Press(ctx context.Context, key string) error {
	msg, err := keyMsg(key)
	if err != nil {
		return err
	}
	return s.keyboard(ctx, "press", msg)
}

func (s *Session) keyboard(ctx context.Context, op string, msgs ...tea.Msg) error {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	err := s.alive()
	if err == nil {
		err = s.send(ctx, msgs...)
	}
	obs.DriverCalls.WithLabelValues("tea", op, outcomeLabel(err)).Inc()
	return err
}

// finder is the single-attempt query, wrapped by the implicit wait policy.
type finder struct {
	s *Session
}

func (f finder) FindAll(ctx context.Context, loc query.Locator) ([]query.Element, error) {
	f.s.callMu.Lock()
	defer f.s.callMu.Unlock()

	els, err := f.s.findAll(ctx, loc)
	obs.DriverCalls.WithLabelValues("tea", "find_all", outcomeLabel(err)).Inc()
	return els, err
}

func (f finder) Perform(ctx context.Context, el query.Element, action query.Action) error {
	return f.s.Perform(ctx, el, action)
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return trip.KindOf(err).String()
}

var (
	_ query.Session    = (*Session)(nil)
	_ query.Identified = (*Session)(nil)
)
