package focuspuller

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/teranos/focuspuller/trip"
)

// DefaultPollInterval is used when a WaitSpec leaves PollInterval unset.
const DefaultPollInterval = 500 * time.Millisecond

// ErrInvalidSpec is wrapped by every WaitSpec validation error.
var ErrInvalidSpec = errors.New("invalid wait spec")

// DefaultIgnoredKinds are the error kinds a WaitSpec retries through when
// IgnoredKinds is nil.
func DefaultIgnoredKinds() []trip.Kind {
	return []trip.Kind{trip.NotFound, trip.StaleReference}
}

// WaitSpec parameterizes one wait.
type WaitSpec struct {
	// Timeout is the total time budget. It must be positive.
	Timeout time.Duration
	// PollInterval is the pause between evaluations; zero means DefaultPollInterval.
	PollInterval time.Duration
	// IgnoredKinds lists the transient error kinds that keep polling. Nil
	// means DefaultIgnoredKinds; an empty non-nil slice ignores nothing.
	IgnoredKinds []trip.Kind
	// Message is included verbatim in timeout errors.
	Message string
}

// Within returns a WaitSpec with the given timeout and defaults elsewhere.
func Within(timeout time.Duration) WaitSpec {
	return WaitSpec{Timeout: timeout}
}

// WithPollInterval returns a copy of s polling every d.
func (s WaitSpec) WithPollInterval(d time.Duration) WaitSpec {
	s.PollInterval = d
	return s
}

// Ignoring returns a copy of s that retries through exactly the given kinds.
// Ignoring() with no arguments makes every error fatal.
func (s WaitSpec) Ignoring(kinds ...trip.Kind) WaitSpec {
	s.IgnoredKinds = append([]trip.Kind{}, kinds...)
	return s
}

// WithMessage returns a copy of s carrying msg for timeout errors.
func (s WaitSpec) WithMessage(msg string) WaitSpec {
	s.Message = msg
	return s
}

// Validate reports every problem with s in one error wrapping ErrInvalidSpec.
func (s WaitSpec) Validate() error {
	var problems []string
	if s.Timeout <= 0 {
		problems = append(problems, fmt.Sprintf("timeout must be positive, got %s", s.Timeout))
	}
	if s.PollInterval < 0 {
		problems = append(problems, fmt.Sprintf("poll interval must not be negative, got %s", s.PollInterval))
	}
	for _, k := range s.IgnoredKinds {
		if !k.Transient() {
			problems = append(problems, fmt.Sprintf("%s errors cannot be ignored", k))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSpec, strings.Join(problems, "; "))
	}
	return nil
}

// normalized returns s with defaults filled in.
func (s WaitSpec) normalized() WaitSpec {
	if s.PollInterval == 0 {
		s.PollInterval = DefaultPollInterval
	}
	if s.IgnoredKinds == nil {
		s.IgnoredKinds = DefaultIgnoredKinds()
	}
	return s
}

func (s WaitSpec) ignores(kind trip.Kind) bool {
	return slices.Contains(s.IgnoredKinds, kind)
}
