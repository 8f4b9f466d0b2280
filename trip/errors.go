// Package trip provides the error taxonomy for focuspuller.
//
// The trip package keeps the stumbling metaphor: a wait that runs into a
// transient absence merely stumbles and keeps going, while a broken session or
// a malformed locator is a fall that ends the wait immediately.
//
// Every error raised by a remote session is a *Trip carrying a Kind. Conditions
// classify errors with KindOf at their boundary, and the wait engine decides
// from the Kind alone whether to retry or to fail fast.
package trip

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies a remote error.
//
// Kinds:
//   - NotFound: the target is not (yet) present
//   - StaleReference: a handle points at state the remote system has replaced
//   - SessionLost: the conversation with the remote system is gone
//   - InvalidLocator: the locator is malformed or resolves ambiguously
//   - Other: anything unclassified; treated as fatal
type Kind int

const (
	// Other is the zero value so that unclassified errors fail fast.
	Other Kind = iota
	NotFound
	StaleReference
	SessionLost
	InvalidLocator
)

var kindNames = map[Kind]string{
	Other:          "other",
	NotFound:       "not_found",
	StaleReference: "stale_reference",
	SessionLost:    "session_lost",
	InvalidLocator: "invalid_locator",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Transient reports whether errors of this kind may be retried.
func (k Kind) Transient() bool {
	return k == NotFound || k == StaleReference
}

// ParseKind maps a kind name back to its Kind.
func ParseKind(name string) (Kind, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for kind, kindName := range kindNames {
		if kindName == normalized {
			return kind, nil
		}
	}
	return Other, fmt.Errorf("unknown error kind %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so kinds can be named in config files.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Severity indicates how serious a trip is and how it should be handled.
type Severity int

const (
	// Stumble indicates a transient issue; the wait keeps polling.
	// Examples: element not rendered yet, element replaced by a re-render
	Stumble Severity = iota

	// Error indicates a failed expectation that is not about the remote system itself.
	// Examples: assertion failures recorded by page objects
	Error

	// Fall indicates infrastructure failure that invalidates the session.
	// Examples: browser closed, malformed locator
	Fall
)

func (s Severity) String() string {
	switch s {
	case Stumble:
		return "stumble"
	case Error:
		return "error"
	case Fall:
		return "fall"
	default:
		return "unknown"
	}
}

// Context provides structured debugging information for trips.
type Context map[string]interface{}

// Trip represents a classified remote error with rich context.
//
// Example usage:
//
//	err := trip.New(trip.NotFound, "no element matches css=#results",
//	    trip.Context{"locator": "css=#results"})
//
//	if trip.KindOf(err).Transient() {
//	    // keep polling
//	}
type Trip struct {
	Kind      Kind      // Classification driving retry decisions
	Message   string    // Human-readable description
	Err       error     // Underlying cause, if any
	Context   Context   // Additional debugging information
	Timestamp time.Time // When the error occurred
	Attempt   int       // Poll attempt that ended the wait; set by the engine on fail-fast errors
	Severity  Severity  // Derived from Kind unless overridden
}

func severityFor(kind Kind) Severity {
	if kind.Transient() {
		return Stumble
	}
	return Fall
}

// New creates a trip of the given kind with the current timestamp.
func New(kind Kind, message string, context Context) *Trip {
	return &Trip{
		Kind:      kind,
		Message:   message,
		Context:   context,
		Timestamp: time.Now(),
		Severity:  severityFor(kind),
	}
}

// Wrap creates a trip of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Trip {
	t := New(kind, message, nil)
	t.Err = cause
	return t
}

// WithAttempt sets the attempt number for this error.
func (t *Trip) WithAttempt(attemptNumber int) *Trip {
	t.Attempt = attemptNumber
	return t
}

// WithSeverity overrides the severity derived from the kind.
func (t *Trip) WithSeverity(severity Severity) *Trip {
	t.Severity = severity
	return t
}

// With adds a context entry and returns the trip.
func (t *Trip) With(key string, value interface{}) *Trip {
	if t.Context == nil {
		t.Context = make(Context)
	}
	t.Context[key] = value
	return t
}

// Error implements the error interface.
func (t *Trip) Error() string {
	if t == nil {
		return ""
	}
	msg := fmt.Sprintf("[%s:%s] %s", t.Kind, t.Severity, t.Message)
	if t.Err != nil {
		msg += ": " + t.Err.Error()
	}
	return msg
}

func (t *Trip) Unwrap() error {
	if t == nil {
		return nil
	}
	return t.Err
}

// IsFall returns true if this error should immediately stop the wait.
func (t *Trip) IsFall() bool {
	return t.Severity == Fall
}

// DetailedString returns a comprehensive error description with context.
func (t *Trip) DetailedString() string {
	var details strings.Builder

	details.WriteString(t.Error())
	details.WriteString(fmt.Sprintf("\n  Time: %s", t.Timestamp.Format("15:04:05.000")))

	if t.Attempt > 0 {
		details.WriteString(fmt.Sprintf("\n  Attempt: %d", t.Attempt))
	}

	if len(t.Context) > 0 {
		details.WriteString("\n  Context:")
		for key, value := range t.Context {
			details.WriteString(fmt.Sprintf("\n    %s: %v", key, value))
		}
	}

	return details.String()
}

// KindOf returns the kind of the first Trip in err's chain.
// Errors that carry no Trip are unclassified and report Other.
func KindOf(err error) Kind {
	var t *Trip
	if errors.As(err, &t) && t != nil {
		return t.Kind
	}
	return Other
}

// Is reports whether err carries a Trip of the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}
