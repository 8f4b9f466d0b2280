package trip

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrTimeout matches every *TimeoutExceeded via errors.Is.
	ErrTimeout = errors.New("wait timed out")
	// ErrCancelled matches every *Cancelled via errors.Is.
	ErrCancelled = errors.New("wait cancelled by caller")
)

// TimeoutExceeded is raised by the engine once a wait exhausts its budget.
type TimeoutExceeded struct {
	Description string        // What was awaited
	Message     string        // Caller-supplied message, included verbatim
	Elapsed     time.Duration // Time spent polling
	Attempts    int           // Number of evaluations
	LastNote    string        // Last pending note reported by the condition
	LastErr     error         // Last ignored transient error, kept out of the Unwrap chain
}

func (e *TimeoutExceeded) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "timed out after %s (%d attempts) waiting for %s",
		e.Elapsed.Round(time.Millisecond), e.Attempts, e.Description)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.LastNote != "" {
		fmt.Fprintf(&b, "; last state: %s", e.LastNote)
	}
	if e.LastErr != nil {
		fmt.Fprintf(&b, "; last error: %v", e.LastErr)
	}
	return b.String()
}

// Is makes errors.Is(err, ErrTimeout) hold.
func (e *TimeoutExceeded) Is(target error) bool {
	return target == ErrTimeout
}

// Cancelled is raised when the caller's context ends a wait before it completes.
type Cancelled struct {
	Description string
	Elapsed     time.Duration
	Attempts    int
	Cause       error // context.Canceled or context.DeadlineExceeded
}

func (e *Cancelled) Error() string {
	return fmt.Sprintf("cancelled after %s (%d attempts) waiting for %s: %v",
		e.Elapsed.Round(time.Millisecond), e.Attempts, e.Description, e.Cause)
}

// Is makes errors.Is(err, ErrCancelled) hold.
func (e *Cancelled) Is(target error) bool {
	return target == ErrCancelled
}

func (e *Cancelled) Unwrap() error {
	return e.Cause
}
