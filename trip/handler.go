package trip

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Handler collects the errors a page object ran into, in chronological order.
//
// The handler is a diagnostic journal only: recording an error never changes
// what the caller receives. Stumbles (transient trips) and everything else are
// kept apart so a summary can show how noisy a session was.
type Handler struct {
	component string
	mu        sync.Mutex
	trips     []error
	stumbles  []error
	policy    *Policy
}

// Policy defines when a session should be considered unusable.
type Policy struct {
	// StopOnFall reports ShouldContinue=false once any fall has been recorded
	StopOnFall bool

	// MaxStumbles sets a limit on accumulated stumbles before ShouldContinue turns false
	MaxStumbles int
}

// DefaultPolicy returns a sensible default error handling policy.
func DefaultPolicy() *Policy {
	return &Policy{
		StopOnFall:  true,
		MaxStumbles: 10,
	}
}

// NewHandler creates a new error handler for a specific component.
func NewHandler(component string, policy *Policy) *Handler {
	if policy == nil {
		policy = DefaultPolicy()
	}

	return &Handler{
		component: component,
		trips:     make([]error, 0),
		stumbles:  make([]error, 0),
		policy:    policy,
	}
}

// Record adds an error to the handler's collection.
func (h *Handler) Record(err error) {
	if err == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	var t *Trip
	if errors.As(err, &t) && t.Severity == Stumble {
		h.stumbles = append(h.stumbles, err)
		return
	}
	h.trips = append(h.trips, err)
}

// ShouldContinue determines if the session is still worth using.
func (h *Handler) ShouldContinue() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.policy.StopOnFall {
		for _, err := range h.trips {
			var t *Trip
			if errors.As(err, &t) && t.IsFall() {
				return false
			}
		}
	}

	if h.policy.MaxStumbles > 0 && len(h.stumbles) > h.policy.MaxStumbles {
		return false
	}

	return true
}

// HasTrips returns true if any non-stumble errors have been recorded.
func (h *Handler) HasTrips() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.trips) > 0
}

// Trips returns a copy of all recorded non-stumble errors.
func (h *Handler) Trips() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.trips...)
}

// Stumbles returns a copy of all recorded stumbles.
func (h *Handler) Stumbles() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.stumbles...)
}

// Summary provides a concise overview of all errors and stumbles.
func (h *Handler) Summary() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.trips) == 0 && len(h.stumbles) == 0 {
		return fmt.Sprintf("[%s] No issues", h.component)
	}
	return fmt.Sprintf("[%s] %d trips, %d stumbles", h.component, len(h.trips), len(h.stumbles))
}

// DetailedReport provides a comprehensive report of all issues.
func (h *Handler) DetailedReport() string {
	summary := h.Summary()

	h.mu.Lock()
	defer h.mu.Unlock()

	var report strings.Builder
	report.WriteString(fmt.Sprintf("=== %s Component Report ===\n", h.component))
	report.WriteString(summary + "\n")

	writeSection := func(title string, errs []error) {
		if len(errs) == 0 {
			return
		}
		report.WriteString("\n" + title + ":\n")
		for i, err := range errs {
			var t *Trip
			if errors.As(err, &t) {
				report.WriteString(fmt.Sprintf("%d. %s\n", i+1, t.DetailedString()))
				continue
			}
			report.WriteString(fmt.Sprintf("%d. %v\n", i+1, err))
		}
	}
	writeSection("Trips", h.trips)
	writeSection("Stumbles", h.stumbles)

	return report.String()
}
