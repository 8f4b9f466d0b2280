package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AwaitsTotal counts finished waits by result: satisfied, timeout, cancelled, failed, invalid.
	AwaitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "focuspuller",
			Subsystem: "await",
			Name:      "total",
			Help:      "Total number of waits by result",
		},
		[]string{"result"},
	)

	AwaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "focuspuller",
			Subsystem: "await",
			Name:      "duration_seconds",
			Help:      "Time spent polling per wait",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"result"},
	)

	AwaitAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "focuspuller",
			Subsystem: "await",
			Name:      "attempts",
			Help:      "Number of condition evaluations per wait",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	// IgnoredErrors counts transient errors swallowed while polling, by kind.
	IgnoredErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "focuspuller",
			Subsystem: "await",
			Name:      "ignored_errors_total",
			Help:      "Transient errors ignored while polling",
		},
		[]string{"kind"},
	)

	// DriverCalls counts remote calls issued by operators.
	DriverCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "focuspuller",
			Subsystem: "driver",
			Name:      "calls_total",
			Help:      "Remote calls issued by session drivers",
		},
		[]string{"driver", "op", "outcome"},
	)
)
