// Package metrics exposes prepdash Prometheus metrics.
//
// All metrics are registered with the default registry on package load and
// served by the HTTP API at /metrics.
//
// # Basic Usage
//
//	timer := metrics.NewTimer("missing")
//	result, err := step.Apply(ctx, ds)
//	timer.ObserveStep(err)
//
//	metrics.SessionsActive.Inc()
//	defer metrics.SessionsActive.Dec()
//
// # Metric Types
//
// Counter: monotonically increasing values (steps applied, uploads, exports)
// Gauge: values that go up and down (live sessions)
// Histogram: distributions (step latency)
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

var (
	// StepsTotal counts applied transform steps.
	// Labels: step (missing, convert, ...), status (success/failure)
	//
	// Example:
	//	metrics.StepsTotal.WithLabelValues("normalize", metrics.StatusSuccess).Inc()
	StepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prepdash_steps_total",
			Help: "Total number of transform steps applied",
		},
		[]string{"step", "status"},
	)

	// StepDuration tracks how long steps take, from reading the working
	// dataset to committing the result.
	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "prepdash_step_duration_seconds",
			Help: "Transform step latency in seconds",
			Buckets: []float64{
				0.001, // 1ms - small frames
				0.01,  // 10ms
				0.05,
				0.1, // 100ms - typical dashboard frames
				0.5,
				1,
				5, // 5s - large frames or remote stores
				30,
			},
		},
		[]string{"step"},
	)

	// SessionsActive tracks live dashboard sessions
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "prepdash_sessions_active",
			Help: "Number of live sessions",
		},
	)

	// UploadsTotal counts uploads by status
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prepdash_uploads_total",
			Help: "Total number of dataset uploads",
		},
		[]string{"status"},
	)

	// ExportsTotal counts exports by format and status
	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prepdash_exports_total",
			Help: "Total number of dataset exports",
		},
		[]string{"format", "status"},
	)

	// DatasetRows tracks the row count of the last committed working dataset
	DatasetRows = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prepdash_dataset_rows",
			Help:    "Row counts of committed working datasets",
			Buckets: prometheus.ExponentialBuckets(10, 10, 7),
		},
	)
)

// Status maps an error to a status label.
func Status(err error) string {
	if err != nil {
		return StatusFailure
	}
	return StatusSuccess
}

// Timer provides a simple timing mechanism for measuring operation durations.
// It captures the start time on creation and calculates elapsed time on stop.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
// The name is the step label used by ObserveStep.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Stop returns the elapsed duration since creation. It can be called more
// than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ObserveStep records the elapsed time and outcome of a step.
func (t *Timer) ObserveStep(err error) time.Duration {
	d := t.Stop()
	StepDuration.WithLabelValues(t.name).Observe(d.Seconds())
	StepsTotal.WithLabelValues(t.name, Status(err)).Inc()
	return d
}
