// Package metrics exposes recorder activity as Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Iron-Ham/livecap/internal/capture"
	"github.com/Iron-Ham/livecap/internal/probe"
	"github.com/Iron-Ham/livecap/internal/resolution"
	"github.com/Iron-Ham/livecap/internal/status"
	"github.com/Iron-Ham/livecap/internal/supervisor"
)

const namespace = "livecap"

// Metrics holds the recorder's counters and gauges. It implements
// supervisor.Observer.
type Metrics struct {
	registry          *prometheus.Registry
	segmentsStarted   *prometheus.CounterVec
	restarts          *prometheus.CounterVec
	outcomes          *prometheus.CounterVec
	terminations      *prometheus.CounterVec
	probeFailures     *prometheus.CounterVec
	activeRecordings  prometheus.Gauge
	statusRecords     *prometheus.GaugeVec
	postProcessErrors prometheus.Counter
}

// New creates and registers the recorder metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	segmentsStarted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "segments_started_total",
		Help:      "Total number of capture segments started",
	}, []string{"subject"})
	restarts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resolution_restarts_total",
		Help:      "Total number of capture restarts caused by a confirmed resolution change",
	}, []string{"subject"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "segment_outcomes_total",
		Help:      "Total number of ended segments by outcome",
	}, []string{"outcome"})
	terminations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "capture_terminations_total",
		Help:      "Total number of capture terminations by the stage that ended the process",
	}, []string{"stage"})
	probeFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "probe_failures_total",
		Help:      "Total number of failed resolution probes",
	}, []string{"reason"})
	activeRecordings := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_recordings",
		Help:      "Number of segments currently being captured by this process",
	})
	statusRecords := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "status_records",
		Help:      "Status records in the status directory by freshness",
	}, []string{"class"})
	postProcessErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "postprocess_errors_total",
		Help:      "Total number of segments that failed to remux",
	})

	registry.MustRegister(
		segmentsStarted,
		restarts,
		outcomes,
		terminations,
		probeFailures,
		activeRecordings,
		statusRecords,
		postProcessErrors,
	)

	return &Metrics{
		registry:          registry,
		segmentsStarted:   segmentsStarted,
		restarts:          restarts,
		outcomes:          outcomes,
		terminations:      terminations,
		probeFailures:     probeFailures,
		activeRecordings:  activeRecordings,
		statusRecords:     statusRecords,
		postProcessErrors: postProcessErrors,
	}
}

// SegmentStarted counts a launched segment.
func (m *Metrics) SegmentStarted(subject string) {
	m.segmentsStarted.WithLabelValues(subject).Inc()
	m.activeRecordings.Inc()
}

// SegmentEnded counts a segment outcome. Segments that never launched
// (Error) were not counted as active.
func (m *Metrics) SegmentEnded(subject string, outcome supervisor.Outcome) {
	m.outcomes.WithLabelValues(outcome.String()).Inc()
	if outcome != supervisor.Error {
		m.activeRecordings.Dec()
	}
}

// CaptureTerminated counts the stage that ended a capture.
func (m *Metrics) CaptureTerminated(subject string, stage capture.Stage) {
	m.terminations.WithLabelValues(stage.String()).Inc()
}

// ResolutionChanged counts a restart.
func (m *Metrics) ResolutionChanged(subject string, t resolution.Transition) {
	m.restarts.WithLabelValues(subject).Inc()
}

// ProbeFailed counts a failed probe, labelled by cause.
func (m *Metrics) ProbeFailed(err error) {
	reason := "other"
	switch {
	case errors.Is(err, probe.ErrToolMissing):
		reason = "tool_missing"
	case errors.Is(err, probe.ErrNoReading):
		reason = "no_reading"
	}
	m.probeFailures.WithLabelValues(reason).Inc()
}

// PostProcessFailed counts a failed remux.
func (m *Metrics) PostProcessFailed() {
	m.postProcessErrors.Inc()
}

// SetStatusRecords sets the status record gauges from a scan.
func (m *Metrics) SetStatusRecords(entries []status.Entry) {
	counts := map[status.Class]int{status.Fresh: 0, status.Stale: 0, status.Hidden: 0}
	for _, e := range entries {
		counts[e.Class]++
	}
	for class, n := range counts {
		m.statusRecords.WithLabelValues(class.String()).Set(float64(n))
	}
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
