// Package metrics provides Prometheus collectors for register traffic,
// discovery scans and consolidation builds.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector the pipeline reports to. A nil *Metrics is
// valid and records nothing, so components can take it optionally.
type Metrics struct {
	RegisterRequests *prometheus.CounterVec
	ScanOutcomes     *prometheus.CounterVec
	RevisitQueueSize prometheus.Gauge
	Builds           *prometheus.CounterVec
	BuildDuration    prometheus.Histogram
}

// New creates the collectors and registers them with registerer. Tests pass a
// fresh prometheus.NewRegistry() so repeated construction does not collide.
func New(registerer prometheus.Registerer) *Metrics {
	collectors := &Metrics{
		RegisterRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lagen_register_requests_total",
			Help: "Requests sent to the statute register, by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		ScanOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lagen_scan_identifiers_total",
			Help: "Identifiers visited by the discovery scanner, by outcome",
		}, []string{"outcome"}),
		RevisitQueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lagen_revisit_queue_size",
			Help: "Identifiers waiting for their base act text to catch up",
		}),
		Builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lagen_builds_total",
			Help: "Consolidated document builds, by outcome",
		}, []string{"outcome"}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lagen_build_duration_seconds",
			Help:    "Duration of a single consolidated document build",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}

	if registerer != nil {
		registerer.MustRegister(
			collectors.RegisterRequests,
			collectors.ScanOutcomes,
			collectors.RevisitQueueSize,
			collectors.Builds,
			collectors.BuildDuration,
		)
	}

	return collectors
}

// ObserveRequest counts one register request.
func (m *Metrics) ObserveRequest(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.RegisterRequests.WithLabelValues(endpoint, outcome).Inc()
}

// ObserveScan counts one identifier visited by the scanner.
func (m *Metrics) ObserveScan(outcome string) {
	if m == nil {
		return
	}
	m.ScanOutcomes.WithLabelValues(outcome).Inc()
}

// SetRevisitQueue records the revisit queue length at the end of a run.
func (m *Metrics) SetRevisitQueue(size int) {
	if m == nil {
		return
	}
	m.RevisitQueueSize.Set(float64(size))
}

// ObserveBuild records the outcome and duration of a build.
// Call with time.Now() taken at the start of the build.
func (m *Metrics) ObserveBuild(outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.Builds.WithLabelValues(outcome).Inc()
	m.BuildDuration.Observe(time.Since(start).Seconds())
}
