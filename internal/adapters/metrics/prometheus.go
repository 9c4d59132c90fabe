// Package metrics exports pipeline counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bft-labs/satlink/internal/domain"
	"github.com/bft-labs/satlink/internal/ports"
)

const namespace = "satlink"

// PrometheusRecorder implements ports.Recorder on a private registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	framesProcessed *prometheus.CounterVec
	rawWrites       *prometheus.CounterVec
	drainCycles     *prometheus.CounterVec
	drainFinalized  *prometheus.HistogramVec
	jobRuns         *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	jobLastSuccess  *prometheus.GaugeVec
}

var _ ports.Recorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder registers all satlink collectors plus the Go and
// process collectors on a fresh registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	r := &PrometheusRecorder{
		registry: prometheus.NewRegistry(),
		framesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_processed_total",
			Help:      "Frames finalized or left pending, by source, link and outcome.",
		}, []string{"source", "link", "outcome"}),
		rawWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "raw_writes_total",
			Help:      "Raw bucket writes by satellite, link and result (stored or duplicate).",
		}, []string{"satellite", "link", "result"}),
		drainCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drain_cycles_total",
			Help:      "Processing cycles run, by source and link.",
		}, []string{"source", "link"}),
		drainFinalized: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "drain_cycle_finalized_frames",
			Help:      "Frames finalized per processing cycle.",
			Buckets:   []float64{0, 1, 5, 10, 50, 100, 500},
		}, []string{"source", "link"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job executions by kind and result.",
		}, []string{"kind", "result"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Scheduled job execution time.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"kind"}),
		jobLastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run per job kind.",
		}, []string{"kind"}),
	}

	r.registry.MustRegister(
		r.framesProcessed,
		r.rawWrites,
		r.drainCycles,
		r.drainFinalized,
		r.jobRuns,
		r.jobDuration,
		r.jobLastSuccess,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// FrameProcessed implements ports.Recorder.
func (r *PrometheusRecorder) FrameProcessed(source string, link domain.Link, outcome ports.Outcome) {
	r.framesProcessed.WithLabelValues(source, string(link), string(outcome)).Inc()
}

// RawWrite implements ports.Recorder.
func (r *PrometheusRecorder) RawWrite(satellite string, link domain.Link, stored bool) {
	result := "duplicate"
	if stored {
		result = "stored"
	}
	if satellite == "" {
		satellite = "unknown"
	}
	r.rawWrites.WithLabelValues(satellite, string(link), result).Inc()
}

// DrainCycle implements ports.Recorder.
func (r *PrometheusRecorder) DrainCycle(source string, link domain.Link, finalized int) {
	r.drainCycles.WithLabelValues(source, string(link)).Inc()
	r.drainFinalized.WithLabelValues(source, string(link)).Observe(float64(finalized))
}

// JobFinished implements ports.Recorder.
func (r *PrometheusRecorder) JobFinished(kind string, err error, duration time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	} else {
		r.jobLastSuccess.WithLabelValues(kind).SetToCurrentTime()
	}
	r.jobRuns.WithLabelValues(kind, result).Inc()
	r.jobDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// Registry returns the underlying registry.
func (r *PrometheusRecorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
