// Package metrics exposes pipeline and job counters to Prometheus.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Job outcomes recorded by JobFinished.
const (
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// Metrics holds all application metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	// Frame processing counters
	FramesProcessed atomic.Uint64
	FramesSkipped   atomic.Uint64

	// Crop counters
	DegenerateCrops atomic.Uint64
	OCRFailures     atomic.Uint64
	Readings        atomic.Uint64

	// Session results
	PlatesFinalized atomic.Uint64

	// Jobs waiting for or holding a worker
	ActiveJobs atomic.Int64

	jobs          *prometheus.CounterVec
	frameDuration prometheus.Histogram

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lpr_jobs_total",
			Help: "Processing jobs by kind and outcome",
		}, []string{"kind", "status"}),
		frameDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lpr_frame_duration_seconds",
			Help:    "Time spent detecting, reading and annotating one frame",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}

	m.registerPrometheusMetrics()

	return m
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	counter := func(name, help string, v *atomic.Uint64) {
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: name, Help: help},
			func() float64 { return float64(v.Load()) },
		))
	}

	counter("lpr_frames_processed_total", "Total frames read from video sources", &m.FramesProcessed)
	counter("lpr_frames_skipped_total", "Total frames written without detections after a detector failure", &m.FramesSkipped)
	counter("lpr_degenerate_crops_total", "Total plate boxes too small to read", &m.DegenerateCrops)
	counter("lpr_ocr_failures_total", "Total OCR engine errors", &m.OCRFailures)
	counter("lpr_readings_total", "Total plate readings recorded", &m.Readings)
	counter("lpr_plates_finalized_total", "Total vehicles finalized with a plate", &m.PlatesFinalized)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "lpr_active_jobs",
			Help: "Jobs queued or running",
		},
		func() float64 { return float64(m.ActiveJobs.Load()) },
	))

	m.registry.MustRegister(m.jobs, m.frameDuration)

	// Heap, GC and goroutine statistics of the process.
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// FrameProcessed counts one frame and its processing time.
func (m *Metrics) FrameProcessed(d time.Duration) {
	if m == nil {
		return
	}
	m.FramesProcessed.Add(1)
	m.frameDuration.Observe(d.Seconds())
}

// FrameSkipped counts a frame whose detection failed.
func (m *Metrics) FrameSkipped() {
	if m == nil {
		return
	}
	m.FramesSkipped.Add(1)
}

// DegenerateCrop counts a box too small to read.
func (m *Metrics) DegenerateCrop() {
	if m == nil {
		return
	}
	m.DegenerateCrops.Add(1)
}

// OCRFailure counts an OCR engine error.
func (m *Metrics) OCRFailure() {
	if m == nil {
		return
	}
	m.OCRFailures.Add(1)
}

// ReadingRecorded counts a reading added to a session.
func (m *Metrics) ReadingRecorded() {
	if m == nil {
		return
	}
	m.Readings.Add(1)
}

// PlatesFinalizedAdd counts finalized plates.
func (m *Metrics) PlatesFinalizedAdd(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PlatesFinalized.Add(uint64(n))
}

// JobStarted marks a job as queued or running.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.ActiveJobs.Add(1)
}

// JobFinished records a job outcome.
func (m *Metrics) JobFinished(kind, status string) {
	if m == nil {
		return
	}
	m.ActiveJobs.Add(-1)
	m.jobs.WithLabelValues(kind, status).Inc()
}

// Jobs returns the job counter, for tests and dashboards.
func (m *Metrics) Jobs(kind, status string) prometheus.Counter {
	return m.jobs.WithLabelValues(kind, status)
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
