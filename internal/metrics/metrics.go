package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Frame loop counters
	FramesRead        atomic.Uint64
	FramesProcessed   atomic.Uint64
	PlaceholderFrames atomic.Uint64

	// Detector counters
	DetectionsKept     atomic.Uint64
	DetectionsFiltered atomic.Uint64
	InferenceErrors    atomic.Uint64

	// Snapshot publisher
	Publishes           atomic.Uint64
	StorageErrors       atomic.Uint64
	StaleWeightsCleared atomic.Uint64

	// Weight correlator
	CorrelationsOK     atomic.Uint64
	CorrelationsFailed atomic.Uint64

	// Latency tracking
	ProcessLatencyMs atomic.Uint64 // Last frame processing latency in ms

	// Stream clients
	ActiveClients atomic.Int64

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) gauge(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: name, Help: help},
		fn,
	))
}

func (m *Metrics) registerPrometheusMetrics() {
	load := func(v *atomic.Uint64) func() float64 {
		return func() float64 { return float64(v.Load()) }
	}

	m.gauge("tilapia_frames_read_total", "Total frames read from the camera", load(&m.FramesRead))
	m.gauge("tilapia_frames_processed_total", "Total frames run through detection", load(&m.FramesProcessed))
	m.gauge("tilapia_placeholder_frames_total", "Ticks rendered without a camera frame", load(&m.PlaceholderFrames))

	m.gauge("tilapia_detections_kept_total", "Detections at or above the confidence cutoff", load(&m.DetectionsKept))
	m.gauge("tilapia_detections_filtered_total", "Detections discarded by the confidence cutoff", load(&m.DetectionsFiltered))
	m.gauge("tilapia_inference_errors_total", "Model inference failures", load(&m.InferenceErrors))

	m.gauge("tilapia_snapshot_publishes_total", "Snapshots published", load(&m.Publishes))
	m.gauge("tilapia_snapshot_storage_errors_total", "Snapshot frame write failures", load(&m.StorageErrors))
	m.gauge("tilapia_snapshot_stale_weights_cleared_total", "Weights cleared because a different fish was published", load(&m.StaleWeightsCleared))

	m.gauge("tilapia_correlations_ok_total", "Successful weight correlations", load(&m.CorrelationsOK))
	m.gauge("tilapia_correlations_failed_total", "Failed weight correlations", load(&m.CorrelationsFailed))

	m.gauge("tilapia_process_latency_ms", "Last frame processing latency in milliseconds", load(&m.ProcessLatencyMs))

	m.gauge("tilapia_stream_clients", "Connected MJPEG/SSE clients", func() float64 {
		return float64(m.ActiveClients.Load())
	})
}

// UpdateProcessLatency records the latest processing latency
func (m *Metrics) UpdateProcessLatency(duration time.Duration) {
	m.ProcessLatencyMs.Store(uint64(duration.Milliseconds()))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
