package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/khaledhikmat/proctor-go/proctor"
)

// Metrics holds the session's counters
type Metrics struct {
	// Video loop
	FramesRead        atomic.Uint64
	FramesSkipped     atomic.Uint64
	FramesEvaluated   atomic.Uint64
	DetectionTimeouts atomic.Uint64
	DetectionErrors   atomic.Uint64
	CycleLatencyMs    atomic.Uint64 // last cycle

	// Audio loop
	AudioChunks       atomic.Uint64
	AudioActiveChunks atomic.Uint64
	MicAvailable      atomic.Bool

	// Decisions
	PersonCount     atomic.Int64
	Alerts          atomic.Uint64
	AlertsThrottled atomic.Uint64

	events   *prometheus.CounterVec
	registry *prometheus.Registry
}

// New creates a new Metrics instance with its own registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proctor_cheating_events_total",
			Help: "Cheating events raised, by category",
		}, []string{"type"}),
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
	m.registry.MustRegister(m.events)

	m.gauge("proctor_frames_read_total", "Frames read from the video source",
		func() float64 { return float64(m.FramesRead.Load()) })
	m.gauge("proctor_frames_skipped_total", "Frames skipped by the frame stride",
		func() float64 { return float64(m.FramesSkipped.Load()) })
	m.gauge("proctor_frames_evaluated_total", "Frames run through a detection cycle",
		func() float64 { return float64(m.FramesEvaluated.Load()) })
	m.gauge("proctor_detection_timeouts_total", "Cycles whose face detection missed its deadline",
		func() float64 { return float64(m.DetectionTimeouts.Load()) })
	m.gauge("proctor_detection_errors_total", "Cycles skipped on a detector error",
		func() float64 { return float64(m.DetectionErrors.Load()) })
	m.gauge("proctor_cycle_latency_ms", "Latency of the last detection cycle",
		func() float64 { return float64(m.CycleLatencyMs.Load()) })

	m.gauge("proctor_audio_chunks_total", "Audio chunks read",
		func() float64 { return float64(m.AudioChunks.Load()) })
	m.gauge("proctor_audio_active_chunks_total", "Audio chunks above the activity threshold",
		func() float64 { return float64(m.AudioActiveChunks.Load()) })
	m.gauge("proctor_microphone_available", "1 while the microphone delivers audio",
		func() float64 {
			if m.MicAvailable.Load() {
				return 1
			}
			return 0
		})

	m.gauge("proctor_person_count", "Persons in view in the last cycle",
		func() float64 { return float64(m.PersonCount.Load()) })
	m.gauge("proctor_alerts_total", "Alerts dispatched",
		func() float64 { return float64(m.Alerts.Load()) })
	m.gauge("proctor_alerts_throttled_total", "Alerts suppressed by the cooldown",
		func() float64 { return float64(m.AlertsThrottled.Load()) })
}

// ObserveCycle records the outcome of one detection cycle.
func (m *Metrics) ObserveCycle(res proctor.CycleResult, latency time.Duration) {
	m.FramesEvaluated.Add(1)
	if res.DetectionTimedOut {
		m.DetectionTimeouts.Add(1)
	}
	m.CycleLatencyMs.Store(uint64(latency.Milliseconds()))
	m.PersonCount.Store(int64(res.PersonCount))
	m.MicAvailable.Store(res.MicAvailable)
	for _, e := range res.Events {
		m.events.WithLabelValues(e.Category.String()).Inc()
	}
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
