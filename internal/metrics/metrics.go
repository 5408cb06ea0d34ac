// Package metrics exposes Prometheus instrumentation for the audio pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FramesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistant_frames_captured_total",
		Help: "Audio frames read from the capture device.",
	})

	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistant_frames_dropped_total",
		Help: "Audio frames discarded because the pipeline queue was full.",
	})

	UtterancesAssembled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistant_utterances_total",
		Help: "Utterances flushed by the assembler.",
	})

	RecognitionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_recognition_requests_total",
		Help: "Speech-to-text requests by outcome.",
	}, []string{"outcome"})

	RecognitionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "assistant_recognition_latency_seconds",
		Help:    "Speech-to-text request latency.",
		Buckets: prometheus.DefBuckets,
	})

	TriggersDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_triggers_total",
		Help: "Trigger phrases detected by kind.",
	}, []string{"kind"})

	ResearchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_research_requests_total",
		Help: "Research queries by outcome.",
	}, []string{"outcome"})

	ResearchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "assistant_research_latency_seconds",
		Help:    "Research query latency.",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15},
	})

	NotesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistant_notes_total",
		Help: "Notes finalized and stored.",
	})

	SessionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "assistant_session_state",
		Help: "Current session state as an enum ordinal.",
	})

	OverlayClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "assistant_overlay_clients",
		Help: "Connected overlay websocket clients.",
	})
)

// Outcome labels for the request counters.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
