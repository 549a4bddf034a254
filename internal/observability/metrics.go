package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Capture metrics
	captureSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mic_bridge_capture_sessions_total",
		Help: "Total number of capture sessions started",
	})

	captureState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mic_bridge_capture_state",
		Help: "Capture state (0=idle, 1=initializing, 2=recording, 3=permission-denied, 4=error)",
	})

	audioLevel = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mic_bridge_audio_level",
		Help: "Latest RMS audio level, normalized to [0,1]",
	})

	chunksEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mic_bridge_chunks_emitted_total",
		Help: "Total number of audio chunks produced by the capture pipeline",
	})

	// Bridge metrics
	chunksSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mic_bridge_chunks_sent_total",
		Help: "Total number of chunks forwarded to the transport",
	})

	bytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mic_bridge_bytes_sent_total",
		Help: "Total audio bytes forwarded to the transport",
	})

	chunksDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mic_bridge_chunks_dropped_total",
		Help: "Total chunks dropped before sending",
	}, []string{"reason"}) // reason: "turn_gated", "send_error", "backlog"

	// Transport metrics
	transportConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mic_bridge_transport_connected",
		Help: "Whether the outbound transport is connected (1) or not (0)",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mic_bridge_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})
)

// RecordCaptureSession records the start of a capture session.
func RecordCaptureSession() {
	captureSessions.Inc()
}

// SetCaptureState updates the capture state gauge.
func SetCaptureState(state int) {
	captureState.Set(float64(state))
}

// SetAudioLevel updates the audio level gauge.
func SetAudioLevel(level float64) {
	audioLevel.Set(level)
}

// RecordChunkEmitted records a chunk produced by the capture pipeline.
func RecordChunkEmitted() {
	chunksEmitted.Inc()
}

// RecordChunkSent records a chunk forwarded to the transport.
func RecordChunkSent(bytes int) {
	chunksSent.Inc()
	bytesSent.Add(float64(bytes))
}

// RecordChunkDropped records a chunk dropped before sending.
func RecordChunkDropped(reason string) {
	chunksDropped.WithLabelValues(reason).Inc()
}

// SetTransportConnected updates the transport connection gauge.
func SetTransportConnected(connected bool) {
	if connected {
		transportConnected.Set(1)
	} else {
		transportConnected.Set(0)
	}
}

// RecordError records an error by type and component.
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}
