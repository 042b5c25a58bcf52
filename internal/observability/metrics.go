package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Voice session lifecycle (active count, total, duration)
//   - Remote events relayed to clients by event type
//   - Client frames received by frame type
//   - Audio bytes forwarded in each direction
//   - Function call outcomes (success, error, timeout, mismatch)
//   - Error rates categorized by component
//
// All recorder methods are safe to call on a nil *Metrics, so components can
// treat metrics as optional.
type Metrics struct {
	// SessionsTotal counts voice sessions by outcome.
	SessionsTotal *prometheus.CounterVec

	// ActiveSessions is a gauge tracking currently open voice sessions.
	ActiveSessions prometheus.Gauge

	// SessionDuration measures session lifetime in seconds.
	// Buckets: 10s, 30s, 60s, 300s, 600s, 1800s, 3600s
	SessionDuration prometheus.Histogram

	// RemoteEvents counts Voice Live events processed by the dispatcher.
	// Labels: type
	RemoteEvents *prometheus.CounterVec

	// ClientFrames counts frames received from the client transport.
	// Labels: type
	ClientFrames *prometheus.CounterVec

	// AudioBytes tracks forwarded audio volume.
	// Labels: direction (inbound|outbound)
	AudioBytes *prometheus.CounterVec

	// FunctionCalls counts function-call coordination outcomes.
	// Labels: function, status (ok|submit_failed|timeout|mismatch)
	FunctionCalls *prometheus.CounterVec

	// ErrorCounter tracks errors by component.
	// Labels: component (bridge|client|remote|gateway), error_type
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics with the given
// registerer. Pass prometheus.DefaultRegisterer for the /metrics endpoint;
// tests pass a fresh registry for isolation.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicelive_sessions_total",
				Help: "Total number of voice sessions by outcome",
			},
			[]string{"outcome"},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "voicelive_active_sessions",
				Help: "Number of currently open voice sessions",
			},
		),
		SessionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "voicelive_session_duration_seconds",
				Help:    "Voice session lifetime in seconds",
				Buckets: []float64{10, 30, 60, 300, 600, 1800, 3600},
			},
		),
		RemoteEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicelive_remote_events_total",
				Help: "Total number of Voice Live events processed by event type",
			},
			[]string{"type"},
		),
		ClientFrames: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicelive_client_frames_total",
				Help: "Total number of client frames received by frame type",
			},
			[]string{"type"},
		),
		AudioBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicelive_audio_bytes_total",
				Help: "Total audio bytes forwarded by direction",
			},
			[]string{"direction"},
		),
		FunctionCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicelive_function_calls_total",
				Help: "Total number of function call attempts by function and status",
			},
			[]string{"function", "status"},
		),
		ErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicelive_errors_total",
				Help: "Total number of errors by component and type",
			},
			[]string{"component", "error_type"},
		),
	}
}

// SessionStarted records a newly opened session.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionEnded records a finished session with its outcome and duration.
func (m *Metrics) SessionEnded(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.SessionsTotal.WithLabelValues(outcome).Inc()
	m.SessionDuration.Observe(duration.Seconds())
}

// RemoteEvent records one dispatched Voice Live event.
func (m *Metrics) RemoteEvent(eventType string) {
	if m == nil {
		return
	}
	m.RemoteEvents.WithLabelValues(eventType).Inc()
}

// ClientFrame records one client frame by type.
func (m *Metrics) ClientFrame(frameType string) {
	if m == nil {
		return
	}
	m.ClientFrames.WithLabelValues(frameType).Inc()
}

// AudioForwarded records forwarded audio volume.
func (m *Metrics) AudioForwarded(direction string, bytes int) {
	if m == nil {
		return
	}
	m.AudioBytes.WithLabelValues(direction).Add(float64(bytes))
}

// FunctionCall records a function-call coordination outcome.
func (m *Metrics) FunctionCall(function, status string) {
	if m == nil {
		return
	}
	m.FunctionCalls.WithLabelValues(function, status).Inc()
}

// Error records an error by component and type.
func (m *Metrics) Error(component, errorType string) {
	if m == nil {
		return
	}
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}
