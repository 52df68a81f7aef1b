// Package metrics exposes Prometheus collectors for the chat subsystem.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dalia"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg      prometheus.Registerer
	gatherer prometheus.Gatherer

	ChatTurns     *prometheus.CounterVec
	StreamFrames  *prometheus.CounterVec
	ToolCalls     *prometheus.CounterVec
	ActiveStreams prometheus.Gauge
	LLMLatency    *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the collectors on reg and serves them from g.
func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		reg:      reg,
		gatherer: g,
		ChatTurns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Chat turns by mode (sync, stream, ws) and outcome.",
		}, []string{"mode", "outcome"}),
		StreamFrames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_frames_total",
			Help:      "Frames written to streaming clients by frame type.",
		}, []string{"type"}),
		ToolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls requested by the model by tool and policy decision.",
		}, []string{"tool", "decision"}),
		ActiveStreams: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Streams currently being relayed.",
		}),
		LLMLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_duration_seconds",
			Help:      "Latency of chat completion calls.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}, []string{"stream"}),
	}
}

// RegisterSessionGauge exposes the registry size through fn.
func (m *Metrics) RegisterSessionGauge(fn func() float64) {
	if m == nil {
		return
	}
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions",
		Help:      "Conversations held in the session registry.",
	}, fn)
}

// Handler serves the collected metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ChatTurn counts one finished turn.
func (m *Metrics) ChatTurn(mode, outcome string) {
	if m == nil {
		return
	}
	m.ChatTurns.WithLabelValues(mode, outcome).Inc()
}

// Frame counts one frame written to a client.
func (m *Metrics) Frame(frameType string) {
	if m == nil {
		return
	}
	m.StreamFrames.WithLabelValues(frameType).Inc()
}

// ToolCall counts one tool call decision.
func (m *Metrics) ToolCall(tool, decision string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, decision).Inc()
}

// StreamStarted increments the active stream gauge and returns its release.
func (m *Metrics) StreamStarted() func() {
	if m == nil {
		return func() {}
	}
	m.ActiveStreams.Inc()
	return m.ActiveStreams.Dec
}

// ObserveLLM records one chat completion latency.
func (m *Metrics) ObserveLLM(stream bool, seconds float64) {
	if m == nil {
		return
	}
	label := "false"
	if stream {
		label = "true"
	}
	m.LLMLatency.WithLabelValues(label).Observe(seconds)
}
