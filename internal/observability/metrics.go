package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry          *prometheus.Registry
	Turns             *prometheus.CounterVec
	Intents           *prometheus.CounterVec
	ProviderAttempts  *prometheus.CounterVec
	ProviderFallbacks *prometheus.CounterVec
	StoreWrites       *prometheus.CounterVec
	TurnLatency       *prometheus.HistogramVec
	stages            *turnStageWindow
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns by kind and outcome.",
		}, []string{"kind", "outcome"}),
		Intents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_total",
			Help:      "Classified intents.",
		}, []string{"intent"}),
		ProviderAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Speech provider calls by stage, provider and outcome.",
		}, []string{"stage", "provider", "outcome"}),
		ProviderFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_fallbacks_total",
			Help:      "Requests served by a provider other than the first in the chain.",
		}, []string{"stage", "provider"}),
		StoreWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interaction_writes_total",
			Help:      "Interaction record writes by outcome.",
		}, []string{"outcome"}),
		TurnLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_ms",
			Help:      "End-to-end turn latency in milliseconds.",
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2000, 4000, 8000, 15000},
		}, []string{"kind"}),
		stages: newTurnStageWindow(256),
	}
}

// ObserveTurn records one finished turn.
func (m *Metrics) ObserveTurn(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(kind, outcome).Inc()
	m.TurnLatency.WithLabelValues(kind).Observe(float64(d.Milliseconds()))
	m.stages.Observe("turn_"+kind, durationMS(d))
	if outcome != "ok" {
		m.stages.ObserveIndicator("turn_" + kind + "_" + outcome)
	}
}

func (m *Metrics) ObserveIntent(intent string) {
	if m == nil || intent == "" {
		return
	}
	m.Intents.WithLabelValues(intent).Inc()
}

// ObserveProvider records one provider call. stage is "stt" or "tts".
func (m *Metrics) ObserveProvider(stage, provider, outcome string) {
	if m == nil {
		return
	}
	m.ProviderAttempts.WithLabelValues(stage, provider, outcome).Inc()
}

func (m *Metrics) ObserveFallback(stage, provider string) {
	if m == nil {
		return
	}
	m.ProviderFallbacks.WithLabelValues(stage, provider).Inc()
	m.stages.ObserveIndicator(stage + "_fallback")
}

// ObserveStoreWrite counts interaction writes: ok, failed or dropped.
func (m *Metrics) ObserveStoreWrite(outcome string) {
	if m == nil {
		return
	}
	m.StoreWrites.WithLabelValues(outcome).Inc()
}

// ObserveStage feeds the rolling latency window served at /v1/perf/latency.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.Observe(stage, durationMS(d))
}

func (m *Metrics) LatencySnapshot() TurnStageSnapshot {
	if m == nil {
		return newTurnStageWindow(0).Snapshot()
	}
	return m.stages.Snapshot()
}

func (m *Metrics) ResetLatency() {
	if m == nil {
		return
	}
	m.stages.Reset()
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func durationMS(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
