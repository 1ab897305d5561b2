// CLAUDE:SUMMARY Prometheus collectors for evaluations, evaluator outcomes, gateway calls and HTTP traffic
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/factlens/internal/evaluation"
	"github.com/hazyhaar/factlens/internal/llm"
)

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	reg *prometheus.Registry

	evaluations      *prometheus.CounterVec
	evaluationTime   prometheus.Histogram
	evaluatorResults *prometheus.CounterVec
	evaluatorTime    *prometheus.HistogramVec
	llmCalls         *prometheus.CounterVec
	llmLatency       *prometheus.HistogramVec
	llmTokens        *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	verdicts         *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "factlens_evaluations_total",
			Help: "Evaluations by outcome (ok, partial, failed)",
		}, []string{"outcome"}),
		evaluationTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "factlens_evaluation_duration_seconds",
			Help:    "End-to-end evaluation latency",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 90, 120, 180},
		}),
		evaluatorResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "factlens_evaluator_results_total",
			Help: "Evaluator outcomes by agent (ok, error, panic)",
		}, []string{"agent", "outcome"}),
		evaluatorTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "factlens_evaluator_duration_seconds",
			Help:    "Per-evaluator latency",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90},
		}, []string{"agent"}),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "factlens_llm_calls_total",
			Help: "Gateway provider calls by provider and outcome",
		}, []string{"provider", "outcome"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "factlens_llm_latency_ms",
			Help:    "Provider call latency in milliseconds",
			Buckets: []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000, 32000},
		}, []string{"provider"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "factlens_llm_tokens_total",
			Help: "Tokens consumed by direction",
		}, []string{"provider", "direction"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "factlens_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "factlens_verdicts_total",
			Help: "Synthesized verdicts",
		}, []string{"verdict"}),
	}
	m.reg.MustRegister(
		m.evaluations, m.evaluationTime, m.evaluatorResults, m.evaluatorTime,
		m.llmCalls, m.llmLatency, m.llmTokens, m.httpRequests, m.verdicts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// EvaluatorDone implements evaluation.Observer.
func (m *Metrics) EvaluatorDone(agent, outcome string, elapsed time.Duration) {
	m.evaluatorResults.WithLabelValues(agent, outcome).Inc()
	m.evaluatorTime.WithLabelValues(agent).Observe(elapsed.Seconds())
}

// EvaluationDone implements evaluation.Observer.
func (m *Metrics) EvaluationDone(outcome string, elapsed time.Duration) {
	m.evaluations.WithLabelValues(outcome).Inc()
	m.evaluationTime.Observe(elapsed.Seconds())
}

// ObserveVerdict counts a completed report's verdict.
func (m *Metrics) ObserveVerdict(v evaluation.Verdict) {
	m.verdicts.WithLabelValues(string(v)).Inc()
}

// RecordLLMCall implements llm.CallRecorder.
func (m *Metrics) RecordLLMCall(provider, _ string, tokensIn, tokensOut, latencyMs int, success bool, _ string) {
	outcome := "ok"
	if !success {
		outcome = "error"
	}
	m.llmCalls.WithLabelValues(provider, outcome).Inc()
	m.llmLatency.WithLabelValues(provider).Observe(float64(latencyMs))
	if tokensIn > 0 {
		m.llmTokens.WithLabelValues(provider, "in").Add(float64(tokensIn))
	}
	if tokensOut > 0 {
		m.llmTokens.WithLabelValues(provider, "out").Add(float64(tokensOut))
	}
}

// ObserveHTTP counts one request against its route pattern.
func (m *Metrics) ObserveHTTP(route string, code int) {
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

var (
	_ evaluation.Observer = (*Metrics)(nil)
	_ llm.CallRecorder    = (*Metrics)(nil)
)
