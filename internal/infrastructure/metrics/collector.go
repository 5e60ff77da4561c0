// Package metrics exposes pipeline metrics to Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mshogin/reasonguard/internal/application/services"
	"github.com/mshogin/reasonguard/internal/domain/models"
)

const namespace = "reasonguard"

// Collector records analysis, gating and agent metrics.
//
// Design Principles:
// - Registers on a caller-supplied Registerer, so tests use a fresh registry
// - Label values are bounded: classifications, decisions, roles, providers
//
// Tracked Metrics:
// - Analyses by classification and their duration
// - Families per analysis
// - Gate decisions and overrides
// - Agent runs by role and validity, attempts per run
// - LLM call latency and failures by provider
// - Embedding failures
type Collector struct {
	analyses          *prometheus.CounterVec
	analysisDuration  prometheus.Histogram
	families          prometheus.Histogram
	gateDecisions     *prometheus.CounterVec
	overrides         prometheus.Counter
	agentRuns         *prometheus.CounterVec
	agentAttempts     prometheus.Histogram
	llmDuration       *prometheus.HistogramVec
	llmFailures       *prometheus.CounterVec
	embeddingFailures prometheus.Counter
}

var _ services.MetricsRecorder = (*Collector)(nil)

// NewCollector creates the metrics and registers them on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		analyses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Completed analyses by robustness classification.",
		}, []string{"classification"}),
		analysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Time spent clustering, scoring and gating one batch.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}),
		families: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "families_per_analysis",
			Help:      "Number of reasoning families found per analysis.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 8},
		}),
		gateDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Execution gate decisions.",
		}, []string{"decision"}),
		overrides: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_overrides_total",
			Help:      "Blocked decisions overridden by a user.",
		}),
		agentRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_runs_total",
			Help:      "Agent runs by role and schema validity.",
		}, []string{"role", "valid"}),
		agentAttempts: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_attempts",
			Help:      "Completion attempts needed per agent run.",
			Buckets:   []float64{1, 2, 3},
		}),
		llmDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_duration_seconds",
			Help:      "Latency of completion calls by provider.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"provider"}),
		llmFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_call_failures_total",
			Help:      "Failed completion calls by provider.",
		}, []string{"provider"}),
		embeddingFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_failures_total",
			Help:      "Runs whose embedding could not be generated.",
		}),
	}
}

// RecordAnalysis records one finished analysis.
func (c *Collector) RecordAnalysis(classification models.Classification, families int, elapsed time.Duration) {
	c.analyses.WithLabelValues(string(classification)).Inc()
	c.analysisDuration.Observe(elapsed.Seconds())
	c.families.Observe(float64(families))
}

// RecordGateDecision records a gate outcome.
func (c *Collector) RecordGateDecision(decision models.Decision) {
	c.gateDecisions.WithLabelValues(string(decision)).Inc()
}

// RecordOverride records a user override.
func (c *Collector) RecordOverride() {
	c.overrides.Inc()
}

// RecordAgentRun records a finished agent run.
func (c *Collector) RecordAgentRun(role string, valid bool, attempts int) {
	c.agentRuns.WithLabelValues(role, strconv.FormatBool(valid)).Inc()
	c.agentAttempts.Observe(float64(attempts))
}

// RecordLLMCall records one completion call.
func (c *Collector) RecordLLMCall(provider string, elapsed time.Duration, err error) {
	c.llmDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
	if err != nil {
		c.llmFailures.WithLabelValues(provider).Inc()
	}
}

// RecordEmbeddingFailure records a run left without an embedding.
func (c *Collector) RecordEmbeddingFailure() {
	c.embeddingFailures.Inc()
}
