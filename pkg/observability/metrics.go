package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics collection for the reasoning core.
type Metrics struct {
	registry *prometheus.Registry

	// Agent metrics
	agentCalls        *prometheus.CounterVec
	agentCallDuration *prometheus.HistogramVec
	agentErrors       *prometheus.CounterVec

	// LLM metrics
	llmCalls        *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec
	llmTokensInput  *prometheus.CounterVec
	llmTokensOutput *prometheus.CounterVec

	// SQL metrics
	sqlQueries      *prometheus.CounterVec
	sqlQueryRows    *prometheus.HistogramVec
	sqlQueryDur     *prometheus.HistogramVec
	sanitizerBlocks *prometheus.CounterVec

	// Profile pack cache
	packBuilds    *prometheus.CounterVec
	packCacheHits *prometheus.CounterVec

	// Sessions
	sessionMessages *prometheus.CounterVec
}

const namespace = "finsight"

// NewMetrics creates the registry and all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.agentCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "agent", Name: "calls_total",
			Help: "Total number of agent invocations",
		},
		[]string{"agent_name"},
	)
	m.agentCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "agent", Name: "call_duration_seconds",
			Help:    "Agent invocation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		},
		[]string{"agent_name"},
	)
	m.agentErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "agent", Name: "errors_total",
			Help: "Total number of agent errors",
		},
		[]string{"agent_name", "error_kind"},
	)
	m.registry.MustRegister(m.agentCalls, m.agentCallDuration, m.agentErrors)

	m.llmCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "llm", Name: "calls_total",
			Help: "Total number of LLM API calls",
		},
		[]string{"model"},
	)
	m.llmCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "llm", Name: "call_duration_seconds",
			Help:    "LLM API call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"model"},
	)
	m.llmTokensInput = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "llm", Name: "tokens_input_total",
			Help: "Total number of input tokens consumed",
		},
		[]string{"model"},
	)
	m.llmTokensOutput = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "llm", Name: "tokens_output_total",
			Help: "Total number of output tokens generated",
		},
		[]string{"model"},
	)
	m.registry.MustRegister(m.llmCalls, m.llmCallDuration, m.llmTokensInput, m.llmTokensOutput)

	m.sqlQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sql", Name: "queries_total",
			Help: "Total number of executed queries",
		},
		[]string{"intent"},
	)
	m.sqlQueryRows = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "sql", Name: "query_rows",
			Help:    "Rows returned per query",
			Buckets: prometheus.ExponentialBuckets(1, 4, 7),
		},
		[]string{"intent"},
	)
	m.sqlQueryDur = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "sql", Name: "query_duration_seconds",
			Help:    "Query execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"intent"},
	)
	m.sanitizerBlocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sql", Name: "sanitizer_blocks_total",
			Help: "Queries rejected by the sanitizer or invariant checker",
		},
		[]string{"gate"},
	)
	m.registry.MustRegister(m.sqlQueries, m.sqlQueryRows, m.sqlQueryDur, m.sanitizerBlocks)

	m.packBuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "profile", Name: "pack_builds_total",
			Help: "Profile pack builds",
		},
		[]string{"class"},
	)
	m.packCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "profile", Name: "pack_cache_hits_total",
			Help: "Profile pack cache hits",
		},
		[]string{"class"},
	)
	m.registry.MustRegister(m.packBuilds, m.packCacheHits)

	m.sessionMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "messages_total",
			Help: "Conversation turns stored to memory",
		},
		[]string{"role"},
	)
	m.registry.MustRegister(m.sessionMessages)

	return m
}

// RecordAgentCall records an agent invocation.
func (m *Metrics) RecordAgentCall(agentName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.agentCalls.WithLabelValues(agentName).Inc()
	m.agentCallDuration.WithLabelValues(agentName).Observe(duration.Seconds())
}

// RecordAgentError records an agent error.
func (m *Metrics) RecordAgentError(agentName, errorKind string) {
	if m == nil {
		return
	}
	m.agentErrors.WithLabelValues(agentName, errorKind).Inc()
}

// RecordLLMCall records an LLM API call with token usage.
func (m *Metrics) RecordLLMCall(model string, duration time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(model).Inc()
	m.llmCallDuration.WithLabelValues(model).Observe(duration.Seconds())
	m.llmTokensInput.WithLabelValues(model).Add(float64(inputTokens))
	m.llmTokensOutput.WithLabelValues(model).Add(float64(outputTokens))
}

// RecordSQLQuery records one executed query.
func (m *Metrics) RecordSQLQuery(intent string, rows int, duration time.Duration) {
	if m == nil {
		return
	}
	m.sqlQueries.WithLabelValues(intent).Inc()
	m.sqlQueryRows.WithLabelValues(intent).Observe(float64(rows))
	m.sqlQueryDur.WithLabelValues(intent).Observe(duration.Seconds())
}

// RecordSanitizerBlock records a rejection at one of the safety gates.
func (m *Metrics) RecordSanitizerBlock(gate string) {
	if m == nil {
		return
	}
	m.sanitizerBlocks.WithLabelValues(gate).Inc()
}

// RecordPackBuild records a profile pack build.
func (m *Metrics) RecordPackBuild(class string, cacheHit bool) {
	if m == nil {
		return
	}
	if cacheHit {
		m.packCacheHits.WithLabelValues(class).Inc()
		return
	}
	m.packBuilds.WithLabelValues(class).Inc()
}

// RecordSessionMessage records a stored conversation turn.
func (m *Metrics) RecordSessionMessage(role string) {
	if m == nil {
		return
	}
	m.sessionMessages.WithLabelValues(role).Inc()
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
