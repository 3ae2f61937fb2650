package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nimbusworks/modelgate/pkg/config"
)

// GatewayMetrics tracks gateway request outcomes and circuit breaker state.
//
// Metrics:
//   - modelgate_gateway_requests_total: requests by role and operation
//   - modelgate_gateway_errors_total: classified errors by role and code
//   - modelgate_gateway_request_duration_seconds: request latency
//   - modelgate_gateway_breaker_phase: breaker phase (0=closed, 1=half-open, 2=open)
//   - modelgate_gateway_breaker_transitions_total: breaker phase transitions
//   - modelgate_gateway_batch_windows_total: embedding batch windows processed
//   - modelgate_gateway_tokens_total: token usage by role and direction
type GatewayMetrics struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	errors       *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	breakerPhase *prometheus.GaugeVec
	transitions  *prometheus.CounterVec
	batchWindows prometheus.Counter
	tokens       *prometheus.CounterVec
}

// New creates and registers gateway metrics with a fresh registry.
func New(cfg *config.MetricsConfig) *GatewayMetrics {
	registry := prometheus.NewRegistry()
	return NewWithRegistry(cfg, registry)
}

// NewWithRegistry creates and registers gateway metrics with the provided
// registry.
func NewWithRegistry(cfg *config.MetricsConfig, registry *prometheus.Registry) *GatewayMetrics {
	gm := &GatewayMetrics{
		registry: registry,

		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_total",
				Help:      "Total gateway requests by role and operation",
			},
			[]string{"role", "operation"},
		),

		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "errors_total",
				Help:      "Total classified errors by role and code",
			},
			[]string{"role", "code"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "Gateway request latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"role", "operation"},
		),

		breakerPhase: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "breaker_phase",
				Help:      "Circuit breaker phase (0=closed, 1=half-open, 2=open)",
			},
			[]string{"role"},
		),

		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "breaker_transitions_total",
				Help:      "Circuit breaker phase transitions by destination phase",
			},
			[]string{"role", "to"},
		),

		batchWindows: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "batch_windows_total",
				Help:      "Embedding batch backpressure windows processed",
			},
		),

		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "tokens_total",
				Help:      "Token usage by role and direction (input/output)",
			},
			[]string{"role", "direction"},
		),
	}

	registry.MustRegister(
		gm.requests,
		gm.errors,
		gm.duration,
		gm.breakerPhase,
		gm.transitions,
		gm.batchWindows,
		gm.tokens,
	)

	return gm
}

// RecordRequest records one gateway request and its latency.
func (m *GatewayMetrics) RecordRequest(role, operation string, seconds float64) {
	m.requests.WithLabelValues(role, operation).Inc()
	m.duration.WithLabelValues(role, operation).Observe(seconds)
}

// RecordError records one classified error.
func (m *GatewayMetrics) RecordError(role, code string) {
	m.errors.WithLabelValues(role, code).Inc()
}

// RecordTokens records token usage for one successful call.
func (m *GatewayMetrics) RecordTokens(role string, input, output int) {
	if input > 0 {
		m.tokens.WithLabelValues(role, "input").Add(float64(input))
	}
	if output > 0 {
		m.tokens.WithLabelValues(role, "output").Add(float64(output))
	}
}

// SetBreakerPhase records the current breaker phase for a role.
func (m *GatewayMetrics) SetBreakerPhase(role string, phase string) {
	m.breakerPhase.WithLabelValues(role).Set(phaseValue(phase))
}

// RecordBreakerTransition records a breaker phase change.
func (m *GatewayMetrics) RecordBreakerTransition(role, to string) {
	m.transitions.WithLabelValues(role, to).Inc()
	m.breakerPhase.WithLabelValues(role).Set(phaseValue(to))
}

// RecordBatchWindow records one processed batch window.
func (m *GatewayMetrics) RecordBatchWindow() {
	m.batchWindows.Inc()
}

// Handler returns an HTTP handler serving the metrics in Prometheus
// exposition format.
func (m *GatewayMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func phaseValue(phase string) float64 {
	switch phase {
	case "half-open":
		return 1
	case "open":
		return 2
	}
	return 0
}
