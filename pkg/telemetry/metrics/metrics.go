// Package metrics exposes Prometheus instrumentation for the decision path.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config contains configuration for metric naming.
type Config struct {
	Namespace string `yaml:"namespace" json:"namespace"`
	Subsystem string `yaml:"subsystem" json:"subsystem"`
}

// DefaultConfig returns the default metrics configuration.
func DefaultConfig() *Config {
	return &Config{Namespace: "echos"}
}

// Metrics tracks the daemon's decision, chaos, token, and consent activity.
// All record methods are safe on a nil receiver so instrumentation stays
// optional for components constructed without a registry.
//
// Metrics:
//   - echos_decisions_total: decisions by verdict and source
//   - echos_decision_duration_seconds: end-to-end decision latency
//   - echos_chaos_injections_total: chaos draws by intent and outcome
//   - echos_tokens_issued_total: issued tokens
//   - echos_consent_pending: currently pending consent requests
//   - echos_consent_resolutions_total: resolutions by verdict and source
//   - echos_template_reloads_total: template set reloads
//   - echos_templates_loaded: size of the current template set
type Metrics struct {
	decisionsTotal   *prometheus.CounterVec
	decisionDuration prometheus.Histogram

	chaosInjectionsTotal *prometheus.CounterVec

	tokensIssuedTotal prometheus.Counter

	consentPending  prometheus.Gauge
	consentResolved *prometheus.CounterVec

	templateReloads prometheus.Counter
	templatesLoaded prometheus.Gauge
}

// New creates and registers the daemon metrics with the provided registry.
func New(cfg *Config, registry *prometheus.Registry) *Metrics {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	m := &Metrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decisions_total",
				Help:      "Total decisions rendered, by verdict and source",
			},
			[]string{"status", "source"},
		),

		decisionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decision_duration_seconds",
				Help:      "End-to-end decision latency in seconds",
				// Decisions are sub-millisecond unless chaos latency applies.
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10µs to ~2.6s
			},
		),

		chaosInjectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "chaos_injections_total",
				Help:      "Chaos draws by intent and outcome",
			},
			[]string{"intent", "outcome"},
		),

		tokensIssuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "tokens_issued_total",
				Help:      "Total scoped tokens issued",
			},
		),

		consentPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "consent_pending",
				Help:      "Currently pending consent requests",
			},
		),

		consentResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "consent_resolutions_total",
				Help:      "Consent resolutions by verdict and source",
			},
			[]string{"verdict", "source"},
		),

		templateReloads: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "template_reloads_total",
				Help:      "Template set reloads, including hot reloads",
			},
		),

		templatesLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "templates_loaded",
				Help:      "Templates in the current set",
			},
		),
	}

	registry.MustRegister(
		m.decisionsTotal,
		m.decisionDuration,
		m.chaosInjectionsTotal,
		m.tokensIssuedTotal,
		m.consentPending,
		m.consentResolved,
		m.templateReloads,
		m.templatesLoaded,
	)

	return m
}

// RecordDecision records one rendered verdict and its latency.
func (m *Metrics) RecordDecision(status, source string, duration time.Duration) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(status, source).Inc()
	m.decisionDuration.Observe(duration.Seconds())
}

// RecordChaos records one chaos draw.
func (m *Metrics) RecordChaos(intent string, triggered bool) {
	if m == nil {
		return
	}
	outcome := "passed"
	if triggered {
		outcome = "triggered"
	}
	m.chaosInjectionsTotal.WithLabelValues(intent, outcome).Inc()
}

// RecordTokenIssued records one token issuance.
func (m *Metrics) RecordTokenIssued() {
	if m == nil {
		return
	}
	m.tokensIssuedTotal.Inc()
}

// SetConsentPending records the current pending consent count.
func (m *Metrics) SetConsentPending(n int) {
	if m == nil {
		return
	}
	m.consentPending.Set(float64(n))
}

// RecordConsentResolution records one consent resolution.
func (m *Metrics) RecordConsentResolution(verdict, source string) {
	if m == nil {
		return
	}
	m.consentResolved.WithLabelValues(verdict, source).Inc()
}

// RecordTemplateReload records a template set reload and its new size.
func (m *Metrics) RecordTemplateReload(loaded int) {
	if m == nil {
		return
	}
	m.templateReloads.Inc()
	m.templatesLoaded.Set(float64(loaded))
}
