// Package metrics exposes the Prometheus instrumentation for the risk
// pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marketsafe/checkout-risk-backend/internal/domain/risk"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	assessmentsTotal    *prometheus.CounterVec
	assessmentDuration  prometheus.Histogram
	riskScores          prometheus.Histogram
	verificationsTotal  *prometheus.CounterVec
	justificationsTotal *prometheus.CounterVec
	linkagesTotal       prometheus.Counter
}

// New creates and registers the collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		assessmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_assessments_total",
			Help: "Assessments by decision.",
		}, []string{"decision"}),
		assessmentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_assessment_duration_seconds",
			Help:    "End-to-end gate latency including signal extraction and persistence.",
			Buckets: prometheus.DefBuckets,
		}),
		riskScores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_score",
			Help:    "Distribution of computed risk scores.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		verificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_verifications_total",
			Help: "Verification submissions by outcome.",
		}, []string{"outcome"}),
		justificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_justifications_total",
			Help: "Justifications rendered by source.",
		}, []string{"source"}),
		linkagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "risk_linkages_total",
			Help: "Linkage applications.",
		}),
	}

	registry.MustRegister(
		m.assessmentsTotal,
		m.assessmentDuration,
		m.riskScores,
		m.verificationsTotal,
		m.justificationsTotal,
		m.linkagesTotal,
	)

	return m
}

// Registry returns the registry for the metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordAssessment implements the gate's metrics port.
func (m *Metrics) RecordAssessment(decision risk.Decision, score int, duration time.Duration) {
	m.assessmentsTotal.WithLabelValues(string(decision)).Inc()
	m.assessmentDuration.Observe(duration.Seconds())
	m.riskScores.Observe(float64(score))
}

// RecordVerification counts one verification submission outcome.
func (m *Metrics) RecordVerification(outcome string) {
	m.verificationsTotal.WithLabelValues(outcome).Inc()
}

// RecordJustification counts one rendered justification by source.
func (m *Metrics) RecordJustification(source risk.JustificationSource) {
	m.justificationsTotal.WithLabelValues(string(source)).Inc()
}

// RecordLinkage counts one linkage application.
func (m *Metrics) RecordLinkage() {
	m.linkagesTotal.Inc()
}
