/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import "github.com/prometheus/client_golang/prometheus"

// Outcome is a label value describing how a rate limit check ended.
type Outcome string

// Check outcomes.
const (
	OutcomeAllowed    Outcome = "allowed"
	OutcomeDenied     Outcome = "denied"
	OutcomeDisabled   Outcome = "disabled"
	OutcomeFailOpen   Outcome = "fail_open"
	OutcomeFailClosed Outcome = "fail_closed"
)

const (
	metricsLabelStrategy  = "strategy"
	metricsLabelOutcome   = "outcome"
	metricsLabelProvider  = "provider"
	metricsLabelOperation = "operation"
)

// MetricsCollector represents a collector of rate limiting metrics.
type MetricsCollector interface {
	// IncChecks increments the number of checks finished with the outcome.
	IncChecks(strategy Strategy, outcome Outcome)
	// IncProviderErrors increments the number of failed provider calls.
	IncProviderErrors(provider string, operation string)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// PrometheusMetrics represents Prometheus metrics for the rate limiting service.
type PrometheusMetrics struct {
	ChecksTotal         *prometheus.CounterVec
	ProviderErrorsTotal *prometheus.CounterVec
}

var _ MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	return &PrometheusMetrics{
		ChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "rate_limit_checks_total",
			Help:        "Number of rate limit checks by strategy and outcome.",
			ConstLabels: opts.ConstLabels,
		}, []string{metricsLabelStrategy, metricsLabelOutcome}),
		ProviderErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "rate_limit_provider_errors_total",
			Help:        "Number of failed calls of the rate limit provider.",
			ConstLabels: opts.ConstLabels,
		}, []string{metricsLabelProvider, metricsLabelOperation}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.ChecksTotal, pm.ProviderErrorsTotal)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.ChecksTotal)
	prometheus.Unregister(pm.ProviderErrorsTotal)
}

// IncChecks increments the number of checks finished with the outcome.
func (pm *PrometheusMetrics) IncChecks(strategy Strategy, outcome Outcome) {
	pm.ChecksTotal.WithLabelValues(string(strategy), string(outcome)).Inc()
}

// IncProviderErrors increments the number of failed provider calls.
func (pm *PrometheusMetrics) IncProviderErrors(provider string, operation string) {
	pm.ProviderErrorsTotal.WithLabelValues(provider, operation).Inc()
}

type disabledMetrics struct{}

func (disabledMetrics) IncChecks(Strategy, Outcome)      {}
func (disabledMetrics) IncProviderErrors(string, string) {}
