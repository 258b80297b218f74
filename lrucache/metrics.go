/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import "github.com/prometheus/client_golang/prometheus"

// MetricsCollector represents a collector of metrics to analyze how (effectively or not) cache is used.
type MetricsCollector interface {
	// SetAmount sets the total number of entries in the cache.
	SetAmount(int)

	// IncHits increments the total number of successfully found keys in the cache.
	IncHits()

	// IncMisses increments the total number of not found keys in the cache.
	IncMisses()

	// AddEvictions increments the total number of entries evicted because of the size limit.
	AddEvictions(int)

	// AddExpirations increments the total number of entries removed because of expiration.
	AddExpirations(int)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels

	// CurriedLabelNames is a list of label names that will be curried with the provided labels.
	// If it's not empty, PrometheusMetrics.MustCurryWith must be called further with the same labels,
	// otherwise the collector will panic. It allows sharing the metrics by several caches
	// (e.g. rate limit store and response cache distinguished by a "cache" label).
	CurriedLabelNames []string
}

// PrometheusMetrics represents a Prometheus metrics for the cache.
type PrometheusMetrics struct {
	EntriesAmount    *prometheus.GaugeVec
	HitsTotal        *prometheus.CounterVec
	MissesTotal      *prometheus.CounterVec
	EvictionsTotal   *prometheus.CounterVec
	ExpirationsTotal *prometheus.CounterVec
}

var _ MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	newCounter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace, Name: name, Help: help, ConstLabels: opts.ConstLabels,
		}, opts.CurriedLabelNames)
	}
	return &PrometheusMetrics{
		EntriesAmount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "cache_entries_amount",
			Help:        "Total number of entries in the cache.",
			ConstLabels: opts.ConstLabels,
		}, opts.CurriedLabelNames),
		HitsTotal:        newCounter("cache_hits_total", "Number of successfully found keys in the cache."),
		MissesTotal:      newCounter("cache_misses_total", "Number of not found keys in the cache."),
		EvictionsTotal:   newCounter("cache_evictions_total", "Number of entries evicted because the cache was full."),
		ExpirationsTotal: newCounter("cache_expirations_total", "Number of entries removed because they expired."),
	}
}

// MustCurryWith curries the metrics collector with the provided labels.
func (pm *PrometheusMetrics) MustCurryWith(labels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{
		EntriesAmount:    pm.EntriesAmount.MustCurryWith(labels),
		HitsTotal:        pm.HitsTotal.MustCurryWith(labels),
		MissesTotal:      pm.MissesTotal.MustCurryWith(labels),
		EvictionsTotal:   pm.EvictionsTotal.MustCurryWith(labels),
		ExpirationsTotal: pm.ExpirationsTotal.MustCurryWith(labels),
	}
}

func (pm *PrometheusMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{pm.EntriesAmount, pm.HitsTotal, pm.MissesTotal, pm.EvictionsTotal, pm.ExpirationsTotal}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.collectors()...)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	for _, c := range pm.collectors() {
		prometheus.Unregister(c)
	}
}

// SetAmount sets the total number of entries in the cache.
func (pm *PrometheusMetrics) SetAmount(amount int) {
	pm.EntriesAmount.With(nil).Set(float64(amount))
}

// IncHits increments the total number of successfully found keys in the cache.
func (pm *PrometheusMetrics) IncHits() {
	pm.HitsTotal.With(nil).Inc()
}

// IncMisses increments the total number of not found keys in the cache.
func (pm *PrometheusMetrics) IncMisses() {
	pm.MissesTotal.With(nil).Inc()
}

// AddEvictions increments the total number of evicted entries.
func (pm *PrometheusMetrics) AddEvictions(n int) {
	pm.EvictionsTotal.With(nil).Add(float64(n))
}

// AddExpirations increments the total number of expired entries.
func (pm *PrometheusMetrics) AddExpirations(n int) {
	if n > 0 {
		pm.ExpirationsTotal.With(nil).Add(float64(n))
	}
}

type disabledMetrics struct{}

func (disabledMetrics) SetAmount(int)      {}
func (disabledMetrics) IncHits()           {}
func (disabledMetrics) IncMisses()         {}
func (disabledMetrics) AddEvictions(int)   {}
func (disabledMetrics) AddExpirations(int) {}
