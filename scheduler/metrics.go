/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import "github.com/prometheus/client_golang/prometheus"

const metricsLabelClient = "client"

// MetricsCollector represents a collector of metrics for a single client's admission controller.
type MetricsCollector interface {
	// AddAdmitted increments the total number of admitted requests.
	AddAdmitted(n int)

	// AddExpired increments the total number of expired requests.
	AddExpired(n int)

	// IncResets increments the total number of quota window resets.
	IncResets()

	// SetQueueDepth sets the number of requests waiting for admission.
	SetQueueDepth(n int)

	// SetWindowAdmitted sets the number of requests admitted in the current quota window.
	SetWindowAdmitted(n int)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// PrometheusMetrics represents Prometheus metrics for admission controllers.
// All metrics have the "client" label; use ForClient to get a collector bound to one client.
type PrometheusMetrics struct {
	AdmittedTotal  *prometheus.CounterVec
	ExpiredTotal   *prometheus.CounterVec
	ResetsTotal    *prometheus.CounterVec
	QueueDepth     *prometheus.GaugeVec
	WindowAdmitted *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	labelNames := []string{metricsLabelClient}

	admittedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "admission_admitted_requests_total",
			Help:        "Number of requests admitted for processing.",
			ConstLabels: opts.ConstLabels,
		},
		labelNames,
	)

	expiredTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "admission_expired_requests_total",
			Help:        "Number of requests dropped after waiting longer than the expiry timeout.",
			ConstLabels: opts.ConstLabels,
		},
		labelNames,
	)

	resetsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "admission_quota_resets_total",
			Help:        "Number of quota window resets.",
			ConstLabels: opts.ConstLabels,
		},
		labelNames,
	)

	queueDepth := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "admission_queue_depth",
			Help:        "Number of requests waiting for admission.",
			ConstLabels: opts.ConstLabels,
		},
		labelNames,
	)

	windowAdmitted := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "admission_window_admitted_requests",
			Help:        "Number of requests admitted in the current quota window.",
			ConstLabels: opts.ConstLabels,
		},
		labelNames,
	)

	return &PrometheusMetrics{
		AdmittedTotal:  admittedTotal,
		ExpiredTotal:   expiredTotal,
		ResetsTotal:    resetsTotal,
		QueueDepth:     queueDepth,
		WindowAdmitted: windowAdmitted,
	}
}

// MustCurryWith curries the metrics collector with the provided labels.
func (pm *PrometheusMetrics) MustCurryWith(labels prometheus.Labels) *PrometheusMetrics {
	return &PrometheusMetrics{
		AdmittedTotal:  pm.AdmittedTotal.MustCurryWith(labels),
		ExpiredTotal:   pm.ExpiredTotal.MustCurryWith(labels),
		ResetsTotal:    pm.ResetsTotal.MustCurryWith(labels),
		QueueDepth:     pm.QueueDepth.MustCurryWith(labels),
		WindowAdmitted: pm.WindowAdmitted.MustCurryWith(labels),
	}
}

// ForClient returns a collector whose metrics are labeled with the given client name.
func (pm *PrometheusMetrics) ForClient(clientName string) MetricsCollector {
	return pm.MustCurryWith(prometheus.Labels{metricsLabelClient: clientName})
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.AdmittedTotal,
		pm.ExpiredTotal,
		pm.ResetsTotal,
		pm.QueueDepth,
		pm.WindowAdmitted,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.AdmittedTotal)
	prometheus.Unregister(pm.ExpiredTotal)
	prometheus.Unregister(pm.ResetsTotal)
	prometheus.Unregister(pm.QueueDepth)
	prometheus.Unregister(pm.WindowAdmitted)
}

// MustRegisterMetrics implements service.MetricsRegisterer.
func (pm *PrometheusMetrics) MustRegisterMetrics() {
	pm.MustRegister()
}

// UnregisterMetrics implements service.MetricsRegisterer.
func (pm *PrometheusMetrics) UnregisterMetrics() {
	pm.Unregister()
}

// AddAdmitted increments the total number of admitted requests.
// The collector must be curried with the client label.
func (pm *PrometheusMetrics) AddAdmitted(n int) {
	pm.AdmittedTotal.With(nil).Add(float64(n))
}

// AddExpired increments the total number of expired requests.
func (pm *PrometheusMetrics) AddExpired(n int) {
	pm.ExpiredTotal.With(nil).Add(float64(n))
}

// IncResets increments the total number of quota window resets.
func (pm *PrometheusMetrics) IncResets() {
	pm.ResetsTotal.With(nil).Inc()
}

// SetQueueDepth sets the number of requests waiting for admission.
func (pm *PrometheusMetrics) SetQueueDepth(n int) {
	pm.QueueDepth.With(nil).Set(float64(n))
}

// SetWindowAdmitted sets the number of requests admitted in the current quota window.
func (pm *PrometheusMetrics) SetWindowAdmitted(n int) {
	pm.WindowAdmitted.With(nil).Set(float64(n))
}

type disabledMetrics struct{}

func (disabledMetrics) AddAdmitted(int)       {}
func (disabledMetrics) AddExpired(int)        {}
func (disabledMetrics) IncResets()            {}
func (disabledMetrics) SetQueueDepth(int)     {}
func (disabledMetrics) SetWindowAdmitted(int) {}

var disabledMetricsCollector MetricsCollector = disabledMetrics{}
