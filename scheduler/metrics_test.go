/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-admission/testutil"
)

func TestPrometheusMetrics(t *testing.T) {
	metrics := NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{
		Namespace:   "gateway",
		ConstLabels: prometheus.Labels{"region": "eu"},
	})
	murli := metrics.ForClient("Murli")
	sam := metrics.ForClient("Sam")

	murli.AddAdmitted(2)
	murli.AddExpired(1)
	murli.IncResets()
	murli.SetQueueDepth(7)
	murli.SetWindowAdmitted(2)
	sam.AddAdmitted(5)

	testutil.RequireSamplesCountInCounter(t, metrics.AdmittedTotal.WithLabelValues("Murli"), 2)
	testutil.RequireSamplesCountInCounter(t, metrics.AdmittedTotal.WithLabelValues("Sam"), 5)
	testutil.RequireSamplesCountInCounter(t, metrics.ExpiredTotal.WithLabelValues("Murli"), 1)
	testutil.RequireSamplesCountInCounter(t, metrics.ResetsTotal.WithLabelValues("Murli"), 1)
	testutil.RequireGaugeValue(t, metrics.QueueDepth.WithLabelValues("Murli"), 7)
	testutil.RequireGaugeValue(t, metrics.WindowAdmitted.WithLabelValues("Murli"), 2)

	require.NotPanics(t, metrics.MustRegisterMetrics)
	require.Panics(t, metrics.MustRegister)
	metrics.UnregisterMetrics()
}
