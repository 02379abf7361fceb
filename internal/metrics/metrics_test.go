package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveAggregation("ok", 120*time.Millisecond)
	m.ObserveAggregation("ok", 80*time.Millisecond)
	m.ObserveAggregation("invalid", 0)
	m.Contribution("pca_input", true)
	m.Contribution("direct_input", false)
	m.Failure("graph_query", "direct_input")
	m.HistoryWrite(true)
	m.HistoryWrite(false)
	m.ObserveHTTP("/report/generateReport", "GET", 200, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.aggregations.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.aggregations.WithLabelValues("invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.contributions.WithLabelValues("pca_input", "counted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.contributions.WithLabelValues("direct_input", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("graph_query", "direct_input")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.historyWrites.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/report/generateReport", "GET", "200")))

	n, err := testutil.GatherAndCount(reg, "esg_scoring_aggregation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAggregation("ok", time.Second)
		m.Contribution("pca_input", true)
		m.Failure("recording", "")
		m.HistoryWrite(true)
		m.ObserveHTTP("/health", "GET", 200, time.Millisecond)
	})
}
