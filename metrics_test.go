package idtoken

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetricsWithRegisterer(registry)

	metrics.IncCounter("test_checks_total", map[string]string{"result": "ok"})
	metrics.IncCounter("test_checks_total", map[string]string{"result": "ok"})
	metrics.ObserveHistogram("test_duration_seconds", 0.25, map[string]string{"result": "ok"})
	metrics.SetGauge("test_cached_keys", 3, nil)

	families, err := registry.Gather()
	require.NoError(t, err)

	byName := make(map[string]float64)
	for _, family := range families {
		switch family.GetName() {
		case "test_checks_total":
			byName[family.GetName()] = family.GetMetric()[0].GetCounter().GetValue()
		case "test_cached_keys":
			byName[family.GetName()] = family.GetMetric()[0].GetGauge().GetValue()
		case "test_duration_seconds":
			byName[family.GetName()] = float64(family.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}

	assert.Equal(t, float64(2), byName["test_checks_total"])
	assert.Equal(t, float64(3), byName["test_cached_keys"])
	assert.Equal(t, float64(1), byName["test_duration_seconds"])
}

func TestNoopMetricsDoesNothing(t *testing.T) {
	var m Metrics = &NoopMetrics{}
	m.IncCounter("x", nil)
	m.ObserveHistogram("x", 1, nil)
	m.SetGauge("x", 1, nil)
}
