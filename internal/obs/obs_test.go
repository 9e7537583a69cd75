package obs

import (
	"testing"

	"github.com/ploston/dael/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerAppliesConfiguredLevel(t *testing.T) {
	logger := NewLogger(config.LoggingConfig{Level: "warn"})
	assert.Equal(t, "warn", logger.GetLevel().String())
}

func TestParseLevelDefaultsToInfoForUnknownValue(t *testing.T) {
	assert.Equal(t, "info", parseLevel("not-a-level").String())
}

func TestComponentLoggerAppliesOverride(t *testing.T) {
	base := NewLogger(config.LoggingConfig{Level: "info"})
	cfg := config.LoggingConfig{Level: "info", Components: map[string]string{"engine": "debug"}}

	engineLogger := ComponentLogger(base, cfg, "engine")
	assert.Equal(t, "debug", engineLogger.GetLevel().String())

	otherLogger := ComponentLogger(base, cfg, "sandbox")
	assert.Equal(t, "info", otherLogger.GetLevel().String())
}

func TestObserveExecutionIncrementsCounterAndHistogram(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.ObserveExecution("greet", "completed", 0.25)

	families, err := registry.Gather()
	require.NoError(t, err)
	assert.Equal(t, 1.0, counterValue(t, families, "dael_executions_total"))
}

func TestObserveToolCallRecordsRetries(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.ObserveToolCall("echo", "completed", 2, 0.01)

	families, err := registry.Gather()
	require.NoError(t, err)
	assert.Equal(t, 2.0, counterValue(t, families, "dael_tool_call_retries_total"))
}

func counterValue(t *testing.T, families []*dto.MetricFamily, name string) float64 {
	t.Helper()
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		var total float64
		for _, metric := range family.Metric {
			if metric.Counter != nil {
				total += metric.Counter.GetValue()
			}
		}
		return total
	}
	t.Fatalf("metric family %s not found", name)
	return 0
}
