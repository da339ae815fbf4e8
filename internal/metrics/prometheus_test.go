package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector(t *testing.T) {
	pc := NewPrometheusCollector("payportal")
	registry := prometheus.NewRegistry()
	require.NoError(t, pc.Register(registry))

	pc.RecordDecision("payment", "Approved", 3*time.Millisecond)
	pc.RecordDecision("payment", "Approved", 5*time.Millisecond)
	pc.RecordDecision("transaction", "Rejected", time.Millisecond)
	pc.RecordRequest("GET", "/health", 200, time.Millisecond)
	pc.RecordPublish(false)
	pc.RecordCircuitState("decisions", CircuitOpen)

	assert.Equal(t, 2.0, testutil.ToFloat64(pc.decisions.WithLabelValues("payment", "Approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pc.decisions.WithLabelValues("transaction", "Rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pc.requests.WithLabelValues("GET", "/health", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pc.published.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pc.circuitState.WithLabelValues("decisions")))

	families, err := registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "payportal_decisions_total")
	assert.Contains(t, names, "payportal_decision_duration_seconds")
	assert.Contains(t, names, "payportal_http_requests_total")
	assert.Contains(t, names, "payportal_http_request_duration_seconds")
}

func TestRegisterTwiceFails(t *testing.T) {
	registry := prometheus.NewRegistry()
	require.NoError(t, NewPrometheusCollector("payportal").Register(registry))
	assert.Error(t, NewPrometheusCollector("payportal").Register(registry))
}

func TestCircuitStateString(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(9).String())
}
