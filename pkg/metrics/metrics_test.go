package metrics_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/metrics"
)

func TestCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.AccessDecision("seats", metrics.OutcomeAllowed)
	m.AccessDecision("seats", metrics.OutcomeAllowed)
	m.AccessDecision("seats", metrics.OutcomeQuotaExceeded)
	m.UsageTracked("api_calls", "increment", 5)
	m.UsageTracked("api_calls", "increment", 0)
	m.ThresholdAlert("api_calls", 80)
	m.Transition("pause", "active", "paused")
	m.PlanLookup(true)
	m.PlanLookup(false)
	m.Intent("usage.threshold_crossed", "dropped")
	m.QueueLength(3)

	expected := `
# HELP billingkit_gate_decisions_total Feature access decisions by feature and outcome.
# TYPE billingkit_gate_decisions_total counter
billingkit_gate_decisions_total{feature="seats",outcome="allowed"} 2
billingkit_gate_decisions_total{feature="seats",outcome="quota_exceeded"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "billingkit_gate_decisions_total"))

	count, err := testutil.GatherAndCount(reg, "billingkit_entitlement_plan_lookups_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	expectedUsage := `
# HELP billingkit_metering_usage_units_total Usage units applied to counters by feature and operation kind.
# TYPE billingkit_metering_usage_units_total counter
billingkit_metering_usage_units_total{feature="api_calls",kind="increment"} 5
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expectedUsage), "billingkit_metering_usage_units_total"))
}

func TestNilCollectorIsNoop(t *testing.T) {
	t.Parallel()

	var m *metrics.Collector
	assert.NotPanics(t, func() {
		m.AccessDecision("x", metrics.OutcomeAllowed)
		m.UsageTracked("x", "increment", 1)
		m.UsageRejected("x")
		m.ThresholdAlert("x", 80)
		m.Transition("a", "b", "c")
		m.TransitionError("a", "b")
		m.RetentionOffer("created", "percent_discount")
		m.PlanLookup(true)
		m.Intent("k", "ok")
		m.QueueLength(1)
	})
}
