package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetAgentStates(map[types.AgentState]int{types.AgentStateRunning: 2, types.AgentStateIdle: 1})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AgentStates.WithLabelValues("RUNNING")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.AgentStates.WithLabelValues("ERROR")))

	m.RiskDecision("a", true)
	m.RiskDecision("a", false)
	m.RiskDecision("a", false)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RiskDecisions.WithLabelValues("a", "denied")))

	m.PositionOpened()
	m.PositionOpened()
	m.PositionClosed(types.CloseReasonStopLoss)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PositionsOpen))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PositionsClosed.WithLabelValues("stop_loss")))

	m.SetExposure("a", 95)
	assert.Equal(t, 95.0, testutil.ToFloat64(m.Exposure.WithLabelValues("a")))

	count, err := testutil.GatherAndCount(reg, "fleet_risk_exposure")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)

	m.ForgetAgent("a")
	count, err = testutil.GatherAndCount(reg, "fleet_risk_exposure")
	assert.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Tick("a")
		m.TickError("a", "fatal")
		m.Signal("a", types.SignalActionBuy)
		m.Order("a", "filled")
		m.EmergencyStop()
		m.PositionClosed(types.CloseReasonManual)
		m.SetHealthy(1)
		m.PersistFailure()
		m.ForgetAgent("a")
	})
}
