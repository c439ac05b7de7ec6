// Package metrics exposes fleet counters and gauges to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rxtech-lab/argo-fleet/internal/types"
)

const namespace = "fleet"

// Metrics holds the fleet collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	AgentStates     *prometheus.GaugeVec
	Ticks           *prometheus.CounterVec
	TickErrors      *prometheus.CounterVec
	Signals         *prometheus.CounterVec
	Orders          *prometheus.CounterVec
	RiskDecisions   *prometheus.CounterVec
	Exposure        *prometheus.GaugeVec
	RiskScore       *prometheus.GaugeVec
	EmergencyStops  prometheus.Counter
	PositionsOpen   prometheus.Gauge
	PositionsClosed *prometheus.CounterVec
	RealizedPnL     *prometheus.GaugeVec
	HealthyAgents   prometheus.Gauge
	PersistFailures prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg skips registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AgentStates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "agents", Help: "Agents by lifecycle state",
		}, []string{"state"}),
		Ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total", Help: "Completed agent ticks",
		}, []string{"agent"}),
		TickErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tick_errors_total", Help: "Agent ticks that ended in an error",
		}, []string{"agent", "kind"}),
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "signals_total", Help: "Strategy signals by action",
		}, []string{"agent", "action"}),
		Orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_total", Help: "Orders handed to a venue by result",
		}, []string{"agent", "result"}),
		RiskDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "risk_decisions_total", Help: "Risk gate decisions",
		}, []string{"agent", "decision"}),
		Exposure: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "risk_exposure", Help: "Reserved exposure per agent",
		}, []string{"agent"}),
		RiskScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "risk_score", Help: "Advisory risk score per agent in [0,1]",
		}, []string{"agent"}),
		EmergencyStops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "emergency_stops_total", Help: "Emergency stops triggered",
		}),
		PositionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "positions_open", Help: "Positions not yet closed",
		}),
		PositionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "positions_closed_total", Help: "Closed positions by reason",
		}, []string{"reason"}),
		RealizedPnL: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "realized_pnl", Help: "Realized profit and loss per agent",
		}, []string{"agent"}),
		HealthyAgents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "healthy_agents", Help: "Agents healthy at the last sweep",
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "persist_failures_total", Help: "Failed writes to the store",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.AgentStates, m.Ticks, m.TickErrors, m.Signals, m.Orders, m.RiskDecisions,
			m.Exposure, m.RiskScore, m.EmergencyStops, m.PositionsOpen, m.PositionsClosed,
			m.RealizedPnL, m.HealthyAgents, m.PersistFailures,
		)
	}

	return m
}

// SetAgentStates replaces the per-state agent gauge.
func (m *Metrics) SetAgentStates(counts map[types.AgentState]int) {
	if m == nil {
		return
	}

	for _, state := range []types.AgentState{
		types.AgentStateIdle, types.AgentStateStarting, types.AgentStateRunning, types.AgentStatePaused,
		types.AgentStateStopping, types.AgentStateStopped, types.AgentStateError,
	} {
		m.AgentStates.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}

func (m *Metrics) Tick(agentID string) {
	if m == nil {
		return
	}

	m.Ticks.WithLabelValues(agentID).Inc()
}

func (m *Metrics) TickError(agentID string, kind string) {
	if m == nil {
		return
	}

	m.TickErrors.WithLabelValues(agentID, kind).Inc()
}

func (m *Metrics) Signal(agentID string, action types.SignalAction) {
	if m == nil {
		return
	}

	m.Signals.WithLabelValues(agentID, string(action)).Inc()
}

func (m *Metrics) Order(agentID string, result string) {
	if m == nil {
		return
	}

	m.Orders.WithLabelValues(agentID, result).Inc()
}

func (m *Metrics) RiskDecision(agentID string, approved bool) {
	if m == nil {
		return
	}

	decision := "denied"
	if approved {
		decision = "approved"
	}

	m.RiskDecisions.WithLabelValues(agentID, decision).Inc()
}

func (m *Metrics) SetExposure(agentID string, exposure float64) {
	if m == nil {
		return
	}

	m.Exposure.WithLabelValues(agentID).Set(exposure)
}

func (m *Metrics) SetRiskScore(agentID string, score float64) {
	if m == nil {
		return
	}

	m.RiskScore.WithLabelValues(agentID).Set(score)
}

func (m *Metrics) EmergencyStop() {
	if m == nil {
		return
	}

	m.EmergencyStops.Inc()
}

func (m *Metrics) PositionOpened() {
	if m == nil {
		return
	}

	m.PositionsOpen.Inc()
}

func (m *Metrics) PositionClosed(reason types.CloseReason) {
	if m == nil {
		return
	}

	m.PositionsOpen.Dec()
	m.PositionsClosed.WithLabelValues(string(reason)).Inc()
}

// SetOpenPositions resets the open gauge, used after recovery.
func (m *Metrics) SetOpenPositions(n int) {
	if m == nil {
		return
	}

	m.PositionsOpen.Set(float64(n))
}

func (m *Metrics) SetRealizedPnL(agentID string, pnl float64) {
	if m == nil {
		return
	}

	m.RealizedPnL.WithLabelValues(agentID).Set(pnl)
}

func (m *Metrics) SetHealthy(n int) {
	if m == nil {
		return
	}

	m.HealthyAgents.Set(float64(n))
}

func (m *Metrics) PersistFailure() {
	if m == nil {
		return
	}

	m.PersistFailures.Inc()
}

// ForgetAgent drops the per-agent series of a deleted agent.
func (m *Metrics) ForgetAgent(agentID string) {
	if m == nil {
		return
	}

	m.Exposure.DeleteLabelValues(agentID)
	m.RiskScore.DeleteLabelValues(agentID)
	m.RealizedPnL.DeleteLabelValues(agentID)
	m.Ticks.DeleteLabelValues(agentID)
}
