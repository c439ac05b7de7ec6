package types

import "time"

// EventKind classifies telemetry events.
type EventKind string

const (
	EventAgentState     EventKind = "agent_state"
	EventPositionOpened EventKind = "position_opened"
	EventPositionClosed EventKind = "position_closed"
	EventRiskDenied     EventKind = "risk_denied"
	EventEmergencyStop  EventKind = "emergency_stop"
	EventHealth         EventKind = "health"
)

// Event is published on every state transition worth telling a telemetry consumer about.
type Event struct {
	Kind       EventKind  `json:"kind" yaml:"kind"`
	Time       time.Time  `json:"time" yaml:"time"`
	AgentID    string     `json:"agent_id" yaml:"agent_id"`
	PositionID string     `json:"position_id,omitempty" yaml:"position_id,omitempty"`
	State      AgentState `json:"state,omitempty" yaml:"state,omitempty"`
	Reason     string     `json:"reason,omitempty" yaml:"reason,omitempty"`
	// Position carries a snapshot for position events.
	Position *Position `json:"position,omitempty" yaml:"position,omitempty"`
	// Health carries the record for health events.
	Health *HealthRecord `json:"health,omitempty" yaml:"health,omitempty"`
}
