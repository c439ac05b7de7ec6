package types

import "time"

// HealthRecord is derived on every health sweep and never persisted.
type HealthRecord struct {
	AgentID   string     `json:"agent_id" yaml:"agent_id"`
	Name      string     `json:"name" yaml:"name"`
	State     AgentState `json:"state" yaml:"state"`
	Healthy   bool       `json:"healthy" yaml:"healthy"`
	CheckedAt time.Time  `json:"checked_at" yaml:"checked_at"`
	Issues    []string   `json:"issues" yaml:"issues"`
}
