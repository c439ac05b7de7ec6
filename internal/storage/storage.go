// Package storage persists agent records and positions so the fleet can be rebuilt after
// a restart.
package storage

import (
	"context"
	"time"

	"github.com/rxtech-lab/argo-fleet/internal/types"
)

// AgentRecord is the persisted form of one agent.
type AgentRecord struct {
	Config    types.AgentConfig  `json:"config" yaml:"config"`
	State     types.AgentState   `json:"state" yaml:"state"`
	Metrics   types.AgentMetrics `json:"metrics" yaml:"metrics"`
	UpdatedAt time.Time          `json:"updated_at" yaml:"updated_at"`
	// Err is set by LoadAgents when the stored record cannot be decoded. Config.ID is
	// still populated.
	Err error `json:"-" yaml:"-"`
}

// AgentStore persists agent records.
type AgentStore interface {
	// SaveAgent inserts or replaces the record keyed by record.Config.ID
	SaveAgent(ctx context.Context, record AgentRecord) error
	// DeleteAgent removes the record. Deleting an unknown id is not an error
	DeleteAgent(ctx context.Context, id string) error
	// LoadAgents returns every stored record, including undecodable ones with Err set
	LoadAgents(ctx context.Context) ([]AgentRecord, error)
}

// PositionStore persists positions.
type PositionStore interface {
	// SavePosition inserts or replaces the position keyed by ID
	SavePosition(ctx context.Context, position types.Position) error
	// LoadActivePositions returns every position that is not CLOSED
	LoadActivePositions(ctx context.Context) ([]types.Position, error)
	// QueryClosedPositions returns closed positions newest first. An empty agentID means every agent
	QueryClosedPositions(ctx context.Context, agentID string, filter types.PositionFilter) ([]types.Position, error)
}

// Store is the full persistence surface.
type Store interface {
	AgentStore
	PositionStore
	Close() error
}
