package storage

import (
	"context"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/internal/version"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type DuckDBTestSuite struct {
	suite.Suite
	ctx   context.Context
	store *DuckDB
	base  time.Time
}

func TestDuckDBSuite(t *testing.T) {
	suite.Run(t, new(DuckDBTestSuite))
}

func (suite *DuckDBTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.base = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	store, err := Open(suite.ctx, "", nil)
	suite.Require().NoError(err)
	suite.store = store
}

func (suite *DuckDBTestSuite) TearDownTest() {
	suite.NoError(suite.store.Close())
}

func agentRecord(id, name string, state types.AgentState) AgentRecord {
	return AgentRecord{
		Config: types.AgentConfig{
			ID:       id,
			Name:     name,
			Venue:    "paper",
			Symbol:   "BTCUSDT",
			Strategy: types.StrategyBreakout,
			StrategyParams: map[string]any{
				"channel_period": float64(10),
			},
			MaxStake:    50,
			Budget:      100,
			MaxLeverage: 2,
			Interval:    "1m",
		},
		State:   state,
		Metrics: types.AgentMetrics{TotalTrades: 3, Wins: 2, Losses: 1, RealizedPnL: 4.5, WinRate: 2.0 / 3},
	}
}

func (suite *DuckDBTestSuite) TestSchemaVersionRecorded() {
	v, err := suite.store.SchemaVersion(suite.ctx)
	suite.NoError(err)
	suite.Equal(version.SchemaVersion, v)
}

func (suite *DuckDBTestSuite) TestRejectsNewerSchema() {
	suite.Require().NoError(suite.store.setSchemaVersion(suite.ctx, "9.0.0"))

	err := suite.store.initialize(suite.ctx)
	suite.True(errors.HasCode(err, errors.ErrCodeSchemaVersion))
}

func (suite *DuckDBTestSuite) TestMigratesOlderSchema() {
	suite.Require().NoError(suite.store.setSchemaVersion(suite.ctx, "1.0.0"))
	suite.Require().NoError(suite.store.initialize(suite.ctx))

	v, err := suite.store.SchemaVersion(suite.ctx)
	suite.NoError(err)
	suite.Equal(version.SchemaVersion, v)
}

func (suite *DuckDBTestSuite) TestAgentRoundTrip() {
	record := agentRecord("a-1", "alpha", types.AgentStateIdle)
	suite.NoError(suite.store.SaveAgent(suite.ctx, record))

	record.State = types.AgentStateStopped
	record.Metrics.TotalTrades = 4
	suite.NoError(suite.store.SaveAgent(suite.ctx, record))
	suite.NoError(suite.store.SaveAgent(suite.ctx, agentRecord("b-1", "beta", types.AgentStateRunning)))

	records, err := suite.store.LoadAgents(suite.ctx)
	suite.NoError(err)
	suite.Len(records, 2)

	alpha := records[0]
	suite.NoError(alpha.Err)
	suite.Equal("a-1", alpha.Config.ID)
	suite.Equal("alpha", alpha.Config.Name)
	suite.Equal(types.AgentStateStopped, alpha.State)
	suite.Equal(4, alpha.Metrics.TotalTrades)
	suite.Equal(4.5, alpha.Metrics.RealizedPnL)
	suite.Equal(float64(10), alpha.Config.StrategyParams["channel_period"])
	suite.False(alpha.UpdatedAt.IsZero())

	suite.NoError(suite.store.DeleteAgent(suite.ctx, "a-1"))
	suite.NoError(suite.store.DeleteAgent(suite.ctx, "missing"))

	records, err = suite.store.LoadAgents(suite.ctx)
	suite.NoError(err)
	suite.Len(records, 1)
	suite.Equal("beta", records[0].Config.Name)
}

func (suite *DuckDBTestSuite) TestSaveAgentWithoutID() {
	err := suite.store.SaveAgent(suite.ctx, AgentRecord{})
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (suite *DuckDBTestSuite) TestCorruptAgentIsReported() {
	suite.NoError(suite.store.SaveAgent(suite.ctx, agentRecord("a-1", "alpha", types.AgentStateIdle)))

	_, err := suite.store.db.ExecContext(suite.ctx,
		`INSERT INTO agents (id, name, config, state, metrics, updated_at) VALUES ('bad', 'broken', '{', 'IDLE', '{}', NULL)`)
	suite.Require().NoError(err)

	records, err := suite.store.LoadAgents(suite.ctx)
	suite.NoError(err)
	suite.Len(records, 2)

	broken := records[1]
	suite.Equal("bad", broken.Config.ID)
	suite.True(errors.HasCode(broken.Err, errors.ErrCodeRecordCorrupt))
	suite.NoError(records[0].Err)
}

func (suite *DuckDBTestSuite) closed(id, agentID string, pnl float64, closedAt time.Time) types.Position {
	return types.Position{
		ID:          id,
		AgentID:     agentID,
		Symbol:      "BTCUSDT",
		Side:        types.PositionTypeLong,
		EntryPrice:  100,
		Size:        1,
		Stake:       100,
		Leverage:    1,
		Status:      types.PositionStatusClosed,
		OpenedAt:    closedAt.Add(-time.Hour),
		ExitPrice:   100 + pnl,
		RealizedPnL: pnl,
		CloseReason: types.CloseReasonTakeProfit,
		ClosedAt:    closedAt,
	}
}

func (suite *DuckDBTestSuite) seedPositions() {
	positions := []types.Position{
		suite.closed("p1", "a", 5, suite.base.Add(1*time.Hour)),
		suite.closed("p2", "a", -3, suite.base.Add(2*time.Hour)),
		suite.closed("p3", "a", 7, suite.base.Add(3*time.Hour)),
		suite.closed("p4", "b", 1, suite.base.Add(4*time.Hour)),
		{
			ID:         "p5",
			AgentID:    "a",
			Symbol:     "BTCUSDT",
			Side:       types.PositionTypeShort,
			EntryPrice: 100,
			Size:       1,
			Stake:      100,
			Leverage:   1,
			StopLoss:   105,
			Status:     types.PositionStatusMonitoring,
			OpenedAt:   suite.base.Add(5 * time.Hour),
		},
	}

	for _, p := range positions {
		suite.Require().NoError(suite.store.SavePosition(suite.ctx, p))
	}
}

func ids(positions []types.Position) []string {
	out := make([]string, len(positions))
	for i, p := range positions {
		out[i] = p.ID
	}

	return out
}

func (suite *DuckDBTestSuite) TestLoadActivePositions() {
	suite.seedPositions()

	active, err := suite.store.LoadActivePositions(suite.ctx)
	suite.NoError(err)
	suite.Len(active, 1)
	suite.Equal("p5", active[0].ID)
	suite.Equal(types.PositionTypeShort, active[0].Side)
	suite.Equal(105.0, active[0].StopLoss)
	suite.True(active[0].ClosedAt.IsZero())
}

func (suite *DuckDBTestSuite) TestQueryClosedPositions() {
	suite.seedPositions()

	tests := []struct {
		name    string
		agentID string
		filter  types.PositionFilter
		want    []string
	}{
		{name: "all agents newest first", want: []string{"p4", "p3", "p2", "p1"}},
		{name: "one agent", agentID: "a", want: []string{"p3", "p2", "p1"}},
		{name: "wins", agentID: "a", filter: types.PositionFilter{Outcome: types.PositionOutcomeWin}, want: []string{"p3", "p1"}},
		{name: "losses", agentID: "a", filter: types.PositionFilter{Outcome: types.PositionOutcomeLoss}, want: []string{"p2"}},
		{
			name:    "time range",
			agentID: "a",
			filter:  types.PositionFilter{From: suite.base.Add(2 * time.Hour), To: suite.base.Add(3 * time.Hour)},
			want:    []string{"p2"},
		},
		{name: "page", agentID: "a", filter: types.PositionFilter{Limit: 1, Offset: 1}, want: []string{"p2"}},
		{name: "symbol", filter: types.PositionFilter{Symbol: "ETHUSDT"}, want: []string{}},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			got, err := suite.store.QueryClosedPositions(suite.ctx, tt.agentID, tt.filter)
			suite.NoError(err)
			suite.Equal(tt.want, ids(got))
		})
	}

	_, err := suite.store.QueryClosedPositions(suite.ctx, "a", types.PositionFilter{Outcome: "draw"})
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (suite *DuckDBTestSuite) TestSavePositionReplaces() {
	p := suite.closed("p1", "a", 0, time.Time{})
	p.Status = types.PositionStatusMonitoring
	suite.NoError(suite.store.SavePosition(suite.ctx, p))

	p.Status = types.PositionStatusClosed
	p.RealizedPnL = 2
	p.ClosedAt = suite.base
	suite.NoError(suite.store.SavePosition(suite.ctx, p))

	active, err := suite.store.LoadActivePositions(suite.ctx)
	suite.NoError(err)
	suite.Empty(active)

	closed, err := suite.store.QueryClosedPositions(suite.ctx, "a", types.PositionFilter{})
	suite.NoError(err)
	suite.Len(closed, 1)
	suite.Equal(2.0, closed[0].RealizedPnL)
	suite.True(suite.base.Equal(closed[0].ClosedAt))
}
