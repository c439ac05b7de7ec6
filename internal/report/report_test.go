package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-fleet/internal/orchestrator"
	"github.com/rxtech-lab/argo-fleet/internal/risk"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type ReportTestSuite struct {
	suite.Suite
	dir string
	now time.Time
}

func TestReportSuite(t *testing.T) {
	suite.Run(t, new(ReportTestSuite))
}

func (suite *ReportTestSuite) SetupTest() {
	suite.dir = suite.T().TempDir()
	suite.now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func snapshot(id, name string, state types.AgentState) orchestrator.Snapshot {
	return orchestrator.Snapshot{
		Config: types.AgentConfig{
			ID:       id,
			Name:     name,
			Venue:    "paper",
			Symbol:   "BTCUSDT",
			Strategy: types.StrategyBreakout,
		},
		State:   state,
		Metrics: types.AgentMetrics{TotalTrades: 2, Wins: 1, Losses: 1, RealizedPnL: 1.5},
	}
}

func (suite *ReportTestSuite) TestBuildJoinsHealthAndRisk() {
	agents := []orchestrator.Snapshot{
		snapshot("b", "beta", types.AgentStateStopped),
		snapshot("a", "alpha", types.AgentStateRunning),
	}
	agents[1].Positions = []types.Position{{ID: "p1", AgentID: "a", Stake: 40, Status: types.PositionStatusMonitoring}}

	health := []types.HealthRecord{
		{AgentID: "a", Healthy: false, Issues: []string{"no tick for 5m0s"}},
	}

	riskSnap := risk.Snapshot{
		Agents: []risk.AgentSnapshot{
			{AgentID: "a", Exposure: 40, Score: 0.3},
			{AgentID: "b", Halted: true},
		},
		TotalExposure: 40,
	}

	status := Build(suite.now, 3, agents, health, riskSnap)

	suite.Equal(suite.now, status.GeneratedAt)
	suite.Equal(1, status.LiveAgents)
	suite.Equal(3, status.MaxAgents)
	suite.Equal(40.0, status.TotalExposure)
	suite.Require().Len(status.Agents, 2)

	alpha := status.Agents[0]
	suite.Equal("alpha", alpha.Name)
	suite.False(alpha.Healthy)
	suite.Equal([]string{"no tick for 5m0s"}, alpha.Issues)
	suite.Equal(40.0, alpha.Exposure)
	suite.Equal(0.3, alpha.RiskScore)
	suite.Len(alpha.OpenPositions, 1)

	beta := status.Agents[1]
	suite.True(beta.Healthy)
	suite.True(beta.Halted)
	suite.NotNil(beta.OpenPositions)
}

func (suite *ReportTestSuite) TestWriteAndRead() {
	path := filepath.Join(suite.dir, "reports", "status.yaml")
	w := NewWriter(Config{Path: path}, nil)
	suite.True(w.Enabled())

	status := Build(suite.now, 3, []orchestrator.Snapshot{snapshot("a", "alpha", types.AgentStateRunning)}, nil, risk.Snapshot{})
	suite.Require().NoError(w.Write(status))

	got, err := Read(path)
	suite.Require().NoError(err)
	suite.True(suite.now.Equal(got.GeneratedAt))
	suite.Require().Len(got.Agents, 1)
	suite.Equal("alpha", got.Agents[0].Name)
	suite.Equal(types.AgentStateRunning, got.Agents[0].State)
	suite.Equal(1.5, got.Agents[0].Metrics.RealizedPnL)

	_, err = os.Stat(path + ".tmp")
	suite.True(os.IsNotExist(err))
}

func (suite *ReportTestSuite) TestDisabledWriterIsNoop() {
	w := NewWriter(Config{}, nil)
	suite.False(w.Enabled())
	suite.NoError(w.Write(Status{}))
}

func (suite *ReportTestSuite) TestReadCorrupt() {
	path := filepath.Join(suite.dir, "status.yaml")
	suite.Require().NoError(os.WriteFile(path, []byte("agents: [unterminated"), 0o644))

	_, err := Read(path)
	suite.True(errors.HasCode(err, errors.ErrCodeRecordCorrupt))
}
