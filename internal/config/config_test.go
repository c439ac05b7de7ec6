package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-fleet/internal/marketdata"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type ConfigTestSuite struct {
	suite.Suite
	dir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	suite.dir = suite.T().TempDir()
}

func (suite *ConfigTestSuite) write(content string) string {
	path := filepath.Join(suite.dir, "fleet.yaml")
	suite.Require().NoError(os.WriteFile(path, []byte(content), 0o644))

	return path
}

const sample = `
log:
  level: debug
storage:
  path: /tmp/fleet-test.duckdb
fleet:
  max_agents: 2
  health_interval: 10s
  agent:
    min_confidence: 0.7
    stop_grace: 2s
risk:
  rolling_loss_threshold: 25
market_data:
  provider: synthetic
  seed: 7
agents:
  - name: btc-breakout
    venue: paper
    symbol: BTCUSDT
    strategy: breakout
    max_stake: 50
    budget: 150
    max_leverage: 2
    max_duration: 2h
    stop_loss_pct: 0.05
    take_profit_pct: 0.1
    interval: 1m
    strategy_params:
      channel_period: 20
`

func (suite *ConfigTestSuite) TestLoadFile() {
	cfg, err := Load(suite.write(sample))
	suite.Require().NoError(err)

	suite.Equal("debug", cfg.Log.Level)
	suite.Equal("/tmp/fleet-test.duckdb", cfg.Storage.Path)
	suite.Equal(2, cfg.Fleet.MaxAgents)
	suite.Equal(10*time.Second, cfg.Fleet.HealthInterval)
	suite.Equal(0.7, cfg.Fleet.Agent.MinConfidence)
	suite.Equal(2*time.Second, cfg.Fleet.Agent.StopGrace)
	suite.Equal(25.0, cfg.Risk.RollingLossThreshold)
	suite.Equal(int64(7), cfg.MarketData.Seed)

	// untouched keys keep their defaults
	suite.Equal(5*time.Minute, cfg.Fleet.StaleAfter)
	suite.Equal(24*time.Hour, cfg.Risk.RollingWindow)
	suite.Equal(10000.0, cfg.Paper.InitialBalance)
	suite.Equal(":9090", cfg.Metrics.Listen)

	suite.Require().Len(cfg.Agents, 1)
	agent := cfg.Agents[0]
	suite.Equal("btc-breakout", agent.Name)
	suite.Equal(types.StrategyBreakout, agent.Strategy)
	suite.Equal(150.0, agent.Budget)
	suite.Equal(2*time.Hour, agent.MaxDuration)
	suite.EqualValues(20, agent.StrategyParams["channel_period"])
}

func (suite *ConfigTestSuite) TestEnvironmentOverrides() {
	suite.T().Setenv("FLEET_STORAGE_PATH", ":memory:")
	suite.T().Setenv("FLEET_FLEET_MAX_AGENTS", "1")
	suite.T().Setenv("FLEET_MARKET_DATA_PROVIDER", "binance")

	cfg, err := Load(suite.write(sample))
	suite.Require().NoError(err)
	suite.Equal(":memory:", cfg.Storage.Path)
	suite.Equal(1, cfg.Fleet.MaxAgents)
	suite.Equal(marketdata.ProviderBinance, cfg.MarketData.Provider)
}

func (suite *ConfigTestSuite) TestMissingExplicitFile() {
	_, err := Load(filepath.Join(suite.dir, "nope.yaml"))
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfig))
}

func (suite *ConfigTestSuite) TestDefaultsWithoutFile() {
	wd, err := os.Getwd()
	suite.Require().NoError(err)
	suite.Require().NoError(os.Chdir(suite.dir))
	defer func() { suite.NoError(os.Chdir(wd)) }()

	cfg, err := Load("")
	suite.Require().NoError(err)
	suite.Equal(Default().Storage.Path, cfg.Storage.Path)
	suite.Equal(3, cfg.Fleet.MaxAgents)
	suite.Empty(cfg.Agents)
}

func (suite *ConfigTestSuite) TestDotEnvFeedsOverrides() {
	wd, err := os.Getwd()
	suite.Require().NoError(err)
	suite.Require().NoError(os.Chdir(suite.dir))
	defer func() { suite.NoError(os.Chdir(wd)) }()

	suite.Require().NoError(os.WriteFile(".env", []byte("FLEET_REPORT_PATH=out/status.yaml\n"), 0o644))
	defer os.Unsetenv("FLEET_REPORT_PATH")

	cfg, err := Load("")
	suite.Require().NoError(err)
	suite.Equal("out/status.yaml", cfg.Report.Path)
}

func (suite *ConfigTestSuite) TestValidate() {
	agent := types.AgentConfig{
		Name:     "a",
		Venue:    VenuePaper,
		Symbol:   "BTCUSDT",
		Strategy: types.StrategyBreakout,
		MaxStake: 10,
		Interval: "1m",
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		code   errors.ErrorCode
	}{
		{
			name:   "default is valid",
			mutate: func(c *Config) {},
		},
		{
			name:   "duplicate agent names",
			mutate: func(c *Config) { c.Agents = []types.AgentConfig{agent, agent} },
			code:   errors.ErrCodeDuplicateName,
		},
		{
			name: "unknown venue",
			mutate: func(c *Config) {
				a := agent
				a.Venue = "kraken"
				c.Agents = []types.AgentConfig{a}
			},
			code: errors.ErrCodeUnsupportedVenue,
		},
		{
			name: "testnet venue without credentials",
			mutate: func(c *Config) {
				a := agent
				a.Venue = VenueBinanceTestnet
				c.Agents = []types.AgentConfig{a}
			},
			code: errors.ErrCodeUnsupportedVenue,
		},
		{
			name: "invalid agent",
			mutate: func(c *Config) {
				a := agent
				a.MaxStake = 0
				c.Agents = []types.AgentConfig{a}
			},
			code: errors.ErrCodeInvalidConfig,
		},
		{
			name:   "empty storage path",
			mutate: func(c *Config) { c.Storage.Path = "" },
			code:   errors.ErrCodeInvalidConfig,
		},
		{
			name:   "unknown provider",
			mutate: func(c *Config) { c.MarketData.Provider = "reuters" },
			code:   errors.ErrCodeInvalidConfig,
		},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			cfg := Default()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if tc.code == 0 {
				suite.NoError(err)

				return
			}

			suite.True(errors.HasCode(err, tc.code), "got %v", err)
		})
	}
}

func (suite *ConfigTestSuite) TestSchema() {
	schema, err := Schema()
	suite.Require().NoError(err)
	suite.Contains(schema, "max_agents")
	suite.Contains(schema, "rolling_loss_threshold")
	suite.Contains(schema, "strategy_params")
}
