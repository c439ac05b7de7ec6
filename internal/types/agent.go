package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
	"github.com/shopspring/decimal"
)

// AgentState is the lifecycle state of a trading agent.
type AgentState string

const (
	AgentStateIdle     AgentState = "IDLE"
	AgentStateStarting AgentState = "STARTING"
	AgentStateRunning  AgentState = "RUNNING"
	AgentStatePaused   AgentState = "PAUSED"
	AgentStateStopping AgentState = "STOPPING"
	AgentStateStopped  AgentState = "STOPPED"
	AgentStateError    AgentState = "ERROR"
)

// IsTerminal reports whether the agent no longer counts against the agent cap.
func (s AgentState) IsTerminal() bool {
	return s == AgentStateStopped || s == AgentStateError
}

// IsActive reports whether the agent has a live tick loop.
func (s AgentState) IsActive() bool {
	switch s {
	case AgentStateStarting, AgentStateRunning, AgentStatePaused, AgentStateStopping:
		return true
	default:
		return false
	}
}

// StrategyKind selects one of the built-in strategies.
type StrategyKind string

const (
	StrategyTrendFollowing StrategyKind = "trend_following"
	StrategyMeanReversion  StrategyKind = "mean_reversion"
	StrategyBreakout       StrategyKind = "breakout"
)

const (
	DefaultCandleLimit = 100
	maxCandleLimit     = 1000
)

// AgentConfig describes one trading agent.
type AgentConfig struct {
	// ID is assigned by the orchestrator when empty.
	ID string `yaml:"id" json:"id" mapstructure:"id"`
	// Name is unique across agents.
	Name string `yaml:"name" json:"name" mapstructure:"name" validate:"required,max=64"`
	// Venue names the connector the agent trades on (e.g. "paper", "binance-testnet").
	Venue string `yaml:"venue" json:"venue" mapstructure:"venue" validate:"required"`
	// Symbol is the trading pair (e.g. "BTCUSDT").
	Symbol string `yaml:"symbol" json:"symbol" mapstructure:"symbol" validate:"required"`
	// Strategy selects the signal generator.
	Strategy StrategyKind `yaml:"strategy" json:"strategy" mapstructure:"strategy" validate:"required,oneof=trend_following mean_reversion breakout"`
	// StrategyParams are decoded by the selected strategy.
	StrategyParams map[string]any `yaml:"strategy_params" json:"strategy_params" mapstructure:"strategy_params"`
	// MaxStake is the largest notional committed by a single trade.
	MaxStake float64 `yaml:"max_stake" json:"max_stake" mapstructure:"max_stake" validate:"gt=0"`
	// Budget is the risk budget allocated to the agent. Zero means MaxStake.
	Budget float64 `yaml:"budget" json:"budget" mapstructure:"budget" validate:"gte=0"`
	// MaxLeverage caps the leverage of a single trade.
	MaxLeverage float64 `yaml:"max_leverage" json:"max_leverage" mapstructure:"max_leverage" validate:"gte=1"`
	// Leverage is applied to every entry. Zero means 1.
	Leverage float64 `yaml:"leverage" json:"leverage" mapstructure:"leverage" validate:"gte=0"`
	// MaxDuration stops the agent after it has traded this long. Zero disables it.
	MaxDuration time.Duration `yaml:"max_duration" json:"max_duration" mapstructure:"max_duration" validate:"gte=0"`
	// MinTargetReturn is the minimum take-profit distance as a fraction of entry.
	MinTargetReturn float64 `yaml:"min_target_return" json:"min_target_return" mapstructure:"min_target_return" validate:"gte=0"`
	// StopLossPct places the stop-loss this fraction away from entry. Zero disables it.
	StopLossPct float64 `yaml:"stop_loss_pct" json:"stop_loss_pct" mapstructure:"stop_loss_pct" validate:"gte=0,lt=1"`
	// TakeProfitPct places the take-profit this fraction away from entry.
	TakeProfitPct float64 `yaml:"take_profit_pct" json:"take_profit_pct" mapstructure:"take_profit_pct" validate:"gte=0"`
	// Interval is the candle interval and tick period (e.g. "1m", "1h", "1d").
	Interval string `yaml:"interval" json:"interval" mapstructure:"interval" validate:"required"`
	// CandleLimit is the candle window fetched per tick.
	CandleLimit int `yaml:"candle_limit" json:"candle_limit" mapstructure:"candle_limit" validate:"gte=0,lte=1000"`
}

// Validate validates the AgentConfig struct.
func (c *AgentConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, "invalid agent config", err)
	}

	if _, err := ParseInterval(c.Interval); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, "invalid agent config", err)
	}

	if c.Budget > 0 && c.Budget < c.MaxStake {
		return errors.Newf(errors.ErrCodeInvalidConfig,
			"invalid agent config: budget %.2f is smaller than max stake %.2f", c.Budget, c.MaxStake)
	}

	if c.Leverage > c.MaxLeverage {
		return errors.Newf(errors.ErrCodeInvalidConfig,
			"invalid agent config: leverage %.2f exceeds max leverage %.2f", c.Leverage, c.MaxLeverage)
	}

	return nil
}

// WithDefaults fills optional fields.
func (c AgentConfig) WithDefaults() AgentConfig {
	if c.Budget == 0 {
		c.Budget = c.MaxStake
	}

	if c.MaxLeverage == 0 {
		c.MaxLeverage = 1
	}

	if c.Leverage == 0 {
		c.Leverage = 1
	}

	if c.CandleLimit == 0 {
		c.CandleLimit = DefaultCandleLimit
	}

	if c.CandleLimit > maxCandleLimit {
		c.CandleLimit = maxCandleLimit
	}

	return c
}

// TickInterval returns the parsed Interval.
func (c AgentConfig) TickInterval() time.Duration {
	d, err := ParseInterval(c.Interval)
	if err != nil {
		return time.Minute
	}

	return d
}

// TargetReturn is the take-profit distance honoring MinTargetReturn.
func (c AgentConfig) TargetReturn() float64 {
	return math.Max(c.TakeProfitPct, c.MinTargetReturn)
}

// ParseInterval parses candle intervals like "30s", "15m", "4h", "1d" and "1w".
func ParseInterval(interval string) (time.Duration, error) {
	interval = strings.TrimSpace(interval)
	if len(interval) < 2 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}

	unit := interval[len(interval)-1]

	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}

	switch unit {
	case 's':
		return time.Duration(n) * time.Second, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid interval unit in %q", interval)
	}
}

// AgentMetrics are runtime counters owned by one agent.
type AgentMetrics struct {
	TotalTrades  int           `yaml:"total_trades" json:"total_trades"`
	Wins         int           `yaml:"wins" json:"wins"`
	Losses       int           `yaml:"losses" json:"losses"`
	RealizedPnL  float64       `yaml:"realized_pnl" json:"realized_pnl"`
	WinRate      float64       `yaml:"win_rate" json:"win_rate"`
	PeakPnL      float64       `yaml:"peak_pnl" json:"peak_pnl"`
	MaxDrawdown  float64       `yaml:"max_drawdown" json:"max_drawdown"`
	StartedAt    time.Time     `yaml:"started_at" json:"started_at"`
	Uptime       time.Duration `yaml:"uptime" json:"uptime"`
	LastTickAt   time.Time     `yaml:"last_tick_at" json:"last_tick_at"`
	LastSignalAt time.Time     `yaml:"last_signal_at" json:"last_signal_at"`
	LastError    string        `yaml:"last_error" json:"last_error"`
}

// RecordClose folds a realized trade result into the counters.
func (m *AgentMetrics) RecordClose(pnl float64) {
	m.TotalTrades++

	if pnl > 0 {
		m.Wins++
	} else {
		m.Losses++
	}

	total := decimal.NewFromFloat(m.RealizedPnL).Add(decimal.NewFromFloat(pnl))
	m.RealizedPnL, _ = total.Float64()
	m.WinRate = float64(m.Wins) / float64(m.TotalTrades)

	if m.RealizedPnL > m.PeakPnL {
		m.PeakPnL = m.RealizedPnL
	}

	drawdown, _ := decimal.NewFromFloat(m.PeakPnL).Sub(total).Float64()
	if drawdown > m.MaxDrawdown {
		m.MaxDrawdown = drawdown
	}
}
