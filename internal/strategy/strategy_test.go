package strategy

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-fleet/internal/indicator"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type StrategyTestSuite struct {
	suite.Suite
}

func TestStrategySuite(t *testing.T) {
	suite.Run(t, new(StrategyTestSuite))
}

func series(closes ...float64) []types.MarketData {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]types.MarketData, len(closes))

	for i, c := range closes {
		out[i] = types.MarketData{
			Symbol: "BTCUSDT",
			Time:   start.Add(time.Duration(i) * time.Minute),
			Open:   c,
			High:   c + 0.5,
			Low:    c - 0.5,
			Close:  c,
		}
	}

	return out
}

func trend(n int, from, step float64) []types.MarketData {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = from + float64(i)*step
	}

	return series(closes...)
}

func (suite *StrategyTestSuite) TestNewUnknownStrategy() {
	_, err := New("martingale", nil)
	suite.True(errors.HasCode(err, errors.ErrCodeUnknownStrategy))
}

func (suite *StrategyTestSuite) TestNewDecodesParams() {
	s, err := New(types.StrategyTrendFollowing, map[string]any{"fast_period": "5", "slow_period": 10})
	suite.NoError(err)
	suite.Equal(5, s.(*TrendFollowing).config.FastPeriod)
	suite.Equal(10, s.(*TrendFollowing).config.SlowPeriod)
}

func (suite *StrategyTestSuite) TestNewRejectsBadParams() {
	_, err := New(types.StrategyTrendFollowing, map[string]any{"fast_period": 30, "slow_period": 10})
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfig))

	_, err = New(types.StrategyBreakout, map[string]any{"unknown": 1})
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfig))
}

func (suite *StrategyTestSuite) TestAllKindsBuildWithDefaults() {
	for _, kind := range Kinds() {
		s, err := New(kind, nil)
		suite.NoError(err, kind)
		suite.Equal(kind, s.Name())
		suite.NotEmpty(s.Description())
		suite.NotEmpty(s.Indicators().ListIndicators())
	}
}

func (suite *StrategyTestSuite) TestHoldOnInsufficientData() {
	for _, kind := range Kinds() {
		s, err := New(kind, nil)
		suite.NoError(err)

		candles := trend(5, 100, 1)
		values, err := indicator.Compute(candles, s.Indicators())
		suite.NoError(err)

		signal := s.GenerateSignal(candles, values)
		suite.Equal(types.SignalActionHold, signal.Action, kind)
		suite.Equal(kind, signal.Strategy)
	}
}

func (suite *StrategyTestSuite) TestTrendFollowingDirection() {
	s, err := New(types.StrategyTrendFollowing, map[string]any{"rsi_overbought": 100.0, "rsi_oversold": 0.0})
	suite.NoError(err)

	up := trend(80, 100, 1)
	values, err := indicator.Compute(up, s.Indicators())
	suite.NoError(err)

	signal := s.GenerateSignal(up, values)
	suite.Equal(types.SignalActionBuy, signal.Action)
	suite.Greater(signal.Confidence, 0.5)
	suite.LessOrEqual(signal.Confidence, 1.0)
	suite.Contains(signal.Indicators, types.IndicatorTypeEMAFast)

	down := trend(80, 200, -1)
	values, err = indicator.Compute(down, s.Indicators())
	suite.NoError(err)
	suite.Equal(types.SignalActionSell, s.GenerateSignal(down, values).Action)
}

func (suite *StrategyTestSuite) TestTrendFollowingRSIFilter() {
	s, err := New(types.StrategyTrendFollowing, nil)
	suite.NoError(err)

	// a straight ramp pins RSI at 100
	up := trend(80, 100, 1)
	values, err := indicator.Compute(up, s.Indicators())
	suite.NoError(err)

	signal := s.GenerateSignal(up, values)
	suite.Equal(types.SignalActionHold, signal.Action)
	suite.Contains(signal.Reason, "overbought")
}

func (suite *StrategyTestSuite) TestTrendFollowingFlatMarket() {
	s, err := New(types.StrategyTrendFollowing, nil)
	suite.NoError(err)

	flat := trend(80, 100, 0)
	values, err := indicator.Compute(flat, s.Indicators())
	suite.NoError(err)
	suite.Equal(types.SignalActionHold, s.GenerateSignal(flat, values).Action)
}

func (suite *StrategyTestSuite) TestMeanReversion() {
	s, err := New(types.StrategyMeanReversion, nil)
	suite.NoError(err)

	closes := make([]float64, 0, 40)
	for i := 0; i < 39; i++ {
		closes = append(closes, 100+float64(i%2))
	}

	crash := series(append(closes, 90)...)
	values, err := indicator.Compute(crash, s.Indicators())
	suite.NoError(err)

	signal := s.GenerateSignal(crash, values)
	suite.Equal(types.SignalActionBuy, signal.Action)
	suite.Contains(signal.Reason, "below lower band")

	spike := series(append(closes, 110)...)
	values, err = indicator.Compute(spike, s.Indicators())
	suite.NoError(err)
	suite.Equal(types.SignalActionSell, s.GenerateSignal(spike, values).Action)

	calm := series(append(closes, 100.5)...)
	values, err = indicator.Compute(calm, s.Indicators())
	suite.NoError(err)
	suite.Equal(types.SignalActionHold, s.GenerateSignal(calm, values).Action)
}

func (suite *StrategyTestSuite) TestBreakout() {
	s, err := New(types.StrategyBreakout, nil)
	suite.NoError(err)

	closes := make([]float64, 0, 40)
	for i := 0; i < 39; i++ {
		closes = append(closes, 100+float64(i%3))
	}

	up := series(append(closes, 110)...)
	values, err := indicator.Compute(up, s.Indicators())
	suite.NoError(err)

	signal := s.GenerateSignal(up, values)
	suite.Equal(types.SignalActionBuy, signal.Action)
	suite.Equal(up[len(up)-1].Time, signal.Time)

	down := series(append(closes, 90)...)
	values, err = indicator.Compute(down, s.Indicators())
	suite.NoError(err)
	suite.Equal(types.SignalActionSell, s.GenerateSignal(down, values).Action)

	inside := series(append(closes, 101)...)
	values, err = indicator.Compute(inside, s.Indicators())
	suite.NoError(err)
	suite.Equal(types.SignalActionHold, s.GenerateSignal(inside, values).Action)
}

func (suite *StrategyTestSuite) TestParamsSchema() {
	for _, kind := range Kinds() {
		schema, err := ParamsSchema(kind)
		suite.NoError(err)

		var decoded map[string]any
		suite.NoError(json.Unmarshal([]byte(schema), &decoded))
		suite.Contains(decoded, "properties")
	}

	_, err := ParamsSchema("unknown")
	suite.Error(err)
}
