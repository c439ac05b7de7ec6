package strategy

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-fleet/internal/indicator"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
)

// TrendFollowingConfig configures the EMA crossover strategy.
type TrendFollowingConfig struct {
	FastPeriod    int     `mapstructure:"fast_period" json:"fast_period" jsonschema:"title=Fast EMA period,minimum=1,default=12" validate:"gt=0"`
	SlowPeriod    int     `mapstructure:"slow_period" json:"slow_period" jsonschema:"title=Slow EMA period,minimum=2,default=26" validate:"gtfield=FastPeriod"`
	RSIPeriod     int     `mapstructure:"rsi_period" json:"rsi_period" jsonschema:"title=RSI period,minimum=1,default=14" validate:"gt=0"`
	RSIOverbought float64 `mapstructure:"rsi_overbought" json:"rsi_overbought" jsonschema:"title=Skip longs above this RSI,default=70" validate:"gt=0,lte=100"`
	RSIOversold   float64 `mapstructure:"rsi_oversold" json:"rsi_oversold" jsonschema:"title=Skip shorts below this RSI,default=30" validate:"gte=0,ltfield=RSIOverbought"`
	// MinSpread is the minimum |fast-slow|/slow treated as a trend.
	MinSpread float64 `mapstructure:"min_spread" json:"min_spread" jsonschema:"title=Minimum EMA spread,default=0.001" validate:"gte=0"`
}

func DefaultTrendFollowingConfig() TrendFollowingConfig {
	return TrendFollowingConfig{
		FastPeriod:    12,
		SlowPeriod:    26,
		RSIPeriod:     14,
		RSIOverbought: 70,
		RSIOversold:   30,
		MinSpread:     0.001,
	}
}

// TrendFollowing goes with the direction of the fast/slow EMA spread, confirmed by the
// MACD histogram and filtered by RSI extremes.
type TrendFollowing struct {
	config TrendFollowingConfig
}

func NewTrendFollowing(config TrendFollowingConfig) (*TrendFollowing, error) {
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, "invalid trend following params", err)
	}

	return &TrendFollowing{config: config}, nil
}

func (s *TrendFollowing) Name() types.StrategyKind {
	return types.StrategyTrendFollowing
}

func (s *TrendFollowing) Description() string {
	return "Follows the fast/slow EMA crossover, confirmed by MACD and filtered by RSI"
}

func (s *TrendFollowing) Indicators() indicator.IndicatorRegistry {
	macd := indicator.NewMACD()
	rsi := indicator.NewRSI()

	// periods were validated in NewTrendFollowing
	_ = macd.Config(s.config.FastPeriod, s.config.SlowPeriod, 9)
	_ = rsi.Config(s.config.RSIPeriod)

	return mustRegister(indicator.NewIndicatorRegistry(),
		indicator.NewEMA(types.IndicatorTypeEMAFast, s.config.FastPeriod),
		indicator.NewEMA(types.IndicatorTypeEMASlow, s.config.SlowPeriod),
		macd,
		rsi,
	)
}

func (s *TrendFollowing) GenerateSignal(candles []types.MarketData, values indicator.Values) types.Signal {
	candle, ok := lastCandle(candles)
	if !ok || !values.Has(types.IndicatorTypeEMAFast, types.IndicatorTypeEMASlow, types.IndicatorTypeRSI) {
		return hold(s.Name(), candles, "insufficient data")
	}

	fast := values[types.IndicatorTypeEMAFast]
	slow := values[types.IndicatorTypeEMASlow]
	rsi := values[types.IndicatorTypeRSI]

	if slow == 0 {
		return hold(s.Name(), candles, "slow EMA is zero")
	}

	spread := (fast - slow) / slow
	if math.Abs(spread) < s.config.MinSpread {
		return hold(s.Name(), candles, fmt.Sprintf("no trend (spread=%.5f)", spread))
	}

	action := types.SignalActionBuy
	if spread < 0 {
		action = types.SignalActionSell
	}

	if action == types.SignalActionBuy && rsi > s.config.RSIOverbought {
		return hold(s.Name(), candles, fmt.Sprintf("uptrend but RSI overbought (%.2f)", rsi))
	}

	if action == types.SignalActionSell && rsi < s.config.RSIOversold {
		return hold(s.Name(), candles, fmt.Sprintf("downtrend but RSI oversold (%.2f)", rsi))
	}

	confidence := 0.55 + math.Min(0.35, math.Abs(spread)*25)

	if histogram, ok := values.Get(types.IndicatorTypeMACDHistogram); ok {
		if (histogram > 0) == (action == types.SignalActionBuy) {
			confidence += 0.1
		} else {
			confidence -= 0.15
		}
	}

	reason := fmt.Sprintf("EMA fast %.4f vs slow %.4f (spread=%.5f, rsi=%.2f)", fast, slow, spread, rsi)

	return signalFrom(s.Name(), candle, action, confidence, reason, values)
}
