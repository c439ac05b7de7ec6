package strategy

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-fleet/internal/indicator"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
)

// BreakoutConfig configures the channel breakout strategy.
type BreakoutConfig struct {
	ChannelPeriod int `mapstructure:"channel_period" json:"channel_period" jsonschema:"title=Channel lookback,minimum=2,default=20" validate:"gt=1"`
	ATRPeriod     int `mapstructure:"atr_period" json:"atr_period" jsonschema:"title=ATR period,minimum=1,default=14" validate:"gt=0"`
	// Buffer is the distance beyond the channel, in ATRs, a close must reach.
	Buffer float64 `mapstructure:"buffer" json:"buffer" jsonschema:"title=Breakout buffer in ATR,default=0.1" validate:"gte=0"`
}

func DefaultBreakoutConfig() BreakoutConfig {
	return BreakoutConfig{
		ChannelPeriod: 20,
		ATRPeriod:     14,
		Buffer:        0.1,
	}
}

// Breakout trades closes beyond the prior Donchian channel.
type Breakout struct {
	config BreakoutConfig
}

func NewBreakout(config BreakoutConfig) (*Breakout, error) {
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, "invalid breakout params", err)
	}

	return &Breakout{config: config}, nil
}

func (s *Breakout) Name() types.StrategyKind {
	return types.StrategyBreakout
}

func (s *Breakout) Description() string {
	return "Trades closes beyond the prior high/low channel, scaled by ATR"
}

func (s *Breakout) Indicators() indicator.IndicatorRegistry {
	channel := indicator.NewDonchian()
	atr := indicator.NewATR()

	_ = channel.Config(s.config.ChannelPeriod)
	_ = atr.Config(s.config.ATRPeriod)

	return mustRegister(indicator.NewIndicatorRegistry(), channel, atr)
}

func (s *Breakout) GenerateSignal(candles []types.MarketData, values indicator.Values) types.Signal {
	candle, ok := lastCandle(candles)
	if !ok || !values.Has(types.IndicatorTypeHighestHigh, types.IndicatorTypeLowestLow, types.IndicatorTypeATR) {
		return hold(s.Name(), candles, "insufficient data")
	}

	high := values[types.IndicatorTypeHighestHigh]
	low := values[types.IndicatorTypeLowestLow]
	atr := values[types.IndicatorTypeATR]
	price := candle.Close
	buffer := s.config.Buffer * atr

	if atr <= 0 {
		return hold(s.Name(), candles, "no volatility")
	}

	switch {
	case price > high+buffer:
		strength := (price - high) / atr
		reason := fmt.Sprintf("close %.4f broke above %.4f (%.2f ATR)", price, high, strength)

		return signalFrom(s.Name(), candle, types.SignalActionBuy, 0.5+math.Min(0.5, strength*0.25), reason, values)
	case price < low-buffer:
		strength := (low - price) / atr
		reason := fmt.Sprintf("close %.4f broke below %.4f (%.2f ATR)", price, low, strength)

		return signalFrom(s.Name(), candle, types.SignalActionSell, 0.5+math.Min(0.5, strength*0.25), reason, values)
	default:
		return hold(s.Name(), candles, "inside channel")
	}
}
