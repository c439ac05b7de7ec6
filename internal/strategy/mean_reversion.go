package strategy

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-fleet/internal/indicator"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
)

// MeanReversionConfig configures the Bollinger/RSI reversion strategy.
type MeanReversionConfig struct {
	BandPeriod    int     `mapstructure:"band_period" json:"band_period" jsonschema:"title=Bollinger period,minimum=2,default=20" validate:"gt=1"`
	BandStdDev    float64 `mapstructure:"band_std_dev" json:"band_std_dev" jsonschema:"title=Bollinger width in standard deviations,default=2" validate:"gt=0"`
	RSIPeriod     int     `mapstructure:"rsi_period" json:"rsi_period" jsonschema:"title=RSI period,minimum=1,default=14" validate:"gt=0"`
	RSIOversold   float64 `mapstructure:"rsi_oversold" json:"rsi_oversold" jsonschema:"title=Buy below this RSI,default=30" validate:"gte=0,ltfield=RSIOverbought"`
	RSIOverbought float64 `mapstructure:"rsi_overbought" json:"rsi_overbought" jsonschema:"title=Sell above this RSI,default=70" validate:"gt=0,lte=100"`
}

func DefaultMeanReversionConfig() MeanReversionConfig {
	return MeanReversionConfig{
		BandPeriod:    20,
		BandStdDev:    2,
		RSIPeriod:     14,
		RSIOversold:   30,
		RSIOverbought: 70,
	}
}

// MeanReversion fades closes outside the Bollinger Bands. RSI agreement raises the
// confidence; a band touch without it is still reported at lower confidence.
type MeanReversion struct {
	config MeanReversionConfig
}

func NewMeanReversion(config MeanReversionConfig) (*MeanReversion, error) {
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, "invalid mean reversion params", err)
	}

	return &MeanReversion{config: config}, nil
}

func (s *MeanReversion) Name() types.StrategyKind {
	return types.StrategyMeanReversion
}

func (s *MeanReversion) Description() string {
	return "Fades closes outside the Bollinger Bands when RSI confirms the extreme"
}

func (s *MeanReversion) Indicators() indicator.IndicatorRegistry {
	bands := indicator.NewBollingerBands()
	rsi := indicator.NewRSI()

	_ = bands.Config(s.config.BandPeriod, s.config.BandStdDev)
	_ = rsi.Config(s.config.RSIPeriod)

	return mustRegister(indicator.NewIndicatorRegistry(), bands, rsi)
}

func (s *MeanReversion) GenerateSignal(candles []types.MarketData, values indicator.Values) types.Signal {
	candle, ok := lastCandle(candles)
	if !ok || !values.Has(types.IndicatorTypeBollingerUpper, types.IndicatorTypeBollingerLower, types.IndicatorTypeRSI) {
		return hold(s.Name(), candles, "insufficient data")
	}

	upper := values[types.IndicatorTypeBollingerUpper]
	lower := values[types.IndicatorTypeBollingerLower]
	rsi := values[types.IndicatorTypeRSI]
	width := upper - lower
	price := candle.Close

	if width <= 0 {
		return hold(s.Name(), candles, "bands collapsed")
	}

	switch {
	case price < lower:
		confidence := 0.4 + math.Min(0.3, (lower-price)/width)
		if rsi <= s.config.RSIOversold {
			confidence += 0.3
		}

		reason := fmt.Sprintf("close %.4f below lower band %.4f (rsi=%.2f)", price, lower, rsi)

		return signalFrom(s.Name(), candle, types.SignalActionBuy, confidence, reason, values)
	case price > upper:
		confidence := 0.4 + math.Min(0.3, (price-upper)/width)
		if rsi >= s.config.RSIOverbought {
			confidence += 0.3
		}

		reason := fmt.Sprintf("close %.4f above upper band %.4f (rsi=%.2f)", price, upper, rsi)

		return signalFrom(s.Name(), candle, types.SignalActionSell, confidence, reason, values)
	default:
		return hold(s.Name(), candles, "price within bands")
	}
}
