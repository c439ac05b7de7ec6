// Package strategy holds the closed set of built-in signal generators. A strategy is
// selected once from the agent config and never swapped while the agent runs.
package strategy

import (
	"math"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rxtech-lab/argo-fleet/internal/indicator"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
)

// Strategy turns a candle window and its indicator bundle into a signal.
type Strategy interface {
	// Name returns the strategy kind
	Name() types.StrategyKind
	// Description returns a human readable summary
	Description() string
	// Indicators returns the indicators the strategy reads, configured with its params
	Indicators() indicator.IndicatorRegistry
	// GenerateSignal is a pure function of its inputs
	GenerateSignal(candles []types.MarketData, values indicator.Values) types.Signal
}

// Kinds lists the available strategies.
func Kinds() []types.StrategyKind {
	return []types.StrategyKind{
		types.StrategyTrendFollowing,
		types.StrategyMeanReversion,
		types.StrategyBreakout,
	}
}

// New builds the strategy named by kind, decoding params over its defaults.
func New(kind types.StrategyKind, params map[string]any) (Strategy, error) {
	switch kind {
	case types.StrategyTrendFollowing:
		cfg := DefaultTrendFollowingConfig()
		if err := decodeParams(params, &cfg); err != nil {
			return nil, err
		}

		return NewTrendFollowing(cfg)
	case types.StrategyMeanReversion:
		cfg := DefaultMeanReversionConfig()
		if err := decodeParams(params, &cfg); err != nil {
			return nil, err
		}

		return NewMeanReversion(cfg)
	case types.StrategyBreakout:
		cfg := DefaultBreakoutConfig()
		if err := decodeParams(params, &cfg); err != nil {
			return nil, err
		}

		return NewBreakout(cfg)
	default:
		return nil, errors.Newf(errors.ErrCodeUnknownStrategy, "unknown strategy %q", kind)
	}
}

func decodeParams(params map[string]any, out any) error {
	if len(params) == 0 {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "mapstructure",
		Result:           out,
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, "failed to build strategy params decoder", err)
	}

	if err := decoder.Decode(params); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, "invalid strategy params", err)
	}

	return nil
}

func mustRegister(registry indicator.IndicatorRegistry, indicators ...indicator.Indicator) indicator.IndicatorRegistry {
	for _, ind := range indicators {
		// names are unique per strategy
		_ = registry.RegisterIndicator(ind)
	}

	return registry
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func lastCandle(candles []types.MarketData) (types.MarketData, bool) {
	if len(candles) == 0 {
		return types.MarketData{}, false
	}

	return candles[len(candles)-1], true
}

func signalFrom(kind types.StrategyKind, candle types.MarketData, action types.SignalAction, confidence float64, reason string, values indicator.Values) types.Signal {
	snapshot := make(map[types.IndicatorType]float64, len(values))
	for k, v := range values {
		snapshot[k] = v
	}

	return types.Signal{
		Time:       candle.Time,
		Symbol:     candle.Symbol,
		Action:     action,
		Confidence: clamp01(confidence),
		Reason:     reason,
		Strategy:   kind,
		Indicators: snapshot,
	}
}

func hold(kind types.StrategyKind, candles []types.MarketData, reason string) types.Signal {
	candle, _ := lastCandle(candles)

	signal := types.Hold(candle.Symbol, reason)
	signal.Strategy = kind

	if !candle.Time.IsZero() {
		signal.Time = candle.Time
	}

	return signal
}
