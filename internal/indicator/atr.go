package indicator

import (
	"math"

	"github.com/rxtech-lab/argo-fleet/internal/types"
)

// ATR represents the Average True Range indicator.
type ATR struct {
	period int
}

// NewATR creates a new ATR indicator with the default period of 14.
func NewATR() Indicator {
	return &ATR{period: 14}
}

func (a *ATR) Name() types.IndicatorType {
	return types.IndicatorTypeATR
}

// Config expects one parameter: period (int).
func (a *ATR) Config(params ...any) error {
	if len(params) != 1 {
		return errInvalidParams("ATR", "period (int)")
	}

	period, err := parsePeriod("period", params[0])
	if err != nil {
		return err
	}

	a.period = period

	return nil
}

func (a *ATR) Calculate(candles []types.MarketData) (Values, error) {
	value, err := ATRValue(candles, a.period)
	if err != nil {
		return nil, err
	}

	return Values{types.IndicatorTypeATR: value}, nil
}

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(current, previous types.MarketData) float64 {
	return math.Max(
		current.High-current.Low,
		math.Max(math.Abs(current.High-previous.Close), math.Abs(current.Low-previous.Close)),
	)
}

// ATRValue computes the Wilder-smoothed average true range. It needs period+1 candles.
func ATRValue(candles []types.MarketData, period int) (float64, error) {
	if period <= 0 || len(candles) < period+1 {
		return 0, insufficient("ATR", period+1, len(candles))
	}

	atr := 0.0
	for i := 1; i <= period; i++ {
		atr += TrueRange(candles[i], candles[i-1])
	}

	atr /= float64(period)

	for i := period + 1; i < len(candles); i++ {
		atr = (atr*float64(period-1) + TrueRange(candles[i], candles[i-1])) / float64(period)
	}

	return atr, nil
}
