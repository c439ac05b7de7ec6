package indicator

import (
	"math"

	"github.com/rxtech-lab/argo-fleet/internal/types"
)

// Donchian is the price channel of the period candles before the current one.
// The current candle is excluded so a close above the channel reads as a breakout.
type Donchian struct {
	period int
}

func NewDonchian() Indicator {
	return &Donchian{period: 20}
}

func (d *Donchian) Name() types.IndicatorType {
	return types.IndicatorTypeDonchian
}

// Config expects one parameter: period (int).
func (d *Donchian) Config(params ...any) error {
	if len(params) != 1 {
		return errInvalidParams("Donchian", "period (int)")
	}

	period, err := parsePeriod("period", params[0])
	if err != nil {
		return err
	}

	d.period = period

	return nil
}

func (d *Donchian) Calculate(candles []types.MarketData) (Values, error) {
	if len(candles) < d.period+1 {
		return nil, insufficient("Donchian", d.period+1, len(candles))
	}

	window := candles[len(candles)-d.period-1 : len(candles)-1]
	high, low := math.Inf(-1), math.Inf(1)

	for _, c := range window {
		high = math.Max(high, c.High)
		low = math.Min(low, c.Low)
	}

	return Values{
		types.IndicatorTypeHighestHigh: high,
		types.IndicatorTypeLowestLow:   low,
	}, nil
}
