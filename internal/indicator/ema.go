package indicator

import (
	"github.com/rxtech-lab/argo-fleet/internal/types"
)

// EMA indicator implements Exponential Moving Average calculation. The same type backs
// the fast and the slow average of the trend-following strategy, told apart by key.
type EMA struct {
	key    types.IndicatorType
	period int
}

// NewEMA creates an EMA published under key.
func NewEMA(key types.IndicatorType, period int) Indicator {
	return &EMA{key: key, period: period}
}

func (e *EMA) Name() types.IndicatorType {
	return e.key
}

// Config expects one parameter: period (int).
func (e *EMA) Config(params ...any) error {
	if len(params) != 1 {
		return errInvalidParams("EMA", "period (int)")
	}

	period, err := parsePeriod("period", params[0])
	if err != nil {
		return err
	}

	e.period = period

	return nil
}

func (e *EMA) Calculate(candles []types.MarketData) (Values, error) {
	series, err := EMASeries(types.Closes(candles), e.period)
	if err != nil {
		return nil, err
	}

	return Values{e.key: series[len(series)-1]}, nil
}

// EMASeries returns the exponential moving average of values, seeded with the SMA of
// the first period values. The result has len(values)-period+1 points, the last being
// the most recent. Multiplier = 2 / (period + 1).
func EMASeries(values []float64, period int) ([]float64, error) {
	if period <= 0 || len(values) < period {
		return nil, insufficient("EMA", period, len(values))
	}

	seed := 0.0
	for _, v := range values[:period] {
		seed += v
	}

	seed /= float64(period)

	alpha := 2.0 / float64(period+1)
	out := make([]float64, 0, len(values)-period+1)
	out = append(out, seed)

	ema := seed
	for _, v := range values[period:] {
		ema = v*alpha + ema*(1-alpha)
		out = append(out, ema)
	}

	return out, nil
}
