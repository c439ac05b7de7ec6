package indicator

import (
	"github.com/rxtech-lab/argo-fleet/internal/types"
)

// RSI represents the Relative Strength Index indicator.
type RSI struct {
	period int
}

// NewRSI creates a new RSI indicator with the default period of 14.
func NewRSI() Indicator {
	return &RSI{period: 14}
}

func (r *RSI) Name() types.IndicatorType {
	return types.IndicatorTypeRSI
}

// Config expects one parameter: period (int).
func (r *RSI) Config(params ...any) error {
	if len(params) != 1 {
		return errInvalidParams("RSI", "period (int)")
	}

	period, err := parsePeriod("period", params[0])
	if err != nil {
		return err
	}

	r.period = period

	return nil
}

func (r *RSI) Calculate(candles []types.MarketData) (Values, error) {
	value, err := RSIValue(types.Closes(candles), r.period)
	if err != nil {
		return nil, err
	}

	return Values{types.IndicatorTypeRSI: value}, nil
}

// RSIValue computes the RSI of values with Wilder's smoothing. It needs period+1 points.
func RSIValue(values []float64, period int) (float64, error) {
	if period <= 0 || len(values) < period+1 {
		return 0, insufficient("RSI", period+1, len(values))
	}

	avgGain, avgLoss := 0.0, 0.0

	for i := 1; i <= period; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}

	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(values); i++ {
		gain, loss := 0.0, 0.0

		change := values[i] - values[i-1]
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}

		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50, nil
		}

		return 100, nil
	}

	rs := avgGain / avgLoss

	return 100 - (100 / (1 + rs)), nil
}
