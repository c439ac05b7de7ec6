package indicator

import (
	"github.com/rxtech-lab/argo-fleet/internal/types"
)

// MA is a simple moving average over the close price.
type MA struct {
	period int
}

// NewMA creates a simple moving average with the default period of 20.
func NewMA() Indicator {
	return &MA{period: 20}
}

func (m *MA) Name() types.IndicatorType {
	return types.IndicatorTypeSMA
}

// Config expects one parameter: period (int).
func (m *MA) Config(params ...any) error {
	if len(params) != 1 {
		return errInvalidParams("MA", "period (int)")
	}

	period, err := parsePeriod("period", params[0])
	if err != nil {
		return err
	}

	m.period = period

	return nil
}

func (m *MA) Calculate(candles []types.MarketData) (Values, error) {
	sma, err := SMA(types.Closes(candles), m.period)
	if err != nil {
		return nil, err
	}

	return Values{types.IndicatorTypeSMA: sma}, nil
}

// SMA returns the arithmetic mean of the last period values.
func SMA(values []float64, period int) (float64, error) {
	if period <= 0 || len(values) < period {
		return 0, insufficient("SMA", period, len(values))
	}

	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}

	return sum / float64(period), nil
}
