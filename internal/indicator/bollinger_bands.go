package indicator

import (
	"math"

	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
)

// BollingerBands implements the Indicator interface for Bollinger Bands.
type BollingerBands struct {
	period int     // Number of periods for moving average
	stdDev float64 // Number of standard deviations
}

// Bands is the Bollinger triple at the last candle.
type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// NewBollingerBands creates a new Bollinger Bands indicator with the 20/2 configuration.
func NewBollingerBands() Indicator {
	return &BollingerBands{
		period: 20,
		stdDev: 2.0,
	}
}

func (bb *BollingerBands) Name() types.IndicatorType {
	return types.IndicatorTypeBollingerBands
}

// Config expects two parameters: period (int), stdDev (float64).
func (bb *BollingerBands) Config(params ...any) error {
	if len(params) != 2 {
		return errInvalidParams("Bollinger Bands", "period (int), stdDev (float64)")
	}

	period, err := parsePeriod("period", params[0])
	if err != nil {
		return err
	}

	stdDev, ok := params[1].(float64)
	if !ok {
		return errors.New(errors.ErrCodeInvalidParameter, "invalid type for stdDev parameter, expected float64")
	}

	if stdDev <= 0 {
		return errors.Newf(errors.ErrCodeInvalidParameter, "stdDev must be a positive number, got %f", stdDev)
	}

	bb.period = period
	bb.stdDev = stdDev

	return nil
}

func (bb *BollingerBands) Calculate(candles []types.MarketData) (Values, error) {
	bands, err := BollingerValue(types.Closes(candles), bb.period, bb.stdDev)
	if err != nil {
		return nil, err
	}

	return Values{
		types.IndicatorTypeBollingerUpper: bands.Upper,
		types.IndicatorTypeBollingerMid:   bands.Middle,
		types.IndicatorTypeBollingerLower: bands.Lower,
	}, nil
}

// BollingerValue computes the bands over the last period values using the population
// standard deviation.
func BollingerValue(values []float64, period int, k float64) (Bands, error) {
	middle, err := SMA(values, period)
	if err != nil {
		return Bands{}, insufficient("Bollinger Bands", period, len(values))
	}

	var squaredDiffSum float64

	for _, v := range values[len(values)-period:] {
		diff := v - middle
		squaredDiffSum += diff * diff
	}

	sd := math.Sqrt(squaredDiffSum / float64(period))

	return Bands{
		Upper:  middle + k*sd,
		Middle: middle,
		Lower:  middle - k*sd,
	}, nil
}
