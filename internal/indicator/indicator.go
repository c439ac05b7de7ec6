// Package indicator holds pure technical indicator calculations over candle windows.
// Every calculation is stateless; the only failure mode is insufficient data.
package indicator

import (
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
)

// Values is the bundle of indicator outputs computed for one candle window.
type Values map[types.IndicatorType]float64

// Get returns the value for key and whether it was computed.
func (v Values) Get(key types.IndicatorType) (float64, bool) {
	value, ok := v[key]

	return value, ok
}

// Has reports whether every key was computed.
func (v Values) Has(keys ...types.IndicatorType) bool {
	for _, key := range keys {
		if _, ok := v[key]; !ok {
			return false
		}
	}

	return true
}

// Indicator interface defines methods that any technical indicator must implement.
type Indicator interface {
	// Name returns the registry key of the indicator
	Name() types.IndicatorType
	// Config configures the indicator parameters
	Config(params ...any) error
	// Calculate computes the indicator values at the last candle of the window
	Calculate(candles []types.MarketData) (Values, error)
}

// Compute runs every indicator in the registry over candles and merges the results.
// Indicators without enough data are left out of the bundle; the caller decides what
// a missing value means.
func Compute(candles []types.MarketData, registry IndicatorRegistry) (Values, error) {
	out := make(Values)

	if registry == nil {
		return out, nil
	}

	for _, name := range registry.ListIndicators() {
		ind, err := registry.GetIndicator(name)
		if err != nil {
			return nil, err
		}

		values, err := ind.Calculate(candles)
		if err != nil {
			if errors.IsInsufficientDataError(err) {
				continue
			}

			return nil, errors.Wrapf(errors.ErrCodeInvalidParameter, err, "failed to calculate %s", name)
		}

		for k, v := range values {
			out[k] = v
		}
	}

	return out, nil
}

func parsePeriod(name string, param any) (int, error) {
	period, ok := param.(int)
	if !ok {
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "invalid type for %s parameter, expected int", name)
	}

	if period <= 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "%s must be a positive integer, got %d", name, period)
	}

	return period, nil
}

func insufficient(name string, required, actual int) error {
	return errors.NewInsufficientDataErrorf(required, actual, "",
		"insufficient data points for %s: required %d, got %d", name, required, actual)
}

func errInvalidParams(name, expected string) error {
	return errors.Newf(errors.ErrCodeInvalidParameter, "%s Config expects: %s", name, expected)
}
