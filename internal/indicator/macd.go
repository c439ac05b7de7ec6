package indicator

import (
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
)

// MACD represents the Moving Average Convergence Divergence indicator.
type MACD struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
}

// MACDResult is the MACD triple at the last candle.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// NewMACD creates a new MACD indicator with the classic 12/26/9 configuration.
func NewMACD() Indicator {
	return &MACD{
		fastPeriod:   12,
		slowPeriod:   26,
		signalPeriod: 9,
	}
}

func (m *MACD) Name() types.IndicatorType {
	return types.IndicatorTypeMACD
}

// Config expects three parameters: fastPeriod (int), slowPeriod (int), signalPeriod (int).
func (m *MACD) Config(params ...any) error {
	if len(params) != 3 {
		return errInvalidParams("MACD", "fastPeriod (int), slowPeriod (int), signalPeriod (int)")
	}

	fast, err := parsePeriod("fastPeriod", params[0])
	if err != nil {
		return err
	}

	slow, err := parsePeriod("slowPeriod", params[1])
	if err != nil {
		return err
	}

	signal, err := parsePeriod("signalPeriod", params[2])
	if err != nil {
		return err
	}

	if fast >= slow {
		return errors.Newf(errors.ErrCodeInvalidParameter, "fastPeriod (%d) must be smaller than slowPeriod (%d)", fast, slow)
	}

	m.fastPeriod = fast
	m.slowPeriod = slow
	m.signalPeriod = signal

	return nil
}

func (m *MACD) Calculate(candles []types.MarketData) (Values, error) {
	result, err := MACDValue(types.Closes(candles), m.fastPeriod, m.slowPeriod, m.signalPeriod)
	if err != nil {
		return nil, err
	}

	return Values{
		types.IndicatorTypeMACD:          result.MACD,
		types.IndicatorTypeMACDSignal:    result.Signal,
		types.IndicatorTypeMACDHistogram: result.Histogram,
	}, nil
}

// MACDValue computes the MACD line, its signal line and the histogram.
// It needs slow+signal-1 points.
func MACDValue(values []float64, fast, slow, signal int) (MACDResult, error) {
	required := slow + signal - 1
	if len(values) < required {
		return MACDResult{}, insufficient("MACD", required, len(values))
	}

	fastSeries, err := EMASeries(values, fast)
	if err != nil {
		return MACDResult{}, err
	}

	slowSeries, err := EMASeries(values, slow)
	if err != nil {
		return MACDResult{}, err
	}

	// Align both series on the most recent candle.
	offset := len(fastSeries) - len(slowSeries)
	line := make([]float64, len(slowSeries))

	for i := range slowSeries {
		line[i] = fastSeries[i+offset] - slowSeries[i]
	}

	signalSeries, err := EMASeries(line, signal)
	if err != nil {
		return MACDResult{}, err
	}

	macd := line[len(line)-1]
	sig := signalSeries[len(signalSeries)-1]

	return MACDResult{MACD: macd, Signal: sig, Histogram: macd - sig}, nil
}
