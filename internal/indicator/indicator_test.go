package indicator

import (
	"testing"
	"time"

	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type IndicatorTestSuite struct {
	suite.Suite
}

func TestIndicatorSuite(t *testing.T) {
	suite.Run(t, new(IndicatorTestSuite))
}

func candlesFromCloses(closes ...float64) []types.MarketData {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]types.MarketData, len(closes))

	for i, c := range closes {
		out[i] = types.MarketData{
			Symbol: "BTCUSDT",
			Time:   start.Add(time.Duration(i) * time.Minute),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 10,
		}
	}

	return out
}

func ramp(n int, from, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = from + float64(i)*step
	}

	return out
}

func (suite *IndicatorTestSuite) TestSMA() {
	value, err := SMA([]float64{1, 2, 3, 4, 5}, 3)
	suite.NoError(err)
	suite.InDelta(4.0, value, 1e-9)

	_, err = SMA([]float64{1, 2}, 3)
	suite.True(errors.IsInsufficientDataError(err))
}

func (suite *IndicatorTestSuite) TestEMASeries() {
	series, err := EMASeries([]float64{2, 4, 6, 8}, 3)
	suite.NoError(err)
	suite.Len(series, 2)
	// seed = 4, alpha = 0.5, next = 8*0.5 + 4*0.5
	suite.InDelta(4.0, series[0], 1e-9)
	suite.InDelta(6.0, series[1], 1e-9)

	_, err = EMASeries([]float64{1}, 3)
	suite.True(errors.IsInsufficientDataError(err))
}

func (suite *IndicatorTestSuite) TestRSIBounds() {
	up, err := RSIValue(ramp(20, 100, 1), 14)
	suite.NoError(err)
	suite.Equal(100.0, up)

	down, err := RSIValue(ramp(20, 100, -1), 14)
	suite.NoError(err)
	suite.InDelta(0.0, down, 1e-9)

	flat, err := RSIValue(ramp(20, 100, 0), 14)
	suite.NoError(err)
	suite.Equal(50.0, flat)

	_, err = RSIValue(ramp(14, 100, 1), 14)
	suite.True(errors.IsInsufficientDataError(err))
}

func (suite *IndicatorTestSuite) TestRSIMixed() {
	values := []float64{44, 44.5, 44, 45, 45.5, 45, 46}
	rsi, err := RSIValue(values, 6)
	suite.NoError(err)
	// gains 0.5+1+0.5+1 = 3, losses 0.5+0.5 = 1
	suite.InDelta(75.0, rsi, 1e-6)
}

func (suite *IndicatorTestSuite) TestMACDTrend() {
	result, err := MACDValue(ramp(60, 100, 1), 12, 26, 9)
	suite.NoError(err)
	suite.Greater(result.MACD, 0.0)
	suite.InDelta(result.MACD-result.Signal, result.Histogram, 1e-12)

	_, err = MACDValue(ramp(30, 100, 1), 12, 26, 9)
	suite.True(errors.IsInsufficientDataError(err))
}

func (suite *IndicatorTestSuite) TestBollinger() {
	bands, err := BollingerValue([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 8, 2)
	suite.NoError(err)
	suite.InDelta(5.0, bands.Middle, 1e-9)
	suite.InDelta(9.0, bands.Upper, 1e-9)
	suite.InDelta(1.0, bands.Lower, 1e-9)
}

func (suite *IndicatorTestSuite) TestATR() {
	candles := candlesFromCloses(10, 10, 10, 10)
	value, err := ATRValue(candles, 3)
	suite.NoError(err)
	suite.InDelta(2.0, value, 1e-9)

	_, err = ATRValue(candles, 5)
	suite.True(errors.IsInsufficientDataError(err))
}

func (suite *IndicatorTestSuite) TestDonchianExcludesCurrentCandle() {
	d := NewDonchian()
	suite.NoError(d.Config(3))

	values, err := d.Calculate(candlesFromCloses(10, 12, 11, 13, 50))
	suite.NoError(err)
	suite.Equal(14.0, values[types.IndicatorTypeHighestHigh])
	suite.Equal(10.0, values[types.IndicatorTypeLowestLow])
}

func (suite *IndicatorTestSuite) TestConfigValidation() {
	suite.Error(NewRSI().Config())
	suite.Error(NewRSI().Config("14"))
	suite.Error(NewRSI().Config(0))
	suite.NoError(NewRSI().Config(7))

	suite.Error(NewMACD().Config(26, 12, 9))
	suite.NoError(NewMACD().Config(5, 10, 3))

	suite.Error(NewBollingerBands().Config(20, 0.0))
	suite.Error(NewBollingerBands().Config(20, 2))
	suite.NoError(NewBollingerBands().Config(20, 2.5))
}

func (suite *IndicatorTestSuite) TestComputeSkipsInsufficientData() {
	registry := NewIndicatorRegistry()
	suite.NoError(registry.RegisterIndicator(NewEMA(types.IndicatorTypeEMAFast, 3)))
	suite.NoError(registry.RegisterIndicator(NewEMA(types.IndicatorTypeEMASlow, 50)))
	suite.NoError(registry.RegisterIndicator(NewMA()))

	values, err := Compute(candlesFromCloses(ramp(25, 100, 1)...), registry)
	suite.NoError(err)
	suite.True(values.Has(types.IndicatorTypeEMAFast, types.IndicatorTypeSMA))
	suite.False(values.Has(types.IndicatorTypeEMASlow))
}

func (suite *IndicatorTestSuite) TestRegistry() {
	registry := NewIndicatorRegistry()
	suite.NoError(registry.RegisterIndicator(NewRSI()))
	suite.Error(registry.RegisterIndicator(NewRSI()))

	ind, err := registry.GetIndicator(types.IndicatorTypeRSI)
	suite.NoError(err)
	suite.Equal(types.IndicatorTypeRSI, ind.Name())

	suite.NoError(registry.RegisterIndicator(NewATR()))
	suite.Equal([]types.IndicatorType{types.IndicatorTypeATR, types.IndicatorTypeRSI}, registry.ListIndicators())

	suite.NoError(registry.RemoveIndicator(types.IndicatorTypeRSI))
	suite.Error(registry.RemoveIndicator(types.IndicatorTypeRSI))

	_, err = registry.GetIndicator(types.IndicatorTypeRSI)
	suite.Error(err)
}
