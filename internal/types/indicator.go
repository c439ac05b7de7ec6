package types

type IndicatorType string

const (
	IndicatorTypeRSI            IndicatorType = "rsi"
	IndicatorTypeMACD           IndicatorType = "macd"
	IndicatorTypeMACDSignal     IndicatorType = "macd_signal"
	IndicatorTypeMACDHistogram  IndicatorType = "macd_histogram"
	IndicatorTypeBollingerUpper IndicatorType = "bollinger_upper"
	IndicatorTypeBollingerMid   IndicatorType = "bollinger_middle"
	IndicatorTypeBollingerLower IndicatorType = "bollinger_lower"
	IndicatorTypeEMAFast        IndicatorType = "ema_fast"
	IndicatorTypeEMASlow        IndicatorType = "ema_slow"
	IndicatorTypeSMA            IndicatorType = "sma"
	IndicatorTypeATR            IndicatorType = "atr"
	IndicatorTypeHighestHigh    IndicatorType = "highest_high"
	IndicatorTypeLowestLow      IndicatorType = "lowest_low"
)

// Indicator registry keys for multi-value indicators.
const (
	IndicatorTypeBollingerBands IndicatorType = "bollinger_bands"
	IndicatorTypeDonchian       IndicatorType = "donchian"
)
