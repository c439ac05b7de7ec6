package types

import "time"

// SignalAction is the action proposed by a strategy.
type SignalAction string

const (
	// SignalActionBuy opens (or keeps) a long position
	SignalActionBuy SignalAction = "BUY"
	// SignalActionSell opens (or keeps) a short position
	SignalActionSell SignalAction = "SELL"
	// SignalActionHold takes no action
	SignalActionHold SignalAction = "HOLD"
)

// PositionType returns the position a BUY or SELL would open.
func (a SignalAction) PositionType() PositionType {
	if a == SignalActionSell {
		return PositionTypeShort
	}

	return PositionTypeLong
}

type Signal struct {
	// Time is the time of the signal
	Time time.Time `json:"time" yaml:"time"`
	// Symbol is the symbol of the signal
	Symbol string `json:"symbol" yaml:"symbol"`
	// Action is the proposed action
	Action SignalAction `json:"action" yaml:"action"`
	// Confidence is in [0,1]
	Confidence float64 `json:"confidence" yaml:"confidence"`
	// Reason is a human readable rationale
	Reason string `json:"reason" yaml:"reason"`
	// Strategy is the name of the strategy that produced the signal
	Strategy StrategyKind `json:"strategy" yaml:"strategy"`
	// Indicators holds the indicator values the decision was based on
	Indicators map[IndicatorType]float64 `json:"indicators" yaml:"indicators"`
}

// Hold returns a no-action signal.
func Hold(symbol string, reason string) Signal {
	return Signal{
		Time:       time.Now(),
		Symbol:     symbol,
		Action:     SignalActionHold,
		Confidence: 0,
		Reason:     reason,
		Strategy:   "",
		Indicators: nil,
	}
}
