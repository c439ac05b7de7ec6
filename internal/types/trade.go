package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus is the lifecycle status of a position. It only moves forward.
type PositionStatus string

const (
	PositionStatusOpen       PositionStatus = "OPEN"
	PositionStatusMonitoring PositionStatus = "MONITORING"
	PositionStatusClosing    PositionStatus = "CLOSING"
	PositionStatusClosed     PositionStatus = "CLOSED"
)

func (s PositionStatus) rank() int {
	switch s {
	case PositionStatusOpen:
		return 1
	case PositionStatusMonitoring:
		return 2
	case PositionStatusClosing:
		return 3
	case PositionStatusClosed:
		return 4
	default:
		return 0
	}
}

// CanTransitionTo reports whether next lies strictly after s in OPEN, MONITORING, CLOSING, CLOSED.
func (s PositionStatus) CanTransitionTo(next PositionStatus) bool {
	return next.rank() > s.rank() && s.rank() > 0
}

// IsActive reports whether the position still needs monitoring or closing.
func (s PositionStatus) IsActive() bool {
	return s == PositionStatusOpen || s == PositionStatusMonitoring || s == PositionStatusClosing
}

// CloseReason records why a position was closed.
type CloseReason string

const (
	CloseReasonStopLoss      CloseReason = "stop_loss"
	CloseReasonTakeProfit    CloseReason = "take_profit"
	CloseReasonManual        CloseReason = "manual"
	CloseReasonForced        CloseReason = "forced"
	CloseReasonEmergency     CloseReason = "emergency"
	CloseReasonReverseSignal CloseReason = "reverse_signal"
)

// Position is a single open or closed position owned by one agent.
type Position struct {
	ID            string         `yaml:"id" json:"id"`
	AgentID       string         `yaml:"agent_id" json:"agent_id"`
	Symbol        string         `yaml:"symbol" json:"symbol"`
	Side          PositionType   `yaml:"side" json:"side"`
	EntryPrice    float64        `yaml:"entry_price" json:"entry_price"`
	Size          float64        `yaml:"size" json:"size"`
	Stake         float64        `yaml:"stake" json:"stake"`
	Leverage      float64        `yaml:"leverage" json:"leverage"`
	StopLoss      float64        `yaml:"stop_loss" json:"stop_loss"`
	TakeProfit    float64        `yaml:"take_profit" json:"take_profit"`
	Status        PositionStatus `yaml:"status" json:"status"`
	OpenedAt      time.Time      `yaml:"opened_at" json:"opened_at"`
	UpdatedAt     time.Time      `yaml:"updated_at" json:"updated_at"`
	EntryOrderID  string         `yaml:"entry_order_id" json:"entry_order_id"`
	ReservationID string         `yaml:"reservation_id" json:"reservation_id"`
	CurrentPrice  float64        `yaml:"current_price" json:"current_price"`
	UnrealizedPnL float64        `yaml:"unrealized_pnl" json:"unrealized_pnl"`
	// Terminal outcome. Set once when the position reaches CLOSED.
	CloseOrderID string      `yaml:"close_order_id" json:"close_order_id"`
	CloseReason  CloseReason `yaml:"close_reason" json:"close_reason"`
	ExitPrice    float64     `yaml:"exit_price" json:"exit_price"`
	RealizedPnL  float64     `yaml:"realized_pnl" json:"realized_pnl"`
	Fee          float64     `yaml:"fee" json:"fee"`
	ClosedAt     time.Time   `yaml:"closed_at" json:"closed_at"`
}

// CalculatePnL returns (price - entry) * size * sign(side).
// For example, a long of 2 units at 100 marked at 94 is (94-100)*2 = -12.
func CalculatePnL(side PositionType, entryPrice, price, size float64) float64 {
	diff := decimal.NewFromFloat(price).Sub(decimal.NewFromFloat(entryPrice))
	pnl := diff.Mul(decimal.NewFromFloat(size))

	if side == PositionTypeShort {
		pnl = pnl.Neg()
	}

	result, _ := pnl.Float64()

	return result
}

// Mark recomputes the unrealized PnL at price.
func (p *Position) Mark(price float64) {
	p.CurrentPrice = price
	p.UnrealizedPnL = CalculatePnL(p.Side, p.EntryPrice, price, p.Size)
}

// StopLossHit reports whether price has crossed the stop-loss.
func (p *Position) StopLossHit(price float64) bool {
	if p.StopLoss <= 0 {
		return false
	}

	if p.Side == PositionTypeShort {
		return price >= p.StopLoss
	}

	return price <= p.StopLoss
}

// TakeProfitHit reports whether price has crossed the take-profit.
func (p *Position) TakeProfitHit(price float64) bool {
	if p.TakeProfit <= 0 {
		return false
	}

	if p.Side == PositionTypeShort {
		return price <= p.TakeProfit
	}

	return price >= p.TakeProfit
}

// IsWin reports whether a closed position made money.
func (p *Position) IsWin() bool {
	return p.RealizedPnL > 0
}

// PositionOutcome filters history by result.
type PositionOutcome string

const (
	PositionOutcomeAll  PositionOutcome = ""
	PositionOutcomeWin  PositionOutcome = "win"
	PositionOutcomeLoss PositionOutcome = "loss"
)

// PositionFilter is used to filter closed positions when querying history.
type PositionFilter struct {
	// Symbol restricts the result to one trading pair (empty means all)
	Symbol string `json:"symbol" yaml:"symbol"`
	// From filters positions closed at or after this time (zero time means no filter)
	From time.Time `json:"from" yaml:"from"`
	// To filters positions closed before this time (zero time means no filter)
	To time.Time `json:"to" yaml:"to"`
	// Outcome filters by win or loss
	Outcome PositionOutcome `json:"outcome" yaml:"outcome"`
	// Limit limits the number of positions returned (0 means no limit)
	Limit int `json:"limit" yaml:"limit"`
	// Offset skips this many positions, newest first
	Offset int `json:"offset" yaml:"offset"`
}
