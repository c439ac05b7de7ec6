package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
)

type PurchaseType string

type OrderType string

type PositionType string

const (
	PositionTypeLong  PositionType = "LONG"
	PositionTypeShort PositionType = "SHORT"
)

const (
	PurchaseTypeBuy  PurchaseType = "BUY"
	PurchaseTypeSell PurchaseType = "SELL"
)

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

const (
	OrderReasonStopLoss      string = "stop_loss"
	OrderReasonTakeProfit    string = "take_profit"
	OrderReasonStrategy      string = "strategy"
	OrderReasonManual        string = "manual"
	OrderReasonForced        string = "forced"
	OrderReasonEmergency     string = "emergency"
	OrderReasonReverseSignal string = "reverse_signal"
)

type Reason struct {
	Reason  string `yaml:"reason" json:"reason" validate:"required"`
	Message string `yaml:"message" json:"message"`
}

// ExecuteOrder is an order handed to a connector.
type ExecuteOrder struct {
	ID           string       `yaml:"id" json:"id" validate:"required,uuid"`
	AgentID      string       `yaml:"agent_id" json:"agent_id" validate:"required"`
	Symbol       string       `yaml:"symbol" json:"symbol" validate:"required"`
	Side         PurchaseType `yaml:"side" json:"side" validate:"required,oneof=BUY SELL"`
	OrderType    OrderType    `yaml:"order_type" json:"order_type" validate:"required,oneof=MARKET LIMIT"`
	Reason       Reason       `yaml:"reason" json:"reason" validate:"required"`
	// Price is the reference price. Market orders may fill elsewhere.
	Price        float64      `yaml:"price" json:"price" validate:"gte=0"`
	StrategyName string       `yaml:"strategy_name" json:"strategy_name"`
	Quantity     float64      `yaml:"quantity" json:"quantity" validate:"required,gt=0"`
	PositionType PositionType `yaml:"position_type" json:"position_type" validate:"required,oneof=LONG SHORT"`
	// ReduceOnly marks an order that closes an existing position.
	ReduceOnly bool `yaml:"reduce_only" json:"reduce_only"`
	// PositionID links a closing order to the position it closes.
	PositionID string `yaml:"position_id" json:"position_id"`
}

// Validate validates the ExecuteOrder struct.
func (eo *ExecuteOrder) Validate() error {
	validate := validator.New()

	if err := validate.Struct(eo); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid execute order", err)
	}

	if eo.OrderType == OrderTypeLimit && eo.Price <= 0 {
		return errors.New(errors.ErrCodeInvalidParameter, "limit order requires a positive price")
	}

	return nil
}

// Fill is a venue execution report.
type Fill struct {
	OrderID       string       `yaml:"order_id" json:"order_id"`
	ClientOrderID string       `yaml:"client_order_id" json:"client_order_id"`
	AgentID       string       `yaml:"agent_id" json:"agent_id"`
	Symbol        string       `yaml:"symbol" json:"symbol"`
	Side          PurchaseType `yaml:"side" json:"side"`
	PositionType  PositionType `yaml:"position_type" json:"position_type"`
	Price         float64      `yaml:"price" json:"price"`
	Quantity      float64      `yaml:"quantity" json:"quantity"`
	Fee           float64      `yaml:"fee" json:"fee"`
	Timestamp     time.Time    `yaml:"timestamp" json:"timestamp"`
}

// Notional returns price times quantity.
func (f Fill) Notional() float64 {
	return f.Price * f.Quantity
}

// EntrySide returns the order side that opens a position of type pt.
func EntrySide(pt PositionType) PurchaseType {
	if pt == PositionTypeShort {
		return PurchaseTypeSell
	}

	return PurchaseTypeBuy
}

// ExitSide returns the order side that closes a position of type pt.
func ExitSide(pt PositionType) PurchaseType {
	if pt == PositionTypeShort {
		return PurchaseTypeBuy
	}

	return PurchaseTypeSell
}
