// Package paper is a simulated venue. Orders fill instantly at the feed's last close,
// so no real funds are ever at risk.
package paper

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rxtech-lab/argo-fleet/internal/connector"
	"github.com/rxtech-lab/argo-fleet/internal/marketdata"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
	"github.com/shopspring/decimal"
)

// Config configures the simulated account.
type Config struct {
	InitialBalance float64 `mapstructure:"initial_balance" yaml:"initial_balance" json:"initial_balance" validate:"gt=0"`
	// FeeRate is charged on every fill's notional.
	FeeRate float64 `mapstructure:"fee_rate" yaml:"fee_rate" json:"fee_rate" validate:"gte=0,lt=1"`
	// SlippageBps moves market fills against the order.
	SlippageBps float64 `mapstructure:"slippage_bps" yaml:"slippage_bps" json:"slippage_bps" validate:"gte=0"`
	// PriceInterval is the candle interval used to price market orders.
	PriceInterval string `mapstructure:"price_interval" yaml:"price_interval" json:"price_interval"`
}

type bookKey struct {
	agentID string
	symbol  string
	side    types.PositionType
}

type book struct {
	quantity decimal.Decimal
	avgPrice decimal.Decimal
}

// Venue implements connector.Connector against a market data feed.
type Venue struct {
	mu     sync.Mutex
	config Config
	feed   marketdata.Feed
	now    func() time.Time

	balance decimal.Decimal
	books   map[bookKey]*book
	fills   map[string]types.Fill
	adopted map[string]bool

	subMu       sync.RWMutex
	subscribers map[uint64]connector.FillHandler
	nextSub     uint64
	nextOrder   atomic.Uint64

	// halted makes every PlaceOrder fail with haltReason
	halted     bool
	haltReason string
}

func New(config Config, feed marketdata.Feed) *Venue {
	if config.PriceInterval == "" {
		config.PriceInterval = "1m"
	}

	return &Venue{
		config:      config,
		feed:        feed,
		now:         time.Now,
		balance:     decimal.NewFromFloat(config.InitialBalance),
		books:       make(map[bookKey]*book),
		fills:       make(map[string]types.Fill),
		adopted:     make(map[string]bool),
		subscribers: make(map[uint64]connector.FillHandler),
	}
}

func (v *Venue) FetchCandles(ctx context.Context, symbol string, interval string, limit int) ([]types.MarketData, error) {
	candles, err := v.feed.Candles(ctx, symbol, interval, limit)
	if err != nil {
		return nil, connector.Classify(err, "failed to fetch candles")
	}

	return candles, nil
}

func (v *Venue) GetBalance(_ context.Context) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	balance, _ := v.balance.Float64()

	return balance, nil
}

// Halt makes every order fail with reason until Resume, like an exchange in maintenance.
func (v *Venue) Halt(reason string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.halted = true
	v.haltReason = reason
}

// Resume undoes Halt.
func (v *Venue) Resume() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.halted = false
	v.haltReason = ""
}

// Holding returns the simulated quantity and average price held for an agent.
func (v *Venue) Holding(agentID, symbol string, side types.PositionType) (float64, float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	b, ok := v.books[bookKey{agentID: agentID, symbol: symbol, side: side}]
	if !ok {
		return 0, 0
	}

	qty, _ := b.quantity.Float64()
	avg, _ := b.avgPrice.Float64()

	return qty, avg
}

// Adopt books a position opened before a restart so its reduce-only close fills. A
// position is adopted once; closed positions are ignored.
func (v *Venue) Adopt(position types.Position) {
	if position.Status == types.PositionStatusClosed || position.Size <= 0 {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.adopted[position.ID] {
		return
	}

	v.adopted[position.ID] = true

	key := bookKey{agentID: position.AgentID, symbol: position.Symbol, side: position.Side}
	qty := decimal.NewFromFloat(position.Size)
	px := decimal.NewFromFloat(position.EntryPrice)

	b, ok := v.books[key]
	if !ok {
		b = &book{}
		v.books[key] = b
	}

	total := b.quantity.Add(qty)
	b.avgPrice = b.avgPrice.Mul(b.quantity).Add(px.Mul(qty)).Div(total)
	b.quantity = total
}

// PlaceOrder fills order immediately. A repeated order id returns the original fill.
func (v *Venue) PlaceOrder(ctx context.Context, order types.ExecuteOrder) (types.Fill, error) {
	if err := order.Validate(); err != nil {
		return types.Fill{}, errors.Wrap(errors.ErrCodeConnectorFatal, "rejected order", err)
	}

	v.mu.Lock()
	if fill, ok := v.fills[order.ID]; ok {
		v.mu.Unlock()

		return fill, nil
	}

	failAll, reason := v.halted, v.haltReason
	v.mu.Unlock()

	if failAll {
		return types.Fill{}, errors.Newf(errors.ErrCodeConnectorRetryable, "venue halted: %s", reason)
	}

	price := order.Price
	if order.OrderType == types.OrderTypeMarket {
		last, err := connector.LastPrice(ctx, v, order.Symbol, v.config.PriceInterval)
		if err != nil {
			return types.Fill{}, err
		}

		price = v.slip(last, order.Side)
	}

	v.mu.Lock()

	// another call may have filled the same id while the price was fetched
	if fill, ok := v.fills[order.ID]; ok {
		v.mu.Unlock()

		return fill, nil
	}

	fill, err := v.execute(order, price)
	if err != nil {
		v.mu.Unlock()

		return types.Fill{}, err
	}

	v.fills[order.ID] = fill
	v.mu.Unlock()

	v.publish(fill)

	return fill, nil
}

func (v *Venue) slip(price float64, side types.PurchaseType) float64 {
	if v.config.SlippageBps == 0 {
		return price
	}

	adj := decimal.NewFromFloat(v.config.SlippageBps).Div(decimal.NewFromInt(10000))
	p := decimal.NewFromFloat(price)

	if side == types.PurchaseTypeBuy {
		p = p.Mul(decimal.NewFromInt(1).Add(adj))
	} else {
		p = p.Mul(decimal.NewFromInt(1).Sub(adj))
	}

	out, _ := p.Float64()

	return out
}

// execute must be called with v.mu held.
func (v *Venue) execute(order types.ExecuteOrder, price float64) (types.Fill, error) {
	key := bookKey{agentID: order.AgentID, symbol: order.Symbol, side: order.PositionType}
	qty := decimal.NewFromFloat(order.Quantity)
	px := decimal.NewFromFloat(price)
	fee := qty.Mul(px).Mul(decimal.NewFromFloat(v.config.FeeRate))

	b, ok := v.books[key]
	if !ok {
		b = &book{}
	}

	if order.ReduceOnly {
		if !ok || b.quantity.LessThan(qty) {
			return types.Fill{}, errors.Newf(errors.ErrCodeConnectorFatal,
				"reduce-only order %s exceeds held quantity", order.ID)
		}

		entry, _ := b.avgPrice.Float64()
		pnl := decimal.NewFromFloat(types.CalculatePnL(order.PositionType, entry, price, order.Quantity))

		b.quantity = b.quantity.Sub(qty)
		v.balance = v.balance.Add(pnl).Sub(fee)

		if b.quantity.IsZero() {
			delete(v.books, key)
		}
	} else {
		total := b.quantity.Add(qty)
		b.avgPrice = b.avgPrice.Mul(b.quantity).Add(px.Mul(qty)).Div(total)
		b.quantity = total
		v.books[key] = b
		v.balance = v.balance.Sub(fee)
	}

	feeValue, _ := fee.Float64()

	return types.Fill{
		OrderID:       fmt.Sprintf("paper-%d", v.nextOrder.Add(1)),
		ClientOrderID: order.ID,
		AgentID:       order.AgentID,
		Symbol:        order.Symbol,
		Side:          order.Side,
		PositionType:  order.PositionType,
		Price:         price,
		Quantity:      order.Quantity,
		Fee:           feeValue,
		Timestamp:     v.now(),
	}, nil
}

func (v *Venue) publish(fill types.Fill) {
	v.subMu.RLock()
	handlers := make([]connector.FillHandler, 0, len(v.subscribers))
	for _, h := range v.subscribers {
		handlers = append(handlers, h)
	}
	v.subMu.RUnlock()

	for _, h := range handlers {
		h(fill)
	}
}

// CancelOrder always fails: paper orders never rest.
func (v *Venue) CancelOrder(_ context.Context, orderID string) error {
	return errors.Newf(errors.ErrCodeOrderFailed, "order %s is not open", orderID)
}

// StreamFills registers handler and blocks until ctx is done.
func (v *Venue) StreamFills(ctx context.Context, handler connector.FillHandler) error {
	v.subMu.Lock()
	v.nextSub++
	id := v.nextSub
	v.subscribers[id] = handler
	v.subMu.Unlock()

	<-ctx.Done()

	v.subMu.Lock()
	delete(v.subscribers, id)
	v.subMu.Unlock()

	return nil
}

var _ connector.Connector = (*Venue)(nil)
