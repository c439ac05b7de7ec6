// Package binance adapts the Binance spot testnet to connector.Connector. Only the
// testnet is reachable: the live endpoint is refused at construction.
package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/rxtech-lab/argo-fleet/internal/connector"
	"github.com/rxtech-lab/argo-fleet/internal/marketdata"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
)

// DecimalPrecision is the fallback quantity precision (satoshi level).
const DecimalPrecision = 8

// Service interfaces for mocking the Binance API

// CreateOrderService interface for creating orders.
type CreateOrderService interface {
	Symbol(symbol string) CreateOrderService
	Side(side binance.SideType) CreateOrderService
	Type(orderType binance.OrderType) CreateOrderService
	Quantity(quantity string) CreateOrderService
	Price(price string) CreateOrderService
	TimeInForce(tif binance.TimeInForceType) CreateOrderService
	NewClientOrderID(id string) CreateOrderService
	Do(ctx context.Context) (*binance.CreateOrderResponse, error)
}

// GetAccountService interface for getting account info.
type GetAccountService interface {
	Do(ctx context.Context) (*binance.Account, error)
}

// CancelOrderService interface for canceling orders.
type CancelOrderService interface {
	Symbol(symbol string) CancelOrderService
	OrderID(orderID int64) CancelOrderService
	Do(ctx context.Context) (*binance.CancelOrderResponse, error)
}

// Client abstracts the Binance client for testing.
type Client interface {
	NewCreateOrderService() CreateOrderService
	NewGetAccountService() GetAccountService
	NewCancelOrderService() CancelOrderService
	marketdata.KlinesFetcher
}

type realClient struct {
	client *binance.Client
}

func (r *realClient) NewCreateOrderService() CreateOrderService {
	return &realCreateOrderService{service: r.client.NewCreateOrderService()}
}

func (r *realClient) NewGetAccountService() GetAccountService {
	return &realGetAccountService{service: r.client.NewGetAccountService()}
}

func (r *realClient) NewCancelOrderService() CancelOrderService {
	return &realCancelOrderService{service: r.client.NewCancelOrderService()}
}

func (r *realClient) Klines(ctx context.Context, symbol string, interval string, limit int) ([]*binance.Kline, error) {
	return r.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
}

type realCreateOrderService struct {
	service *binance.CreateOrderService
}

func (s *realCreateOrderService) Symbol(symbol string) CreateOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realCreateOrderService) Side(side binance.SideType) CreateOrderService {
	s.service = s.service.Side(side)

	return s
}

func (s *realCreateOrderService) Type(orderType binance.OrderType) CreateOrderService {
	s.service = s.service.Type(orderType)

	return s
}

func (s *realCreateOrderService) Quantity(quantity string) CreateOrderService {
	s.service = s.service.Quantity(quantity)

	return s
}

func (s *realCreateOrderService) Price(price string) CreateOrderService {
	s.service = s.service.Price(price)

	return s
}

func (s *realCreateOrderService) TimeInForce(tif binance.TimeInForceType) CreateOrderService {
	s.service = s.service.TimeInForce(tif)

	return s
}

func (s *realCreateOrderService) NewClientOrderID(id string) CreateOrderService {
	s.service = s.service.NewClientOrderID(id)

	return s
}

func (s *realCreateOrderService) Do(ctx context.Context) (*binance.CreateOrderResponse, error) {
	return s.service.Do(ctx)
}

type realGetAccountService struct {
	service *binance.GetAccountService
}

func (s *realGetAccountService) Do(ctx context.Context) (*binance.Account, error) {
	return s.service.Do(ctx)
}

type realCancelOrderService struct {
	service *binance.CancelOrderService
}

func (s *realCancelOrderService) Symbol(symbol string) CancelOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realCancelOrderService) OrderID(orderID int64) CancelOrderService {
	s.service = s.service.OrderID(orderID)

	return s
}

func (s *realCancelOrderService) Do(ctx context.Context) (*binance.CancelOrderResponse, error) {
	return s.service.Do(ctx)
}

// Testnet implements connector.Connector on the Binance spot testnet. Spot has no
// shorts, so short entries are rejected.
type Testnet struct {
	client     Client
	quoteAsset string
	precision  int

	subMu       sync.RWMutex
	subscribers map[uint64]connector.FillHandler
	nextSub     uint64
}

// New creates a testnet connector.
func New(config Config) (*Testnet, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	binance.UseTestnet = true
	client := binance.NewClient(config.APIKey, config.SecretKey)

	if config.BaseURL != "" {
		client.BaseURL = config.BaseURL
	}

	return newWithClient(&realClient{client: client}, config.QuoteAsset), nil
}

func newWithClient(client Client, quoteAsset string) *Testnet {
	if quoteAsset == "" {
		quoteAsset = "USDT"
	}

	return &Testnet{
		client:      client,
		quoteAsset:  quoteAsset,
		precision:   DecimalPrecision,
		subscribers: make(map[uint64]connector.FillHandler),
	}
}

func (t *Testnet) SupportsShort() bool {
	return false
}

func (t *Testnet) FetchCandles(ctx context.Context, symbol string, interval string, limit int) ([]types.MarketData, error) {
	klines, err := t.client.Klines(ctx, symbol, interval, limit)
	if err != nil {
		return nil, classify(err, "failed to fetch klines from Binance testnet")
	}

	return marketdata.ConvertKlines(symbol, klines), nil
}

func (t *Testnet) GetBalance(ctx context.Context) (float64, error) {
	account, err := t.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, classify(err, "failed to get account info from Binance testnet")
	}

	var total float64

	for _, balance := range account.Balances {
		if balance.Asset != t.quoteAsset {
			continue
		}

		free, _ := strconv.ParseFloat(balance.Free, 64)
		locked, _ := strconv.ParseFloat(balance.Locked, 64)
		total += free + locked
	}

	return total, nil
}

func (t *Testnet) PlaceOrder(ctx context.Context, order types.ExecuteOrder) (types.Fill, error) {
	if err := order.Validate(); err != nil {
		return types.Fill{}, errors.Wrap(errors.ErrCodeConnectorFatal, "rejected order", err)
	}

	if order.PositionType == types.PositionTypeShort {
		return types.Fill{}, errors.New(errors.ErrCodeConnectorFatal, "binance spot does not support short positions")
	}

	var side binance.SideType

	switch order.Side {
	case types.PurchaseTypeBuy:
		side = binance.SideTypeBuy
	case types.PurchaseTypeSell:
		side = binance.SideTypeSell
	default:
		return types.Fill{}, errors.Newf(errors.ErrCodeConnectorFatal, "unsupported order side: %s", order.Side)
	}

	quantity := roundDown(order.Quantity, t.precision)
	if quantity <= 0 {
		return types.Fill{}, errors.Newf(errors.ErrCodeConnectorFatal,
			"order quantity %.8f is too small after rounding to %d decimal places", order.Quantity, t.precision)
	}

	service := t.client.NewCreateOrderService().
		Symbol(order.Symbol).
		Side(side).
		Quantity(strconv.FormatFloat(quantity, 'f', t.precision, 64)).
		NewClientOrderID(clientOrderID(order.ID))

	if order.OrderType == types.OrderTypeLimit {
		service = service.
			Type(binance.OrderTypeLimit).
			Price(strconv.FormatFloat(order.Price, 'f', -1, 64)).
			TimeInForce(binance.TimeInForceTypeGTC)
	} else {
		service = service.Type(binance.OrderTypeMarket)
	}

	resp, err := service.Do(ctx)
	if err != nil {
		return types.Fill{}, classify(err, "failed to place order on Binance testnet")
	}

	fill := convertOrderResponse(order, resp)
	t.publish(fill)

	return fill, nil
}

// CancelOrder accepts the "SYMBOL:ID" order ids produced by PlaceOrder.
func (t *Testnet) CancelOrder(ctx context.Context, orderID string) error {
	symbol, rawID, ok := strings.Cut(orderID, ":")
	if !ok {
		return errors.Newf(errors.ErrCodeInvalidParameter, "invalid order ID format: %s", orderID)
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid order ID format", err)
	}

	if _, err := t.client.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx); err != nil {
		return classify(err, "failed to cancel order on Binance testnet")
	}

	return nil
}

// StreamFills delivers the fills of orders placed through this handle until ctx is done.
func (t *Testnet) StreamFills(ctx context.Context, handler connector.FillHandler) error {
	t.subMu.Lock()
	t.nextSub++
	id := t.nextSub
	t.subscribers[id] = handler
	t.subMu.Unlock()

	<-ctx.Done()

	t.subMu.Lock()
	delete(t.subscribers, id)
	t.subMu.Unlock()

	return nil
}

func (t *Testnet) publish(fill types.Fill) {
	t.subMu.RLock()
	defer t.subMu.RUnlock()

	for _, h := range t.subscribers {
		h(fill)
	}
}

func convertOrderResponse(order types.ExecuteOrder, resp *binance.CreateOrderResponse) types.Fill {
	executed, _ := strconv.ParseFloat(resp.ExecutedQuantity, 64)
	quote, _ := strconv.ParseFloat(resp.CummulativeQuoteQuantity, 64)

	price := order.Price
	if executed > 0 && quote > 0 {
		price = quote / executed
	}

	var fee float64

	for _, f := range resp.Fills {
		commission, _ := strconv.ParseFloat(f.Commission, 64)
		fee += commission
	}

	if executed == 0 {
		executed = order.Quantity
	}

	return types.Fill{
		OrderID:       fmt.Sprintf("%s:%d", resp.Symbol, resp.OrderID),
		ClientOrderID: order.ID,
		AgentID:       order.AgentID,
		Symbol:        order.Symbol,
		Side:          order.Side,
		PositionType:  order.PositionType,
		Price:         price,
		Quantity:      executed,
		Fee:           fee,
		Timestamp:     time.UnixMilli(resp.TransactTime).UTC(),
	}
}

// Binance client order ids are limited to 36 characters of [a-zA-Z0-9-_].
func clientOrderID(id string) string {
	if len(id) > 36 {
		return id[:36]
	}

	return id
}

func roundDown(v float64, precision int) float64 {
	s := strconv.FormatFloat(v, 'f', precision+2, 64)
	if dot := strings.IndexByte(s, '.'); dot >= 0 && len(s) > dot+1+precision {
		s = s[:dot+1+precision]
	}

	out, _ := strconv.ParseFloat(s, 64)

	return out
}

// retryableCodes are Binance API errors worth retrying.
var retryableCodes = map[int64]bool{
	-1000: true, // unknown error
	-1001: true, // disconnected
	-1003: true, // too many requests
	-1006: true, // unexpected response
	-1007: true, // timeout
	-1015: true, // too many orders
}

func classify(err error, message string) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		if retryableCodes[apiErr.Code] {
			return errors.Wrap(errors.ErrCodeConnectorRetryable, message, err)
		}

		return errors.Wrap(errors.ErrCodeConnectorFatal, message, err)
	}

	return connector.Classify(err, message)
}

var (
	_ connector.Connector   = (*Testnet)(nil)
	_ connector.ShortSeller = (*Testnet)(nil)
)
