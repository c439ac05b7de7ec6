package binance

import (
	"context"
	"testing"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-fleet/internal/connector"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
	"github.com/stretchr/testify/suite"
)

const (
	timeout = time.Second
	tick    = 5 * time.Millisecond
)

type fakeCreateOrder struct {
	client   *fakeClient
	symbol   string
	side     binance.SideType
	kind     binance.OrderType
	quantity string
	price    string
	clientID string
}

func (f *fakeCreateOrder) Symbol(symbol string) CreateOrderService {
	f.symbol = symbol

	return f
}

func (f *fakeCreateOrder) Side(side binance.SideType) CreateOrderService {
	f.side = side

	return f
}

func (f *fakeCreateOrder) Type(orderType binance.OrderType) CreateOrderService {
	f.kind = orderType

	return f
}

func (f *fakeCreateOrder) Quantity(quantity string) CreateOrderService {
	f.quantity = quantity

	return f
}

func (f *fakeCreateOrder) Price(price string) CreateOrderService {
	f.price = price

	return f
}

func (f *fakeCreateOrder) TimeInForce(binance.TimeInForceType) CreateOrderService {
	return f
}

func (f *fakeCreateOrder) NewClientOrderID(id string) CreateOrderService {
	f.clientID = id

	return f
}

func (f *fakeCreateOrder) Do(context.Context) (*binance.CreateOrderResponse, error) {
	f.client.lastOrder = f
	if f.client.orderErr != nil {
		return nil, f.client.orderErr
	}

	return &binance.CreateOrderResponse{
		Symbol:                   f.symbol,
		OrderID:                  77,
		ClientOrderID:            f.clientID,
		TransactTime:             1700000000000,
		ExecutedQuantity:         f.quantity,
		CummulativeQuoteQuantity: "101.5",
		Fills: []*binance.Fill{
			{Price: "101.5", Quantity: f.quantity, Commission: "0.1"},
		},
	}, nil
}

type fakeAccount struct {
	account *binance.Account
}

func (f *fakeAccount) Do(context.Context) (*binance.Account, error) {
	return f.account, nil
}

type fakeCancel struct {
	client *fakeClient
	symbol string
	id     int64
}

func (f *fakeCancel) Symbol(symbol string) CancelOrderService {
	f.symbol = symbol

	return f
}

func (f *fakeCancel) OrderID(orderID int64) CancelOrderService {
	f.id = orderID

	return f
}

func (f *fakeCancel) Do(context.Context) (*binance.CancelOrderResponse, error) {
	f.client.lastCancel = f

	return &binance.CancelOrderResponse{}, nil
}

type fakeClient struct {
	lastOrder  *fakeCreateOrder
	lastCancel *fakeCancel
	orderErr   error
	klines     []*binance.Kline
}

func (f *fakeClient) NewCreateOrderService() CreateOrderService {
	return &fakeCreateOrder{client: f}
}

func (f *fakeClient) NewGetAccountService() GetAccountService {
	return &fakeAccount{account: &binance.Account{
		Balances: []binance.Balance{
			{Asset: "BTC", Free: "1", Locked: "0"},
			{Asset: "USDT", Free: "900.5", Locked: "99.5"},
		},
	}}
}

func (f *fakeClient) NewCancelOrderService() CancelOrderService {
	return &fakeCancel{client: f}
}

func (f *fakeClient) Klines(context.Context, string, string, int) ([]*binance.Kline, error) {
	return f.klines, nil
}

type TestnetTestSuite struct {
	suite.Suite
	client  *fakeClient
	testnet *Testnet
}

func TestTestnetSuite(t *testing.T) {
	suite.Run(t, new(TestnetTestSuite))
}

func (suite *TestnetTestSuite) SetupTest() {
	suite.client = &fakeClient{}
	suite.testnet = newWithClient(suite.client, "")
}

func (suite *TestnetTestSuite) buy(qty float64) types.ExecuteOrder {
	return types.ExecuteOrder{
		ID:           uuid.New().String(),
		AgentID:      "agent-1",
		Symbol:       "BTCUSDT",
		Side:         types.PurchaseTypeBuy,
		OrderType:    types.OrderTypeMarket,
		Reason:       types.Reason{Reason: types.OrderReasonStrategy},
		Quantity:     qty,
		PositionType: types.PositionTypeLong,
	}
}

func (suite *TestnetTestSuite) TestConfigRefusesLiveEndpoint() {
	cfg := Config{APIKey: "k", SecretKey: "s", BaseURL: "https://api.binance.com"}
	suite.True(errors.HasCode(cfg.Validate(), errors.ErrCodeUnsupportedVenue))

	cfg.BaseURL = "https://testnet.binance.vision"
	suite.NoError(cfg.Validate())

	suite.True(errors.HasCode((&Config{}).Validate(), errors.ErrCodeInvalidConfig))
}

func (suite *TestnetTestSuite) TestPlaceMarketOrder() {
	order := suite.buy(0.123456789)

	fill, err := suite.testnet.PlaceOrder(context.Background(), order)
	suite.NoError(err)
	suite.Equal("0.12345678", suite.client.lastOrder.quantity)
	suite.Equal(binance.OrderTypeMarket, suite.client.lastOrder.kind)
	suite.Equal(binance.SideTypeBuy, suite.client.lastOrder.side)
	suite.Equal(order.ID, suite.client.lastOrder.clientID)
	suite.Equal("BTCUSDT:77", fill.OrderID)
	suite.Equal(order.ID, fill.ClientOrderID)
	suite.InDelta(101.5/0.12345678, fill.Price, 1e-6)
	suite.InDelta(0.1, fill.Fee, 1e-9)
}

func (suite *TestnetTestSuite) TestRejectsShortEntries() {
	suite.False(suite.testnet.SupportsShort())

	order := suite.buy(1)
	order.Side = types.PurchaseTypeSell
	order.PositionType = types.PositionTypeShort

	_, err := suite.testnet.PlaceOrder(context.Background(), order)
	suite.True(errors.HasCode(err, errors.ErrCodeConnectorFatal))
	suite.Nil(suite.client.lastOrder)
}

func (suite *TestnetTestSuite) TestQuantityTooSmall() {
	_, err := suite.testnet.PlaceOrder(context.Background(), suite.buy(0.000000001))
	suite.True(errors.HasCode(err, errors.ErrCodeConnectorFatal))
}

func (suite *TestnetTestSuite) TestAPIErrorClassification() {
	suite.client.orderErr = &common.APIError{Code: -1003, Message: "too many requests"}

	_, err := suite.testnet.PlaceOrder(context.Background(), suite.buy(1))
	suite.True(errors.IsRetryable(err))

	suite.client.orderErr = &common.APIError{Code: -2010, Message: "insufficient balance"}

	_, err = suite.testnet.PlaceOrder(context.Background(), suite.buy(1))
	suite.True(errors.HasCode(err, errors.ErrCodeConnectorFatal))
}

func (suite *TestnetTestSuite) TestBalance() {
	balance, err := suite.testnet.GetBalance(context.Background())
	suite.NoError(err)
	suite.Equal(1000.0, balance)
}

func (suite *TestnetTestSuite) TestCancelOrder() {
	suite.NoError(suite.testnet.CancelOrder(context.Background(), "BTCUSDT:77"))
	suite.Equal("BTCUSDT", suite.client.lastCancel.symbol)
	suite.Equal(int64(77), suite.client.lastCancel.id)

	err := suite.testnet.CancelOrder(context.Background(), "77")
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (suite *TestnetTestSuite) TestFetchCandles() {
	suite.client.klines = []*binance.Kline{
		{OpenTime: 1700000000000, Open: "1", High: "2", Low: "0.5", Close: "1.5", Volume: "10"},
	}

	candles, err := suite.testnet.FetchCandles(context.Background(), "BTCUSDT", "1m", 1)
	suite.NoError(err)
	suite.Len(candles, 1)
	suite.Equal(1.5, candles[0].Close)
}

func (suite *TestnetTestSuite) TestStreamFillsReceivesPlacedOrders() {
	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan types.Fill, 1)
	done := make(chan error, 1)

	go func() {
		done <- suite.testnet.StreamFills(ctx, func(f types.Fill) { received <- f })
	}()

	suite.Eventually(func() bool {
		suite.testnet.subMu.RLock()
		defer suite.testnet.subMu.RUnlock()

		return len(suite.testnet.subscribers) == 1
	}, timeout, tick)

	_, err := suite.testnet.PlaceOrder(ctx, suite.buy(1))
	suite.NoError(err)

	fill := <-received
	suite.Equal("BTCUSDT:77", fill.OrderID)

	cancel()
	suite.NoError(<-done)
}

var _ connector.Connector = (*Testnet)(nil)
