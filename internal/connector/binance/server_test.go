package binance

import (
	"context"
	"testing"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-fleet/internal/connector"
	"github.com/rxtech-lab/argo-fleet/internal/connector/binance/binancetest"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
	"github.com/stretchr/testify/suite"
)

// TestnetServerTestSuite drives the connector through the real Binance client against a
// local mock of the REST API.
type TestnetServerTestSuite struct {
	suite.Suite
	server  *binancetest.Server
	testnet *Testnet
}

func TestTestnetServerSuite(t *testing.T) {
	suite.Run(t, new(TestnetServerTestSuite))
}

func (suite *TestnetServerTestSuite) SetupTest() {
	suite.server = binancetest.NewServer(binancetest.Config{
		InitialBalances: map[string]float64{"USDT": 10000},
		Prices:          map[string]float64{"BTCUSDT": 50000},
	})

	client := binance.NewClient("key", "secret")
	client.BaseURL = suite.server.URL()
	suite.testnet = newWithClient(&realClient{client: client}, "USDT")
}

func (suite *TestnetServerTestSuite) TearDownTest() {
	suite.server.Close()
}

func (suite *TestnetServerTestSuite) order(side types.PurchaseType, kind types.OrderType, qty, price float64) types.ExecuteOrder {
	return types.ExecuteOrder{
		ID:           uuid.New().String(),
		AgentID:      "agent-1",
		Symbol:       "BTCUSDT",
		Side:         side,
		OrderType:    kind,
		Reason:       types.Reason{Reason: types.OrderReasonStrategy},
		Price:        price,
		Quantity:     qty,
		PositionType: types.PositionTypeLong,
	}
}

func (suite *TestnetServerTestSuite) TestBalance() {
	balance, err := suite.testnet.GetBalance(context.Background())
	suite.Require().NoError(err)
	suite.InDelta(10000, balance, 1e-9)
}

func (suite *TestnetServerTestSuite) TestMarketRoundTrip() {
	ctx := context.Background()

	buy := suite.order(types.PurchaseTypeBuy, types.OrderTypeMarket, 0.01, 50000)
	fill, err := suite.testnet.PlaceOrder(ctx, buy)
	suite.Require().NoError(err)

	suite.Equal("BTCUSDT:1001", fill.OrderID)
	suite.Equal(buy.ID, fill.ClientOrderID)
	suite.InDelta(50000, fill.Price, 1e-6)
	suite.InDelta(0.01, fill.Quantity, 1e-12)
	suite.InDelta(0.5, fill.Fee, 1e-9)

	order, ok := suite.server.Order(1001)
	suite.Require().True(ok)
	suite.Equal(binancetest.OrderStatusFilled, order.Status)
	suite.Equal(buy.ID, order.ClientOrderID)
	suite.InDelta(9499.5, suite.server.Balance("USDT").Free, 1e-9)
	suite.InDelta(0.01, suite.server.Balance("BTC").Free, 1e-12)

	suite.server.SetPrice("BTCUSDT", 51000)

	sell := suite.order(types.PurchaseTypeSell, types.OrderTypeMarket, 0.01, 51000)
	fill, err = suite.testnet.PlaceOrder(ctx, sell)
	suite.Require().NoError(err)
	suite.InDelta(51000, fill.Price, 1e-6)
	suite.InDelta(0, suite.server.Balance("BTC").Free, 1e-12)
}

func (suite *TestnetServerTestSuite) TestLimitOrderCancel() {
	ctx := context.Background()

	fill, err := suite.testnet.PlaceOrder(ctx, suite.order(types.PurchaseTypeBuy, types.OrderTypeLimit, 0.01, 45000))
	suite.Require().NoError(err)

	order, ok := suite.server.Order(1001)
	suite.Require().True(ok)
	suite.Equal(binancetest.OrderStatusNew, order.Status)
	suite.InDelta(45000, order.Price, 1e-9)

	suite.Require().NoError(suite.testnet.CancelOrder(ctx, fill.OrderID))

	order, _ = suite.server.Order(1001)
	suite.Equal(binancetest.OrderStatusCanceled, order.Status)

	err = suite.testnet.CancelOrder(ctx, fill.OrderID)
	suite.True(errors.HasCode(err, errors.ErrCodeConnectorFatal), "got %v", err)
}

func (suite *TestnetServerTestSuite) TestInsufficientBalanceIsFatal() {
	_, err := suite.testnet.PlaceOrder(context.Background(), suite.order(types.PurchaseTypeBuy, types.OrderTypeMarket, 1, 50000))
	suite.True(errors.HasCode(err, errors.ErrCodeConnectorFatal), "got %v", err)
}

func (suite *TestnetServerTestSuite) TestRateLimitIsRetryable() {
	suite.server.FailNext(binancetest.CodeTooManyRequests, "Too many requests")

	_, err := suite.testnet.GetBalance(context.Background())
	suite.True(errors.HasCode(err, errors.ErrCodeConnectorRetryable), "got %v", err)
}

func (suite *TestnetServerTestSuite) TestRetryingRecoversFromRateLimit() {
	suite.server.FailNext(binancetest.CodeTooManyRequests, "Too many requests")
	suite.server.FailNext(binancetest.CodeTooManyRequests, "Too many requests")

	retrying := connector.NewRetrying(suite.testnet, connector.RetryConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsedTime:  time.Second,
		MaxRetries:      4,
	}, nil)

	balance, err := retrying.GetBalance(context.Background())
	suite.Require().NoError(err)
	suite.InDelta(10000, balance, 1e-9)
	suite.Equal(3, suite.server.Requests())
}

func (suite *TestnetServerTestSuite) TestFetchCandles() {
	candles, err := suite.testnet.FetchCandles(context.Background(), "BTCUSDT", "1m", 20)
	suite.Require().NoError(err)
	suite.Require().Len(candles, 20)

	last := candles[len(candles)-1]
	suite.Equal("BTCUSDT", last.Symbol)
	suite.InDelta(50000, last.Close, 1e-6)
	suite.Less(candles[0].Close, last.Close)
	suite.True(candles[0].Time.Before(last.Time))
}

func (suite *TestnetServerTestSuite) TestFetchCandlesUnknownSymbol() {
	_, err := suite.testnet.FetchCandles(context.Background(), "DOGEUSDT", "1m", 5)
	suite.True(errors.HasCode(err, errors.ErrCodeConnectorFatal), "got %v", err)
}
