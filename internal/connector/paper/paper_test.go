package paper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-fleet/internal/marketdata"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type PaperVenueTestSuite struct {
	suite.Suite
	feed  *marketdata.Manual
	venue *Venue
}

func TestPaperVenueSuite(t *testing.T) {
	suite.Run(t, new(PaperVenueTestSuite))
}

func (suite *PaperVenueTestSuite) SetupTest() {
	suite.feed = marketdata.NewManual()
	suite.feed.SetPrice("BTCUSDT", 100)
	suite.venue = New(Config{InitialBalance: 1000, FeeRate: 0.001}, suite.feed)
}

func order(side types.PurchaseType, pt types.PositionType, qty float64, reduce bool) types.ExecuteOrder {
	return types.ExecuteOrder{
		ID:           uuid.New().String(),
		AgentID:      "agent-1",
		Symbol:       "BTCUSDT",
		Side:         side,
		OrderType:    types.OrderTypeMarket,
		Reason:       types.Reason{Reason: types.OrderReasonStrategy},
		Quantity:     qty,
		PositionType: pt,
		ReduceOnly:   reduce,
	}
}

func (suite *PaperVenueTestSuite) TestLongRoundTrip() {
	ctx := context.Background()

	entry, err := suite.venue.PlaceOrder(ctx, order(types.PurchaseTypeBuy, types.PositionTypeLong, 2, false))
	suite.NoError(err)
	suite.Equal(100.0, entry.Price)
	suite.InDelta(0.2, entry.Fee, 1e-9)

	qty, avg := suite.venue.Holding("agent-1", "BTCUSDT", types.PositionTypeLong)
	suite.Equal(2.0, qty)
	suite.Equal(100.0, avg)

	suite.feed.SetPrice("BTCUSDT", 110)

	exit, err := suite.venue.PlaceOrder(ctx, order(types.PurchaseTypeSell, types.PositionTypeLong, 2, true))
	suite.NoError(err)
	suite.Equal(110.0, exit.Price)

	balance, err := suite.venue.GetBalance(ctx)
	suite.NoError(err)
	// 1000 + 20 profit - 0.2 - 0.22 fees
	suite.InDelta(1019.58, balance, 1e-9)

	qty, _ = suite.venue.Holding("agent-1", "BTCUSDT", types.PositionTypeLong)
	suite.Zero(qty)
}

func (suite *PaperVenueTestSuite) TestAdoptedPositionCloses() {
	pos := types.Position{
		ID:         "p1",
		AgentID:    "agent-1",
		Symbol:     "BTCUSDT",
		Side:       types.PositionTypeLong,
		EntryPrice: 100,
		Size:       2,
		Status:     types.PositionStatusMonitoring,
	}

	suite.venue.Adopt(pos)
	suite.venue.Adopt(pos)
	suite.venue.Adopt(types.Position{ID: "p2", AgentID: "agent-1", Symbol: "BTCUSDT", Side: types.PositionTypeLong, EntryPrice: 100, Size: 5, Status: types.PositionStatusClosed})

	qty, avg := suite.venue.Holding("agent-1", "BTCUSDT", types.PositionTypeLong)
	suite.Equal(2.0, qty)
	suite.Equal(100.0, avg)

	suite.feed.SetPrice("BTCUSDT", 94)

	exit, err := suite.venue.PlaceOrder(context.Background(), order(types.PurchaseTypeSell, types.PositionTypeLong, 2, true))
	suite.Require().NoError(err)
	suite.Equal(94.0, exit.Price)

	qty, _ = suite.venue.Holding("agent-1", "BTCUSDT", types.PositionTypeLong)
	suite.Zero(qty)
}

func (suite *PaperVenueTestSuite) TestShortLoses() {
	ctx := context.Background()
	venue := New(Config{InitialBalance: 500}, suite.feed)

	_, err := venue.PlaceOrder(ctx, order(types.PurchaseTypeSell, types.PositionTypeShort, 1, false))
	suite.NoError(err)

	suite.feed.SetPrice("BTCUSDT", 104)

	_, err = venue.PlaceOrder(ctx, order(types.PurchaseTypeBuy, types.PositionTypeShort, 1, true))
	suite.NoError(err)

	balance, _ := venue.GetBalance(ctx)
	suite.InDelta(496.0, balance, 1e-9)
}

func (suite *PaperVenueTestSuite) TestReduceOnlyWithoutHolding() {
	_, err := suite.venue.PlaceOrder(context.Background(), order(types.PurchaseTypeSell, types.PositionTypeLong, 1, true))
	suite.True(errors.HasCode(err, errors.ErrCodeConnectorFatal))
}

func (suite *PaperVenueTestSuite) TestDuplicateOrderIDReturnsOriginalFill() {
	ctx := context.Background()
	o := order(types.PurchaseTypeBuy, types.PositionTypeLong, 1, false)

	first, err := suite.venue.PlaceOrder(ctx, o)
	suite.NoError(err)

	second, err := suite.venue.PlaceOrder(ctx, o)
	suite.NoError(err)
	suite.Equal(first, second)

	qty, _ := suite.venue.Holding("agent-1", "BTCUSDT", types.PositionTypeLong)
	suite.Equal(1.0, qty)
}

func (suite *PaperVenueTestSuite) TestSlippage() {
	venue := New(Config{InitialBalance: 1000, SlippageBps: 50}, suite.feed)

	fill, err := venue.PlaceOrder(context.Background(), order(types.PurchaseTypeBuy, types.PositionTypeLong, 1, false))
	suite.NoError(err)
	suite.InDelta(100.5, fill.Price, 1e-9)
}

func (suite *PaperVenueTestSuite) TestNoPriceIsRetryable() {
	venue := New(Config{InitialBalance: 1000}, marketdata.NewManual())

	_, err := venue.PlaceOrder(context.Background(), order(types.PurchaseTypeBuy, types.PositionTypeLong, 1, false))
	suite.True(errors.IsRetryable(err))
}

func (suite *PaperVenueTestSuite) TestInvalidOrderIsFatal() {
	o := order(types.PurchaseTypeBuy, types.PositionTypeLong, 0, false)

	_, err := suite.venue.PlaceOrder(context.Background(), o)
	suite.True(errors.HasCode(err, errors.ErrCodeConnectorFatal))
}

func (suite *PaperVenueTestSuite) TestFailAllOrders() {
	suite.venue.Halt("maintenance")

	_, err := suite.venue.PlaceOrder(context.Background(), order(types.PurchaseTypeBuy, types.PositionTypeLong, 1, false))
	suite.True(errors.IsRetryable(err))
	suite.Contains(err.Error(), "maintenance")

	suite.venue.Resume()

	_, err = suite.venue.PlaceOrder(context.Background(), order(types.PurchaseTypeBuy, types.PositionTypeLong, 1, false))
	suite.NoError(err)
}

func (suite *PaperVenueTestSuite) TestStreamFills() {
	ctx, cancel := context.WithCancel(context.Background())

	var (
		mu       sync.Mutex
		received []types.Fill
	)

	done := make(chan error, 1)
	go func() {
		done <- suite.venue.StreamFills(ctx, func(f types.Fill) {
			mu.Lock()
			received = append(received, f)
			mu.Unlock()
		})
	}()

	suite.Eventually(func() bool {
		suite.venue.subMu.RLock()
		defer suite.venue.subMu.RUnlock()

		return len(suite.venue.subscribers) == 1
	}, time.Second, 5*time.Millisecond)

	fill, err := suite.venue.PlaceOrder(context.Background(), order(types.PurchaseTypeBuy, types.PositionTypeLong, 1, false))
	suite.NoError(err)

	mu.Lock()
	suite.Equal([]types.Fill{fill}, received)
	mu.Unlock()

	cancel()
	suite.NoError(<-done)
}

func (suite *PaperVenueTestSuite) TestCancelOrder() {
	err := suite.venue.CancelOrder(context.Background(), "paper-1")
	suite.True(errors.HasCode(err, errors.ErrCodeOrderFailed))
}
