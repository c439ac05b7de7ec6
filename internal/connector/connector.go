// Package connector defines the venue boundary: candles, balance, orders and fills.
package connector

import (
	"context"
	"net"

	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
)

// FillHandler receives fills streamed by a venue.
type FillHandler func(fill types.Fill)

// Connector is a trading venue. Implementations must be safe for concurrent use; one
// handle is shared by every agent trading on the venue.
type Connector interface {
	// FetchCandles returns the most recent limit candles, oldest first
	FetchCandles(ctx context.Context, symbol string, interval string, limit int) ([]types.MarketData, error)
	// GetBalance returns the account balance in the quote currency
	GetBalance(ctx context.Context) (float64, error)
	// PlaceOrder executes order and returns its fill
	PlaceOrder(ctx context.Context, order types.ExecuteOrder) (types.Fill, error)
	// CancelOrder cancels a resting order
	CancelOrder(ctx context.Context, orderID string) error
	// StreamFills calls handler for every fill until ctx is done
	StreamFills(ctx context.Context, handler FillHandler) error
}

// Closer is implemented by connectors that hold resources.
type Closer interface {
	Close() error
}

// LastPrice returns the close of the most recent candle.
func LastPrice(ctx context.Context, c Connector, symbol string, interval string) (float64, error) {
	candles, err := c.FetchCandles(ctx, symbol, interval, 1)
	if err != nil {
		return 0, err
	}

	if len(candles) == 0 {
		return 0, errors.Newf(errors.ErrCodeNoPrice, "no price for %s", symbol)
	}

	return candles[len(candles)-1].Close, nil
}

// Classify wraps a raw venue error as retryable or fatal. Errors already carrying a
// connector code are returned unchanged.
func Classify(err error, message string) error {
	if err == nil {
		return nil
	}

	if errors.ChainHasCode(err, errors.ErrCodeConnectorRetryable) || errors.ChainHasCode(err, errors.ErrCodeConnectorFatal) {
		return err
	}

	if IsTransient(err) {
		return errors.Wrap(errors.ErrCodeConnectorRetryable, message, err)
	}

	return errors.Wrap(errors.ErrCodeConnectorFatal, message, err)
}

// IsTransient reports whether err looks like a network or timeout failure.
func IsTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.ChainHasCode(err, errors.ErrCodeConnectorRetryable) ||
		errors.ChainHasCode(err, errors.ErrCodeNoPrice)
}

// ShortSeller is implemented by venues that can state whether they accept short entries.
// Venues that do not implement it are assumed to support shorts.
type ShortSeller interface {
	SupportsShort() bool
}

// SupportsShort reports whether c accepts short entries.
func SupportsShort(c Connector) bool {
	if s, ok := c.(ShortSeller); ok {
		return s.SupportsShort()
	}

	if u, ok := c.(interface{ Unwrap() Connector }); ok {
		return SupportsShort(u.Unwrap())
	}

	return true
}

// Adopter is implemented by venues whose holdings do not survive a restart. Adopt
// re-books a recovered position so it can still be closed.
type Adopter interface {
	Adopt(position types.Position)
}

// Adopt hands position to c when c keeps its own holdings, and reports whether it did.
func Adopt(c Connector, position types.Position) bool {
	if a, ok := c.(Adopter); ok {
		a.Adopt(position)

		return true
	}

	if u, ok := c.(interface{ Unwrap() Connector }); ok {
		return Adopt(u.Unwrap(), position)
	}

	return false
}
