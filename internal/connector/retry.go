package connector

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rxtech-lab/argo-fleet/internal/logger"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
	"go.uber.org/zap"
)

// RetryConfig bounds the retries of transient failures.
type RetryConfig struct {
	InitialInterval time.Duration `mapstructure:"initial_interval" yaml:"initial_interval" json:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval" yaml:"max_interval" json:"max_interval"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time" yaml:"max_elapsed_time" json:"max_elapsed_time"`
	MaxRetries      uint64        `mapstructure:"max_retries" yaml:"max_retries" json:"max_retries"`
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		MaxElapsedTime:  10 * time.Second,
		MaxRetries:      4,
	}
}

// Retrying retries retryable failures of the wrapped connector with exponential
// backoff. Fatal errors are returned at once. When retries are exhausted the last
// retryable error is returned so callers can still tell it from a fatal one.
type Retrying struct {
	inner  Connector
	config RetryConfig
	log    *logger.Logger
}

func NewRetrying(inner Connector, config RetryConfig, log *logger.Logger) *Retrying {
	if log == nil {
		log = logger.NewNop()
	}

	return &Retrying{inner: inner, config: config, log: log}
}

// Unwrap returns the wrapped connector.
func (r *Retrying) Unwrap() Connector {
	return r.inner
}

func (r *Retrying) policy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.config.InitialInterval
	exp.MaxInterval = r.config.MaxInterval
	exp.MaxElapsedTime = r.config.MaxElapsedTime

	var b backoff.BackOff = exp
	if r.config.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, r.config.MaxRetries)
	}

	return backoff.WithContext(b, ctx)
}

func (r *Retrying) do(ctx context.Context, op string, fn func() error) error {
	attempt := 0

	err := backoff.RetryNotify(func() error {
		attempt++

		err := fn()
		if err == nil || errors.IsRetryable(err) {
			return err
		}

		return backoff.Permanent(err)
	}, r.policy(ctx), func(err error, wait time.Duration) {
		r.log.Debug("Retrying connector call",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	if err != nil && ctx.Err() != nil && !errors.IsRetryable(err) {
		return errors.Wrap(errors.ErrCodeCanceled, op+" canceled", err)
	}

	return err
}

func (r *Retrying) FetchCandles(ctx context.Context, symbol string, interval string, limit int) ([]types.MarketData, error) {
	var candles []types.MarketData

	err := r.do(ctx, "fetch_candles", func() error {
		var err error
		candles, err = r.inner.FetchCandles(ctx, symbol, interval, limit)

		return err
	})

	return candles, err
}

func (r *Retrying) GetBalance(ctx context.Context) (float64, error) {
	var balance float64

	err := r.do(ctx, "get_balance", func() error {
		var err error
		balance, err = r.inner.GetBalance(ctx)

		return err
	})

	return balance, err
}

// PlaceOrder is retried with the same client order id, which venues use to drop
// duplicates.
func (r *Retrying) PlaceOrder(ctx context.Context, order types.ExecuteOrder) (types.Fill, error) {
	var fill types.Fill

	err := r.do(ctx, "place_order", func() error {
		var err error
		fill, err = r.inner.PlaceOrder(ctx, order)

		return err
	})

	return fill, err
}

func (r *Retrying) CancelOrder(ctx context.Context, orderID string) error {
	return r.do(ctx, "cancel_order", func() error {
		return r.inner.CancelOrder(ctx, orderID)
	})
}

// StreamFills is not retried; the stream lives until ctx is done.
func (r *Retrying) StreamFills(ctx context.Context, handler FillHandler) error {
	return r.inner.StreamFills(ctx, handler)
}

// Close closes the wrapped connector when it holds resources.
func (r *Retrying) Close() error {
	if c, ok := r.inner.(Closer); ok {
		return c.Close()
	}

	return nil
}

var _ Connector = (*Retrying)(nil)
