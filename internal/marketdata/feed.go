// Package marketdata supplies candle windows to the paper venue.
package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
)

// ProviderType names a candle source.
type ProviderType string

const (
	ProviderSynthetic ProviderType = "synthetic"
	ProviderBinance   ProviderType = "binance"
	ProviderPolygon   ProviderType = "polygon"
)

// Feed returns the most recent limit candles of symbol, oldest first.
type Feed interface {
	Candles(ctx context.Context, symbol string, interval string, limit int) ([]types.MarketData, error)
}

// FeedConfig selects and configures a Feed.
type FeedConfig struct {
	Provider ProviderType `mapstructure:"provider" yaml:"provider" json:"provider" jsonschema:"enum=synthetic,enum=binance,enum=polygon" validate:"required,oneof=synthetic binance polygon"`
	// PolygonAPIKey is required for the polygon provider.
	PolygonAPIKey string `mapstructure:"polygon_api_key" yaml:"polygon_api_key" json:"polygon_api_key"`
	// Seed makes the synthetic feed reproducible.
	Seed int64 `mapstructure:"seed" yaml:"seed" json:"seed"`
	// StartPrice is the first synthetic price.
	StartPrice float64 `mapstructure:"start_price" yaml:"start_price" json:"start_price"`
	// Volatility is the per-candle standard deviation of synthetic returns.
	Volatility float64 `mapstructure:"volatility" yaml:"volatility" json:"volatility"`
}

// NewFeed creates the feed named by config.Provider.
func NewFeed(config FeedConfig) (Feed, error) {
	switch config.Provider {
	case ProviderSynthetic, "":
		return NewSynthetic(SyntheticConfig{
			Seed:       config.Seed,
			StartPrice: config.StartPrice,
			Volatility: config.Volatility,
		}), nil
	case ProviderBinance:
		return NewBinanceFeed(), nil
	case ProviderPolygon:
		return NewPolygonFeed(config.PolygonAPIKey)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfig, "unsupported market data provider: %s", config.Provider)
	}
}

// alignTime truncates t to the start of its interval bucket.
func alignTime(t time.Time, step time.Duration) time.Time {
	return t.Truncate(step)
}

func validateRequest(symbol string, interval string, limit int) (time.Duration, error) {
	if symbol == "" {
		return 0, errors.New(errors.ErrCodeInvalidParameter, "symbol is required")
	}

	if limit <= 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "limit must be positive, got %d", limit)
	}

	step, err := types.ParseInterval(interval)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeInvalidParameter, fmt.Sprintf("invalid interval %q", interval), err)
	}

	return step, nil
}
