package marketdata

import (
	"context"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
)

// KlinesFetcher abstracts the public klines endpoint for testing.
type KlinesFetcher interface {
	Klines(ctx context.Context, symbol string, interval string, limit int) ([]*binance.Kline, error)
}

type realKlinesFetcher struct {
	client *binance.Client
}

func (r *realKlinesFetcher) Klines(ctx context.Context, symbol string, interval string, limit int) ([]*binance.Kline, error) {
	return r.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
}

// BinanceFeed reads public klines from the Binance production market data API. No
// credentials are used; orders never go through this feed.
type BinanceFeed struct {
	fetcher KlinesFetcher
}

func NewBinanceFeed() *BinanceFeed {
	return &BinanceFeed{fetcher: &realKlinesFetcher{client: binance.NewClient("", "")}}
}

// NewBinanceFeedWithFetcher is used by tests and by the testnet adapter to share a client.
func NewBinanceFeedWithFetcher(fetcher KlinesFetcher) *BinanceFeed {
	return &BinanceFeed{fetcher: fetcher}
}

func (f *BinanceFeed) Candles(ctx context.Context, symbol string, interval string, limit int) ([]types.MarketData, error) {
	if _, err := validateRequest(symbol, interval, limit); err != nil {
		return nil, err
	}

	klines, err := f.fetcher.Klines(ctx, symbol, interval, limit)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConnectorRetryable, "failed to fetch klines from Binance", err)
	}

	return ConvertKlines(symbol, klines), nil
}

// ConvertKlines converts Binance kline data to MarketData, oldest first.
func ConvertKlines(symbol string, klines []*binance.Kline) []types.MarketData {
	out := make([]types.MarketData, 0, len(klines))

	for _, k := range klines {
		open, _ := strconv.ParseFloat(k.Open, 64)
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		closePrice, _ := strconv.ParseFloat(k.Close, 64)
		volume, _ := strconv.ParseFloat(k.Volume, 64)

		out = append(out, types.MarketData{
			Id:     "",
			Symbol: symbol,
			Time:   time.UnixMilli(k.OpenTime).UTC(),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		})
	}

	return out
}
