package marketdata

import (
	"context"
	"strconv"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
)

// AggIterator is the subset of the polygon iterator the feed reads.
type AggIterator interface {
	Next() bool
	Item() models.Agg
	Err() error
}

// AggsLister abstracts the aggregates endpoint for testing.
type AggsLister interface {
	ListAggs(ctx context.Context, params *models.ListAggsParams) AggIterator
}

type realAggsLister struct {
	client *polygon.Client
}

func (r *realAggsLister) ListAggs(ctx context.Context, params *models.ListAggsParams) AggIterator {
	return r.client.ListAggs(ctx, params)
}

// PolygonFeed reads aggregate bars from Polygon.
type PolygonFeed struct {
	lister AggsLister
	now    func() time.Time
}

func NewPolygonFeed(apiKey string) (*PolygonFeed, error) {
	if apiKey == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "polygon api key is required")
	}

	return &PolygonFeed{lister: &realAggsLister{client: polygon.New(apiKey)}, now: time.Now}, nil
}

func NewPolygonFeedWithLister(lister AggsLister, now func() time.Time) *PolygonFeed {
	return &PolygonFeed{lister: lister, now: now}
}

func (f *PolygonFeed) Candles(ctx context.Context, symbol string, interval string, limit int) ([]types.MarketData, error) {
	step, err := validateRequest(symbol, interval, limit)
	if err != nil {
		return nil, err
	}

	multiplier, timespan, err := PolygonTimespan(interval)
	if err != nil {
		return nil, err
	}

	to := f.now()
	// Over-fetch the window; markets have gaps.
	from := to.Add(-step * time.Duration(limit) * 3)

	//nolint:exhaustruct // third-party struct with many optional fields
	params := models.ListAggsParams{
		Ticker:     symbol,
		Multiplier: multiplier,
		Timespan:   timespan,
		From:       models.Millis(from),
		To:         models.Millis(to),
	}.WithOrder(models.Desc).WithLimit(limit)

	iter := f.lister.ListAggs(ctx, params)

	candles := make([]types.MarketData, 0, limit)
	for iter.Next() && len(candles) < limit {
		agg := iter.Item()
		candles = append(candles, types.MarketData{
			Id:     "",
			Symbol: symbol,
			Time:   time.Time(agg.Timestamp).UTC(),
			Open:   agg.Open,
			High:   agg.High,
			Low:    agg.Low,
			Close:  agg.Close,
			Volume: agg.Volume,
		})
	}

	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConnectorRetryable, "error iterating polygon aggregates", err)
	}

	// descending from the API, oldest first for callers
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}

	return candles, nil
}

// PolygonTimespan converts an interval like "15m" into polygon's multiplier and timespan.
func PolygonTimespan(interval string) (int, models.Timespan, error) {
	if _, err := types.ParseInterval(interval); err != nil {
		return 0, "", errors.Wrap(errors.ErrCodeInvalidParameter, "invalid interval", err)
	}

	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil {
		return 0, "", errors.Wrap(errors.ErrCodeInvalidParameter, "invalid interval", err)
	}

	switch interval[len(interval)-1] {
	case 's':
		return n, models.Second, nil
	case 'm':
		return n, models.Minute, nil
	case 'h':
		return n, models.Hour, nil
	case 'd':
		return n, models.Day, nil
	case 'w':
		return n, models.Week, nil
	default:
		return 0, "", errors.Newf(errors.ErrCodeInvalidParameter, "unsupported interval for polygon: %s", interval)
	}
}
