package marketdata

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-fleet/internal/types"
)

// SyntheticConfig configures the random-walk feed.
type SyntheticConfig struct {
	Seed       int64
	StartPrice float64
	Volatility float64
	// Now overrides the clock. Used by tests.
	Now func() time.Time
}

type syntheticSeries struct {
	rng     *rand.Rand
	candles []types.MarketData
	step    time.Duration
}

// Synthetic is a deterministic geometric random walk per symbol and interval. Candles
// are generated lazily up to the current time and kept, so successive calls extend the
// same history.
type Synthetic struct {
	config SyntheticConfig
	mu     sync.Mutex
	series map[string]*syntheticSeries
}

const maxSyntheticHistory = 5000

func NewSynthetic(config SyntheticConfig) *Synthetic {
	if config.StartPrice <= 0 {
		config.StartPrice = 100
	}

	if config.Volatility <= 0 {
		config.Volatility = 0.005
	}

	if config.Now == nil {
		config.Now = time.Now
	}

	return &Synthetic{
		config: config,
		series: make(map[string]*syntheticSeries),
	}
}

func (s *Synthetic) Candles(ctx context.Context, symbol string, interval string, limit int) ([]types.MarketData, error) {
	step, err := validateRequest(symbol, interval, limit)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := symbol + "/" + interval
	now := alignTime(s.config.Now(), step)

	series, ok := s.series[key]
	if !ok {
		series = &syntheticSeries{
			rng:  rand.New(rand.NewSource(s.config.Seed ^ seedOf(key))), //nolint:gosec // simulated prices
			step: step,
		}
		s.series[key] = series
		series.seed(symbol, now.Add(-time.Duration(limit-1)*step), s.config.StartPrice, s.config.Volatility)
	}

	series.extend(symbol, now, s.config.Volatility)

	if len(series.candles) < limit {
		series.backfill(symbol, limit, s.config.Volatility)
	}

	start := len(series.candles) - limit
	out := make([]types.MarketData, limit)
	copy(out, series.candles[start:])

	return out, nil
}

func (ss *syntheticSeries) seed(symbol string, at time.Time, price float64, vol float64) {
	ss.candles = append(ss.candles, ss.next(symbol, at, price, vol))
}

func (ss *syntheticSeries) extend(symbol string, until time.Time, vol float64) {
	last := ss.candles[len(ss.candles)-1]

	for t := last.Time.Add(ss.step); !t.After(until); t = t.Add(ss.step) {
		last = ss.next(symbol, t, last.Close, vol)
		ss.candles = append(ss.candles, last)
	}

	if len(ss.candles) > maxSyntheticHistory {
		ss.candles = append([]types.MarketData(nil), ss.candles[len(ss.candles)-maxSyntheticHistory:]...)
	}
}

// backfill prepends candles walking backwards from the oldest one.
func (ss *syntheticSeries) backfill(symbol string, limit int, vol float64) {
	missing := limit - len(ss.candles)
	prefix := make([]types.MarketData, missing)
	first := ss.candles[0]

	for i := missing - 1; i >= 0; i-- {
		prev := ss.next(symbol, first.Time.Add(-ss.step), first.Open, vol)
		// walk backwards: the earlier candle closes where the later one opened
		prev.Open, prev.Close = prev.Close, prev.Open
		prefix[i] = prev
		first = prev
	}

	ss.candles = append(prefix, ss.candles...)
}

func (ss *syntheticSeries) next(symbol string, at time.Time, open float64, vol float64) types.MarketData {
	ret := ss.rng.NormFloat64() * vol
	closePrice := open * math.Exp(ret)
	wick := math.Abs(ss.rng.NormFloat64()) * vol * open / 2

	return types.MarketData{
		Symbol: symbol,
		Time:   at,
		Open:   open,
		High:   math.Max(open, closePrice) + wick,
		Low:    math.Max(0, math.Min(open, closePrice)-wick),
		Close:  closePrice,
		Volume: 1 + ss.rng.Float64()*100,
	}
}

func seedOf(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))

	return int64(h.Sum64())
}
