package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
)

// Manual is a feed whose candles are pushed explicitly. It backs scenario tests and the
// paper venue in dry runs.
type Manual struct {
	mu      sync.RWMutex
	candles map[string][]types.MarketData
}

func NewManual() *Manual {
	return &Manual{candles: make(map[string][]types.MarketData)}
}

// Push appends candles for their symbols.
func (m *Manual) Push(candles ...types.MarketData) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range candles {
		m.candles[c.Symbol] = append(m.candles[c.Symbol], c)
	}
}

// SetPrice appends a flat candle at price, one minute after the previous candle.
func (m *Manual) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if existing := m.candles[symbol]; len(existing) > 0 {
		at = existing[len(existing)-1].Time.Add(time.Minute)
	}

	m.candles[symbol] = append(m.candles[symbol], types.MarketData{
		Symbol: symbol,
		Time:   at,
		Open:   price,
		High:   price,
		Low:    price,
		Close:  price,
	})
}

// Candles ignores interval; it returns the last limit pushed candles.
func (m *Manual) Candles(_ context.Context, symbol string, _ string, limit int) ([]types.MarketData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	candles := m.candles[symbol]
	if len(candles) == 0 {
		return nil, errors.Newf(errors.ErrCodeNoPrice, "no candles for %s", symbol)
	}

	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}

	out := make([]types.MarketData, len(candles))
	copy(out, candles)

	return out, nil
}
