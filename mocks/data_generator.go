package mocks

import (
	"math"
	"math/rand"
	"time"

	"github.com/rxtech-lab/argo-fleet/internal/types"
)

// CandleStart is the time of the first generated candle.
var CandleStart = time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

// CandlesFromCloses builds one-minute candles whose close follows closes. Each candle opens
// at the previous close and spans one unit above and below its body.
func CandlesFromCloses(symbol string, closes ...float64) []types.MarketData {
	out := make([]types.MarketData, len(closes))

	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}

		out[i] = types.MarketData{
			Symbol: symbol,
			Time:   CandleStart.Add(time.Duration(i) * time.Minute),
			Open:   open,
			High:   math.Max(open, c) + 1,
			Low:    math.Min(open, c) - 1,
			Close:  c,
			Volume: 1000,
		}
	}

	return out
}

// Ramp returns n closes starting at start and moving by step.
func Ramp(start float64, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}

	return out
}

// Flat returns n closes at price.
func Flat(price float64, n int) []float64 {
	return Ramp(price, 0, n)
}

// WalkConfig configures a seeded random walk.
type WalkConfig struct {
	Symbol       string
	Count        int
	InitialPrice float64
	// Volatility is the per-candle standard deviation as a fraction of price
	Volatility float64
	// Trend is the total drift spread across the walk
	Trend float64
}

// Walk generates a reproducible geometric random walk.
func Walk(seed int64, config WalkConfig) []types.MarketData {
	rng := rand.New(rand.NewSource(seed))
	closes := make([]float64, config.Count)
	price := config.InitialPrice

	for i := range closes {
		drift := config.Trend / float64(config.Count)
		next := price * (1 + config.Volatility*rng.NormFloat64() + drift)

		if next <= 0 {
			next = price * 0.99
		}

		closes[i] = roundToDecimals(next, 4)
		price = next
	}

	return CandlesFromCloses(config.Symbol, closes...)
}

func roundToDecimals(val float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))

	return math.Round(val*pow) / pow
}
