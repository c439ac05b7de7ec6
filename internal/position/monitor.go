package position

import (
	"context"
	"time"

	"github.com/rxtech-lab/argo-fleet/internal/connector"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"go.uber.org/zap"
)

type priceKey struct {
	agentID string
	symbol  string
}

type priceResult struct {
	price float64
	err   error
}

// SweepResult summarizes one monitor pass.
type SweepResult struct {
	Checked int
	Closed  int
	Failed  int
}

// Run sweeps every MonitorInterval until ctx is done.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.config.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.Sweep(ctx)
		}
	}
}

// Sweep marks every active position once. Prices are fetched once per agent and symbol.
// A position whose threshold is crossed is closed; a position stuck in CLOSING is retried.
func (t *Tracker) Sweep(ctx context.Context) SweepResult {
	var result SweepResult

	prices := make(map[priceKey]priceResult)

	for _, e := range t.entriesFor("") {
		if ctx.Err() != nil {
			return result
		}

		e.mu.Lock()
		closed, failed := t.checkLocked(ctx, e, prices)
		e.mu.Unlock()

		result.Checked++

		if closed {
			result.Closed++
		}

		if failed {
			result.Failed++
		}
	}

	return result
}

func (t *Tracker) checkLocked(ctx context.Context, e *entry, prices map[priceKey]priceResult) (closed bool, failed bool) {
	pos := e.pos

	switch pos.Status {
	case types.PositionStatusClosed:
		return false, false
	case types.PositionStatusClosing:
		if err := t.closeLocked(ctx, e, pos.CloseReason, 0); err != nil {
			return false, true
		}

		return true, false
	case types.PositionStatusOpen:
		// adopted before Open finished; nothing to mark yet
		return false, false
	case types.PositionStatusMonitoring:
	}

	price, err := t.price(ctx, pos, prices)
	if err != nil {
		t.log.Debug("No price for position",
			zap.String("position_id", pos.ID),
			zap.String("symbol", pos.Symbol),
			zap.Error(err),
		)

		return false, true
	}

	pos.Mark(price)
	pos.UpdatedAt = t.now()
	e.pos = pos

	var reason types.CloseReason

	switch {
	case pos.StopLossHit(price):
		reason = types.CloseReasonStopLoss
	case pos.TakeProfitHit(price):
		reason = types.CloseReasonTakeProfit
	default:
		return false, false
	}

	t.log.Info("Threshold crossed",
		zap.String("position_id", pos.ID),
		zap.String("reason", string(reason)),
		zap.Float64("price", price),
	)

	if err := t.closeLocked(ctx, e, reason, price); err != nil {
		return false, true
	}

	return true, false
}

func (t *Tracker) price(ctx context.Context, pos types.Position, cache map[priceKey]priceResult) (float64, error) {
	key := priceKey{agentID: pos.AgentID, symbol: pos.Symbol}
	if cached, ok := cache[key]; ok {
		return cached.price, cached.err
	}

	venue, err := t.venues.VenueFor(pos.AgentID)
	if err == nil {
		var price float64

		price, err = connector.LastPrice(ctx, venue, pos.Symbol, t.config.PriceInterval)
		cache[key] = priceResult{price: price, err: err}

		return price, err
	}

	cache[key] = priceResult{err: err}

	return 0, err
}
