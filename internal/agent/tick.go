package agent

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-fleet/internal/advisory"
	"github.com/rxtech-lab/argo-fleet/internal/connector"
	"github.com/rxtech-lab/argo-fleet/internal/indicator"
	"github.com/rxtech-lab/argo-fleet/internal/position"
	"github.com/rxtech-lab/argo-fleet/internal/risk"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const quantityDecimals = 8

func (a *Agent) tickEvery() time.Duration {
	if a.runtime.TickEvery > 0 {
		return a.runtime.TickEvery
	}

	return a.Config().TickInterval()
}

func (a *Agent) loop(ctx context.Context, r *run) {
	defer close(r.done)
	defer r.cancel()

	ticker := time.NewTicker(a.tickEvery())
	defer ticker.Stop()

	for {
		if !a.step(ctx, r) {
			return
		}

		select {
		case <-r.stop:
			return
		case <-ctx.Done():
			a.abandon(r, "context canceled")

			return
		case <-ticker.C:
		}
	}
}

// step runs one tick and reports whether the loop should continue.
func (a *Agent) step(ctx context.Context, r *run) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			a.fail(r, errors.Newf(errors.ErrCodeUnknown, "tick panicked: %v", p))

			ok = false
		}
	}()

	select {
	case <-r.stop:
		return false
	default:
	}

	if a.expired() {
		a.abandon(r, "max duration reached")

		return false
	}

	if a.State() != types.AgentStateRunning {
		return true
	}

	err := a.Tick(ctx)
	if err == nil {
		return true
	}

	if ctx.Err() != nil {
		a.abandon(r, "context canceled")

		return false
	}

	a.recordError(err)

	if connector.IsTransient(err) {
		a.prom.TickError(a.id, "retryable")
		a.log.Warn("Tick failed, retrying next tick", zap.Error(err))

		return true
	}

	a.fail(r, err)

	return false
}

func (a *Agent) expired() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.config.MaxDuration <= 0 || a.metrics.StartedAt.IsZero() {
		return false
	}

	return a.now().Sub(a.metrics.StartedAt) >= a.config.MaxDuration
}

func (a *Agent) recordError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.metrics.LastError = err.Error()
}

// fail moves a live run to ERROR.
func (a *Agent) fail(r *run, err error) {
	a.mu.Lock()

	if a.current != r || !isLive(a.state) {
		a.mu.Unlock()

		return
	}

	a.metrics.LastError = err.Error()
	a.metrics.Uptime = a.now().Sub(a.metrics.StartedAt)
	change := a.transitionLocked(types.AgentStateError, err.Error())
	a.mu.Unlock()

	a.prom.TickError(a.id, "fatal")
	a.log.Error("Agent failed", zap.Error(err))
	a.emit(change)
}

// abandon stops a live run from inside the loop.
func (a *Agent) abandon(r *run, reason string) {
	a.mu.Lock()

	if a.current != r || !isLive(a.state) {
		a.mu.Unlock()

		return
	}

	a.metrics.Uptime = a.now().Sub(a.metrics.StartedAt)
	changes := []stateChange{
		a.transitionLocked(types.AgentStateStopping, reason),
		a.transitionLocked(types.AgentStateStopped, reason),
	}
	a.mu.Unlock()

	a.log.Info("Agent stopped itself", zap.String("reason", reason))
	a.emit(changes...)
}

func isLive(s types.AgentState) bool {
	return s == types.AgentStateStarting || s == types.AgentStateRunning || s == types.AgentStatePaused
}

// Tick runs one decision cycle: candles, indicators, signal, advice, risk check, order.
// A denied trade is not an error. ctx cancellation is checked after every venue call.
func (a *Agent) Tick(ctx context.Context) error {
	a.mu.Lock()
	cfg := a.config
	strat := a.strategy
	conn := a.conn
	a.mu.Unlock()

	tickCtx, cancel := context.WithTimeout(ctx, a.runtime.TickTimeout)
	defer cancel()

	candles, err := conn.FetchCandles(tickCtx, cfg.Symbol, cfg.Interval, cfg.CandleLimit)
	if ctx.Err() != nil {
		return errors.Wrap(errors.ErrCodeCanceled, "tick canceled", ctx.Err())
	}

	if err != nil {
		return err
	}

	// Only a tick that reached the venue counts as fresh for the health sweep.
	a.markTick()

	if len(candles) == 0 {
		a.log.Debug("No candles yet", zap.String("symbol", cfg.Symbol))

		return nil
	}

	values, err := indicator.Compute(candles, strat.Indicators())
	if err != nil {
		return err
	}

	signal := strat.GenerateSignal(candles, values)
	signal = a.advise(tickCtx, signal)
	a.markSignal(signal)

	if signal.Action == types.SignalActionHold {
		return nil
	}

	if signal.Confidence < a.runtime.MinConfidence {
		a.log.Debug("Signal below minimum confidence",
			zap.String("action", string(signal.Action)),
			zap.Float64("confidence", signal.Confidence),
		)

		return nil
	}

	if open := a.positions.OpenPositions(a.id); len(open) > 0 {
		a.onOpenPosition(ctx, open[0], signal)

		return nil
	}

	side := signal.Action.PositionType()
	if side == types.PositionTypeShort && !connector.SupportsShort(conn) {
		a.log.Debug("Venue does not accept shorts, skipping entry", zap.String("venue", cfg.Venue))

		return nil
	}

	price := candles[len(candles)-1].Close
	if price <= 0 {
		return errors.Newf(errors.ErrCodeNoPrice, "no usable price for %s", cfg.Symbol)
	}

	return a.enter(ctx, tickCtx, cfg, conn, signal, price)
}

func (a *Agent) enter(ctx context.Context, tickCtx context.Context, cfg types.AgentConfig, conn connector.Connector, signal types.Signal, price float64) error {
	stake := min(cfg.MaxStake, a.gate.Available(a.id))
	if stake <= 0 {
		a.log.Debug("Budget fully reserved, skipping entry")

		return nil
	}

	decision, err := a.gate.CheckAndReserve(tickCtx, a.id, risk.Trade{Symbol: cfg.Symbol, Stake: stake, Leverage: cfg.Leverage})
	if err != nil {
		return err
	}

	if !decision.Approved {
		a.log.Info("Entry denied by risk gate", zap.String("reason", decision.Reason))

		return nil
	}

	quantity, _ := decimal.NewFromFloat(stake).
		Mul(decimal.NewFromFloat(cfg.Leverage)).
		Div(decimal.NewFromFloat(price)).
		RoundDown(quantityDecimals).
		Float64()

	side := signal.Action.PositionType()
	order := types.ExecuteOrder{
		ID:           uuid.New().String(),
		AgentID:      a.id,
		Symbol:       cfg.Symbol,
		Side:         types.EntrySide(side),
		OrderType:    types.OrderTypeMarket,
		Reason:       types.Reason{Reason: types.OrderReasonStrategy, Message: signal.Reason},
		Price:        price,
		StrategyName: string(cfg.Strategy),
		Quantity:     quantity,
		PositionType: side,
	}

	fill, err := conn.PlaceOrder(tickCtx, order)
	if err != nil {
		a.releaseReservation(decision.ReservationID)
		a.prom.Order(a.id, "failed")

		if ctx.Err() != nil {
			return errors.Wrap(errors.ErrCodeCanceled, "tick canceled", ctx.Err())
		}

		return err
	}

	a.prom.Order(a.id, "filled")

	// The fill is real from here on; track it even if the tick was canceled meanwhile.
	req := position.OpenRequest{
		Fill:          fill,
		Side:          side,
		Stake:         stake,
		Leverage:      cfg.Leverage,
		ReservationID: decision.ReservationID,
		Thresholds:    position.ThresholdsFromPct(side, fill.Price, cfg.StopLossPct, cfg.TargetReturn()),
	}

	positionID, err := a.positions.Open(context.WithoutCancel(ctx), a.id, req)
	if err != nil {
		a.releaseReservation(decision.ReservationID)

		return errors.Wrapf(errors.ErrCodeOrderFailed, err, "filled order %s could not be tracked", fill.OrderID)
	}

	a.log.Info("Entered position",
		zap.String("position_id", positionID),
		zap.String("side", string(side)),
		zap.Float64("price", fill.Price),
		zap.Float64("quantity", fill.Quantity),
		zap.Float64("stake", stake),
		zap.Float64("confidence", signal.Confidence),
	)

	return nil
}

// onOpenPosition keeps one position per agent; a reversed signal closes it.
func (a *Agent) onOpenPosition(ctx context.Context, pos types.Position, signal types.Signal) {
	if pos.Side == signal.Action.PositionType() || !a.runtime.CloseOnReverse {
		return
	}

	if pos.Status != types.PositionStatusMonitoring {
		return
	}

	if err := a.positions.Close(ctx, pos.ID, types.CloseReasonReverseSignal); err != nil {
		a.log.Warn("Failed to close position on reverse signal", zap.String("position_id", pos.ID), zap.Error(err))

		return
	}

	a.log.Info("Closed position on reverse signal", zap.String("position_id", pos.ID), zap.String("signal", string(signal.Action)))
}

func (a *Agent) advise(ctx context.Context, signal types.Signal) types.Signal {
	if signal.Action == types.SignalActionHold {
		return signal
	}

	suggestions, err := a.advisor.MatchPatterns(ctx, advisory.ConditionsFromSignal(a.id, signal))
	if err != nil {
		a.log.Debug("Advisor unavailable", zap.Error(err))

		return signal
	}

	blended, changed := Blend(signal, suggestions, a.runtime.Advisory)
	if changed && blended.Action != signal.Action {
		a.log.Info("Advisory flipped signal",
			zap.String("from", string(signal.Action)),
			zap.String("to", string(blended.Action)),
		)
	}

	return blended
}

func (a *Agent) releaseReservation(reservationID string) {
	if err := a.gate.Release(a.id, reservationID, 0); err != nil {
		a.log.Error("Failed to release reservation", zap.String("reservation_id", reservationID), zap.Error(err))
	}
}

func (a *Agent) markTick() {
	a.mu.Lock()
	a.metrics.LastTickAt = a.now()
	a.mu.Unlock()

	a.prom.Tick(a.id)
}

func (a *Agent) markSignal(signal types.Signal) {
	a.mu.Lock()
	a.metrics.LastSignalAt = a.now()
	a.mu.Unlock()

	a.prom.Signal(a.id, signal.Action)
}
