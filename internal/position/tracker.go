// Package position tracks open positions, watches their exit thresholds and records the
// outcome of every closed position exactly once.
package position

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-fleet/internal/connector"
	"github.com/rxtech-lab/argo-fleet/internal/events"
	"github.com/rxtech-lab/argo-fleet/internal/logger"
	"github.com/rxtech-lab/argo-fleet/internal/metrics"
	"github.com/rxtech-lab/argo-fleet/internal/storage"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	recentClosedLimit = 256
	fillLogLimit      = 200
)

// closeNamespace derives deterministic close order ids, so a retried close of the same
// position is deduplicated by the venue.
var closeNamespace = uuid.MustParse("5d1e3c1a-8f3b-4c55-9a77-0b7c2f4e9d10")

// VenueResolver returns the connector an agent trades on.
type VenueResolver interface {
	VenueFor(agentID string) (connector.Connector, error)
}

// VenueFunc adapts a function to VenueResolver.
type VenueFunc func(agentID string) (connector.Connector, error)

func (f VenueFunc) VenueFor(agentID string) (connector.Connector, error) {
	return f(agentID)
}

// Ledger is the part of the risk gate the tracker settles with.
type Ledger interface {
	Bind(reservationID string, positionID string) error
	Release(agentID string, key string, realizedPnL float64) error
}

// Config configures the tracker.
type Config struct {
	// MonitorInterval is the period of the threshold sweep.
	MonitorInterval time.Duration `mapstructure:"monitor_interval" yaml:"monitor_interval" json:"monitor_interval"`
	// PriceInterval is the candle interval used to mark positions.
	PriceInterval string `mapstructure:"price_interval" yaml:"price_interval" json:"price_interval"`
}

func (c Config) withDefaults() Config {
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = time.Second
	}

	if c.PriceInterval == "" {
		c.PriceInterval = "1m"
	}

	return c
}

// OpenRequest describes a filled entry order.
type OpenRequest struct {
	Fill          types.Fill
	Side          types.PositionType
	Stake         float64
	Leverage      float64
	ReservationID string
	Thresholds    Thresholds
}

type entry struct {
	agentID string
	mu      sync.Mutex
	pos     types.Position
}

// Tracker owns every non-closed position. Each position has its own lock, so the monitor
// sweep and explicit updates of one position never interleave.
type Tracker struct {
	mu     sync.RWMutex
	active map[string]*entry
	recent map[string]types.Position
	order  []string
	fills  map[string][]types.Fill

	config  Config
	store   storage.PositionStore
	venues  VenueResolver
	ledger  Ledger
	bus     events.Publisher
	metrics *metrics.Metrics
	log     *logger.Logger
	now     func() time.Time

	cmu     sync.RWMutex
	onClose CloseHandler
}

// CloseHandler receives every position once, right after it is CLOSED. It runs on the
// closing goroutine and must not call back into the tracker.
type CloseHandler func(position types.Position)

// Option configures optional collaborators of the tracker.
type Option func(*Tracker)

func WithPublisher(bus events.Publisher) Option {
	return func(t *Tracker) {
		t.bus = bus
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) {
		t.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

func NewTracker(config Config, store storage.PositionStore, venues VenueResolver, ledger Ledger, log *logger.Logger, opts ...Option) *Tracker {
	if log == nil {
		log = logger.NewNop()
	}

	t := &Tracker{
		active: make(map[string]*entry),
		recent: make(map[string]types.Position),
		fills:  make(map[string][]types.Fill),
		config: config.withDefaults(),
		store:  store,
		venues: venues,
		ledger: ledger,
		log:    log.Component("position"),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// OnClose registers the handler of closed positions. Unlike the event bus it never drops
// a close.
func (t *Tracker) OnClose(handler CloseHandler) {
	t.cmu.Lock()
	defer t.cmu.Unlock()

	t.onClose = handler
}

// Open records a filled entry and starts monitoring it.
func (t *Tracker) Open(ctx context.Context, agentID string, req OpenRequest) (string, error) {
	fill := req.Fill
	if fill.Price <= 0 || fill.Quantity <= 0 {
		return "", errors.Newf(errors.ErrCodeInvalidParameter,
			"cannot open a position from fill %s with price %.8f and quantity %.8f", fill.OrderID, fill.Price, fill.Quantity)
	}

	stopLoss := req.Thresholds.StopLoss.TakeOr(0)
	takeProfit := req.Thresholds.TakeProfit.TakeOr(0)

	if err := validateStopLoss(req.Side, fill.Price, stopLoss); err != nil {
		return "", err
	}

	if err := validateTakeProfit(req.Side, fill.Price, takeProfit); err != nil {
		return "", err
	}

	leverage := req.Leverage
	if leverage <= 0 {
		leverage = 1
	}

	now := t.now()
	pos := types.Position{
		ID:            uuid.New().String(),
		AgentID:       agentID,
		Symbol:        fill.Symbol,
		Side:          req.Side,
		EntryPrice:    fill.Price,
		Size:          fill.Quantity,
		Stake:         req.Stake,
		Leverage:      leverage,
		StopLoss:      stopLoss,
		TakeProfit:    takeProfit,
		Status:        types.PositionStatusOpen,
		OpenedAt:      now,
		UpdatedAt:     now,
		EntryOrderID:  fill.OrderID,
		ReservationID: req.ReservationID,
		CurrentPrice:  fill.Price,
		Fee:           fill.Fee,
	}

	if err := t.persist(ctx, pos); err != nil {
		return "", errors.Wrapf(errors.ErrCodePersistence, err, "position for fill %s was not persisted", fill.OrderID)
	}

	if req.ReservationID != "" && t.ledger != nil {
		if err := t.ledger.Bind(req.ReservationID, pos.ID); err != nil {
			t.log.Warn("Failed to bind reservation",
				zap.String("position_id", pos.ID),
				zap.String("reservation_id", req.ReservationID),
				zap.Error(err),
			)
		}
	}

	pos.Status = types.PositionStatusMonitoring
	pos.UpdatedAt = t.now()
	// An OPEN record is enough to recover the position.
	_ = t.persist(ctx, pos)

	t.mu.Lock()
	t.active[pos.ID] = &entry{agentID: pos.AgentID, pos: pos}
	t.mu.Unlock()

	t.log.Info("Position opened",
		zap.String("position_id", pos.ID),
		zap.String("agent_id", agentID),
		zap.String("symbol", pos.Symbol),
		zap.String("side", string(pos.Side)),
		zap.Float64("entry_price", pos.EntryPrice),
		zap.Float64("size", pos.Size),
		zap.Float64("stop_loss", pos.StopLoss),
		zap.Float64("take_profit", pos.TakeProfit),
	)

	t.metrics.PositionOpened()
	t.publish(types.Event{Kind: types.EventPositionOpened, AgentID: agentID, PositionID: pos.ID, Position: &pos})

	return pos.ID, nil
}

// UpdateStopLoss moves the stop-loss of a MONITORING position. Zero removes it.
func (t *Tracker) UpdateStopLoss(ctx context.Context, id string, stopLoss float64) error {
	return t.update(ctx, id, func(p *types.Position) error {
		if err := validateStopLoss(p.Side, p.EntryPrice, stopLoss); err != nil {
			return err
		}

		p.StopLoss = stopLoss

		return nil
	})
}

// UpdateTakeProfit moves the take-profit of a MONITORING position. Zero removes it.
func (t *Tracker) UpdateTakeProfit(ctx context.Context, id string, takeProfit float64) error {
	return t.update(ctx, id, func(p *types.Position) error {
		if err := validateTakeProfit(p.Side, p.EntryPrice, takeProfit); err != nil {
			return err
		}

		p.TakeProfit = takeProfit

		return nil
	})
}

func (t *Tracker) update(ctx context.Context, id string, apply func(p *types.Position) error) error {
	e, err := t.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pos.Status != types.PositionStatusMonitoring {
		return errors.Newf(errors.ErrCodeStateConflict, "position %s is %s, thresholds can only change while MONITORING", id, e.pos.Status)
	}

	next := e.pos
	if err := apply(&next); err != nil {
		return err
	}

	next.UpdatedAt = t.now()
	if err := t.persist(ctx, next); err != nil {
		return errors.Wrapf(errors.ErrCodePersistence, err, "thresholds of position %s were not persisted", id)
	}

	e.pos = next

	return nil
}

// Close closes a position through the same CLOSING path the monitor uses. A position
// stuck in CLOSING is retried.
func (t *Tracker) Close(ctx context.Context, id string, reason types.CloseReason) error {
	e, err := t.lookup(id)
	if err != nil {
		return err
	}

	if reason == "" {
		reason = types.CloseReasonManual
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return t.closeLocked(ctx, e, reason, 0)
}

// CloseAllForAgent closes every active position of agentID. It keeps going past failures
// and returns the first one.
func (t *Tracker) CloseAllForAgent(ctx context.Context, agentID string, reason types.CloseReason) (int, error) {
	var (
		closed   int
		firstErr error
	)

	for _, e := range t.entriesFor(agentID) {
		e.mu.Lock()
		err := t.closeLocked(ctx, e, reason, 0)
		e.mu.Unlock()

		switch {
		case err == nil:
			closed++
		case errors.HasCode(err, errors.ErrCodeStateConflict):
		default:
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return closed, firstErr
}

// closeLocked moves the position to CLOSING, places the exit order and settles the
// outcome. Callers hold e.mu. A known price skips the venue lookup for order pricing.
func (t *Tracker) closeLocked(ctx context.Context, e *entry, reason types.CloseReason, price float64) error {
	pos := e.pos

	switch pos.Status {
	case types.PositionStatusClosed:
		return errors.Newf(errors.ErrCodeStateConflict, "position %s is already closed", pos.ID)
	case types.PositionStatusOpen, types.PositionStatusMonitoring:
		if err := transition(&pos, types.PositionStatusClosing); err != nil {
			return err
		}

		pos.CloseReason = reason
		pos.UpdatedAt = t.now()
		e.pos = pos
		t.persist(ctx, pos)
	case types.PositionStatusClosing:
		// retry with the reason recorded when closing began
	}

	venue, err := t.venues.VenueFor(pos.AgentID)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeOrderFailed, err, "no venue to close position %s", pos.ID)
	}

	order := types.ExecuteOrder{
		ID:           uuid.NewSHA1(closeNamespace, []byte(pos.ID)).String(),
		AgentID:      pos.AgentID,
		Symbol:       pos.Symbol,
		Side:         types.ExitSide(pos.Side),
		OrderType:    types.OrderTypeMarket,
		Reason:       types.Reason{Reason: string(pos.CloseReason), Message: "close position " + pos.ID},
		Price:        price,
		Quantity:     pos.Size,
		PositionType: pos.Side,
		ReduceOnly:   true,
		PositionID:   pos.ID,
	}

	fill, err := venue.PlaceOrder(ctx, order)
	if err != nil {
		t.log.Warn("Close order failed, position stays CLOSING",
			zap.String("position_id", pos.ID),
			zap.String("agent_id", pos.AgentID),
			zap.Error(err),
		)

		return errors.Wrapf(errors.ErrCodeOrderFailed, err, "failed to close position %s", pos.ID)
	}

	t.settleLocked(ctx, e, fill)

	return nil
}

// settleLocked records the one realized outcome of the position.
func (t *Tracker) settleLocked(ctx context.Context, e *entry, fill types.Fill) {
	pos := e.pos

	pnl := decimal.NewFromFloat(types.CalculatePnL(pos.Side, pos.EntryPrice, fill.Price, pos.Size)).
		Sub(decimal.NewFromFloat(pos.Fee)).
		Sub(decimal.NewFromFloat(fill.Fee))

	pos.Status = types.PositionStatusClosed
	pos.CloseOrderID = fill.OrderID
	pos.ExitPrice = fill.Price
	pos.RealizedPnL, _ = pnl.Float64()
	pos.Fee, _ = decimal.NewFromFloat(pos.Fee).Add(decimal.NewFromFloat(fill.Fee)).Float64()
	pos.CurrentPrice = fill.Price
	pos.UnrealizedPnL = 0
	pos.ClosedAt = t.now()
	pos.UpdatedAt = pos.ClosedAt
	e.pos = pos

	t.persist(ctx, pos)

	t.mu.Lock()
	delete(t.active, pos.ID)
	t.remember(pos)
	t.mu.Unlock()

	if t.ledger != nil {
		if err := t.ledger.Release(pos.AgentID, pos.ID, pos.RealizedPnL); err != nil {
			t.log.Warn("Failed to release exposure",
				zap.String("position_id", pos.ID),
				zap.String("agent_id", pos.AgentID),
				zap.Error(err),
			)
		}
	}

	t.log.Info("Position closed",
		zap.String("position_id", pos.ID),
		zap.String("agent_id", pos.AgentID),
		zap.String("reason", string(pos.CloseReason)),
		zap.Float64("exit_price", pos.ExitPrice),
		zap.Float64("realized_pnl", pos.RealizedPnL),
	)

	t.metrics.PositionClosed(pos.CloseReason)

	t.cmu.RLock()
	handler := t.onClose
	t.cmu.RUnlock()

	if handler != nil {
		handler(pos)
	}

	t.publish(types.Event{
		Kind:       types.EventPositionClosed,
		AgentID:    pos.AgentID,
		PositionID: pos.ID,
		Reason:     string(pos.CloseReason),
		Position:   &pos,
	})
}

// remember keeps a bounded window of closed positions for Get. Callers hold t.mu.
func (t *Tracker) remember(pos types.Position) {
	t.recent[pos.ID] = pos
	t.order = append(t.order, pos.ID)

	for len(t.order) > recentClosedLimit {
		delete(t.recent, t.order[0])
		t.order = t.order[1:]
	}
}

func transition(p *types.Position, next types.PositionStatus) error {
	if !p.Status.CanTransitionTo(next) {
		return errors.Newf(errors.ErrCodeStateConflict, "position %s cannot move from %s to %s", p.ID, p.Status, next)
	}

	p.Status = next

	return nil
}

// RecoverOrphans loads persisted non-closed positions. OPEN positions advance to
// MONITORING, CLOSING ones are retried by the next sweep. Nothing is closed here and
// positions already tracked are left alone. It returns the positions it adopted.
func (t *Tracker) RecoverOrphans(ctx context.Context) ([]types.Position, error) {
	stored, err := t.store.LoadActivePositions(ctx)
	if err != nil {
		return nil, err
	}

	var adopted []types.Position

	for _, pos := range stored {
		t.mu.RLock()
		_, tracked := t.active[pos.ID]
		t.mu.RUnlock()

		if tracked {
			continue
		}

		if pos.Status == types.PositionStatusOpen {
			pos.Status = types.PositionStatusMonitoring
			pos.UpdatedAt = t.now()
			t.persist(ctx, pos)
		}

		t.mu.Lock()
		if _, raced := t.active[pos.ID]; !raced {
			t.active[pos.ID] = &entry{agentID: pos.AgentID, pos: pos}
			adopted = append(adopted, pos)
		}
		t.mu.Unlock()
	}

	if len(adopted) > 0 {
		t.log.Info("Recovered positions", zap.Int("count", len(adopted)))
	}

	t.metrics.SetOpenPositions(t.activeCount())

	return adopted, nil
}

// History returns closed positions of agentID, newest first.
func (t *Tracker) History(ctx context.Context, agentID string, filter types.PositionFilter) ([]types.Position, error) {
	return t.store.QueryClosedPositions(ctx, agentID, filter)
}

// Get returns a snapshot of an active or recently closed position.
func (t *Tracker) Get(id string) (types.Position, error) {
	t.mu.RLock()
	e, ok := t.active[id]
	closed, wasClosed := t.recent[id]
	t.mu.RUnlock()

	if wasClosed {
		return closed, nil
	}

	if !ok {
		return types.Position{}, errors.Newf(errors.ErrCodePositionNotFound, "position %s not found", id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.pos, nil
}

// OpenPositions returns snapshots of the active positions of agentID, oldest first. An
// empty agentID returns every active position.
func (t *Tracker) OpenPositions(agentID string) []types.Position {
	entries := t.entriesFor(agentID)
	out := make([]types.Position, 0, len(entries))

	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.pos)
		e.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})

	return out
}

// HasOpenPosition reports whether agentID has a position that is not closed.
func (t *Tracker) HasOpenPosition(agentID string) bool {
	return len(t.entriesFor(agentID)) > 0
}

// RecordFill appends a streamed venue fill to the agent's fill log.
func (t *Tracker) RecordFill(fill types.Fill) {
	t.mu.Lock()
	defer t.mu.Unlock()

	log := append(t.fills[fill.AgentID], fill)
	if len(log) > fillLogLimit {
		log = log[len(log)-fillLogLimit:]
	}

	t.fills[fill.AgentID] = log
}

// Fills returns the most recent streamed fills of agentID.
func (t *Tracker) Fills(agentID string) []types.Fill {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return append([]types.Fill(nil), t.fills[agentID]...)
}

// ForgetAgent drops the fill log of a deleted agent.
func (t *Tracker) ForgetAgent(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.fills, agentID)
}

func (t *Tracker) lookup(id string) (*entry, error) {
	t.mu.RLock()
	e, ok := t.active[id]
	_, wasClosed := t.recent[id]
	t.mu.RUnlock()

	if wasClosed {
		return nil, errors.Newf(errors.ErrCodeStateConflict, "position %s is already closed", id)
	}

	if !ok {
		return nil, errors.Newf(errors.ErrCodePositionNotFound, "position %s not found", id)
	}

	return e, nil
}

func (t *Tracker) entriesFor(agentID string) []*entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*entry, 0, len(t.active))

	for _, e := range t.active {
		if agentID == "" || e.agentID == agentID {
			out = append(out, e)
		}
	}

	return out
}

func (t *Tracker) activeCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.active)
}

func (t *Tracker) persist(ctx context.Context, pos types.Position) error {
	if t.store == nil {
		return nil
	}

	if err := t.store.SavePosition(ctx, pos); err != nil {
		t.metrics.PersistFailure()
		t.log.Error("Failed to persist position",
			zap.String("position_id", pos.ID),
			zap.String("status", string(pos.Status)),
			zap.Error(err),
		)

		return err
	}

	return nil
}

func (t *Tracker) publish(event types.Event) {
	if t.bus != nil {
		t.bus.Publish(event)
	}
}
