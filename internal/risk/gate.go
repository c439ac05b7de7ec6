// Package risk gates every trade against per-agent budgets and the account balance, and
// halts agents whose realized losses breach the rolling threshold.
package risk

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-fleet/internal/events"
	"github.com/rxtech-lab/argo-fleet/internal/logger"
	"github.com/rxtech-lab/argo-fleet/internal/metrics"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AllAgents targets every registered agent in EmergencyStop and ClearEmergencyStop.
const AllAgents = "*"

// Limits are the risk limits of one agent.
type Limits struct {
	Budget      float64 `json:"budget" yaml:"budget"`
	MaxStake    float64 `json:"max_stake" yaml:"max_stake"`
	MaxLeverage float64 `json:"max_leverage" yaml:"max_leverage"`
}

// LimitsFromConfig reads the limits of an agent config.
func LimitsFromConfig(c types.AgentConfig) Limits {
	c = c.WithDefaults()

	return Limits{Budget: c.Budget, MaxStake: c.MaxStake, MaxLeverage: c.MaxLeverage}
}

func (l Limits) validate() error {
	if l.Budget <= 0 || l.MaxStake <= 0 || l.MaxLeverage < 1 {
		return errors.Newf(errors.ErrCodeInvalidConfig,
			"invalid risk limits: budget %.2f, max stake %.2f, max leverage %.2f", l.Budget, l.MaxStake, l.MaxLeverage)
	}

	return nil
}

// Trade is a proposed entry.
type Trade struct {
	Symbol   string
	Stake    float64
	Leverage float64
}

// Decision is the outcome of CheckAndReserve. A denial is not an error.
type Decision struct {
	Approved      bool
	ReservationID string
	Reason        string
	// Exposure is the agent's exposure after the decision.
	Exposure float64
}

// BalanceSource returns the account balance backing an agent's trades.
type BalanceSource interface {
	Balance(ctx context.Context, agentID string) (float64, error)
}

// BalanceFunc adapts a function to BalanceSource.
type BalanceFunc func(ctx context.Context, agentID string) (float64, error)

func (f BalanceFunc) Balance(ctx context.Context, agentID string) (float64, error) {
	return f(ctx, agentID)
}

// PositionCloser closes the positions of a halted agent.
type PositionCloser interface {
	CloseAllForAgent(ctx context.Context, agentID string, reason types.CloseReason) (int, error)
}

// Config configures the gate's background monitor.
type Config struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval" json:"sweep_interval"`
	// RollingWindow is how far back realized losses count.
	RollingWindow time.Duration `mapstructure:"rolling_window" yaml:"rolling_window" json:"rolling_window"`
	// RollingLossThreshold halts an agent whose summed realized losses in the window reach it.
	// Zero disables the check.
	RollingLossThreshold float64 `mapstructure:"rolling_loss_threshold" yaml:"rolling_loss_threshold" json:"rolling_loss_threshold" validate:"gte=0"`
}

func (c Config) withDefaults() Config {
	if c.SweepInterval <= 0 {
		c.SweepInterval = 5 * time.Second
	}

	if c.RollingWindow <= 0 {
		c.RollingWindow = 24 * time.Hour
	}

	return c
}

type reservation struct {
	id         string
	agentID    string
	amount     decimal.Decimal
	leverage   float64
	positionID string
	createdAt  time.Time
}

type realized struct {
	at  time.Time
	pnl decimal.Decimal
}

type ledger struct {
	limits       Limits
	exposure     decimal.Decimal
	reservations map[string]*reservation
	pnl          []realized
	wins         int
	closes       int
	halted       bool
	haltReason   string
}

// AgentSnapshot is a read-only view of one agent's ledger.
type AgentSnapshot struct {
	AgentID      string  `json:"agent_id" yaml:"agent_id"`
	Limits       Limits  `json:"limits" yaml:"limits"`
	Exposure     float64 `json:"exposure" yaml:"exposure"`
	Leverage     float64 `json:"leverage" yaml:"leverage"`
	Reservations int     `json:"reservations" yaml:"reservations"`
	RollingLoss  float64 `json:"rolling_loss" yaml:"rolling_loss"`
	Halted       bool    `json:"halted" yaml:"halted"`
	HaltReason   string  `json:"halt_reason,omitempty" yaml:"halt_reason,omitempty"`
	Score        float64 `json:"score" yaml:"score"`
}

// Snapshot is a read-only view of the whole gate.
type Snapshot struct {
	Agents        []AgentSnapshot `json:"agents" yaml:"agents"`
	TotalExposure float64         `json:"total_exposure" yaml:"total_exposure"`
	Halted        bool            `json:"halted" yaml:"halted"`
}

// Gate is the single writer of the risk ledger. Every mutation happens under mu, so
// concurrent approvals can never jointly exceed a budget or the balance.
type Gate struct {
	mu         sync.Mutex
	agents     map[string]*ledger
	byPosition map[string]string
	aggregate  decimal.Decimal
	haltAll    bool
	haltReason string
	config     Config
	balance    BalanceSource
	closer     PositionCloser
	bus        events.Publisher
	metrics    *metrics.Metrics
	log        *logger.Logger
	now        func() time.Time
}

// Option configures optional collaborators of the gate.
type Option func(*Gate)

func WithPublisher(bus events.Publisher) Option {
	return func(g *Gate) {
		g.bus = bus
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// WithCloser sets who closes the positions of halted agents.
func WithCloser(closer PositionCloser) Option {
	return func(g *Gate) {
		g.closer = closer
	}
}

// NewGate builds a gate. A nil balance source skips the account balance check.
func NewGate(config Config, balance BalanceSource, log *logger.Logger, opts ...Option) *Gate {
	if log == nil {
		log = logger.NewNop()
	}

	g := &Gate{
		agents:     make(map[string]*ledger),
		byPosition: make(map[string]string),
		config:     config.withDefaults(),
		balance:    balance,
		log:        log.Component("risk"),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// SetCloser wires the position closer after construction.
func (g *Gate) SetCloser(closer PositionCloser) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.closer = closer
}

// Register binds limits to agentID. Re-registering keeps held exposure.
func (g *Gate) Register(agentID string, limits Limits) error {
	if err := limits.validate(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if l, ok := g.agents[agentID]; ok {
		l.limits = limits

		return nil
	}

	g.agents[agentID] = &ledger{
		limits:       limits,
		reservations: make(map[string]*reservation),
	}

	return nil
}

// Unregister forgets agentID. It is refused while the agent holds exposure.
func (g *Gate) Unregister(agentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.agents[agentID]
	if !ok {
		return nil
	}

	if len(l.reservations) > 0 {
		return errors.Newf(errors.ErrCodeExposureHeld,
			"agent %s still holds %d reservations worth %s", agentID, len(l.reservations), l.exposure.StringFixed(2))
	}

	delete(g.agents, agentID)

	return nil
}

// CheckAndReserve approves trade and reserves its stake in one step, or denies it. The
// balance is fetched before the ledger lock is taken.
func (g *Gate) CheckAndReserve(ctx context.Context, agentID string, trade Trade) (Decision, error) {
	if trade.Stake <= 0 {
		return Decision{}, errors.Newf(errors.ErrCodeInvalidParameter, "stake %.8f must be positive", trade.Stake)
	}

	if trade.Leverage == 0 {
		trade.Leverage = 1
	}

	balance := math.MaxFloat64

	if g.balance != nil {
		b, err := g.balance.Balance(ctx, agentID)
		if err != nil {
			return Decision{}, err
		}

		balance = b
	}

	g.mu.Lock()
	decision, err := g.reserveLocked(agentID, trade, balance)
	g.mu.Unlock()

	if err != nil {
		return Decision{}, err
	}

	g.metrics.RiskDecision(agentID, decision.Approved)
	g.metrics.SetExposure(agentID, decision.Exposure)

	if !decision.Approved {
		g.log.Info("Trade denied",
			zap.String("agent_id", agentID),
			zap.Float64("stake", trade.Stake),
			zap.String("reason", decision.Reason),
		)
		g.publish(types.Event{Kind: types.EventRiskDenied, AgentID: agentID, Reason: decision.Reason})
	}

	return decision, nil
}

func (g *Gate) reserveLocked(agentID string, trade Trade, balance float64) (Decision, error) {
	l, ok := g.agents[agentID]
	if !ok {
		return Decision{}, errors.Newf(errors.ErrCodeAgentNotFound, "agent %s is not registered with the risk gate", agentID)
	}

	exposure, _ := l.exposure.Float64()
	deny := func(format string, args ...any) (Decision, error) {
		return Decision{Approved: false, Reason: fmt.Sprintf(format, args...), Exposure: exposure}, nil
	}

	stake := decimal.NewFromFloat(trade.Stake)

	switch {
	case g.haltAll:
		return deny("fleet emergency stop: %s", g.haltReason)
	case l.halted:
		return deny("agent emergency stop: %s", l.haltReason)
	case stake.GreaterThan(decimal.NewFromFloat(l.limits.MaxStake)):
		return deny("stake %.2f exceeds max stake %.2f", trade.Stake, l.limits.MaxStake)
	case trade.Leverage > l.limits.MaxLeverage:
		return deny("leverage %.2f exceeds max leverage %.2f", trade.Leverage, l.limits.MaxLeverage)
	case l.exposure.Add(stake).GreaterThan(decimal.NewFromFloat(l.limits.Budget)):
		return deny("exposure %.2f plus stake %.2f exceeds budget %.2f", exposure, trade.Stake, l.limits.Budget)
	case g.aggregate.Add(stake).GreaterThan(decimal.NewFromFloat(balance)):
		total, _ := g.aggregate.Float64()

		return deny("fleet exposure %.2f plus stake %.2f exceeds balance %.2f", total, trade.Stake, balance)
	}

	r := &reservation{
		id:        uuid.New().String(),
		agentID:   agentID,
		amount:    stake,
		leverage:  trade.Leverage,
		createdAt: g.now(),
	}

	l.reservations[r.id] = r
	l.exposure = l.exposure.Add(stake)
	g.aggregate = g.aggregate.Add(stake)

	after, _ := l.exposure.Float64()

	return Decision{Approved: true, ReservationID: r.id, Exposure: after}, nil
}

// Bind associates a reservation with the position it funded, so it can be released by
// position id.
func (g *Gate) Bind(reservationID string, positionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, l := range g.agents {
		if r, ok := l.reservations[reservationID]; ok {
			r.positionID = positionID
			g.byPosition[positionID] = reservationID

			return nil
		}
	}

	return errors.Newf(errors.ErrCodeReservationNotFound, "reservation %s not found", reservationID)
}

// Release frees the reservation identified by key, a reservation id or a bound position id,
// and records realizedPnL. A second release of the same key is ErrCodeReservationNotFound.
func (g *Gate) Release(agentID string, key string, realizedPnL float64) error {
	g.mu.Lock()

	l, ok := g.agents[agentID]
	if !ok {
		g.mu.Unlock()

		return errors.Newf(errors.ErrCodeAgentNotFound, "agent %s is not registered with the risk gate", agentID)
	}

	id := key
	if rid, bound := g.byPosition[key]; bound {
		id = rid
	}

	r, ok := l.reservations[id]
	if !ok {
		g.mu.Unlock()

		return errors.Newf(errors.ErrCodeReservationNotFound, "no reservation for %s", key)
	}

	delete(l.reservations, id)

	if r.positionID != "" {
		delete(g.byPosition, r.positionID)
	}

	l.exposure = l.exposure.Sub(r.amount)
	g.aggregate = g.aggregate.Sub(r.amount)

	if r.positionID != "" {
		l.pnl = append(l.pnl, realized{at: g.now(), pnl: decimal.NewFromFloat(realizedPnL)})
		l.closes++

		if realizedPnL > 0 {
			l.wins++
		}
	}

	exposure, _ := l.exposure.Float64()
	g.mu.Unlock()

	g.metrics.SetExposure(agentID, exposure)

	return nil
}

// Restore re-reserves the stake of a recovered open position. Restoring an already
// reserved position is a no-op.
func (g *Gate) Restore(agentID string, positionID string, stake float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.agents[agentID]
	if !ok {
		return errors.Newf(errors.ErrCodeAgentNotFound, "agent %s is not registered with the risk gate", agentID)
	}

	if _, ok := g.byPosition[positionID]; ok {
		return nil
	}

	amount := decimal.NewFromFloat(stake)
	r := &reservation{
		id:         uuid.New().String(),
		agentID:    agentID,
		amount:     amount,
		leverage:   1,
		positionID: positionID,
		createdAt:  g.now(),
	}

	l.reservations[r.id] = r
	l.exposure = l.exposure.Add(amount)
	g.aggregate = g.aggregate.Add(amount)
	g.byPosition[positionID] = r.id

	return nil
}

// Exposure returns the reserved exposure of agentID.
func (g *Gate) Exposure(agentID string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.agents[agentID]
	if !ok {
		return 0
	}

	exposure, _ := l.exposure.Float64()

	return exposure
}

// Available returns how much more agentID may reserve under its budget.
func (g *Gate) Available(agentID string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.agents[agentID]
	if !ok {
		return 0
	}

	available, _ := decimal.NewFromFloat(l.limits.Budget).Sub(l.exposure).Float64()
	if available < 0 {
		return 0
	}

	return available
}

// Halted reports whether new trades of agentID are blocked by an emergency stop.
func (g *Gate) Halted(agentID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.haltAll {
		return true
	}

	l, ok := g.agents[agentID]

	return ok && l.halted
}

// EmergencyStop blocks new trades of agentID, or of every agent with AllAgents, and
// closes their open positions.
func (g *Gate) EmergencyStop(ctx context.Context, agentID string, reason string) error {
	g.mu.Lock()

	var targets []string

	if agentID == AllAgents {
		g.haltAll = true
		g.haltReason = reason

		for id, l := range g.agents {
			l.halted = true
			l.haltReason = reason
			targets = append(targets, id)
		}
	} else {
		l, ok := g.agents[agentID]
		if !ok {
			g.mu.Unlock()

			return errors.Newf(errors.ErrCodeAgentNotFound, "agent %s is not registered with the risk gate", agentID)
		}

		l.halted = true
		l.haltReason = reason
		targets = []string{agentID}
	}

	closer := g.closer
	g.mu.Unlock()

	sort.Strings(targets)

	g.log.Warn("Emergency stop", zap.String("target", agentID), zap.String("reason", reason))
	g.metrics.EmergencyStop()
	g.publish(types.Event{Kind: types.EventEmergencyStop, AgentID: agentID, Reason: reason})

	if closer == nil {
		return nil
	}

	var firstErr error

	for _, id := range targets {
		closed, err := closer.CloseAllForAgent(ctx, id, types.CloseReasonEmergency)
		if err != nil {
			g.log.Error("Failed to close positions on emergency stop", zap.String("agent_id", id), zap.Error(err))

			if firstErr == nil {
				firstErr = err
			}

			continue
		}

		if closed > 0 {
			g.log.Info("Closed positions on emergency stop", zap.String("agent_id", id), zap.Int("count", closed))
		}
	}

	return firstErr
}

// ClearEmergencyStop lifts an emergency stop. Realized losses recorded before the clear no
// longer count toward the rolling threshold.
func (g *Gate) ClearEmergencyStop(agentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	reset := func(l *ledger) {
		l.halted = false
		l.haltReason = ""
		l.pnl = nil
	}

	if agentID == AllAgents {
		g.haltAll = false
		g.haltReason = ""

		for _, l := range g.agents {
			reset(l)
		}

		return nil
	}

	l, ok := g.agents[agentID]
	if !ok {
		return errors.Newf(errors.ErrCodeAgentNotFound, "agent %s is not registered with the risk gate", agentID)
	}

	reset(l)

	return nil
}

func (g *Gate) publish(event types.Event) {
	if g.bus != nil {
		g.bus.Publish(event)
	}
}
