// Package agent runs one trading agent: a state machine around a cooperative tick loop
// that turns candles into risk-gated orders.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-fleet/internal/advisory"
	"github.com/rxtech-lab/argo-fleet/internal/connector"
	"github.com/rxtech-lab/argo-fleet/internal/events"
	"github.com/rxtech-lab/argo-fleet/internal/logger"
	"github.com/rxtech-lab/argo-fleet/internal/metrics"
	"github.com/rxtech-lab/argo-fleet/internal/position"
	"github.com/rxtech-lab/argo-fleet/internal/risk"
	"github.com/rxtech-lab/argo-fleet/internal/strategy"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
	"go.uber.org/zap"
)

// RiskGate is the part of the risk gate an agent trades through.
type RiskGate interface {
	CheckAndReserve(ctx context.Context, agentID string, trade risk.Trade) (risk.Decision, error)
	Release(agentID string, key string, realizedPnL float64) error
	Available(agentID string) float64
}

// PositionBook is the part of the position tracker an agent trades through.
type PositionBook interface {
	Open(ctx context.Context, agentID string, req position.OpenRequest) (string, error)
	OpenPositions(agentID string) []types.Position
	Close(ctx context.Context, id string, reason types.CloseReason) error
}

// OnStateChangeCallback is called after every state transition, outside the agent lock.
type OnStateChangeCallback func(agentID string, from types.AgentState, to types.AgentState, reason string)

// Config holds the fleet-wide tick loop settings.
type Config struct {
	// MinConfidence drops signals below this confidence.
	MinConfidence float64 `mapstructure:"min_confidence" yaml:"min_confidence" json:"min_confidence" validate:"gte=0,lte=1"`
	// TickTimeout bounds a single tick.
	TickTimeout time.Duration `mapstructure:"tick_timeout" yaml:"tick_timeout" json:"tick_timeout"`
	// StopGrace is how long Stop waits for the current tick before forcing STOPPED.
	StopGrace time.Duration `mapstructure:"stop_grace" yaml:"stop_grace" json:"stop_grace"`
	// CloseOnReverse closes the open position when the signal points the other way.
	CloseOnReverse bool `mapstructure:"close_on_reverse" yaml:"close_on_reverse" json:"close_on_reverse"`
	// TickEvery overrides the tick period. Zero ticks once per candle interval.
	TickEvery time.Duration `mapstructure:"tick_every" yaml:"tick_every" json:"tick_every"`
	// Advisory controls pattern advice.
	Advisory AdvisoryConfig `mapstructure:"advisory" yaml:"advisory" json:"advisory"`
}

// DefaultConfig returns the default tick loop settings.
func DefaultConfig() Config {
	return Config{
		MinConfidence:  0.6,
		TickTimeout:    30 * time.Second,
		StopGrace:      5 * time.Second,
		CloseOnReverse: true,
		TickEvery:      0,
		Advisory: AdvisoryConfig{
			MinRelevance: 0.7,
			Weight:       0.3,
			Override:     0.9,
		},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()

	if c.TickTimeout <= 0 {
		c.TickTimeout = d.TickTimeout
	}

	if c.StopGrace <= 0 {
		c.StopGrace = d.StopGrace
	}

	return c
}

// Deps are the collaborators of an agent.
type Deps struct {
	Connector     connector.Connector
	Gate          RiskGate
	Positions     PositionBook
	Advisor       advisory.Advisor
	Bus           events.Publisher
	Metrics       *metrics.Metrics
	Log           *logger.Logger
	OnStateChange OnStateChangeCallback
	Clock         func() time.Time
}

type stateChange struct {
	from   types.AgentState
	to     types.AgentState
	reason string
}

// run is one incarnation of the tick loop. A restarted agent gets a new run, so a late
// tick of an abandoned run can never change the state of its successor.
type run struct {
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	cancel   context.CancelFunc
}

func (r *run) requestStop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Agent is one trading agent. All exported methods are safe for concurrent use.
type Agent struct {
	mu       sync.Mutex
	id       string
	config   types.AgentConfig
	strategy strategy.Strategy
	conn     connector.Connector
	state    types.AgentState
	metrics  types.AgentMetrics
	current  *run

	runtime   Config
	gate      RiskGate
	positions PositionBook
	advisor   advisory.Advisor
	bus       events.Publisher
	prom      *metrics.Metrics
	log       *logger.Logger
	onState   OnStateChangeCallback
	now       func() time.Time
}

// New builds an IDLE agent. config must carry an ID.
func New(config types.AgentConfig, runtime Config, deps Deps) (*Agent, error) {
	config = config.WithDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.ID == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "agent config has no id")
	}

	if deps.Gate == nil || deps.Positions == nil {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "agent needs a risk gate and a position book")
	}

	strat, err := strategy.New(config.Strategy, config.StrategyParams)
	if err != nil {
		return nil, err
	}

	log := deps.Log
	if log == nil {
		log = logger.NewNop()
	}

	advisor := deps.Advisor
	if advisor == nil {
		advisor = advisory.NoopAdvisor{}
	}

	now := deps.Clock
	if now == nil {
		now = time.Now
	}

	return &Agent{
		id:        config.ID,
		config:    config,
		strategy:  strat,
		conn:      deps.Connector,
		state:     types.AgentStateIdle,
		runtime:   runtime.withDefaults(),
		gate:      deps.Gate,
		positions: deps.Positions,
		advisor:   advisor,
		bus:       deps.Bus,
		prom:      deps.Metrics,
		log:       &logger.Logger{Logger: log.Component("agent").With(zap.String("agent_id", config.ID), zap.String("name", config.Name))},
		onState:   deps.OnStateChange,
		now:       now,
	}, nil
}

func (a *Agent) ID() string {
	return a.id
}

// Config returns the current configuration.
func (a *Agent) Config() types.AgentConfig {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.config
}

func (a *Agent) State() types.AgentState {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.state
}

// Metrics returns a copy of the runtime counters with Uptime brought up to date.
func (a *Agent) Metrics() types.AgentMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	m := a.metrics
	if a.state.IsActive() && !m.StartedAt.IsZero() {
		m.Uptime = a.now().Sub(m.StartedAt)
	}

	return m
}

// Restore loads persisted metrics into an agent rebuilt after a restart. The agent is left
// STOPPED; it never resumes trading on its own.
func (a *Agent) Restore(m types.AgentMetrics) error {
	a.mu.Lock()

	if a.state.IsActive() {
		a.mu.Unlock()

		return errors.Newf(errors.ErrCodeStateConflict, "cannot restore agent %s while %s", a.id, a.state)
	}

	a.metrics = m
	change := a.transitionLocked(types.AgentStateStopped, "recovered")
	a.mu.Unlock()

	a.emit(change)

	return nil
}

// Start launches the tick loop under ctx. Valid from IDLE, STOPPED and ERROR.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()

	switch a.state {
	case types.AgentStateIdle, types.AgentStateStopped, types.AgentStateError:
	default:
		state := a.state
		a.mu.Unlock()

		return errors.Newf(errors.ErrCodeStateConflict, "cannot start agent %s from %s", a.id, state)
	}

	if a.conn == nil {
		a.mu.Unlock()

		return errors.Newf(errors.ErrCodeInvalidConfig, "agent %s has no connector", a.id)
	}

	changes := []stateChange{a.transitionLocked(types.AgentStateStarting, "")}

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{stop: make(chan struct{}), done: make(chan struct{}), cancel: cancel}
	a.current = r
	a.metrics.StartedAt = a.now()
	a.metrics.Uptime = 0
	a.metrics.LastError = ""

	changes = append(changes, a.transitionLocked(types.AgentStateRunning, ""))
	a.mu.Unlock()

	a.emit(changes...)
	a.log.Info("Agent started", zap.String("symbol", a.config.Symbol), zap.String("strategy", string(a.config.Strategy)))

	go a.loop(runCtx, r)

	return nil
}

// Stop asks the tick loop to finish its current tick and waits up to the stop grace period.
// After that the tick is canceled and the agent is STOPPED regardless.
func (a *Agent) Stop(ctx context.Context) error {
	a.mu.Lock()

	switch a.state {
	case types.AgentStateStarting, types.AgentStateRunning, types.AgentStatePaused:
	default:
		state := a.state
		a.mu.Unlock()

		return errors.Newf(errors.ErrCodeStateConflict, "cannot stop agent %s from %s", a.id, state)
	}

	r := a.current
	change := a.transitionLocked(types.AgentStateStopping, "")
	a.mu.Unlock()

	a.emit(change)

	r.requestStop()

	timer := time.NewTimer(a.runtime.StopGrace)
	defer timer.Stop()

	reason := "stopped"

	select {
	case <-r.done:
	case <-timer.C:
		reason = "forced after grace period"
	case <-ctx.Done():
		reason = "forced by caller"
	}

	r.cancel()

	a.mu.Lock()

	var changes []stateChange

	if a.current == r && a.state == types.AgentStateStopping {
		a.metrics.Uptime = a.now().Sub(a.metrics.StartedAt)
		changes = append(changes, a.transitionLocked(types.AgentStateStopped, reason))
	}

	a.mu.Unlock()

	a.emit(changes...)

	if reason != "stopped" {
		a.log.Warn("Agent stop forced", zap.String("reason", reason), zap.Duration("grace", a.runtime.StopGrace))
	} else {
		a.log.Info("Agent stopped")
	}

	return nil
}

// Pause keeps the loop alive but skips trading until Resume.
func (a *Agent) Pause() error {
	return a.move(types.AgentStateRunning, types.AgentStatePaused)
}

func (a *Agent) Resume() error {
	return a.move(types.AgentStatePaused, types.AgentStateRunning)
}

func (a *Agent) move(from types.AgentState, to types.AgentState) error {
	a.mu.Lock()

	if a.state != from {
		state := a.state
		a.mu.Unlock()

		return errors.Newf(errors.ErrCodeStateConflict, "cannot move agent %s to %s from %s", a.id, to, state)
	}

	change := a.transitionLocked(to, "")
	a.mu.Unlock()

	a.emit(change)

	return nil
}

// UpdateConfig swaps the configuration. Legal only from IDLE, STOPPED and PAUSED. A nil
// conn keeps the current connector.
func (a *Agent) UpdateConfig(config types.AgentConfig, conn connector.Connector) error {
	config = config.WithDefaults()
	config.ID = a.id

	if err := config.Validate(); err != nil {
		return err
	}

	strat, err := strategy.New(config.Strategy, config.StrategyParams)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case types.AgentStateIdle, types.AgentStateStopped, types.AgentStatePaused:
	default:
		return errors.Newf(errors.ErrCodeStateConflict, "cannot update agent %s while %s", a.id, a.state)
	}

	a.config = config
	a.strategy = strat

	if conn != nil {
		a.conn = conn
	}

	return nil
}

// RecordClose folds a closed position into the agent metrics.
func (a *Agent) RecordClose(pnl float64) {
	a.mu.Lock()
	a.metrics.RecordClose(pnl)
	realized := a.metrics.RealizedPnL
	a.mu.Unlock()

	a.prom.SetRealizedPnL(a.id, realized)
}

// Health derives the health record at now. A RUNNING agent that has not ticked within
// staleAfter is unhealthy.
func (a *Agent) Health(now time.Time, staleAfter time.Duration) types.HealthRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	record := types.HealthRecord{
		AgentID:   a.id,
		Name:      a.config.Name,
		State:     a.state,
		Healthy:   true,
		CheckedAt: now,
		Issues:    []string{},
	}

	if a.state == types.AgentStateError {
		record.Issues = append(record.Issues, fmt.Sprintf("agent failed: %s", a.metrics.LastError))
	}

	if a.state == types.AgentStateRunning && staleAfter > 0 {
		last := a.metrics.LastTickAt
		if last.IsZero() {
			last = a.metrics.StartedAt
		}

		if now.Sub(last) > staleAfter {
			record.Issues = append(record.Issues, fmt.Sprintf("no tick for %s", now.Sub(last).Truncate(time.Second)))
		}
	}

	record.Healthy = len(record.Issues) == 0

	return record
}

// Done returns a channel closed when the current tick loop exits, or nil if it never ran.
func (a *Agent) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current == nil {
		return nil
	}

	return a.current.done
}

func (a *Agent) transitionLocked(to types.AgentState, reason string) stateChange {
	change := stateChange{from: a.state, to: to, reason: reason}
	a.state = to

	return change
}

func (a *Agent) emit(changes ...stateChange) {
	for _, c := range changes {
		a.log.Debug("Agent state changed",
			zap.String("from", string(c.from)),
			zap.String("to", string(c.to)),
			zap.String("reason", c.reason),
		)

		if a.bus != nil {
			a.bus.Publish(types.Event{Kind: types.EventAgentState, AgentID: a.id, State: c.to, Reason: c.reason})
		}

		if a.onState != nil {
			a.onState(a.id, c.from, c.to, c.reason)
		}
	}
}
