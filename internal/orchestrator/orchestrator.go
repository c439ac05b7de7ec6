// Package orchestrator owns the fleet of trading agents: it enforces the agent cap,
// persists every agent, and rebuilds the fleet after a restart.
package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-fleet/internal/advisory"
	"github.com/rxtech-lab/argo-fleet/internal/agent"
	"github.com/rxtech-lab/argo-fleet/internal/connector"
	"github.com/rxtech-lab/argo-fleet/internal/events"
	"github.com/rxtech-lab/argo-fleet/internal/logger"
	"github.com/rxtech-lab/argo-fleet/internal/metrics"
	"github.com/rxtech-lab/argo-fleet/internal/position"
	"github.com/rxtech-lab/argo-fleet/internal/risk"
	"github.com/rxtech-lab/argo-fleet/internal/storage"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxAgents is the default cap on non-terminal agents.
const DefaultMaxAgents = 3

// Config configures the orchestrator.
type Config struct {
	// MaxAgents caps the agents that are not STOPPED or ERROR.
	MaxAgents int `mapstructure:"max_agents" yaml:"max_agents" json:"max_agents" validate:"gte=0"`
	// HealthInterval is the period of the health sweep.
	HealthInterval time.Duration `mapstructure:"health_interval" yaml:"health_interval" json:"health_interval"`
	// StaleAfter marks a RUNNING agent unhealthy when it has not ticked for this long.
	StaleAfter time.Duration `mapstructure:"stale_after" yaml:"stale_after" json:"stale_after"`
	// PersistInterval is the period of the status and metrics snapshot.
	PersistInterval time.Duration `mapstructure:"persist_interval" yaml:"persist_interval" json:"persist_interval"`
	// Agent holds the tick loop settings shared by every agent.
	Agent agent.Config `mapstructure:"agent" yaml:"agent" json:"agent"`
}

func (c Config) withDefaults() Config {
	if c.MaxAgents <= 0 {
		c.MaxAgents = DefaultMaxAgents
	}

	if c.HealthInterval <= 0 {
		c.HealthInterval = 30 * time.Second
	}

	if c.StaleAfter <= 0 {
		c.StaleAfter = 5 * time.Minute
	}

	if c.PersistInterval <= 0 {
		c.PersistInterval = 30 * time.Second
	}

	return c
}

// Deps are the collaborators of the orchestrator.
type Deps struct {
	Store    storage.AgentStore
	Registry *connector.Registry
	Gate     *risk.Gate
	Tracker  *position.Tracker
	Advisor  advisory.Advisor
	Bus      *events.Bus
	Metrics  *metrics.Metrics
	Log      *logger.Logger
	Clock    func() time.Time
}

// Snapshot is a read-only view of one agent.
type Snapshot struct {
	Config    types.AgentConfig  `json:"config" yaml:"config"`
	State     types.AgentState   `json:"state" yaml:"state"`
	Metrics   types.AgentMetrics `json:"metrics" yaml:"metrics"`
	Positions []types.Position   `json:"positions" yaml:"positions"`
}

// OnHealthCallback receives every health sweep.
type OnHealthCallback func(records []types.HealthRecord)

// Orchestrator is the single owner of the agents. Mutating operations are serialized by
// mu; the health sweep only reads.
type Orchestrator struct {
	mu     sync.RWMutex
	agents map[string]*agent.Agent

	// venues maps agent id to the venue whose handle it holds. Guarded by vmu, not mu, so
	// position closes issued while mu is held can still resolve venues and credit agents.
	vmu     sync.RWMutex
	venues  map[string]string
	roster  map[string]*agent.Agent
	streams map[string]context.CancelFunc

	hmu      sync.RWMutex
	onHealth OnHealthCallback

	config   Config
	store    storage.AgentStore
	registry *connector.Registry
	gate     *risk.Gate
	tracker  *position.Tracker
	advisor  advisory.Advisor
	bus      *events.Bus
	metrics  *metrics.Metrics
	log      *logger.Logger
	now      func() time.Time

	// base outlives every request; agent loops and fill streams run under it.
	base       context.Context
	cancelBase context.CancelFunc
}

// New builds an empty orchestrator.
func New(config Config, deps Deps) (*Orchestrator, error) {
	if deps.Store == nil || deps.Registry == nil || deps.Gate == nil || deps.Tracker == nil {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "orchestrator needs a store, a connector registry, a risk gate and a position tracker")
	}

	log := deps.Log
	if log == nil {
		log = logger.NewNop()
	}

	now := deps.Clock
	if now == nil {
		now = time.Now
	}

	advisor := deps.Advisor
	if advisor == nil {
		advisor = advisory.NoopAdvisor{}
	}

	base, cancel := context.WithCancel(context.Background())

	o := &Orchestrator{
		agents:     make(map[string]*agent.Agent),
		venues:     make(map[string]string),
		roster:     make(map[string]*agent.Agent),
		streams:    make(map[string]context.CancelFunc),
		config:     config.withDefaults(),
		store:      deps.Store,
		registry:   deps.Registry,
		gate:       deps.Gate,
		tracker:    deps.Tracker,
		advisor:    advisor,
		bus:        deps.Bus,
		metrics:    deps.Metrics,
		log:        log.Component("orchestrator"),
		now:        now,
		base:       base,
		cancelBase: cancel,
	}

	o.tracker.OnClose(o.onPositionClosed)

	return o, nil
}

// MaxAgents returns the agent cap.
func (o *Orchestrator) MaxAgents() int {
	return o.config.MaxAgents
}

// OnHealth registers the health sweep callback.
func (o *Orchestrator) OnHealth(callback OnHealthCallback) {
	o.hmu.Lock()
	defer o.hmu.Unlock()

	o.onHealth = callback
}

// VenueFor returns the connector agentID trades on.
func (o *Orchestrator) VenueFor(agentID string) (connector.Connector, error) {
	o.vmu.RLock()
	venue, ok := o.venues[agentID]
	o.vmu.RUnlock()

	if !ok {
		return nil, errors.Newf(errors.ErrCodeAgentNotFound, "agent %s holds no venue", agentID)
	}

	conn, ok := o.registry.Peek(venue)
	if !ok {
		return nil, errors.Newf(errors.ErrCodeUnsupportedVenue, "venue %s is not open", venue)
	}

	return conn, nil
}

// Balance returns the balance of the venue agentID trades on. It backs the risk gate.
func (o *Orchestrator) Balance(ctx context.Context, agentID string) (float64, error) {
	conn, err := o.VenueFor(agentID)
	if err != nil {
		return 0, err
	}

	return conn.GetBalance(ctx)
}

// Create validates, registers and persists a new IDLE agent and returns its id.
func (o *Orchestrator) Create(ctx context.Context, config types.AgentConfig) (string, error) {
	config = config.WithDefaults()
	if config.ID == "" {
		config.ID = uuid.New().String()
	}

	if err := config.Validate(); err != nil {
		return "", err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.agents[config.ID]; exists {
		return "", errors.Newf(errors.ErrCodeDuplicateName, "agent id %s already exists", config.ID)
	}

	if err := o.checkNameLocked(config.ID, config.Name); err != nil {
		return "", err
	}

	if live := o.liveCountLocked(""); live >= o.config.MaxAgents {
		return "", errors.Newf(errors.ErrCodeMaxAgentsExceeded, "%d of %d agents are live", live, o.config.MaxAgents)
	}

	a, err := o.attach(config)
	if err != nil {
		return "", err
	}

	if err := o.save(ctx, a); err != nil {
		o.detach(config.ID)

		return "", err
	}

	o.agents[config.ID] = a

	o.log.Info("Agent created",
		zap.String("agent_id", config.ID),
		zap.String("name", config.Name),
		zap.String("venue", config.Venue),
		zap.String("strategy", string(config.Strategy)),
	)

	return config.ID, nil
}

// Start starts an IDLE, STOPPED or ERROR agent. A STOPPED or ERROR agent re-enters the cap.
func (o *Orchestrator) Start(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	a, err := o.getLocked(id)
	if err != nil {
		return err
	}

	state := a.State()

	switch state {
	case types.AgentStateIdle, types.AgentStateStopped, types.AgentStateError:
	default:
		return errors.Newf(errors.ErrCodeStateConflict, "cannot start agent %s from %s", id, state)
	}

	if state.IsTerminal() {
		if live := o.liveCountLocked(id); live >= o.config.MaxAgents {
			return errors.Newf(errors.ErrCodeMaxAgentsExceeded, "%d of %d agents are live", live, o.config.MaxAgents)
		}
	}

	if err := o.gate.Register(id, risk.LimitsFromConfig(a.Config())); err != nil {
		return err
	}

	if err := a.Start(o.base); err != nil {
		return err
	}

	o.persist(ctx, a)

	return nil
}

// Stop stops a STARTING, RUNNING or PAUSED agent, waiting up to the stop grace period.
func (o *Orchestrator) Stop(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	a, err := o.getLocked(id)
	if err != nil {
		return err
	}

	if err := a.Stop(ctx); err != nil {
		return err
	}

	o.persist(ctx, a)

	return nil
}

func (o *Orchestrator) Pause(ctx context.Context, id string) error {
	return o.mutate(ctx, id, (*agent.Agent).Pause)
}

func (o *Orchestrator) Resume(ctx context.Context, id string) error {
	return o.mutate(ctx, id, (*agent.Agent).Resume)
}

func (o *Orchestrator) mutate(ctx context.Context, id string, fn func(*agent.Agent) error) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	a, err := o.getLocked(id)
	if err != nil {
		return err
	}

	if err := fn(a); err != nil {
		return err
	}

	o.persist(ctx, a)

	return nil
}

// Update replaces the configuration of id. A RUNNING agent is stopped, updated and
// restarted; a PAUSED agent is updated in place and stays PAUSED.
func (o *Orchestrator) Update(ctx context.Context, id string, config types.AgentConfig) error {
	config = config.WithDefaults()
	config.ID = id

	if err := config.Validate(); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	a, err := o.getLocked(id)
	if err != nil {
		return err
	}

	if err := o.checkNameLocked(id, config.Name); err != nil {
		return err
	}

	restart := false

	switch a.State() {
	case types.AgentStateStarting, types.AgentStateRunning:
		if err := a.Stop(ctx); err != nil {
			return err
		}

		restart = true
	case types.AgentStateStopping:
		return errors.Newf(errors.ErrCodeStateConflict, "agent %s is stopping", id)
	case types.AgentStateError:
		return errors.Newf(errors.ErrCodeStateConflict, "cannot update agent %s while ERROR; start or delete it first", id)
	}

	old := a.Config()

	oldConn, err := o.VenueFor(id)
	if err != nil {
		return o.resume(ctx, a, restart, err)
	}

	var conn connector.Connector

	if config.Venue != old.Venue {
		conn, err = o.registry.Acquire(config.Venue)
		if err != nil {
			return o.resume(ctx, a, restart, err)
		}
	}

	if err := a.UpdateConfig(config, conn); err != nil {
		if conn != nil {
			o.releaseVenue(config.Venue)
		}

		return o.resume(ctx, a, restart, err)
	}

	// Limits and the record are committed before the venue swap so a failure can put the
	// old configuration back.
	err = o.gate.Register(id, risk.LimitsFromConfig(config))
	if err == nil {
		err = o.save(ctx, a)
	}

	if err != nil {
		if rollbackErr := a.UpdateConfig(old, oldConn); rollbackErr != nil {
			o.log.Error("Failed to restore agent config", zap.String("agent_id", id), zap.Error(rollbackErr))
		}

		if regErr := o.gate.Register(id, risk.LimitsFromConfig(old)); regErr != nil {
			o.log.Error("Failed to restore agent limits", zap.String("agent_id", id), zap.Error(regErr))
		}

		if conn != nil {
			o.releaseVenue(config.Venue)
		}

		return o.resume(ctx, a, restart, err)
	}

	if conn != nil {
		o.vmu.Lock()
		o.venues[id] = config.Venue
		o.vmu.Unlock()

		o.ensureStream(config.Venue, conn)
		o.releaseVenue(old.Venue)
	}

	o.log.Info("Agent updated", zap.String("agent_id", id), zap.Bool("restart", restart))

	return o.resume(ctx, a, restart, nil)
}

// resume restarts an agent Update stopped and returns cause. The agent keeps running on
// whichever configuration is in place.
func (o *Orchestrator) resume(ctx context.Context, a *agent.Agent, restart bool, cause error) error {
	if !restart {
		return cause
	}

	if err := a.Start(o.base); err != nil {
		o.log.Error("Failed to restart agent after update", zap.String("agent_id", a.ID()), zap.Error(err))

		if cause == nil {
			cause = err
		}

		return cause
	}

	o.persist(ctx, a)

	return cause
}

// Delete stops the agent, force-closes its positions, releases its venue handle and
// removes its record.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	a, err := o.getLocked(id)
	if err != nil {
		return err
	}

	if isStoppable(a.State()) {
		if err := a.Stop(ctx); err != nil {
			return err
		}
	}

	if _, err := o.tracker.CloseAllForAgent(ctx, id, types.CloseReasonForced); err != nil {
		o.persist(ctx, a)

		return errors.Wrapf(errors.ErrCodeStateConflict, err, "agent %s still has open positions", id)
	}

	if err := o.gate.Unregister(id); err != nil {
		o.persist(ctx, a)

		return err
	}

	if err := o.store.DeleteAgent(ctx, id); err != nil {
		return errors.Wrapf(errors.ErrCodePersistence, err, "failed to delete agent %s", id)
	}

	o.detach(id)
	delete(o.agents, id)
	o.tracker.ForgetAgent(id)
	o.metrics.ForgetAgent(id)

	o.log.Info("Agent deleted", zap.String("agent_id", id))

	return nil
}

// Get returns a snapshot of one agent.
func (o *Orchestrator) Get(id string) (Snapshot, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	a, err := o.getLocked(id)
	if err != nil {
		return Snapshot{}, err
	}

	return o.snapshot(a), nil
}

// List returns snapshots of every agent sorted by name.
func (o *Orchestrator) List() []Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]Snapshot, 0, len(o.agents))
	for _, a := range o.agents {
		out = append(out, o.snapshot(a))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Config.Name < out[j].Config.Name })

	return out
}

// LiveCount returns the number of agents counting against the cap.
func (o *Orchestrator) LiveCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.liveCountLocked("")
}

// Shutdown stops every active agent concurrently and persists each as STOPPED. Fill
// streams and venue handles are closed afterwards.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	group, groupCtx := errgroup.WithContext(ctx)

	for _, a := range o.agents {
		if !isStoppable(a.State()) {
			continue
		}

		group.Go(func() error {
			if err := a.Stop(groupCtx); err != nil && !errors.HasCode(err, errors.ErrCodeStateConflict) {
				return err
			}

			o.persist(context.WithoutCancel(ctx), a)

			return nil
		})
	}

	err := group.Wait()

	o.cancelBase()

	o.vmu.Lock()
	for venue, cancel := range o.streams {
		cancel()
		delete(o.streams, venue)
	}
	o.vmu.Unlock()

	if closeErr := o.registry.CloseAll(); closeErr != nil && err == nil {
		err = closeErr
	}

	o.log.Info("Fleet shut down", zap.Int("agents", len(o.agents)))

	return err
}

func (o *Orchestrator) snapshot(a *agent.Agent) Snapshot {
	return Snapshot{
		Config:    a.Config(),
		State:     a.State(),
		Metrics:   a.Metrics(),
		Positions: o.tracker.OpenPositions(a.ID()),
	}
}

func (o *Orchestrator) getLocked(id string) (*agent.Agent, error) {
	a, ok := o.agents[id]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeAgentNotFound, "agent %s not found", id)
	}

	return a, nil
}

func (o *Orchestrator) checkNameLocked(id string, name string) error {
	for otherID, other := range o.agents {
		if otherID != id && other.Config().Name == name {
			return errors.Newf(errors.ErrCodeDuplicateName, "agent name %q is taken", name)
		}
	}

	return nil
}

// liveCountLocked counts non-terminal agents other than except.
func (o *Orchestrator) liveCountLocked(except string) int {
	n := 0

	for id, a := range o.agents {
		if id != except && !a.State().IsTerminal() {
			n++
		}
	}

	return n
}

// attach acquires the venue handle of config and builds its agent with risk limits
// registered. detach undoes it.
func (o *Orchestrator) attach(config types.AgentConfig) (*agent.Agent, error) {
	conn, err := o.registry.Acquire(config.Venue)
	if err != nil {
		return nil, err
	}

	var a *agent.Agent

	a, err = agent.New(config, o.config.Agent, agent.Deps{
		Connector: conn,
		Gate:      o.gate,
		Positions: o.tracker,
		Advisor:   o.advisor,
		Bus:       o.bus,
		Metrics:   o.metrics,
		Log:       o.log,
		Clock:     o.now,
		OnStateChange: func(_ string, _ types.AgentState, _ types.AgentState, _ string) {
			o.persist(o.base, a)
		},
	})
	if err != nil {
		o.releaseVenue(config.Venue)

		return nil, err
	}

	if err := o.gate.Register(config.ID, risk.LimitsFromConfig(config)); err != nil {
		o.releaseVenue(config.Venue)

		return nil, err
	}

	o.vmu.Lock()
	o.venues[config.ID] = config.Venue
	o.roster[config.ID] = a
	o.vmu.Unlock()

	o.ensureStream(config.Venue, conn)

	return a, nil
}

func (o *Orchestrator) detach(id string) {
	o.vmu.Lock()
	venue, ok := o.venues[id]
	delete(o.venues, id)
	delete(o.roster, id)
	o.vmu.Unlock()

	if err := o.gate.Unregister(id); err != nil {
		o.log.Warn("Risk limits kept for detached agent", zap.String("agent_id", id), zap.Error(err))
	}

	if ok {
		o.releaseVenue(venue)
	}
}

// ensureStream feeds the venue's fills into the tracker's fill log, once per venue.
func (o *Orchestrator) ensureStream(venue string, conn connector.Connector) {
	o.vmu.Lock()
	defer o.vmu.Unlock()

	if _, ok := o.streams[venue]; ok {
		return
	}

	ctx, cancel := context.WithCancel(o.base)
	o.streams[venue] = cancel

	go func() {
		if err := conn.StreamFills(ctx, o.tracker.RecordFill); err != nil && ctx.Err() == nil {
			o.log.Warn("Fill stream ended", zap.String("venue", venue), zap.Error(err))
		}
	}()
}

func (o *Orchestrator) releaseVenue(venue string) {
	if err := o.registry.Release(venue); err != nil {
		o.log.Warn("Failed to release venue handle", zap.String("venue", venue), zap.Error(err))
	}

	if o.registry.Refs(venue) > 0 {
		return
	}

	o.vmu.Lock()
	if cancel, ok := o.streams[venue]; ok {
		cancel()
		delete(o.streams, venue)
	}
	o.vmu.Unlock()
}

func isStoppable(s types.AgentState) bool {
	return s == types.AgentStateStarting || s == types.AgentStateRunning || s == types.AgentStatePaused
}
