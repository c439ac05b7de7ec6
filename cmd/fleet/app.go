package main

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rxtech-lab/argo-fleet/internal/advisory"
	"github.com/rxtech-lab/argo-fleet/internal/config"
	"github.com/rxtech-lab/argo-fleet/internal/connector"
	"github.com/rxtech-lab/argo-fleet/internal/connector/binance"
	"github.com/rxtech-lab/argo-fleet/internal/connector/paper"
	"github.com/rxtech-lab/argo-fleet/internal/events"
	"github.com/rxtech-lab/argo-fleet/internal/logger"
	"github.com/rxtech-lab/argo-fleet/internal/marketdata"
	"github.com/rxtech-lab/argo-fleet/internal/metrics"
	"github.com/rxtech-lab/argo-fleet/internal/orchestrator"
	"github.com/rxtech-lab/argo-fleet/internal/position"
	"github.com/rxtech-lab/argo-fleet/internal/report"
	"github.com/rxtech-lab/argo-fleet/internal/risk"
	"github.com/rxtech-lab/argo-fleet/internal/storage"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
	"go.uber.org/zap"
)

// app is the fully wired fleet of one process.
type app struct {
	cfg      config.Config
	log      *logger.Logger
	store    *storage.DuckDB
	bus      *events.Bus
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	gate     *risk.Gate
	tracker  *position.Tracker
	orch     *orchestrator.Orchestrator
	report   *report.Writer

	healthMu sync.RWMutex
	health   []types.HealthRecord
}

func newApp(ctx context.Context, cfg config.Config, log *logger.Logger) (*app, error) {
	store, err := storage.Open(ctx, cfg.Storage.Path, log)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		store:    store,
		bus:      events.NewBus(log),
		registry: prometheus.NewRegistry(),
		report:   report.NewWriter(cfg.Report, log),
	}

	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	a.gate = risk.NewGate(cfg.Risk, risk.BalanceFunc(a.balance), log,
		risk.WithPublisher(a.bus),
		risk.WithMetrics(a.metrics),
	)

	a.tracker = position.NewTracker(cfg.Positions, store, position.VenueFunc(a.venueFor), a.gate, log,
		position.WithPublisher(a.bus),
		position.WithMetrics(a.metrics),
	)
	a.gate.SetCloser(a.tracker)

	var advisor advisory.Advisor = advisory.NoopAdvisor{}
	if cfg.Advisory.Enabled {
		advisor = advisory.NewHistoryAdvisor(store, cfg.Advisory.History)
	}

	a.orch, err = orchestrator.New(cfg.Fleet, orchestrator.Deps{
		Store:    store,
		Registry: connector.NewRegistry(a.connect, log),
		Gate:     a.gate,
		Tracker:  a.tracker,
		Advisor:  advisor,
		Bus:      a.bus,
		Metrics:  a.metrics,
		Log:      log,
	})
	if err != nil {
		store.Close()

		return nil, err
	}

	a.orch.OnHealth(a.onHealth)

	return a, nil
}

func (a *app) balance(ctx context.Context, agentID string) (float64, error) {
	return a.orch.Balance(ctx, agentID)
}

func (a *app) venueFor(agentID string) (connector.Connector, error) {
	return a.orch.VenueFor(agentID)
}

// connect builds the connector of a venue. Every connector retries transient failures.
func (a *app) connect(venue string) (connector.Connector, error) {
	if err := a.cfg.CheckVenue(venue); err != nil {
		return nil, err
	}

	var conn connector.Connector

	switch venue {
	case config.VenuePaper:
		feed, err := marketdata.NewFeed(a.cfg.MarketData)
		if err != nil {
			return nil, err
		}

		conn = paper.New(a.cfg.Paper, feed)
	case config.VenueBinanceTestnet:
		testnet, err := binance.New(*a.cfg.Binance)
		if err != nil {
			return nil, err
		}

		conn = testnet
	}

	return connector.NewRetrying(conn, a.cfg.Retry, a.log), nil
}

func (a *app) onHealth(records []types.HealthRecord) {
	a.healthMu.Lock()
	a.health = records
	a.healthMu.Unlock()

	if !a.report.Enabled() {
		return
	}

	now := time.Now()
	if len(records) > 0 {
		now = records[0].CheckedAt
	}

	status := report.Build(now, a.orch.MaxAgents(), a.orch.List(), records, a.gate.Snapshot())
	if err := a.report.Write(status); err != nil {
		a.log.Warn("Failed to write status report", zap.Error(err))
	}
}

func (a *app) lastHealth() []types.HealthRecord {
	a.healthMu.RLock()
	defer a.healthMu.RUnlock()

	return a.health
}

// seed creates the configured agents that do not exist yet.
func (a *app) seed(ctx context.Context) (int, error) {
	existing := make(map[string]bool)
	for _, snap := range a.orch.List() {
		existing[snap.Config.Name] = true
	}

	created := 0

	for _, cfg := range a.cfg.Agents {
		if existing[cfg.Name] {
			continue
		}

		id, err := a.orch.Create(ctx, cfg)
		if err != nil {
			return created, errors.Wrapf(errors.GetCode(err), err, "failed to create agent %s", cfg.Name)
		}

		a.log.Info("Seeded agent", zap.String("agent_id", id), zap.String("name", cfg.Name))
		created++
	}

	return created, nil
}

// resolve finds an agent by id or name.
func (a *app) resolve(key string) (orchestrator.Snapshot, error) {
	for _, snap := range a.orch.List() {
		if snap.Config.ID == key || snap.Config.Name == key {
			return snap, nil
		}
	}

	return orchestrator.Snapshot{}, errors.Newf(errors.ErrCodeAgentNotFound, "no agent named %s", key)
}

// close stops the fleet and releases the database.
func (a *app) close(ctx context.Context) error {
	err := a.orch.Shutdown(ctx)
	a.bus.Close()

	if closeErr := a.store.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	return err
}
