package orchestrator

import (
	"context"
	"time"

	"github.com/rxtech-lab/argo-fleet/internal/agent"
	"github.com/rxtech-lab/argo-fleet/internal/storage"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const persistTimeout = 10 * time.Second

func (o *Orchestrator) record(a *agent.Agent) storage.AgentRecord {
	return storage.AgentRecord{
		Config:    a.Config(),
		State:     a.State(),
		Metrics:   a.Metrics(),
		UpdatedAt: o.now(),
	}
}

// save writes the agent record and returns the failure.
func (o *Orchestrator) save(ctx context.Context, a *agent.Agent) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := o.store.SaveAgent(ctx, o.record(a)); err != nil {
		o.metrics.PersistFailure()

		return errors.Wrapf(errors.ErrCodePersistence, err, "failed to persist agent %s", a.ID())
	}

	return nil
}

// persist writes the agent record; a failure is logged and retried by the next snapshot.
func (o *Orchestrator) persist(ctx context.Context, a *agent.Agent) {
	if err := o.save(ctx, a); err != nil {
		o.log.Error("Failed to persist agent", zap.String("agent_id", a.ID()), zap.Error(err))
	}
}

// PersistAll snapshots every agent.
func (o *Orchestrator) PersistAll(ctx context.Context) {
	o.mu.RLock()
	agents := make([]*agent.Agent, 0, len(o.agents))
	for _, a := range o.agents {
		agents = append(agents, a)
	}
	o.mu.RUnlock()

	for _, a := range agents {
		o.persist(ctx, a)
	}
}

// Run drives the health sweep and the periodic snapshot until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return o.RunHealthSweep(ctx)
	})

	group.Go(func() error {
		return o.every(ctx, o.config.PersistInterval, func() { o.PersistAll(ctx) })
	})

	return group.Wait()
}

func (o *Orchestrator) every(ctx context.Context, interval time.Duration, fn func()) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn()
		}
	}
}

// onPositionClosed credits the realized PnL of a closed position to its agent. The tracker
// calls it synchronously, possibly while mu is held, so agents are looked up under vmu.
func (o *Orchestrator) onPositionClosed(pos types.Position) {
	o.vmu.RLock()
	a, ok := o.roster[pos.AgentID]
	o.vmu.RUnlock()

	if !ok {
		return
	}

	a.RecordClose(pos.RealizedPnL)
	o.persist(context.Background(), a)
}
