package orchestrator

import (
	"context"

	"github.com/rxtech-lab/argo-fleet/internal/connector"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
	"go.uber.org/zap"
)

// SkippedRecord is a stored agent record recovery could not load.
type SkippedRecord struct {
	ID     string `json:"id" yaml:"id"`
	Reason string `json:"reason" yaml:"reason"`
}

// RecoveryReport summarizes one Recover call.
type RecoveryReport struct {
	// Recovered agents were loaded from the store and are now STOPPED.
	Recovered int `json:"recovered" yaml:"recovered"`
	// Refreshed agents were already loaded; their configuration was re-read.
	Refreshed int             `json:"refreshed" yaml:"refreshed"`
	Skipped   []SkippedRecord `json:"skipped" yaml:"skipped"`
	// Positions is the number of persisted positions adopted by the tracker.
	Positions int `json:"positions" yaml:"positions"`
	// Unowned counts active positions whose agent no longer exists.
	Unowned int `json:"unowned" yaml:"unowned"`
}

// Recover rebuilds the fleet from the store. Every recovered agent starts STOPPED and
// does not count against the cap. Calling it again refreshes loaded agents instead of
// duplicating them.
func (o *Orchestrator) Recover(ctx context.Context) (RecoveryReport, error) {
	records, err := o.store.LoadAgents(ctx)
	if err != nil {
		return RecoveryReport{}, errors.Wrap(errors.ErrCodePersistence, "failed to load agents", err)
	}

	report := RecoveryReport{Skipped: []SkippedRecord{}}

	o.mu.Lock()

	for _, rec := range records {
		if rec.Err != nil {
			o.log.Warn("Skipping unreadable agent record", zap.String("agent_id", rec.Config.ID), zap.Error(rec.Err))
			report.Skipped = append(report.Skipped, SkippedRecord{ID: rec.Config.ID, Reason: rec.Err.Error()})

			continue
		}

		if existing, ok := o.agents[rec.Config.ID]; ok {
			if existing.State().IsActive() {
				continue
			}

			if err := existing.UpdateConfig(rec.Config.WithDefaults(), nil); err == nil {
				report.Refreshed++
			}

			continue
		}

		config := rec.Config.WithDefaults()
		if err := config.Validate(); err != nil {
			report.Skipped = append(report.Skipped, SkippedRecord{ID: config.ID, Reason: err.Error()})

			continue
		}

		a, err := o.attach(config)
		if err != nil {
			o.log.Warn("Skipping agent that cannot be rebuilt", zap.String("agent_id", config.ID), zap.Error(err))
			report.Skipped = append(report.Skipped, SkippedRecord{ID: config.ID, Reason: err.Error()})

			continue
		}

		if err := a.Restore(rec.Metrics); err != nil {
			o.detach(config.ID)
			report.Skipped = append(report.Skipped, SkippedRecord{ID: config.ID, Reason: err.Error()})

			continue
		}

		o.agents[config.ID] = a
		report.Recovered++
	}

	known := make(map[string]bool, len(o.agents))
	for id := range o.agents {
		known[id] = true
	}

	o.mu.Unlock()

	adopted, err := o.tracker.RecoverOrphans(ctx)
	if err != nil {
		return report, errors.Wrap(errors.ErrCodePersistence, "failed to recover positions", err)
	}

	report.Positions = len(adopted)

	for id := range known {
		for _, pos := range o.tracker.OpenPositions(id) {
			if err := o.gate.Restore(id, pos.ID, pos.Stake); err != nil {
				o.log.Warn("Failed to restore exposure", zap.String("position_id", pos.ID), zap.Error(err))
			}
		}
	}

	for _, pos := range adopted {
		if !known[pos.AgentID] {
			report.Unowned++
			o.log.Warn("Recovered position has no agent", zap.String("position_id", pos.ID), zap.String("agent_id", pos.AgentID))

			continue
		}

		conn, err := o.VenueFor(pos.AgentID)
		if err != nil {
			o.log.Warn("Recovered position has no venue", zap.String("position_id", pos.ID), zap.Error(err))

			continue
		}

		connector.Adopt(conn, pos)
	}

	o.log.Info("Fleet recovered",
		zap.Int("agents", report.Recovered),
		zap.Int("refreshed", report.Refreshed),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("positions", report.Positions),
	)

	return report, nil
}

// StateCounts returns how many agents are in each state.
func (o *Orchestrator) StateCounts() map[types.AgentState]int {
	o.mu.RLock()
	defer o.mu.RUnlock()

	counts := make(map[types.AgentState]int, len(o.agents))
	for _, a := range o.agents {
		counts[a.State()]++
	}

	return counts
}
