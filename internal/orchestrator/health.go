package orchestrator

import (
	"context"
	"sort"

	"github.com/rxtech-lab/argo-fleet/internal/types"
	"go.uber.org/zap"
)

// RunHealthSweep runs HealthSweep every HealthInterval until ctx is done.
func (o *Orchestrator) RunHealthSweep(ctx context.Context) error {
	return o.every(ctx, o.config.HealthInterval, func() { o.HealthSweep(ctx) })
}

// HealthSweep derives a health record for every agent, publishes each one and hands the
// batch to the registered callback.
func (o *Orchestrator) HealthSweep(_ context.Context) []types.HealthRecord {
	now := o.now()

	o.mu.RLock()
	records := make([]types.HealthRecord, 0, len(o.agents))
	counts := make(map[types.AgentState]int, len(o.agents))

	for _, a := range o.agents {
		record := a.Health(now, o.config.StaleAfter)
		records = append(records, record)
		counts[record.State]++
	}
	o.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })

	healthy := 0

	for i := range records {
		record := records[i]
		if record.Healthy {
			healthy++
		} else {
			o.log.Warn("Agent unhealthy",
				zap.String("agent_id", record.AgentID),
				zap.String("state", string(record.State)),
				zap.Strings("issues", record.Issues),
			)
		}

		if o.bus != nil {
			o.bus.Publish(types.Event{
				Kind:    types.EventHealth,
				Time:    now,
				AgentID: record.AgentID,
				State:   record.State,
				Health:  &record,
			})
		}
	}

	o.metrics.SetHealthy(healthy)
	o.metrics.SetAgentStates(counts)

	o.hmu.RLock()
	callback := o.onHealth
	o.hmu.RUnlock()

	if callback != nil {
		callback(records)
	}

	return records
}
