package risk

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// neutralWinRate is used for agents that have not closed a position yet.
const neutralWinRate = 0.5

// Run evaluates rolling losses every SweepInterval until ctx is done.
func (g *Gate) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			g.Sweep(ctx)
		}
	}
}

// Sweep halts every agent whose net realized loss over RollingWindow reached
// RollingLossThreshold and returns the ids it halted.
func (g *Gate) Sweep(ctx context.Context) []string {
	type breach struct {
		agentID string
		loss    float64
	}

	now := g.now()

	var breaches []breach

	scores := make(map[string]float64)
	exposures := make(map[string]float64)

	g.mu.Lock()

	for id, l := range g.agents {
		g.pruneLocked(l, now)

		loss := l.rollingLoss()
		if g.config.RollingLossThreshold > 0 && !l.halted && loss >= g.config.RollingLossThreshold {
			breaches = append(breaches, breach{agentID: id, loss: loss})
		}

		scores[id] = g.scoreLocked(l)
		exposures[id], _ = l.exposure.Float64()
	}

	g.mu.Unlock()

	for id, score := range scores {
		g.metrics.SetRiskScore(id, score)
		g.metrics.SetExposure(id, exposures[id])
	}

	sort.Slice(breaches, func(i, j int) bool { return breaches[i].agentID < breaches[j].agentID })

	halted := make([]string, 0, len(breaches))

	for _, b := range breaches {
		reason := fmt.Sprintf("rolling loss %.2f reached threshold %.2f", b.loss, g.config.RollingLossThreshold)
		if err := g.EmergencyStop(ctx, b.agentID, reason); err != nil {
			g.log.Error("Rolling loss stop did not close every position", zap.String("agent_id", b.agentID), zap.Error(err))
		}

		halted = append(halted, b.agentID)
	}

	return halted
}

func (g *Gate) pruneLocked(l *ledger, now time.Time) {
	cutoff := now.Add(-g.config.RollingWindow)

	keep := l.pnl[:0]
	for _, r := range l.pnl {
		if !r.at.Before(cutoff) {
			keep = append(keep, r)
		}
	}

	l.pnl = keep
}

// rollingLoss sums the realized losses in the window. Wins do not offset it.
func (l *ledger) rollingLoss() float64 {
	sum := decimal.Zero
	for _, r := range l.pnl {
		if r.pnl.IsNegative() {
			sum = sum.Sub(r.pnl)
		}
	}

	loss, _ := sum.Float64()

	return loss
}

func (l *ledger) leverage() float64 {
	lev := 0.0
	for _, r := range l.reservations {
		lev = math.Max(lev, r.leverage)
	}

	return lev
}

func (g *Gate) scoreLocked(l *ledger) float64 {
	winRate := neutralWinRate
	if l.closes > 0 {
		winRate = float64(l.wins) / float64(l.closes)
	}

	lossRatio := 0.0
	if g.config.RollingLossThreshold > 0 {
		lossRatio = math.Min(1, l.rollingLoss()/g.config.RollingLossThreshold)
	}

	exposure, _ := l.exposure.Float64()
	exposureRatio := math.Min(1, exposure/l.limits.Budget)

	score := 0.4*(1-winRate) + 0.4*lossRatio + 0.2*exposureRatio

	return math.Max(0, math.Min(1, score))
}

// Score returns a risk score in [0,1] for agentID; higher is riskier. An unknown agent
// scores 0.
func (g *Gate) Score(agentID string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.agents[agentID]
	if !ok {
		return 0
	}

	g.pruneLocked(l, g.now())

	return g.scoreLocked(l)
}

// Snapshot returns a copy of the ledger, agents sorted by id.
func (g *Gate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	snap := Snapshot{Agents: make([]AgentSnapshot, 0, len(g.agents)), Halted: g.haltAll}
	snap.TotalExposure, _ = g.aggregate.Float64()

	for id, l := range g.agents {
		g.pruneLocked(l, now)

		exposure, _ := l.exposure.Float64()
		snap.Agents = append(snap.Agents, AgentSnapshot{
			AgentID:      id,
			Limits:       l.limits,
			Exposure:     exposure,
			Leverage:     l.leverage(),
			Reservations: len(l.reservations),
			RollingLoss:  l.rollingLoss(),
			Halted:       l.halted || g.haltAll,
			HaltReason:   l.haltReason,
			Score:        g.scoreLocked(l),
		})
	}

	sort.Slice(snap.Agents, func(i, j int) bool { return snap.Agents[i].AgentID < snap.Agents[j].AgentID })

	return snap
}
