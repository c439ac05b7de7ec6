// Package advisory provides optional pattern advice for tentative signals. An advisor
// never gates a trade; an empty result or an error simply means no input.
package advisory

import (
	"context"
	"time"

	"github.com/rxtech-lab/argo-fleet/internal/types"
)

// Conditions describe the market situation a signal was generated in.
type Conditions struct {
	AgentID    string                          `json:"agent_id"`
	Symbol     string                          `json:"symbol"`
	Strategy   types.StrategyKind              `json:"strategy"`
	Action     types.SignalAction              `json:"action"`
	Confidence float64                         `json:"confidence"`
	Indicators map[types.IndicatorType]float64 `json:"indicators"`
	Time       time.Time                       `json:"time"`
}

// ConditionsFromSignal builds the advisory query for a tentative signal.
func ConditionsFromSignal(agentID string, signal types.Signal) Conditions {
	return Conditions{
		AgentID:    agentID,
		Symbol:     signal.Symbol,
		Strategy:   signal.Strategy,
		Action:     signal.Action,
		Confidence: signal.Confidence,
		Indicators: signal.Indicators,
		Time:       signal.Time,
	}
}

// Suggestion is one ranked match.
type Suggestion struct {
	PatternID   string             `json:"pattern_id"`
	Action      types.SignalAction `json:"action"`
	Confidence  float64            `json:"confidence"`
	Relevance   float64            `json:"relevance"`
	Description string             `json:"description"`
}

// Advisor matches current conditions against known patterns. Results are ordered by
// relevance, highest first.
type Advisor interface {
	MatchPatterns(ctx context.Context, conditions Conditions) ([]Suggestion, error)
}

// NoopAdvisor never has advice.
type NoopAdvisor struct{}

func (NoopAdvisor) MatchPatterns(context.Context, Conditions) ([]Suggestion, error) {
	return nil, nil
}
