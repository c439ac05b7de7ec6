package advisory

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
)

// HistorySource reads closed positions. An empty agentID means every agent.
type HistorySource interface {
	QueryClosedPositions(ctx context.Context, agentID string, filter types.PositionFilter) ([]types.Position, error)
}

// HistoryConfig tunes the history advisor.
type HistoryConfig struct {
	// Lookback is the number of recent closed positions considered.
	Lookback int `mapstructure:"lookback" yaml:"lookback" json:"lookback" validate:"gte=1"`
	// MinSamples is the sample count at which relevance reaches 1.
	MinSamples int `mapstructure:"min_samples" yaml:"min_samples" json:"min_samples" validate:"gte=1"`
}

func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{Lookback: 200, MinSamples: 20}
}

// HistoryAdvisor derives advice from how past trades in the same symbol and direction
// ended. A direction that mostly lost is answered with a HOLD suggestion.
type HistoryAdvisor struct {
	source HistorySource
	config HistoryConfig
}

func NewHistoryAdvisor(source HistorySource, config HistoryConfig) *HistoryAdvisor {
	if config.Lookback <= 0 {
		config.Lookback = DefaultHistoryConfig().Lookback
	}

	if config.MinSamples <= 0 {
		config.MinSamples = DefaultHistoryConfig().MinSamples
	}

	return &HistoryAdvisor{source: source, config: config}
}

func (a *HistoryAdvisor) MatchPatterns(ctx context.Context, conditions Conditions) ([]Suggestion, error) {
	if conditions.Action == types.SignalActionHold {
		return nil, nil
	}

	closed, err := a.source.QueryClosedPositions(ctx, "", types.PositionFilter{
		Symbol: conditions.Symbol,
		Limit:  a.config.Lookback,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodePersistence, "failed to load position history", err)
	}

	side := conditions.Action.PositionType()
	suggestions := make([]Suggestion, 0, 2)

	for _, s := range []struct {
		id       string
		filter   func(p types.Position) bool
		relevant float64
	}{
		{id: "own", filter: func(p types.Position) bool { return p.Side == side && p.AgentID == conditions.AgentID }, relevant: 1},
		{id: "fleet", filter: func(p types.Position) bool { return p.Side == side }, relevant: 0.8},
	} {
		wins, total := 0, 0

		for _, p := range closed {
			if !s.filter(p) {
				continue
			}

			total++

			if p.IsWin() {
				wins++
			}
		}

		if total == 0 {
			continue
		}

		winRate := float64(wins) / float64(total)
		relevance := s.relevant * math.Min(1, float64(total)/float64(a.config.MinSamples))

		suggestion := Suggestion{
			PatternID:  fmt.Sprintf("history:%s:%s:%s", s.id, conditions.Symbol, side),
			Action:     conditions.Action,
			Confidence: winRate,
			Relevance:  relevance,
			Description: fmt.Sprintf("%d of %d %s trades on %s won",
				wins, total, side, conditions.Symbol),
		}

		if winRate < 0.5 {
			suggestion.Action = types.SignalActionHold
			suggestion.Confidence = 1 - winRate
		}

		suggestions = append(suggestions, suggestion)
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Relevance > suggestions[j].Relevance
	})

	return suggestions, nil
}
