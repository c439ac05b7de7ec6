package agent

import (
	"fmt"

	"github.com/rxtech-lab/argo-fleet/internal/advisory"
	"github.com/rxtech-lab/argo-fleet/internal/types"
)

// AdvisoryConfig controls how pattern advice is folded into a strategy signal.
type AdvisoryConfig struct {
	// MinRelevance ignores suggestions less relevant than this.
	MinRelevance float64 `mapstructure:"min_relevance" yaml:"min_relevance" json:"min_relevance" validate:"gte=0,lte=1"`
	// Weight is the share of the suggestion in the blended confidence.
	Weight float64 `mapstructure:"weight" yaml:"weight" json:"weight" validate:"gte=0,lte=1"`
	// Override is the suggestion confidence needed to flip the action.
	Override float64 `mapstructure:"override" yaml:"override" json:"override" validate:"gte=0,lte=1"`
}

// Blend folds the most relevant suggestion into signal. A suggestion for the same action
// supports it with its confidence; a contradicting one supports it with the complement.
// The action only changes when a contradicting suggestion reaches Override.
func Blend(signal types.Signal, suggestions []advisory.Suggestion, cfg AdvisoryConfig) (types.Signal, bool) {
	if len(suggestions) == 0 {
		return signal, false
	}

	top := suggestions[0]
	for _, s := range suggestions[1:] {
		if s.Relevance > top.Relevance {
			top = s
		}
	}

	if top.Relevance < cfg.MinRelevance {
		return signal, false
	}

	w := cfg.Weight
	c := signal.Confidence
	s := clamp01(top.Confidence)

	switch {
	case top.Action == signal.Action:
		signal.Confidence = (1-w)*c + w*s
	case s >= cfg.Override:
		signal.Action = top.Action
		signal.Confidence = (1-w)*(1-c) + w*s
	default:
		signal.Confidence = (1-w)*c + w*(1-s)
	}

	signal.Confidence = clamp01(signal.Confidence)
	signal.Reason = fmt.Sprintf("%s; advisory %s %s at %.2f", signal.Reason, top.PatternID, top.Action, s)

	return signal, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}

	if v > 1 {
		return 1
	}

	return v
}
