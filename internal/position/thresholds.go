package position

import (
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
)

// Thresholds are the optional exit levels of a position.
type Thresholds struct {
	StopLoss   optional.Option[float64]
	TakeProfit optional.Option[float64]
}

// ThresholdsFromPct derives exit levels at a fraction of entry. Zero fractions leave the
// level unset.
func ThresholdsFromPct(side types.PositionType, entry float64, stopLossPct float64, takeProfitPct float64) Thresholds {
	t := Thresholds{
		StopLoss:   optional.None[float64](),
		TakeProfit: optional.None[float64](),
	}

	sign := 1.0
	if side == types.PositionTypeShort {
		sign = -1
	}

	if stopLossPct > 0 {
		t.StopLoss = optional.Some(entry * (1 - sign*stopLossPct))
	}

	if takeProfitPct > 0 {
		t.TakeProfit = optional.Some(entry * (1 + sign*takeProfitPct))
	}

	return t
}

func validateStopLoss(side types.PositionType, entry float64, stopLoss float64) error {
	if stopLoss < 0 {
		return errors.Newf(errors.ErrCodeInvalidThreshold, "stop-loss %.8f is negative", stopLoss)
	}

	if stopLoss == 0 {
		return nil
	}

	if side == types.PositionTypeShort && stopLoss <= entry {
		return errors.Newf(errors.ErrCodeInvalidThreshold, "short stop-loss %.8f must be above entry %.8f", stopLoss, entry)
	}

	if side == types.PositionTypeLong && stopLoss >= entry {
		return errors.Newf(errors.ErrCodeInvalidThreshold, "long stop-loss %.8f must be below entry %.8f", stopLoss, entry)
	}

	return nil
}

func validateTakeProfit(side types.PositionType, entry float64, takeProfit float64) error {
	if takeProfit < 0 {
		return errors.Newf(errors.ErrCodeInvalidThreshold, "take-profit %.8f is negative", takeProfit)
	}

	if takeProfit == 0 {
		return nil
	}

	if side == types.PositionTypeShort && takeProfit >= entry {
		return errors.Newf(errors.ErrCodeInvalidThreshold, "short take-profit %.8f must be below entry %.8f", takeProfit, entry)
	}

	if side == types.PositionTypeLong && takeProfit <= entry {
		return errors.Newf(errors.ErrCodeInvalidThreshold, "long take-profit %.8f must be above entry %.8f", takeProfit, entry)
	}

	return nil
}
