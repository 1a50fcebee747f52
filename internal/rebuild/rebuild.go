// Package rebuild evaluates, on every forecast and control tick,
// whether the active plan must be recomputed (spec §4.5).
package rebuild

import (
	"time"

	"github.com/homevolt/energy-core/internal/planner"
)

// Input bundles the live state the evaluator checks, in spec §4.5's
// priority order.
type Input struct {
	HasActivePlan          bool
	ActivePlanTrigger      planner.TriggerReason
	SpikeActive            bool
	StormTransitioned      bool
	CurrentSOC             float64
	CurrentSlotExpectedSOC float64
	HasCurrentSlot         bool
	SOCDeviationTolerance  float64
	LastRebuildAt          time.Time
	PeriodicRebuildInterval time.Duration
	ForecastIsStale        bool
}

// Result is the evaluator's verdict.
type Result struct {
	ShouldRebuild bool
	Trigger       planner.TriggerReason
	Reason        string
}

// Evaluate runs spec §4.5's priority-ordered checks; the first match
// wins.
func Evaluate(in Input, now time.Time) Result {
	if !in.HasActivePlan {
		return Result{true, planner.TriggerInitial, "no active plan"}
	}
	if in.SpikeActive && in.ActivePlanTrigger != planner.TriggerPriceSpike {
		return Result{true, planner.TriggerPriceSpike, "price spike active"}
	}
	if in.StormTransitioned {
		return Result{true, planner.TriggerStorm, "storm activation or clear since last evaluation"}
	}
	if in.HasCurrentSlot {
		deviation := in.CurrentSOC - in.CurrentSlotExpectedSOC
		if deviation < 0 {
			deviation = -deviation
		}
		if deviation > in.SOCDeviationTolerance {
			return Result{true, planner.TriggerSOCDeviation, "soc deviates from plan"}
		}
	}
	if in.PeriodicRebuildInterval > 0 && now.Sub(in.LastRebuildAt) >= in.PeriodicRebuildInterval {
		return Result{true, planner.TriggerPeriodic, "periodic rebuild interval elapsed"}
	}
	if in.ForecastIsStale {
		return Result{true, planner.TriggerForecastDelta, "forecast data is stale"}
	}
	return Result{}
}
