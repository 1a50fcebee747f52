// Package control implements the command hierarchy, anti-oscillation
// guard, and manual override that sit between a solved plan and the
// inverter adapter (spec §4.6-§4.8).
package control

import (
	"time"

	"github.com/homevolt/energy-core/internal/inverter"
)

// Command is one candidate or dispatched inverter command, annotated
// with where it came from and why (spec §3 generalises this across the
// hierarchy, guard, and dispatcher).
type Command struct {
	Mode      inverter.Mode
	PowerW    int32
	Source    string // "plan", "manual", "safety", "storm", "resilience", "default"
	Reason    string
	Priority  int // 1 highest .. 5 lowest
	CreatedAt time.Time
}

// HierarchyInput bundles the live state the hierarchy needs to arbitrate
// (spec §4.6).
type HierarchyInput struct {
	SOC           float64
	SOCMinHard    float64
	SOCMaxHard    float64
	StormActive   bool
	StormReserve  float64
	GridAvailable bool
}

// Decision is the hierarchy's verdict.
type Decision struct {
	Command      Command
	WinningLevel int
	Overridden   bool
}

// Arbitrate applies spec §4.6's five-level hierarchy to a candidate
// command and returns the winning command plus which level, if any,
// overrode it.
func Arbitrate(candidate Command, in HierarchyInput, now time.Time) Decision {
	// Level 1: safety.
	if in.SOC <= in.SOCMinHard {
		discharging := candidate.Mode == inverter.ForceDischarge || candidate.Mode == inverter.SelfUse || candidate.Mode == inverter.SelfUseZeroExport
		if discharging {
			if in.GridAvailable {
				return override(1, "soc_at_or_below_min_hard", inverter.ForceCharge, candidate.PowerW, now)
			}
			return override(1, "soc_at_or_below_min_hard_no_grid", inverter.SelfUse, 0, now)
		}
	}
	if in.SOC >= in.SOCMaxHard && candidate.Mode == inverter.ForceCharge {
		return override(1, "soc_at_or_above_max_hard", inverter.SelfUse, 0, now)
	}
	if !in.GridAvailable && (candidate.Mode == inverter.ForceCharge || candidate.Mode == inverter.ForceDischarge) {
		return override(1, "grid_unavailable", inverter.SelfUse, 0, now)
	}

	// Level 2: storm reserve.
	if in.StormActive && in.SOC <= in.StormReserve && candidate.Mode == inverter.ForceDischarge {
		return override(2, "storm_reserve_floor", inverter.SelfUse, 0, now)
	}

	// Levels 3-5: critical loads (handled by the load manager, not here),
	// cost optimisation, and the opportunistic default all pass the
	// candidate through unchanged.
	return Decision{Command: candidate, WinningLevel: 4, Overridden: false}
}

func override(level int, reason string, mode inverter.Mode, powerW int32, now time.Time) Decision {
	return Decision{
		Command:      Command{Mode: mode, PowerW: powerW, Source: levelSource(level), Reason: reason, Priority: level, CreatedAt: now},
		WinningLevel: level,
		Overridden:   true,
	}
}

func levelSource(level int) string {
	switch level {
	case 1:
		return "safety"
	case 2:
		return "storm"
	default:
		return "plan"
	}
}
