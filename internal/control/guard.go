package control

import (
	"time"

	"github.com/homevolt/energy-core/internal/inverter"
)

// Guard is the anti-oscillation guard (spec §4.7): a dwell timer plus a
// sliding-window rate limiter sitting in front of dispatch.
type Guard struct {
	minCommandDuration   time.Duration
	rateWindow           time.Duration
	maxCommandsPerWindow int

	lastMode         inverter.Mode
	hasLastMode      bool
	lastChangeTime   time.Time
	recentCommandTimes []time.Time
}

// NewGuard creates a Guard with the configured dwell/rate-limit bounds.
func NewGuard(minCommandDuration, rateWindow time.Duration, maxCommandsPerWindow int) *Guard {
	return &Guard{
		minCommandDuration:   minCommandDuration,
		rateWindow:           rateWindow,
		maxCommandsPerWindow: maxCommandsPerWindow,
	}
}

// Allow reports whether cmd may pass through to dispatch at time now. It
// does not record cmd; call Record after a successful dispatch.
func (g *Guard) Allow(cmd Command, now time.Time) bool {
	if cmd.Source == "manual" || cmd.Source == "safety" || cmd.Source == "storm" || cmd.Priority <= 2 {
		return true
	}

	if g.hasLastMode && cmd.Mode != g.lastMode && now.Sub(g.lastChangeTime) < g.minCommandDuration {
		return false
	}

	count := 0
	cutoff := now.Add(-g.rateWindow)
	for _, t := range g.recentCommandTimes {
		if t.After(cutoff) {
			count++
		}
	}
	if g.maxCommandsPerWindow > 0 && count >= g.maxCommandsPerWindow {
		return false
	}

	return true
}

// Record notes that cmd was dispatched at now, advancing last_change_time
// only if the mode actually changed.
func (g *Guard) Record(cmd Command, now time.Time) {
	if !g.hasLastMode || cmd.Mode != g.lastMode {
		g.lastChangeTime = now
		g.lastMode = cmd.Mode
		g.hasLastMode = true
	}
	g.recentCommandTimes = append(g.recentCommandTimes, now)
	g.pruneLocked(now)
}

func (g *Guard) pruneLocked(now time.Time) {
	cutoff := now.Add(-g.rateWindow)
	kept := g.recentCommandTimes[:0]
	for _, t := range g.recentCommandTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	g.recentCommandTimes = kept
}

// Reset clears all guard state, e.g. after a manual override ends (spec
// §4.7).
func (g *Guard) Reset() {
	*g = Guard{
		minCommandDuration:   g.minCommandDuration,
		rateWindow:           g.rateWindow,
		maxCommandsPerWindow: g.maxCommandsPerWindow,
	}
}
