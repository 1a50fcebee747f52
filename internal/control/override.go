package control

import (
	"sync"
	"time"

	"github.com/homevolt/energy-core/internal/inverter"
)

// Override is the thread-safe manual override scalar state (spec §4.8).
// Setting mode to AUTO is equivalent to Clear.
type Override struct {
	mu sync.Mutex

	active    bool
	mode      inverter.Mode
	powerW    int32
	setAt     time.Time
	timeout   time.Duration
	source    string
}

// ModeAuto is the sentinel mode that clears an active override.
const ModeAuto inverter.Mode = "AUTO"

// Set installs a manual override. Mode == ModeAuto is equivalent to Clear.
func (o *Override) Set(mode inverter.Mode, powerW int32, timeout time.Duration, now time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if mode == ModeAuto {
		o.clearLocked()
		return
	}

	o.active = true
	o.mode = mode
	o.powerW = powerW
	o.setAt = now
	o.timeout = timeout
	o.source = "manual"
}

// Clear removes the active override. reason is accepted for symmetry
// with the spec's API and is not otherwise stored.
func (o *Override) Clear(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clearLocked()
}

func (o *Override) clearLocked() {
	o.active = false
	o.mode = ""
	o.powerW = 0
	o.timeout = 0
}

// IsActive reports whether an override is active at now, clearing itself
// first if it has expired.
func (o *Override) IsActive(now time.Time) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.expireLocked(now)
	return o.active
}

func (o *Override) expireLocked(now time.Time) {
	if o.active && o.timeout > 0 && now.Sub(o.setAt) >= o.timeout {
		o.clearLocked()
	}
}

// RemainingSeconds returns the seconds left before the override expires,
// or 0 if inactive or unbounded is not applicable.
func (o *Override) RemainingSeconds(now time.Time) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.expireLocked(now)
	if !o.active || o.timeout <= 0 {
		return 0
	}
	remaining := o.timeout - now.Sub(o.setAt)
	if remaining < 0 {
		return 0
	}
	return remaining.Seconds()
}

// GetCommand returns the override's command if active, with priority 3
// and source "manual" (spec §4.8: below safety/storm, above plan).
func (o *Override) GetCommand(now time.Time) (Command, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.expireLocked(now)
	if !o.active {
		return Command{}, false
	}
	return Command{
		Mode: o.mode, PowerW: o.powerW, Source: "manual", Priority: 3, CreatedAt: now,
	}, true
}
