// Package storm tracks the storm-reserve state machine: when the
// forecast storm probability crosses a configured threshold, the
// battery reserve target is raised so the household rides out a grid
// outage, and the planner and control hierarchy must both consult this
// state.
package storm

import "time"

// State is the current storm posture.
type State struct {
	Probability     float64
	Active          bool
	ReserveSOC      float64
	ActivatedAt     time.Time
	DeactivatedAt   time.Time
	TransitionCount int
}

// Monitor holds the storm state machine. It is not safe for concurrent
// use without external synchronisation, matching the rest of the loop's
// single-writer tick pattern.
type Monitor struct {
	enabled               bool
	probabilityThreshold  float64
	reserveSOCTarget      float64
	state                 State
}

// New creates a storm Monitor. If enabled is false, Update always leaves
// the monitor inactive regardless of probability.
func New(enabled bool, probabilityThreshold, reserveSOCTarget float64) *Monitor {
	return &Monitor{
		enabled:              enabled,
		probabilityThreshold: probabilityThreshold,
		reserveSOCTarget:     reserveSOCTarget,
	}
}

// Transition describes an edge crossed by Update, if any.
type Transition int

const (
	// NoTransition means the active/inactive state did not change.
	NoTransition Transition = iota
	// Activated means the reserve just turned on.
	Activated
	// Deactivated means the reserve just turned off.
	Deactivated
)

// Update feeds a fresh storm probability into the monitor and returns
// any transition that occurred.
func (m *Monitor) Update(probability float64, now time.Time) Transition {
	m.state.Probability = probability

	wantActive := m.enabled && probability >= m.probabilityThreshold
	if wantActive == m.state.Active {
		return NoTransition
	}

	m.state.Active = wantActive
	m.state.TransitionCount++
	if wantActive {
		m.state.ActivatedAt = now
		m.state.ReserveSOC = m.reserveSOCTarget
		return Activated
	}
	m.state.DeactivatedAt = now
	m.state.ReserveSOC = 0
	return Deactivated
}

// State returns a copy of the current storm state.
func (m *Monitor) State() State {
	return m.state
}

// ReserveFloor returns the SOC fraction (0-1) the planner and control
// hierarchy must not discharge below while the reserve is active, or 0
// when inactive.
func (m *Monitor) ReserveFloor() float64 {
	if !m.state.Active {
		return 0
	}
	return m.state.ReserveSOC
}
