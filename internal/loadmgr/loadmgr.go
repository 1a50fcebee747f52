// Package loadmgr executes a committed load schedule against a
// registry of physical load controllers, with spike shedding, overload
// shedding, and per-load manual overrides (spec §4.12).
package loadmgr

import (
	"sort"
	"time"
)

// State is a load controller's reported status (spec §6 "Load
// controller").
type State string

const (
	StateOn      State = "ON"
	StateOff     State = "OFF"
	StateUnknown State = "UNKNOWN"
	StateError   State = "ERROR"
)

// Controller is the external collaborator contract for one physical
// load.
type Controller interface {
	TurnOn() error
	TurnOff() error
	Status() (state State, powerW float64, err error)
}

type loadOverride struct {
	on      bool
	setAt   time.Time
	timeout time.Duration
}

func (o loadOverride) expired(now time.Time) bool {
	return o.timeout > 0 && now.Sub(o.setAt) >= o.timeout
}

type entry struct {
	id            string
	name          string
	priorityClass int
	powerW        float64
	controller    Controller
	shedForSpike  bool
	override      *loadOverride
}

// Manager holds the registry of load controllers, keyed by load id.
type Manager struct {
	entries []*entry
	byID    map[string]*entry
}

// New creates an empty Manager.
func New() *Manager {
	return &Manager{byID: make(map[string]*entry)}
}

// Register adds a load controller under id.
func (m *Manager) Register(id, name string, priorityClass int, powerW float64, c Controller) {
	e := &entry{id: id, name: name, priorityClass: priorityClass, powerW: powerW, controller: c}
	m.entries = append(m.entries, e)
	m.byID[id] = e
}

// SetLoadOverride installs a manual on/off override for one load (spec
// §4.12): while active, ExecuteSchedule leaves that load alone.
func (m *Manager) SetLoadOverride(id string, on bool, timeout time.Duration, now time.Time) {
	e, ok := m.byID[id]
	if !ok {
		return
	}
	e.override = &loadOverride{on: on, setAt: now, timeout: timeout}
}

// ExecuteSchedule turns ON every load whose name appears in
// scheduledNames, turns OFF loads previously shed for a spike, and
// leaves manually overridden loads untouched (spec §4.12).
func (m *Manager) ExecuteSchedule(scheduledNames map[string]bool, now time.Time) {
	for _, e := range m.entries {
		if e.override != nil && !e.override.expired(now) {
			continue
		}
		e.override = nil

		switch {
		case scheduledNames[e.name]:
			_ = e.controller.TurnOn()
			e.shedForSpike = false
		case e.shedForSpike:
			_ = e.controller.TurnOff()
			e.shedForSpike = false
		}
	}
}

// ShedForSpike turns OFF every currently-ON load with priority_class
// above maxPriority (i.e. less essential), remembering the shed set.
func (m *Manager) ShedForSpike(maxPriority int) {
	for _, e := range m.entries {
		if e.priorityClass <= maxPriority {
			continue
		}
		state, _, err := e.controller.Status()
		if err != nil || state != StateOn {
			continue
		}
		if err := e.controller.TurnOff(); err == nil {
			e.shedForSpike = true
		}
	}
}

// RestoreAfterSpike clears the shed set; the next ExecuteSchedule call
// will turn scheduled loads back on where warranted.
func (m *Manager) RestoreAfterSpike() {
	for _, e := range m.entries {
		e.shedForSpike = false
	}
}

// ShedForOverload sheds highest-priority-number (least essential) loads
// first until expected draw falls below maxGridImportW.
func (m *Manager) ShedForOverload(gridImportW, maxGridImportW float64) {
	if gridImportW <= maxGridImportW {
		return
	}

	candidates := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		state, _, err := e.controller.Status()
		if err == nil && state == StateOn {
			candidates = append(candidates, e)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].priorityClass > candidates[j].priorityClass
	})

	remaining := gridImportW
	for _, e := range candidates {
		if remaining <= maxGridImportW {
			break
		}
		if err := e.controller.TurnOff(); err == nil {
			remaining -= e.powerW
		}
	}
}

// TurnAllOff is the emergency stop. reason is accepted for symmetry
// with the spec's API and is not otherwise stored.
func (m *Manager) TurnAllOff(reason string) {
	for _, e := range m.entries {
		_ = e.controller.TurnOff()
	}
}
