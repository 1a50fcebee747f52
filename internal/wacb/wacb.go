// Package wacb tracks the weighted-average cost basis of energy held in
// the battery (spec §3 WACB state, §4.2).
package wacb

// State is the WACB state: the energy-weighted cost of stored energy.
type State struct {
	WACBCents     float64 // cents/kWh
	StoredWh      float64
	TotalChargedWh float64
	TotalCostCents float64
}

// Tracker owns and mutates a single WACB State. Only the accounting engine
// mutates it; the control loop's SOC sync reconciles StoredWh against the
// physical SOC each tick but never alters WACBCents.
type Tracker struct {
	state State
}

// NewTracker creates a Tracker seeded with an initial WACB (spec §9: "The
// initial WACB is a config-controlled starting point").
func NewTracker(initialWACBCents, capacityWh, initialSOC float64) *Tracker {
	return &Tracker{
		state: State{
			WACBCents: initialWACBCents,
			StoredWh:  initialSOC * capacityWh,
		},
	}
}

// State returns a copy of the current WACB state.
func (t *Tracker) State() State {
	return t.state
}

// RecordCharge updates WACB by the weighted-average formula (spec §3):
//
//	wacb' = (prev_stored*wacb + E*R) / (prev_stored + E)
//
// rateCents is the grid import rate when charging from grid, or the
// feed-in rate (opportunity cost) when charging from PV. A non-positive
// energyWh is a no-op.
func (t *Tracker) RecordCharge(energyWh, rateCents float64) {
	if energyWh <= 0 {
		return
	}

	prevStored := t.state.StoredWh
	newStored := prevStored + energyWh

	if newStored > 0 {
		t.state.WACBCents = (prevStored*t.state.WACBCents + energyWh*rateCents) / newStored
	}
	t.state.StoredWh = newStored
	t.state.TotalChargedWh += energyWh
	t.state.TotalCostCents += energyWh / 1000.0 * rateCents
}

// RecordDischarge reduces StoredWh (floored at 0) and returns the cost
// basis of the discharged energy in cents. WACB is left unchanged (spec
// §3, §9): when the battery is empty, discharge produces zero cost basis
// and leaves WACB at its prior value; the next charge re-initialises it.
func (t *Tracker) RecordDischarge(energyWh float64) (costBasisCents float64) {
	if energyWh <= 0 {
		return 0
	}

	costBasisCents = (energyWh / 1000.0) * t.state.WACBCents

	t.state.StoredWh -= energyWh
	if t.state.StoredWh < 0 {
		t.state.StoredWh = 0
	}
	return costBasisCents
}

// SyncSOC reconciles StoredWh against the physical SOC each tick. WACB is
// never altered by a sync.
func (t *Tracker) SyncSOC(soc, capacityWh float64) {
	t.state.StoredWh = soc * capacityWh
}
