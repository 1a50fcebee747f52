package forecast

import "time"

// SpikeEvent tracks one open or closed price-spike window (spec §4.1,
// §8 testable properties).
type SpikeEvent struct {
	StartedAt     time.Time
	EndedAt       time.Time
	Active        bool
	PeakCents     float64
	SlotsAffected int
}

// detectSpikeLocked is run on every tariff update (caller already holds
// a.mu). If the slot covering now has an import price at or above the
// configured threshold, a spike event begins (or continues); once prices
// fall back below threshold, the open event ends.
func (a *Aggregator) detectSpikeLocked(now time.Time, _ TariffSchedule) {
	slot, found := a.tariff.schedule.Lookup(now)
	active := found && slot.ImportRateCents >= a.spikeThresholdCents

	switch {
	case active && (a.spike == nil || !a.spike.Active):
		a.spike = &SpikeEvent{
			StartedAt:     now,
			Active:        true,
			PeakCents:     slot.ImportRateCents,
			SlotsAffected: 1,
		}
	case active && a.spike.Active:
		if slot.ImportRateCents > a.spike.PeakCents {
			a.spike.PeakCents = slot.ImportRateCents
		}
		a.spike.SlotsAffected++
	case !active && a.spike != nil && a.spike.Active:
		a.spike.Active = false
		a.spike.EndedAt = now
	}
}

// IsSpikeActive reports whether a price spike currently covers "now".
func (a *Aggregator) IsSpikeActive() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.spike != nil && a.spike.Active
}

// CurrentSpike returns a copy of the current (or most recently closed)
// spike event, if any has ever been observed.
func (a *Aggregator) CurrentSpike() (SpikeEvent, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.spike == nil {
		return SpikeEvent{}, false
	}
	return *a.spike, true
}

// UpcomingSpikes returns the future slots whose import price is at or
// above the spike threshold.
func (a *Aggregator) UpcomingSpikes(from time.Time) []Slot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []Slot
	for _, s := range a.tariff.schedule.Slots {
		if s.Start.After(from) && s.ImportRateCents >= a.spikeThresholdCents {
			out = append(out, s)
		}
	}
	return out
}
