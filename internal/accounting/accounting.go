// Package accounting converts per-tick telemetry and tariff rates into
// accounting events and maintains the running billing cycle totals
// (spec §3 "Accounting event"/"Billing cycle", §4.2 steps 1-5).
package accounting

import (
	"time"

	"github.com/homevolt/energy-core/internal/wacb"
)

// EventKind tags the accounting event union.
type EventKind string

const (
	EventGridImport     EventKind = "grid_import"
	EventGridExport     EventKind = "grid_export"
	EventSelfConsumption EventKind = "self_consumption"
	EventArbitrage      EventKind = "arbitrage"
	EventSolarCharge    EventKind = "solar_charge"
	EventGridCharge     EventKind = "grid_charge"
)

// Event is one booked accounting entry. Positive CostCents is a cost,
// negative is revenue/savings. CostBasisCents and ProfitLossCents are
// only populated for export events.
type Event struct {
	Kind            EventKind
	RecordedAt      time.Time
	EnergyWh        float64
	RateCents       float64
	CostCents       float64
	CostBasisCents  float64
	ProfitLossCents float64
}

// Totals accumulates a billing cycle's running sums, in cents.
type Totals struct {
	ImportCost        float64
	ExportRevenue     float64
	SelfConsumption   float64
	ArbitrageProfit   float64
	FixedCosts        float64
}

// NetCost computes the cycle's net cost per spec §4.2's closing formula.
func (t Totals) NetCost() float64 {
	return t.ImportCost + t.FixedCosts - t.ExportRevenue - t.SelfConsumption - t.ArbitrageProfit
}

// BillingCycle is the single active accounting period, bounded by a
// configured billing day of month.
type BillingCycle struct {
	Start  time.Time
	End    time.Time // exclusive
	Totals Totals
}

// NextCycle returns the BillingCycle that contains from: it starts on the
// latest occurrence of billingDayOfMonth at or before from and ends on the
// following one.
func NextCycle(from time.Time, billingDayOfMonth int) BillingCycle {
	start := cycleStartOnOrBefore(from, billingDayOfMonth)
	end := addOneCycleMonth(start, billingDayOfMonth)
	return BillingCycle{Start: start, End: end}
}

func cycleStartOnOrBefore(t time.Time, day int) time.Time {
	y, m, _ := t.Date()
	candidate := clampedDate(y, m, day, t.Location())
	if candidate.After(t) {
		py, pm := y, m-1
		if pm < 1 {
			pm = 12
			py--
		}
		candidate = clampedDate(py, pm, day, t.Location())
	}
	return candidate
}

func addOneCycleMonth(start time.Time, day int) time.Time {
	y, m, _ := start.Date()
	ny, nm := y, m+1
	if nm > 12 {
		nm = 1
		ny++
	}
	return clampedDate(ny, nm, day, start.Location())
}

func clampedDate(y int, m time.Month, day int, loc *time.Location) time.Time {
	lastDay := time.Date(y, m+1, 0, 0, 0, 0, 0, loc).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(y, m, day, 0, 0, 0, 0, loc)
}

// Tick is the telemetry snapshot the engine is fed each control tick.
type Tick struct {
	At              time.Time
	GridImportW     float64
	GridExportW     float64
	SolarW          float64
	LoadW           float64
	BatteryW        float64 // positive = charging
	ImportRateCents float64
	ExportRateCents float64
}

// Engine books accounting events from telemetry and maintains the active
// billing cycle. It owns no WACB state directly; it mutates the Tracker
// passed to Process.
type Engine struct {
	tickInterval      time.Duration
	billingDayOfMonth int
	cycle             BillingCycle
}

// New creates an Engine with the active billing cycle anchored at now.
func New(tickInterval time.Duration, billingDayOfMonth int, now time.Time) *Engine {
	return &Engine{
		tickInterval:      tickInterval,
		billingDayOfMonth: billingDayOfMonth,
		cycle:             NextCycle(now, billingDayOfMonth),
	}
}

// Cycle returns a copy of the active billing cycle.
func (e *Engine) Cycle() BillingCycle {
	return e.cycle
}

// rolloverIfNeeded starts a fresh cycle once the active one's end has
// passed, carrying no totals forward.
func (e *Engine) rolloverIfNeeded(now time.Time) {
	if !now.Before(e.cycle.End) {
		e.cycle = NextCycle(now, e.billingDayOfMonth)
	}
}

// energyWh converts an average power in watts over one tick into watt-hours.
func (e *Engine) energyWh(avgW float64) float64 {
	return avgW * e.tickInterval.Hours()
}

// Process runs spec §4.2 steps 1-5 against one tick of telemetry,
// booking events into the returned slice and folding their effect into
// the active billing cycle and the WACB tracker. fixedCostCentsThisTick
// is the pro-rated standing charge for this tick's duration (0 if none
// is due).
func (e *Engine) Process(tick Tick, tracker *wacb.Tracker, fixedCostCentsThisTick float64) []Event {
	e.rolloverIfNeeded(tick.At)

	var events []Event
	charging := tick.BatteryW > 0

	// Step 2: grid import.
	if tick.GridImportW > 0 {
		energy := e.energyWh(tick.GridImportW)
		cost := energy / 1000.0 * tick.ImportRateCents
		events = append(events, Event{
			Kind: EventGridImport, RecordedAt: tick.At,
			EnergyWh: energy, RateCents: tick.ImportRateCents, CostCents: cost,
		})
		e.cycle.Totals.ImportCost += cost

		if charging {
			chargeEnergy := e.energyWh(tick.BatteryW)
			tracker.RecordCharge(chargeEnergy, tick.ImportRateCents)
			events = append(events, Event{
				Kind: EventGridCharge, RecordedAt: tick.At,
				EnergyWh: chargeEnergy, RateCents: tick.ImportRateCents,
			})
		}
	}

	// Step 3: grid export.
	if tick.GridExportW > 0 {
		energy := e.energyWh(tick.GridExportW)
		revenue := energy / 1000.0 * tick.ExportRateCents
		costBasis := tracker.RecordDischarge(energy)
		profitLoss := revenue - costBasis

		events = append(events, Event{
			Kind: EventGridExport, RecordedAt: tick.At,
			EnergyWh: energy, RateCents: tick.ExportRateCents,
			CostCents: -revenue, CostBasisCents: costBasis, ProfitLossCents: profitLoss,
		})
		e.cycle.Totals.ExportRevenue += revenue
		if profitLoss > 0 {
			e.cycle.Totals.ArbitrageProfit += profitLoss
			events = append(events, Event{
				Kind: EventArbitrage, RecordedAt: tick.At,
				EnergyWh: energy, RateCents: tick.ExportRateCents, CostCents: -profitLoss,
			})
		}
	}

	// Step 4: solar charge opportunity cost.
	if charging && tick.SolarW > 0 && tick.GridImportW <= 0 {
		chargeEnergy := e.energyWh(tick.BatteryW)
		tracker.RecordCharge(chargeEnergy, tick.ExportRateCents)
		events = append(events, Event{
			Kind: EventSolarCharge, RecordedAt: tick.At,
			EnergyWh: chargeEnergy, RateCents: tick.ExportRateCents,
		})
	}

	// Step 5: self-consumption.
	if tick.LoadW > 0 && tick.GridImportW <= 0 {
		dischargeW := 0.0
		if tick.BatteryW < 0 {
			dischargeW = -tick.BatteryW
		}
		coveredW := tick.SolarW + dischargeW
		if coveredW > tick.LoadW {
			coveredW = tick.LoadW
		}
		if coveredW > 0 {
			energy := e.energyWh(coveredW)
			value := energy / 1000.0 * tick.ImportRateCents
			events = append(events, Event{
				Kind: EventSelfConsumption, RecordedAt: tick.At,
				EnergyWh: energy, RateCents: tick.ImportRateCents, CostCents: -value,
			})
			e.cycle.Totals.SelfConsumption += value
		}
	}

	if fixedCostCentsThisTick > 0 {
		e.cycle.Totals.FixedCosts += fixedCostCentsThisTick
	}

	return events
}
