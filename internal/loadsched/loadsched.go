// Package loadsched assigns controllable household loads to plan slots
// after each solve (spec §4.4).
package loadsched

import (
	"math"
	"sort"
	"time"

	"github.com/homevolt/energy-core/internal/planner"
)

// Descriptor is one controllable load's scheduling constraints.
type Descriptor struct {
	ID               string
	Name             string
	PowerW           float64
	PriorityClass    int // 1 (highest) .. 5 (lowest)
	Enabled          bool
	EarliestStart    time.Duration // offset into the local day
	LatestEnd        time.Duration // offset into the local day; wraps past midnight if < EarliestStart
	DaysOfWeek       map[time.Weekday]bool
	MinRuntimeMins   int
	IdealRuntimeMins int
	MaxRuntimeMins   int
	PreferSolar      bool
}

// Scheduled is one committed assignment (spec §3/§4.4 output).
type Scheduled struct {
	ID            string
	Name          string
	PowerW        float64
	PriorityClass int
	AssignedSlots []int // indices into the plan's Slots
	PreferSolar   bool
}

// Inputs bundles the optional per-tick context the algorithm consults.
type Inputs struct {
	SpikeActive           bool
	ActualRuntimeTodayMin map[string]int
	ManualOverrideIDs     map[string]bool
	Location              *time.Location
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Schedule runs spec §4.4's algorithm over every descriptor against the
// given plan, mutating each chosen slot's ScheduledLoads and returning
// one Scheduled entry per load that received an assignment.
func Schedule(plan *planner.Plan, loads []Descriptor, slotMinutes int, in Inputs) []Scheduled {
	var out []Scheduled
	for _, load := range loads {
		// Step 1: spike deferral for low-priority loads.
		if in.SpikeActive && load.PriorityClass > 2 {
			continue
		}
		// Step 2: manual override or disabled.
		if !load.Enabled || in.ManualOverrideIDs[load.ID] {
			continue
		}

		// Step 3: runtime required, net of credited runtime today.
		ideal := load.IdealRuntimeMins
		if ideal == 0 {
			ideal = load.MinRuntimeMins
		}
		if ideal == 0 {
			ideal = load.MaxRuntimeMins
		}
		if ideal == 0 {
			ideal = 60
		}
		lo, hi := load.MinRuntimeMins, load.MaxRuntimeMins
		if hi == 0 {
			hi = ideal
		}
		runtimeRequired := clampInt(ideal, lo, hi)
		runtimeRequired -= in.ActualRuntimeTodayMin[load.ID]
		if runtimeRequired <= 0 {
			continue
		}

		// Step 4: duration in slots.
		durationSlots := int(math.Ceil(float64(runtimeRequired) / float64(slotMinutes)))
		if durationSlots < 1 {
			durationSlots = 1
		}
		if durationSlots > len(plan.Slots) {
			durationSlots = len(plan.Slots)
		}

		eligible := eligibleIndices(plan, load, in.Location)
		if len(eligible) < durationSlots {
			continue
		}

		byDay := groupByLocalDay(plan, eligible, in.Location)
		run := bestRun(plan, byDay, durationSlots, load)
		if run == nil {
			continue
		}

		for _, idx := range run {
			plan.Slots[idx].ScheduledLoads = append(plan.Slots[idx].ScheduledLoads, load.Name)
		}

		out = append(out, Scheduled{
			ID: load.ID, Name: load.Name, PowerW: load.PowerW,
			PriorityClass: load.PriorityClass, AssignedSlots: run, PreferSolar: load.PreferSolar,
		})
	}
	return out
}

// eligibleIndices returns indices of slots whose local start falls on an
// allowed day-of-week and within [earliest_start, latest_end), with
// window wrap-around past midnight supported.
func eligibleIndices(plan *planner.Plan, load Descriptor, loc *time.Location) []int {
	var out []int
	for i, slot := range plan.Slots {
		local := slot.Start.In(loc)
		if len(load.DaysOfWeek) > 0 && !load.DaysOfWeek[local.Weekday()] {
			continue
		}
		offset := time.Duration(local.Hour())*time.Hour + time.Duration(local.Minute())*time.Minute
		if inWindow(offset, load.EarliestStart, load.LatestEnd) {
			out = append(out, i)
		}
	}
	return out
}

func inWindow(offset, start, end time.Duration) bool {
	if start <= end {
		return offset >= start && offset < end
	}
	// Window wraps past midnight.
	return offset >= start || offset < end
}

// groupByLocalDay buckets eligible slot indices by their local calendar
// date.
func groupByLocalDay(plan *planner.Plan, eligible []int, loc *time.Location) map[time.Time][]int {
	byDay := make(map[time.Time][]int)
	for _, idx := range eligible {
		local := plan.Slots[idx].Start.In(loc)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		byDay[day] = append(byDay[day], idx)
	}
	return byDay
}

// bestRun scores every eligible slot within each day and picks the best
// contiguous run of durationSlots across all days (spec §4.4 steps 6-7).
func bestRun(plan *planner.Plan, byDay map[time.Time][]int, durationSlots int, load Descriptor) []int {
	var bestIndices []int
	bestScore := math.Inf(1)

	days := make([]time.Time, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	for _, day := range days {
		idxs := byDay[day]
		sort.Ints(idxs)

		runs := contiguousRuns(idxs, durationSlots)
		for _, run := range runs {
			score := 0.0
			for _, idx := range run {
				score += scoreFor(plan, idx, load)
			}
			if score < bestScore {
				bestScore = score
				bestIndices = run
			}
		}
	}
	return bestIndices
}

// scoreFor implements spec §4.4 step 7: lower is better.
func scoreFor(plan *planner.Plan, idx int, load Descriptor) float64 {
	slot := plan.Slots[idx]
	score := slot.ImportRateCents
	if load.PreferSolar && slot.SolarW-slot.LoadW >= load.PowerW {
		score -= 50
	}
	for _, f := range slot.ConstraintFlags {
		if f == "spike" {
			score += 500
		}
	}
	return score
}

// contiguousRuns returns every contiguous run of exactly length n within
// sorted consecutive-index groups of idxs (idxs must already be sorted
// ascending, but need not be globally contiguous — gaps break a run).
func contiguousRuns(idxs []int, n int) [][]int {
	var runs [][]int
	if len(idxs) < n {
		return runs
	}
	start := 0
	for i := 1; i <= len(idxs); i++ {
		if i == len(idxs) || idxs[i] != idxs[i-1]+1 {
			// [start, i) is one maximal contiguous block.
			block := idxs[start:i]
			for j := 0; j+n <= len(block); j++ {
				runs = append(runs, append([]int(nil), block[j:j+n]...))
			}
			start = i
		}
	}
	return runs
}
