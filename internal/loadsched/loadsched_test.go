package loadsched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homevolt/energy-core/internal/planner"
)

func buildPlan(n int, importRate, solarW, loadW float64) *planner.Plan {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC) // a Monday
	slots := make([]planner.PlanSlot, n)
	for i := 0; i < n; i++ {
		slots[i] = planner.PlanSlot{
			Start: start.Add(time.Duration(i) * 30 * time.Minute),
			End:   start.Add(time.Duration(i+1) * 30 * time.Minute),
			ImportRateCents: importRate, SolarW: solarW, LoadW: loadW,
		}
	}
	return &planner.Plan{Slots: slots}
}

func allDays() map[time.Weekday]bool {
	return map[time.Weekday]bool{
		time.Sunday: true, time.Monday: true, time.Tuesday: true, time.Wednesday: true,
		time.Thursday: true, time.Friday: true, time.Saturday: true,
	}
}

func TestSchedule_AssignsContiguousRun(t *testing.T) {
	plan := buildPlan(48, 20, 0, 0) // 24h of 30-min slots
	load := Descriptor{
		ID: "dishwasher", Name: "dishwasher", PowerW: 1500, PriorityClass: 3, Enabled: true,
		EarliestStart: 0, LatestEnd: 24 * time.Hour, DaysOfWeek: allDays(),
		IdealRuntimeMins: 60,
	}

	out := Schedule(plan, []Descriptor{load}, 30, Inputs{Location: time.UTC})
	require.Len(t, out, 1)
	assert.Len(t, out[0].AssignedSlots, 2)

	// assigned slots must be contiguous
	a, b := out[0].AssignedSlots[0], out[0].AssignedSlots[1]
	assert.Equal(t, b, a+1)

	for _, idx := range out[0].AssignedSlots {
		assert.Contains(t, plan.Slots[idx].ScheduledLoads, "dishwasher")
	}
}

func TestSchedule_PrefersCheaperSlots(t *testing.T) {
	plan := buildPlan(4, 50, 0, 0)
	plan.Slots[2].ImportRateCents = 5
	plan.Slots[3].ImportRateCents = 5

	load := Descriptor{
		ID: "ev", Name: "ev", PowerW: 2000, PriorityClass: 3, Enabled: true,
		EarliestStart: 0, LatestEnd: 24 * time.Hour, DaysOfWeek: allDays(),
		IdealRuntimeMins: 60,
	}

	out := Schedule(plan, []Descriptor{load}, 30, Inputs{Location: time.UTC})
	require.Len(t, out, 1)
	assert.ElementsMatch(t, []int{2, 3}, out[0].AssignedSlots)
}

func TestSchedule_DefersLowPriorityLoadDuringSpike(t *testing.T) {
	plan := buildPlan(4, 10, 0, 0)
	lowPriority := Descriptor{
		ID: "pool", Name: "pool", PowerW: 1000, PriorityClass: 4, Enabled: true,
		EarliestStart: 0, LatestEnd: 24 * time.Hour, DaysOfWeek: allDays(), IdealRuntimeMins: 30,
	}

	out := Schedule(plan, []Descriptor{lowPriority}, 30, Inputs{Location: time.UTC, SpikeActive: true})
	assert.Empty(t, out)
}

func TestSchedule_CriticalLoadStillScheduledDuringSpike(t *testing.T) {
	plan := buildPlan(4, 10, 0, 0)
	critical := Descriptor{
		ID: "fridge", Name: "fridge", PowerW: 150, PriorityClass: 1, Enabled: true,
		EarliestStart: 0, LatestEnd: 24 * time.Hour, DaysOfWeek: allDays(), IdealRuntimeMins: 30,
	}

	out := Schedule(plan, []Descriptor{critical}, 30, Inputs{Location: time.UTC, SpikeActive: true})
	assert.Len(t, out, 1)
}

func TestSchedule_SkipsManualOverride(t *testing.T) {
	plan := buildPlan(4, 10, 0, 0)
	load := Descriptor{
		ID: "ev", Name: "ev", PowerW: 2000, PriorityClass: 3, Enabled: true,
		EarliestStart: 0, LatestEnd: 24 * time.Hour, DaysOfWeek: allDays(), IdealRuntimeMins: 30,
	}

	out := Schedule(plan, []Descriptor{load}, 30, Inputs{
		Location: time.UTC, ManualOverrideIDs: map[string]bool{"ev": true},
	})
	assert.Empty(t, out)
}

func TestSchedule_DeductsCreditedRuntime(t *testing.T) {
	plan := buildPlan(4, 10, 0, 0)
	load := Descriptor{
		ID: "ev", Name: "ev", PowerW: 2000, PriorityClass: 3, Enabled: true,
		EarliestStart: 0, LatestEnd: 24 * time.Hour, DaysOfWeek: allDays(), IdealRuntimeMins: 30,
	}

	out := Schedule(plan, []Descriptor{load}, 30, Inputs{
		Location: time.UTC, ActualRuntimeTodayMin: map[string]int{"ev": 30},
	})
	assert.Empty(t, out) // fully credited already, nothing left to schedule
}

func TestSchedule_WrappingWindow(t *testing.T) {
	plan := buildPlan(4, 10, 0, 0) // slots at 00:00, 00:30, 01:00, 01:30
	load := Descriptor{
		ID: "heater", Name: "heater", PowerW: 1000, PriorityClass: 3, Enabled: true,
		EarliestStart: 23 * time.Hour, LatestEnd: 2 * time.Hour, DaysOfWeek: allDays(),
		IdealRuntimeMins: 30,
	}

	out := Schedule(plan, []Descriptor{load}, 30, Inputs{Location: time.UTC})
	require.Len(t, out, 1)
}

func TestSchedule_PreferSolarBonus(t *testing.T) {
	plan := buildPlan(2, 10, 0, 0)
	plan.Slots[1].SolarW = 3000
	plan.Slots[1].LoadW = 500 // excess solar 2500W covers the load

	load := Descriptor{
		ID: "ev", Name: "ev", PowerW: 2000, PriorityClass: 3, Enabled: true,
		EarliestStart: 0, LatestEnd: 24 * time.Hour, DaysOfWeek: allDays(),
		IdealRuntimeMins: 30, PreferSolar: true,
	}

	out := Schedule(plan, []Descriptor{load}, 30, Inputs{Location: time.UTC})
	require.Len(t, out, 1)
	assert.Equal(t, []int{1}, out[0].AssignedSlots)
}
