package planner

import (
	"math"
	"time"
)

type dpCell struct {
	cost    float64
	action  action
	outcome outcome
	prevIdx int
}

// Solve runs the DP optimisation over the given slot forecast, starting
// from currentSOC, and returns a new immutable Plan with the next
// monotonically increasing version. The DP always runs to completion;
// solverTimeoutMS does not bound it. Metrics.SolverMS is the measured
// wall-clock time of the solve.
func (s *Solver) Solve(slots []SlotInput, currentSOC float64, trigger TriggerReason, now time.Time, solverTimeoutMS int64) Plan {
	s.version++
	start := now
	wallStart := time.Now()

	n := len(slots)
	if n == 0 {
		return Plan{
			Version: s.version, TriggerReason: trigger, CreatedAt: start,
			Metrics: Metrics{Status: "empty", CurrentSOC: currentSOC, WACBCents: s.params.WACBCents},
		}
	}

	socSteps := s.params.SOCSteps
	if socSteps < 1 {
		socSteps = 200
	}
	socStep := 1.0 / float64(socSteps)

	toIdx := func(soc float64) int {
		idx := int(math.Round(soc / socStep))
		if idx < 0 {
			idx = 0
		}
		if idx > socSteps {
			idx = socSteps
		}
		return idx
	}
	toSOC := func(idx int) float64 { return float64(idx) * socStep }

	dp := make([][]dpCell, n+1)
	for t := range dp {
		dp[t] = make([]dpCell, socSteps+1)
		for i := range dp[t] {
			dp[t][i].cost = math.Inf(1)
		}
	}
	dp[0][toIdx(currentSOC)].cost = 0

	for t := 0; t < n; t++ {
		slot := slots[t]
		for socIdx := 0; socIdx <= socSteps; socIdx++ {
			if math.IsInf(dp[t][socIdx].cost, 1) {
				continue
			}
			soc := toSOC(socIdx)
			baseCost := dp[t][socIdx].cost

			for _, a := range s.feasibleActions(soc) {
				o := s.resolve(a, slot)
				if math.IsInf(o.penalty, 1) {
					continue
				}
				newSOC := s.nextSOC(soc, a)
				newIdx := toIdx(newSOC)

				cost := baseCost + s.slotCost(a, o, slot) + s.slackCost(newSOC, slot)
				if cost < dp[t+1][newIdx].cost {
					dp[t+1][newIdx] = dpCell{cost: cost, action: a, outcome: o, prevIdx: socIdx}
				}
			}
		}
	}

	bestIdx, bestCost := 0, math.Inf(1)
	for socIdx := 0; socIdx <= socSteps; socIdx++ {
		if dp[n][socIdx].cost < bestCost {
			bestCost = dp[n][socIdx].cost
			bestIdx = socIdx
		}
	}

	status := "optimal"
	if math.IsInf(bestCost, 1) {
		status = "infeasible"
		bestIdx = toIdx(currentSOC)
		bestCost = 0
	}

	planSlots := make([]PlanSlot, n)
	idx := bestIdx
	for t := n - 1; t >= 0; t-- {
		cell := dp[t+1][idx]
		soc := toSOC(idx)
		planSlots[t] = buildPlanSlot(slots[t], cell.action, cell.outcome, soc)
		idx = cell.prevIdx
	}

	return Plan{
		Version:        s.version,
		TriggerReason:  trigger,
		CreatedAt:      start,
		HorizonStart:   slots[0].Start,
		HorizonEnd:     slots[n-1].End,
		Slots:          planSlots,
		ObjectiveScore: bestCost,
		Metrics: Metrics{
			Status:      status,
			NSlots:      n,
			CurrentSOC:  currentSOC,
			WACBCents:   s.params.WACBCents,
			StormActive: anyStorm(slots),
			SolverMS:    time.Since(wallStart).Milliseconds(),
		},
	}
}

// slackCost folds in the safety-envelope, storm-reserve, and soft
// time-of-day target penalties (spec §4.3 constraints 2, 7, 8).
func (s *Solver) slackCost(soc float64, slot SlotInput) float64 {
	p := s.params
	cost := 0.0

	safetySlack := math.Max(0, p.SOCMinHard-soc) + math.Max(0, soc-p.SOCMaxHard)
	cost += p.WeightSafety * safetySlack

	if slot.StormActive {
		stormSlack := math.Max(0, p.StormReserveSOC-soc)
		cost += p.WeightStorm * stormSlack
	}

	if p.Location != nil {
		local := slot.Start.In(p.Location)
		if local.Hour() == p.EveningTargetHour {
			eveningSlack := math.Max(0, p.EveningSOCTarget-soc)
			cost += p.WeightEvening * eveningSlack
		}
		if local.Hour() == p.MorningMinimumHour {
			morningSlack := math.Max(0, p.MorningSOCMinimum-soc)
			cost += p.WeightMorning * morningSlack
		}
	}

	return cost
}

func anyStorm(slots []SlotInput) bool {
	for _, s := range slots {
		if s.StormActive {
			return true
		}
	}
	return false
}

// buildPlanSlot extracts the inverter mode from the solved action per
// spec §4.3's mode-extraction rules.
func buildPlanSlot(slot SlotInput, a action, o outcome, soc float64) PlanSlot {
	ps := PlanSlot{
		Start: slot.Start, End: slot.End,
		ChargeW: a.chargeW, DischargeW: a.dischargeW,
		GridImportW: o.gridImportW, GridExportW: o.gridExportW,
		SelfConsumedW: o.selfConsumedW, ExpectedSOC: soc,
		SolarW: slot.SolarW, LoadW: slot.LoadW,
		ImportRateCents: slot.ImportRateCents, ExportRateCents: slot.ExportRateCents,
		Mode: ModeSelfUse,
	}

	switch {
	case a.chargeW > 50:
		ps.Mode = ModeForceCharge
		ps.TargetPowerW = int(math.Round(a.chargeW))
	case a.dischargeW > 50 && o.gridExportW > 50:
		ps.Mode = ModeForceDischarge
		ps.TargetPowerW = int(math.Round(a.dischargeW))
	}

	if slot.Spike {
		ps.Mode = ModeSelfUse
		ps.TargetPowerW = 0
		ps.ConstraintFlags = append(ps.ConstraintFlags, "spike")
	}
	if slot.StormActive {
		ps.ConstraintFlags = append(ps.ConstraintFlags, "storm_reserve")
	}

	return ps
}
