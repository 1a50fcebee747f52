// Package loop runs the two cooperating scheduled activities that drive
// the system: the main evaluation tick and the inverter watchdog
// refresh (spec §4.9), wiring together every other internal package.
package loop

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/homevolt/energy-core/internal/accounting"
	"github.com/homevolt/energy-core/internal/config"
	"github.com/homevolt/energy-core/internal/control"
	"github.com/homevolt/energy-core/internal/forecast"
	"github.com/homevolt/energy-core/internal/history"
	"github.com/homevolt/energy-core/internal/inverter"
	"github.com/homevolt/energy-core/internal/loadmgr"
	"github.com/homevolt/energy-core/internal/loadsched"
	"github.com/homevolt/energy-core/internal/metrics"
	"github.com/homevolt/energy-core/internal/persistence"
	"github.com/homevolt/energy-core/internal/planner"
	"github.com/homevolt/energy-core/internal/rebuild"
	"github.com/homevolt/energy-core/internal/resilience"
	"github.com/homevolt/energy-core/internal/storm"
	"github.com/homevolt/energy-core/internal/wacb"
)

// task is the generic periodic-task runner, generalised from the
// teacher's scheduler.PeriodicTask: it waits out an initial delay, then
// fires runFunc on every interval tick until ctx is cancelled or stop
// is closed.
type task struct {
	name         string
	initialDelay time.Duration
	interval     time.Duration
	runFunc      func()
}

func (t *task) run(ctx context.Context, stop <-chan struct{}, logger *log.Logger) {
	if t.initialDelay > 0 {
		select {
		case <-time.After(t.initialDelay):
		case <-ctx.Done():
			return
		case <-stop:
			return
		}
	}
	t.runFunc()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.runFunc()
		case <-ctx.Done():
			logger.Printf("[%s] stopped: context cancelled", t.name)
			return
		case <-stop:
			logger.Printf("[%s] stopped: stop signal", t.name)
			return
		}
	}
}

// Deps bundles every collaborator the loop wires together. All fields
// are required except Store, Loads and Metrics, which may be nil/empty,
// and Logger, which New defaults to log.Default() when nil.
type Deps struct {
	Config    *config.Config
	Adapter   inverter.Adapter
	Forecast  *forecast.Aggregator
	Planner   *planner.Solver
	WACB      *wacb.Tracker
	Accounting *accounting.Engine
	Storm     *storm.Monitor
	Health    *resilience.Checker
	Guard     *control.Guard
	Override  *control.Override
	LoadMgr   *loadmgr.Manager
	Loads     []loadsched.Descriptor
	LoadPred  *history.LoadPredictor
	SolarPred *history.SolarPredictor
	Store     persistence.Store
	Metrics   *metrics.Registry
	Logger    *log.Logger
}

// Loop is the control-loop orchestrator (spec C10).
type Loop struct {
	d Deps

	mu                     sync.RWMutex
	isRunning              bool
	stopChan               chan struct{}
	activePlan             *planner.Plan
	lastRebuildAt          time.Time
	lastDispatched         *inverter.Command
	currentMode            inverter.Mode
	lastTickAt             time.Time
	lastTelemetry          inverter.Telemetry
	scheduledLoadNames     map[string]bool
	lastResilienceLevel    resilience.Level
	commandCallbacks       []func(inverter.Telemetry, control.Command)
	telemetryCallbacks     []func(inverter.Telemetry)
}

// New creates a Loop from its wired dependencies. Logger defaults to
// log.Default() when nil, matching the teacher's NewMinerScheduler.
func New(d Deps) *Loop {
	if d.Logger == nil {
		d.Logger = log.Default()
	}
	return &Loop{d: d, stopChan: make(chan struct{}), scheduledLoadNames: map[string]bool{}}
}

// OnTelemetry registers a callback invoked with every tick's telemetry
// (spec §4.9 step 2: accounting, history, load shedding).
func (l *Loop) OnTelemetry(fn func(inverter.Telemetry)) {
	l.telemetryCallbacks = append(l.telemetryCallbacks, fn)
}

// OnCommand registers a callback invoked after a command is dispatched
// (spec §4.9 step 7).
func (l *Loop) OnCommand(fn func(inverter.Telemetry, control.Command)) {
	l.commandCallbacks = append(l.commandCallbacks, fn)
}

// IsRunning reports whether Start has been called and Stop has not.
func (l *Loop) IsRunning() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.isRunning
}

// LoopHealth is the snapshot returned by Health; cmd/energyctl's
// loopHealthAdapter converts it to diag.LoopHealth for diag.StatusSource.
type LoopHealth struct {
	IsRunning       bool
	LastTickAt      time.Time
	ActivePlan      *planner.Plan
	ResilienceLevel resilience.Level
	CurrentSOC      float64
}

// Health returns a snapshot for the diagnostics server.
func (l *Loop) Health() LoopHealth {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return LoopHealth{
		IsRunning:       l.isRunning,
		LastTickAt:      l.lastTickAt,
		ActivePlan:      l.activePlan,
		ResilienceLevel: l.lastResilienceLevel,
		CurrentSOC:      l.lastTelemetry.SOC,
	}
}

// Start runs the main tick and watchdog refresh tasks until ctx is
// cancelled or Stop is called. It blocks until both tasks exit.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.isRunning {
		l.mu.Unlock()
		return nil
	}
	l.isRunning = true
	l.stopChan = make(chan struct{})
	l.mu.Unlock()

	hw := l.d.Config.Hardware
	tasks := []*task{
		{
			name:     "MainTick",
			interval: hw.EvaluationInterval,
			runFunc:  func() { l.TickOnce(ctx) },
		},
		{
			name:     "WatchdogRefresh",
			interval: hw.RemoteRefreshInterval,
			runFunc:  func() { l.RefreshOnce(ctx) },
		},
	}

	var wg sync.WaitGroup
	for _, t := range tasks {
		t := t
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.run(ctx, l.stopChan, l.d.Logger)
		}()
	}
	wg.Wait()

	l.mu.Lock()
	l.isRunning = false
	l.mu.Unlock()
	return nil
}

// Stop signals both scheduled activities to exit.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.isRunning {
		return
	}
	select {
	case <-l.stopChan:
	default:
		close(l.stopChan)
	}
}

// TickOnce runs one main-tick evaluation (spec §4.9 steps A1-A7). It is
// exported for test harnesses, matching the spec's tick_once() hook.
func (l *Loop) TickOnce(ctx context.Context) {
	now := time.Now()
	if l.d.Metrics != nil {
		l.d.Metrics.TicksTotal.Inc()
	}

	// Step 1: read telemetry.
	telemetry, err := l.d.Adapter.GetTelemetry(ctx)
	if err != nil {
		l.d.Health.RecordFailure(resilience.ProviderInverter, now)
		if l.d.Metrics != nil {
			l.d.Metrics.TickErrorsTotal.WithLabelValues("telemetry").Inc()
		}
		l.d.Logger.Printf("tick: telemetry read failed: %v", err)
		l.evaluateResilience(now)
		return
	}
	l.d.Health.RecordSuccess(resilience.ProviderInverter, now)
	l.d.WACB.SyncSOC(telemetry.SOC, l.d.Config.Battery.CapacityWh)
	if l.d.Metrics != nil {
		l.d.Metrics.CurrentSOC.Set(telemetry.SOC)
	}

	l.mu.Lock()
	l.lastTickAt = now
	l.lastTelemetry = telemetry
	l.mu.Unlock()

	// Step 2: telemetry callbacks (accounting, history, load shedding).
	for _, cb := range l.telemetryCallbacks {
		cb(telemetry)
	}
	l.bookAccounting(telemetry, now)

	level := l.evaluateResilience(now)

	l.maybeRebuild(now)

	spikeActive := l.d.Forecast != nil && l.d.Forecast.IsSpikeActive()
	if spikeActive {
		l.d.LoadMgr.ShedForSpike(2)
	} else {
		l.d.LoadMgr.RestoreAfterSpike()
	}
	l.d.LoadMgr.ShedForOverload(telemetry.GridW, l.d.Config.Hardware.MaxGridImportW)
	l.mu.RLock()
	scheduled := l.scheduledLoadNames
	l.mu.RUnlock()
	l.d.LoadMgr.ExecuteSchedule(scheduled, now)

	// Step 3: candidate command.
	candidate := l.candidateCommand(now)

	// Step 4: control hierarchy.
	stormState := l.d.Storm.State()
	decision := control.Arbitrate(candidate, control.HierarchyInput{
		SOC:           telemetry.SOC,
		SOCMinHard:    l.d.Config.Battery.SOCMinHard,
		SOCMaxHard:    l.d.Config.Battery.SOCMaxHard,
		StormActive:   stormState.Active,
		StormReserve:  stormState.ReserveSOC,
		GridAvailable: telemetry.GridAvailable,
	}, now)
	cmd := decision.Command

	if level != resilience.Normal {
		fallback := resilience.FallbackCommand(level, now)
		if fallback.Priority < cmd.Priority {
			cmd = fallback
		}
	}

	// Step 5: anti-oscillation guard.
	if !l.d.Guard.Allow(cmd, now) {
		if l.d.Metrics != nil {
			l.d.Metrics.GuardSuppressedTotal.Inc()
		}
		return
	}

	// Step 6: dispatch.
	result, err := l.d.Adapter.SendCommand(ctx, inverter.Command{Mode: cmd.Mode, PowerW: cmd.PowerW})
	if err != nil || !result.Success {
		if l.d.Metrics != nil {
			l.d.Metrics.TickErrorsTotal.WithLabelValues("dispatch").Inc()
		}
		l.d.Logger.Printf("tick: dispatch failed: %v", err)
		return
	}
	l.d.Guard.Record(cmd, now)
	l.mu.Lock()
	l.currentMode = cmd.Mode
	dispatched := inverter.Command{Mode: cmd.Mode, PowerW: cmd.PowerW}
	l.lastDispatched = &dispatched
	l.mu.Unlock()
	if l.d.Metrics != nil {
		l.d.Metrics.CommandsDispatched.WithLabelValues(string(cmd.Mode)).Inc()
	}

	// Step 7: command callbacks.
	for _, cb := range l.commandCallbacks {
		cb(telemetry, cmd)
	}

	if l.d.Store != nil {
		_ = l.d.Store.SaveTelemetry(ctx, telemetry)
	}
}

// candidateCommand implements spec §4.9 step 3: manual override, else
// the plan's current slot, else a default SELF_USE.
func (l *Loop) candidateCommand(now time.Time) control.Command {
	if cmd, ok := l.d.Override.GetCommand(now); ok {
		return cmd
	}

	l.mu.RLock()
	plan := l.activePlan
	l.mu.RUnlock()
	if plan != nil {
		for _, slot := range plan.Slots {
			if !now.Before(slot.Start) && now.Before(slot.End) {
				return control.Command{
					Mode:      planSlotMode(slot.Mode),
					PowerW:    int32(slot.TargetPowerW),
					Source:    "plan",
					Reason:    string(plan.TriggerReason),
					Priority:  4,
					CreatedAt: now,
				}
			}
		}
	}

	return control.Command{Mode: inverter.SelfUse, Source: "default", Reason: "no active plan slot", Priority: 5, CreatedAt: now}
}

func planSlotMode(m planner.Mode) inverter.Mode {
	switch m {
	case planner.ModeForceCharge:
		return inverter.ForceCharge
	case planner.ModeForceDischarge:
		return inverter.ForceDischarge
	default:
		return inverter.SelfUse
	}
}

// RefreshOnce implements spec §4.9 step B: re-send the last dispatched
// remote-control command so the inverter's watchdog does not expire.
func (l *Loop) RefreshOnce(ctx context.Context) {
	l.mu.RLock()
	last := l.lastDispatched
	l.mu.RUnlock()
	if last == nil || !last.Mode.IsRemoteControl() {
		return
	}
	if _, err := l.d.Adapter.SendCommand(ctx, *last); err != nil {
		l.d.Logger.Printf("watchdog refresh failed: %v", err)
	}
}

// bookAccounting feeds the current telemetry into the accounting engine
// and persists any events it books.
func (l *Loop) bookAccounting(t inverter.Telemetry, now time.Time) {
	slot, haveSlot := l.currentTariffSlot(now)
	importRate, exportRate := 0.0, 0.0
	if haveSlot {
		importRate, exportRate = slot.ImportRateCents, slot.ExportRateCents
	}

	events := l.d.Accounting.Process(accounting.Tick{
		At:              now,
		GridImportW:     posOrZero(t.GridW),
		GridExportW:     posOrZero(-t.GridW),
		SolarW:          t.SolarW,
		LoadW:           t.LoadW,
		BatteryW:        t.BatteryW,
		ImportRateCents: importRate,
		ExportRateCents: exportRate,
	}, l.d.WACB, 0)

	if l.d.Store == nil {
		return
	}
	for _, e := range events {
		_ = l.d.Store.SaveAccountingEvent(context.Background(), e)
	}
}

func (l *Loop) currentTariffSlot(now time.Time) (forecast.Slot, bool) {
	if l.d.Forecast == nil {
		return forecast.Slot{}, false
	}
	return l.d.Forecast.State().Tariff.Lookup(now)
}

func posOrZero(v float64) float64 {
	if v > 0 {
		return v
	}
	return 0
}

// evaluateResilience refreshes the resilience level, records a metric
// sample, and returns the current level.
func (l *Loop) evaluateResilience(now time.Time) resilience.Level {
	level := l.d.Health.Evaluate()
	l.mu.Lock()
	changed := l.lastResilienceLevel != level
	l.lastResilienceLevel = level
	l.mu.Unlock()
	if changed {
		l.d.Logger.Printf("resilience level changed to %s", level)
		if l.d.Store != nil {
			_ = l.d.Store.SaveSystemEvent(context.Background(), persistence.SystemEvent{
				RecordedAt: now, Kind: "resilience_transition", Detail: string(level),
			})
		}
	}
	if l.d.Metrics != nil {
		l.d.Metrics.SetResilienceLevel(string(level), []string{
			string(resilience.Normal), string(resilience.DegradedForecast), string(resilience.DegradedTariff),
			string(resilience.SafeMode), string(resilience.DegradedHardware), string(resilience.Offline),
		})
	}
	return level
}

// maybeRebuild runs the rebuild evaluator and, when it fires, re-solves
// the plan and re-schedules controllable loads (spec §4.5).
func (l *Loop) maybeRebuild(now time.Time) {
	l.mu.RLock()
	plan := l.activePlan
	lastRebuild := l.lastRebuildAt
	l.mu.RUnlock()

	var (
		hasSlot     bool
		expectedSOC float64
		trigger     planner.TriggerReason
	)
	if plan != nil {
		trigger = plan.TriggerReason
		for _, slot := range plan.Slots {
			if !now.Before(slot.Start) && now.Before(slot.End) {
				hasSlot, expectedSOC = true, slot.ExpectedSOC
				break
			}
		}
	}

	stormTransitioned := l.d.Storm.Update(l.currentStormProbability(now), now) != storm.NoTransition
	if l.d.Metrics != nil && stormTransitioned {
		l.d.Metrics.StormTransitionsTotal.Inc()
	}

	result := rebuild.Evaluate(rebuild.Input{
		HasActivePlan:           plan != nil,
		ActivePlanTrigger:       trigger,
		SpikeActive:             l.d.Forecast != nil && l.d.Forecast.IsSpikeActive(),
		StormTransitioned:       stormTransitioned,
		CurrentSOC:              l.lastTelemetry.SOC,
		CurrentSlotExpectedSOC:  expectedSOC,
		HasCurrentSlot:          hasSlot,
		SOCDeviationTolerance:   l.d.Config.SOCDeviationTolerance,
		LastRebuildAt:           lastRebuild,
		PeriodicRebuildInterval: l.d.Config.PeriodicRebuildInterval,
		ForecastIsStale:         l.d.Forecast != nil && l.d.Forecast.IsStale(l.d.Config.Providers.StaleForecastMaxAge),
	}, now)

	if !result.ShouldRebuild {
		return
	}

	newPlan := l.solvePlan(result.Trigger, now)
	scheduled := loadsched.Schedule(&newPlan, l.d.Loads, l.d.Config.Planning.SlotMinutes, loadsched.Inputs{
		SpikeActive: l.d.Forecast != nil && l.d.Forecast.IsSpikeActive(),
		Location:    now.Location(),
	})
	names := map[string]bool{}
	for _, s := range scheduled {
		names[s.Name] = true
	}

	l.mu.Lock()
	l.activePlan = &newPlan
	l.lastRebuildAt = now
	l.scheduledLoadNames = names
	l.mu.Unlock()

	if l.d.Metrics != nil {
		l.d.Metrics.RebuildsTotal.WithLabelValues(string(result.Trigger)).Inc()
		l.d.Metrics.PlanVersion.Set(float64(newPlan.Version))
		l.d.Metrics.SolverWallTimeMS.Observe(float64(newPlan.Metrics.SolverMS))
	}
	if l.d.Store != nil {
		_ = l.d.Store.SavePlan(context.Background(), newPlan)
	}
}

func (l *Loop) currentStormProbability(now time.Time) float64 {
	if l.d.Forecast == nil {
		return 0
	}
	slot, ok := l.d.Forecast.State().Storm.Lookup(now)
	if !ok {
		return 0
	}
	return slot.StormProbability
}

// solvePlan builds the forecast slot inputs for the planning horizon and
// runs the solver, falling back to history-derived predictions where the
// live forecast has no coverage.
func (l *Loop) solvePlan(trigger planner.TriggerReason, now time.Time) planner.Plan {
	slotDur := l.d.Config.Planning.SlotDuration()
	n := l.d.Config.Planning.NumSlots()
	state := l.d.Forecast.State()
	stormActive := l.d.Storm.State().Active

	slots := make([]planner.SlotInput, 0, n)
	cursor := now.Truncate(slotDur)
	for i := 0; i < n; i++ {
		start := cursor.Add(time.Duration(i) * slotDur)
		end := start.Add(slotDur)

		tariff, _ := state.Tariff.Lookup(start)
		solar, haveSolar := state.Solar.Lookup(start)
		solarW := solar.SolarP50W
		if !haveSolar {
			solarW = l.d.SolarPred.Predict(start, nil)
		}
		loadW := l.d.LoadPred.Predict(start, l.d.Config.LoadProfile.DefaultLoadW)

		slots = append(slots, planner.SlotInput{
			Start:           start,
			End:             end,
			SolarW:          solarW,
			LoadW:           loadW,
			ImportRateCents: tariff.ImportRateCents,
			ExportRateCents: tariff.ExportRateCents,
			Spike:           tariff.ImportRateCents >= l.d.Config.Arbitrage.SpikeThresholdCents,
			StormActive:     stormActive,
		})
	}

	return l.d.Planner.Solve(slots, l.lastTelemetry.SOC, trigger, now, int64(l.d.Config.Planning.SolverTimeoutSeconds*1000))
}
