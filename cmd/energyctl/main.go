// Command energyctl is the home energy management system entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/homevolt/energy-core/internal/accounting"
	"github.com/homevolt/energy-core/internal/config"
	"github.com/homevolt/energy-core/internal/control"
	"github.com/homevolt/energy-core/internal/diag"
	"github.com/homevolt/energy-core/internal/forecast"
	"github.com/homevolt/energy-core/internal/history"
	"github.com/homevolt/energy-core/internal/inverter"
	"github.com/homevolt/energy-core/internal/loadmgr"
	"github.com/homevolt/energy-core/internal/loadsched"
	"github.com/homevolt/energy-core/internal/loop"
	"github.com/homevolt/energy-core/internal/metrics"
	"github.com/homevolt/energy-core/internal/persistence"
	"github.com/homevolt/energy-core/internal/planner"
	"github.com/homevolt/energy-core/internal/resilience"
	"github.com/homevolt/energy-core/internal/storm"
	"github.com/homevolt/energy-core/internal/wacb"
)

func main() {
	var (
		configFile = flag.String("config", "config.json", "Configuration file path")
		info       = flag.Bool("info", false, "Show battery and hardware configuration")
		plan       = flag.Bool("plan", false, "Solve a plan once, print it as a table, and exit")
		serverOnly = flag.Bool("serverOnly", false, "Run only the diagnostics/metrics server, without the control loop")
		help       = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Println("using default configuration:", err)
		cfg = config.DefaultConfig()
	}

	if *info {
		fmt.Println(cfg.String())
		return
	}

	logger := log.New(os.Stdout, "[energyctl] ", log.LstdFlags)

	if *plan {
		runPlanOnce(cfg, logger)
		return
	}

	l, diagSrv, err := build(cfg, logger)
	if err != nil {
		logger.Fatalf("failed to build control loop: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if diagSrv != nil {
		_ = diagSrv.Start()
	}

	if !*serverOnly {
		go func() {
			if err := l.Start(ctx); err != nil {
				logger.Printf("control loop error: %v", err)
			}
		}()
	}

	logger.Printf("energyctl started. Press Ctrl+C to stop...")
	<-sigChan
	logger.Printf("shutdown signal received, stopping...")

	cancel()
	l.Stop()
	if diagSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = diagSrv.Stop(shutdownCtx)
	}
	logger.Printf("stopped")
}

// build wires every internal package into a running Loop, mirroring the
// teacher's NewMinerSchedulerWithHealthCheck composition.
func build(cfg *config.Config, logger *log.Logger) (*loop.Loop, *diag.Server, error) {
	loc, err := time.LoadLocation(cfg.Location)
	if err != nil {
		loc = time.UTC
	}

	var adapter inverter.Adapter = inverter.NewModbusAdapter(
		cfg.Hardware.ModbusAddress, byte(cfg.Hardware.ModbusSlaveID), inverter.DefaultRegisterMap)
	if cfg.DryRun {
		logger.Printf("DRY-RUN MODE ENABLED: inverter commands will be simulated only")
		adapter = inverter.NewDryRunAdapter(adapter, logger)
	}

	var store persistence.Store
	if cfg.DryRun || cfg.Accounting.PostgresConnString == "" {
		store = persistence.NewMemoryStore()
	} else {
		pg, err := persistence.NewPostgresStore(cfg.Accounting.PostgresConnString, logger)
		if err != nil {
			logger.Printf("falling back to in-memory store: %v", err)
			store = persistence.NewMemoryStore()
		} else {
			store = pg
		}
	}

	params := planner.Params{
		CapacityWh: cfg.Battery.CapacityWh, MaxChargeW: cfg.Battery.MaxChargeW, MaxDischargeW: cfg.Battery.MaxDischargeW,
		SOCMinHard: cfg.Battery.SOCMinHard, SOCMaxHard: cfg.Battery.SOCMaxHard, RoundTripEfficiency: cfg.Battery.RoundTripEfficiency,
		SlotMinutes: cfg.Planning.SlotMinutes, SOCSteps: cfg.Planning.SOCSteps, ChargeDischargeSteps: cfg.Planning.ChargeDischargeSteps,
		WACBCents: cfg.Battery.InitialWACBCents, BreakEvenDeltaCents: cfg.Arbitrage.BreakEvenDeltaCents,
		PriceDampenThreshold: cfg.Planning.PriceDampenThreshold, PriceDampenFactor: cfg.Planning.PriceDampenFactor,
		HedgingRateCents: cfg.Planning.HedgingRateCents,
		WeightSafety: cfg.Planning.WeightSafety, WeightStorm: cfg.Planning.WeightStorm,
		WeightEvening: cfg.Planning.WeightEvening, WeightMorning: cfg.Planning.WeightMorning,
		WeightSelfConsumption: cfg.Planning.WeightSelfConsumption, StormReserveSOC: cfg.Storm.ReserveSOCTarget,
		EveningTargetHour: cfg.BatteryTargets.EveningTargetHour, EveningSOCTarget: cfg.BatteryTargets.EveningSOCTarget,
		MorningMinimumHour: cfg.BatteryTargets.MorningMinimumHour, MorningSOCMinimum: cfg.BatteryTargets.MorningSOCMinimum,
		Location: loc,
	}

	loadMgr := loadmgr.New()
	loads := make([]loadsched.Descriptor, 0, len(cfg.Loads))
	for _, ld := range cfg.Loads {
		loads = append(loads, loadsched.Descriptor{
			ID: ld.ID, Name: ld.Name, PowerW: ld.PowerW, PriorityClass: ld.PriorityClass, Enabled: ld.Enabled,
			MinRuntimeMins: ld.MinRuntimeMins, IdealRuntimeMins: ld.IdealRuntimeMins, MaxRuntimeMins: ld.MaxRuntimeMins,
			PreferSolar: ld.PreferSolar,
		})
	}

	reg := prometheus.NewRegistry()
	metricsReg := metrics.New(reg)

	d := loop.Deps{
		Config:     cfg,
		Adapter:    adapter,
		Forecast:   forecast.New(nil, nil, nil, nil, time.Duration(cfg.Providers.SolarValiditySeconds)*time.Second, time.Duration(cfg.Providers.WeatherValiditySeconds)*time.Second, time.Duration(cfg.Providers.StormValiditySeconds)*time.Second, time.Duration(cfg.Providers.TariffValiditySeconds)*time.Second, cfg.Arbitrage.SpikeThresholdCents),
		Planner:    planner.New(params),
		WACB:       wacb.NewTracker(cfg.Battery.InitialWACBCents, cfg.Battery.CapacityWh, 0.5),
		Accounting: accounting.New(cfg.Accounting.TickInterval, cfg.FixedCosts.BillingDayOfMonth, time.Now()),
		Storm:      storm.New(cfg.Storm.Enabled, cfg.Storm.ProbabilityThreshold, cfg.Storm.ReserveSOCTarget),
		Health:     resilience.NewChecker(cfg.Resilience.MaxConsecutiveFailures),
		Guard:      control.NewGuard(cfg.AntiOscillation.MinCommandDuration, cfg.AntiOscillation.RateWindow, cfg.AntiOscillation.MaxCommandsPerWindow),
		Override:   &control.Override{},
		LoadMgr:    loadMgr,
		Loads:      loads,
		LoadPred:   history.NewLoadPredictor(loc),
		SolarPred:  history.NewSolarPredictor(loc),
		Store:      store,
		Metrics:    metricsReg,
		Logger:     logger,
	}
	l := loop.New(d)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		_ = http.ListenAndServe(":9100", mux)
	}()

	diagSrv := diag.NewServer(loopHealthAdapter{l}, 8080)
	return l, diagSrv, nil
}

// loopHealthAdapter adapts loop.Loop's Health method to diag.StatusSource.
type loopHealthAdapter struct{ l *loop.Loop }

func (a loopHealthAdapter) LoopHealth() diag.LoopHealth {
	h := a.l.Health()
	return diag.LoopHealth{
		IsRunning:       h.IsRunning,
		LastTickAt:      h.LastTickAt,
		ActivePlan:      h.ActivePlan,
		ResilienceLevel: h.ResilienceLevel,
		CurrentSOC:      h.CurrentSOC,
	}
}

func runPlanOnce(cfg *config.Config, logger *log.Logger) {
	l, _, err := build(cfg, logger)
	if err != nil {
		logger.Fatalf("failed to build: %v", err)
	}
	l.TickOnce(context.Background())

	health := l.Health()
	if health.ActivePlan == nil {
		fmt.Println("no plan was produced (inverter telemetry unavailable)")
		return
	}
	printPlanTable(*health.ActivePlan)
}

func printPlanTable(p planner.Plan) {
	fmt.Println("\n========================================")
	fmt.Println("PLAN")
	fmt.Println("========================================")
	fmt.Printf("Version: %d   Trigger: %s   Slots: %d\n\n", p.Version, p.TriggerReason, len(p.Slots))

	fmt.Println("┌─────────────────────┬────────────────┬──────────┬──────────┬──────────┬───────────┬──────────┐")
	fmt.Println("│      Timestamp      │      Mode      │ Power(W) │ Solar(W) │ Load (W) │ Import(c) │ Exp SOC  │")
	fmt.Println("├─────────────────────┼────────────────┼──────────┼──────────┼──────────┼───────────┼──────────┤")
	for _, s := range p.Slots {
		fmt.Printf("│ %19s │ %14s │ %8d │ %8.0f │ %8.0f │  %7.2f  │  %6.1f  │\n",
			s.Start.Format("2006-01-02 15:04"), s.Mode, s.TargetPowerW, s.SolarW, s.LoadW, s.ImportRateCents, s.ExpectedSOC*100)
	}
	fmt.Println("└─────────────────────┴────────────────┴──────────┴──────────┴──────────┴───────────┴──────────┘")
	fmt.Printf("\nObjective score: %.2f\n", p.ObjectiveScore)
}

func showHelp() {
	fmt.Println("energyctl - home battery/solar energy management system")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Integrates solar, battery storage, the grid, and controllable household")
	fmt.Println("  loads, using forecasted tariffs and weather to minimize energy cost while")
	fmt.Println("  protecting the battery and riding out storms.")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  energyctl [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  energyctl --config=config.json")
	fmt.Println("  energyctl -info")
	fmt.Println("  energyctl -plan")
	fmt.Println("  energyctl -serverOnly")
}
