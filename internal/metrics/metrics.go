// Package metrics exposes the Prometheus gauges and counters the
// control loop reports against, including the planner solve times and
// resilience levels it observes (spec §5's observability surface).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every metric the core emits. Callers create one
// Registry per process and pass it down to the components that report
// into it.
type Registry struct {
	TicksTotal          prometheus.Counter
	TickErrorsTotal      *prometheus.CounterVec
	SolverWallTimeMS     prometheus.Histogram
	PlanVersion          prometheus.Gauge
	CurrentSOC           prometheus.Gauge
	ResilienceLevel      *prometheus.GaugeVec
	RebuildsTotal        *prometheus.CounterVec
	CommandsDispatched   *prometheus.CounterVec
	GuardSuppressedTotal prometheus.Counter
	StormTransitionsTotal prometheus.Counter
}

// New creates a Registry and registers every metric against reg.
func New(reg prometheus.Registerer) *Registry {
	m := &Registry{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "energyctl_ticks_total",
			Help: "Total number of main control-loop ticks executed.",
		}),
		TickErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "energyctl_tick_errors_total",
			Help: "Total number of tick errors by stage.",
		}, []string{"stage"}),
		SolverWallTimeMS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "energyctl_solver_wall_time_ms",
			Help:    "Planner solve wall-clock time in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12),
		}),
		PlanVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "energyctl_plan_version",
			Help: "Version number of the currently active plan.",
		}),
		CurrentSOC: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "energyctl_battery_soc",
			Help: "Most recently observed battery state of charge, 0-1.",
		}),
		ResilienceLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "energyctl_resilience_level",
			Help: "1 if the resilience manager is currently at this level, else 0.",
		}, []string{"level"}),
		RebuildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "energyctl_rebuilds_total",
			Help: "Total number of plan rebuilds by trigger reason.",
		}, []string{"trigger"}),
		CommandsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "energyctl_commands_dispatched_total",
			Help: "Total number of commands dispatched to the inverter by mode.",
		}, []string{"mode"}),
		GuardSuppressedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "energyctl_guard_suppressed_total",
			Help: "Total number of commands suppressed by the anti-oscillation guard.",
		}),
		StormTransitionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "energyctl_storm_transitions_total",
			Help: "Total number of storm-reserve activate/deactivate transitions.",
		}),
	}

	reg.MustRegister(
		m.TicksTotal, m.TickErrorsTotal, m.SolverWallTimeMS, m.PlanVersion, m.CurrentSOC,
		m.ResilienceLevel, m.RebuildsTotal, m.CommandsDispatched, m.GuardSuppressedTotal,
		m.StormTransitionsTotal,
	)
	return m
}

// SetResilienceLevel zeroes every known level and sets only the active
// one to 1, so a Grafana panel can graph level transitions cleanly.
func (m *Registry) SetResilienceLevel(active string, allLevels []string) {
	for _, level := range allLevels {
		v := 0.0
		if level == active {
			v = 1.0
		}
		m.ResilienceLevel.WithLabelValues(level).Set(v)
	}
}
