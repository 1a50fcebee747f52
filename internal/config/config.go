// Package config loads and validates the typed configuration tree the core
// consumes at startup (spec §6: battery, load_profile, planning,
// battery_targets, arbitrage, fixed_costs, anti_oscillation, storm,
// providers, hardware, loads, resilience, accounting).
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Battery describes the physical battery and its safety envelope.
type Battery struct {
	CapacityWh          float64 `json:"capacity_wh"`
	MaxChargeW          float64 `json:"max_charge_w"`
	MaxDischargeW       float64 `json:"max_discharge_w"`
	SOCMinHard          float64 `json:"soc_min_hard"`
	SOCMaxHard          float64 `json:"soc_max_hard"`
	RoundTripEfficiency float64 `json:"round_trip_efficiency"`
	InitialWACBCents    float64 `json:"initial_wacb_cents"`
}

// LoadProfile bounds the household load forecast used when no live
// telemetry or history-derived prediction is available.
type LoadProfile struct {
	DefaultLoadW float64 `json:"default_load_w"`
}

// Planning configures the MILP planner (spec §4.3).
type Planning struct {
	HorizonHours           int     `json:"horizon_hours"`
	SlotMinutes            int     `json:"slot_minutes"`
	SolverTimeoutSeconds   float64 `json:"solver_timeout_seconds"`
	PriceDampenThreshold   float64 `json:"price_dampen_threshold"`
	PriceDampenFactor      float64 `json:"price_dampen_factor"`
	HedgingRateCents       float64 `json:"hedging_rate_cents"`
	WeightSafety           float64 `json:"weight_safety"`
	WeightStorm            float64 `json:"weight_storm"`
	WeightEvening          float64 `json:"weight_evening"`
	WeightMorning          float64 `json:"weight_morning"`
	WeightSelfConsumption  float64 `json:"weight_self_consumption"`
	SOCSteps               int     `json:"soc_steps"`
	ChargeDischargeSteps   int     `json:"charge_discharge_steps"`
	Timezone               string  `json:"timezone"`
	TimezoneFixedOffsetMin int     `json:"timezone_fixed_offset_minutes"`
}

// BatteryTargets configures the soft time-of-day SOC targets (spec §4.3 item 8).
type BatteryTargets struct {
	EveningTargetHour   int     `json:"evening_target_hour"`
	EveningSOCTarget    float64 `json:"evening_soc_target"`
	MorningMinimumHour  int     `json:"morning_minimum_hour"`
	MorningSOCMinimum   float64 `json:"morning_soc_minimum"`
}

// Arbitrage configures the export gate (spec §4.3 item 5).
type Arbitrage struct {
	BreakEvenDeltaCents float64 `json:"break_even_delta_cents"`
	SpikeThresholdCents float64 `json:"spike_threshold_cents"`
}

// FixedCosts are billed into every cycle regardless of usage.
type FixedCosts struct {
	DailyStandingChargeCents float64 `json:"daily_standing_charge_cents"`
	BillingDayOfMonth        int     `json:"billing_day_of_month"`
}

// AntiOscillation configures the dwell/rate-limit guard (spec §4.7).
type AntiOscillation struct {
	MinCommandDuration   time.Duration `json:"min_command_duration"`
	RateWindow           time.Duration `json:"rate_window"`
	MaxCommandsPerWindow int           `json:"max_commands_per_window"`
}

// Storm configures storm-reserve behaviour (spec §4.11).
type Storm struct {
	Enabled             bool    `json:"enabled"`
	ProbabilityThreshold float64 `json:"probability_threshold"`
	ReserveSOCTarget    float64 `json:"reserve_soc_target"`
}

// Providers configures the forecast aggregator's staleness thresholds.
type Providers struct {
	SolarValiditySeconds   int           `json:"solar_validity_seconds"`
	WeatherValiditySeconds int           `json:"weather_validity_seconds"`
	StormValiditySeconds   int           `json:"storm_validity_seconds"`
	TariffValiditySeconds  int           `json:"tariff_validity_seconds"`
	StaleForecastMaxAge    time.Duration `json:"stale_forecast_max_age"`
	StaleTelemetryMaxAge   time.Duration `json:"stale_telemetry_max_age"`
}

// Hardware configures the inverter transport and watchdog behaviour.
type Hardware struct {
	ModbusAddress            string        `json:"modbus_address"`
	ModbusSlaveID            int           `json:"modbus_slave_id"`
	WatchdogTimeoutSeconds   int           `json:"watchdog_timeout_seconds"`
	RemoteRefreshInterval    time.Duration `json:"remote_refresh_interval"`
	EvaluationInterval       time.Duration `json:"evaluation_interval"`
	MaxGridImportW           float64       `json:"max_grid_import_w"`
	SupportsZeroImportCharge bool          `json:"supports_zero_import_charge"`
}

// LoadDescriptor is one controllable household load (spec §4.4/§6).
type LoadDescriptor struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	PowerW           float64 `json:"power_w"`
	PriorityClass    int     `json:"priority_class"`
	Enabled          bool    `json:"enabled"`
	EarliestStart    string  `json:"earliest_start"`
	LatestEnd        string  `json:"latest_end"`
	DaysOfWeek       []int   `json:"days_of_week"`
	MinRuntimeMins   int     `json:"min_runtime_minutes"`
	IdealRuntimeMins int     `json:"ideal_runtime_minutes"`
	MaxRuntimeMins   int     `json:"max_runtime_minutes"`
	PreferSolar      bool    `json:"prefer_solar"`
}

// Resilience configures the health checker (spec §4.10).
type Resilience struct {
	MaxConsecutiveFailures int `json:"max_consecutive_failures"`
}

// Accounting configures the billing/accounting engine (spec §4.2).
type Accounting struct {
	TickInterval        time.Duration `json:"tick_interval"`
	PostgresConnString  string        `json:"postgres_conn_string"`
}

// Config is the full typed configuration tree the core consumes at startup.
type Config struct {
	DryRun          bool            `json:"dry_run"`
	Location        string          `json:"location"`
	Battery         Battery         `json:"battery"`
	LoadProfile     LoadProfile     `json:"load_profile"`
	Planning        Planning        `json:"planning"`
	BatteryTargets  BatteryTargets  `json:"battery_targets"`
	Arbitrage       Arbitrage       `json:"arbitrage"`
	FixedCosts      FixedCosts      `json:"fixed_costs"`
	AntiOscillation AntiOscillation `json:"anti_oscillation"`
	Storm           Storm           `json:"storm"`
	Providers       Providers       `json:"providers"`
	Hardware        Hardware        `json:"hardware"`
	Loads           []LoadDescriptor `json:"loads"`
	Resilience      Resilience      `json:"resilience"`
	Accounting      Accounting      `json:"accounting"`

	PeriodicRebuildInterval time.Duration `json:"periodic_rebuild_interval"`
	SOCDeviationTolerance   float64       `json:"soc_deviation_tolerance"`
}

// DefaultConfig returns a configuration with sane defaults for a 24 kWh
// home battery system, mirroring the teacher's DefaultConfig shape.
func DefaultConfig() *Config {
	return &Config{
		DryRun:   false,
		Location: "UTC",
		Battery: Battery{
			CapacityWh:          24000,
			MaxChargeW:          8000,
			MaxDischargeW:       8000,
			SOCMinHard:          0.05,
			SOCMaxHard:          0.98,
			RoundTripEfficiency: 0.9,
			InitialWACBCents:    20,
		},
		LoadProfile: LoadProfile{DefaultLoadW: 500},
		Planning: Planning{
			HorizonHours:          48,
			SlotMinutes:           30,
			SolverTimeoutSeconds:  25,
			PriceDampenThreshold:  60,
			PriceDampenFactor:     0.5,
			HedgingRateCents:      0,
			WeightSafety:          1e6,
			WeightStorm:           1e4,
			WeightEvening:         1,
			WeightMorning:         1,
			WeightSelfConsumption: 0.5,
			SOCSteps:              100,
			ChargeDischargeSteps:  10,
			Timezone:              "UTC",
		},
		BatteryTargets: BatteryTargets{
			EveningTargetHour:  17,
			EveningSOCTarget:   0.8,
			MorningMinimumHour: 6,
			MorningSOCMinimum:  0.3,
		},
		Arbitrage: Arbitrage{
			BreakEvenDeltaCents: 5,
			SpikeThresholdCents: 80,
		},
		FixedCosts: FixedCosts{
			DailyStandingChargeCents: 100,
			BillingDayOfMonth:        1,
		},
		AntiOscillation: AntiOscillation{
			MinCommandDuration:   5 * time.Minute,
			RateWindow:           15 * time.Minute,
			MaxCommandsPerWindow: 6,
		},
		Storm: Storm{
			Enabled:              true,
			ProbabilityThreshold: 0.6,
			ReserveSOCTarget:     0.8,
		},
		Providers: Providers{
			SolarValiditySeconds:   3600,
			WeatherValiditySeconds: 3600,
			StormValiditySeconds:   3600,
			TariffValiditySeconds:  1800,
			StaleForecastMaxAge:    2 * time.Hour,
			StaleTelemetryMaxAge:   5 * time.Minute,
		},
		Hardware: Hardware{
			WatchdogTimeoutSeconds: 60,
			RemoteRefreshInterval:  20 * time.Second,
			EvaluationInterval:     300 * time.Second,
			MaxGridImportW:         15000,
		},
		Resilience: Resilience{MaxConsecutiveFailures: 3},
		Accounting: Accounting{TickInterval: 300 * time.Second},

		PeriodicRebuildInterval: 4 * time.Hour,
		SOCDeviationTolerance:   0.08,
	}
}

// LoadConfig loads configuration from a JSON file, applying defaults first.
func LoadConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	config := DefaultConfig()

	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config JSON: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate checks the configuration is internally consistent. A failure
// here is a PermanentConfig error (spec §7): the core must refuse to start.
func (c *Config) Validate() error {
	b := c.Battery
	if b.CapacityWh <= 0 {
		return fmt.Errorf("battery.capacity_wh must be positive, got %f", b.CapacityWh)
	}
	if b.SOCMinHard < 0 || b.SOCMinHard > 1 {
		return fmt.Errorf("battery.soc_min_hard must be in [0,1], got %f", b.SOCMinHard)
	}
	if b.SOCMaxHard < 0 || b.SOCMaxHard > 1 {
		return fmt.Errorf("battery.soc_max_hard must be in [0,1], got %f", b.SOCMaxHard)
	}
	if b.SOCMinHard > b.SOCMaxHard {
		return fmt.Errorf("battery.soc_min_hard (%f) cannot exceed soc_max_hard (%f)", b.SOCMinHard, b.SOCMaxHard)
	}
	if b.RoundTripEfficiency <= 0 || b.RoundTripEfficiency > 1 {
		return fmt.Errorf("battery.round_trip_efficiency must be in (0,1], got %f", b.RoundTripEfficiency)
	}

	p := c.Planning
	if p.HorizonHours <= 0 {
		return fmt.Errorf("planning.horizon_hours must be positive, got %d", p.HorizonHours)
	}
	if p.SlotMinutes <= 0 || 60%p.SlotMinutes != 0 && p.SlotMinutes%60 != 0 {
		return fmt.Errorf("planning.slot_minutes must divide or be a multiple of 60, got %d", p.SlotMinutes)
	}
	if p.SolverTimeoutSeconds <= 0 {
		return fmt.Errorf("planning.solver_timeout_seconds must be positive, got %f", p.SolverTimeoutSeconds)
	}
	if p.SOCSteps <= 0 {
		return fmt.Errorf("planning.soc_steps must be positive, got %d", p.SOCSteps)
	}

	if c.Storm.ProbabilityThreshold < 0 || c.Storm.ProbabilityThreshold > 1 {
		return fmt.Errorf("storm.probability_threshold must be in [0,1], got %f", c.Storm.ProbabilityThreshold)
	}

	if c.AntiOscillation.MinCommandDuration < 0 {
		return fmt.Errorf("anti_oscillation.min_command_duration must be non-negative")
	}
	if c.AntiOscillation.MaxCommandsPerWindow <= 0 {
		return fmt.Errorf("anti_oscillation.max_commands_per_window must be positive")
	}

	for _, l := range c.Loads {
		if l.ID == "" {
			return fmt.Errorf("loads: every load must have a non-empty id")
		}
		if l.PriorityClass < 1 || l.PriorityClass > 5 {
			return fmt.Errorf("loads[%s]: priority_class must be in [1,5], got %d", l.ID, l.PriorityClass)
		}
	}

	if c.Resilience.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("resilience.max_consecutive_failures must be positive")
	}

	return nil
}

// String returns an indented JSON representation of the config.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// SlotDuration returns the configured plan slot length.
func (p Planning) SlotDuration() time.Duration {
	return time.Duration(p.SlotMinutes) * time.Minute
}

// NumSlots returns the number of slots in one planning horizon.
func (p Planning) NumSlots() int {
	return p.HorizonHours * 60 / p.SlotMinutes
}
