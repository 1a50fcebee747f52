// Package resilience tracks per-provider health and derives a system
// resilience level with fallback commands (spec §4.10).
package resilience

import (
	"time"

	"github.com/homevolt/energy-core/internal/control"
	"github.com/homevolt/energy-core/internal/inverter"
)

// Provider names the system's health-tracked dependencies.
type Provider string

const (
	ProviderInverter       Provider = "inverter"
	ProviderTariff         Provider = "tariff"
	ProviderSolarForecast  Provider = "solar_forecast"
	ProviderWeatherForecast Provider = "weather_forecast"
)

// Level is the system resilience level (spec §4.10).
type Level string

const (
	Normal            Level = "NORMAL"
	DegradedForecast  Level = "DEGRADED_FORECAST"
	DegradedTariff    Level = "DEGRADED_TARIFF"
	SafeMode          Level = "SAFE_MODE"
	DegradedHardware  Level = "DEGRADED_HARDWARE"
	Offline           Level = "OFFLINE"
)

// Record is one provider's rolling health counters.
type Record struct {
	ConsecutiveFailures int
	LastSuccessAt       time.Time
	LastFailureAt       time.Time
}

// Healthy reports whether the record is currently considered healthy
// given a max-consecutive-failures threshold.
func (r Record) Healthy(maxConsecutiveFailures int) bool {
	return r.ConsecutiveFailures < maxConsecutiveFailures
}

// Checker owns the per-provider health records.
type Checker struct {
	maxConsecutiveFailures int
	records                map[Provider]*Record
}

// NewChecker creates a Checker.
func NewChecker(maxConsecutiveFailures int) *Checker {
	return &Checker{
		maxConsecutiveFailures: maxConsecutiveFailures,
		records:                make(map[Provider]*Record),
	}
}

// RecordSuccess resets a provider's failure streak.
func (c *Checker) RecordSuccess(p Provider, now time.Time) {
	r := c.recordFor(p)
	r.ConsecutiveFailures = 0
	r.LastSuccessAt = now
}

// RecordFailure extends a provider's failure streak.
func (c *Checker) RecordFailure(p Provider, now time.Time) {
	r := c.recordFor(p)
	r.ConsecutiveFailures++
	r.LastFailureAt = now
}

func (c *Checker) recordFor(p Provider) *Record {
	r, ok := c.records[p]
	if !ok {
		r = &Record{}
		c.records[p] = r
	}
	return r
}

// IsHealthy reports p's current health.
func (c *Checker) IsHealthy(p Provider) bool {
	r, ok := c.records[p]
	if !ok {
		return true
	}
	return r.Healthy(c.maxConsecutiveFailures)
}

// Evaluate derives the current resilience level from provider health
// (spec §4.10's priority-ordered checks).
func (c *Checker) Evaluate() Level {
	if !c.IsHealthy(ProviderInverter) {
		return DegradedHardware
	}

	tariffUnhealthy := !c.IsHealthy(ProviderTariff)
	forecastUnhealthy := !c.IsHealthy(ProviderSolarForecast) || !c.IsHealthy(ProviderWeatherForecast)

	switch {
	case tariffUnhealthy && forecastUnhealthy:
		return SafeMode
	case tariffUnhealthy:
		return DegradedTariff
	case forecastUnhealthy:
		return DegradedForecast
	default:
		return Normal
	}
}

// FallbackCommand returns the level's fallback command per spec §4.10's
// table. OFFLINE is only ever exited by supervisor action and shares
// DEGRADED_HARDWARE's fallback.
func FallbackCommand(level Level, now time.Time) control.Command {
	switch level {
	case Normal:
		return control.Command{Mode: inverter.SelfUse, Source: "resilience", Priority: 4, CreatedAt: now}
	case DegradedForecast:
		return control.Command{Mode: inverter.SelfUse, Source: "resilience", Priority: 3, CreatedAt: now}
	case DegradedTariff:
		return control.Command{Mode: inverter.SelfUse, Source: "resilience", Priority: 3, CreatedAt: now}
	case SafeMode:
		return control.Command{Mode: inverter.SelfUseZeroExport, Source: "resilience", Priority: 2, CreatedAt: now}
	case DegradedHardware, Offline:
		return control.Command{Mode: inverter.SelfUse, Source: "resilience", Priority: 1, CreatedAt: now}
	default:
		return control.Command{Mode: inverter.SelfUse, Source: "resilience", Priority: 4, CreatedAt: now}
	}
}
