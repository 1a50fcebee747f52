// Package forecast maintains the latest successful result from each of the
// solar, weather, storm and tariff provider slots, exposes a combined
// snapshot to the planner, and runs spike detection on every tariff update
// (spec §4.1).
package forecast

import (
	"context"
	"sync"
	"time"
)

// Slot is one 30-minute forecast window (spec §3 Forecast slot).
type Slot struct {
	Start, End      time.Time
	SolarP10W       float64
	SolarP50W       float64
	SolarP90W       float64
	CloudCoverPct   float64
	TempC           float64
	StormProbability float64
	ImportRateCents float64
	ExportRateCents float64
}

// Covers reports whether t falls within [Start, End).
func (s Slot) Covers(t time.Time) bool {
	return !t.Before(s.Start) && t.Before(s.End)
}

// TariffSchedule is an ordered, non-overlapping sequence of priced slots
// over a continuous time domain (spec §3).
type TariffSchedule struct {
	Slots []Slot
}

// Lookup returns the slot covering t, if any.
func (t TariffSchedule) Lookup(at time.Time) (Slot, bool) {
	for _, s := range t.Slots {
		if s.Covers(at) {
			return s, true
		}
	}
	return Slot{}, false
}

// Provider is the capability contract every forecast source implements
// (spec §9: "a trait/interface with a fixed method set"). Concrete
// vendor adapters (Amber, Open-Meteo, BOM, Forecast.Solar) are external
// collaborators out of scope for the core; Provider is the shape the core
// depends on.
type Provider interface {
	Fetch(ctx context.Context) (TariffSchedule, error)
	IsHealthy() bool
	Close() error
}

// cached holds one provider's last successful result plus its freshness
// window.
type cached struct {
	schedule        TariffSchedule
	fetchedAt       time.Time
	validity        time.Duration
}

func (c cached) isValid(now time.Time) bool {
	return !c.fetchedAt.IsZero() && now.Sub(c.fetchedAt) < c.validity
}

// State is a read-only snapshot of the aggregator usable by the planner.
type State struct {
	Solar          TariffSchedule
	Weather        TariffSchedule
	Storm          TariffSchedule
	Tariff         TariffSchedule
	LastSolarAt    time.Time
	LastWeatherAt  time.Time
	LastStormAt    time.Time
	LastTariffAt   time.Time
}

// Aggregator merges the four provider slots and runs spike detection.
type Aggregator struct {
	mu sync.RWMutex

	solar, weather, storm, tariff cached

	solarProvider, weatherProvider, stormProvider, tariffProvider Provider

	spikeThresholdCents float64
	spike               *SpikeEvent
}

// New creates an Aggregator. Any provider may be nil if that source is not
// configured; update_all silently skips nil providers.
func New(solar, weather, storm, tariff Provider, solarValidity, weatherValidity, stormValidity, tariffValidity time.Duration, spikeThresholdCents float64) *Aggregator {
	return &Aggregator{
		solarProvider:       solar,
		weatherProvider:     weather,
		stormProvider:       storm,
		tariffProvider:      tariff,
		solar:               cached{validity: solarValidity},
		weather:             cached{validity: weatherValidity},
		storm:               cached{validity: stormValidity},
		tariff:              cached{validity: tariffValidity},
		spikeThresholdCents: spikeThresholdCents,
	}
}

// UpdateResult reports one update_all outcome.
type UpdateResult struct {
	SolarErr, WeatherErr, StormErr, TariffErr error
}

// UpdateAll attempts to refresh each provider. When respectValidity is
// true, providers whose cached data is still fresh are skipped. One
// provider's failure never blocks the others; the last good data is
// preserved on failure (spec §4.1, §7 TransientIo).
func (a *Aggregator) UpdateAll(ctx context.Context, respectValidity bool) UpdateResult {
	now := time.Now()
	var res UpdateResult

	a.mu.Lock()
	defer a.mu.Unlock()

	res.SolarErr = a.refreshLocked(ctx, a.solarProvider, &a.solar, now, respectValidity)
	res.WeatherErr = a.refreshLocked(ctx, a.weatherProvider, &a.weather, now, respectValidity)
	res.StormErr = a.refreshLocked(ctx, a.stormProvider, &a.storm, now, respectValidity)

	prevTariff := a.tariff.schedule
	res.TariffErr = a.refreshLocked(ctx, a.tariffProvider, &a.tariff, now, respectValidity)
	if res.TariffErr == nil {
		a.detectSpikeLocked(now, prevTariff)
	}

	return res
}

func (a *Aggregator) refreshLocked(ctx context.Context, p Provider, c *cached, now time.Time, respectValidity bool) error {
	if p == nil {
		return nil
	}
	if respectValidity && c.isValid(now) {
		return nil
	}
	schedule, err := p.Fetch(ctx)
	if err != nil {
		return err
	}
	c.schedule = schedule
	c.fetchedAt = now
	return nil
}

// State returns a read-only snapshot of the aggregator.
func (a *Aggregator) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return State{
		Solar:         a.solar.schedule,
		Weather:       a.weather.schedule,
		Storm:         a.storm.schedule,
		Tariff:        a.tariff.schedule,
		LastSolarAt:   a.solar.fetchedAt,
		LastWeatherAt: a.weather.fetchedAt,
		LastStormAt:   a.storm.fetchedAt,
		LastTariffAt:  a.tariff.fetchedAt,
	}
}

// IsStale reports true iff either the tariff or solar data is older than
// maxAge (spec §4.1).
func (a *Aggregator) IsStale(maxAge time.Duration) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	now := time.Now()
	if a.tariff.fetchedAt.IsZero() || now.Sub(a.tariff.fetchedAt) > maxAge {
		return true
	}
	if a.solar.fetchedAt.IsZero() || now.Sub(a.solar.fetchedAt) > maxAge {
		return true
	}
	return false
}
