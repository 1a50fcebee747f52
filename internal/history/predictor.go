package history

import "time"

// LoadPredictor predicts future household load from a rebuilt
// day-of-week/hour-of-day profile, used when a live load forecast is
// absent (original_source's LoadPredictor, adapted).
type LoadPredictor struct {
	loc     *time.Location
	profile *DayOfWeekProfile
}

// NewLoadPredictor creates a predictor resolving local hours in loc.
func NewLoadPredictor(loc *time.Location) *LoadPredictor {
	return &LoadPredictor{loc: loc}
}

// RebuildProfile rebuilds the profile from recent history. Returns false
// if there is insufficient history (fewer than 48 records, i.e. under one
// day at 30-minute resolution).
func (p *LoadPredictor) RebuildProfile(records []Datum) bool {
	if len(records) < 48 {
		return false
	}
	profile := BuildDayOfWeekProfile(records, p.loc)
	p.profile = &profile
	return true
}

// Predict returns the predicted load in watts at dt, falling back to
// defaultW if no profile has been built yet.
func (p *LoadPredictor) Predict(dt time.Time, defaultW float64) float64 {
	if p.profile == nil {
		return defaultW
	}
	local := dt.In(p.loc)
	return p.profile.Get(local.Weekday(), local.Hour(), defaultW)
}

// SolarPredictor predicts solar production from a day-of-week/hour
// profile, adjusted by current cloud cover relative to the profile's
// implicit ~40% baseline (original_source's SolarPredictor, adapted).
type SolarPredictor struct {
	loc     *time.Location
	profile *DayOfWeekProfile
}

// NewSolarPredictor creates a predictor resolving local hours in loc.
func NewSolarPredictor(loc *time.Location) *SolarPredictor {
	return &SolarPredictor{loc: loc}
}

// RebuildProfile rebuilds the profile from recent history.
func (p *SolarPredictor) RebuildProfile(records []Datum) bool {
	if len(records) < 48 {
		return false
	}
	profile := BuildDayOfWeekProfile(records, p.loc)
	p.profile = &profile
	return true
}

const baselineCloudPct = 40.0

// Predict returns the predicted solar production in watts at dt. If
// cloudCoverPct is non-nil, the historical average is adjusted toward more
// or less production relative to the implicit baseline cloud cover.
func (p *SolarPredictor) Predict(dt time.Time, cloudCoverPct *float64) float64 {
	if p.profile == nil {
		return 0
	}
	local := dt.In(p.loc)
	base := p.profile.Get(local.Weekday(), local.Hour(), 0)

	if cloudCoverPct == nil {
		return max0(base)
	}

	adjustment := 1.0 + (baselineCloudPct-*cloudCoverPct)/100.0*0.75
	return max0(base * adjustment)
}

func max0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
