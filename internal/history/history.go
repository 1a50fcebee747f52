// Package history builds simple day-of-week/hour-of-day averaging profiles
// from historical telemetry, used as a fallback predictor when live
// forecasts are unavailable or stale. This is the "simple day-of-week/
// hour-of-day averaging" the spec's non-goals explicitly permit (spec §1:
// "Non-goals: ... predictive model training beyond simple day-of-week/
// hour-of-day averaging"), adapted from original_source's
// history/patterns.py and history/prediction.py into the teacher's Go
// idiom.
package history

import (
	"time"
)

// Datum is one historical sample: a recorded value at a point in time.
type Datum struct {
	RecordedAt time.Time
	Value      float64
}

// HourlyProfile is the average value observed at each hour of day.
type HourlyProfile struct {
	values [24]float64
	counts [24]int
}

// Add folds one sample into the profile.
func (p *HourlyProfile) Add(hour int, value float64) {
	if hour < 0 || hour > 23 {
		return
	}
	p.values[hour] += value
	p.counts[hour]++
}

// Get returns the average value at hour, or def if no samples exist.
func (p *HourlyProfile) Get(hour int, def float64) float64 {
	if hour < 0 || hour > 23 || p.counts[hour] == 0 {
		return def
	}
	return p.values[hour] / float64(p.counts[hour])
}

// DayOfWeekProfile groups HourlyProfiles by day of week (0=Sunday, per
// time.Weekday).
type DayOfWeekProfile struct {
	days [7]HourlyProfile
}

// BuildDayOfWeekProfile aggregates records, grouped by local day-of-week
// and hour, into a DayOfWeekProfile.
func BuildDayOfWeekProfile(records []Datum, loc *time.Location) DayOfWeekProfile {
	var profile DayOfWeekProfile
	for _, r := range records {
		local := r.RecordedAt.In(loc)
		profile.days[int(local.Weekday())].Add(local.Hour(), r.Value)
	}
	return profile
}

// Get returns the average value for the given day-of-week and hour.
func (p DayOfWeekProfile) Get(day time.Weekday, hour int, def float64) float64 {
	return p.days[int(day)].Get(hour, def)
}

// WeightedMovingAverage computes a weighted moving average of values. With
// no explicit weights, the weights rise linearly from 0.1 for the oldest
// value (start of slice) to 1.0 for the most recent (end of slice), mirroring original_source's
// weighted_moving_average.
func WeightedMovingAverage(values []float64, weights []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if weights == nil {
		n := len(values)
		weights = make([]float64, n)
		for i := range weights {
			denom := n - 1
			if denom < 1 {
				denom = 1
			}
			weights[i] = 0.1 + 0.9*(float64(i)/float64(denom))
		}
	}

	var total, weightSum float64
	for i, v := range values {
		total += v * weights[i]
		weightSum += weights[i]
	}
	if weightSum <= 0 {
		return 0
	}
	return total / weightSum
}
