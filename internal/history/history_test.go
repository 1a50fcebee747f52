package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHourlyProfile_AveragesSamples(t *testing.T) {
	var p HourlyProfile
	p.Add(14, 100)
	p.Add(14, 200)
	assert.Equal(t, 150.0, p.Get(14, 0))
}

func TestHourlyProfile_DefaultsOnNoSamples(t *testing.T) {
	var p HourlyProfile
	assert.Equal(t, 42.0, p.Get(3, 42))
}

func TestHourlyProfile_RejectsOutOfRangeHour(t *testing.T) {
	var p HourlyProfile
	p.Add(25, 100)
	p.Add(-1, 100)
	assert.Equal(t, 0.0, p.Get(25, 0))
}

func TestBuildDayOfWeekProfile_GroupsByLocalDayAndHour(t *testing.T) {
	loc := time.UTC
	records := []Datum{
		{RecordedAt: time.Date(2026, 1, 5, 14, 0, 0, 0, loc), Value: 1000}, // Monday
		{RecordedAt: time.Date(2026, 1, 12, 14, 0, 0, 0, loc), Value: 2000},
		{RecordedAt: time.Date(2026, 1, 6, 14, 0, 0, 0, loc), Value: 50}, // Tuesday
	}

	profile := BuildDayOfWeekProfile(records, loc)

	assert.Equal(t, 1500.0, profile.Get(time.Monday, 14, 0))
	assert.Equal(t, 50.0, profile.Get(time.Tuesday, 14, 0))
	assert.Equal(t, 0.0, profile.Get(time.Wednesday, 14, 0))
}

func TestWeightedMovingAverage_EmptyIsZero(t *testing.T) {
	assert.Equal(t, 0.0, WeightedMovingAverage(nil, nil))
}

func TestWeightedMovingAverage_WeightsRecentMore(t *testing.T) {
	flat := WeightedMovingAverage([]float64{10, 10, 10}, []float64{1, 1, 1})
	assert.Equal(t, 10.0, flat)

	increasing := WeightedMovingAverage([]float64{0, 0, 100}, nil)
	// default weighting biases toward the end of the slice
	assert.Greater(t, increasing, 50.0)
}

func TestWeightedMovingAverage_ExplicitWeights(t *testing.T) {
	avg := WeightedMovingAverage([]float64{10, 20}, []float64{1, 3})
	assert.InDelta(t, 17.5, avg, 0.0001)
}
