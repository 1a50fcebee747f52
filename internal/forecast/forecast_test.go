package forecast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	schedule TariffSchedule
	err      error
	healthy  bool
	calls    int
}

func (s *stubProvider) Fetch(ctx context.Context) (TariffSchedule, error) {
	s.calls++
	if s.err != nil {
		return TariffSchedule{}, s.err
	}
	return s.schedule, nil
}
func (s *stubProvider) IsHealthy() bool { return s.healthy }
func (s *stubProvider) Close() error    { return nil }

func slotAt(start time.Time, importCents float64) Slot {
	return Slot{Start: start, End: start.Add(30 * time.Minute), ImportRateCents: importCents}
}

func TestUpdateAll_OneProviderFailureDoesNotBlockOthers(t *testing.T) {
	now := time.Now()
	tariff := &stubProvider{schedule: TariffSchedule{Slots: []Slot{slotAt(now.Add(-time.Minute), 10)}}}
	solar := &stubProvider{err: errors.New("boom")}

	agg := New(solar, nil, nil, tariff, time.Hour, time.Hour, time.Hour, time.Hour, 80)
	res := agg.UpdateAll(context.Background(), false)

	require.Error(t, res.SolarErr)
	require.NoError(t, res.TariffErr)

	state := agg.State()
	assert.Len(t, state.Tariff.Slots, 1)
}

func TestUpdateAll_RespectsValidityWindow(t *testing.T) {
	tariff := &stubProvider{schedule: TariffSchedule{}}
	agg := New(nil, nil, nil, tariff, time.Hour, time.Hour, time.Hour, time.Hour, 80)

	agg.UpdateAll(context.Background(), true)
	agg.UpdateAll(context.Background(), true)

	assert.Equal(t, 1, tariff.calls)
}

func TestSpikeDetection_BeginsAndEnds(t *testing.T) {
	now := time.Now()
	tariff := &stubProvider{schedule: TariffSchedule{Slots: []Slot{slotAt(now.Add(-time.Minute), 100)}}}
	agg := New(nil, nil, nil, tariff, time.Hour, time.Hour, time.Hour, time.Hour, 80)

	agg.UpdateAll(context.Background(), false)
	assert.True(t, agg.IsSpikeActive())

	tariff.schedule = TariffSchedule{Slots: []Slot{slotAt(now.Add(-time.Minute), 10)}}
	agg.UpdateAll(context.Background(), false)
	assert.False(t, agg.IsSpikeActive())
}

func TestIsStale(t *testing.T) {
	tariff := &stubProvider{schedule: TariffSchedule{}}
	solar := &stubProvider{schedule: TariffSchedule{}}
	agg := New(solar, nil, nil, tariff, time.Hour, time.Hour, time.Hour, time.Hour, 80)

	assert.True(t, agg.IsStale(time.Minute)) // never fetched

	agg.UpdateAll(context.Background(), false)
	assert.False(t, agg.IsStale(time.Hour))
}
