package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homevolt/energy-core/internal/inverter"
	"github.com/homevolt/energy-core/internal/planner"
)

func TestMemoryStore_SaveAndQueryHistoricalData(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.SaveHistoricalDatum(ctx, HistoricalDatum{Type: "load_w", RecordedAt: now.Add(-time.Hour), Value: 500}))
	require.NoError(t, s.SaveHistoricalDatum(ctx, HistoricalDatum{Type: "load_w", RecordedAt: now, Value: 700}))
	require.NoError(t, s.SaveHistoricalDatum(ctx, HistoricalDatum{Type: "solar_w", RecordedAt: now, Value: 1200}))

	out, err := s.LoadHistoricalData(ctx, "load_w", now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 700.0, out[0].Value)
}

func TestMemoryStore_TracksSavedPlansAndTelemetry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SavePlan(ctx, planner.Plan{Version: 1}))
	require.NoError(t, s.SaveTelemetry(ctx, inverter.Telemetry{SOC: 0.5}))

	assert.Len(t, s.Plans(), 1)
	assert.Equal(t, 1, s.TelemetryCount())
}

func TestMemoryStore_CloseIsNoOp(t *testing.T) {
	s := NewMemoryStore()
	assert.NoError(t, s.Close())
}
