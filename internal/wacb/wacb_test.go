package wacb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCharge_WeightedAverage(t *testing.T) {
	tr := NewTracker(5, 10000, 0.5) // 5000 Wh stored at 5c/kWh
	tr.RecordCharge(1000, 20)       // charge 1000Wh at 20c/kWh

	got := tr.State()
	want := (5000.0*5 + 1000*20) / 6000.0
	assert.InDelta(t, want, got.WACBCents, 1e-9)
	assert.InDelta(t, 6000, got.StoredWh, 1e-9)
}

func TestRecordCharge_NonPositiveIsNoOp(t *testing.T) {
	tr := NewTracker(5, 10000, 0.5)
	before := tr.State()
	tr.RecordCharge(0, 99)
	tr.RecordCharge(-10, 99)
	assert.Equal(t, before, tr.State())
}

func TestRecordDischarge_LeavesWACBUnchanged(t *testing.T) {
	tr := NewTracker(10, 10000, 0.5) // 5000 Wh @ 10c
	basis := tr.RecordDischarge(2000)

	require.InDelta(t, 20, basis, 1e-9) // 2 kWh * 10c
	got := tr.State()
	assert.InDelta(t, 10, got.WACBCents, 1e-9)
	assert.InDelta(t, 3000, got.StoredWh, 1e-9)
}

func TestRecordDischarge_FloorsAtZero(t *testing.T) {
	tr := NewTracker(10, 10000, 0.1) // 1000 Wh
	tr.RecordDischarge(5000)
	got := tr.State()
	assert.Equal(t, 0.0, got.StoredWh)
	assert.Equal(t, 10.0, got.WACBCents)
}

func TestSyncSOC_NeverAltersWACB(t *testing.T) {
	tr := NewTracker(15, 10000, 0.2)
	tr.SyncSOC(0.7, 10000)
	got := tr.State()
	assert.InDelta(t, 7000, got.StoredWh, 1e-9)
	assert.Equal(t, 15.0, got.WACBCents)
}

func TestIdempotentUpdateLaw(t *testing.T) {
	// charging (E,R) then (0,R') equals charging (E,R)
	a := NewTracker(8, 10000, 0.3)
	a.RecordCharge(500, 25)

	b := NewTracker(8, 10000, 0.3)
	b.RecordCharge(500, 25)
	b.RecordCharge(0, 999)

	assert.Equal(t, a.State(), b.State())
}
