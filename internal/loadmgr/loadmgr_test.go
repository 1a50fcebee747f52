package loadmgr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	state  State
	powerW float64
}

func (f *fakeController) TurnOn() error  { f.state = StateOn; return nil }
func (f *fakeController) TurnOff() error { f.state = StateOff; return nil }
func (f *fakeController) Status() (State, float64, error) {
	return f.state, f.powerW, nil
}

func TestExecuteSchedule_TurnsOnScheduledLoads(t *testing.T) {
	m := New()
	ctrl := &fakeController{state: StateOff}
	m.Register("ev", "ev charger", 3, 2000, ctrl)

	m.ExecuteSchedule(map[string]bool{"ev charger": true}, time.Now())
	assert.Equal(t, StateOn, ctrl.state)
}

func TestExecuteSchedule_TurnsOffPreviouslyShed(t *testing.T) {
	m := New()
	ctrl := &fakeController{state: StateOn}
	m.Register("pool", "pool pump", 4, 1000, ctrl)
	m.ShedForSpike(2)
	require.Equal(t, StateOff, ctrl.state)

	m.ExecuteSchedule(map[string]bool{}, time.Now())
	assert.Equal(t, StateOff, ctrl.state)
}

func TestExecuteSchedule_RespectsManualOverride(t *testing.T) {
	m := New()
	ctrl := &fakeController{state: StateOn}
	m.Register("pool", "pool pump", 4, 1000, ctrl)
	now := time.Now()
	m.SetLoadOverride("pool", true, time.Hour, now)

	m.ExecuteSchedule(map[string]bool{}, now.Add(time.Minute))
	assert.Equal(t, StateOn, ctrl.state) // override holds it on even though not scheduled
}

func TestExecuteSchedule_OverrideExpires(t *testing.T) {
	m := New()
	ctrl := &fakeController{state: StateOn}
	m.Register("pool", "pool pump", 4, 1000, ctrl)
	now := time.Now()
	m.SetLoadOverride("pool", true, time.Minute, now)

	m.ExecuteSchedule(map[string]bool{}, now.Add(2*time.Minute))
	assert.Equal(t, StateOn, ctrl.state) // override expired but load was neither scheduled nor shed, so left alone
}

func TestShedForSpike_TurnsOffLowerPriorityOnly(t *testing.T) {
	m := New()
	high := &fakeController{state: StateOn}
	low := &fakeController{state: StateOn}
	m.Register("fridge", "fridge", 1, 150, high)
	m.Register("pool", "pool pump", 4, 1000, low)

	m.ShedForSpike(2)
	assert.Equal(t, StateOn, high.state)
	assert.Equal(t, StateOff, low.state)
}

func TestRestoreAfterSpike_ClearsShedFlag(t *testing.T) {
	m := New()
	ctrl := &fakeController{state: StateOn}
	m.Register("pool", "pool pump", 4, 1000, ctrl)
	m.ShedForSpike(2)
	m.RestoreAfterSpike()

	m.ExecuteSchedule(map[string]bool{"pool pump": true}, time.Now())
	assert.Equal(t, StateOn, ctrl.state)
}

func TestShedForOverload_ShedsLeastEssentialFirst(t *testing.T) {
	m := New()
	critical := &fakeController{state: StateOn}
	optional := &fakeController{state: StateOn}
	m.Register("fridge", "fridge", 1, 150, critical)
	m.Register("pool", "pool pump", 5, 3000, optional)

	m.ShedForOverload(5000, 3000)
	assert.Equal(t, StateOn, critical.state)
	assert.Equal(t, StateOff, optional.state)
}

func TestShedForOverload_NoActionBelowCap(t *testing.T) {
	m := New()
	ctrl := &fakeController{state: StateOn}
	m.Register("pool", "pool pump", 5, 3000, ctrl)

	m.ShedForOverload(2000, 3000)
	assert.Equal(t, StateOn, ctrl.state)
}

func TestTurnAllOff_StopsEverything(t *testing.T) {
	m := New()
	a := &fakeController{state: StateOn}
	b := &fakeController{state: StateOn}
	m.Register("a", "a", 1, 100, a)
	m.Register("b", "b", 5, 100, b)

	m.TurnAllOff("emergency")
	assert.Equal(t, StateOff, a.state)
	assert.Equal(t, StateOff, b.state)
}
