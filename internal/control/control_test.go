package control

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homevolt/energy-core/internal/inverter"
)

func TestArbitrate_SafetyOverridesDischargeAtMinSOC(t *testing.T) {
	candidate := Command{Mode: inverter.ForceDischarge, PowerW: 3000, Priority: 4}
	dec := Arbitrate(candidate, HierarchyInput{SOC: 0.05, SOCMinHard: 0.1, GridAvailable: true}, time.Now())

	assert.True(t, dec.Overridden)
	assert.Equal(t, 1, dec.WinningLevel)
	assert.Equal(t, inverter.ForceCharge, dec.Command.Mode)
	assert.Equal(t, int32(3000), dec.Command.PowerW)
}

func TestArbitrate_SafetyNoGridFallsBackToSelfUse(t *testing.T) {
	candidate := Command{Mode: inverter.SelfUse, Priority: 4}
	dec := Arbitrate(candidate, HierarchyInput{SOC: 0.02, SOCMinHard: 0.1, GridAvailable: false}, time.Now())

	assert.True(t, dec.Overridden)
	assert.Equal(t, inverter.SelfUse, dec.Command.Mode)
}

func TestArbitrate_SafetyBlocksOverchargeAtMaxSOC(t *testing.T) {
	candidate := Command{Mode: inverter.ForceCharge, Priority: 4}
	dec := Arbitrate(candidate, HierarchyInput{SOC: 0.97, SOCMaxHard: 0.95, GridAvailable: true}, time.Now())

	assert.True(t, dec.Overridden)
	assert.Equal(t, inverter.SelfUse, dec.Command.Mode)
}

func TestArbitrate_StormReserveBlocksDischarge(t *testing.T) {
	candidate := Command{Mode: inverter.ForceDischarge, Priority: 4}
	dec := Arbitrate(candidate, HierarchyInput{
		SOC: 0.3, SOCMinHard: 0.05, StormActive: true, StormReserve: 0.4, GridAvailable: true,
	}, time.Now())

	assert.True(t, dec.Overridden)
	assert.Equal(t, 2, dec.WinningLevel)
	assert.Equal(t, inverter.SelfUse, dec.Command.Mode)
}

func TestArbitrate_PassesThroughWhenNoOverride(t *testing.T) {
	candidate := Command{Mode: inverter.ForceCharge, Priority: 4}
	dec := Arbitrate(candidate, HierarchyInput{SOC: 0.5, SOCMinHard: 0.1, SOCMaxHard: 0.95, GridAvailable: true}, time.Now())

	assert.False(t, dec.Overridden)
	assert.Equal(t, inverter.ForceCharge, dec.Command.Mode)
}

func TestGuard_DwellSuppressesRapidModeChange(t *testing.T) {
	g := NewGuard(10*time.Minute, time.Hour, 100)
	now := time.Now()

	g.Record(Command{Mode: inverter.SelfUse, Priority: 4}, now)
	allowed := g.Allow(Command{Mode: inverter.ForceCharge, Priority: 4}, now.Add(time.Minute))
	assert.False(t, allowed)
}

func TestGuard_DwellAllowsAfterWindow(t *testing.T) {
	g := NewGuard(10*time.Minute, time.Hour, 100)
	now := time.Now()

	g.Record(Command{Mode: inverter.SelfUse, Priority: 4}, now)
	allowed := g.Allow(Command{Mode: inverter.ForceCharge, Priority: 4}, now.Add(11*time.Minute))
	assert.True(t, allowed)
}

func TestGuard_SafetyPriorityAlwaysPasses(t *testing.T) {
	g := NewGuard(10*time.Minute, time.Hour, 100)
	now := time.Now()

	g.Record(Command{Mode: inverter.SelfUse, Priority: 4}, now)
	allowed := g.Allow(Command{Mode: inverter.ForceCharge, Source: "safety", Priority: 1}, now.Add(time.Second))
	assert.True(t, allowed)
}

func TestGuard_RateLimitSuppressesBurst(t *testing.T) {
	g := NewGuard(0, time.Minute, 2)
	now := time.Now()

	g.Record(Command{Mode: inverter.SelfUse, Priority: 4}, now)
	g.Record(Command{Mode: inverter.ForceCharge, Priority: 4}, now.Add(time.Second))

	allowed := g.Allow(Command{Mode: inverter.SelfUse, Priority: 4}, now.Add(2*time.Second))
	assert.False(t, allowed)
}

func TestGuard_ResetClearsState(t *testing.T) {
	g := NewGuard(10*time.Minute, time.Hour, 1)
	now := time.Now()
	g.Record(Command{Mode: inverter.SelfUse, Priority: 4}, now)

	g.Reset()
	allowed := g.Allow(Command{Mode: inverter.ForceCharge, Priority: 4}, now.Add(time.Second))
	assert.True(t, allowed)
}

func TestOverride_SetAndGetCommand(t *testing.T) {
	var o Override
	now := time.Now()
	o.Set(inverter.ForceCharge, 2000, 10*time.Minute, now)

	cmd, ok := o.GetCommand(now.Add(time.Minute))
	require.True(t, ok)
	assert.Equal(t, inverter.ForceCharge, cmd.Mode)
	assert.Equal(t, 3, cmd.Priority)
	assert.Equal(t, "manual", cmd.Source)
}

func TestOverride_ExpiresAfterTimeout(t *testing.T) {
	var o Override
	now := time.Now()
	o.Set(inverter.ForceCharge, 2000, time.Minute, now)

	assert.False(t, o.IsActive(now.Add(2*time.Minute)))
	_, ok := o.GetCommand(now.Add(2 * time.Minute))
	assert.False(t, ok)
}

func TestOverride_AutoModeClears(t *testing.T) {
	var o Override
	now := time.Now()
	o.Set(inverter.ForceCharge, 2000, time.Minute, now)
	o.Set(ModeAuto, 0, 0, now)

	assert.False(t, o.IsActive(now))
}

func TestOverride_RemainingSecondsCountsDown(t *testing.T) {
	var o Override
	now := time.Now()
	o.Set(inverter.ForceCharge, 2000, time.Minute, now)

	remaining := o.RemainingSeconds(now.Add(30 * time.Second))
	assert.InDelta(t, 30, remaining, 1)
}
