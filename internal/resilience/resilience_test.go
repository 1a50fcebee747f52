package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/homevolt/energy-core/internal/inverter"
)

func TestEvaluate_AllHealthyIsNormal(t *testing.T) {
	c := NewChecker(3)
	assert.Equal(t, Normal, c.Evaluate())
}

func TestEvaluate_InverterUnhealthyIsDegradedHardware(t *testing.T) {
	c := NewChecker(3)
	now := time.Now()
	c.RecordFailure(ProviderInverter, now)
	c.RecordFailure(ProviderInverter, now)
	c.RecordFailure(ProviderInverter, now)

	assert.Equal(t, DegradedHardware, c.Evaluate())
}

func TestEvaluate_TariffAndForecastUnhealthyIsSafeMode(t *testing.T) {
	c := NewChecker(1)
	now := time.Now()
	c.RecordFailure(ProviderTariff, now)
	c.RecordFailure(ProviderSolarForecast, now)

	assert.Equal(t, SafeMode, c.Evaluate())
}

func TestEvaluate_TariffAloneIsDegradedTariff(t *testing.T) {
	c := NewChecker(1)
	c.RecordFailure(ProviderTariff, time.Now())
	assert.Equal(t, DegradedTariff, c.Evaluate())
}

func TestEvaluate_ForecastAloneIsDegradedForecast(t *testing.T) {
	c := NewChecker(1)
	c.RecordFailure(ProviderWeatherForecast, time.Now())
	assert.Equal(t, DegradedForecast, c.Evaluate())
}

func TestRecordSuccess_ResetsFailureStreak(t *testing.T) {
	c := NewChecker(2)
	now := time.Now()
	c.RecordFailure(ProviderTariff, now)
	c.RecordSuccess(ProviderTariff, now)

	assert.True(t, c.IsHealthy(ProviderTariff))
}

func TestFallbackCommand_SafeModeIsZeroExportPriority2(t *testing.T) {
	cmd := FallbackCommand(SafeMode, time.Now())
	assert.Equal(t, inverter.SelfUseZeroExport, cmd.Mode)
	assert.Equal(t, 2, cmd.Priority)
}

func TestFallbackCommand_DegradedHardwareIsPriority1(t *testing.T) {
	cmd := FallbackCommand(DegradedHardware, time.Now())
	assert.Equal(t, inverter.SelfUse, cmd.Mode)
	assert.Equal(t, 1, cmd.Priority)
}
