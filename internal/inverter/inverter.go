// Package inverter defines the hardware contract the core drives: the
// operating modes a hybrid inverter accepts, the telemetry it reports, and
// the Adapter interface external vendor-specific transports implement
// (spec §6). No vendor adapter lives in this package — FoxESS/Modbus/Shelly
// style transports are named out of scope; internal/inverter/modbus.go
// provides a generic, non-vendor-specific reference transport instead.
package inverter

import (
	"context"
	"errors"
	"time"
)

// Mode is one of the operating modes a hybrid inverter accepts remotely.
type Mode string

const (
	SelfUse              Mode = "SELF_USE"
	SelfUseZeroExport    Mode = "SELF_USE_ZERO_EXPORT"
	ForceCharge          Mode = "FORCE_CHARGE"
	ForceDischarge       Mode = "FORCE_DISCHARGE"
	ForceChargeZeroImport Mode = "FORCE_CHARGE_ZERO_IMPORT"
)

// IsRemoteControl reports whether mode requires watchdog refreshes to keep
// the inverter from reverting to its native self-use behaviour (spec §4.9B).
func (m Mode) IsRemoteControl() bool {
	return m == ForceCharge || m == ForceDischarge
}

// Telemetry is one instantaneous reading from the inverter. Sign
// conventions (spec §6): battery power positive = charging; grid power
// positive = importing.
type Telemetry struct {
	SOC         float64 // fraction in [0,1]
	BatteryW    float64 // signed; positive = charging
	SolarW      float64 // >= 0
	GridW       float64 // signed; positive = importing
	LoadW       float64 // >= 0
	VoltageV    *float64
	TempC       *float64
	GridAvailable bool
	Timestamp   time.Time
}

// Command is the wire-level instruction sent to the inverter.
type Command struct {
	Mode         Mode
	PowerW       int32 // absolute value
	ExportLimitW *int32
}

// CommandResult reports the outcome of dispatching a Command.
type CommandResult struct {
	Success   bool
	LatencyMS int64
	Message   string
}

// ErrIO is returned by Adapter methods on transport failure (spec §7:
// TransientIo). Callers retry on the next scheduled tick.
var ErrIO = errors.New("inverter: transport I/O error")

// Adapter is the external collaborator contract for a hybrid inverter
// (spec §6). Implementations must be idempotent for identical commands:
// sending the same Command twice in a row must not double-apply side
// effects. FORCE_CHARGE/FORCE_DISCHARGE require a watchdog refresh within
// the adapter's configured watchdog timeout or the inverter reverts to
// native self-use.
type Adapter interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	GetTelemetry(ctx context.Context) (Telemetry, error)
	SendCommand(ctx context.Context, cmd Command) (CommandResult, error)
}
