package inverter

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/goburrow/modbus"
)

// Register layout for a generic hybrid inverter exposing its plant state
// over Modbus holding/input registers. Offsets are configurable per
// deployment (config.Hardware) rather than hard-coded to one vendor's
// register map, generalising the teacher's Sigenergy-specific layout
// (sigenergy/modbus_client.go) into a contract any Modbus inverter can be
// mapped onto.
type RegisterMap struct {
	SOCRegister      uint16 // input register, value = SOC * 10 (one decimal percent)
	BatteryWRegister uint16 // input register, signed, value = battery power in watts/10
	SolarWRegister   uint16 // input register, unsigned, value = solar power in watts/10
	GridWRegister    uint16 // input register, signed, value = grid power in watts/10
	LoadWRegister    uint16 // input register, unsigned, value = load power in watts/10
	ModeRegister     uint16 // holding register, written with the numeric mode code
	PowerRegister    uint16 // holding register, written with the absolute target power in watts/10
}

// DefaultRegisterMap is a plausible default layout used when the
// deployment does not override one.
var DefaultRegisterMap = RegisterMap{
	SOCRegister:      30000,
	BatteryWRegister: 30002,
	SolarWRegister:   30004,
	GridWRegister:    30006,
	LoadWRegister:    30008,
	ModeRegister:     40000,
	PowerRegister:    40001,
}

var modeCode = map[Mode]uint16{
	SelfUse:               0,
	SelfUseZeroExport:      1,
	ForceCharge:            2,
	ForceDischarge:         3,
	ForceChargeZeroImport:  4,
}

// ModbusAdapter is a generic reference implementation of Adapter (spec §6)
// over a Modbus TCP transport, adapted from the teacher's
// SigenModbusClient into a vendor-neutral register map.
type ModbusAdapter struct {
	address string
	slaveID byte
	regs    RegisterMap
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

// NewModbusAdapter creates a TCP-backed ModbusAdapter. Connect must be
// called before use.
func NewModbusAdapter(address string, slaveID byte, regs RegisterMap) *ModbusAdapter {
	return &ModbusAdapter{address: address, slaveID: slaveID, regs: regs}
}

func (a *ModbusAdapter) Connect(ctx context.Context) error {
	handler := modbus.NewTCPClientHandler(a.address)
	handler.SlaveId = a.slaveID
	handler.Timeout = 5 * time.Second
	if err := handler.Connect(); err != nil {
		return fmt.Errorf("%w: modbus connect: %v", ErrIO, err)
	}
	a.handler = handler
	a.client = modbus.NewClient(handler)
	return nil
}

func (a *ModbusAdapter) Disconnect() error {
	if a.handler == nil {
		return nil
	}
	err := a.handler.Close()
	a.handler = nil
	a.client = nil
	return err
}

func (a *ModbusAdapter) IsConnected() bool {
	return a.client != nil
}

func (a *ModbusAdapter) GetTelemetry(ctx context.Context) (Telemetry, error) {
	if a.client == nil {
		return Telemetry{}, fmt.Errorf("%w: not connected", ErrIO)
	}

	soc, err := a.readSigned(a.regs.SOCRegister)
	if err != nil {
		return Telemetry{}, err
	}
	batteryW, err := a.readSigned(a.regs.BatteryWRegister)
	if err != nil {
		return Telemetry{}, err
	}
	solarW, err := a.readSigned(a.regs.SolarWRegister)
	if err != nil {
		return Telemetry{}, err
	}
	gridW, err := a.readSigned(a.regs.GridWRegister)
	if err != nil {
		return Telemetry{}, err
	}
	loadW, err := a.readSigned(a.regs.LoadWRegister)
	if err != nil {
		return Telemetry{}, err
	}

	return Telemetry{
		SOC:           float64(soc) / 1000.0,
		BatteryW:      float64(batteryW) * 10,
		SolarW:        float64(solarW) * 10,
		GridW:         float64(gridW) * 10,
		LoadW:         float64(loadW) * 10,
		GridAvailable: true,
		Timestamp:     time.Now(),
	}, nil
}

func (a *ModbusAdapter) readSigned(reg uint16) (int32, error) {
	data, err := a.client.ReadInputRegisters(reg, 1)
	if err != nil {
		return 0, fmt.Errorf("%w: read register %d: %v", ErrIO, reg, err)
	}
	return int32(int16(binary.BigEndian.Uint16(data))), nil
}

// SendCommand is idempotent: writing the same mode/power twice in a row
// produces the same register state both times.
func (a *ModbusAdapter) SendCommand(ctx context.Context, cmd Command) (CommandResult, error) {
	if a.client == nil {
		return CommandResult{}, fmt.Errorf("%w: not connected", ErrIO)
	}

	start := time.Now()
	code, ok := modeCode[cmd.Mode]
	if !ok {
		return CommandResult{}, fmt.Errorf("%w: unsupported mode %s", ErrIO, cmd.Mode)
	}

	if _, err := a.client.WriteSingleRegister(a.regs.ModeRegister, code); err != nil {
		return CommandResult{Success: false, Message: err.Error()}, fmt.Errorf("%w: write mode: %v", ErrIO, err)
	}
	powerScaled := uint16(cmd.PowerW / 10)
	if _, err := a.client.WriteSingleRegister(a.regs.PowerRegister, powerScaled); err != nil {
		return CommandResult{Success: false, Message: err.Error()}, fmt.Errorf("%w: write power: %v", ErrIO, err)
	}

	return CommandResult{
		Success:   true,
		LatencyMS: time.Since(start).Milliseconds(),
		Message:   "ok",
	}, nil
}
