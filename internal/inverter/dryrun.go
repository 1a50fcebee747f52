package inverter

import (
	"context"
	"fmt"
	"log"
)

// DryRunAdapter wraps a real Adapter, passing telemetry reads through
// unchanged but logging instead of sending write commands, mirroring
// the teacher's DRY-RUN logging convention ("DRY-RUN: Would ...").
type DryRunAdapter struct {
	inner  Adapter
	logger *log.Logger
}

// NewDryRunAdapter wraps inner for dry-run operation.
func NewDryRunAdapter(inner Adapter, logger *log.Logger) *DryRunAdapter {
	if logger == nil {
		logger = log.Default()
	}
	return &DryRunAdapter{inner: inner, logger: logger}
}

func (a *DryRunAdapter) Connect(ctx context.Context) error    { return a.inner.Connect(ctx) }
func (a *DryRunAdapter) Disconnect() error                    { return a.inner.Disconnect() }
func (a *DryRunAdapter) IsConnected() bool                    { return a.inner.IsConnected() }
func (a *DryRunAdapter) GetTelemetry(ctx context.Context) (Telemetry, error) {
	return a.inner.GetTelemetry(ctx)
}

// SendCommand never reaches the wrapped adapter; it only logs the
// command that would have been sent.
func (a *DryRunAdapter) SendCommand(ctx context.Context, cmd Command) (CommandResult, error) {
	a.logger.Printf("DRY-RUN: Would send %s at %dW", cmd.Mode, cmd.PowerW)
	return CommandResult{Success: true, Message: fmt.Sprintf("dry-run: %s", cmd.Mode)}, nil
}
