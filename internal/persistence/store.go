// Package persistence defines the append-only store contract the core
// writes telemetry, plans, accounting events, and historical data to
// (spec §5/§6 "Persistence"), plus a reference Postgres implementation.
// Writes are always best-effort: the core must tolerate a slow or
// unavailable store and never block command dispatch on it.
package persistence

import (
	"context"
	"time"

	"github.com/homevolt/energy-core/internal/accounting"
	"github.com/homevolt/energy-core/internal/inverter"
	"github.com/homevolt/energy-core/internal/planner"
)

// SystemEvent is a free-form operational log entry (storm transitions,
// rebuild triggers, resilience level changes, manual overrides).
type SystemEvent struct {
	RecordedAt time.Time
	Kind       string
	Detail     string
}

// HistoricalDatum is one point fed into internal/history's
// day-of-week/hour-of-day profiles.
type HistoricalDatum struct {
	Type       string
	RecordedAt time.Time
	Value      float64
	Source     string
	Resolution time.Duration
}

// Store is the append-only persistence contract. Implementations must
// not block the caller for longer than a bounded timeout; a slow store
// should fail fast rather than stall the control loop.
type Store interface {
	SaveTelemetry(ctx context.Context, t inverter.Telemetry) error
	SavePlan(ctx context.Context, p planner.Plan) error
	SaveAccountingEvent(ctx context.Context, e accounting.Event) error
	SaveBillingCycle(ctx context.Context, c accounting.BillingCycle) error
	SaveSystemEvent(ctx context.Context, e SystemEvent) error
	SaveHistoricalDatum(ctx context.Context, d HistoricalDatum) error
	LoadHistoricalData(ctx context.Context, datumType string, since time.Time) ([]HistoricalDatum, error)
	Close() error
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
