package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/homevolt/energy-core/internal/accounting"
	"github.com/homevolt/energy-core/internal/inverter"
	"github.com/homevolt/energy-core/internal/planner"
)

// MemoryStore is an in-process Store used by dry-run mode (spec's
// supplemented -plan/-info tooling) and by tests that exercise callers
// of the Store interface without a database.
type MemoryStore struct {
	mu         sync.Mutex
	telemetry  []inverter.Telemetry
	plans      []planner.Plan
	events     []accounting.Event
	cycles     []accounting.BillingCycle
	sysEvents  []SystemEvent
	historical []HistoricalDatum
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) SaveTelemetry(_ context.Context, t inverter.Telemetry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.telemetry = append(s.telemetry, t)
	return nil
}

func (s *MemoryStore) SavePlan(_ context.Context, p planner.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans = append(s.plans, p)
	return nil
}

func (s *MemoryStore) SaveAccountingEvent(_ context.Context, e accounting.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *MemoryStore) SaveBillingCycle(_ context.Context, c accounting.BillingCycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles = append(s.cycles, c)
	return nil
}

func (s *MemoryStore) SaveSystemEvent(_ context.Context, e SystemEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sysEvents = append(s.sysEvents, e)
	return nil
}

func (s *MemoryStore) SaveHistoricalDatum(_ context.Context, d HistoricalDatum) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.historical = append(s.historical, d)
	return nil
}

func (s *MemoryStore) LoadHistoricalData(_ context.Context, datumType string, since time.Time) ([]HistoricalDatum, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []HistoricalDatum
	for _, d := range s.historical {
		if d.Type == datumType && !d.RecordedAt.Before(since) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

// Plans returns a copy of every plan saved so far, oldest first.
func (s *MemoryStore) Plans() []planner.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]planner.Plan(nil), s.plans...)
}

// TelemetryCount reports how many telemetry samples have been saved.
func (s *MemoryStore) TelemetryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.telemetry)
}
