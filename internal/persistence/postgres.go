package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"

	"github.com/homevolt/energy-core/internal/accounting"
	"github.com/homevolt/energy-core/internal/inverter"
	"github.com/homevolt/energy-core/internal/planner"
)

// PostgresStore is the reference Store implementation, adapted from the
// teacher's MPC-decision upsert pattern and generalised to every
// append-only record type the core produces.
type PostgresStore struct {
	db     *sql.DB
	logger *log.Logger
}

// NewPostgresStore opens a connection pool against dsn and verifies it
// with a ping.
func NewPostgresStore(dsn string, logger *log.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: open: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: ping: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) SaveTelemetry(ctx context.Context, t inverter.Telemetry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO telemetry (recorded_at, soc, battery_w, solar_w, grid_w, load_w, grid_available)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, t.Timestamp, t.SOC, t.BatteryW, t.SolarW, t.GridW, t.LoadW, t.GridAvailable)
	if err != nil {
		return fmt.Errorf("persistence: save telemetry: %w", err)
	}
	return nil
}

// SavePlan upserts the plan's slots, mirroring the teacher's
// delete-then-insert-by-timestamp transaction around mpc_decisions.
func (s *PostgresStore) SavePlan(ctx context.Context, p planner.Plan) error {
	if len(p.Slots) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persistence: begin plan tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM plan_slots WHERE start_time >= $1`, p.HorizonStart); err != nil {
		return fmt.Errorf("persistence: delete superseded slots: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO plan_slots (
			version, trigger_reason, start_time, end_time, mode, target_power_w,
			charge_w, discharge_w, grid_import_w, grid_export_w, expected_soc
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (start_time) DO UPDATE SET
			version = EXCLUDED.version,
			trigger_reason = EXCLUDED.trigger_reason,
			mode = EXCLUDED.mode,
			target_power_w = EXCLUDED.target_power_w,
			charge_w = EXCLUDED.charge_w,
			discharge_w = EXCLUDED.discharge_w,
			grid_import_w = EXCLUDED.grid_import_w,
			grid_export_w = EXCLUDED.grid_export_w,
			expected_soc = EXCLUDED.expected_soc
	`)
	if err != nil {
		return fmt.Errorf("persistence: prepare plan upsert: %w", err)
	}
	defer stmt.Close()

	for _, slot := range p.Slots {
		if _, err := stmt.ExecContext(ctx,
			p.Version, p.TriggerReason, slot.Start, slot.End, slot.Mode, slot.TargetPowerW,
			slot.ChargeW, slot.DischargeW, slot.GridImportW, slot.GridExportW, slot.ExpectedSOC,
		); err != nil {
			return fmt.Errorf("persistence: insert plan slot %s: %w", slot.Start, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persistence: commit plan tx: %w", err)
	}
	if s.logger != nil {
		s.logger.Printf("persistence: saved plan version %d (%d slots)", p.Version, len(p.Slots))
	}
	return nil
}

func (s *PostgresStore) SaveAccountingEvent(ctx context.Context, e accounting.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounting_events (kind, recorded_at, energy_wh, rate_cents, cost_cents, cost_basis_cents, profit_loss_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.Kind, e.RecordedAt, e.EnergyWh, e.RateCents, e.CostCents, e.CostBasisCents, e.ProfitLossCents)
	if err != nil {
		return fmt.Errorf("persistence: save accounting event: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveBillingCycle(ctx context.Context, c accounting.BillingCycle) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO billing_cycles (cycle_start, cycle_end, import_cost, export_revenue, self_consumption, arbitrage_profit, fixed_costs, net_cost)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (cycle_start) DO UPDATE SET
			import_cost = EXCLUDED.import_cost,
			export_revenue = EXCLUDED.export_revenue,
			self_consumption = EXCLUDED.self_consumption,
			arbitrage_profit = EXCLUDED.arbitrage_profit,
			fixed_costs = EXCLUDED.fixed_costs,
			net_cost = EXCLUDED.net_cost
	`, c.Start, c.End, c.Totals.ImportCost, c.Totals.ExportRevenue, c.Totals.SelfConsumption,
		c.Totals.ArbitrageProfit, c.Totals.FixedCosts, c.Totals.NetCost())
	if err != nil {
		return fmt.Errorf("persistence: save billing cycle: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveSystemEvent(ctx context.Context, e SystemEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_events (recorded_at, kind, detail) VALUES ($1, $2, $3)
	`, e.RecordedAt, e.Kind, e.Detail)
	if err != nil {
		return fmt.Errorf("persistence: save system event: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveHistoricalDatum(ctx context.Context, d HistoricalDatum) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO historical_data (type, recorded_at, value, source, resolution_seconds)
		VALUES ($1, $2, $3, $4, $5)
	`, d.Type, d.RecordedAt, d.Value, d.Source, int64(d.Resolution.Seconds()))
	if err != nil {
		return fmt.Errorf("persistence: save historical datum: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadHistoricalData(ctx context.Context, datumType string, since time.Time) ([]HistoricalDatum, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, recorded_at, value, source, resolution_seconds
		FROM historical_data
		WHERE type = $1 AND recorded_at >= $2
		ORDER BY recorded_at ASC
	`, datumType, since)
	if err != nil {
		return nil, fmt.Errorf("persistence: query historical data: %w", err)
	}
	defer rows.Close()

	var out []HistoricalDatum
	for rows.Next() {
		var d HistoricalDatum
		var resolutionSeconds int64
		if err := rows.Scan(&d.Type, &d.RecordedAt, &d.Value, &d.Source, &resolutionSeconds); err != nil {
			return nil, fmt.Errorf("persistence: scan historical datum: %w", err)
		}
		d.Resolution = time.Duration(resolutionSeconds) * time.Second
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("persistence: iterate historical data: %w", err)
	}
	return out, nil
}
