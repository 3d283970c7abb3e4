package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/shopspring/decimal"

	"github.com/millrun/millrun/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// snapshotTables lists the tables rewritten by Save, children first.
var snapshotTables = []string{
	"quality_records",
	"reservation_holds",
	"reservations",
	"equipment_intervals",
	"equipment",
	"materials",
	"stage_consumption",
	"stage_requirements",
	"stages",
	"plans",
	"orders",
}

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	// Every connection to :memory: opens its own database
	if cfg.Path == ":memory:" {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	// Open database with SQLite-specific connection parameters
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Save replaces the stored snapshot in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, snap *engine.Snapshot) (err error) {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// The immediate transaction holds the write lock, so the revision cannot
	// move between this check and the commit.
	res, err := tx.ExecContext(ctx,
		`UPDATE snapshot_meta SET revision = revision + 1 WHERE id = 1 AND revision = ?`,
		snap.Revision,
	)
	if err != nil {
		return fmt.Errorf("failed to advance revision: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to advance revision: %w", err)
	}
	if n == 0 {
		return engine.NewStaleSnapshotError(snap.Revision)
	}

	for _, table := range snapshotTables {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err = saveOrders(ctx, tx, snap); err != nil {
		return err
	}
	if err = savePlans(ctx, tx, snap); err != nil {
		return err
	}
	if err = saveMaterials(ctx, tx, snap); err != nil {
		return err
	}
	if err = saveEquipment(ctx, tx, snap); err != nil {
		return err
	}
	if err = saveReservations(ctx, tx, snap); err != nil {
		return err
	}
	if err = saveQualityRecords(ctx, tx, snap); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	snap.Revision++
	return nil
}

func saveOrders(ctx context.Context, tx *sql.Tx, snap *engine.Snapshot) error {
	query := `
		INSERT INTO orders (id, customer_ref, priority, due_date, status, cancelled_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for _, o := range snap.Orders {
		_, err := tx.ExecContext(ctx, query,
			o.ID,
			o.CustomerRef,
			o.Priority,
			formatTime(o.DueDate),
			string(o.Status),
			formatTimePtr(o.CancelledAt),
			formatTime(o.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to save order %s: %w", o.ID, err)
		}
	}
	return nil
}

func savePlans(ctx context.Context, tx *sql.Tx, snap *engine.Snapshot) error {
	planQuery := `
		INSERT INTO plans (id, order_id, cancelled_at, created_at)
		VALUES (?, ?, ?, ?)
	`
	stageQuery := `
		INSERT INTO stages (id, plan_id, position, name, equipment_type, duration_ns, parallel, rework_of,
			status, block_reason, scheduled_start, scheduled_end, equipment_id, reservation_token,
			at_risk, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	reqQuery := `
		INSERT INTO stage_requirements (stage_id, position, material_id, quantity)
		VALUES (?, ?, ?, ?)
	`
	consumedQuery := `
		INSERT INTO stage_consumption (stage_id, material_id, quantity)
		VALUES (?, ?, ?)
	`

	for _, p := range snap.Plans {
		if _, err := tx.ExecContext(ctx, planQuery,
			p.ID, p.OrderID, formatTimePtr(p.CancelledAt), formatTime(p.CreatedAt),
		); err != nil {
			return fmt.Errorf("failed to save plan %s: %w", p.ID, err)
		}

		for i, st := range p.Stages {
			_, err := tx.ExecContext(ctx, stageQuery,
				st.ID,
				p.ID,
				i,
				st.Name,
				st.EquipmentType,
				int64(st.Duration),
				st.Parallel,
				st.ReworkOf,
				string(st.Status),
				string(st.BlockReason),
				formatOptionalTime(st.ScheduledStart),
				formatOptionalTime(st.ScheduledEnd),
				st.EquipmentID,
				st.ReservationToken,
				st.AtRisk,
				formatOptionalTime(st.StartedAt),
				formatOptionalTime(st.CompletedAt),
			)
			if err != nil {
				return fmt.Errorf("failed to save stage %s: %w", st.ID, err)
			}

			for n, r := range st.Requirements {
				if _, err := tx.ExecContext(ctx, reqQuery, st.ID, n, r.MaterialID, r.Quantity.String()); err != nil {
					return fmt.Errorf("failed to save requirement of stage %s: %w", st.ID, err)
				}
			}
			for _, h := range st.Consumed {
				if _, err := tx.ExecContext(ctx, consumedQuery, st.ID, h.MaterialID, h.Quantity.String()); err != nil {
					return fmt.Errorf("failed to save consumption of stage %s: %w", st.ID, err)
				}
			}
		}
	}
	return nil
}

func saveMaterials(ctx context.Context, tx *sql.Tx, snap *engine.Snapshot) error {
	query := `
		INSERT INTO materials (id, name, category, unit, on_hand, reserved)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	for _, m := range snap.Materials {
		if _, err := tx.ExecContext(ctx, query,
			m.ID, m.Name, m.Category, m.Unit, m.OnHand.String(), m.Reserved.String(),
		); err != nil {
			return fmt.Errorf("failed to save material %s: %w", m.ID, err)
		}
	}
	return nil
}

func saveEquipment(ctx context.Context, tx *sql.Tx, snap *engine.Snapshot) error {
	eqQuery := `
		INSERT INTO equipment (id, name, type, status)
		VALUES (?, ?, ?, ?)
	`
	ivQuery := `
		INSERT INTO equipment_intervals (equipment_id, stage_id, start_at, end_at)
		VALUES (?, ?, ?, ?)
	`
	for _, eq := range snap.Equipment {
		if _, err := tx.ExecContext(ctx, eqQuery, eq.ID, eq.Name, eq.Type, string(eq.Status)); err != nil {
			return fmt.Errorf("failed to save equipment %s: %w", eq.ID, err)
		}
		for _, iv := range eq.Busy {
			if _, err := tx.ExecContext(ctx, ivQuery,
				eq.ID, iv.StageID, formatTime(iv.Start), formatTime(iv.End),
			); err != nil {
				return fmt.Errorf("failed to save interval of equipment %s: %w", eq.ID, err)
			}
		}
	}
	return nil
}

func saveReservations(ctx context.Context, tx *sql.Tx, snap *engine.Snapshot) error {
	resQuery := `
		INSERT INTO reservations (token, stage_id, created_at)
		VALUES (?, ?, ?)
	`
	holdQuery := `
		INSERT INTO reservation_holds (token, material_id, quantity)
		VALUES (?, ?, ?)
	`
	for _, r := range snap.Reservations {
		if _, err := tx.ExecContext(ctx, resQuery, r.Token, r.StageID, formatTime(r.CreatedAt)); err != nil {
			return fmt.Errorf("failed to save reservation %s: %w", r.Token, err)
		}
		for _, h := range r.Holds {
			if _, err := tx.ExecContext(ctx, holdQuery, r.Token, h.MaterialID, h.Quantity.String()); err != nil {
				return fmt.Errorf("failed to save hold of reservation %s: %w", r.Token, err)
			}
		}
	}
	return nil
}

func saveQualityRecords(ctx context.Context, tx *sql.Tx, snap *engine.Snapshot) error {
	query := `
		INSERT INTO quality_records (seq, id, stage_id, result, inspector, notes, rework_stage_id, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i, q := range snap.QualityRecords {
		if _, err := tx.ExecContext(ctx, query,
			i, q.ID, q.StageID, string(q.Result), q.Inspector, q.Notes, q.ReworkStageID, formatTime(q.Timestamp),
		); err != nil {
			return fmt.Errorf("failed to save quality record %s: %w", q.ID, err)
		}
	}
	return nil
}

// Load reads the stored snapshot.
func (s *SQLiteStore) Load(ctx context.Context) (*engine.Snapshot, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	snap := engine.NewSnapshot()
	loaders := []func(context.Context, *engine.Snapshot) error{
		s.loadRevision,
		s.loadOrders,
		s.loadPlans,
		s.loadMaterials,
		s.loadEquipment,
		s.loadReservations,
		s.loadQualityRecords,
	}
	for _, load := range loaders {
		if err := load(ctx, snap); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func (s *SQLiteStore) loadRevision(ctx context.Context, snap *engine.Snapshot) error {
	err := s.db.QueryRowContext(ctx, `SELECT revision FROM snapshot_meta WHERE id = 1`).Scan(&snap.Revision)
	if err != nil {
		return fmt.Errorf("failed to load revision: %w", err)
	}
	return nil
}

func (s *SQLiteStore) loadOrders(ctx context.Context, snap *engine.Snapshot) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_ref, priority, due_date, status, cancelled_at, created_at
		FROM orders
	`)
	if err != nil {
		return fmt.Errorf("failed to load orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			o                    engine.Order
			status, due, created string
			cancelled            sql.NullString
		)
		if err := rows.Scan(&o.ID, &o.CustomerRef, &o.Priority, &due, &status, &cancelled, &created); err != nil {
			return fmt.Errorf("failed to scan order: %w", err)
		}
		o.Status = engine.OrderStatus(status)
		if o.DueDate, err = parseTime(due); err != nil {
			return err
		}
		if o.CreatedAt, err = parseTime(created); err != nil {
			return err
		}
		if o.CancelledAt, err = parseTimePtr(cancelled); err != nil {
			return err
		}
		snap.Orders[o.ID] = &o
	}
	return rows.Err()
}

func (s *SQLiteStore) loadPlans(ctx context.Context, snap *engine.Snapshot) error {
	planRows, err := s.db.QueryContext(ctx, `SELECT id, order_id, cancelled_at, created_at FROM plans`)
	if err != nil {
		return fmt.Errorf("failed to load plans: %w", err)
	}
	defer planRows.Close()

	for planRows.Next() {
		var (
			p         engine.ProductionPlan
			cancelled sql.NullString
			created   string
		)
		if err := planRows.Scan(&p.ID, &p.OrderID, &cancelled, &created); err != nil {
			return fmt.Errorf("failed to scan plan: %w", err)
		}
		if p.CancelledAt, err = parseTimePtr(cancelled); err != nil {
			return err
		}
		if p.CreatedAt, err = parseTime(created); err != nil {
			return err
		}
		snap.Plans[p.ID] = &p
	}
	if err := planRows.Err(); err != nil {
		return fmt.Errorf("error iterating plans: %w", err)
	}

	stages, err := s.loadStages(ctx)
	if err != nil {
		return err
	}
	for _, st := range stages {
		if p, ok := snap.Plans[st.PlanID]; ok {
			p.Stages = append(p.Stages, st)
		}
	}
	return nil
}

// loadStages returns all stages ordered by plan and position, with their
// requirements and consumption attached.
func (s *SQLiteStore) loadStages(ctx context.Context) ([]*engine.ProductionStage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, plan_id, position, name, equipment_type, duration_ns, parallel, rework_of,
			status, block_reason, scheduled_start, scheduled_end, equipment_id, reservation_token,
			at_risk, started_at, completed_at
		FROM stages
		ORDER BY plan_id, position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load stages: %w", err)
	}
	defer rows.Close()

	var (
		stages []*engine.ProductionStage
		byID   = make(map[string]*engine.ProductionStage)
	)
	for rows.Next() {
		var (
			st                           engine.ProductionStage
			duration                     int64
			status, reason               string
			start, end, started, finish  sql.NullString
		)
		if err := rows.Scan(
			&st.ID, &st.PlanID, &st.Sequence, &st.Name, &st.EquipmentType, &duration, &st.Parallel,
			&st.ReworkOf, &status, &reason, &start, &end, &st.EquipmentID, &st.ReservationToken,
			&st.AtRisk, &started, &finish,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stage: %w", err)
		}
		st.Duration = time.Duration(duration)
		st.Status = engine.StageStatus(status)
		st.BlockReason = engine.BlockReason(reason)
		for _, f := range []struct {
			dst *time.Time
			src sql.NullString
		}{
			{&st.ScheduledStart, start},
			{&st.ScheduledEnd, end},
			{&st.StartedAt, started},
			{&st.CompletedAt, finish},
		} {
			if *f.dst, err = parseOptionalTime(f.src); err != nil {
				return nil, err
			}
		}
		stages = append(stages, &st)
		byID[st.ID] = &st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stages: %w", err)
	}

	reqRows, err := s.db.QueryContext(ctx, `
		SELECT stage_id, material_id, quantity FROM stage_requirements ORDER BY stage_id, position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load requirements: %w", err)
	}
	defer reqRows.Close()
	for reqRows.Next() {
		var r engine.MaterialRequirement
		var q string
		if err := reqRows.Scan(&r.StageID, &r.MaterialID, &q); err != nil {
			return nil, fmt.Errorf("failed to scan requirement: %w", err)
		}
		if r.Quantity, err = decimal.NewFromString(q); err != nil {
			return nil, fmt.Errorf("invalid requirement quantity %q: %w", q, err)
		}
		if st, ok := byID[r.StageID]; ok {
			st.Requirements = append(st.Requirements, r)
		}
	}
	if err := reqRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating requirements: %w", err)
	}

	conRows, err := s.db.QueryContext(ctx, `
		SELECT stage_id, material_id, quantity FROM stage_consumption ORDER BY stage_id, material_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load consumption: %w", err)
	}
	defer conRows.Close()
	for conRows.Next() {
		var stageID, q string
		var h engine.Hold
		if err := conRows.Scan(&stageID, &h.MaterialID, &q); err != nil {
			return nil, fmt.Errorf("failed to scan consumption: %w", err)
		}
		if h.Quantity, err = decimal.NewFromString(q); err != nil {
			return nil, fmt.Errorf("invalid consumed quantity %q: %w", q, err)
		}
		if st, ok := byID[stageID]; ok {
			st.Consumed = append(st.Consumed, h)
		}
	}
	return stages, conRows.Err()
}

func (s *SQLiteStore) loadMaterials(ctx context.Context, snap *engine.Snapshot) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, category, unit, on_hand, reserved FROM materials`)
	if err != nil {
		return fmt.Errorf("failed to load materials: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m engine.Material
		var onHand, reserved string
		if err := rows.Scan(&m.ID, &m.Name, &m.Category, &m.Unit, &onHand, &reserved); err != nil {
			return fmt.Errorf("failed to scan material: %w", err)
		}
		if m.OnHand, err = decimal.NewFromString(onHand); err != nil {
			return fmt.Errorf("invalid on-hand quantity for %s: %w", m.ID, err)
		}
		if m.Reserved, err = decimal.NewFromString(reserved); err != nil {
			return fmt.Errorf("invalid reserved quantity for %s: %w", m.ID, err)
		}
		snap.Materials[m.ID] = &m
	}
	return rows.Err()
}

func (s *SQLiteStore) loadEquipment(ctx context.Context, snap *engine.Snapshot) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, type, status FROM equipment`)
	if err != nil {
		return fmt.Errorf("failed to load equipment: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var eq engine.Equipment
		var status string
		if err := rows.Scan(&eq.ID, &eq.Name, &eq.Type, &status); err != nil {
			return fmt.Errorf("failed to scan equipment: %w", err)
		}
		eq.Status = engine.EquipmentStatus(status)
		snap.Equipment[eq.ID] = &eq
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating equipment: %w", err)
	}

	ivRows, err := s.db.QueryContext(ctx, `
		SELECT equipment_id, stage_id, start_at, end_at
		FROM equipment_intervals
		ORDER BY equipment_id, start_at
	`)
	if err != nil {
		return fmt.Errorf("failed to load intervals: %w", err)
	}
	defer ivRows.Close()

	for ivRows.Next() {
		var equipmentID, start, end string
		var iv engine.Interval
		if err := ivRows.Scan(&equipmentID, &iv.StageID, &start, &end); err != nil {
			return fmt.Errorf("failed to scan interval: %w", err)
		}
		if iv.Start, err = parseTime(start); err != nil {
			return err
		}
		if iv.End, err = parseTime(end); err != nil {
			return err
		}
		if eq, ok := snap.Equipment[equipmentID]; ok {
			eq.Busy = append(eq.Busy, iv)
		}
	}
	if err := ivRows.Err(); err != nil {
		return fmt.Errorf("error iterating intervals: %w", err)
	}

	// Rows written before timestamps were fixed-width do not sort by text.
	for _, eq := range snap.Equipment {
		sort.Slice(eq.Busy, func(i, j int) bool {
			return eq.Busy[i].Start.Before(eq.Busy[j].Start)
		})
	}
	return nil
}

func (s *SQLiteStore) loadReservations(ctx context.Context, snap *engine.Snapshot) error {
	rows, err := s.db.QueryContext(ctx, `SELECT token, stage_id, created_at FROM reservations`)
	if err != nil {
		return fmt.Errorf("failed to load reservations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r engine.Reservation
		var created string
		if err := rows.Scan(&r.Token, &r.StageID, &created); err != nil {
			return fmt.Errorf("failed to scan reservation: %w", err)
		}
		if r.CreatedAt, err = parseTime(created); err != nil {
			return err
		}
		snap.Reservations[r.Token] = &r
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating reservations: %w", err)
	}

	holdRows, err := s.db.QueryContext(ctx, `
		SELECT token, material_id, quantity FROM reservation_holds ORDER BY token, material_id
	`)
	if err != nil {
		return fmt.Errorf("failed to load holds: %w", err)
	}
	defer holdRows.Close()

	for holdRows.Next() {
		var token, q string
		var h engine.Hold
		if err := holdRows.Scan(&token, &h.MaterialID, &q); err != nil {
			return fmt.Errorf("failed to scan hold: %w", err)
		}
		if h.Quantity, err = decimal.NewFromString(q); err != nil {
			return fmt.Errorf("invalid hold quantity %q: %w", q, err)
		}
		if r, ok := snap.Reservations[token]; ok {
			r.Holds = append(r.Holds, h)
		}
	}
	return holdRows.Err()
}

func (s *SQLiteStore) loadQualityRecords(ctx context.Context, snap *engine.Snapshot) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stage_id, result, inspector, notes, rework_stage_id, recorded_at
		FROM quality_records
		ORDER BY seq
	`)
	if err != nil {
		return fmt.Errorf("failed to load quality records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var q engine.QualityRecord
		var result, recorded string
		if err := rows.Scan(&q.ID, &q.StageID, &result, &q.Inspector, &q.Notes, &q.ReworkStageID, &recorded); err != nil {
			return fmt.Errorf("failed to scan quality record: %w", err)
		}
		q.Result = engine.QualityResult(result)
		if q.Timestamp, err = parseTime(recorded); err != nil {
			return err
		}
		snap.QualityRecords = append(snap.QualityRecords, &q)
	}
	return rows.Err()
}

// AppendEvent appends a published engine event to the log
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *engine.Event) error {
	query := `
		INSERT INTO events (event_id, type, level, order_id, plan_id, stage_id, equipment_id, message, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var details *string
	if len(event.Data) > 0 {
		data, err := json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal event details: %w", err)
		}
		d := string(data)
		details = &d
	}

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.Type),
		event.Level,
		event.OrderID,
		event.PlanID,
		event.StageID,
		event.EquipmentID,
		event.Message,
		details,
		formatTime(event.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// GetEvents retrieves events with optional filters and pagination, newest first
func (s *SQLiteStore) GetEvents(ctx context.Context, filter EventFilter, limit, offset int) ([]*EventRecord, error) {
	query := `
		SELECT id, event_id, type, level, order_id, plan_id, stage_id, equipment_id, message, details, timestamp
		FROM events
		WHERE (? = '' OR type = ?)
		  AND (? = '' OR order_id = ?)
		  AND (? = '' OR stage_id = ?)
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query,
		filter.Type, filter.Type,
		filter.OrderID, filter.OrderID,
		filter.StageID, filter.StageID,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	events := []*EventRecord{}
	for rows.Next() {
		e := &EventRecord{}
		var details sql.NullString
		var ts string
		err := rows.Scan(
			&e.ID,
			&e.EventID,
			&e.Type,
			&e.Level,
			&e.OrderID,
			&e.PlanID,
			&e.StageID,
			&e.EquipmentID,
			&e.Message,
			&details,
			&ts,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Details = details.String
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

// timestampLayout keeps nanoseconds fixed-width so stored UTC timestamps
// order correctly as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func formatOptionalTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	return formatTimePtr(&t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseOptionalTime(s sql.NullString) (time.Time, error) {
	if !s.Valid {
		return time.Time{}, nil
	}
	return parseTime(s.String)
}
