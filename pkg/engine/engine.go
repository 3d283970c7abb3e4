package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/millrun/millrun/pkg/engine"

// Engine is the scheduling and progress-tracking core.
//
// Every exported operation runs under a single lock against a private copy of
// the state. The copy replaces the live state only after it has been saved,
// so a failed or cancelled operation leaves no partial change behind. Events
// are published after the save succeeds.
type Engine struct {
	// mu serialises all operations
	mu sync.Mutex

	cfg       Config
	repo      Repository
	state     *Snapshot
	publisher EventPublisher
	metrics   MetricsRecorder
	tracer    trace.Tracer
	logger    zerolog.Logger
	clock     Clock

	// beforeCommit, when set, runs between finding a slot and committing it
	beforeCommit func(cal *EquipmentCalendar, slot Slot)
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the scheduling policy.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithEventPublisher sets the publisher that receives committed events.
func WithEventPublisher(p EventPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithTracer sets the tracer used for operation spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// New creates an engine and loads its state from the repository.
// A nil repository keeps state in memory only.
func New(ctx context.Context, repo Repository, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:     DefaultConfig(),
		repo:    repo,
		metrics: nopMetrics{},
		tracer:  otel.Tracer(tracerName),
		logger:  zerolog.Nop(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}

	state := NewSnapshot()
	if repo != nil {
		loaded, err := repo.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load state: %w", err)
		}
		state = loaded.Clone()
	}
	e.state = state

	e.logger.Debug().
		Int("orders", len(state.Orders)).
		Int("plans", len(state.Plans)).
		Int("equipment", len(state.Equipment)).
		Int("materials", len(state.Materials)).
		Msg("Engine state loaded")

	return e, nil
}

// Snapshot returns a deep copy of the current state.
func (e *Engine) Snapshot() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// Config returns the active configuration.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Reconfigure replaces the scheduling policy. It applies from the next operation.
func (e *Engine) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg

	e.logger.Info().
		Str("consumption_policy", string(cfg.ConsumptionPolicy)).
		Dur("at_risk_slack", cfg.AtRiskSlack).
		Msg("Engine reconfigured")
	return nil
}

// Reload replaces the in-memory state with the repository's copy.
func (e *Engine) Reload(ctx context.Context) error {
	if e.repo == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reloadLocked(ctx)
}

func (e *Engine) reloadLocked(ctx context.Context) error {
	loaded, err := e.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to reload state: %w", err)
	}
	e.state = loaded.Clone()
	return nil
}

// txn is the working copy of a single engine operation.
type txn struct {
	ctx       context.Context
	state     *Snapshot
	cfg       Config
	now       time.Time
	materials *MaterialChecker
	calendar  *EquipmentCalendar
	logger    zerolog.Logger

	beforeCommit func(cal *EquipmentCalendar, slot Slot)

	changed     bool
	events      []*Event
	transitions []StageStatus
	blocked     []BlockReason
	inspections []QualityResult
}

// execute runs fn against a copy of the state and commits the copy if fn
// changed it. When another process saved first, the state is reloaded and
// fn runs once more against the fresh copy.
func (e *Engine) execute(ctx context.Context, op string, fn func(tx *txn) error) error {
	ctx, span := e.tracer.Start(ctx, "engine."+op)
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.attempt(ctx, op, fn)
	if err != nil && IsStaleSnapshot(err) {
		e.logger.Info().
			Str("operation", op).
			Int64("revision", e.state.Revision).
			Msg("State changed by another writer, reloading")
		span.AddEvent("engine.reload")

		if err = e.reloadLocked(ctx); err == nil {
			tx, err = e.attempt(ctx, op, fn)
		}
	}
	if err != nil {
		return e.fail(span, op, err)
	}
	if !tx.changed {
		span.SetAttributes(attribute.Bool("engine.changed", false))
		return nil
	}
	e.state = tx.state

	span.SetAttributes(
		attribute.Bool("engine.changed", true),
		attribute.Int("engine.events", len(tx.events)),
	)

	for _, s := range tx.transitions {
		e.metrics.RecordStageTransition(string(s))
	}
	for _, r := range tx.blocked {
		e.metrics.RecordBlocked(string(r))
	}
	for _, q := range tx.inspections {
		e.metrics.RecordQualityResult(string(q))
	}

	e.publishEvents(ctx, tx.events)
	return nil
}

// attempt runs fn on a fresh copy of the state and saves the copy if fn
// changed it. The live state is left untouched.
func (e *Engine) attempt(ctx context.Context, op string, fn func(tx *txn) error) (*txn, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewPermanentError("operation cancelled", err).WithCode(ErrCodeInternal)
	}

	state := e.state.Clone()
	now := e.clock().UTC()
	materials := NewMaterialChecker(state.Materials, state.Reservations)
	materials.now = func() time.Time { return now }

	tx := &txn{
		ctx:       ctx,
		state:     state,
		cfg:       e.cfg,
		now:       now,
		materials: materials,
		calendar:  NewEquipmentCalendar(state.Equipment),
		logger:    e.logger.With().Str("operation", op).Logger(),

		beforeCommit: e.beforeCommit,
	}

	if err := fn(tx); err != nil {
		return nil, err
	}
	if !tx.changed {
		return tx, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, NewPermanentError("operation cancelled", err).WithCode(ErrCodeInternal)
	}
	if e.repo != nil {
		if err := e.repo.Save(ctx, tx.state); err != nil {
			return nil, fmt.Errorf("failed to save state: %w", err)
		}
	}
	return tx, nil
}

// fail records a failed operation and returns err unchanged.
func (e *Engine) fail(span trace.Span, op string, err error) error {
	class, code := errorLabels(err)
	e.metrics.RecordError(op, class, code)

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	e.logger.Debug().
		Err(err).
		Str("operation", op).
		Str("error_class", class).
		Str("error_code", code).
		Msg("Engine operation rejected")
	return err
}

// publishEvents hands committed events to the publisher in emission order.
// Publisher failures are logged and never undo the committed change.
func (e *Engine) publishEvents(ctx context.Context, events []*Event) {
	if e.publisher == nil {
		return
	}
	for _, ev := range events {
		if err := e.publisher.Publish(ctx, ev); err != nil {
			e.logger.Warn().
				Err(err).
				Str("event_type", string(ev.Type)).
				Str("stage_id", ev.StageID).
				Msg("Failed to publish event")
		}
	}
}

// emit queues an event for publication after commit.
func (tx *txn) emit(ev *Event) {
	tx.events = append(tx.events, ev)
}

// lookupStage finds a stage or returns a NotFound error.
func (tx *txn) lookupStage(stageID string) (*ProductionPlan, int, *ProductionStage, error) {
	plan, i, ok := tx.state.Stage(stageID)
	if !ok {
		return nil, -1, nil, notFound("stage", stageID)
	}
	return plan, i, plan.Stages[i], nil
}

// transition moves a stage to a new status according to the transition table.
func (tx *txn) transition(st *ProductionStage, to StageStatus) error {
	if !st.Status.CanTransitionTo(to) {
		return NewPermanentError(
			fmt.Sprintf("cannot move stage from %s to %s", st.Status, to), nil).
			WithCode(ErrCodeInvalidTransition).
			WithResource(st.ID).
			WithDetail("from", string(st.Status)).
			WithDetail("to", string(to))
	}
	st.Status = to
	tx.changed = true
	tx.transitions = append(tx.transitions, to)
	return nil
}

// unplace cancels a stage's calendar interval and releases its reservation.
func (tx *txn) unplace(st *ProductionStage) {
	if st.IsScheduled() && st.EquipmentID != "" {
		tx.calendar.Cancel(st.EquipmentID, st.ScheduledStart, st.ScheduledEnd)
	}
	if st.ReservationToken != "" {
		tx.materials.Release(st.ReservationToken)
	}
	st.clearPlacement()
	tx.changed = true
}

// settleEquipment marks equipment idle once no stage is running on it.
func (tx *txn) settleEquipment(equipmentID string) {
	eq, ok := tx.state.Equipment[equipmentID]
	if !ok || eq.Status != EquipmentStatusBusy {
		return
	}
	for _, plan := range tx.state.Plans {
		for _, st := range plan.Stages {
			if st.EquipmentID == equipmentID && st.Status == StageStatusInProgress {
				return
			}
		}
	}
	eq.Status = EquipmentStatusIdle
	tx.changed = true
}
