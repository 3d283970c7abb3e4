package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MarkStarted moves a scheduled stage to in_progress and marks its equipment busy.
func (e *Engine) MarkStarted(ctx context.Context, stageID string) error {
	return e.execute(ctx, "mark_started", func(tx *txn) error {
		plan, _, st, err := tx.lookupStage(stageID)
		if err != nil {
			return err
		}
		if err := tx.transition(st, StageStatusInProgress); err != nil {
			return err
		}
		st.StartedAt = tx.now

		if eq, ok := tx.state.Equipment[st.EquipmentID]; ok && eq.Status == EquipmentStatusIdle {
			eq.Status = EquipmentStatusBusy
		}

		tx.logger.Info().
			Str("stage_id", st.ID).
			Str("equipment_id", st.EquipmentID).
			Msg("Stage started")

		tx.refreshOrder(plan.OrderID)
		return nil
	})
}

// MarkCompleted moves an in-progress stage to completed.
// The stage's reservation is consumed or released according to the
// consumption policy and its equipment is freed.
func (e *Engine) MarkCompleted(ctx context.Context, stageID string) error {
	return e.execute(ctx, "mark_completed", func(tx *txn) error {
		plan, _, st, err := tx.lookupStage(stageID)
		if err != nil {
			return err
		}
		if err := tx.transition(st, StageStatusCompleted); err != nil {
			return err
		}
		st.CompletedAt = tx.now

		if st.ReservationToken != "" {
			switch tx.cfg.ConsumptionPolicy {
			case ConsumptionRelease:
				tx.materials.Release(st.ReservationToken)
			default:
				st.Consumed = tx.materials.Consume(st.ReservationToken)
			}
			st.ReservationToken = ""
		}
		tx.settleEquipment(st.EquipmentID)

		tx.emit(newEvent(EventTypeStageCompleted, tx.now,
			fmt.Sprintf("Stage %s completed", st.ID)).
			forStage(plan, st).
			with("started_at", st.StartedAt))

		tx.refreshOrder(plan.OrderID)
		return nil
	})
}

// RecordQuality records an inspection of a stage.
//
// A pass result is recorded without further effect. A fail or rework result
// marks the stage failed and inserts a rework stage directly after it. The
// rework stage requires whatever material the failed stage did not consume.
func (e *Engine) RecordQuality(
	ctx context.Context,
	stageID string,
	result QualityResult,
	inspector string,
	notes string,
) (*QualityRecord, error) {
	if err := result.Validate(); err != nil {
		return nil, NewPermanentError("invalid quality result", err).
			WithCode(ErrCodeValidation).
			WithResource(stageID)
	}
	if inspector == "" {
		return nil, invalid("inspector is required", stageID)
	}

	var record *QualityRecord
	err := e.execute(ctx, "record_quality", func(tx *txn) error {
		plan, idx, st, err := tx.lookupStage(stageID)
		if err != nil {
			return err
		}
		if st.Status != StageStatusInProgress && st.Status != StageStatusCompleted {
			return NewPermanentError(
				fmt.Sprintf("cannot inspect stage in status %s", st.Status), nil).
				WithCode(ErrCodeInvalidTransition).
				WithResource(st.ID)
		}

		record = &QualityRecord{
			ID:        uuid.New().String(),
			StageID:   st.ID,
			Result:    result,
			Inspector: inspector,
			Notes:     notes,
			Timestamp: tx.now,
		}
		tx.state.QualityRecords = append(tx.state.QualityRecords, record)
		tx.inspections = append(tx.inspections, result)
		tx.changed = true

		if !result.RequiresRework() {
			return nil
		}

		wasRunning := st.Status == StageStatusInProgress
		if err := tx.transition(st, StageStatusFailed); err != nil {
			return err
		}
		if wasRunning {
			if st.ReservationToken != "" {
				tx.materials.Release(st.ReservationToken)
				st.ReservationToken = ""
			}
			st.CompletedAt = tx.now
			tx.settleEquipment(st.EquipmentID)
		}

		rework := newReworkStage(plan, st)
		insertStage(plan, idx+1, rework)
		record.ReworkStageID = rework.ID

		// Later stages placed before the failure now wait for the rework
		var requeued []string
		for _, next := range plan.Stages[idx+2:] {
			if next.Status != StageStatusScheduled {
				continue
			}
			if err := tx.transition(next, StageStatusPending); err != nil {
				return err
			}
			tx.unplace(next)
			requeued = append(requeued, next.ID)
		}

		tx.logger.Warn().
			Str("stage_id", st.ID).
			Str("rework_stage_id", rework.ID).
			Str("result", string(result)).
			Str("inspector", inspector).
			Strs("requeued", requeued).
			Msg("Stage failed inspection")

		ev := newEvent(EventTypeQualityFailed, tx.now,
			fmt.Sprintf("Stage %s failed inspection", st.ID)).
			forStage(plan, st).
			with("result", string(result)).
			with("inspector", inspector).
			with("rework_stage_id", rework.ID)
		if len(requeued) > 0 {
			ev.with("requeued", requeued)
		}
		tx.emit(ev)

		tx.refreshOrder(plan.OrderID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// newReworkStage builds the stage that redoes a failed stage.
func newReworkStage(plan *ProductionPlan, failed *ProductionStage) *ProductionStage {
	return &ProductionStage{
		ID:            uuid.New().String(),
		PlanID:        plan.ID,
		Name:          failed.Name + " (rework)",
		EquipmentType: failed.EquipmentType,
		Duration:      failed.Duration,
		Requirements:  reworkRequirements(failed),
		ReworkOf:      failed.ID,
		Status:        StageStatusPending,
	}
}

// reworkRequirements returns the failed stage's requirements minus what it consumed.
func reworkRequirements(failed *ProductionStage) []MaterialRequirement {
	consumed := make(map[string]decimal.Decimal)
	for _, h := range failed.Consumed {
		consumed[h.MaterialID] = consumed[h.MaterialID].Add(h.Quantity)
	}

	var reqs []MaterialRequirement
	for _, h := range aggregateRequirements(failed.Requirements) {
		remaining := h.Quantity.Sub(consumed[h.MaterialID])
		if !remaining.IsPositive() {
			continue
		}
		reqs = append(reqs, MaterialRequirement{MaterialID: h.MaterialID, Quantity: remaining})
	}
	return reqs
}

// insertStage places a stage at position i and renumbers the plan.
func insertStage(plan *ProductionPlan, i int, st *ProductionStage) {
	plan.Stages = append(plan.Stages, nil)
	copy(plan.Stages[i+1:], plan.Stages[i:])
	plan.Stages[i] = st

	for n, s := range plan.Stages {
		s.Sequence = n
		for r := range s.Requirements {
			s.Requirements[r].StageID = s.ID
		}
	}
}
