package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PassResult summarises one scheduling pass.
type PassResult struct {
	// Scheduled lists the placements made during the pass.
	Scheduled []Assignment `json:"scheduled"`

	// Blocked lists the stages deferred during the pass.
	Blocked []BlockedStage `json:"blocked"`

	// Considered is the number of eligible stages examined.
	Considered int `json:"considered"`

	// Duration is how long the pass took.
	Duration time.Duration `json:"duration"`
}

// AtRisk returns the placements that endanger their order's due date.
func (r *PassResult) AtRisk() []Assignment {
	var out []Assignment
	for _, a := range r.Scheduled {
		if a.AtRisk {
			out = append(out, a)
		}
	}
	return out
}

// Assignment is a stage placed on equipment.
type Assignment struct {
	StageID     string    `json:"stage_id"`
	PlanID      string    `json:"plan_id"`
	OrderID     string    `json:"order_id"`
	EquipmentID string    `json:"equipment_id"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AtRisk      bool      `json:"at_risk"`
}

// BlockedStage is a stage the pass could not place.
type BlockedStage struct {
	StageID string      `json:"stage_id"`
	Reason  BlockReason `json:"reason"`
}

// candidate is an eligible stage with the context needed to order it.
type candidate struct {
	order *Order
	plan  *ProductionPlan
	index int
	stage *ProductionStage
}

// ScheduleEligibleStages runs one scheduling pass over all eligible stages.
//
// Eligible stages are pending or blocked stages of live plans whose
// predecessors are done. They are served by order priority, then due date,
// then stage sequence. Each stage is reserved, placed at the earliest free
// slot of its equipment type and marked scheduled, or blocked with the reason
// it could not be placed.
func (e *Engine) ScheduleEligibleStages(ctx context.Context) (*PassResult, error) {
	started := time.Now()
	result := &PassResult{}

	err := e.execute(ctx, "schedule", func(tx *txn) error {
		*result = PassResult{}
		return tx.schedulePass(result)
	})

	result.Duration = time.Since(started)
	if err != nil {
		return nil, err
	}

	e.metrics.RecordPass(result.Duration, len(result.Scheduled), len(result.Blocked), len(result.AtRisk()))

	e.logger.Info().
		Int("considered", result.Considered).
		Int("scheduled", len(result.Scheduled)).
		Int("blocked", len(result.Blocked)).
		Int("at_risk", len(result.AtRisk())).
		Dur("duration", result.Duration).
		Msg("Scheduling pass finished")

	return result, nil
}

// eligibleCandidates enumerates schedulable stages in serving order.
func (tx *txn) eligibleCandidates() []candidate {
	var out []candidate
	for _, orderID := range tx.state.OrderIDs() {
		order := tx.state.Orders[orderID]
		if order.CancelledAt != nil {
			continue
		}
		for _, plan := range tx.state.PlansFor(orderID) {
			if plan.IsCancelled() {
				continue
			}
			for i, st := range plan.Stages {
				if !st.Status.IsSchedulable() || !predecessorsDone(plan, i) {
					continue
				}
				out = append(out, candidate{order: order, plan: plan, index: i, stage: st})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.order.Priority != b.order.Priority {
			return a.order.Priority < b.order.Priority
		}
		if !a.order.DueDate.Equal(b.order.DueDate) {
			return a.order.DueDate.Before(b.order.DueDate)
		}
		return a.stage.Sequence < b.stage.Sequence
	})
	return out
}

func (tx *txn) schedulePass(result *PassResult) error {
	candidates := tx.eligibleCandidates()
	result.Considered = len(candidates)

	touched := make(map[string]bool)
	for _, c := range candidates {
		if err := tx.ctx.Err(); err != nil {
			return NewPermanentError("scheduling pass cancelled", err).WithCode(ErrCodeInternal)
		}

		reason, err := tx.scheduleStage(c, result)
		if err != nil {
			return err
		}
		if reason != BlockReasonNone {
			result.Blocked = append(result.Blocked, BlockedStage{StageID: c.stage.ID, Reason: reason})
			if err := tx.block(c, reason); err != nil {
				return err
			}
		}
		touched[c.order.ID] = true
	}

	for _, orderID := range sortedKeys(touched) {
		tx.refreshOrder(orderID)
	}

	trace.SpanFromContext(tx.ctx).SetAttributes(
		attribute.Int("schedule.considered", result.Considered),
		attribute.Int("schedule.scheduled", len(result.Scheduled)),
		attribute.Int("schedule.blocked", len(result.Blocked)),
	)
	return nil
}

// scheduleStage tries to place one stage. A non-empty reason means the stage
// was deferred and nothing was held for it.
func (tx *txn) scheduleStage(c candidate, result *PassResult) (BlockReason, error) {
	st := c.stage

	if !tx.materials.Check(st) {
		return BlockReasonInsufficientMaterial, nil
	}
	token, err := tx.materials.Reserve(st)
	if err != nil {
		if IsInsufficientMaterial(err) {
			return BlockReasonInsufficientMaterial, nil
		}
		return BlockReasonNone, err
	}

	notBefore := tx.now
	if ready := readyAt(c.plan, c.index); ready.After(notBefore) {
		notBefore = ready
	}

	slot, err := tx.placeStage(st, notBefore)
	if err != nil {
		tx.materials.Release(token)
		if IsNoCapacity(err) {
			return BlockReasonNoCapacity, nil
		}
		return BlockReasonNone, err
	}

	if err := tx.transition(st, StageStatusScheduled); err != nil {
		tx.calendar.Cancel(slot.EquipmentID, slot.Start, slot.End)
		tx.materials.Release(token)
		return BlockReasonNone, err
	}

	st.BlockReason = BlockReasonNone
	st.ScheduledStart = slot.Start
	st.ScheduledEnd = slot.End
	st.EquipmentID = slot.EquipmentID
	st.ReservationToken = token
	st.AtRisk = tx.isAtRisk(c.order, st)

	assignment := Assignment{
		StageID:     st.ID,
		PlanID:      c.plan.ID,
		OrderID:     c.order.ID,
		EquipmentID: slot.EquipmentID,
		Start:       slot.Start,
		End:         slot.End,
		AtRisk:      st.AtRisk,
	}
	result.Scheduled = append(result.Scheduled, assignment)

	tx.emit(newEvent(EventTypeStageScheduled, tx.now,
		fmt.Sprintf("Stage %s scheduled on %s", st.ID, slot.EquipmentID)).
		forStage(c.plan, st).
		with("start", slot.Start).
		with("end", slot.End))

	if st.AtRisk {
		tx.logger.Warn().
			Str("stage_id", st.ID).
			Str("order_id", c.order.ID).
			Time("start", slot.Start).
			Time("due_date", c.order.DueDate).
			Msg("Stage scheduled past its latest safe start")
		tx.emit(newEvent(EventTypeStageAtRisk, tx.now,
			fmt.Sprintf("Stage %s may miss due date of order %s", st.ID, c.order.ID)).
			forStage(c.plan, st).
			with("start", slot.Start).
			with("due_date", c.order.DueDate))
	}
	return BlockReasonNone, nil
}

// placeStage finds and commits a slot, retrying on calendar conflicts.
func (tx *txn) placeStage(st *ProductionStage, notBefore time.Time) (Slot, error) {
	var lastErr error
	for attempt := 0; attempt <= tx.cfg.ConflictRetries; attempt++ {
		slot, err := tx.calendar.EarliestSlot(st.EquipmentType, st.Duration, notBefore)
		if err != nil {
			return Slot{}, err
		}
		if tx.beforeCommit != nil {
			tx.beforeCommit(tx.calendar, slot)
		}

		err = tx.calendar.Commit(slot.EquipmentID, slot.Start, slot.End, st.ID)
		if err == nil {
			return slot, nil
		}
		if !IsConflict(err) {
			return Slot{}, err
		}

		lastErr = err
		tx.logger.Warn().
			Err(err).
			Str("stage_id", st.ID).
			Int("attempt", attempt+1).
			Msg("Calendar conflict, retrying")
	}

	return Slot{}, NewPermanentError("calendar conflict persisted after retry", lastErr).
		WithCode(ErrCodeInternal).
		WithResource(st.ID)
}

// isAtRisk reports whether a placement starts later than the order allows.
func (tx *txn) isAtRisk(order *Order, st *ProductionStage) bool {
	latest := order.DueDate.Add(-st.Duration).Add(-tx.cfg.AtRiskSlack)
	return st.ScheduledStart.After(latest)
}

// block defers a stage. Re-blocking for the same reason changes nothing.
func (tx *txn) block(c candidate, reason BlockReason) error {
	st := c.stage
	if st.Status == StageStatusBlocked && st.BlockReason == reason {
		return nil
	}
	if err := tx.transition(st, StageStatusBlocked); err != nil {
		return err
	}
	st.BlockReason = reason
	tx.blocked = append(tx.blocked, reason)

	tx.logger.Debug().
		Str("stage_id", st.ID).
		Str("reason", string(reason)).
		Msg("Stage deferred")

	tx.emit(newEvent(EventTypeStageBlocked, tx.now,
		fmt.Sprintf("Stage %s blocked: %s", st.ID, reason)).
		forStage(c.plan, st).
		with("reason", string(reason)))
	return nil
}
