package engine

import (
	"context"
	"fmt"
)

// CancelPlan cancels every unfinished stage of a plan and releases what they hold.
// Cancelling an already cancelled plan is a no-op.
func (e *Engine) CancelPlan(ctx context.Context, planID string) error {
	return e.execute(ctx, "cancel_plan", func(tx *txn) error {
		plan, ok := tx.state.Plans[planID]
		if !ok {
			return notFound("plan", planID)
		}
		if plan.IsCancelled() {
			return nil
		}
		if err := tx.cancelPlan(plan); err != nil {
			return err
		}
		tx.refreshOrder(plan.OrderID)
		return nil
	})
}

// CancelOrder cancels an order and all of its plans.
// Cancelling an already cancelled order is a no-op; a completed order cannot
// be cancelled.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	return e.execute(ctx, "cancel_order", func(tx *txn) error {
		order, ok := tx.state.Orders[orderID]
		if !ok {
			return notFound("order", orderID)
		}
		if order.Status == OrderStatusCancelled {
			return nil
		}
		if order.Status == OrderStatusCompleted {
			return NewPermanentError(
				fmt.Sprintf("cannot cancel order in status %s", order.Status), nil).
				WithCode(ErrCodeInvalidTransition).
				WithResource(orderID)
		}

		for _, plan := range tx.state.PlansFor(orderID) {
			if plan.IsCancelled() {
				continue
			}
			if err := tx.cancelPlan(plan); err != nil {
				return err
			}
		}
		now := tx.now
		order.CancelledAt = &now
		tx.changed = true

		tx.refreshOrder(orderID)
		return nil
	})
}

// cancelPlan marks the plan cancelled and cancels its unfinished stages.
func (tx *txn) cancelPlan(plan *ProductionPlan) error {
	for _, st := range plan.Stages {
		switch st.Status {
		case StageStatusCompleted, StageStatusFailed, StageStatusCancelled:
			continue
		}

		equipmentID := st.EquipmentID
		running := st.Status == StageStatusInProgress
		if err := tx.transition(st, StageStatusCancelled); err != nil {
			return err
		}
		st.BlockReason = BlockReasonNone
		tx.unplace(st)
		if running {
			tx.settleEquipment(equipmentID)
		}
	}

	now := tx.now
	plan.CancelledAt = &now
	tx.changed = true

	tx.logger.Info().
		Str("plan_id", plan.ID).
		Str("order_id", plan.OrderID).
		Msg("Plan cancelled")
	return nil
}
