package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Ingest adds new orders, plans, materials and equipment.
//
// The batch is applied as a whole: any duplicate ID, dangling reference or
// malformed plan rejects it entirely. Stage statuses, sequences and order
// statuses are initialised by the engine.
func (e *Engine) Ingest(ctx context.Context, batch *Batch) error {
	if batch == nil || batch.IsEmpty() {
		return NewPermanentError("batch is empty", nil).WithCode(ErrCodeValidation)
	}

	return e.execute(ctx, "ingest", func(tx *txn) error {
		s := tx.state

		for _, m := range batch.Materials {
			if m == nil || m.ID == "" {
				return invalid("material has empty ID", "")
			}
			if _, exists := s.Materials[m.ID]; exists {
				return alreadyExists("material", m.ID)
			}
			if m.OnHand.IsNegative() {
				return invalid("on-hand quantity must not be negative", m.ID)
			}
			mc := *m
			mc.Reserved = decimal.Zero
			s.Materials[m.ID] = &mc
		}

		for _, eq := range batch.Equipment {
			if eq == nil || eq.ID == "" {
				return invalid("equipment has empty ID", "")
			}
			if _, exists := s.Equipment[eq.ID]; exists {
				return alreadyExists("equipment", eq.ID)
			}
			if eq.Type == "" {
				return invalid("equipment has no type", eq.ID)
			}
			ec := *eq
			ec.Busy = nil
			if ec.Status == "" {
				ec.Status = EquipmentStatusIdle
			}
			if err := ec.Status.Validate(); err != nil {
				return NewPermanentError("invalid equipment", err).WithCode(ErrCodeValidation).WithResource(eq.ID)
			}
			s.Equipment[eq.ID] = &ec
		}

		for _, o := range batch.Orders {
			if o == nil || o.ID == "" {
				return invalid("order has empty ID", "")
			}
			if _, exists := s.Orders[o.ID]; exists {
				return alreadyExists("order", o.ID)
			}
			if o.DueDate.IsZero() {
				return invalid("order has no due date", o.ID)
			}
			oc := *o
			oc.DueDate = o.DueDate.UTC()
			oc.Status = OrderStatusPending
			oc.CancelledAt = nil
			oc.CreatedAt = tx.now
			s.Orders[o.ID] = &oc
		}

		stageIDs := make(map[string]bool)
		for _, plan := range s.Plans {
			for _, st := range plan.Stages {
				stageIDs[st.ID] = true
			}
		}

		touched := make(map[string]bool)
		for _, p := range batch.Plans {
			if err := ValidatePlan(p); err != nil {
				return err
			}
			if _, exists := s.Plans[p.ID]; exists {
				return alreadyExists("plan", p.ID)
			}
			order, ok := s.Orders[p.OrderID]
			if !ok {
				return notFound("order", p.OrderID).WithDetail("plan_id", p.ID)
			}
			if order.CancelledAt != nil {
				return NewPermanentError("cannot add a plan to a cancelled order", nil).
					WithCode(ErrCodeInvalidTransition).
					WithResource(p.OrderID).
					WithDetail("plan_id", p.ID)
			}

			pc := p.clone()
			pc.CancelledAt = nil
			pc.CreatedAt = tx.now
			for i, st := range pc.Stages {
				if stageIDs[st.ID] {
					return alreadyExists("stage", st.ID)
				}
				stageIDs[st.ID] = true

				for _, r := range st.Requirements {
					if _, ok := s.Materials[r.MaterialID]; !ok {
						return notFound("material", r.MaterialID).WithDetail("stage_id", st.ID)
					}
				}
				resetStage(pc, i, st)
			}
			s.Plans[pc.ID] = pc
			touched[pc.OrderID] = true
		}

		tx.changed = true
		for _, orderID := range sortedKeys(touched) {
			tx.refreshOrder(orderID)
		}

		tx.logger.Info().
			Int("orders", len(batch.Orders)).
			Int("plans", len(batch.Plans)).
			Int("materials", len(batch.Materials)).
			Int("equipment", len(batch.Equipment)).
			Msg("Batch ingested")
		return nil
	})
}

// resetStage initialises the engine-owned fields of a newly ingested stage.
func resetStage(plan *ProductionPlan, i int, st *ProductionStage) {
	st.PlanID = plan.ID
	st.Sequence = i
	st.Status = StageStatusPending
	st.BlockReason = BlockReasonNone
	st.ReworkOf = ""
	st.Consumed = nil
	st.StartedAt = time.Time{}
	st.CompletedAt = time.Time{}
	st.clearPlacement()
	for r := range st.Requirements {
		st.Requirements[r].StageID = st.ID
	}
}

// ReceiveMaterial adds stock to a material.
func (e *Engine) ReceiveMaterial(ctx context.Context, materialID string, quantity decimal.Decimal) error {
	return e.execute(ctx, "receive_material", func(tx *txn) error {
		if err := tx.materials.Receive(materialID, quantity); err != nil {
			return err
		}
		tx.changed = true

		tx.logger.Info().
			Str("material_id", materialID).
			Str("quantity", quantity.String()).
			Msg("Material received")
		return nil
	})
}

func alreadyExists(kind, id string) *EngineError {
	return NewPermanentError(fmt.Sprintf("%s already exists", kind), nil).
		WithCode(ErrCodeAlreadyExists).
		WithResource(id)
}
