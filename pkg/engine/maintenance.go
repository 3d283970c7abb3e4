package engine

import (
	"context"
)

// SetEquipmentMaintenance takes equipment out of service.
//
// Stages still scheduled on the equipment lose their calendar hold and
// material reservation and go back to pending, so the next pass can place
// them elsewhere. Stages already running keep their placement. The IDs of
// the requeued stages are returned.
func (e *Engine) SetEquipmentMaintenance(ctx context.Context, equipmentID string) ([]string, error) {
	var requeued []string
	err := e.execute(ctx, "set_maintenance", func(tx *txn) error {
		requeued = nil
		eq, ok := tx.state.Equipment[equipmentID]
		if !ok {
			return notFound("equipment", equipmentID)
		}
		if eq.Status == EquipmentStatusMaintenance {
			return nil
		}
		eq.Status = EquipmentStatusMaintenance
		tx.changed = true

		touched := make(map[string]bool)
		for _, iv := range tx.calendar.IntervalsFor(equipmentID) {
			plan, i, ok := tx.state.Stage(iv.StageID)
			if !ok {
				continue
			}
			st := plan.Stages[i]
			if st.Status != StageStatusScheduled {
				continue
			}
			if err := tx.transition(st, StageStatusPending); err != nil {
				return err
			}
			tx.unplace(st)
			requeued = append(requeued, st.ID)
			touched[plan.OrderID] = true
		}
		for _, orderID := range sortedKeys(touched) {
			tx.refreshOrder(orderID)
		}

		tx.logger.Info().
			Str("equipment_id", equipmentID).
			Strs("requeued", requeued).
			Msg("Equipment taken out of service")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return requeued, nil
}

// ReturnEquipmentToService ends maintenance on equipment.
func (e *Engine) ReturnEquipmentToService(ctx context.Context, equipmentID string) error {
	return e.execute(ctx, "return_to_service", func(tx *txn) error {
		eq, ok := tx.state.Equipment[equipmentID]
		if !ok {
			return notFound("equipment", equipmentID)
		}
		if eq.Status != EquipmentStatusMaintenance {
			return nil
		}

		eq.Status = EquipmentStatusIdle
		for _, plan := range tx.state.Plans {
			for _, st := range plan.Stages {
				if st.EquipmentID == equipmentID && st.Status == StageStatusInProgress {
					eq.Status = EquipmentStatusBusy
				}
			}
		}
		tx.changed = true

		tx.logger.Info().
			Str("equipment_id", equipmentID).
			Str("status", string(eq.Status)).
			Msg("Equipment returned to service")
		return nil
	})
}
