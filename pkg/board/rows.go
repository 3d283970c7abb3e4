package board

import (
	"fmt"
	"sort"
	"time"

	"github.com/millrun/millrun/pkg/engine"
)

// timeLayout is compact enough for a terminal column.
const timeLayout = "Jan 02 15:04"

// OrderRow summarises one order.
type OrderRow struct {
	OrderID  string
	Customer string
	Priority string
	Due      string
	Status   string
	Progress string
}

// StageRow is one stage line of the board.
type StageRow struct {
	OrderID   string
	StageID   string
	Name      string
	Status    string
	Equipment string
	Start     string
	End       string
	Note      string
}

// EquipmentRow is one equipment line of the board.
type EquipmentRow struct {
	ID      string
	Type    string
	Status  string
	Current string
	Booked  string
}

// MaterialRow is one stock line of the board.
type MaterialRow struct {
	ID        string
	OnHand    string
	Reserved  string
	Available string
	Unit      string
}

// sortedOrders returns orders in scheduling order: priority, due date, ID.
func sortedOrders(snap *engine.Snapshot) []*engine.Order {
	orders := make([]*engine.Order, 0, len(snap.Orders))
	for _, o := range snap.Orders {
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool {
		a, b := orders[i], orders[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		return a.ID < b.ID
	})
	return orders
}

// OrderRows lists orders in scheduling order.
func OrderRows(snap *engine.Snapshot) []OrderRow {
	var rows []OrderRow
	for _, o := range sortedOrders(snap) {
		done, total := 0, 0
		for _, p := range snap.PlansFor(o.ID) {
			for _, st := range p.Stages {
				total++
				if st.Status == engine.StageStatusCompleted {
					done++
				}
			}
		}
		rows = append(rows, OrderRow{
			OrderID:  o.ID,
			Customer: o.CustomerRef,
			Priority: fmt.Sprint(o.Priority),
			Due:      o.DueDate.Format(timeLayout),
			Status:   string(o.Status),
			Progress: fmt.Sprintf("%d/%d", done, total),
		})
	}
	return rows
}

// StageRows lists every stage, grouped by order in scheduling order and by
// plan, in plan sequence.
func StageRows(snap *engine.Snapshot) []StageRow {
	var rows []StageRow
	for _, o := range sortedOrders(snap) {
		for _, p := range snap.PlansFor(o.ID) {
			for _, st := range p.Stages {
				rows = append(rows, StageRow{
					OrderID:   o.ID,
					StageID:   st.ID,
					Name:      st.Name,
					Status:    string(st.Status),
					Equipment: st.EquipmentID,
					Start:     formatTime(st.ScheduledStart),
					End:       formatTime(st.ScheduledEnd),
					Note:      stageNote(p, st),
				})
			}
		}
	}
	return rows
}

func stageNote(p *engine.ProductionPlan, st *engine.ProductionStage) string {
	switch {
	case p.IsCancelled() && st.Status == engine.StageStatusCancelled:
		return "plan cancelled"
	case st.Status == engine.StageStatusBlocked:
		return string(st.BlockReason)
	case st.AtRisk:
		return "at risk"
	case st.ReworkOf != "":
		return "rework of " + st.ReworkOf
	}
	return ""
}

// EquipmentRows lists equipment by ID with the stage currently occupying it.
func EquipmentRows(snap *engine.Snapshot, now time.Time) []EquipmentRow {
	var rows []EquipmentRow
	for _, id := range snap.EquipmentIDs() {
		eq := snap.Equipment[id]
		current := ""
		for _, iv := range eq.Busy {
			if !now.Before(iv.Start) && now.Before(iv.End) {
				current = iv.StageID
				break
			}
		}
		rows = append(rows, EquipmentRow{
			ID:      eq.ID,
			Type:    eq.Type,
			Status:  string(eq.Status),
			Current: current,
			Booked:  bookedTime(eq.Busy, now).String(),
		})
	}
	return rows
}

// bookedTime is the committed time still ahead of now.
func bookedTime(busy []engine.Interval, now time.Time) time.Duration {
	var total time.Duration
	for _, iv := range busy {
		if !iv.End.After(now) {
			continue
		}
		start := iv.Start
		if start.Before(now) {
			start = now
		}
		total += iv.End.Sub(start)
	}
	return total
}

// MaterialRows lists materials by ID.
func MaterialRows(snap *engine.Snapshot) []MaterialRow {
	var rows []MaterialRow
	for _, id := range snap.MaterialIDs() {
		m := snap.Materials[id]
		rows = append(rows, MaterialRow{
			ID:        m.ID,
			OnHand:    m.OnHand.String(),
			Reserved:  m.Reserved.String(),
			Available: m.Available().String(),
			Unit:      m.Unit,
		})
	}
	return rows
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}
