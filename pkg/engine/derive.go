package engine

import "fmt"

// DeriveOrderStatus computes an order's status from its plans.
//
// An order is cancelled when it was cancelled directly or when all of its
// plans were cancelled. It is completed when every stage of its remaining
// plans is done, in production once any stage has been scheduled, and
// pending otherwise. An order without plans is pending.
func DeriveOrderStatus(order *Order, plans []*ProductionPlan) OrderStatus {
	if order.CancelledAt != nil {
		return OrderStatusCancelled
	}

	var (
		active  int
		total   int
		done    int
		started bool
	)
	for _, plan := range plans {
		if plan.IsCancelled() {
			continue
		}
		active++
		for _, st := range plan.Stages {
			total++
			if stageDone(plan, st) {
				done++
			}
			if st.Status.HasStarted() {
				started = true
			}
		}
	}

	switch {
	case len(plans) > 0 && active == 0:
		return OrderStatusCancelled
	case total > 0 && done == total:
		return OrderStatusCompleted
	case started:
		return OrderStatusInProduction
	default:
		return OrderStatusPending
	}
}

// refreshOrder re-derives an order's status and emits the terminal events.
func (tx *txn) refreshOrder(orderID string) {
	order, ok := tx.state.Orders[orderID]
	if !ok {
		return
	}

	next := DeriveOrderStatus(order, tx.state.PlansFor(orderID))
	if next == order.Status {
		return
	}

	prev := order.Status
	order.Status = next
	tx.changed = true

	tx.logger.Info().
		Str("order_id", orderID).
		Str("from", string(prev)).
		Str("to", string(next)).
		Msg("Order status changed")

	switch next {
	case OrderStatusCompleted:
		ev := newEvent(EventTypeOrderCompleted, tx.now, fmt.Sprintf("Order %s completed", orderID))
		ev.OrderID = orderID
		tx.emit(ev.with("due_date", order.DueDate).with("late", tx.now.After(order.DueDate)))
	case OrderStatusCancelled:
		ev := newEvent(EventTypeOrderCancelled, tx.now, fmt.Sprintf("Order %s cancelled", orderID))
		ev.OrderID = orderID
		tx.emit(ev)
	}
}
