package engine

import (
	"testing"
	"time"
)

func stageWith(id string, status StageStatus) *ProductionStage {
	st := newStage(id, "x", time.Hour)
	st.Status = status
	return st
}

func TestDeriveOrderStatus(t *testing.T) {
	cancelledAt := base
	rework := stageWith("r", StageStatusCompleted)
	rework.ReworkOf = "a"

	tests := []struct {
		name      string
		cancelled bool
		plans     []*ProductionPlan
		want      OrderStatus
	}{
		{
			name: "no plans",
			want: OrderStatusPending,
		},
		{
			name:  "nothing scheduled",
			plans: []*ProductionPlan{planOf(stageWith("a", StageStatusPending), stageWith("b", StageStatusBlocked))},
			want:  OrderStatusPending,
		},
		{
			name:  "one stage scheduled",
			plans: []*ProductionPlan{planOf(stageWith("a", StageStatusScheduled), stageWith("b", StageStatusPending))},
			want:  OrderStatusInProduction,
		},
		{
			name:  "all completed",
			plans: []*ProductionPlan{planOf(stageWith("a", StageStatusCompleted), stageWith("b", StageStatusCompleted))},
			want:  OrderStatusCompleted,
		},
		{
			name:  "failure superseded by rework",
			plans: []*ProductionPlan{planOf(stageWith("a", StageStatusFailed), rework)},
			want:  OrderStatusCompleted,
		},
		{
			name:  "failure awaiting rework",
			plans: []*ProductionPlan{planOf(stageWith("a", StageStatusFailed))},
			want:  OrderStatusInProduction,
		},
		{
			name: "every plan cancelled",
			plans: []*ProductionPlan{{
				ID: "P", CancelledAt: &cancelledAt,
				Stages: []*ProductionStage{stageWith("a", StageStatusCancelled)},
			}},
			want: OrderStatusCancelled,
		},
		{
			name:      "order cancelled",
			cancelled: true,
			plans:     []*ProductionPlan{planOf(stageWith("a", StageStatusCompleted))},
			want:      OrderStatusCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := &Order{ID: "O"}
			if tt.cancelled {
				order.CancelledAt = &cancelledAt
			}
			if got := DeriveOrderStatus(order, tt.plans); got != tt.want {
				t.Errorf("DeriveOrderStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}
