package engine

import (
	"context"
	"testing"
	"time"
)

func TestScheduleEligibleStages_TwoStagePlan(t *testing.T) {
	h := newTestHarness(t)
	h.ingest(t, twoStageBatch("10"))

	result := h.schedule(t)
	if len(result.Scheduled) != 1 {
		t.Fatalf("Expected 1 scheduled stage, got %d", len(result.Scheduled))
	}
	a := result.Scheduled[0]
	if a.StageID != "S1" || a.EquipmentID != "C1" {
		t.Errorf("Expected S1 on C1, got %s on %s", a.StageID, a.EquipmentID)
	}
	if !a.Start.Equal(base) || !a.End.Equal(base.Add(2*time.Hour)) {
		t.Errorf("Unexpected slot [%s, %s)", a.Start, a.End)
	}
	if h.stage(t, "S2").Status != StageStatusPending {
		t.Error("S2 must wait for S1")
	}
	if !h.material(t, "steel").Reserved.Equal(qty("4")) {
		t.Errorf("Expected 4 steel reserved, got %s", h.material(t, "steel").Reserved)
	}
	if h.order(t, "O1").Status != OrderStatusInProduction {
		t.Errorf("Expected order in production, got %s", h.order(t, "O1").Status)
	}
	assertEventTypes(t, h.publisher.types(), EventTypeStageScheduled)

	h.start(t, "S1")
	if h.equipment(t, "C1").Status != EquipmentStatusBusy {
		t.Error("Expected C1 busy while S1 runs")
	}
	h.clock.advance(2 * time.Hour)
	h.complete(t, "S1")

	steel := h.material(t, "steel")
	if !steel.OnHand.Equal(qty("6")) || !steel.Reserved.IsZero() {
		t.Errorf("Expected 6 on hand and nothing reserved, got %s/%s", steel.OnHand, steel.Reserved)
	}
	if h.equipment(t, "C1").Status != EquipmentStatusIdle {
		t.Error("Expected C1 idle after completion")
	}

	result = h.schedule(t)
	if len(result.Scheduled) != 1 || result.Scheduled[0].StageID != "S2" {
		t.Fatalf("Expected S2 scheduled, got %+v", result.Scheduled)
	}
	if !result.Scheduled[0].Start.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("Expected S2 to start when S1 ended, got %s", result.Scheduled[0].Start)
	}

	h.start(t, "S2")
	h.clock.advance(3 * time.Hour)
	h.complete(t, "S2")

	if h.order(t, "O1").Status != OrderStatusCompleted {
		t.Errorf("Expected order completed, got %s", h.order(t, "O1").Status)
	}
	assertEventTypes(t, h.publisher.types(),
		EventTypeStageScheduled,
		EventTypeStageCompleted,
		EventTypeStageScheduled,
		EventTypeStageCompleted,
		EventTypeOrderCompleted,
	)
}

func TestScheduleEligibleStages_InsufficientMaterial(t *testing.T) {
	h := newTestHarness(t)
	h.ingest(t, twoStageBatch("3"))

	result := h.schedule(t)
	if len(result.Scheduled) != 0 {
		t.Fatalf("Expected nothing scheduled, got %d", len(result.Scheduled))
	}
	if len(result.Blocked) != 1 || result.Blocked[0].Reason != BlockReasonInsufficientMaterial {
		t.Fatalf("Expected S1 blocked on material, got %+v", result.Blocked)
	}

	st := h.stage(t, "S1")
	if st.Status != StageStatusBlocked || st.BlockReason != BlockReasonInsufficientMaterial {
		t.Errorf("Expected blocked/insufficient_material, got %s/%s", st.Status, st.BlockReason)
	}
	if !h.material(t, "steel").Reserved.IsZero() {
		t.Error("A blocked stage must hold no material")
	}
	if len(h.equipment(t, "C1").Busy) != 0 {
		t.Error("A blocked stage must hold no calendar interval")
	}
	assertEventTypes(t, h.publisher.types(), EventTypeStageBlocked)
	if h.publisher.last().Data["reason"] != string(BlockReasonInsufficientMaterial) {
		t.Errorf("Expected reason in event data, got %v", h.publisher.last().Data)
	}

	// Re-running without any change is a no-op.
	saves := h.repo.saveCount()
	h.schedule(t)
	if h.repo.saveCount() != saves {
		t.Error("Expected no save for an unchanged pass")
	}
	if h.publisher.count() != 1 {
		t.Errorf("Expected no new events, got %v", h.publisher.types())
	}

	if err := h.engine.ReceiveMaterial(context.Background(), "steel", qty("5")); err != nil {
		t.Fatalf("ReceiveMaterial failed: %v", err)
	}
	result = h.schedule(t)
	if len(result.Scheduled) != 1 || result.Scheduled[0].StageID != "S1" {
		t.Fatalf("Expected S1 scheduled after restock, got %+v", result.Scheduled)
	}
	if h.stage(t, "S1").BlockReason != BlockReasonNone {
		t.Error("Expected block reason cleared once scheduled")
	}
}

func TestScheduleEligibleStages_NoCapacity(t *testing.T) {
	h := newTestHarness(t)
	h.ingest(t, &Batch{
		Materials: []*Material{{ID: "steel", OnHand: qty("10")}},
		Orders:    []*Order{{ID: "O1", DueDate: base.Add(24 * time.Hour)}},
		Plans: []*ProductionPlan{{
			ID: "P1", OrderID: "O1",
			Stages: []*ProductionStage{newStage("S1", "painting", time.Hour, req("steel", "2"))},
		}},
	})

	result := h.schedule(t)
	if len(result.Blocked) != 1 || result.Blocked[0].Reason != BlockReasonNoCapacity {
		t.Fatalf("Expected no_capacity block, got %+v", result.Blocked)
	}
	if !h.material(t, "steel").Reserved.IsZero() {
		t.Error("Expected reservation released when no slot exists")
	}
	if h.metrics.blocked[string(BlockReasonNoCapacity)] != 1 {
		t.Errorf("Expected one no_capacity metric, got %d", h.metrics.blocked[string(BlockReasonNoCapacity)])
	}
}

func TestScheduleEligibleStages_BlockReasonChangeEmitsAgain(t *testing.T) {
	h := newTestHarness(t)
	h.ingest(t, &Batch{
		Materials: []*Material{{ID: "steel", OnHand: qty("1")}},
		Orders:    []*Order{{ID: "O1", DueDate: base.Add(24 * time.Hour)}},
		Plans: []*ProductionPlan{{
			ID: "P1", OrderID: "O1",
			Stages: []*ProductionStage{newStage("S1", "painting", time.Hour, req("steel", "2"))},
		}},
	})

	h.schedule(t)
	if err := h.engine.ReceiveMaterial(context.Background(), "steel", qty("1")); err != nil {
		t.Fatalf("ReceiveMaterial failed: %v", err)
	}
	h.schedule(t)

	assertEventTypes(t, h.publisher.types(), EventTypeStageBlocked, EventTypeStageBlocked)
	if h.stage(t, "S1").BlockReason != BlockReasonNoCapacity {
		t.Errorf("Expected no_capacity, got %s", h.stage(t, "S1").BlockReason)
	}
}

func TestScheduleEligibleStages_Ordering(t *testing.T) {
	h := newTestHarness(t)
	h.ingest(t, &Batch{
		Equipment: []*Equipment{{ID: "C1", Type: "cutting"}},
		Orders: []*Order{
			{ID: "A-low", Priority: 5, DueDate: base.Add(10 * time.Hour)},
			{ID: "B-urgent-late", Priority: 1, DueDate: base.Add(30 * time.Hour)},
			{ID: "C-urgent-early", Priority: 1, DueDate: base.Add(20 * time.Hour)},
		},
		Plans: []*ProductionPlan{
			{ID: "PA", OrderID: "A-low", Stages: []*ProductionStage{newStage("SA", "cutting", time.Hour)}},
			{ID: "PB", OrderID: "B-urgent-late", Stages: []*ProductionStage{newStage("SB", "cutting", time.Hour)}},
			{ID: "PC", OrderID: "C-urgent-early", Stages: []*ProductionStage{newStage("SC", "cutting", time.Hour)}},
		},
	})

	result := h.schedule(t)
	if len(result.Scheduled) != 3 {
		t.Fatalf("Expected 3 scheduled, got %d", len(result.Scheduled))
	}

	want := []string{"SC", "SB", "SA"}
	for i, id := range want {
		a := result.Scheduled[i]
		if a.StageID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, a.StageID)
		}
		if !a.Start.Equal(base.Add(time.Duration(i) * time.Hour)) {
			t.Errorf("Stage %s: expected start +%dh, got %s", id, i, a.Start)
		}
	}
}

func TestScheduleEligibleStages_Deterministic(t *testing.T) {
	build := func() *Batch {
		return &Batch{
			Equipment: []*Equipment{{ID: "C2", Type: "cutting"}, {ID: "C1", Type: "cutting"}},
			Orders: []*Order{
				{ID: "O2", Priority: 1, DueDate: base.Add(5 * time.Hour)},
				{ID: "O1", Priority: 1, DueDate: base.Add(5 * time.Hour)},
			},
			Plans: []*ProductionPlan{
				{ID: "P2", OrderID: "O2", Stages: []*ProductionStage{newStage("S2", "cutting", time.Hour)}},
				{ID: "P1", OrderID: "O1", Stages: []*ProductionStage{newStage("S1", "cutting", time.Hour)}},
			},
		}
	}

	var first []Assignment
	for run := 0; run < 5; run++ {
		h := newTestHarness(t)
		h.ingest(t, build())
		result := h.schedule(t)
		if run == 0 {
			first = result.Scheduled
			continue
		}
		for i := range first {
			if result.Scheduled[i].StageID != first[i].StageID ||
				result.Scheduled[i].EquipmentID != first[i].EquipmentID {
				t.Fatalf("Run %d differs: %+v vs %+v", run, result.Scheduled, first)
			}
		}
	}

	// Equal priority and due date fall back to enumeration order; ties on
	// equipment go to the lowest ID.
	if first[0].StageID != "S1" || first[0].EquipmentID != "C1" {
		t.Errorf("Expected S1 on C1 first, got %+v", first[0])
	}
	if first[1].StageID != "S2" || first[1].EquipmentID != "C2" || !first[1].Start.Equal(base) {
		t.Errorf("Expected S2 on C2 at base, got %+v", first[1])
	}
}

func TestScheduleEligibleStages_AtRisk(t *testing.T) {
	h := newTestHarness(t)
	h.ingest(t, &Batch{
		Equipment: []*Equipment{{ID: "C1", Type: "cutting"}},
		Orders:    []*Order{{ID: "O1", DueDate: base.Add(time.Hour)}},
		Plans: []*ProductionPlan{{
			ID: "P1", OrderID: "O1",
			Stages: []*ProductionStage{newStage("S1", "cutting", 2*time.Hour)},
		}},
	})

	result := h.schedule(t)
	if len(result.Scheduled) != 1 {
		t.Fatalf("At-risk stages are still scheduled, got %d", len(result.Scheduled))
	}
	if len(result.AtRisk()) != 1 {
		t.Error("Expected one at-risk placement")
	}
	if !h.stage(t, "S1").AtRisk {
		t.Error("Expected stage flagged at risk")
	}
	assertEventTypes(t, h.publisher.types(), EventTypeStageScheduled, EventTypeStageAtRisk)
}

func TestScheduleEligibleStages_AtRiskSlack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AtRiskSlack = 2 * time.Hour

	h := newTestHarness(t, WithConfig(cfg))
	h.ingest(t, &Batch{
		Equipment: []*Equipment{{ID: "C1", Type: "cutting"}},
		Orders:    []*Order{{ID: "O1", DueDate: base.Add(3 * time.Hour)}},
		Plans: []*ProductionPlan{{
			ID: "P1", OrderID: "O1",
			Stages: []*ProductionStage{newStage("S1", "cutting", 2*time.Hour)},
		}},
	})

	// Latest safe start is due - duration - slack = base - 1h.
	result := h.schedule(t)
	if len(result.AtRisk()) != 1 {
		t.Error("Expected slack to flag the placement at risk")
	}
}

func TestScheduleEligibleStages_ParallelGroup(t *testing.T) {
	h := newTestHarness(t)
	h.ingest(t, &Batch{
		Equipment: []*Equipment{{ID: "C1", Type: "cutting"}, {ID: "C2", Type: "cutting"}, {ID: "A1", Type: "assembly"}},
		Orders:    []*Order{{ID: "O1", DueDate: base.Add(24 * time.Hour)}},
		Plans: []*ProductionPlan{{
			ID: "P1", OrderID: "O1",
			Stages: []*ProductionStage{
				newStage("left", "cutting", time.Hour),
				parallel(newStage("right", "cutting", 2*time.Hour)),
				newStage("join", "assembly", time.Hour),
			},
		}},
	})

	result := h.schedule(t)
	if len(result.Scheduled) != 2 {
		t.Fatalf("Expected both parallel stages scheduled, got %+v", result.Scheduled)
	}
	for _, a := range result.Scheduled {
		if !a.Start.Equal(base) {
			t.Errorf("Expected %s to start at base, got %s", a.StageID, a.Start)
		}
	}

	h.start(t, "left")
	h.start(t, "right")
	h.clock.advance(time.Hour)
	h.complete(t, "left")

	if r := h.schedule(t); len(r.Scheduled) != 0 {
		t.Fatalf("join must wait for the whole group, got %+v", r.Scheduled)
	}

	h.clock.advance(time.Hour)
	h.complete(t, "right")

	r := h.schedule(t)
	if len(r.Scheduled) != 1 || r.Scheduled[0].StageID != "join" {
		t.Fatalf("Expected join scheduled, got %+v", r.Scheduled)
	}
	if !r.Scheduled[0].Start.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("Expected join at base+2h, got %s", r.Scheduled[0].Start)
	}
}

func TestScheduleEligibleStages_RespectsPredecessorEnd(t *testing.T) {
	h := newTestHarness(t)
	h.ingest(t, &Batch{
		Equipment: []*Equipment{{ID: "C1", Type: "cutting"}, {ID: "W1", Type: "welding"}},
		Orders:    []*Order{{ID: "O1", DueDate: base.Add(24 * time.Hour)}},
		Plans: []*ProductionPlan{{
			ID: "P1", OrderID: "O1",
			Stages: []*ProductionStage{
				newStage("S1", "cutting", 4*time.Hour),
				newStage("S2", "welding", time.Hour),
			},
		}},
	})

	h.schedule(t)
	h.start(t, "S1")
	// Finished early; the next stage still waits for the committed slot end.
	h.clock.advance(time.Hour)
	h.complete(t, "S1")

	r := h.schedule(t)
	if len(r.Scheduled) != 1 || !r.Scheduled[0].Start.Equal(base.Add(4*time.Hour)) {
		t.Fatalf("Expected S2 at base+4h, got %+v", r.Scheduled)
	}
}

func TestScheduleEligibleStages_NoOverlapOnSharedEquipment(t *testing.T) {
	h := newTestHarness(t)
	var plans []*ProductionPlan
	var orders []*Order
	for _, id := range []string{"1", "2", "3", "4"} {
		orders = append(orders, &Order{ID: "O" + id, DueDate: base.Add(24 * time.Hour)})
		plans = append(plans, &ProductionPlan{
			ID: "P" + id, OrderID: "O" + id,
			Stages: []*ProductionStage{newStage("S"+id, "cutting", 90*time.Minute)},
		})
	}
	h.ingest(t, &Batch{
		Equipment: []*Equipment{{ID: "C1", Type: "cutting"}, {ID: "C2", Type: "cutting"}},
		Orders:    orders,
		Plans:     plans,
	})

	h.schedule(t)

	for _, id := range []string{"C1", "C2"} {
		busy := h.equipment(t, id).Busy
		if len(busy) != 2 {
			t.Errorf("Expected 2 intervals on %s, got %d", id, len(busy))
		}
		for i := 1; i < len(busy); i++ {
			if busy[i-1].Overlaps(busy[i].Start, busy[i].End) {
				t.Errorf("Overlapping intervals on %s: %+v", id, busy)
			}
		}
	}
}

func TestScheduleEligibleStages_SkipsCancelledOrders(t *testing.T) {
	h := newTestHarness(t)
	h.ingest(t, twoStageBatch("10"))

	if err := h.engine.CancelOrder(context.Background(), "O1"); err != nil {
		t.Fatalf("CancelOrder failed: %v", err)
	}
	if r := h.schedule(t); r.Considered != 0 {
		t.Errorf("Expected no candidates, got %d", r.Considered)
	}
}

func TestScheduleEligibleStages_RecordsMetrics(t *testing.T) {
	h := newTestHarness(t)
	h.ingest(t, twoStageBatch("10"))
	h.schedule(t)

	if h.metrics.passes != 1 {
		t.Errorf("Expected 1 pass recorded, got %d", h.metrics.passes)
	}
	if h.metrics.transitions[string(StageStatusScheduled)] != 1 {
		t.Errorf("Expected 1 scheduled transition, got %d", h.metrics.transitions[string(StageStatusScheduled)])
	}
}

// occupySlot commits a foreign interval over every slot the scheduler picks,
// up to limit times.
func occupySlot(limit int) (func(*EquipmentCalendar, Slot), *int) {
	calls := 0
	return func(cal *EquipmentCalendar, slot Slot) {
		calls++
		if calls <= limit {
			_ = cal.Commit(slot.EquipmentID, slot.Start, slot.End, "maintenance")
		}
	}, &calls
}

func TestScheduleEligibleStages_RetriesCalendarConflictOnce(t *testing.T) {
	h := newTestHarness(t)
	h.ingest(t, twoStageBatch("10"))

	hook, calls := occupySlot(1)
	h.engine.beforeCommit = hook

	result := h.schedule(t)
	if *calls != 2 {
		t.Errorf("Expected 2 placement attempts, got %d", *calls)
	}
	if len(result.Scheduled) != 1 {
		t.Fatalf("Expected S1 scheduled after retry, got %+v", result.Scheduled)
	}
	// The first slot was taken, so S1 lands right after it
	if a := result.Scheduled[0]; !a.Start.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("Expected S1 at %s, got %s", base.Add(2*time.Hour), a.Start)
	}
	if n := len(h.equipment(t, "C1").Busy); n != 2 {
		t.Errorf("Expected 2 busy intervals on C1, got %d", n)
	}
}

func TestScheduleEligibleStages_PersistentConflictIsInternal(t *testing.T) {
	h := newTestHarness(t)
	h.ingest(t, twoStageBatch("10"))
	saves := h.repo.saveCount()

	hook, calls := occupySlot(100)
	h.engine.beforeCommit = hook

	_, err := h.engine.ScheduleEligibleStages(context.Background())
	if !IsPermanent(err) || !hasCode(err, ErrCodeInternal) {
		t.Fatalf("Expected permanent INTERNAL_ERROR, got %v", err)
	}
	if *calls != DefaultConfig().ConflictRetries+1 {
		t.Errorf("Expected %d placement attempts, got %d", DefaultConfig().ConflictRetries+1, *calls)
	}

	if h.stage(t, "S1").Status != StageStatusPending {
		t.Errorf("Expected S1 still pending, got %s", h.stage(t, "S1").Status)
	}
	if len(h.equipment(t, "C1").Busy) != 0 {
		t.Error("Expected no intervals left on C1")
	}
	if !h.material(t, "steel").Reserved.IsZero() {
		t.Errorf("Expected nothing reserved, got %s", h.material(t, "steel").Reserved)
	}
	if h.repo.saveCount() != saves || h.publisher.count() != 0 {
		t.Error("Expected nothing saved or published")
	}
	if h.metrics.errors[ErrCodeInternal] != 1 {
		t.Errorf("Expected one internal error recorded, got %v", h.metrics.errors)
	}
}
