package engine

import (
	"context"
	"testing"
	"time"
)

func TestMarkStarted_Transitions(t *testing.T) {
	h := newTestHarness(t)
	h.ingest(t, twoStageBatch("10"))

	if err := h.engine.MarkStarted(context.Background(), "S1"); !IsInvalidTransition(err) {
		t.Errorf("Starting a pending stage must fail, got %v", err)
	}
	if err := h.engine.MarkStarted(context.Background(), "nope"); !IsNotFound(err) {
		t.Errorf("Expected not found, got %v", err)
	}

	h.schedule(t)
	h.start(t, "S1")

	st := h.stage(t, "S1")
	if st.Status != StageStatusInProgress || !st.StartedAt.Equal(base) {
		t.Errorf("Unexpected stage after start: %s at %s", st.Status, st.StartedAt)
	}
	if err := h.engine.MarkStarted(context.Background(), "S1"); !IsInvalidTransition(err) {
		t.Errorf("Starting twice must fail, got %v", err)
	}
}

func TestMarkCompleted_RequiresInProgress(t *testing.T) {
	h := newTestHarness(t)
	h.ingest(t, twoStageBatch("10"))
	h.schedule(t)

	err := h.engine.MarkCompleted(context.Background(), "S1")
	if !IsInvalidTransition(err) {
		t.Fatalf("Expected invalid transition, got %v", err)
	}
	if h.metrics.errors[ErrCodeInvalidTransition] != 1 {
		t.Error("Expected invalid transition recorded in metrics")
	}
}

func TestMarkCompleted_ReleasePolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConsumptionPolicy = ConsumptionRelease

	h := newTestHarness(t, WithConfig(cfg))
	h.ingest(t, twoStageBatch("10"))
	h.schedule(t)
	h.start(t, "S1")
	h.complete(t, "S1")

	steel := h.material(t, "steel")
	if !steel.OnHand.Equal(qty("10")) || !steel.Reserved.IsZero() {
		t.Errorf("Expected hold returned to stock, got %s/%s", steel.OnHand, steel.Reserved)
	}
	if len(h.stage(t, "S1").Consumed) != 0 {
		t.Error("Release policy must not record consumption")
	}
}

func TestRecordQuality_Pass(t *testing.T) {
	h := newTestHarness(t)
	h.ingest(t, twoStageBatch("10"))
	h.schedule(t)
	h.start(t, "S1")
	h.complete(t, "S1")

	rec, err := h.engine.RecordQuality(context.Background(), "S1", QualityPass, "inspector-7", "clean cut")
	if err != nil {
		t.Fatalf("RecordQuality failed: %v", err)
	}
	if rec.ID == "" || rec.ReworkStageID != "" {
		t.Errorf("Unexpected record: %+v", rec)
	}
	if h.stage(t, "S1").Status != StageStatusCompleted {
		t.Error("A pass must not change the stage")
	}
	if got := h.engine.Snapshot().QualityRecordsFor("S1"); len(got) != 1 {
		t.Errorf("Expected 1 quality record, got %d", len(got))
	}
	if h.metrics.quality[string(QualityPass)] != 1 {
		t.Error("Expected pass result recorded in metrics")
	}
}

func TestRecordQuality_FailInsertsRework(t *testing.T) {
	h := newTestHarness(t)
	h.ingest(t, twoStageBatch("10"))
	h.schedule(t)
	h.start(t, "S1")
	h.clock.advance(2 * time.Hour)
	h.complete(t, "S1")

	rec, err := h.engine.RecordQuality(context.Background(), "S1", QualityFail, "inspector-7", "burr on edge")
	if err != nil {
		t.Fatalf("RecordQuality failed: %v", err)
	}

	snap := h.engine.Snapshot()
	plan := snap.Plans["P1"]
	if len(plan.Stages) != 3 {
		t.Fatalf("Expected rework stage inserted, got %d stages", len(plan.Stages))
	}

	failed, rework, next := plan.Stages[0], plan.Stages[1], plan.Stages[2]
	if failed.ID != "S1" || failed.Status != StageStatusFailed {
		t.Errorf("Expected S1 failed, got %s %s", failed.ID, failed.Status)
	}
	if rework.ID != rec.ReworkStageID || rework.ReworkOf != "S1" || rework.Status != StageStatusPending {
		t.Errorf("Unexpected rework stage: %+v", rework)
	}
	if rework.EquipmentType != "cutting" || rework.Duration != 2*time.Hour {
		t.Error("Rework stage must repeat the failed stage's work")
	}
	if next.ID != "S2" || next.Sequence != 2 {
		t.Errorf("Expected S2 renumbered to 2, got %s/%d", next.ID, next.Sequence)
	}
	// Everything S1 needed was consumed, so the rework needs no new material.
	if len(rework.Requirements) != 0 {
		t.Errorf("Expected no rework requirements, got %+v", rework.Requirements)
	}
	if snap.Orders["O1"].Status != OrderStatusInProduction {
		t.Errorf("Expected order still in production, got %s", snap.Orders["O1"].Status)
	}

	last := h.publisher.last()
	if last.Type != EventTypeQualityFailed || last.Data["rework_stage_id"] != rework.ID {
		t.Errorf("Expected quality_failed event with rework ID, got %+v", last)
	}

	r := h.schedule(t)
	if len(r.Scheduled) != 1 || r.Scheduled[0].StageID != rework.ID {
		t.Fatalf("Expected rework scheduled next, got %+v", r.Scheduled)
	}
	if h.stage(t, "S2").Status != StageStatusPending {
		t.Error("S2 must wait for the rework stage")
	}

	h.start(t, rework.ID)
	h.complete(t, rework.ID)
	r = h.schedule(t)
	if len(r.Scheduled) != 1 || r.Scheduled[0].StageID != "S2" {
		t.Fatalf("Expected S2 scheduled after rework, got %+v", r.Scheduled)
	}

	h.start(t, "S2")
	h.complete(t, "S2")
	if h.order(t, "O1").Status != OrderStatusCompleted {
		t.Errorf("A superseded failure must not hold the order open, got %s", h.order(t, "O1").Status)
	}
}

func TestRecordQuality_FailRequeuesScheduledSuccessors(t *testing.T) {
	h := newTestHarness(t)
	h.ingest(t, twoStageBatch("10"))
	h.schedule(t)
	h.start(t, "S1")
	h.clock.advance(2 * time.Hour)
	h.complete(t, "S1")

	// S2 is placed on W1 before the inspection comes back
	if r := h.schedule(t); len(r.Scheduled) != 1 || r.Scheduled[0].StageID != "S2" {
		t.Fatalf("Expected S2 scheduled, got %+v", r.Scheduled)
	}

	rec, err := h.engine.RecordQuality(context.Background(), "S1", QualityFail, "inspector-7", "")
	if err != nil {
		t.Fatalf("RecordQuality failed: %v", err)
	}

	s2 := h.stage(t, "S2")
	if s2.Status != StageStatusPending || s2.IsScheduled() || s2.EquipmentID != "" {
		t.Errorf("Expected S2 back to pending without placement, got %s on %q", s2.Status, s2.EquipmentID)
	}
	if n := len(h.equipment(t, "W1").Busy); n != 0 {
		t.Errorf("Expected W1 calendar cleared, got %d intervals", n)
	}
	last := h.publisher.last()
	requeued, _ := last.Data["requeued"].([]string)
	if len(requeued) != 1 || requeued[0] != "S2" {
		t.Errorf("Expected S2 reported as requeued, got %v", last.Data["requeued"])
	}

	// The rework goes first; S2 only follows it
	r := h.schedule(t)
	if len(r.Scheduled) != 1 || r.Scheduled[0].StageID != rec.ReworkStageID {
		t.Fatalf("Expected only the rework scheduled, got %+v", r.Scheduled)
	}
}

func TestRecordQuality_ReworkWhileRunningReleasesHold(t *testing.T) {
	h := newTestHarness(t)
	h.ingest(t, twoStageBatch("10"))
	h.schedule(t)
	h.start(t, "S1")

	rec, err := h.engine.RecordQuality(context.Background(), "S1", QualityRework, "inspector-7", "")
	if err != nil {
		t.Fatalf("RecordQuality failed: %v", err)
	}

	steel := h.material(t, "steel")
	if !steel.OnHand.Equal(qty("10")) || !steel.Reserved.IsZero() {
		t.Errorf("Expected hold released, got %s/%s", steel.OnHand, steel.Reserved)
	}
	if h.equipment(t, "C1").Status != EquipmentStatusIdle {
		t.Error("Expected equipment freed by failed stage")
	}

	rework := h.stage(t, rec.ReworkStageID)
	if len(rework.Requirements) != 1 || !rework.Requirements[0].Quantity.Equal(qty("4")) {
		t.Errorf("Expected rework to need the full 4 steel, got %+v", rework.Requirements)
	}
}

func TestRecordQuality_Validation(t *testing.T) {
	h := newTestHarness(t)
	h.ingest(t, twoStageBatch("10"))

	tests := []struct {
		name      string
		stageID   string
		result    QualityResult
		inspector string
		check     func(error) bool
	}{
		{"unknown result", "S1", "meh", "i", IsValidation},
		{"missing inspector", "S1", QualityPass, "", IsValidation},
		{"unknown stage", "nope", QualityPass, "i", IsNotFound},
		{"pending stage", "S1", QualityFail, "i", IsInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.RecordQuality(context.Background(), tt.stageID, tt.result, tt.inspector, "")
			if err == nil || !tt.check(err) {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}

	if got := h.engine.Snapshot().QualityRecords; len(got) != 0 {
		t.Errorf("Rejected inspections must not be recorded, got %d", len(got))
	}
}

func TestRecordQuality_FailedStageIsTerminal(t *testing.T) {
	h := newTestHarness(t)
	h.ingest(t, twoStageBatch("10"))
	h.schedule(t)
	h.start(t, "S1")
	h.complete(t, "S1")

	if _, err := h.engine.RecordQuality(context.Background(), "S1", QualityFail, "i", ""); err != nil {
		t.Fatalf("RecordQuality failed: %v", err)
	}
	if _, err := h.engine.RecordQuality(context.Background(), "S1", QualityFail, "i", ""); !IsInvalidTransition(err) {
		t.Errorf("A failed stage cannot be inspected again, got %v", err)
	}
}
