// Package engine provides the scheduling and progress-tracking core of millrun.
//
// # Overview
//
// The engine decides when and on which equipment each production stage runs,
// whether it can legally start, and how stage outcomes propagate into plan and
// order state. It works on a plain in-memory Snapshot that a Repository loads
// and saves at operation boundaries.
//
// # Core Domain Types
//
//   - Order: a customer request with a priority and due date
//   - ProductionPlan: the ordered stages that fulfil an order
//   - ProductionStage: one step of a plan, run on one equipment unit
//   - Material: stock with on-hand and reserved quantities
//   - Equipment: a machine of a given type with committed busy intervals
//   - QualityRecord: the result of inspecting a stage
//
// # Collaborators
//
// The engine is assembled from two stateful helpers that operate on the
// snapshot:
//
//   - MaterialChecker: all-or-nothing reservation of stage requirements
//   - EquipmentCalendar: earliest-slot search and conflict-checked commits
//
// # Operations
//
// ScheduleEligibleStages runs a scheduling pass. MarkStarted, MarkCompleted
// and RecordQuality track progress. CancelPlan, CancelOrder and
// SetEquipmentMaintenance trigger rescheduling. Ingest and ReceiveMaterial
// feed new work and stock into the engine.
//
// Every operation is serialised and applied to a copy of the state. The copy
// is saved and swapped in only if the whole operation succeeds. Events are
// published to the EventPublisher after the save.
//
// # Stage Lifecycle
//
//	pending ──► scheduled ──► in_progress ──► completed
//	   │  ▲          │              │             │
//	   ▼  │          ▼              ▼             ▼
//	 blocked      pending         failed        failed
//
// Any unfinished stage may be cancelled with its plan. A failed stage is
// followed by a rework stage inserted right after it.
//
// # Error Handling
//
// Errors are classified with EngineError:
//
//   - ErrorClassDeferred: the stage can be retried later (material, capacity)
//   - ErrorClassConflict: calendar overlap on commit
//   - ErrorClassPermanent: invalid input, unknown entity or illegal transition
//
// Use IsNotFound, IsInvalidTransition, IsInsufficientMaterial and the other
// helpers to inspect errors.
package engine
