package engine

import (
	"encoding/json"
	"fmt"
)

// OrderStatus represents the derived status of a customer order.
type OrderStatus string

const (
	// OrderStatusPending indicates no stage of the order has been scheduled yet.
	OrderStatusPending OrderStatus = "pending"

	// OrderStatusInProduction indicates at least one stage has been scheduled or worked on.
	OrderStatusInProduction OrderStatus = "in_production"

	// OrderStatusCompleted indicates every stage of every plan is done.
	OrderStatusCompleted OrderStatus = "completed"

	// OrderStatusCancelled indicates the order was cancelled. Terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsTerminal returns true if the order status represents a final state.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// Validate checks if the order status is valid.
func (s OrderStatus) Validate() error {
	switch s {
	case OrderStatusPending, OrderStatusInProduction, OrderStatusCompleted, OrderStatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid order status: %s", s)
	}
}

// StageStatus represents the lifecycle status of a production stage.
type StageStatus string

const (
	// StageStatusPending indicates the stage is waiting to be scheduled.
	StageStatusPending StageStatus = "pending"

	// StageStatusBlocked indicates the last scheduling attempt was deferred.
	// BlockReason carries the cause.
	StageStatusBlocked StageStatus = "blocked"

	// StageStatusScheduled indicates equipment, time and materials are assigned.
	StageStatusScheduled StageStatus = "scheduled"

	// StageStatusInProgress indicates the stage is being worked on.
	StageStatusInProgress StageStatus = "in_progress"

	// StageStatusCompleted indicates the stage finished.
	StageStatusCompleted StageStatus = "completed"

	// StageStatusFailed indicates the stage failed quality inspection.
	StageStatusFailed StageStatus = "failed"

	// StageStatusCancelled indicates the owning plan or order was cancelled.
	StageStatusCancelled StageStatus = "cancelled"
)

// stageTransitions is the closed transition table for stage statuses.
var stageTransitions = map[StageStatus][]StageStatus{
	StageStatusPending:    {StageStatusBlocked, StageStatusScheduled, StageStatusCancelled},
	StageStatusBlocked:    {StageStatusPending, StageStatusBlocked, StageStatusScheduled, StageStatusCancelled},
	StageStatusScheduled:  {StageStatusInProgress, StageStatusPending, StageStatusCancelled},
	StageStatusInProgress: {StageStatusCompleted, StageStatusFailed, StageStatusCancelled},
	StageStatusCompleted:  {StageStatusFailed},
	StageStatusFailed:     {},
	StageStatusCancelled:  {},
}

// CanTransitionTo reports whether the transition table allows moving to next.
func (s StageStatus) CanTransitionTo(next StageStatus) bool {
	for _, allowed := range stageTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transition is possible.
func (s StageStatus) IsTerminal() bool {
	return s == StageStatusFailed || s == StageStatusCancelled
}

// IsSchedulable returns true if the scheduler may consider the stage.
func (s StageStatus) IsSchedulable() bool {
	return s == StageStatusPending || s == StageStatusBlocked
}

// HasStarted returns true once the stage has been placed on the calendar or beyond.
func (s StageStatus) HasStarted() bool {
	return s == StageStatusScheduled || s == StageStatusInProgress ||
		s == StageStatusCompleted || s == StageStatusFailed
}

// Validate checks if the stage status is valid.
func (s StageStatus) Validate() error {
	if _, ok := stageTransitions[s]; !ok {
		return fmt.Errorf("invalid stage status: %s", s)
	}
	return nil
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s StageStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *StageStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = StageStatus(str)
	return s.Validate()
}

// BlockReason records why a stage could not be scheduled.
type BlockReason string

const (
	// BlockReasonNone means the stage is not blocked.
	BlockReasonNone BlockReason = ""

	// BlockReasonInsufficientMaterial means a material requirement could not be reserved.
	BlockReasonInsufficientMaterial BlockReason = "insufficient_material"

	// BlockReasonNoCapacity means no equipment of the required type had a free slot.
	BlockReasonNoCapacity BlockReason = "no_capacity"
)

// EquipmentStatus represents the operational status of an equipment unit.
type EquipmentStatus string

const (
	EquipmentStatusIdle        EquipmentStatus = "idle"
	EquipmentStatusBusy        EquipmentStatus = "busy"
	EquipmentStatusMaintenance EquipmentStatus = "maintenance"
)

// Validate checks if the equipment status is valid.
func (s EquipmentStatus) Validate() error {
	switch s {
	case EquipmentStatusIdle, EquipmentStatusBusy, EquipmentStatusMaintenance:
		return nil
	default:
		return fmt.Errorf("invalid equipment status: %s", s)
	}
}

// QualityResult is the outcome of a quality inspection.
type QualityResult string

const (
	QualityPass   QualityResult = "pass"
	QualityFail   QualityResult = "fail"
	QualityRework QualityResult = "rework"
)

// RequiresRework returns true if the result sends the work back through a rework stage.
func (r QualityResult) RequiresRework() bool {
	return r == QualityFail || r == QualityRework
}

// Validate checks if the quality result is valid.
func (r QualityResult) Validate() error {
	switch r {
	case QualityPass, QualityFail, QualityRework:
		return nil
	default:
		return fmt.Errorf("invalid quality result: %s", r)
	}
}

// EventType represents the type of a domain event emitted by the engine.
type EventType string

const (
	EventTypeStageScheduled EventType = "stage_scheduled"
	EventTypeStageAtRisk    EventType = "stage_at_risk"
	EventTypeStageBlocked   EventType = "stage_blocked"
	EventTypeStageCompleted EventType = "stage_completed"
	EventTypeQualityFailed  EventType = "quality_failed"
	EventTypeOrderCompleted EventType = "order_completed"
	EventTypeOrderCancelled EventType = "order_cancelled"
)

// Severity returns the severity level of the event type.
func (e EventType) Severity() string {
	switch e {
	case EventTypeQualityFailed:
		return "error"
	case EventTypeStageAtRisk, EventTypeStageBlocked, EventTypeOrderCancelled:
		return "warning"
	default:
		return "info"
	}
}

// ConsumptionPolicy decides what happens to a stage's material reservation on completion.
type ConsumptionPolicy string

const (
	// ConsumptionConsume decrements on-hand stock by the reserved quantities.
	ConsumptionConsume ConsumptionPolicy = "consume"

	// ConsumptionRelease returns the reserved quantities to available stock.
	ConsumptionRelease ConsumptionPolicy = "release"
)

// Validate checks if the consumption policy is valid.
func (p ConsumptionPolicy) Validate() error {
	switch p {
	case ConsumptionConsume, ConsumptionRelease:
		return nil
	default:
		return fmt.Errorf("invalid consumption policy: %s", p)
	}
}
