package engine

import (
	"time"

	"github.com/google/uuid"
)

// Event is a domain event emitted after a state change has been committed.
type Event struct {
	// ID is the unique identifier for the event.
	ID string `json:"id"`

	// Type is the type of event.
	Type EventType `json:"type"`

	// Timestamp is when the change happened.
	Timestamp time.Time `json:"timestamp"`

	// OrderID, PlanID and StageID locate the event.
	OrderID string `json:"order_id,omitempty"`
	PlanID  string `json:"plan_id,omitempty"`
	StageID string `json:"stage_id,omitempty"`

	// EquipmentID is set for events involving equipment.
	EquipmentID string `json:"equipment_id,omitempty"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Level is the severity of the event.
	Level string `json:"level"`

	// Data contains event-specific fields.
	Data map[string]interface{} `json:"data,omitempty"`
}

func newEvent(eventType EventType, at time.Time, message string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: at,
		Message:   message,
		Level:     eventType.Severity(),
		Data:      make(map[string]interface{}),
	}
}

// forStage fills in the location fields of a stage event.
func (e *Event) forStage(plan *ProductionPlan, st *ProductionStage) *Event {
	e.OrderID = plan.OrderID
	e.PlanID = plan.ID
	e.StageID = st.ID
	e.EquipmentID = st.EquipmentID
	return e
}

// with sets a data field.
func (e *Event) with(key string, value interface{}) *Event {
	e.Data[key] = value
	return e
}
