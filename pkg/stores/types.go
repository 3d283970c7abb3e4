package stores

import (
	"context"
	"time"

	"github.com/millrun/millrun/pkg/engine"
)

// EventRecord represents an append-only log entry of a published engine event
type EventRecord struct {
	ID          int64     `json:"id"`
	EventID     string    `json:"event_id"`
	Type        string    `json:"type"`
	Level       string    `json:"level"`
	OrderID     string    `json:"order_id,omitempty"`
	PlanID      string    `json:"plan_id,omitempty"`
	StageID     string    `json:"stage_id,omitempty"`
	EquipmentID string    `json:"equipment_id,omitempty"`
	Message     string    `json:"message"`
	Details     string    `json:"details,omitempty"` // JSON blob
	Timestamp   time.Time `json:"timestamp"`
}

// EventFilter narrows an event log query. Empty fields match everything.
type EventFilter struct {
	Type    string
	OrderID string
	StageID string
}

func (f EventFilter) matches(r *EventRecord) bool {
	return (f.Type == "" || f.Type == r.Type) &&
		(f.OrderID == "" || f.OrderID == r.OrderID) &&
		(f.StageID == "" || f.StageID == r.StageID)
}

// Store defines the interface for the persistence layer
type Store interface {
	engine.Repository

	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Event log
	AppendEvent(ctx context.Context, event *engine.Event) error
	GetEvents(ctx context.Context, filter EventFilter, limit, offset int) ([]*EventRecord, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
