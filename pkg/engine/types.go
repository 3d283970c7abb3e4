package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is a customer request to be fulfilled by one or more production plans.
type Order struct {
	// ID is the unique identifier for the order.
	ID string `json:"id" yaml:"id" validate:"required"`

	// CustomerRef is the opaque reference of the ordering customer.
	CustomerRef string `json:"customer_ref" yaml:"customer_ref"`

	// Priority orders scheduling. Lower values are served first.
	Priority int `json:"priority" yaml:"priority" validate:"gte=0"`

	// DueDate is when the order must be finished.
	DueDate time.Time `json:"due_date" yaml:"due_date" validate:"required"`

	// Status is derived from the stages of the order's plans.
	Status OrderStatus `json:"status" yaml:"-"`

	// CancelledAt is set when the order was cancelled.
	CancelledAt *time.Time `json:"cancelled_at,omitempty" yaml:"-"`

	// CreatedAt is when the order was ingested.
	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

// ProductionPlan is the ordered sequence of stages that produces an order.
type ProductionPlan struct {
	// ID is the unique identifier for the plan.
	ID string `json:"id" yaml:"id" validate:"required"`

	// OrderID is the order this plan fulfils.
	OrderID string `json:"order_id" yaml:"order_id" validate:"required"`

	// Stages is the ordered list of stages. Order defines precedence.
	Stages []*ProductionStage `json:"stages" yaml:"stages" validate:"required,min=1,dive"`

	// CancelledAt is set when the plan was cancelled.
	CancelledAt *time.Time `json:"cancelled_at,omitempty" yaml:"-"`

	// CreatedAt is when the plan was ingested.
	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

// IsCancelled reports whether the plan was cancelled.
func (p *ProductionPlan) IsCancelled() bool {
	return p.CancelledAt != nil
}

// ProductionStage is one step of a plan, executed on a single equipment unit.
type ProductionStage struct {
	// ID is the unique identifier for the stage.
	ID string `json:"id" yaml:"id" validate:"required"`

	// PlanID is the owning plan.
	PlanID string `json:"plan_id" yaml:"-"`

	// Name is a human-readable label.
	Name string `json:"name" yaml:"name"`

	// Sequence is the stage's position within its plan.
	Sequence int `json:"sequence" yaml:"-"`

	// EquipmentType is the type of equipment the stage must run on.
	EquipmentType string `json:"equipment_type" yaml:"equipment_type" validate:"required"`

	// Duration is how long the stage occupies its equipment.
	Duration time.Duration `json:"duration" yaml:"duration" validate:"gt=0"`

	// Requirements lists the materials the stage needs.
	Requirements []MaterialRequirement `json:"requirements,omitempty" yaml:"requirements" validate:"dive"`

	// Parallel marks the stage as belonging to the previous stage's group.
	// Stages in one group share predecessors and may run concurrently.
	Parallel bool `json:"parallel,omitempty" yaml:"parallel"`

	// ReworkOf is the ID of the failed stage this stage reworks.
	ReworkOf string `json:"rework_of,omitempty" yaml:"-"`

	// Status is the lifecycle status of the stage.
	Status StageStatus `json:"status" yaml:"-"`

	// BlockReason explains why the stage is blocked.
	BlockReason BlockReason `json:"block_reason,omitempty" yaml:"-"`

	// ScheduledStart and ScheduledEnd are assigned by the scheduler.
	ScheduledStart time.Time `json:"scheduled_start,omitempty" yaml:"-"`
	ScheduledEnd   time.Time `json:"scheduled_end,omitempty" yaml:"-"`

	// EquipmentID is the equipment unit the stage is placed on.
	EquipmentID string `json:"equipment_id,omitempty" yaml:"-"`

	// ReservationToken identifies the material hold taken for the stage.
	ReservationToken string `json:"reservation_token,omitempty" yaml:"-"`

	// AtRisk is set when the scheduled start jeopardises the order's due date.
	AtRisk bool `json:"at_risk,omitempty" yaml:"-"`

	// Consumed records the materials drawn from stock when the stage completed.
	Consumed []Hold `json:"consumed,omitempty" yaml:"-"`

	// StartedAt and CompletedAt track actual execution.
	StartedAt   time.Time `json:"started_at,omitempty" yaml:"-"`
	CompletedAt time.Time `json:"completed_at,omitempty" yaml:"-"`
}

// IsScheduled reports whether the stage holds a calendar placement.
func (s *ProductionStage) IsScheduled() bool {
	return !s.ScheduledStart.IsZero()
}

// clearPlacement drops the stage's calendar placement and reservation.
func (s *ProductionStage) clearPlacement() {
	s.ScheduledStart = time.Time{}
	s.ScheduledEnd = time.Time{}
	s.EquipmentID = ""
	s.ReservationToken = ""
	s.AtRisk = false
}

// MaterialRequirement is the quantity of a material a stage consumes.
type MaterialRequirement struct {
	// StageID is the stage the requirement belongs to.
	StageID string `json:"stage_id" yaml:"-"`

	// MaterialID is the required material.
	MaterialID string `json:"material_id" yaml:"material_id" validate:"required"`

	// Quantity is the amount required. Must be positive.
	Quantity decimal.Decimal `json:"quantity" yaml:"quantity" validate:"gt=0"`
}

// Material is a stock-keeping unit with on-hand and reserved quantities.
type Material struct {
	ID       string          `json:"id" yaml:"id" validate:"required"`
	Name     string          `json:"name,omitempty" yaml:"name"`
	Category string          `json:"category,omitempty" yaml:"category"`
	Unit     string          `json:"unit,omitempty" yaml:"unit"`
	OnHand   decimal.Decimal `json:"on_hand" yaml:"on_hand" validate:"gte=0"`
	Reserved decimal.Decimal `json:"reserved" yaml:"-"`
}

// Available returns the quantity that can still be reserved.
func (m *Material) Available() decimal.Decimal {
	return m.OnHand.Sub(m.Reserved)
}

// Equipment is a machine or workstation of a given type.
type Equipment struct {
	ID     string          `json:"id" yaml:"id" validate:"required"`
	Name   string          `json:"name,omitempty" yaml:"name"`
	Type   string          `json:"type" yaml:"type" validate:"required"`
	Status EquipmentStatus `json:"status" yaml:"-"`

	// Busy holds the committed intervals, sorted by start and pairwise disjoint.
	Busy []Interval `json:"busy,omitempty" yaml:"-"`
}

// Interval is a half-open time range [Start, End) committed to a stage.
type Interval struct {
	StageID string    `json:"stage_id"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// Overlaps reports whether two half-open intervals share any instant.
func (i Interval) Overlaps(start, end time.Time) bool {
	return i.Start.Before(end) && start.Before(i.End)
}

// QualityRecord is the result of inspecting a stage.
type QualityRecord struct {
	ID            string        `json:"id"`
	StageID       string        `json:"stage_id"`
	Result        QualityResult `json:"result"`
	Inspector     string        `json:"inspector"`
	Notes         string        `json:"notes,omitempty"`
	ReworkStageID string        `json:"rework_stage_id,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// Hold is a quantity of one material held for, or consumed by, a stage.
type Hold struct {
	MaterialID string          `json:"material_id"`
	Quantity   decimal.Decimal `json:"quantity"`
}

// Reservation is the set of holds taken for a single stage.
type Reservation struct {
	Token     string    `json:"token"`
	StageID   string    `json:"stage_id"`
	Holds     []Hold    `json:"holds"`
	CreatedAt time.Time `json:"created_at"`
}

// Batch is a set of entities to ingest in one operation.
type Batch struct {
	Orders    []*Order          `json:"orders,omitempty" yaml:"orders" validate:"dive"`
	Plans     []*ProductionPlan `json:"plans,omitempty" yaml:"plans" validate:"dive"`
	Materials []*Material       `json:"materials,omitempty" yaml:"materials" validate:"dive"`
	Equipment []*Equipment      `json:"equipment,omitempty" yaml:"equipment" validate:"dive"`
}

// IsEmpty reports whether the batch carries nothing.
func (b *Batch) IsEmpty() bool {
	return len(b.Orders) == 0 && len(b.Plans) == 0 && len(b.Materials) == 0 && len(b.Equipment) == 0
}
