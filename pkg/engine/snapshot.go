package engine

import (
	"sort"
	"time"
)

// Snapshot is the complete persistent state of the engine.
type Snapshot struct {
	Orders         map[string]*Order          `json:"orders"`
	Plans          map[string]*ProductionPlan `json:"plans"`
	Materials      map[string]*Material       `json:"materials"`
	Equipment      map[string]*Equipment      `json:"equipment"`
	Reservations   map[string]*Reservation    `json:"reservations"`
	QualityRecords []*QualityRecord           `json:"quality_records"`

	// Revision counts committed saves. Repositories use it to refuse a save
	// based on a snapshot older than the stored one.
	Revision int64 `json:"revision"`
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Orders:       make(map[string]*Order),
		Plans:        make(map[string]*ProductionPlan),
		Materials:    make(map[string]*Material),
		Equipment:    make(map[string]*Equipment),
		Reservations: make(map[string]*Reservation),
	}
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return NewSnapshot()
	}

	c := NewSnapshot()
	c.Revision = s.Revision
	for id, o := range s.Orders {
		oc := *o
		oc.CancelledAt = cloneTime(o.CancelledAt)
		c.Orders[id] = &oc
	}
	for id, p := range s.Plans {
		c.Plans[id] = p.clone()
	}
	for id, m := range s.Materials {
		mc := *m
		c.Materials[id] = &mc
	}
	for id, e := range s.Equipment {
		ec := *e
		ec.Busy = append([]Interval(nil), e.Busy...)
		c.Equipment[id] = &ec
	}
	for tok, r := range s.Reservations {
		rc := *r
		rc.Holds = append([]Hold(nil), r.Holds...)
		c.Reservations[tok] = &rc
	}
	for _, q := range s.QualityRecords {
		qc := *q
		c.QualityRecords = append(c.QualityRecords, &qc)
	}
	return c
}

func (p *ProductionPlan) clone() *ProductionPlan {
	pc := *p
	pc.CancelledAt = cloneTime(p.CancelledAt)
	pc.Stages = make([]*ProductionStage, len(p.Stages))
	for i, st := range p.Stages {
		sc := *st
		sc.Requirements = append([]MaterialRequirement(nil), st.Requirements...)
		sc.Consumed = append([]Hold(nil), st.Consumed...)
		pc.Stages[i] = &sc
	}
	return &pc
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Stage looks up a stage by ID and returns it with its plan and position.
func (s *Snapshot) Stage(id string) (*ProductionPlan, int, bool) {
	for _, plan := range s.Plans {
		for i, st := range plan.Stages {
			if st.ID == id {
				return plan, i, true
			}
		}
	}
	return nil, -1, false
}

// PlansFor returns the plans of an order sorted by ID.
func (s *Snapshot) PlansFor(orderID string) []*ProductionPlan {
	var plans []*ProductionPlan
	for _, p := range s.Plans {
		if p.OrderID == orderID {
			plans = append(plans, p)
		}
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].ID < plans[j].ID })
	return plans
}

// OrderIDs returns all order IDs sorted.
func (s *Snapshot) OrderIDs() []string {
	return sortedKeys(s.Orders)
}

// EquipmentIDs returns all equipment IDs sorted.
func (s *Snapshot) EquipmentIDs() []string {
	return sortedKeys(s.Equipment)
}

// MaterialIDs returns all material IDs sorted.
func (s *Snapshot) MaterialIDs() []string {
	return sortedKeys(s.Materials)
}

// QualityRecordsFor returns the inspection history of a stage in recording order.
func (s *Snapshot) QualityRecordsFor(stageID string) []*QualityRecord {
	var out []*QualityRecord
	for _, q := range s.QualityRecords {
		if q.StageID == stageID {
			out = append(out, q)
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
