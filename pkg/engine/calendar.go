package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Slot is a candidate placement on one equipment unit.
type Slot struct {
	EquipmentID string
	Start       time.Time
	End         time.Time
}

// EquipmentCalendar tracks committed busy intervals per equipment unit.
type EquipmentCalendar struct {
	mu        sync.Mutex
	equipment map[string]*Equipment
}

// NewEquipmentCalendar creates a calendar over the given equipment table.
// The map is mutated in place.
func NewEquipmentCalendar(equipment map[string]*Equipment) *EquipmentCalendar {
	if equipment == nil {
		equipment = make(map[string]*Equipment)
	}
	return &EquipmentCalendar{equipment: equipment}
}

// EarliestSlot finds the earliest free window of the given duration, starting
// no earlier than notBefore, across all equipment of the given type.
// Equipment under maintenance is never offered. Ties on start time go to the
// lowest equipment ID.
func (c *EquipmentCalendar) EarliestSlot(equipmentType string, duration time.Duration, notBefore time.Time) (Slot, error) {
	if duration <= 0 {
		return Slot{}, invalid("duration must be positive", equipmentType)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		best  Slot
		found bool
	)
	for _, id := range sortedKeys(c.equipment) {
		eq := c.equipment[id]
		if eq.Type != equipmentType || eq.Status == EquipmentStatusMaintenance {
			continue
		}
		start := earliestGap(eq.Busy, duration, notBefore)
		if !found || start.Before(best.Start) {
			best = Slot{EquipmentID: id, Start: start, End: start.Add(duration)}
			found = true
		}
	}

	if !found {
		return Slot{}, NewDeferredError(
			fmt.Sprintf("no available equipment of type %s", equipmentType), nil).
			WithCode(ErrCodeNoCapacity).
			WithResource(equipmentType)
	}
	return best, nil
}

// earliestGap returns the earliest start >= notBefore such that
// [start, start+duration) overlaps none of the sorted busy intervals.
func earliestGap(busy []Interval, duration time.Duration, notBefore time.Time) time.Time {
	start := notBefore
	for _, iv := range busy {
		if !iv.End.After(start) {
			continue
		}
		if !start.Add(duration).After(iv.Start) {
			break
		}
		start = iv.End
	}
	return start
}

// Commit records [start, end) as busy on the equipment for the stage.
// It fails with a conflict if the interval overlaps an existing one.
func (c *EquipmentCalendar) Commit(equipmentID string, start, end time.Time, stageID string) error {
	if !end.After(start) {
		return invalid("interval end must be after start", equipmentID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	eq, ok := c.equipment[equipmentID]
	if !ok {
		return notFound("equipment", equipmentID)
	}

	idx := sort.Search(len(eq.Busy), func(i int) bool {
		return !eq.Busy[i].Start.Before(start)
	})
	for _, n := range []int{idx - 1, idx} {
		if n < 0 || n >= len(eq.Busy) {
			continue
		}
		if eq.Busy[n].Overlaps(start, end) {
			return NewConflictError("interval overlaps committed work", nil).
				WithCode(ErrCodeConflict).
				WithResource(equipmentID).
				WithDetail("stage_id", eq.Busy[n].StageID)
		}
	}

	eq.Busy = append(eq.Busy, Interval{})
	copy(eq.Busy[idx+1:], eq.Busy[idx:])
	eq.Busy[idx] = Interval{StageID: stageID, Start: start, End: end}
	return nil
}

// Cancel removes the exact interval [start, end) from the equipment.
// It returns false if no such interval was committed.
func (c *EquipmentCalendar) Cancel(equipmentID string, start, end time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	eq, ok := c.equipment[equipmentID]
	if !ok {
		return false
	}
	for i, iv := range eq.Busy {
		if iv.Start.Equal(start) && iv.End.Equal(end) {
			eq.Busy = append(eq.Busy[:i], eq.Busy[i+1:]...)
			return true
		}
	}
	return false
}

// IntervalsFor returns a copy of the committed intervals of the equipment.
func (c *EquipmentCalendar) IntervalsFor(equipmentID string) []Interval {
	c.mu.Lock()
	defer c.mu.Unlock()

	eq, ok := c.equipment[equipmentID]
	if !ok {
		return nil
	}
	return append([]Interval(nil), eq.Busy...)
}
