package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaterialChecker checks and reserves material stock for stages.
// Reservations are all-or-nothing: either every requirement of a stage is
// held or none is.
type MaterialChecker struct {
	mu           sync.Mutex
	materials    map[string]*Material
	reservations map[string]*Reservation
	now          func() time.Time
}

// NewMaterialChecker creates a checker operating on the given stock and reservation tables.
// The maps are mutated in place.
func NewMaterialChecker(materials map[string]*Material, reservations map[string]*Reservation) *MaterialChecker {
	if materials == nil {
		materials = make(map[string]*Material)
	}
	if reservations == nil {
		reservations = make(map[string]*Reservation)
	}
	return &MaterialChecker{
		materials:    materials,
		reservations: reservations,
		now:          time.Now,
	}
}

// aggregateRequirements sums the requirements of a stage per material.
// The result is sorted by material ID and excludes non-positive quantities.
func aggregateRequirements(reqs []MaterialRequirement) []Hold {
	totals := make(map[string]decimal.Decimal)
	for _, r := range reqs {
		if !r.Quantity.IsPositive() {
			continue
		}
		totals[r.MaterialID] = totals[r.MaterialID].Add(r.Quantity)
	}

	holds := make([]Hold, 0, len(totals))
	for id, qty := range totals {
		holds = append(holds, Hold{MaterialID: id, Quantity: qty})
	}
	sort.Slice(holds, func(i, j int) bool { return holds[i].MaterialID < holds[j].MaterialID })
	return holds
}

// Check reports whether every requirement of the stage fits in available stock.
func (c *MaterialChecker) Check(stage *ProductionStage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shortfall(aggregateRequirements(stage.Requirements)) == ""
}

// shortfall returns the first material whose available quantity is too low.
func (c *MaterialChecker) shortfall(holds []Hold) string {
	for _, h := range holds {
		m, ok := c.materials[h.MaterialID]
		if !ok || m.Available().LessThan(h.Quantity) {
			return h.MaterialID
		}
	}
	return ""
}

// Reserve atomically holds every requirement of the stage and returns the token.
// A stage without requirements gets a token with no holds.
func (c *MaterialChecker) Reserve(stage *ProductionStage) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	holds := aggregateRequirements(stage.Requirements)
	if missing := c.shortfall(holds); missing != "" {
		err := NewDeferredError("insufficient material", nil).
			WithCode(ErrCodeInsufficientMaterial).
			WithResource(stage.ID).
			WithDetail("material_id", missing)
		if m, ok := c.materials[missing]; ok {
			err = err.WithDetail("available", m.Available().String())
		}
		return "", err
	}

	for _, h := range holds {
		m := c.materials[h.MaterialID]
		m.Reserved = m.Reserved.Add(h.Quantity)
	}

	token := uuid.New().String()
	c.reservations[token] = &Reservation{
		Token:     token,
		StageID:   stage.ID,
		Holds:     holds,
		CreatedAt: c.now(),
	}
	return token, nil
}

// Release returns the held quantities to available stock.
// Releasing an unknown or already released token is a no-op.
func (c *MaterialChecker) Release(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.reservations[token]
	if !ok {
		return
	}
	for _, h := range r.Holds {
		if m, ok := c.materials[h.MaterialID]; ok {
			m.Reserved = m.Reserved.Sub(h.Quantity)
		}
	}
	delete(c.reservations, token)
}

// Consume draws the held quantities out of stock and returns what was consumed.
// Consuming an unknown token returns nil.
func (c *MaterialChecker) Consume(token string) []Hold {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.reservations[token]
	if !ok {
		return nil
	}
	for _, h := range r.Holds {
		if m, ok := c.materials[h.MaterialID]; ok {
			m.Reserved = m.Reserved.Sub(h.Quantity)
			m.OnHand = m.OnHand.Sub(h.Quantity)
		}
	}
	delete(c.reservations, token)
	return append([]Hold(nil), r.Holds...)
}

// Available returns the unreserved quantity of a material.
func (c *MaterialChecker) Available(materialID string) (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.materials[materialID]
	if !ok {
		return decimal.Zero, false
	}
	return m.Available(), true
}

// Receive adds quantity to the on-hand stock of a material.
func (c *MaterialChecker) Receive(materialID string, quantity decimal.Decimal) error {
	if !quantity.IsPositive() {
		return invalid("received quantity must be positive", materialID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.materials[materialID]
	if !ok {
		return notFound("material", materialID)
	}
	m.OnHand = m.OnHand.Add(quantity)
	return nil
}

// Reservation returns the reservation for a token.
func (c *MaterialChecker) Reservation(token string) (*Reservation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.reservations[token]
	return r, ok
}
