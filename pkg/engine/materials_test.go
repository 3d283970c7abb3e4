package engine

import (
	"testing"
)

func newTestChecker() *MaterialChecker {
	return NewMaterialChecker(map[string]*Material{
		"steel": {ID: "steel", OnHand: qty("10")},
		"bolts": {ID: "bolts", OnHand: qty("100")},
	}, nil)
}

func TestMaterialChecker_Check(t *testing.T) {
	c := newTestChecker()

	tests := []struct {
		name string
		reqs []MaterialRequirement
		want bool
	}{
		{"no requirements", nil, true},
		{"fits", []MaterialRequirement{req("steel", "10")}, true},
		{"too much", []MaterialRequirement{req("steel", "10.5")}, false},
		{"unknown material", []MaterialRequirement{req("gold", "1")}, false},
		{"summed per material", []MaterialRequirement{req("steel", "6"), req("steel", "6")}, false},
		{"several materials", []MaterialRequirement{req("steel", "1"), req("bolts", "8")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &ProductionStage{ID: "S", Requirements: tt.reqs}
			if got := c.Check(st); got != tt.want {
				t.Errorf("Check() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMaterialChecker_ReserveIsAllOrNothing(t *testing.T) {
	c := newTestChecker()
	st := &ProductionStage{ID: "S", Requirements: []MaterialRequirement{
		req("bolts", "8"),
		req("steel", "11"),
	}}

	_, err := c.Reserve(st)
	if !IsInsufficientMaterial(err) {
		t.Fatalf("Expected insufficient material, got %v", err)
	}
	if !IsDeferred(err) {
		t.Error("Insufficient material is a deferral")
	}

	if avail, _ := c.Available("bolts"); !avail.Equal(qty("100")) {
		t.Errorf("Failed reservation must not hold bolts, available %s", avail)
	}
}

func TestMaterialChecker_ReserveAndRelease(t *testing.T) {
	c := newTestChecker()
	st := &ProductionStage{ID: "S", Requirements: []MaterialRequirement{req("steel", "4")}}

	token, err := c.Reserve(st)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if avail, _ := c.Available("steel"); !avail.Equal(qty("6")) {
		t.Errorf("Expected 6 available, got %s", avail)
	}

	r, ok := c.Reservation(token)
	if !ok || r.StageID != "S" || len(r.Holds) != 1 {
		t.Errorf("Unexpected reservation: %+v", r)
	}

	c.Release(token)
	c.Release(token)
	c.Release("unknown")

	if avail, _ := c.Available("steel"); !avail.Equal(qty("10")) {
		t.Errorf("Expected 10 available after release, got %s", avail)
	}
}

func TestMaterialChecker_Consume(t *testing.T) {
	c := newTestChecker()
	st := &ProductionStage{ID: "S", Requirements: []MaterialRequirement{req("steel", "2.5"), req("steel", "1.5")}}

	token, err := c.Reserve(st)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	consumed := c.Consume(token)
	if len(consumed) != 1 || !consumed[0].Quantity.Equal(qty("4")) {
		t.Errorf("Expected 4 steel consumed, got %+v", consumed)
	}
	if c.Consume(token) != nil {
		t.Error("Consuming twice must be a no-op")
	}

	m := c.materials["steel"]
	if !m.OnHand.Equal(qty("6")) || !m.Reserved.IsZero() {
		t.Errorf("Expected 6 on hand and nothing reserved, got %s/%s", m.OnHand, m.Reserved)
	}
}

func TestMaterialChecker_ReservedNeverExceedsOnHand(t *testing.T) {
	c := newTestChecker()
	for i := 0; i < 5; i++ {
		_, _ = c.Reserve(&ProductionStage{ID: "S", Requirements: []MaterialRequirement{req("steel", "3")}})
	}

	m := c.materials["steel"]
	if m.Reserved.GreaterThan(m.OnHand) {
		t.Errorf("Reserved %s exceeds on hand %s", m.Reserved, m.OnHand)
	}
	if !m.Reserved.Equal(qty("9")) {
		t.Errorf("Expected 3 successful reservations, got %s reserved", m.Reserved)
	}
}

func TestMaterialChecker_Receive(t *testing.T) {
	c := newTestChecker()

	if err := c.Receive("steel", qty("5")); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if avail, _ := c.Available("steel"); !avail.Equal(qty("15")) {
		t.Errorf("Expected 15 available, got %s", avail)
	}
	if err := c.Receive("steel", qty("0")); !IsValidation(err) {
		t.Errorf("Expected validation error, got %v", err)
	}
	if _, ok := c.Available("gold"); ok {
		t.Error("Unknown material must not be available")
	}
}
