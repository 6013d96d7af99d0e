package model

import (
	"math"
	"testing"
)

func TestParseLocation(t *testing.T) {
	l, err := ParseLocation("10,20")
	if err != nil {
		t.Fatalf("parse coordinates: %v", err)
	}
	if !l.HasXY || l.X != 10 || l.Y != 20 {
		t.Fatalf("got %+v", l)
	}

	l, err = ParseLocation("Main St & 5th Ave")
	if err != nil {
		t.Fatalf("parse address: %v", err)
	}
	if l.HasXY || l.Text != "Main St & 5th Ave" {
		t.Fatalf("got %+v", l)
	}

	if _, err := ParseLocation("  "); err == nil {
		t.Fatal("expected error for empty location")
	}
}

func TestDistanceTo(t *testing.T) {
	a := NewCoordinate(0, 0)
	b := NewCoordinate(3, 4)
	if d := a.DistanceTo(b); d != 5 {
		t.Fatalf("distance: got %v want 5", d)
	}

	addr := NewAddress("somewhere")
	if d := a.DistanceTo(addr); !math.IsInf(d, 1) {
		t.Fatalf("unlocated distance must be +Inf, got %v", d)
	}
	var nilLoc *Location
	if d := nilLoc.DistanceTo(b); !math.IsInf(d, 1) {
		t.Fatalf("nil distance must be +Inf, got %v", d)
	}
}
