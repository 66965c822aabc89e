package atlas

import (
	"fmt"
	"testing"
)

func TestNewPositionMap_AssignsInInputOrder(t *testing.T) {
	ids := []string{"a", "b", "c"}
	pm, err := NewPositionMap(ids)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expected := map[string]GridPosition{"a": "A1", "b": "A2", "c": "A3"}
	for id, want := range expected {
		if got := pm[id]; got != want {
			t.Errorf("Expected %s -> %s, got %s", id, want, got)
		}
	}
}

func TestNewPositionMap_Injective(t *testing.T) {
	for count := 1; count <= MaxGridImages; count++ {
		ids := make([]string, count)
		for i := range ids {
			ids[i] = fmt.Sprintf("img-%d", i)
		}

		pm, err := NewPositionMap(ids)
		if err != nil {
			t.Fatalf("count=%d: unexpected error: %v", count, err)
		}
		if len(pm) != count {
			t.Errorf("count=%d: expected %d entries, got %d", count, count, len(pm))
		}

		seen := map[GridPosition]bool{}
		for _, pos := range pm {
			if seen[pos] {
				t.Errorf("count=%d: position %s assigned twice", count, pos)
			}
			seen[pos] = true
		}
	}
}

func TestNewPositionMap_Bounds(t *testing.T) {
	if _, err := NewPositionMap(nil); err == nil {
		t.Error("Expected error for empty id list")
	}

	nine := make([]string, 9)
	for i := range nine {
		nine[i] = fmt.Sprintf("img-%d", i)
	}
	if _, err := NewPositionMap(nine); err != nil {
		t.Errorf("Expected 9 ids to be accepted, got error: %v", err)
	}

	ten := append(nine, "img-9")
	if _, err := NewPositionMap(ten); err == nil {
		t.Error("Expected error for 10 ids")
	}
}

func TestNewPositionMap_RejectsDuplicates(t *testing.T) {
	if _, err := NewPositionMap([]string{"a", "a"}); err == nil {
		t.Error("Expected error for duplicate ids")
	}
}

func TestPositionMap_ReverseRoundTrip(t *testing.T) {
	ids := []string{"x", "y", "z", "w", "v"}
	pm, err := NewPositionMap(ids)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	reverse := pm.Reverse()
	for _, id := range ids {
		if got := reverse[pm[id]]; got != id {
			t.Errorf("Round-trip for %q returned %q", id, got)
		}
	}
}

func TestGridPosition_RowCol(t *testing.T) {
	tests := []struct {
		pos      GridPosition
		row, col int
	}{
		{"A1", 0, 0},
		{"A3", 0, 2},
		{"B2", 1, 1},
		{"C1", 2, 0},
		{"C3", 2, 2},
	}
	for _, tt := range tests {
		row, col := tt.pos.RowCol()
		if row != tt.row || col != tt.col {
			t.Errorf("%s: expected (%d,%d), got (%d,%d)", tt.pos, tt.row, tt.col, row, col)
		}
	}
}

func TestGridPosition_Valid(t *testing.T) {
	for _, pos := range GridPositions {
		if !pos.Valid() {
			t.Errorf("Expected %s to be valid", pos)
		}
	}
	for _, invalid := range []GridPosition{"", "A", "D1", "A4", "a1", "A10"} {
		if invalid.Valid() {
			t.Errorf("Expected %q to be invalid", invalid)
		}
	}
}
