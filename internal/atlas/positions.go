package atlas

import (
	"fmt"
	"sort"
)

// GridPosition is one of the nine fixed cell labels of the 3x3 atlas grid,
// row-major: A1 A2 A3 / B1 B2 B3 / C1 C2 C3.
type GridPosition string

// GridPositions lists every label in (row, column) order.
var GridPositions = [9]GridPosition{
	"A1", "A2", "A3",
	"B1", "B2", "B3",
	"C1", "C2", "C3",
}

// MaxGridImages is the cell capacity of one atlas.
const MaxGridImages = 9

// Valid reports whether the label names a real grid cell
func (p GridPosition) Valid() bool {
	if len(p) != 2 {
		return false
	}
	return p[0] >= 'A' && p[0] <= 'C' && p[1] >= '1' && p[1] <= '3'
}

// RowCol returns the zero-based row and column encoded by the label
func (p GridPosition) RowCol() (int, int) {
	return int(p[0] - 'A'), int(p[1] - '1')
}

// PositionMap maps image identifiers to grid labels for one atlas.
// It is injective and covers exactly the images of the build.
type PositionMap map[string]GridPosition

// NewPositionMap assigns positions in input order: the first id gets A1,
// the second A2, and so on. Duplicate ids or more than nine entries are
// rejected.
func NewPositionMap(imageIDs []string) (PositionMap, error) {
	if len(imageIDs) == 0 {
		return nil, fmt.Errorf("no image ids supplied")
	}
	if len(imageIDs) > MaxGridImages {
		return nil, fmt.Errorf("too many images for one atlas: %d (max %d)", len(imageIDs), MaxGridImages)
	}

	pm := make(PositionMap, len(imageIDs))
	for i, id := range imageIDs {
		if _, exists := pm[id]; exists {
			return nil, fmt.Errorf("duplicate image id %q", id)
		}
		pm[id] = GridPositions[i]
	}
	return pm, nil
}

// Reverse returns the position-to-id lookup used by prompt rendering and
// result remapping
func (pm PositionMap) Reverse() map[GridPosition]string {
	rev := make(map[GridPosition]string, len(pm))
	for id, pos := range pm {
		rev[pos] = id
	}
	return rev
}

// IDsInGridOrder returns the mapped image ids sorted by their grid position
func (pm PositionMap) IDsInGridOrder() []string {
	ids := make([]string, 0, len(pm))
	for id := range pm {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return pm[ids[i]] < pm[ids[j]]
	})
	return ids
}
