// Package board holds a player's fleet layout and the queries used to resolve
// attacks against it.
package board

import (
	"errors"
	"fmt"
	"sort"
)

// Size is the width and height of the grid.
const Size = 10

// CellCount is the number of addressable cells on the grid.
const CellCount = Size * Size

var (
	ErrEmptyFleet    = errors.New("board has no ships")
	ErrEmptyShipID   = errors.New("ship id is empty")
	ErrEmptyShip     = errors.New("ship has no cells")
	ErrCellOutOfGrid = errors.New("cell index outside grid")
)

// Index converts a coordinate to a cell index. Callers check InBounds first.
func Index(x, y int) int {
	return y*Size + x
}

// InBounds reports whether (x, y) lies on the grid.
func InBounds(x, y int) bool {
	return x >= 0 && x < Size && y >= 0 && y < Size
}

// Board maps ship ids to the cells they occupy. The zero value is an empty
// fleet; build boards with New.
type Board struct {
	ships map[string][]int
	cover [CellCount][]string // ship ids on each cell, sorted
}

// New validates a submitted layout and builds a Board from it.
//
// Cells of different ships are expected to be disjoint but that is not
// checked. When two ships claim the same cell the lexicographically first
// ship id owns it for ShipAt, and ShipsOn lists all of them so that a ship
// lying entirely under another can still be sunk.
func New(ships map[string][]int) (Board, error) {
	if len(ships) == 0 {
		return Board{}, ErrEmptyFleet
	}

	ids := make([]string, 0, len(ships))
	for id := range ships {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	b := Board{ships: make(map[string][]int, len(ships))}
	for _, id := range ids {
		if id == "" {
			return Board{}, ErrEmptyShipID
		}
		cells := ships[id]
		if len(cells) == 0 {
			return Board{}, fmt.Errorf("ship %q: %w", id, ErrEmptyShip)
		}

		seen := make(map[int]struct{}, len(cells))
		unique := make([]int, 0, len(cells))
		for _, idx := range cells {
			if idx < 0 || idx >= CellCount {
				return Board{}, fmt.Errorf("ship %q cell %d: %w", id, idx, ErrCellOutOfGrid)
			}
			if _, dup := seen[idx]; dup {
				continue
			}
			seen[idx] = struct{}{}
			unique = append(unique, idx)
			b.cover[idx] = append(b.cover[idx], id)
		}
		b.ships[id] = unique
	}
	return b, nil
}

// Len returns the number of ships on the board.
func (b Board) Len() int {
	return len(b.ships)
}

// Ships returns the ship ids in sorted order.
func (b Board) Ships() []string {
	ids := make([]string, 0, len(b.ships))
	for id := range b.ships {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Cells returns a copy of the cells occupied by shipID.
func (b Board) Cells(shipID string) []int {
	cells, ok := b.ships[shipID]
	if !ok {
		return nil
	}
	out := make([]int, len(cells))
	copy(out, cells)
	return out
}

// IsHit reports whether any ship occupies (x, y).
func (b Board) IsHit(x, y int) bool {
	_, ok := b.ShipAt(x, y)
	return ok
}

// ShipAt returns the ship occupying (x, y), if any.
func (b Board) ShipAt(x, y int) (string, bool) {
	if !InBounds(x, y) {
		return "", false
	}
	ids := b.cover[Index(x, y)]
	if len(ids) == 0 {
		return "", false
	}
	return ids[0], true
}

// ShipsOn returns every ship occupying (x, y) in id order. It has more than
// one element only for overlapping layouts.
func (b Board) ShipsOn(x, y int) []string {
	if !InBounds(x, y) {
		return nil
	}
	ids := b.cover[Index(x, y)]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// IsShipFullyHit reports whether every cell of shipID is in attacked. Unknown
// ships are never fully hit.
func (b Board) IsShipFullyHit(shipID string, attacked *CellSet) bool {
	cells, ok := b.ships[shipID]
	if !ok || attacked == nil {
		return false
	}
	for _, idx := range cells {
		if !attacked.Has(idx) {
			return false
		}
	}
	return true
}
