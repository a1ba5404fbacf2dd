package board

// CellSet is a set of cell indices on the grid. Membership only grows.
type CellSet struct {
	cells [CellCount]bool
	n     int
}

// Has reports whether idx is in the set.
func (s *CellSet) Has(idx int) bool {
	if idx < 0 || idx >= CellCount {
		return false
	}
	return s.cells[idx]
}

// Add inserts idx and reports whether it was newly added.
func (s *CellSet) Add(idx int) bool {
	if idx < 0 || idx >= CellCount || s.cells[idx] {
		return false
	}
	s.cells[idx] = true
	s.n++
	return true
}

// Len returns the number of cells in the set.
func (s *CellSet) Len() int {
	return s.n
}
