// Package seating holds the pure coordinate rules shared by inventory
// generation and reservation: hall bounds, duplicate detection and the
// row-major seat grid.
package seating

import (
	"fmt"
	"sort"
)

// Coord is a 1-based (row, seat) position inside a hall.
type Coord struct {
	Row  int `json:"row"`
	Seat int `json:"seat"`
}

func (c Coord) String() string { return fmt.Sprintf("r%d/s%d", c.Row, c.Seat) }

// Bounds describes a hall geometry.
type Bounds struct {
	Rows       int
	SeatsInRow int
}

// Capacity is the number of seats in the hall.
func (b Bounds) Capacity() int { return b.Rows * b.SeatsInRow }

// Contains reports whether c lies inside [1,Rows]x[1,SeatsInRow].
func (b Bounds) Contains(c Coord) bool {
	return c.Row >= 1 && c.Row <= b.Rows && c.Seat >= 1 && c.Seat <= b.SeatsInRow
}

func (b Bounds) String() string { return fmt.Sprintf("%dx%d", b.Rows, b.SeatsInRow) }

// ViolationKind distinguishes the reasons a seat request is rejected.
type ViolationKind string

const (
	ViolationEmpty       ViolationKind = "empty"
	ViolationDuplicate   ViolationKind = "duplicate"
	ViolationOutOfBounds ViolationKind = "out_of_bounds"
)

// Violation is a single problem found in a seat request. It implements
// error so the first violation can be returned directly.
type Violation struct {
	Kind   ViolationKind
	Coord  Coord
	Bounds Bounds
}

func (v Violation) Error() string {
	switch v.Kind {
	case ViolationEmpty:
		return "no seats requested"
	case ViolationDuplicate:
		return fmt.Sprintf("duplicate seat %s in request", v.Coord)
	default:
		return fmt.Sprintf("seat %s out of hall bounds (%s)", v.Coord, v.Bounds)
	}
}

// Check returns every violation in coords, in request order. A coordinate
// repeated n times yields n-1 duplicate violations.
func Check(b Bounds, coords []Coord) []Violation {
	if len(coords) == 0 {
		return []Violation{{Kind: ViolationEmpty, Bounds: b}}
	}
	var out []Violation
	seen := make(map[Coord]struct{}, len(coords))
	for _, c := range coords {
		if _, dup := seen[c]; dup {
			out = append(out, Violation{Kind: ViolationDuplicate, Coord: c, Bounds: b})
			continue
		}
		seen[c] = struct{}{}
		if !b.Contains(c) {
			out = append(out, Violation{Kind: ViolationOutOfBounds, Coord: c, Bounds: b})
		}
	}
	return out
}

// Validate returns the first violation in coords or nil. Duplicates are
// reported ahead of bounds problems so a request mixing both reads as a
// duplicate first.
func Validate(b Bounds, coords []Coord) error {
	vs := Check(b, coords)
	if len(vs) == 0 {
		return nil
	}
	for _, v := range vs {
		if v.Kind == ViolationDuplicate {
			return v
		}
	}
	return vs[0]
}

// Grid enumerates every coordinate of the hall, row-major.
func Grid(b Bounds) []Coord {
	if b.Rows < 1 || b.SeatsInRow < 1 {
		return nil
	}
	out := make([]Coord, 0, b.Capacity())
	for r := 1; r <= b.Rows; r++ {
		for s := 1; s <= b.SeatsInRow; s++ {
			out = append(out, Coord{Row: r, Seat: s})
		}
	}
	return out
}

// Sorted returns a copy of coords ordered by (row, seat).
func Sorted(coords []Coord) []Coord {
	out := make([]Coord, len(coords))
	copy(out, coords)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Seat < out[j].Seat
	})
	return out
}
