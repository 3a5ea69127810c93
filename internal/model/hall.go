package model

import "time"

// Hall is a theatre hall with a fixed rectangular seat layout.
//
// Fields:
//  ID         – primary key identifier.
//  Name       – unique hall name.
//  Rows       – number of seat rows (>= 1).
//  SeatsInRow – seats in every row (>= 1).
//  CreatedAt  – creation timestamp.
type Hall struct {
	ID         uint64    `json:"id"`
	Name       string    `json:"name"`
	Rows       uint32    `json:"rows"`
	SeatsInRow uint32    `json:"seats_in_row"`
	CreatedAt  time.Time `json:"-"`
}

// Capacity is Rows * SeatsInRow.
func (h Hall) Capacity() uint32 { return h.Rows * h.SeatsInRow }

// HallView is the public representation of a hall, carrying the derived
// capacity.
type HallView struct {
	ID         uint64 `json:"id"`
	Name       string `json:"name"`
	Rows       uint32 `json:"rows"`
	SeatsInRow uint32 `json:"seats_in_row"`
	Capacity   uint32 `json:"capacity"`
}

// View converts a hall into its public form.
func (h Hall) View() HallView {
	return HallView{ID: h.ID, Name: h.Name, Rows: h.Rows, SeatsInRow: h.SeatsInRow, Capacity: h.Capacity()}
}
