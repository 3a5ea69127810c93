package model

import "time"

// Reservation is a user's claim over one or more tickets of a single
// performance.  It is created together with its ticket bindings or not
// at all.
//
// Fields:
//  ID            – primary key identifier.
//  UserID        – owner of the reservation.
//  PerformanceID – performance the tickets belong to.
//  CreatedAt     – creation timestamp; listings are newest first.
//  Tickets       – bound tickets ordered by (row, seat).
type Reservation struct {
	ID            uint64        `json:"id"`
	UserID        uint64        `json:"-"`
	PerformanceID uint64        `json:"performance"`
	CreatedAt     time.Time     `json:"created_at"`
	Tickets       []TicketShort `json:"tickets"`
}
