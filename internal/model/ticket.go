package model

// Ticket is the bookable unit of a performance: one (row, seat) coordinate.
// A ticket is free while ReservationID is nil.
//
// Fields:
//  ID            – primary key identifier.
//  PerformanceID – owning performance; tickets are deleted with it.
//  Row           – 1-based row number.
//  Seat          – 1-based seat number within the row.
//  ReservationID – reservation holding the seat (nil when free).
type Ticket struct {
	ID            uint64  // tickets.id
	PerformanceID uint64  // tickets.performance_id
	Row           uint32  // tickets.row_num
	Seat          uint32  // tickets.seat_num
	ReservationID *uint64 // tickets.reservation_id (nullable)
}

// IsFree reports whether the ticket is not bound to a reservation.
func (t Ticket) IsFree() bool { return t.ReservationID == nil }

// TicketShort is the ticket shape embedded in reservation responses.
type TicketShort struct {
	ID   uint64 `json:"id"`
	Row  uint32 `json:"row"`
	Seat uint32 `json:"seat"`
}

// SeatPosition is one entry of an availability listing.
type SeatPosition struct {
	Row  uint32 `json:"row"`
	Seat uint32 `json:"seat"`
}
