// Package queue carries reservation events over RabbitMQ: the payload
// types, a publisher used by the reservation service and a consumer that
// keeps an audit log of reservations.
package queue

// Event types, also sent as the AMQP message type.
const (
	EventReservationConfirmed = "reservation.confirmed"
	EventReservationCancelled = "reservation.cancelled"
)

// ReservationEvent is published after a reservation commits or is
// cancelled.  It carries enough information for downstream consumers to
// log or notify without querying the primary database.
type ReservationEvent struct {
	EventID       string   `json:"event_id"`
	Type          string   `json:"type"`
	ReservationID uint64   `json:"reservation_id"`
	UserID        uint64   `json:"user_id"`
	PerformanceID uint64   `json:"performance_id"`
	PlayTitle     string   `json:"play_title,omitempty"`
	HallName      string   `json:"hall_name,omitempty"`
	ShowTime      string   `json:"show_time,omitempty"`
	Seats         []string `json:"seats"`
	OccurredAt    string   `json:"occurred_at"`
}
