package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/theatre-seat-reservation/internal/model"
	"github.com/iliyamo/theatre-seat-reservation/internal/queue"
	"github.com/iliyamo/theatre-seat-reservation/internal/repository"
	"github.com/iliyamo/theatre-seat-reservation/internal/seating"
)

// EventPublisher receives reservation events after commit.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.ReservationEvent) error
}

// SeatCache drops cached availability of a performance.
type SeatCache interface {
	InvalidateSeats(ctx context.Context, performanceID uint64) error
}

// ReservationService books seats.  The database row locks on tickets are
// the only serialization point, so any number of service instances may
// share one database.
type ReservationService struct {
	db           *sql.DB
	performances *repository.PerformanceRepo
	tickets      *repository.TicketRepo
	reservations *repository.ReservationRepo

	events       EventPublisher
	cache        SeatCache
	eventTimeout time.Duration
	log          logrus.FieldLogger
}

// Option configures a ReservationService.
type Option func(*ReservationService)

// WithPublisher publishes confirmed and cancelled reservations.
func WithPublisher(p EventPublisher) Option {
	return func(s *ReservationService) { s.events = p }
}

// WithSeatCache invalidates cached availability after bookings change.
func WithSeatCache(c SeatCache) Option {
	return func(s *ReservationService) { s.cache = c }
}

// WithLogger replaces the standard logrus logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *ReservationService) { s.log = l }
}

// NewReservationService wires the service on top of db.
func NewReservationService(db *sql.DB, opts ...Option) *ReservationService {
	s := &ReservationService{
		db:           db,
		performances: repository.NewPerformanceRepo(db),
		tickets:      repository.NewTicketRepo(db),
		reservations: repository.NewReservationRepo(db),
		eventTimeout: 5 * time.Second,
		log:          logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.WithField("component", "reservations")
	return s
}

// Reserve books seats of a performance for userID.  The request is
// validated before any write: it must be non-empty, free of duplicates and
// inside the hall.  Then, in one transaction, the reservation row is
// inserted, each requested ticket is locked with SELECT ... FOR UPDATE and
// checked to be free, and all tickets are bound with a single UPDATE.  Any
// failure rolls back everything, including the reservation row.
//
// Tickets are locked in (row, seat) order so two overlapping requests
// acquire their common rows in the same order.
func (s *ReservationService) Reserve(ctx context.Context, userID, performanceID uint64, seats []seating.Coord) (*model.Reservation, error) {
	if userID == 0 {
		return nil, validationError("user is required")
	}
	if len(seats) == 0 {
		return nil, validationError(seating.Violation{Kind: seating.ViolationEmpty}.Error())
	}

	bounds, err := s.performances.Bounds(ctx, performanceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError(fmt.Sprintf("performance %d not found", performanceID), err)
		}
		return nil, storageError("load performance", err)
	}
	if err := seating.Validate(bounds, seats); err != nil {
		return nil, validationError(err.Error())
	}

	res, err := s.reserveTx(ctx, userID, performanceID, seating.Sorted(seats))
	if err != nil {
		if KindOf(err) == KindConflict {
			s.log.WithFields(logrus.Fields{
				"performance_id": performanceID,
				"user_id":        userID,
			}).WithError(err).Info("reservation rejected")
		}
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"reservation_id": res.ID,
		"performance_id": performanceID,
		"user_id":        userID,
		"seats":          len(res.Tickets),
	}).Info("reservation created")

	s.afterChange(ctx, queue.EventReservationConfirmed, res)
	return res, nil
}

func (s *ReservationService) reserveTx(ctx context.Context, userID, performanceID uint64, seats []seating.Coord) (*model.Reservation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageError("begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res := &model.Reservation{UserID: userID, PerformanceID: performanceID}
	if err := s.reservations.CreateTx(ctx, tx, res); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError(fmt.Sprintf("performance %d not found", performanceID), err)
		}
		if errors.Is(err, repository.ErrInvalidReference) {
			return nil, notFoundError(fmt.Sprintf("user %d not found", userID), err)
		}
		return nil, storageError("insert reservation", err)
	}

	ids := make([]uint64, 0, len(seats))
	tickets := make([]model.TicketShort, 0, len(seats))
	for _, c := range seats {
		t, err := s.tickets.LockTx(ctx, tx, performanceID, c)
		if err != nil {
			if errors.Is(err, repository.ErrTicketNotFound) {
				return nil, notFoundError(fmt.Sprintf("seat %s does not exist for performance %d", c, performanceID), err)
			}
			return nil, storageError("lock seat "+c.String(), err)
		}
		if !t.IsFree() {
			return nil, conflictError(fmt.Sprintf("seat %s is already reserved", c), nil)
		}
		ids = append(ids, t.ID)
		tickets = append(tickets, model.TicketShort{ID: t.ID, Row: t.Row, Seat: t.Seat})
	}

	n, err := s.tickets.BindTx(ctx, tx, res.ID, ids)
	if err != nil {
		return nil, storageError("bind seats", err)
	}
	if n != int64(len(ids)) {
		return nil, conflictError("one or more seats were reserved concurrently", nil)
	}

	if err := tx.Commit(); err != nil {
		return nil, storageError("commit", err)
	}
	committed = true
	res.Tickets = tickets
	return res, nil
}

// AvailableSeats lists the free seats of a performance ordered by (row,
// seat).  The result is a snapshot; only Reserve decides who gets a seat.
func (s *ReservationService) AvailableSeats(ctx context.Context, performanceID uint64) ([]model.SeatPosition, error) {
	if _, err := s.performances.GetByID(ctx, performanceID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError(fmt.Sprintf("performance %d not found", performanceID), err)
		}
		return nil, storageError("load performance", err)
	}
	seats, err := s.tickets.Available(ctx, performanceID)
	if err != nil {
		return nil, storageError("list seats", err)
	}
	return seats, nil
}

// MyReservations returns one page of userID's reservations, newest first.
func (s *ReservationService) MyReservations(ctx context.Context, userID uint64, p repository.Page) ([]model.Reservation, int64, error) {
	items, total, err := s.reservations.ListByUser(ctx, userID, p)
	if err != nil {
		return nil, 0, storageError("list reservations", err)
	}
	return items, total, nil
}

// Get returns one of userID's reservations.
func (s *ReservationService) Get(ctx context.Context, userID, reservationID uint64) (*model.Reservation, error) {
	res, err := s.reservations.GetByIDForUser(ctx, reservationID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError(fmt.Sprintf("reservation %d not found", reservationID), err)
		}
		return nil, storageError("load reservation", err)
	}
	return res, nil
}

// Cancel deletes one of userID's reservations.  Its tickets stay and become
// free again.
func (s *ReservationService) Cancel(ctx context.Context, userID, reservationID uint64) error {
	res, err := s.Get(ctx, userID, reservationID)
	if err != nil {
		return err
	}
	if _, err := s.reservations.DeleteForUser(ctx, reservationID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFoundError(fmt.Sprintf("reservation %d not found", reservationID), err)
		}
		return storageError("delete reservation", err)
	}
	s.log.WithFields(logrus.Fields{
		"reservation_id": reservationID,
		"performance_id": res.PerformanceID,
		"user_id":        userID,
	}).Info("reservation cancelled")

	s.afterChange(ctx, queue.EventReservationCancelled, res)
	return nil
}

// afterChange runs the post-commit side effects.  They never change the
// outcome of the call: failures are logged and dropped.
func (s *ReservationService) afterChange(ctx context.Context, eventType string, res *model.Reservation) {
	log := s.log.WithFields(logrus.Fields{"reservation_id": res.ID, "performance_id": res.PerformanceID})

	if s.cache != nil {
		if err := s.cache.InvalidateSeats(ctx, res.PerformanceID); err != nil {
			log.WithError(err).Warn("seat cache invalidation failed")
		}
	}
	if s.events == nil {
		return
	}

	ev := queue.ReservationEvent{
		Type:          eventType,
		ReservationID: res.ID,
		UserID:        res.UserID,
		PerformanceID: res.PerformanceID,
		Seats:         make([]string, 0, len(res.Tickets)),
		OccurredAt:    time.Now().UTC().Format(time.RFC3339),
	}
	for _, t := range res.Tickets {
		ev.Seats = append(ev.Seats, seating.Coord{Row: int(t.Row), Seat: int(t.Seat)}.String())
	}
	if d, err := s.performances.GetDetail(ctx, res.PerformanceID); err == nil {
		ev.PlayTitle = d.Play.Title
		ev.HallName = d.Hall.Name
		ev.ShowTime = d.ShowTime.UTC().Format(time.RFC3339)
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.eventTimeout)
	defer cancel()
	if err := s.events.Publish(pctx, ev); err != nil {
		log.WithError(err).Warn("publish reservation event failed")
	}
}
