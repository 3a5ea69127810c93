package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/theatre-seat-reservation/internal/model"
	"github.com/iliyamo/theatre-seat-reservation/internal/repository"
	"github.com/iliyamo/theatre-seat-reservation/internal/seating"
)

// PerformanceService schedules performances.  Creating a performance and
// generating its seat inventory happen in one transaction: either the
// performance exists with every ticket of its hall, or nothing was written.
type PerformanceService struct {
	db           *sql.DB
	performances *repository.PerformanceRepo
	tickets      *repository.TicketRepo
	log          logrus.FieldLogger
}

// NewPerformanceService wires the service on top of db.
func NewPerformanceService(db *sql.DB, log logrus.FieldLogger) *PerformanceService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &PerformanceService{
		db:           db,
		performances: repository.NewPerformanceRepo(db),
		tickets:      repository.NewTicketRepo(db),
		log:          log.WithField("component", "performances"),
	}
}

// Create inserts a performance of playID in hallID at showTime and one free
// ticket for every seat of the hall.
func (s *PerformanceService) Create(ctx context.Context, playID, hallID uint64, showTime time.Time) (*model.Performance, error) {
	if playID == 0 || hallID == 0 {
		return nil, validationError("play and theatre_hall are required")
	}
	if showTime.IsZero() {
		return nil, validationError("show_time is required")
	}

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

	hall, err := s.performances.HallForShareTx(ctx, tx, hallID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError(fmt.Sprintf("hall %d not found", hallID), err)
		}
		return nil, storageError("load hall", err)
	}
	ok, err := s.performances.PlayExistsTx(ctx, tx, playID)
	if err != nil {
		return nil, storageError("load play", err)
	}
	if !ok {
		return nil, notFoundError(fmt.Sprintf("play %d not found", playID), nil)
	}

	p := &model.Performance{PlayID: playID, HallID: hallID, ShowTime: showTime.UTC().Truncate(time.Microsecond)}
	if err := s.performances.CreateTx(ctx, tx, p); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, conflictError(fmt.Sprintf("hall %d already has a performance at %s", hallID, p.ShowTime.Format(time.RFC3339)), err)
		}
		return nil, storageError("insert performance", err)
	}

	created, err := s.tickets.GenerateTx(ctx, tx, p.ID, hallBounds(hall))
	if err != nil {
		return nil, storageError("generate tickets", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storageError("commit", err)
	}
	committed = true

	s.log.WithFields(logrus.Fields{
		"performance_id": p.ID,
		"hall_id":        hallID,
		"tickets":        created,
	}).Info("performance created")
	return p, nil
}

// PerformanceUpdate lists the fields to change; nil fields keep their
// value.
type PerformanceUpdate struct {
	PlayID   *uint64
	HallID   *uint64
	ShowTime *time.Time
}

// Update changes play, hall or show time of a performance.  Moving to
// another hall replaces the seat inventory with the new hall's, so it is
// refused once any seat has been reserved.
func (s *PerformanceService) Update(ctx context.Context, id uint64, u PerformanceUpdate) (*model.Performance, error) {
	if (u.PlayID != nil && *u.PlayID == 0) || (u.HallID != nil && *u.HallID == 0) {
		return nil, validationError("play and theatre_hall must be positive")
	}
	if u.ShowTime != nil && u.ShowTime.IsZero() {
		return nil, validationError("show_time is required")
	}

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

	p, err := s.performances.LockTx(ctx, tx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError(fmt.Sprintf("performance %d not found", id), err)
		}
		return nil, storageError("lock performance", err)
	}

	if u.PlayID != nil && *u.PlayID != p.PlayID {
		ok, err := s.performances.PlayExistsTx(ctx, tx, *u.PlayID)
		if err != nil {
			return nil, storageError("load play", err)
		}
		if !ok {
			return nil, notFoundError(fmt.Sprintf("play %d not found", *u.PlayID), nil)
		}
		p.PlayID = *u.PlayID
	}
	if u.ShowTime != nil {
		p.ShowTime = u.ShowTime.UTC().Truncate(time.Microsecond)
	}

	var regenerated int64
	if u.HallID != nil && *u.HallID != p.HallID {
		hall, err := s.performances.HallForShareTx(ctx, tx, *u.HallID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, notFoundError(fmt.Sprintf("hall %d not found", *u.HallID), err)
			}
			return nil, storageError("load hall", err)
		}
		reserved, err := s.tickets.HasReservedTx(ctx, tx, p.ID)
		if err != nil {
			return nil, storageError("check reservations", err)
		}
		if reserved {
			return nil, conflictError(fmt.Sprintf("performance %d has reservations; its hall cannot change", p.ID), nil)
		}
		if _, err := s.tickets.DeleteTx(ctx, tx, p.ID); err != nil {
			return nil, storageError("delete tickets", err)
		}
		if regenerated, err = s.tickets.GenerateTx(ctx, tx, p.ID, hallBounds(hall)); err != nil {
			return nil, storageError("generate tickets", err)
		}
		p.HallID = hall.ID
	}

	if err := s.performances.UpdateTx(ctx, tx, p); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, conflictError(fmt.Sprintf("hall %d already has a performance at %s", p.HallID, p.ShowTime.Format(time.RFC3339)), err)
		}
		return nil, storageError("update performance", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storageError("commit", err)
	}
	committed = true

	s.log.WithFields(logrus.Fields{
		"performance_id": p.ID,
		"hall_id":        p.HallID,
		"tickets":        regenerated,
	}).Info("performance updated")
	return p, nil
}

// EnsureSeats regenerates the seat inventory of an existing performance.
// Seats that already exist are left untouched, so calling it any number of
// times leaves exactly one ticket per seat.  It returns how many tickets
// were missing and have been created.
func (s *PerformanceService) EnsureSeats(ctx context.Context, performanceID uint64) (int64, error) {
	perf, err := s.performances.GetByID(ctx, performanceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, notFoundError(fmt.Sprintf("performance %d not found", performanceID), err)
		}
		return 0, storageError("load performance", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageError("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	hall, err := s.performances.HallForShareTx(ctx, tx, perf.HallID)
	if err != nil {
		return 0, storageError("load hall", err)
	}
	created, err := s.tickets.GenerateTx(ctx, tx, perf.ID, hallBounds(hall))
	if err != nil {
		return 0, storageError("generate tickets", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, storageError("commit", err)
	}
	if created > 0 {
		s.log.WithFields(logrus.Fields{"performance_id": perf.ID, "tickets": created}).Warn("missing tickets regenerated")
	}
	return created, nil
}

// Get returns a performance with its play and hall expanded.
func (s *PerformanceService) Get(ctx context.Context, id uint64) (*model.PerformanceDetail, error) {
	d, err := s.performances.GetDetail(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError(fmt.Sprintf("performance %d not found", id), err)
		}
		return nil, storageError("load performance", err)
	}
	return d, nil
}

// List returns one page of performances matching f.
func (s *PerformanceService) List(ctx context.Context, f repository.PerformanceFilter, p repository.Page) ([]model.PerformanceDetail, int64, error) {
	items, total, err := s.performances.Search(ctx, f, p)
	if err != nil {
		return nil, 0, storageError("list performances", err)
	}
	return items, total, nil
}

// Delete removes a performance with its tickets and reservations.
func (s *PerformanceService) Delete(ctx context.Context, id uint64) error {
	if err := s.performances.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFoundError(fmt.Sprintf("performance %d not found", id), err)
		}
		return storageError("delete performance", err)
	}
	s.log.WithField("performance_id", id).Info("performance deleted")
	return nil
}

func hallBounds(h *model.Hall) seating.Bounds {
	return seating.Bounds{Rows: int(h.Rows), SeatsInRow: int(h.SeatsInRow)}
}
