package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/theatre-seat-reservation/internal/model"
)

// ErrReservationNotFound is returned when a reservation does not exist or
// belongs to another user.
var ErrReservationNotFound = fmt.Errorf("reservation %w", ErrNotFound)

// ReservationRepo provides persistence for reservations.  A reservation's
// seats are the tickets whose reservation_id points at it.  All timestamp
// fields are stored in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// CreateTx inserts a new reservation within the scope of an existing
// transaction and reads back its generated ID and created_at.  The caller
// must commit or rollback the transaction.  A performance deleted since
// the caller looked it up yields ErrPerformanceNotFound; a missing user
// yields ErrInvalidReference.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	const q = `INSERT INTO reservations (user_id, performance_id) VALUES (?, ?)`
	result, err := tx.ExecContext(ctx, q, res.UserID, res.PerformanceID)
	if err != nil {
		if missingParent(err, "fk_reservations_performance") {
			return errors.Join(ErrPerformanceNotFound, err)
		}
		return classify(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	// Query back created_at, assigned by the database
	const sel = `SELECT created_at FROM reservations WHERE id = ?`
	return tx.QueryRowContext(ctx, sel, res.ID).Scan(&res.CreatedAt)
}

// ListByUser returns one page of the user's reservations, newest first,
// each with its tickets ordered by (row, seat).  Tickets are loaded with a
// second query over the page's reservation IDs.
func (r *ReservationRepo) ListByUser(ctx context.Context, userID uint64, p Page) ([]model.Reservation, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reservations WHERE user_id = ?`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	const q = `SELECT id, user_id, performance_id, created_at
	           FROM reservations
	           WHERE user_id = ?
	           ORDER BY created_at DESC, id DESC
	           LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, q, userID, p.Limit(), p.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []model.Reservation{}
	for rows.Next() {
		var res model.Reservation
		if err := rows.Scan(&res.ID, &res.UserID, &res.PerformanceID, &res.CreatedAt); err != nil {
			return nil, 0, err
		}
		res.Tickets = []model.TicketShort{}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := r.fillTickets(ctx, out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// GetByIDForUser returns a single reservation of the given user with its
// tickets.  ErrReservationNotFound hides reservations of other users.
func (r *ReservationRepo) GetByIDForUser(ctx context.Context, id, userID uint64) (*model.Reservation, error) {
	const q = `SELECT id, user_id, performance_id, created_at FROM reservations WHERE id = ? AND user_id = ?`
	var res model.Reservation
	if err := r.db.QueryRowContext(ctx, q, id, userID).Scan(&res.ID, &res.UserID, &res.PerformanceID, &res.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}
	res.Tickets = []model.TicketShort{}
	list := []model.Reservation{res}
	if err := r.fillTickets(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (r *ReservationRepo) fillTickets(ctx context.Context, list []model.Reservation) error {
	if len(list) == 0 {
		return nil
	}
	idx := make(map[uint64]int, len(list))
	ids := make([]uint64, len(list))
	for i := range list {
		idx[list[i].ID] = i
		ids[i] = list[i].ID
	}
	q := `SELECT reservation_id, id, row_num, seat_num
	      FROM tickets
	      WHERE reservation_id IN (` + placeholders(len(ids)) + `)
	      ORDER BY row_num, seat_num`
	rows, err := r.db.QueryContext(ctx, q, uint64Args(ids)...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var resID uint64
		var t model.TicketShort
		if err := rows.Scan(&resID, &t.ID, &t.Row, &t.Seat); err != nil {
			return err
		}
		if i, ok := idx[resID]; ok {
			list[i].Tickets = append(list[i].Tickets, t)
		}
	}
	return rows.Err()
}

// DeleteForUser removes the user's reservation and returns the performance
// it belonged to.  The tickets survive and become free again through ON
// DELETE SET NULL.
func (r *ReservationRepo) DeleteForUser(ctx context.Context, id, userID uint64) (performanceID uint64, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	err = tx.QueryRowContext(ctx,
		`SELECT performance_id FROM reservations WHERE id = ? AND user_id = ? FOR UPDATE`, id, userID).
		Scan(&performanceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrReservationNotFound
		}
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return performanceID, nil
}
