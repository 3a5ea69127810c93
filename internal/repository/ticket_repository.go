package repository // repository for ticket (seat inventory) persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/theatre-seat-reservation/internal/model"
	"github.com/iliyamo/theatre-seat-reservation/internal/seating"
)

// ErrTicketNotFound is returned when no ticket exists at a coordinate.
var ErrTicketNotFound = fmt.Errorf("ticket %w", ErrNotFound)

// generateBatchSize caps the rows per INSERT so a statement stays far below
// the 65535 placeholder limit of the MySQL protocol.
const generateBatchSize = 1000

// TicketRepo encapsulates database operations for tickets.  Tickets are
// the only rows whose reservation_id is contended; it is written solely by
// BindTx.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo constructs a TicketRepo given a DB handle.
func NewTicketRepo(db *sql.DB) *TicketRepo {
	return &TicketRepo{db: db}
}

// DB exposes the underlying sql.DB for callers that open transactions.
func (r *TicketRepo) DB() *sql.DB { return r.db }

// buildGenerateInsert renders one multi-row INSERT for coords.  Coordinates
// that already exist are skipped through the (performance_id, row_num,
// seat_num) unique key; no other error is suppressed.
func buildGenerateInsert(performanceID uint64, coords []seating.Coord) (string, []any) {
	var b strings.Builder
	b.WriteString(`INSERT INTO tickets (performance_id, row_num, seat_num) VALUES `)
	args := make([]any, 0, len(coords)*3)
	for i, c := range coords {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(?, ?, ?)")
		args = append(args, performanceID, c.Row, c.Seat)
	}
	b.WriteString(` ON DUPLICATE KEY UPDATE id = id`)
	return b.String(), args
}

// GenerateTx inserts one free ticket per coordinate of bounds for the
// performance, inside tx.  It returns how many tickets were newly
// created; running it again for the same performance creates none.
func (r *TicketRepo) GenerateTx(ctx context.Context, tx *sql.Tx, performanceID uint64, bounds seating.Bounds) (int64, error) {
	grid := seating.Grid(bounds)
	var created int64
	for start := 0; start < len(grid); start += generateBatchSize {
		end := start + generateBatchSize
		if end > len(grid) {
			end = len(grid)
		}
		q, args := buildGenerateInsert(performanceID, grid[start:end])
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return created, classify(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return created, err
		}
		created += n
	}
	return created, nil
}

// Count returns the number of tickets of a performance.
func (r *TicketRepo) Count(ctx context.Context, performanceID uint64) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets WHERE performance_id = ?`, performanceID).Scan(&n)
	return n, err
}

// HasReservedTx reports whether any ticket of the performance is bound to
// a reservation.
func (r *TicketRepo) HasReservedTx(ctx context.Context, tx *sql.Tx, performanceID uint64) (bool, error) {
	var ok bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM tickets WHERE performance_id = ? AND reservation_id IS NOT NULL)`, performanceID).Scan(&ok)
	return ok, err
}

// DeleteTx removes every ticket of the performance.
func (r *TicketRepo) DeleteTx(ctx context.Context, tx *sql.Tx, performanceID uint64) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM tickets WHERE performance_id = ?`, performanceID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LockTx selects the ticket at c with an exclusive row lock held until tx
// ends.  Only that row is locked.  ErrTicketNotFound is returned when the
// coordinate has no ticket.
func (r *TicketRepo) LockTx(ctx context.Context, tx *sql.Tx, performanceID uint64, c seating.Coord) (*model.Ticket, error) {
	const q = `SELECT id, performance_id, row_num, seat_num, reservation_id
	           FROM tickets
	           WHERE performance_id = ? AND row_num = ? AND seat_num = ?
	           FOR UPDATE`
	var (
		t   model.Ticket
		res sql.NullInt64
	)
	err := tx.QueryRowContext(ctx, q, performanceID, c.Row, c.Seat).
		Scan(&t.ID, &t.PerformanceID, &t.Row, &t.Seat, &res)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	if res.Valid {
		id := uint64(res.Int64)
		t.ReservationID = &id
	}
	return &t, nil
}

// BindTx points every ticket in ticketIDs at the reservation, but only
// tickets that are still free.  The returned count is the number of rows
// actually bound; a short count means another writer got there first.
func (r *TicketRepo) BindTx(ctx context.Context, tx *sql.Tx, reservationID uint64, ticketIDs []uint64) (int64, error) {
	if len(ticketIDs) == 0 {
		return 0, nil
	}
	q := `UPDATE tickets SET reservation_id = ? WHERE reservation_id IS NULL AND id IN (` + placeholders(len(ticketIDs)) + `)`
	args := append([]any{reservationID}, uint64Args(ticketIDs)...)
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Available returns the free seats of a performance ordered by (row, seat).
// It is a plain snapshot read and takes no locks.
func (r *TicketRepo) Available(ctx context.Context, performanceID uint64) ([]model.SeatPosition, error) {
	const q = `SELECT row_num, seat_num
	           FROM tickets
	           WHERE performance_id = ? AND reservation_id IS NULL
	           ORDER BY row_num, seat_num`
	rows, err := r.db.QueryContext(ctx, q, performanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.SeatPosition{}
	for rows.Next() {
		var s model.SeatPosition
		if err := rows.Scan(&s.Row, &s.Seat); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
