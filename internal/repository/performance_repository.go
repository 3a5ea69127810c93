package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/theatre-seat-reservation/internal/model"
	"github.com/iliyamo/theatre-seat-reservation/internal/seating"
)

// ErrPerformanceNotFound indicates that a performance was not located in the DB.
var ErrPerformanceNotFound = fmt.Errorf("performance %w", ErrNotFound)

// ErrShowTimeTaken is returned when the hall already hosts a performance
// at the requested show time.
var ErrShowTimeTaken = fmt.Errorf("hall already has a performance at that time: %w", ErrConflict)

// PerformanceRepo manages persistence for performances.
type PerformanceRepo struct {
	db    *sql.DB
	plays *PlayRepo
}

func NewPerformanceRepo(db *sql.DB) *PerformanceRepo {
	return &PerformanceRepo{db: db, plays: NewPlayRepo(db)}
}

// DB exposes the underlying sql.DB so callers can begin transactions
// spanning multiple repositories.
func (r *PerformanceRepo) DB() *sql.DB { return r.db }

// CreateTx inserts a performance using the provided transaction.  The
// caller must commit or roll back.  A duplicate (hall, show_time) yields
// ErrShowTimeTaken.
func (r *PerformanceRepo) CreateTx(ctx context.Context, tx *sql.Tx, p *model.Performance) error {
	const q = `INSERT INTO performances (play_id, hall_id, show_time) VALUES (?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, p.PlayID, p.HallID, p.ShowTime)
	if err != nil {
		if IsDuplicate(err) {
			return ErrShowTimeTaken
		}
		return classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)

	const sel = `SELECT id, play_id, hall_id, show_time, created_at FROM performances WHERE id = ?`
	return tx.QueryRowContext(ctx, sel, p.ID).Scan(&p.ID, &p.PlayID, &p.HallID, &p.ShowTime, &p.CreatedAt)
}

// LockTx reads the performance row FOR UPDATE.  Inserting a reservation
// checks its foreign key against this row, so new reservations of the
// performance wait until tx ends.
func (r *PerformanceRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Performance, error) {
	const q = `SELECT id, play_id, hall_id, show_time, created_at FROM performances WHERE id = ? FOR UPDATE`
	var p model.Performance
	if err := tx.QueryRowContext(ctx, q, id).Scan(&p.ID, &p.PlayID, &p.HallID, &p.ShowTime, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPerformanceNotFound
		}
		return nil, err
	}
	return &p, nil
}

// UpdateTx writes play, hall and show time of p.  A duplicate (hall,
// show_time) yields ErrShowTimeTaken.
func (r *PerformanceRepo) UpdateTx(ctx context.Context, tx *sql.Tx, p *model.Performance) error {
	const q = `UPDATE performances SET play_id = ?, hall_id = ?, show_time = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, q, p.PlayID, p.HallID, p.ShowTime, p.ID); err != nil {
		if IsDuplicate(err) {
			return ErrShowTimeTaken
		}
		return classify(err)
	}
	return nil
}

// HallForShareTx reads the hall geometry under a shared lock so a
// concurrent geometry change waits until the caller's transaction ends.
func (r *PerformanceRepo) HallForShareTx(ctx context.Context, tx *sql.Tx, hallID uint64) (*model.Hall, error) {
	const q = `SELECT ` + hallColumns + ` FROM theatre_halls WHERE id = ? FOR SHARE`
	var h model.Hall
	if err := scanHall(tx.QueryRowContext(ctx, q, hallID), &h); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrHallNotFound
		}
		return nil, err
	}
	return &h, nil
}

// PlayExistsTx reports whether the play exists, seen from tx.
func (r *PerformanceRepo) PlayExistsTx(ctx context.Context, tx *sql.Tx, playID uint64) (bool, error) {
	var ok bool
	err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM plays WHERE id = ?)`, playID).Scan(&ok)
	return ok, err
}

// GetByID returns the performance row.
func (r *PerformanceRepo) GetByID(ctx context.Context, id uint64) (*model.Performance, error) {
	const q = `SELECT id, play_id, hall_id, show_time, created_at FROM performances WHERE id = ?`
	var p model.Performance
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&p.ID, &p.PlayID, &p.HallID, &p.ShowTime, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPerformanceNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Bounds returns the geometry of the hall hosting the performance.
func (r *PerformanceRepo) Bounds(ctx context.Context, id uint64) (seating.Bounds, error) {
	const q = `SELECT h.seat_rows, h.seats_in_row
	           FROM performances p
	           JOIN theatre_halls h ON h.id = p.hall_id
	           WHERE p.id = ?`
	var b seating.Bounds
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&b.Rows, &b.SeatsInRow); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return seating.Bounds{}, ErrPerformanceNotFound
		}
		return seating.Bounds{}, err
	}
	return b, nil
}

// PerformanceFilter defines filters for listing performances.  Date is a
// calendar day in UTC; From and To bound show_time inclusively.  Ordering is
// "show_time" (default) or "-show_time".
type PerformanceFilter struct {
	PlayID   uint64
	Date     *time.Time
	From     *time.Time
	To       *time.Time
	Ordering string
}

const performanceDetailSelect = `SELECT
		pf.id, pf.show_time,
		pl.id, pl.title, pl.description,
		h.id, h.name, h.seat_rows, h.seats_in_row
	FROM performances pf
	JOIN plays pl ON pl.id = pf.play_id
	JOIN theatre_halls h ON h.id = pf.hall_id`

func scanPerformanceDetail(row interface{ Scan(...any) error }, d *model.PerformanceDetail) error {
	var h model.Hall
	if err := row.Scan(&d.ID, &d.ShowTime,
		&d.Play.ID, &d.Play.Title, &d.Play.Description,
		&h.ID, &h.Name, &h.Rows, &h.SeatsInRow); err != nil {
		return err
	}
	d.Hall = h.View()
	return nil
}

// GetDetail returns a performance with its play (actors, genres) and hall.
func (r *PerformanceRepo) GetDetail(ctx context.Context, id uint64) (*model.PerformanceDetail, error) {
	var d model.PerformanceDetail
	if err := scanPerformanceDetail(r.db.QueryRowContext(ctx, performanceDetailSelect+` WHERE pf.id = ?`, id), &d); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPerformanceNotFound
		}
		return nil, err
	}
	plays := []model.Play{d.Play}
	if err := r.plays.fillLinks(ctx, plays); err != nil {
		return nil, err
	}
	d.Play = plays[0]
	return &d, nil
}

// Search lists performances matching f, one page at a time, with total
// count.
func (r *PerformanceRepo) Search(ctx context.Context, f PerformanceFilter, p Page) ([]model.PerformanceDetail, int64, error) {
	where := []string{}
	args := []any{}

	if f.PlayID != 0 {
		where = append(where, "pf.play_id = ?")
		args = append(args, f.PlayID)
	}
	if f.Date != nil {
		day := time.Date(f.Date.Year(), f.Date.Month(), f.Date.Day(), 0, 0, 0, 0, time.UTC)
		where = append(where, "pf.show_time >= ? AND pf.show_time < ?")
		args = append(args, day, day.AddDate(0, 0, 1))
	}
	if f.From != nil {
		where = append(where, "pf.show_time >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		where = append(where, "pf.show_time <= ?")
		args = append(args, f.To.UTC())
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}
	order := "pf.show_time ASC, pf.id ASC"
	if f.Ordering == "-show_time" {
		order = "pf.show_time DESC, pf.id DESC"
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM performances pf WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := performanceDetailSelect + ` WHERE ` + cond + ` ORDER BY ` + order + ` LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, q, append(append([]any{}, args...), p.Limit(), p.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.PerformanceDetail, 0, p.Limit())
	for rows.Next() {
		var d model.PerformanceDetail
		if err := scanPerformanceDetail(rows, &d); err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if len(out) > 0 {
		plays := make([]model.Play, len(out))
		for i := range out {
			plays[i] = out[i].Play
		}
		if err := r.plays.fillLinks(ctx, plays); err != nil {
			return nil, 0, err
		}
		for i := range out {
			out[i].Play = plays[i]
		}
	}
	return out, total, nil
}

// Delete removes a performance.  Tickets and reservations of the
// performance are removed by ON DELETE CASCADE.
func (r *PerformanceRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM performances WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPerformanceNotFound
	}
	return nil
}
