package repository // repository holds data access logic for domain entities

import (
	"context"      // context is used to manage deadlines and cancellation
	"database/sql" // sql provides DB primitives
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/theatre-seat-reservation/internal/model"
)

// ErrHallNotFound is returned when a hall lookup fails.
var ErrHallNotFound = fmt.Errorf("hall %w", ErrNotFound)

// ErrHallInUse is returned when a hall geometry change or delete is
// refused because performances reference the hall.
var ErrHallInUse = fmt.Errorf("hall has performances: %w", ErrConflict)

// HallRepo provides methods to create and retrieve theatre halls.
type HallRepo struct {
	db *sql.DB // db is the underlying database connection
}

// NewHallRepo constructs a HallRepo with the given DB handle.
func NewHallRepo(db *sql.DB) *HallRepo {
	return &HallRepo{db: db}
}

const hallColumns = `id, name, seat_rows, seats_in_row, created_at`

func scanHall(row interface{ Scan(...any) error }, h *model.Hall) error {
	return row.Scan(&h.ID, &h.Name, &h.Rows, &h.SeatsInRow, &h.CreatedAt)
}

// Create inserts a new hall and reloads it so CreatedAt is populated.  A
// duplicate name yields ErrConflict.
func (r *HallRepo) Create(ctx context.Context, h *model.Hall) error {
	const qInsert = `INSERT INTO theatre_halls (name, seat_rows, seats_in_row) VALUES (?, ?, ?)`
	res, err := r.db.ExecContext(ctx, qInsert, h.Name, h.Rows, h.SeatsInRow)
	if err != nil {
		return classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	h.ID = uint64(id)

	const qSelect = `SELECT ` + hallColumns + ` FROM theatre_halls WHERE id = ?`
	return scanHall(r.db.QueryRowContext(ctx, qSelect, h.ID), h)
}

// GetByID retrieves a hall by its ID.  It returns ErrHallNotFound when no
// row is found.
func (r *HallRepo) GetByID(ctx context.Context, id uint64) (*model.Hall, error) {
	const q = `SELECT ` + hallColumns + ` FROM theatre_halls WHERE id = ?`
	var h model.Hall
	if err := scanHall(r.db.QueryRowContext(ctx, q, id), &h); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrHallNotFound
		}
		return nil, err
	}
	return &h, nil
}

// List returns halls ordered by name.  search filters by a case-insensitive
// name substring.
func (r *HallRepo) List(ctx context.Context, search string, p Page) ([]model.Hall, int64, error) {
	cond := "1=1"
	var args []any
	if s := strings.TrimSpace(search); s != "" {
		cond = "LOWER(name) LIKE ?"
		args = append(args, "%"+strings.ToLower(s)+"%")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM theatre_halls WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT ` + hallColumns + ` FROM theatre_halls WHERE ` + cond + ` ORDER BY name LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, q, append(args, p.Limit(), p.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Hall, 0, p.Limit())
	for rows.Next() {
		var h model.Hall
		if err := scanHall(rows, &h); err != nil {
			return nil, 0, err
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Update writes name and geometry.  The hall row is locked first; if the
// geometry changes while any performance references the hall the update is
// refused with ErrHallInUse, since existing tickets were generated for the
// old layout.  Renaming is always allowed.
func (r *HallRepo) Update(ctx context.Context, h *model.Hall) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var cur model.Hall
	err = scanHall(tx.QueryRowContext(ctx, `SELECT `+hallColumns+` FROM theatre_halls WHERE id = ? FOR UPDATE`, h.ID), &cur)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrHallNotFound
		}
		return err
	}

	if cur.Rows != h.Rows || cur.SeatsInRow != h.SeatsInRow {
		var used bool
		err = tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM performances WHERE hall_id = ?)`, h.ID).Scan(&used)
		if err != nil {
			return err
		}
		if used {
			return ErrHallInUse
		}
	}

	const q = `UPDATE theatre_halls SET name = ?, seat_rows = ?, seats_in_row = ? WHERE id = ?`
	if _, err = tx.ExecContext(ctx, q, h.Name, h.Rows, h.SeatsInRow, h.ID); err != nil {
		return classify(err)
	}
	h.CreatedAt = cur.CreatedAt
	return tx.Commit()
}

// Delete removes a hall.  Performances reference halls with ON DELETE
// RESTRICT, so a hall that still hosts performances yields ErrHallInUse.
func (r *HallRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM theatre_halls WHERE id = ?`, id)
	if err != nil {
		if IsReferenced(err) {
			return ErrHallInUse
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrHallNotFound
	}
	return nil
}
