package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/theatre-seat-reservation/internal/model"
)

// ErrActorNotFound is returned when an actor lookup fails.
var ErrActorNotFound = fmt.Errorf("actor %w", ErrNotFound)

// ActorRepo persists actors.  (first_name, last_name) is unique.
type ActorRepo struct{ db *sql.DB }

func NewActorRepo(db *sql.DB) *ActorRepo { return &ActorRepo{db: db} }

// Create inserts an actor and sets its ID.
func (r *ActorRepo) Create(ctx context.Context, a *model.Actor) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO actors (first_name, last_name) VALUES (?, ?)", a.FirstName, a.LastName)
	if err != nil {
		return classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	return nil
}

// GetByID loads one actor.
func (r *ActorRepo) GetByID(ctx context.Context, id uint64) (*model.Actor, error) {
	var a model.Actor
	err := r.db.QueryRowContext(ctx, "SELECT id, first_name, last_name FROM actors WHERE id = ?", id).
		Scan(&a.ID, &a.FirstName, &a.LastName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrActorNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Update renames an actor.  Callers load the row first; a name already
// used by another actor yields ErrConflict.
func (r *ActorRepo) Update(ctx context.Context, a *model.Actor) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE actors SET first_name = ?, last_name = ? WHERE id = ?", a.FirstName, a.LastName, a.ID)
	return classify(err)
}

// List returns actors ordered by last then first name.  search matches
// either name part.
func (r *ActorRepo) List(ctx context.Context, search string, p Page) ([]model.Actor, int64, error) {
	cond := "1=1"
	var args []any
	if s := strings.TrimSpace(search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		cond = "(LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?)"
		args = append(args, like, like)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM actors WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, first_name, last_name FROM actors WHERE "+cond+" ORDER BY last_name, first_name, id LIMIT ? OFFSET ?",
		append(args, p.Limit(), p.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Actor, 0, p.Limit())
	for rows.Next() {
		var a model.Actor
		if err := rows.Scan(&a.ID, &a.FirstName, &a.LastName); err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// Delete removes an actor; links to plays go with it.
func (r *ActorRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM actors WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrActorNotFound
	}
	return nil
}
