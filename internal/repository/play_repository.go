package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/theatre-seat-reservation/internal/model"
)

// ErrPlayNotFound is returned when a play lookup fails.
var ErrPlayNotFound = fmt.Errorf("play %w", ErrNotFound)

// PlayRepo persists plays together with their actor and genre links.
type PlayRepo struct{ db *sql.DB }

func NewPlayRepo(db *sql.DB) *PlayRepo { return &PlayRepo{db: db} }

// PlayFilter narrows List.  ActorIDs and GenreIDs match plays linked to any
// of the given IDs.  Ordering is "title" (default) or "-title".
type PlayFilter struct {
	Search   string
	ActorIDs []uint64
	GenreIDs []uint64
	Ordering string
}

// Create inserts the play and its links in one transaction.  Unknown actor
// or genre IDs yield ErrInvalidReference and nothing is stored; a taken
// title yields ErrConflict.
func (r *PlayRepo) Create(ctx context.Context, p *model.Play, actorIDs, genreIDs []uint64) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, "INSERT INTO plays (title, description) VALUES (?, ?)", p.Title, p.Description)
	if err != nil {
		return classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)

	if err = linkTx(ctx, tx, "play_actors", "actor_id", p.ID, actorIDs); err != nil {
		return err
	}
	if err = linkTx(ctx, tx, "play_genres", "genre_id", p.ID, genreIDs); err != nil {
		return err
	}
	return tx.Commit()
}

// Update writes title and description and, for each non-nil ID list,
// replaces the play's links with it.  Everything happens in one
// transaction, so a bad actor or genre ID leaves the play as it was.
func (r *PlayRepo) Update(ctx context.Context, p *model.Play, actorIDs, genreIDs []uint64) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var id uint64
	if err = tx.QueryRowContext(ctx, "SELECT id FROM plays WHERE id = ? FOR UPDATE", p.ID).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPlayNotFound
		}
		return err
	}
	if _, err = tx.ExecContext(ctx, "UPDATE plays SET title = ?, description = ? WHERE id = ?", p.Title, p.Description, p.ID); err != nil {
		return classify(err)
	}

	if actorIDs != nil {
		if _, err = tx.ExecContext(ctx, "DELETE FROM play_actors WHERE play_id = ?", p.ID); err != nil {
			return err
		}
		if err = linkTx(ctx, tx, "play_actors", "actor_id", p.ID, actorIDs); err != nil {
			return err
		}
	}
	if genreIDs != nil {
		if _, err = tx.ExecContext(ctx, "DELETE FROM play_genres WHERE play_id = ?", p.ID); err != nil {
			return err
		}
		if err = linkTx(ctx, tx, "play_genres", "genre_id", p.ID, genreIDs); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func linkTx(ctx context.Context, tx *sql.Tx, table, column string, playID uint64, ids []uint64) error {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil
	}
	q := "INSERT INTO " + table + " (play_id, " + column + ") VALUES "
	args := make([]any, 0, len(ids)*2)
	for i, id := range ids {
		if i > 0 {
			q += ","
		}
		q += "(?, ?)"
		args = append(args, playID, id)
	}
	_, err := tx.ExecContext(ctx, q, args...)
	return classify(err)
}

func dedupe(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// GetByID loads a play with its actors and genres.
func (r *PlayRepo) GetByID(ctx context.Context, id uint64) (*model.Play, error) {
	var p model.Play
	err := r.db.QueryRowContext(ctx, "SELECT id, title, description FROM plays WHERE id = ?", id).
		Scan(&p.ID, &p.Title, &p.Description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlayNotFound
		}
		return nil, err
	}
	plays := []model.Play{p}
	if err := r.fillLinks(ctx, plays); err != nil {
		return nil, err
	}
	return &plays[0], nil
}

// List returns a page of plays with actors and genres loaded.
func (r *PlayRepo) List(ctx context.Context, f PlayFilter, p Page) ([]model.Play, int64, error) {
	where := []string{}
	args := []any{}

	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, "LOWER(p.title) LIKE ?")
		args = append(args, "%"+strings.ToLower(s)+"%")
	}
	if len(f.ActorIDs) > 0 {
		where = append(where, "EXISTS (SELECT 1 FROM play_actors pa WHERE pa.play_id = p.id AND pa.actor_id IN ("+placeholders(len(f.ActorIDs))+"))")
		args = append(args, uint64Args(f.ActorIDs)...)
	}
	if len(f.GenreIDs) > 0 {
		where = append(where, "EXISTS (SELECT 1 FROM play_genres pg WHERE pg.play_id = p.id AND pg.genre_id IN ("+placeholders(len(f.GenreIDs))+"))")
		args = append(args, uint64Args(f.GenreIDs)...)
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}
	order := "p.title ASC"
	if f.Ordering == "-title" {
		order = "p.title DESC"
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM plays p WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := "SELECT p.id, p.title, p.description FROM plays p WHERE " + cond + " ORDER BY " + order + " LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, q, append(append([]any{}, args...), p.Limit(), p.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Play, 0, p.Limit())
	for rows.Next() {
		var pl model.Play
		if err := rows.Scan(&pl.ID, &pl.Title, &pl.Description); err != nil {
			return nil, 0, err
		}
		out = append(out, pl)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := r.fillLinks(ctx, out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// fillLinks loads actors and genres for every play in one query each and
// distributes them through an index map.  The same play may appear more
// than once in plays.
func (r *PlayRepo) fillLinks(ctx context.Context, plays []model.Play) error {
	if len(plays) == 0 {
		return nil
	}
	idx := make(map[uint64][]int, len(plays))
	ids := make([]uint64, 0, len(plays))
	for i := range plays {
		plays[i].Actors = []model.Actor{}
		plays[i].Genres = []model.Genre{}
		if _, ok := idx[plays[i].ID]; !ok {
			ids = append(ids, plays[i].ID)
		}
		idx[plays[i].ID] = append(idx[plays[i].ID], i)
	}
	in := placeholders(len(ids))

	rows, err := r.db.QueryContext(ctx,
		`SELECT pa.play_id, a.id, a.first_name, a.last_name
		 FROM play_actors pa JOIN actors a ON a.id = pa.actor_id
		 WHERE pa.play_id IN (`+in+`)
		 ORDER BY a.last_name, a.first_name, a.id`, uint64Args(ids)...)
	if err != nil {
		return err
	}
	for rows.Next() {
		var playID uint64
		var a model.Actor
		if err := rows.Scan(&playID, &a.ID, &a.FirstName, &a.LastName); err != nil {
			rows.Close()
			return err
		}
		for _, i := range idx[playID] {
			plays[i].Actors = append(plays[i].Actors, a)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.db.QueryContext(ctx,
		`SELECT pg.play_id, g.id, g.name
		 FROM play_genres pg JOIN genres g ON g.id = pg.genre_id
		 WHERE pg.play_id IN (`+in+`)
		 ORDER BY g.name`, uint64Args(ids)...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var playID uint64
		var g model.Genre
		if err := rows.Scan(&playID, &g.ID, &g.Name); err != nil {
			return err
		}
		for _, i := range idx[playID] {
			plays[i].Genres = append(plays[i].Genres, g)
		}
	}
	return rows.Err()
}

// Delete removes a play.  Its performances, their tickets and reservations
// go with it through ON DELETE CASCADE.
func (r *PlayRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM plays WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPlayNotFound
	}
	return nil
}
