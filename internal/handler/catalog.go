package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/theatre-seat-reservation/internal/model"
	"github.com/iliyamo/theatre-seat-reservation/internal/repository"
)

// CatalogHandler serves the reference data: actors, genres and plays.
// Reads are public; writes are mounted behind the ADMIN role.
type CatalogHandler struct {
	Actors *repository.ActorRepo
	Genres *repository.GenreRepo
	Plays  *repository.PlayRepo
}

func NewCatalogHandler(actors *repository.ActorRepo, genres *repository.GenreRepo, plays *repository.PlayRepo) *CatalogHandler {
	if actors == nil || genres == nil || plays == nil {
		panic("nil repository passed to NewCatalogHandler")
	}
	return &CatalogHandler{Actors: actors, Genres: genres, Plays: plays}
}

type actorReq struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
}

type updateActorReq struct {
	FirstName *string `json:"first_name" validate:"omitempty,min=1,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,min=1,max=100"`
}

type genreReq struct {
	Name string `json:"name" validate:"required,max=100"`
}

type updatePlayReq struct {
	Title       *string  `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string  `json:"description" validate:"omitempty,max=10000"`
	Actors      []uint64 `json:"actors" validate:"dive,gt=0"`
	Genres      []uint64 `json:"genres" validate:"dive,gt=0"`
}

type playReq struct {
	Title       string   `json:"title" validate:"required,max=255"`
	Description string   `json:"description" validate:"max=10000"`
	Actors      []uint64 `json:"actors" validate:"dive,gt=0"`
	Genres      []uint64 `json:"genres" validate:"dive,gt=0"`
}

// ListActors: GET /v1/actors?search=&page=&page_size=
func (h *CatalogHandler) ListActors(c echo.Context) error {
	p := pageFromQuery(c)
	items, total, err := h.Actors.List(c.Request().Context(), c.QueryParam("search"), p)
	if err != nil {
		return respondError(c, err)
	}
	return paged(c, items, total, p)
}

// CreateActor: POST /v1/actors
func (h *CatalogHandler) CreateActor(c echo.Context) error {
	var req actorReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	a := model.Actor{FirstName: strings.TrimSpace(req.FirstName), LastName: strings.TrimSpace(req.LastName)}
	if err := h.Actors.Create(c.Request().Context(), &a); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, a)
}

// GetActor: GET /v1/actors/:id
func (h *CatalogHandler) GetActor(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return invalidID(c, "actor id")
	}
	a, err := h.Actors.GetByID(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

// UpdateActor: PATCH /v1/actors/:id {first_name?, last_name?}
func (h *CatalogHandler) UpdateActor(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return invalidID(c, "actor id")
	}
	var req updateActorReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	ctx := c.Request().Context()
	a, err := h.Actors.GetByID(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	if req.FirstName != nil {
		a.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		a.LastName = strings.TrimSpace(*req.LastName)
	}
	if a.FirstName == "" || a.LastName == "" {
		return badRequest(c, "first_name and last_name must not be blank")
	}
	if err := h.Actors.Update(ctx, a); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

// DeleteActor: DELETE /v1/actors/:id
func (h *CatalogHandler) DeleteActor(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return invalidID(c, "actor id")
	}
	if err := h.Actors.Delete(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListGenres: GET /v1/genres?search=&page=&page_size=
func (h *CatalogHandler) ListGenres(c echo.Context) error {
	p := pageFromQuery(c)
	items, total, err := h.Genres.List(c.Request().Context(), c.QueryParam("search"), p)
	if err != nil {
		return respondError(c, err)
	}
	return paged(c, items, total, p)
}

// CreateGenre: POST /v1/genres
func (h *CatalogHandler) CreateGenre(c echo.Context) error {
	var req genreReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	g := model.Genre{Name: strings.TrimSpace(req.Name)}
	if err := h.Genres.Create(c.Request().Context(), &g); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, g)
}

// GetGenre: GET /v1/genres/:id
func (h *CatalogHandler) GetGenre(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return invalidID(c, "genre id")
	}
	g, err := h.Genres.GetByID(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, g)
}

// UpdateGenre: PATCH /v1/genres/:id {name}
func (h *CatalogHandler) UpdateGenre(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return invalidID(c, "genre id")
	}
	var req genreReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	ctx := c.Request().Context()
	g, err := h.Genres.GetByID(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	g.Name = strings.TrimSpace(req.Name)
	if g.Name == "" {
		return badRequest(c, "name must not be blank")
	}
	if err := h.Genres.Update(ctx, g); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, g)
}

// DeleteGenre: DELETE /v1/genres/:id
func (h *CatalogHandler) DeleteGenre(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return invalidID(c, "genre id")
	}
	if err := h.Genres.Delete(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListPlays: GET /v1/plays?genres=1,2&actors=3&search=&ordering=-title
func (h *CatalogHandler) ListPlays(c echo.Context) error {
	f := repository.PlayFilter{Search: c.QueryParam("search")}
	var err error
	if f.GenreIDs, err = idList(c.QueryParam("genres")); err != nil {
		return badRequest(c, "genres: "+err.Error())
	}
	if f.ActorIDs, err = idList(c.QueryParam("actors")); err != nil {
		return badRequest(c, "actors: "+err.Error())
	}
	switch o := c.QueryParam("ordering"); o {
	case "", "title", "-title":
		f.Ordering = o
	default:
		return badRequest(c, "ordering must be title or -title")
	}

	p := pageFromQuery(c)
	items, total, err := h.Plays.List(c.Request().Context(), f, p)
	if err != nil {
		return respondError(c, err)
	}
	return paged(c, items, total, p)
}

// GetPlay: GET /v1/plays/:id
func (h *CatalogHandler) GetPlay(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return invalidID(c, "play id")
	}
	p, err := h.Plays.GetByID(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// CreatePlay: POST /v1/plays {title, description, actors:[ids], genres:[ids]}
func (h *CatalogHandler) CreatePlay(c echo.Context) error {
	var req playReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	ctx := c.Request().Context()
	p := model.Play{Title: strings.TrimSpace(req.Title), Description: req.Description}
	if err := h.Plays.Create(ctx, &p, req.Actors, req.Genres); err != nil {
		return respondError(c, err)
	}
	full, err := h.Plays.GetByID(ctx, p.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, full)
}

// UpdatePlay: PATCH /v1/plays/:id.  actors or genres, when present,
// replace the play's links; an empty list clears them.
func (h *CatalogHandler) UpdatePlay(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return invalidID(c, "play id")
	}
	var req updatePlayReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	ctx := c.Request().Context()
	cur, err := h.Plays.GetByID(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	p := model.Play{ID: cur.ID, Title: cur.Title, Description: cur.Description}
	if req.Title != nil {
		p.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if p.Title == "" {
		return badRequest(c, "title must not be blank")
	}
	if err := h.Plays.Update(ctx, &p, req.Actors, req.Genres); err != nil {
		return respondError(c, err)
	}
	full, err := h.Plays.GetByID(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, full)
}

// DeletePlay: DELETE /v1/plays/:id
func (h *CatalogHandler) DeletePlay(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return invalidID(c, "play id")
	}
	if err := h.Plays.Delete(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
