package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/theatre-seat-reservation/internal/repository"
	"github.com/iliyamo/theatre-seat-reservation/internal/service"
)

// PerformanceHandler exposes the performance catalogue and seat
// availability.
type PerformanceHandler struct {
	Performances *service.PerformanceService
	Reservations *service.ReservationService
}

func NewPerformanceHandler(p *service.PerformanceService, r *service.ReservationService) *PerformanceHandler {
	if p == nil || r == nil {
		panic("nil service passed to NewPerformanceHandler")
	}
	return &PerformanceHandler{Performances: p, Reservations: r}
}

type createPerformanceReq struct {
	Play     uint64    `json:"play" validate:"required"`
	Hall     uint64    `json:"theatre_hall" validate:"required"`
	ShowTime time.Time `json:"show_time" validate:"required"`
}

// Create: POST /v1/performances {play, theatre_hall, show_time}.  The seat
// inventory of the hall is generated in the same transaction.
func (h *PerformanceHandler) Create(c echo.Context) error {
	var req createPerformanceReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	p, err := h.Performances.Create(c.Request().Context(), req.Play, req.Hall, req.ShowTime)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

type updatePerformanceReq struct {
	Play     *uint64    `json:"play" validate:"omitempty,gt=0"`
	Hall     *uint64    `json:"theatre_hall" validate:"omitempty,gt=0"`
	ShowTime *time.Time `json:"show_time"`
}

// Update: PATCH /v1/performances/:id {play?, theatre_hall?, show_time?}.
// Changing the hall regenerates the seats and is refused once any seat is
// reserved.
func (h *PerformanceHandler) Update(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return invalidID(c, "performance id")
	}
	var req updatePerformanceReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	p, err := h.Performances.Update(c.Request().Context(), id, service.PerformanceUpdate{
		PlayID:   req.Play,
		HallID:   req.Hall,
		ShowTime: req.ShowTime,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// List: GET /v1/performances?play=&date=YYYY-MM-DD&from=&to=&ordering=
func (h *PerformanceHandler) List(c echo.Context) error {
	var f repository.PerformanceFilter
	if v := c.QueryParam("play"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil || id == 0 {
			return badRequest(c, "invalid play")
		}
		f.PlayID = id
	}
	if v := c.QueryParam("date"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return badRequest(c, "date must be YYYY-MM-DD")
		}
		f.Date = &d
	}
	for _, q := range []struct {
		name string
		dst  **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		if v := c.QueryParam(q.name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return badRequest(c, q.name+" must be RFC3339")
			}
			*q.dst = &t
		}
	}
	switch o := c.QueryParam("ordering"); o {
	case "", "show_time", "-show_time":
		f.Ordering = o
	default:
		return badRequest(c, "ordering must be show_time or -show_time")
	}

	p := pageFromQuery(c)
	items, total, err := h.Performances.List(c.Request().Context(), f, p)
	if err != nil {
		return respondError(c, err)
	}
	return paged(c, items, total, p)
}

// Get: GET /v1/performances/:id
func (h *PerformanceHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return invalidID(c, "performance id")
	}
	d, err := h.Performances.Get(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// Delete: DELETE /v1/performances/:id
func (h *PerformanceHandler) Delete(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return invalidID(c, "performance id")
	}
	if err := h.Performances.Delete(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Seats: GET /v1/performances/:id/seats returns the free seats as
// [{row, seat}] ordered by row then seat.
func (h *PerformanceHandler) Seats(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return invalidID(c, "performance id")
	}
	seats, err := h.Reservations.AvailableSeats(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, seats)
}

// EnsureSeats: POST /v1/performances/:id/seats/ensure regenerates missing
// tickets and reports how many were created.
func (h *PerformanceHandler) EnsureSeats(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return invalidID(c, "performance id")
	}
	n, err := h.Performances.EnsureSeats(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"performance": id, "created": n})
}
