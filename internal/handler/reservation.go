package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/theatre-seat-reservation/internal/seating"
	"github.com/iliyamo/theatre-seat-reservation/internal/service"
)

// ReservationHandler books, lists and cancels the caller's reservations.
type ReservationHandler struct {
	Reservations *service.ReservationService
}

func NewReservationHandler(r *service.ReservationService) *ReservationHandler {
	if r == nil {
		panic("nil service passed to NewReservationHandler")
	}
	return &ReservationHandler{Reservations: r}
}

// Seat coordinates are checked against the hall by the service, which
// reports empty, duplicate and out of bounds requests.
type createReservationReq struct {
	Performance uint64          `json:"performance" validate:"required"`
	Seats       []seating.Coord `json:"seats" validate:"max=500"`
}

// Create: POST /v1/reservations {performance, seats:[{row, seat}]}.  Either
// every seat is booked or none is.
func (h *ReservationHandler) Create(c echo.Context) error {
	uid, ok := currentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errorBody("unauthorized", "authentication required"))
	}
	var req createReservationReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	res, err := h.Reservations.Reserve(c.Request().Context(), uid, req.Performance, req.Seats)
	if err != nil {
		if service.Retryable(err) {
			c.Response().Header().Set("Retry-After", "1")
		}
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// List: GET /v1/reservations?page=&page_size= returns the caller's
// reservations, newest first.
func (h *ReservationHandler) List(c echo.Context) error {
	uid, ok := currentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errorBody("unauthorized", "authentication required"))
	}
	p := pageFromQuery(c)
	items, total, err := h.Reservations.MyReservations(c.Request().Context(), uid, p)
	if err != nil {
		return respondError(c, err)
	}
	return paged(c, items, total, p)
}

// Get: GET /v1/reservations/:id
func (h *ReservationHandler) Get(c echo.Context) error {
	uid, ok := currentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errorBody("unauthorized", "authentication required"))
	}
	id, ok := pathID(c, "id")
	if !ok {
		return invalidID(c, "reservation id")
	}
	res, err := h.Reservations.Get(c.Request().Context(), uid, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Cancel: DELETE /v1/reservations/:id frees the seats of the caller's
// reservation.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	uid, ok := currentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errorBody("unauthorized", "authentication required"))
	}
	id, ok := pathID(c, "id")
	if !ok {
		return invalidID(c, "reservation id")
	}
	if err := h.Reservations.Cancel(c.Request().Context(), uid, id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
