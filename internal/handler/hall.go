package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/theatre-seat-reservation/internal/model"
	"github.com/iliyamo/theatre-seat-reservation/internal/repository"
)

// HallHandler manages theatre halls.
type HallHandler struct {
	Halls *repository.HallRepo
}

func NewHallHandler(halls *repository.HallRepo) *HallHandler {
	if halls == nil {
		panic("nil repository passed to NewHallHandler")
	}
	return &HallHandler{Halls: halls}
}

type createHallReq struct {
	Name       string `json:"name" validate:"required,max=100"`
	Rows       uint32 `json:"rows" validate:"required,min=1,max=1000"`
	SeatsInRow uint32 `json:"seats_in_row" validate:"required,min=1,max=1000"`
}

// updateHallReq has optional fields; omitted ones keep their value.
type updateHallReq struct {
	Name       *string `json:"name" validate:"omitempty,min=1,max=100"`
	Rows       *uint32 `json:"rows" validate:"omitempty,min=1,max=1000"`
	SeatsInRow *uint32 `json:"seats_in_row" validate:"omitempty,min=1,max=1000"`
}

// List: GET /v1/halls?search=&page=&page_size=
func (h *HallHandler) List(c echo.Context) error {
	p := pageFromQuery(c)
	halls, total, err := h.Halls.List(c.Request().Context(), c.QueryParam("search"), p)
	if err != nil {
		return respondError(c, err)
	}
	out := make([]model.HallView, 0, len(halls))
	for _, hl := range halls {
		out = append(out, hl.View())
	}
	return paged(c, out, total, p)
}

// Get: GET /v1/halls/:id
func (h *HallHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return invalidID(c, "hall id")
	}
	hl, err := h.Halls.GetByID(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, hl.View())
}

// Create: POST /v1/halls {name, rows, seats_in_row}
func (h *HallHandler) Create(c echo.Context) error {
	var req createHallReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	hl := model.Hall{Name: strings.TrimSpace(req.Name), Rows: req.Rows, SeatsInRow: req.SeatsInRow}
	if err := h.Halls.Create(c.Request().Context(), &hl); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, hl.View())
}

// Update: PATCH /v1/halls/:id.  Renaming is always allowed; changing the
// geometry of a hall that has performances is a conflict.
func (h *HallHandler) Update(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return invalidID(c, "hall id")
	}
	var req updateHallReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	ctx := c.Request().Context()
	hl, err := h.Halls.GetByID(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	if req.Name != nil {
		hl.Name = strings.TrimSpace(*req.Name)
	}
	if req.Rows != nil {
		hl.Rows = *req.Rows
	}
	if req.SeatsInRow != nil {
		hl.SeatsInRow = *req.SeatsInRow
	}
	if err := h.Halls.Update(ctx, hl); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, hl.View())
}

// Delete: DELETE /v1/halls/:id.  Halls hosting performances cannot be
// deleted.
func (h *HallHandler) Delete(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return invalidID(c, "hall id")
	}
	if err := h.Halls.Delete(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
