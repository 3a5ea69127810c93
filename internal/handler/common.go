// Package handler exposes the HTTP API on top of the repositories and the
// reservation services.  Every error body has the shape
// {"error": kind, "message": text}.
package handler

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/theatre-seat-reservation/internal/logger"
	"github.com/iliyamo/theatre-seat-reservation/internal/middleware"
	"github.com/iliyamo/theatre-seat-reservation/internal/repository"
	"github.com/iliyamo/theatre-seat-reservation/internal/service"
)

// RequestValidator plugs go-playground/validator into echo's c.Validate.
type RequestValidator struct {
	v *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestValidator{v: v}
}

// Validate returns a message naming the first failing field.
func (rv *RequestValidator) Validate(i any) error {
	err := rv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			return fmt.Errorf("%s is required", fieldPath(fe))
		case "min", "gte":
			return fmt.Errorf("%s must be at least %s", fieldPath(fe), fe.Param())
		case "max", "lte":
			return fmt.Errorf("%s must be at most %s", fieldPath(fe), fe.Param())
		case "email":
			return fmt.Errorf("%s must be a valid email", fieldPath(fe))
		}
		return fmt.Errorf("%s is invalid", fieldPath(fe))
	}
	return err
}

// fieldPath drops the struct name from the namespace: "req.seats[0].row"
// becomes "seats[0].row".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func errorBody(kind, msg string) echo.Map {
	return echo.Map{"error": kind, "message": msg}
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorBody(string(service.KindValidation), msg))
}

// bindAndValidate decodes the JSON body into dst and validates it.  When
// ok is false the 400 has already been written and the handler must
// return err without touching the request any further.
func bindAndValidate(c echo.Context, dst any) (ok bool, err error) {
	if err := c.Bind(dst); err != nil {
		return false, badRequest(c, "invalid body")
	}
	if err := c.Validate(dst); err != nil {
		return false, badRequest(c, err.Error())
	}
	return true, nil
}

// respondError renders service and repository failures.  Storage failures
// that are safe to retry answer 503; anything unclassified is a 500.
func respondError(c echo.Context, err error) error {
	var se *service.Error
	if errors.As(err, &se) {
		status := http.StatusInternalServerError
		switch se.Kind {
		case service.KindValidation:
			status = http.StatusBadRequest
		case service.KindConflict:
			status = http.StatusConflict
		case service.KindNotFound:
			status = http.StatusNotFound
		case service.KindUnavailable:
			status = http.StatusServiceUnavailable
		}
		if status >= 500 {
			logger.FromContext(c.Request().Context()).WithError(err).Error("request failed")
		}
		return c.JSON(status, errorBody(string(se.Kind), se.Message))
	}

	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorBody(string(service.KindNotFound), err.Error()))
	case errors.Is(err, repository.ErrInvalidReference):
		return c.JSON(http.StatusBadRequest, errorBody(string(service.KindValidation), "referenced record does not exist"))
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, errorBody(string(service.KindConflict), conflictMessage(err)))
	}

	logger.FromContext(c.Request().Context()).WithError(err).Error("request failed")
	if repository.IsRetryable(err) {
		return c.JSON(http.StatusServiceUnavailable, errorBody(string(service.KindUnavailable), "storage unavailable, retry the request"))
	}
	return c.JSON(http.StatusInternalServerError, errorBody("internal", "internal error"))
}

// conflictMessage keeps the sentinel text and drops the driver detail.
func conflictMessage(err error) string {
	if repository.IsDuplicate(err) {
		return "a record with the same unique value already exists"
	}
	if repository.IsReferenced(err) {
		return "record is still referenced"
	}
	return err.Error()
}

func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func invalidID(c echo.Context, name string) error {
	return badRequest(c, "invalid "+name)
}

// currentUser returns the caller authenticated by middleware.JWTAuth.
func currentUser(c echo.Context) (uint64, bool) {
	return middleware.UserID(c)
}

// pageFromQuery reads page and page_size.  Missing or malformed values
// fall back to the defaults; the repository clamps the size.
func pageFromQuery(c echo.Context) repository.Page {
	p := repository.Page{}
	if v, err := strconv.Atoi(c.QueryParam("page")); err == nil {
		p.Page = v
	}
	if v, err := strconv.Atoi(c.QueryParam("page_size")); err == nil {
		p.PageSize = v
	}
	return p.Normalize()
}

// pageResponse is the envelope of every paginated listing.
type pageResponse struct {
	Data     any   `json:"data"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

func paged(c echo.Context, data any, total int64, p repository.Page) error {
	return c.JSON(http.StatusOK, pageResponse{Data: data, Total: total, Page: p.Page, PageSize: p.PageSize})
}

// idList parses "1,2,3".  Empty items are skipped.
func idList(raw string) ([]uint64, error) {
	var out []uint64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		out = append(out, id)
	}
	return out, nil
}
