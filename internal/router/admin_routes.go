package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/theatre-seat-reservation/internal/middleware"
	"github.com/iliyamo/theatre-seat-reservation/internal/model"
)

// RegisterAdmin registers the reference data writes.  All routes require a
// valid JWT with the ADMIN role, and a successful write drops the cached
// listing it affects.
func RegisterAdmin(e *echo.Echo, h Handlers, m Middleware) {
	admin := []echo.MiddlewareFunc{middleware.JWTAuth(m.JWTSecret), middleware.RequireRole(model.RoleAdmin)}
	with := func(paths ...string) []echo.MiddlewareFunc {
		return append(append([]echo.MiddlewareFunc{}, admin...), m.Cache.Invalidate(paths...))
	}

	e.POST("/v1/actors", h.Catalog.CreateActor, with("/v1/actors")...)
	e.PATCH("/v1/actors/:id", h.Catalog.UpdateActor, with("/v1/actors", "/v1/plays")...)
	e.DELETE("/v1/actors/:id", h.Catalog.DeleteActor, with("/v1/actors", "/v1/plays")...)

	e.POST("/v1/genres", h.Catalog.CreateGenre, with("/v1/genres")...)
	e.PATCH("/v1/genres/:id", h.Catalog.UpdateGenre, with("/v1/genres", "/v1/plays")...)
	e.DELETE("/v1/genres/:id", h.Catalog.DeleteGenre, with("/v1/genres", "/v1/plays")...)

	e.POST("/v1/plays", h.Catalog.CreatePlay, with("/v1/plays")...)
	e.PATCH("/v1/plays/:id", h.Catalog.UpdatePlay, with("/v1/plays", "/v1/performances")...)
	e.DELETE("/v1/plays/:id", h.Catalog.DeletePlay, with("/v1/plays", "/v1/performances")...)

	e.POST("/v1/halls", h.Halls.Create, with("/v1/halls")...)
	e.PATCH("/v1/halls/:id", h.Halls.Update, with("/v1/halls", "/v1/performances")...)
	e.DELETE("/v1/halls/:id", h.Halls.Delete, with("/v1/halls")...)

	// a performance's seats are cached per id, so writes on one drop that entry too
	e.POST("/v1/performances", h.Performances.Create, with("/v1/performances")...)
	e.PATCH("/v1/performances/:id", h.Performances.Update, with("/v1/performances", "/v1/performances/:id/seats")...)
	e.DELETE("/v1/performances/:id", h.Performances.Delete, with("/v1/performances", "/v1/performances/:id/seats")...)
	e.POST("/v1/performances/:id/seats/ensure", h.Performances.EnsureSeats, with("/v1/performances/:id/seats")...)
}
