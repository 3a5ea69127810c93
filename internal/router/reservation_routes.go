package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/theatre-seat-reservation/internal/handler"
	"github.com/iliyamo/theatre-seat-reservation/internal/middleware"
	"github.com/iliyamo/theatre-seat-reservation/internal/model"
)

// RegisterReservations registers the caller's reservation endpoints.  Any
// authenticated user may book; booking is rate limited per user.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, m Middleware) {
	g := e.Group("/v1/reservations",
		middleware.JWTAuth(m.JWTSecret),
		middleware.RequireRole(model.RoleAdmin, model.RoleCustomer),
	)
	limit := m.RateLimit
	if limit == nil {
		limit = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	g.POST("", h.Create, limit)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Cancel)
}
