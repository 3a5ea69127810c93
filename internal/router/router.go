// Package router wires handlers and middleware onto echo routes.
package router

import (
	"context"
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/theatre-seat-reservation/internal/handler"
	"github.com/iliyamo/theatre-seat-reservation/internal/middleware"
	"github.com/iliyamo/theatre-seat-reservation/internal/model"
)

// Handlers groups everything the routes need.
type Handlers struct {
	Health       *handler.HealthHandler
	Auth         *handler.AuthHandler
	Catalog      *handler.CatalogHandler
	Halls        *handler.HallHandler
	Performances *handler.PerformanceHandler
	Reservations *handler.ReservationHandler
}

// Middleware holds the shared middleware instances.  Cache and RateLimit
// may be no-ops when Redis is not configured.
type Middleware struct {
	JWTSecret string
	Cache     *middleware.ResponseCache
	RateLimit echo.MiddlewareFunc
}

// SeatsPath is the availability URL of a performance.
func SeatsPath(performanceID uint64) string {
	return fmt.Sprintf("/v1/performances/%d/seats", performanceID)
}

// SeatCache adapts the response cache to service.SeatCache.
type SeatCache struct {
	Cache *middleware.ResponseCache
}

// InvalidateSeats drops the cached availability of a performance.
func (s SeatCache) InvalidateSeats(ctx context.Context, performanceID uint64) error {
	if s.Cache == nil {
		return nil
	}
	return s.Cache.InvalidatePath(ctx, SeatsPath(performanceID))
}

// Register mounts every route on e.
func Register(e *echo.Echo, h Handlers, m Middleware) {
	RegisterRoutes(e, h.Health)
	RegisterAuth(e, h.Auth, m.JWTSecret)
	RegisterPublic(e, h, m.Cache)
	RegisterAdmin(e, h, m)
	RegisterReservations(e, h.Reservations, m)
}

// RegisterRoutes registers routes that need no authentication or data.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
}

// RegisterAuth registers the token endpoints under /v1/auth and the
// authenticated /v1/me.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// rotates the refresh token
	g.POST("/refresh", a.Refresh)
	g.POST("/refresh-access", a.RefreshAccess)
	// logout takes a refresh token in the body, a bearer token, or both
	g.POST("/logout", a.Logout)

	e.GET("/v1/me", a.Me,
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin, model.RoleCustomer))
}

// RegisterPublic registers the read-only catalogue and availability.
// Listings and availability go through the response cache.
func RegisterPublic(e *echo.Echo, h Handlers, cache *middleware.ResponseCache) {
	cached := cache.Middleware()

	e.GET("/v1/actors", h.Catalog.ListActors, cached)
	e.GET("/v1/actors/:id", h.Catalog.GetActor)
	e.GET("/v1/genres", h.Catalog.ListGenres, cached)
	e.GET("/v1/genres/:id", h.Catalog.GetGenre)
	e.GET("/v1/plays", h.Catalog.ListPlays, cached)
	e.GET("/v1/plays/:id", h.Catalog.GetPlay)
	e.GET("/v1/halls", h.Halls.List, cached)
	e.GET("/v1/halls/:id", h.Halls.Get)
	e.GET("/v1/performances", h.Performances.List, cached)
	e.GET("/v1/performances/:id", h.Performances.Get)
	e.GET("/v1/performances/:id/seats", h.Performances.Seats, cached)
}
