package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-reservation-engine/internal/middleware"
)

// RegisterCustomer registers the CUSTOMER endpoints under /v1. Mutating
// routes pass through the rate limiter when one is given.
func RegisterCustomer(e *echo.Echo, h Handlers, limit echo.MiddlewareFunc, jwtSecret string) {
	g := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleCustomer),
	)
	var limited []echo.MiddlewareFunc
	if limit != nil {
		limited = append(limited, limit)
	}

	g.POST("/pools/:id/holds", h.Holds.Hold, limited...)
	g.DELETE("/holds/:token", h.Holds.Release)

	g.POST("/bookings", h.Bookings.Create, limited...)
	g.GET("/bookings/:id", h.Bookings.Get)
	g.POST("/bookings/:id/confirm", h.Bookings.Confirm, limited...)
	g.POST("/bookings/:id/pay", h.Bookings.Pay, limited...)
	g.POST("/bookings/:id/cancel", h.Bookings.Cancel)

	g.POST("/pools/:id/waitlist", h.Waitlist.Join, limited...)
	g.GET("/waitlist/:id", h.Waitlist.Get)
	g.DELETE("/waitlist/:id", h.Waitlist.Leave)
	g.POST("/waitlist/:id/convert", h.Waitlist.Convert, limited...)
}
