package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-reservation-engine/internal/handler"
	"github.com/iliyamo/seat-reservation-engine/internal/middleware"
)

// RegisterOwner registers the OWNER maintenance endpoints under /v1/admin.
func RegisterOwner(e *echo.Echo, a *handler.AdminHandler, jwtSecret string) {
	g := e.Group("/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleOwner),
	)
	g.POST("/sweeps", a.Sweep)
	g.POST("/pools/:id/waitlist/process", a.ProcessWaitlist)
}
