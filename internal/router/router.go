// Package router registers the HTTP routes on an Echo instance.
package router

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-reservation-engine/internal/handler"
	"github.com/iliyamo/seat-reservation-engine/internal/middleware"
)

// Handlers bundles everything the routes dispatch to.
type Handlers struct {
	Availability *handler.AvailabilityHandler
	Holds        *handler.HoldHandler
	Bookings     *handler.BookingHandler
	Waitlist     *handler.WaitlistHandler
	Admin        *handler.AdminHandler
}

// Middleware are the optional Redis-backed middleware. Nil entries are
// skipped.
type Middleware struct {
	Cache     echo.MiddlewareFunc
	RateLimit echo.MiddlewareFunc
}

// New returns an Echo instance with every route registered.
func New(h Handlers, mw Middleware, jwtSecret string, log *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler
	e.Use(middleware.RequestLogger(log))

	RegisterRoutes(e)
	RegisterPublic(e, h.Availability, mw.Cache)
	RegisterCustomer(e, h, mw.RateLimit, jwtSecret)
	RegisterOwner(e, h.Admin, jwtSecret)
	return e
}

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterPublic registers the read side. Availability reads go through
// the response cache when one is given.
func RegisterPublic(e *echo.Echo, a *handler.AvailabilityHandler, cache echo.MiddlewareFunc) {
	var mws []echo.MiddlewareFunc
	if cache != nil {
		mws = append(mws, cache)
	}
	e.GET("/v1/pools/:id/availability", a.Get, mws...)
	e.GET("/v1/availability", a.Batch, mws...)
	e.GET("/v1/pools/:id/seats", a.Seats)
}

// errorHandler keeps the {"error": ...} body shape for errors that escape
// handlers, such as 404 on an unknown route.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, msg := http.StatusInternalServerError, "internal error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(status)
		}
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, echo.Map{"error": msg})
}
