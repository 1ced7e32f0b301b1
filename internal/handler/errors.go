// Package handler adapts the engine's operations to HTTP.
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-reservation-engine/internal/middleware"
	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

// statusFor maps the engine's error taxonomy to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrSeatConflict),
		errors.Is(err, model.ErrCapacity),
		errors.Is(err, model.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, model.ErrWindowExpired):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as {"error": ...}. Internal errors are not echoed back;
// they reach the access log instead.
func fail(c echo.Context, err error) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		return echo.NewHTTPError(status, "internal error").SetInternal(err)
	}
	body := echo.Map{"error": err.Error()}
	var conflict *model.SeatConflictError
	if errors.As(err, &conflict) {
		body["unavailable_seat_ids"] = conflict.SeatIDs
	}
	if model.IsRetryable(err) {
		body["retryable"] = true
	}
	return c.JSON(status, body)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// holder returns the authenticated holder, or false after writing a 401.
func holder(c echo.Context) (uint64, bool) {
	id, err := middleware.HolderID(c)
	if err != nil {
		_ = c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		return 0, false
	}
	return id, true
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// parseIDs parses a comma separated id list such as "1,2,3".
func parseIDs(s string) ([]uint64, bool) {
	var out []uint64
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseUint(p, 10, 64)
		if err != nil || id == 0 {
			return nil, false
		}
		out = append(out, id)
	}
	return out, len(out) > 0
}
