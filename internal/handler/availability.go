package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-reservation-engine/internal/availability"
)

// maxBatchPools bounds one batch availability request.
const maxBatchPools = 100

// AvailabilityHandler serves the public read side.
type AvailabilityHandler struct {
	Calc *availability.Calculator
}

// NewAvailabilityHandler panics on a nil calculator.
func NewAvailabilityHandler(calc *availability.Calculator) *AvailabilityHandler {
	if calc == nil {
		panic("nil calculator passed to NewAvailabilityHandler")
	}
	return &AvailabilityHandler{Calc: calc}
}

// Get handles GET /v1/pools/:id/availability.
func (h *AvailabilityHandler) Get(c echo.Context) error {
	poolID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid pool id")
	}
	a, err := h.Calc.Get(c.Request().Context(), poolID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

// Batch handles GET /v1/availability?pool_ids=1,2,3. Unknown pools are
// left out of the result.
func (h *AvailabilityHandler) Batch(c echo.Context) error {
	ids, ok := parseIDs(c.QueryParam("pool_ids"))
	if !ok {
		return badRequest(c, "pool_ids must be a comma separated list of ids")
	}
	if len(ids) > maxBatchPools {
		return badRequest(c, "too many pool ids")
	}
	out, err := h.Calc.Batch(c.Request().Context(), ids)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"pools": out})
}

// Seats handles GET /v1/pools/:id/seats.
func (h *AvailabilityHandler) Seats(c echo.Context) error {
	poolID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid pool id")
	}
	seats, err := h.Calc.SeatMap(c.Request().Context(), poolID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"pool_id": poolID, "seats": seats})
}
