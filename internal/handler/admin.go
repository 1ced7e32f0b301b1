package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-reservation-engine/internal/sweeper"
	"github.com/iliyamo/seat-reservation-engine/internal/waitlist"
)

// AdminHandler runs background passes on demand for OWNER users.
type AdminHandler struct {
	Sweeper  *sweeper.Sweeper
	Waitlist *waitlist.Promoter
}

// NewAdminHandler panics on nil dependencies.
func NewAdminHandler(sw *sweeper.Sweeper, wl *waitlist.Promoter) *AdminHandler {
	if sw == nil || wl == nil {
		panic("nil dependency passed to NewAdminHandler")
	}
	return &AdminHandler{Sweeper: sw, Waitlist: wl}
}

// Sweep handles POST /v1/admin/sweeps.
func (h *AdminHandler) Sweep(c echo.Context) error {
	res, err := h.Sweeper.Sweep(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// ProcessWaitlist handles POST /v1/admin/pools/:id/waitlist/process. An
// optional body {"available": n} overrides the computed free units.
func (h *AdminHandler) ProcessWaitlist(c echo.Context) error {
	poolID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid pool id")
	}
	var body struct {
		Available *int `json:"available"`
	}
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&body); err != nil {
			return badRequest(c, "invalid request body")
		}
	}
	if body.Available != nil && *body.Available < 0 {
		return badRequest(c, "available must not be negative")
	}
	res, err := h.Waitlist.Process(c.Request().Context(), poolID, body.Available)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
