package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-reservation-engine/internal/ledger"
)

// HoldHandler exposes pre-booking seat holds.
type HoldHandler struct {
	Ledger *ledger.Ledger
}

// NewHoldHandler panics on a nil ledger.
func NewHoldHandler(l *ledger.Ledger) *HoldHandler {
	if l == nil {
		panic("nil ledger passed to NewHoldHandler")
	}
	return &HoldHandler{Ledger: l}
}

// Hold handles POST /v1/pools/:id/holds with body {"seat_ids": [...]}.
// It answers 201 with the hold token and its expiry, or 409 listing the
// seats that are taken.
func (h *HoldHandler) Hold(c echo.Context) error {
	holderID, ok := holder(c)
	if !ok {
		return nil
	}
	poolID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid pool id")
	}
	var body struct {
		SeatIDs []uint64 `json:"seat_ids"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	g, err := h.Ledger.Hold(c.Request().Context(), poolID, holderID, body.SeatIDs)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, g)
}

// Release handles DELETE /v1/holds/:token.
func (h *HoldHandler) Release(c echo.Context) error {
	holderID, ok := holder(c)
	if !ok {
		return nil
	}
	token := c.Param("token")
	if token == "" {
		return badRequest(c, "token is required")
	}
	if err := h.Ledger.ReleaseHold(c.Request().Context(), token, holderID); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
