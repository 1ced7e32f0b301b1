package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-reservation-engine/internal/booking"
	"github.com/iliyamo/seat-reservation-engine/internal/waitlist"
)

// WaitlistHandler exposes the waiting list to customers.
type WaitlistHandler struct {
	Waitlist *waitlist.Promoter
	Bookings *booking.Service
}

// NewWaitlistHandler panics on nil dependencies.
func NewWaitlistHandler(wl *waitlist.Promoter, svc *booking.Service) *WaitlistHandler {
	if wl == nil || svc == nil {
		panic("nil dependency passed to NewWaitlistHandler")
	}
	return &WaitlistHandler{Waitlist: wl, Bookings: svc}
}

// Join handles POST /v1/pools/:id/waitlist with body {"quantity": n}.
func (h *WaitlistHandler) Join(c echo.Context) error {
	holderID, ok := holder(c)
	if !ok {
		return nil
	}
	poolID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid pool id")
	}
	var body struct {
		Quantity int `json:"quantity"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	st, err := h.Waitlist.Join(c.Request().Context(), poolID, holderID, body.Quantity)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, st)
}

// Get handles GET /v1/waitlist/:id.
func (h *WaitlistHandler) Get(c echo.Context) error {
	holderID, ok := holder(c)
	if !ok {
		return nil
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid entry id")
	}
	st, err := h.Waitlist.Get(c.Request().Context(), id, holderID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// Leave handles DELETE /v1/waitlist/:id.
func (h *WaitlistHandler) Leave(c echo.Context) error {
	holderID, ok := holder(c)
	if !ok {
		return nil
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid entry id")
	}
	e, err := h.Waitlist.Leave(c.Request().Context(), id, holderID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"entry": e})
}

// Convert handles POST /v1/waitlist/:id/convert. Seat pools need
// "seat_ids" or "hold_token" in the body.
func (h *WaitlistHandler) Convert(c echo.Context) error {
	holderID, ok := holder(c)
	if !ok {
		return nil
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid entry id")
	}
	var req booking.ConvertRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	req.EntryID, req.HolderID = id, holderID
	res, e, err := h.Bookings.ConvertWaitlistEntry(c.Request().Context(), req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"booking": res.Booking, "tickets": res.Tickets, "entry": e})
}
