package middleware

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"
)

// ErrNoHolder is returned by HolderID on an unauthenticated request.
var ErrNoHolder = errors.New("no authenticated holder")

// HolderID returns the authenticated holder of the request.
func HolderID(c echo.Context) (uint64, error) {
	if id, ok := c.Get(CtxHolderID).(uint64); ok && id != 0 {
		return id, nil
	}
	return 0, ErrNoHolder
}

// parseSubject accepts the sub claim as a JSON number or a decimal string.
func parseSubject(v any) (uint64, bool) {
	switch t := v.(type) {
	case float64:
		if t >= 1 && t == float64(uint64(t)) {
			return uint64(t), true
		}
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil && n > 0 {
			return n, true
		}
	}
	return 0, false
}

// identityKey names the caller for rate limiting: the holder id, or
// "anon".
func identityKey(c echo.Context) string {
	if id, err := HolderID(c); err == nil {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
