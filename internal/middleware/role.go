package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Roles carried in the access token.
const (
	RoleCustomer = "CUSTOMER"
	RoleOwner    = "OWNER"
)

// RequireRole rejects requests whose role claim is not one of roles. It
// must run after JWTAuth.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(CtxRole).(string)
			if !allowed[role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
