package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireAdmin returns a middleware that enforces the X-Admin-Secret
// header on administrative routes. The comparison is constant time so
// the header cannot be probed byte by byte.
func RequireAdmin(adminSecret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got := c.Request().Header.Get("X-Admin-Secret")
			if subtle.ConstantTimeCompare([]byte(got), []byte(adminSecret)) != 1 {
				return c.JSON(http.StatusForbidden, echo.Map{"ok": false, "error": "invalid admin secret"})
			}
			return next(c)
		}
	}
}
