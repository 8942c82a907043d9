package middleware // middleware provides shared request processing for handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/paylite/payment-gateway/internal/utils"
)

// telegramIDKey is the context key under which JWTAuth stores the
// authenticated caller's telegram id.
const telegramIDKey = "telegram_id"

// JWTAuth returns an Echo middleware that validates a Bearer access
// token and injects the token's subject (the user's telegram id) into
// the request context. The provided secret must match the one used when
// issuing tokens. Handlers behind this middleware read the identity via
// TelegramID(c) and resolve the user from the store — the token only
// proves identity, it does not carry account state.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"ok": false, "error": "missing or invalid token"})
			}
			raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

			telegramID, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"ok": false, "error": "invalid token"})
			}
			c.Set(telegramIDKey, telegramID)
			return next(c)
		}
	}
}

// TelegramID extracts the authenticated telegram id stored by JWTAuth.
// The boolean is false when the middleware did not run for this route.
func TelegramID(c echo.Context) (int64, bool) {
	v, ok := c.Get(telegramIDKey).(int64)
	return v, ok
}
