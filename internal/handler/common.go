package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/paylite/payment-gateway/internal/repository"
	"github.com/paylite/payment-gateway/internal/service"
)

// requestTimeout bounds every store/cache call made on behalf of a
// request. A timeout is a dependency failure (503), never an implicit
// accept or reject of the guarded operation.
const requestTimeout = 5 * time.Second

func requestCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

func jsonError(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"ok": false, "error": msg})
}

// serviceError maps errors surfaced by the service and repository
// layers onto the HTTP error taxonomy. Anything unrecognized is a 500
// with a generic message; the cause is logged, never leaked.
func serviceError(c echo.Context, err error) error {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		return jsonError(c, http.StatusBadRequest, ve.Error())
	case errors.Is(err, service.ErrUnauthorized),
		errors.Is(err, service.ErrMissingSignatureHeaders),
		errors.Is(err, service.ErrInvalidTimestamp),
		errors.Is(err, service.ErrTimestampOutOfRange),
		errors.Is(err, service.ErrNonceReused),
		errors.Is(err, service.ErrInvalidSignature):
		return jsonError(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrUserInactive),
		errors.Is(err, service.ErrSubscriptionExpired):
		return jsonError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		return jsonError(c, http.StatusNotFound, "not found")
	case errors.Is(err, repository.ErrUserExists):
		return jsonError(c, http.StatusConflict, "user already exists")
	case errors.Is(err, context.DeadlineExceeded):
		return jsonError(c, http.StatusServiceUnavailable, "dependency timeout")
	default:
		log.Printf("handler: internal error: %v", err)
		return jsonError(c, http.StatusInternalServerError, "internal server error")
	}
}
