package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/paylite/payment-gateway/internal/middleware"
	"github.com/paylite/payment-gateway/internal/service"
)

// SMSHandler serves the ingestion endpoint used by the mobile client to
// report SMS-detected payment notifications.
type SMSHandler struct {
	Identity *service.Identity
	Replay   *service.ReplayGuard
	Ledger   *service.Ledger
}

func NewSMSHandler(identity *service.Identity, replay *service.ReplayGuard, ledger *service.Ledger) *SMSHandler {
	return &SMSHandler{Identity: identity, Replay: replay, Ledger: ledger}
}

// Submit ingests one payment notification. The flow is fixed: session
// token → identity (store, not cache) → active check → replay guard
// over the raw body → idempotent insert. The replay guard runs before
// any state-mutating effect; a duplicate is a success response, the
// client may have lost the first acknowledgment.
func (h *SMSHandler) Submit(c echo.Context) error {
	telegramID, ok := middleware.TelegramID(c)
	if !ok {
		return jsonError(c, http.StatusUnauthorized, "missing or invalid token")
	}

	// The signature covers the raw body bytes, so read them before
	// decoding.
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "unreadable body")
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	user, err := h.Identity.ByTelegramID(ctx, telegramID)
	if err != nil {
		return serviceError(c, err)
	}
	if err := h.Identity.EnsureActive(user); err != nil {
		return serviceError(c, err)
	}

	hdr := c.Request().Header
	if err := h.Replay.Check(ctx, user,
		hdr.Get("X-Signature"), hdr.Get("X-Timestamp"), hdr.Get("X-Nonce"), body); err != nil {
		return serviceError(c, err)
	}

	var in service.IngestInput
	if err := json.Unmarshal(body, &in); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid body")
	}

	status, err := h.Ledger.Ingest(ctx, user, in)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "status": status})
}
