package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/paylite/payment-gateway/internal/repository"
	"github.com/paylite/payment-gateway/internal/service"
)

// PaymentHandler serves the merchant-facing verify and dashboard
// endpoints, both authenticated by the X-Api-Key header.
type PaymentHandler struct {
	Identity *service.Identity
	Ledger   *service.Ledger
}

func NewPaymentHandler(identity *service.Identity, ledger *service.Ledger) *PaymentHandler {
	return &PaymentHandler{Identity: identity, Ledger: ledger}
}

type verifyReq struct {
	TrxID       string `json:"trx_id"`
	AmountPaisa int64  `json:"amount_paisa"`
}

// Verify claims a reported payment by exact (trx_id, amount) match,
// consuming it. Exactly one concurrent caller can win; everyone else —
// including a retry after a successful consume — gets 404.
func (h *PaymentHandler) Verify(c echo.Context) error {
	apiKey := c.Request().Header.Get("X-Api-Key")
	if apiKey == "" {
		return jsonError(c, http.StatusUnauthorized, "missing api key")
	}
	var req verifyReq
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid body")
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	user, err := h.Identity.ByAPIKey(ctx, apiKey)
	if err != nil {
		return serviceError(c, err)
	}
	if err := h.Identity.EnsureActive(user); err != nil {
		return serviceError(c, err)
	}

	trx, err := h.Ledger.Verify(ctx, user.APIKey, req.TrxID, req.AmountPaisa)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return jsonError(c, http.StatusNotFound, "transaction not found or already consumed")
		}
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"ok":      true,
		"message": "payment verified and consumed",
		"transaction": echo.Map{
			"trx_id":       trx.TrxID,
			"amount_paisa": trx.AmountPaisa,
			"provider":     trx.Provider,
			"created_at":   trx.CreatedAt.UTC().Format(time.RFC3339),
		},
	})
}

// Dashboard returns the pending-transaction summary for the api key:
// aggregate count plus the ten most recent entries, message bodies
// omitted. Served from cache within a short TTL.
func (h *PaymentHandler) Dashboard(c echo.Context) error {
	apiKey := c.Request().Header.Get("X-Api-Key")
	if apiKey == "" {
		return jsonError(c, http.StatusUnauthorized, "missing api key")
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	user, err := h.Identity.ByAPIKey(ctx, apiKey)
	if err != nil {
		return serviceError(c, err)
	}
	if err := h.Identity.EnsureActive(user); err != nil {
		return serviceError(c, err)
	}

	view, err := h.Ledger.Dashboard(ctx, user)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}
