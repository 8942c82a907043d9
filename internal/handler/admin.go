package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/paylite/payment-gateway/internal/service"
)

// AdminHandler serves the privileged user-lifecycle endpoints. Routes
// are guarded by the RequireAdmin middleware; every mutation funnels
// through the identity service so cache invalidation ordering is
// applied uniformly.
type AdminHandler struct {
	Identity *service.Identity
}

func NewAdminHandler(identity *service.Identity) *AdminHandler {
	return &AdminHandler{Identity: identity}
}

// ----- DTOs -----

type createUserReq struct {
	TelegramID       int64   `json:"telegram_id"`
	Name             *string `json:"name"`
	Email            *string `json:"email"`
	SubscriptionDays int     `json:"subscription_days"`
}

type updateUserReq struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	IsActive *bool   `json:"is_active"`
}

type rotateKeyReq struct {
	TelegramID int64 `json:"telegram_id"`
}

type reassignIDReq struct {
	OldTelegramID int64 `json:"old_telegram_id"`
	NewTelegramID int64 `json:"new_telegram_id"`
}

type extendSubscriptionReq struct {
	Days int `json:"days"`
}

type setSubscriptionEndReq struct {
	SubscriptionEnd time.Time `json:"subscription_end"`
}

// CreateUser provisions a user with generated api and device keys and a
// subscription of the requested length (default 30 days).
func (h *AdminHandler) CreateUser(c echo.Context) error {
	var req createUserReq
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid body")
	}
	if req.SubscriptionDays == 0 {
		req.SubscriptionDays = 30
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	user, err := h.Identity.CreateUser(ctx, req.TelegramID, req.Name, req.Email, req.SubscriptionDays)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"ok": true, "user": user})
}

// DeleteUser removes the user and cascades to all their transactions.
func (h *AdminHandler) DeleteUser(c echo.Context) error {
	telegramID, ok := pathTelegramID(c)
	if !ok {
		return jsonError(c, http.StatusBadRequest, "invalid telegram_id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	if err := h.Identity.DeleteUser(ctx, telegramID); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "message": "user and all transactions deleted"})
}

// UpdateUser patches name, email and/or is_active.
func (h *AdminHandler) UpdateUser(c echo.Context) error {
	telegramID, ok := pathTelegramID(c)
	if !ok {
		return jsonError(c, http.StatusBadRequest, "invalid telegram_id")
	}
	var req updateUserReq
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid body")
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	user, err := h.Identity.UpdateUser(ctx, telegramID, req.Name, req.Email, req.IsActive)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "user": user})
}

// RotateAPIKey replaces the user's api key; the old key stops resolving
// immediately (cached projections under it are dropped).
func (h *AdminHandler) RotateAPIKey(c echo.Context) error {
	var req rotateKeyReq
	if err := c.Bind(&req); err != nil || req.TelegramID <= 0 {
		return jsonError(c, http.StatusBadRequest, "telegram_id required")
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	user, err := h.Identity.RotateAPIKey(ctx, req.TelegramID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "api_key": user.APIKey})
}

// RotateDeviceKey replaces the user's device key and HMAC secret.
func (h *AdminHandler) RotateDeviceKey(c echo.Context) error {
	var req rotateKeyReq
	if err := c.Bind(&req); err != nil || req.TelegramID <= 0 {
		return jsonError(c, http.StatusBadRequest, "telegram_id required")
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	user, err := h.Identity.RotateDeviceKey(ctx, req.TelegramID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "device_key": user.DeviceKey})
}

// ReassignTelegramID moves the account to a new external identity.
func (h *AdminHandler) ReassignTelegramID(c echo.Context) error {
	var req reassignIDReq
	if err := c.Bind(&req); err != nil || req.OldTelegramID <= 0 {
		return jsonError(c, http.StatusBadRequest, "old_telegram_id and new_telegram_id required")
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	user, err := h.Identity.ReassignTelegramID(ctx, req.OldTelegramID, req.NewTelegramID)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "user": user})
}

// ExtendSubscription pushes the subscription end out by N days from its
// current end (or from now when already lapsed).
func (h *AdminHandler) ExtendSubscription(c echo.Context) error {
	telegramID, ok := pathTelegramID(c)
	if !ok {
		return jsonError(c, http.StatusBadRequest, "invalid telegram_id")
	}
	var req extendSubscriptionReq
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid body")
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	user, err := h.Identity.ExtendSubscription(ctx, telegramID, req.Days)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "subscription_end": user.SubscriptionEnd})
}

// SetSubscriptionEnd sets the subscription expiry to an explicit
// RFC 3339 instant.
func (h *AdminHandler) SetSubscriptionEnd(c echo.Context) error {
	telegramID, ok := pathTelegramID(c)
	if !ok {
		return jsonError(c, http.StatusBadRequest, "invalid telegram_id")
	}
	var req setSubscriptionEndReq
	if err := c.Bind(&req); err != nil || req.SubscriptionEnd.IsZero() {
		return jsonError(c, http.StatusBadRequest, "subscription_end required")
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	user, err := h.Identity.SetSubscriptionEnd(ctx, telegramID, req.SubscriptionEnd)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "subscription_end": user.SubscriptionEnd})
}

func pathTelegramID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("telegram_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
