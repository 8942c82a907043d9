package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/paylite/payment-gateway/internal/config"
	"github.com/paylite/payment-gateway/internal/service"
	"github.com/paylite/payment-gateway/internal/utils"
)

// AuthHandler bundles dependencies for the device login endpoint.
type AuthHandler struct {
	Cfg      config.Config
	Identity *service.Identity
}

func NewAuthHandler(cfg config.Config, identity *service.Identity) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Identity: identity}
}

type loginReq struct {
	DeviceKey string `json:"device_key"`
}

type tokenResp struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login exchanges a device key for a short-lived bearer token bound to
// the user's telegram id. Possession of the device key is the only
// credential; the account must be active with an unexpired
// subscription.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid body")
	}
	req.DeviceKey = strings.TrimSpace(req.DeviceKey)
	if len(req.DeviceKey) < 10 || len(req.DeviceKey) > 100 {
		return jsonError(c, http.StatusBadRequest, "device_key required")
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	user, err := h.Identity.ByDeviceKey(ctx, req.DeviceKey)
	if err != nil {
		return serviceError(c, err)
	}
	if err := h.Identity.EnsureActive(user); err != nil {
		return serviceError(c, err)
	}

	token, err := utils.NewAccessToken(h.Cfg.JWTSecret, user.TelegramID, h.Cfg.AccessTTLMin)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, tokenResp{AccessToken: token.Token, TokenType: "bearer"})
}
