package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/paylite/payment-gateway/internal/config"
	"github.com/paylite/payment-gateway/internal/handler"
	"github.com/paylite/payment-gateway/internal/middleware"
)

// RegisterSystem registers the unauthenticated root and health
// endpoints. Load balancers and monitoring use /health to verify the
// service and its dependencies are up.
func RegisterSystem(e *echo.Echo, s *handler.SystemHandler) {
	e.GET("/", s.Root)
	e.GET("/health", s.Health)
}

// RegisterAPI registers the client-facing endpoints under /api/v1.
// Login and ingest sit behind the Redis token bucket: both are reached
// by unattended devices and are the natural burst sources. Ingest
// additionally requires a bearer session token; verify and dashboard
// authenticate by api key inside their handlers.
func RegisterAPI(e *echo.Echo, cfg config.Config, rdb *redis.Client,
	a *handler.AuthHandler, s *handler.SMSHandler, p *handler.PaymentHandler) {

	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	g := e.Group("/api/v1")
	g.POST("/auth/login", a.Login, limiter)
	g.POST("/sms", s.Submit, limiter, middleware.JWTAuth(cfg.JWTSecret))
	g.POST("/verify-payment", p.Verify)
	g.GET("/user/dashboard", p.Dashboard)
}

// RegisterAdmin registers the privileged user-lifecycle endpoints under
// /api/admin. Every route requires the X-Admin-Secret header.
func RegisterAdmin(e *echo.Echo, cfg config.Config, h *handler.AdminHandler) {
	g := e.Group("/api/admin", middleware.RequireAdmin(cfg.AdminSecret))
	g.POST("/users", h.CreateUser)
	g.DELETE("/users/:telegram_id", h.DeleteUser)
	g.PATCH("/users/:telegram_id", h.UpdateUser)
	g.POST("/users/update-api-key", h.RotateAPIKey)
	g.POST("/users/update-device-key", h.RotateDeviceKey)
	g.POST("/users/update-telegram-id", h.ReassignTelegramID)
	g.POST("/users/extend-subscription/:telegram_id", h.ExtendSubscription)
	g.POST("/users/set-subscription-end/:telegram_id", h.SetSubscriptionEnd)
}
