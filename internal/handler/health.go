package handler // declare the package name; contains HTTP handlers

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/paylite/payment-gateway/internal/config"
)

// SystemHandler serves the unauthenticated root and health endpoints.
type SystemHandler struct {
	Cfg   config.Config
	DB    *sql.DB
	Redis *redis.Client
}

func NewSystemHandler(cfg config.Config, db *sql.DB, rdb *redis.Client) *SystemHandler {
	return &SystemHandler{Cfg: cfg, DB: db, Redis: rdb}
}

// Root reports the application name and version.
func (h *SystemHandler) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"ok":      true,
		"app":     h.Cfg.AppName,
		"version": h.Cfg.AppVersion,
	})
}

// Health pings both dependencies and reports 503 when either is down,
// so load balancers stop routing to an instance that cannot serve.
func (h *SystemHandler) Health(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	if err := h.DB.PingContext(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"ok": false, "status": "unhealthy", "error": "database unreachable",
		})
	}
	if err := h.Redis.Ping(ctx).Err(); err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"ok": false, "status": "unhealthy", "error": "cache unreachable",
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"ok": true, "status": "healthy", "time": time.Now().UTC().Format(time.RFC3339),
	})
}
