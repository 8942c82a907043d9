package main // Entry point package

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/paylite/payment-gateway/internal/cache"
	"github.com/paylite/payment-gateway/internal/config"
	"github.com/paylite/payment-gateway/internal/database"
	"github.com/paylite/payment-gateway/internal/handler"
	"github.com/paylite/payment-gateway/internal/middleware"
	"github.com/paylite/payment-gateway/internal/queue"
	"github.com/paylite/payment-gateway/internal/repository"
	"github.com/paylite/payment-gateway/internal/router"
	"github.com/paylite/payment-gateway/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments use the environment
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("mysql: %v", err)
	}
	defer db.Close()

	rdb, err := config.NewRedisClient()
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	store := cache.NewRedisStore(rdb)
	users := repository.NewUserRepo(db)
	transactions := repository.NewTransactionRepo(db)

	identity := service.NewIdentity(users, store, cfg.UserCacheTTL)
	ledger := service.NewLedger(transactions, store, &queue.Publisher{}, cfg.DashboardTTL, cfg.TxHintTTL)
	replay := service.NewReplayGuard(store, cfg.EnforceSignature)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.SecurityHeaders())

	router.RegisterSystem(e, handler.NewSystemHandler(cfg, db, rdb))
	router.RegisterAPI(e, cfg, rdb,
		handler.NewAuthHandler(cfg, identity),
		handler.NewSMSHandler(identity, replay, ledger),
		handler.NewPaymentHandler(identity, ledger))
	router.RegisterAdmin(e, cfg, handler.NewAdminHandler(identity))

	// Audit-log consumer for payment.verified events. Runs its own
	// reconnect loop for the lifetime of the process.
	go queue.StartVerifiedConsumer()

	go func() {
		addr := ":" + cfg.Port
		log.Printf("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// Block until SIGINT/SIGTERM, then drain in-flight requests before
	// the deferred closes release the store and cache handles.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Print("server stopped")
}
