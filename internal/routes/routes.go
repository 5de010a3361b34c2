package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/tbc-meetup/walletd/internal/config"
	"github.com/tbc-meetup/walletd/internal/middleware"
	"github.com/tbc-meetup/walletd/internal/payments"
	"github.com/tbc-meetup/walletd/internal/points"
	"github.com/tbc-meetup/walletd/internal/reconcile"
	"github.com/tbc-meetup/walletd/internal/refund"
	"github.com/tbc-meetup/walletd/internal/wallet"
	"github.com/tbc-meetup/walletd/internal/webhook"
)

// Deps aggregates the services and backends routes are wired to. DB and
// Cache are nil when the app runs on memory stores.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger

	Wallets    *wallet.Service
	Payments   *payments.Service
	Refunds    *refund.Service
	Points     *points.Service
	Reconciler *reconcile.Reconciler
	Webhooks   *webhook.Service
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) {
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Metrics())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1", middleware.RateLimit(d.Cache, "api", d.Cfg.RateLimit, d.Logger))
	if d.Cache != nil {
		api.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, false, d.Logger))
	}
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	paymentHandler := payments.NewHandler(d.Payments)
	refundHandler := refund.NewHandler(d.Refunds)
	webhookHandler := webhook.NewHandler(d.Webhooks)
	api.Post("/payments", paymentHandler.Create)
	api.Post("/payments/confirm", paymentHandler.Confirm)
	api.Post("/payments/refund", refundHandler.Refund)
	api.Post("/payments/webhook", webhookHandler.Receive)
	api.Get("/payments/:orderId", paymentHandler.Get)
	api.Delete("/payments/:orderId", paymentHandler.Cancel)

	walletHandler := wallet.NewHandler(d.Wallets)
	api.Get("/wallets/:userId", walletHandler.Balance)
	api.Get("/wallets/:userId/ledger", walletHandler.Ledger)

	api.Post("/points/deduct", points.NewHandler(d.Points).Deduct)

	reconcileHandler := reconcile.NewHandler(d.Reconciler)
	admin := api.Group("/admin")
	admin.Get("/reconcile", reconcileHandler.Report)
	admin.Post("/reconcile/fix", reconcileHandler.Fix)
}
