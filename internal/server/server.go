package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/tbc-meetup/walletd/internal/config"
	"github.com/tbc-meetup/walletd/internal/gateway"
	"github.com/tbc-meetup/walletd/internal/infra"
	"github.com/tbc-meetup/walletd/internal/ledger"
	"github.com/tbc-meetup/walletd/internal/notification"
	"github.com/tbc-meetup/walletd/internal/payments"
	"github.com/tbc-meetup/walletd/internal/points"
	"github.com/tbc-meetup/walletd/internal/reconcile"
	"github.com/tbc-meetup/walletd/internal/refund"
	"github.com/tbc-meetup/walletd/internal/routes"
	"github.com/tbc-meetup/walletd/internal/txn"
	"github.com/tbc-meetup/walletd/internal/wallet"
	"github.com/tbc-meetup/walletd/internal/webhook"
)

// Server wraps the Fiber application, the background jobs and shared dependencies.
type Server struct {
	app      *fiber.App
	cfg      config.Config
	logger   *slog.Logger
	job      *reconcile.Job
	webhooks *webhook.Service
}

// Option customises server construction.
type Option func(*options)

type options struct {
	gateway  gateway.Gateway
	notifier notification.Notifier
}

// WithGateway replaces the gateway selected by configuration.
func WithGateway(gw gateway.Gateway) Option {
	return func(o *options) { o.gateway = gw }
}

// WithNotifier replaces the default logging and Redis stream notifiers.
func WithNotifier(n notification.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// New wires stores, services and routes. A nil db selects memory stores and a
// nil cache disables HTTP idempotency, rate limiting and the reconcile lock.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.notifier == nil {
		o.notifier = notification.NewLoggerNotifier(logger)
		if cache != nil {
			o.notifier = notification.Fanout{o.notifier, notification.NewStreamNotifier(cache, notification.DefaultStream, 0)}
		}
	}
	if o.gateway == nil {
		gw, err := newGateway(cfg)
		if err != nil {
			return nil, err
		}
		o.gateway = gw
	}
	gw := gateway.NewInstrumented(o.gateway, cfg.GatewayTimeout, logger)

	var (
		tx          txn.Transactor
		ledgerStore ledger.Store
		walletStore wallet.Store
		paymentRepo payments.Store
		eventRepo   webhook.Store
	)
	if db != nil {
		tx = txn.NewPgxTransactor(db)
		ledgerStore = ledger.NewPostgresStore(db)
		walletStore = wallet.NewPostgresRepository(db)
		paymentRepo = payments.NewPostgresRepository(db)
		eventRepo = webhook.NewPostgresRepository(db)
	} else {
		tx = txn.NewMemoryTransactor()
		ledgerStore = ledger.NewInMemory()
		walletStore = wallet.NewMemoryRepository()
		paymentRepo = payments.NewMemoryRepository()
		eventRepo = webhook.NewMemoryRepository()
	}

	walletSvc := wallet.NewService(walletStore, ledgerStore, tx, logger)
	pointsSvc := points.NewService(walletSvc, o.notifier, logger)
	paymentSvc := payments.NewService(paymentRepo, walletSvc, gw, tx,
		payments.WithDeductor(pointsSvc),
		payments.WithNotifier(o.notifier),
		payments.WithLogger(logger),
	)
	refundSvc := refund.NewService(paymentRepo, walletSvc, ledgerStore, gw, tx, o.notifier, logger)
	reconciler := reconcile.NewReconciler(walletStore, ledgerStore, tx, logger)
	webhookSvc := webhook.NewService(eventRepo, paymentSvc, cfg.WebhookSecret, cfg.WebhookMaxAttempts, logger)

	var locker reconcile.Locker
	if cache != nil {
		locker = infra.NewRedisLocker(cache)
	}
	job := reconcile.NewJob(reconciler, locker, cfg.ReconcileInterval, cfg.ReconcileAutoFix, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: routes.ErrorHandler(logger),
	})
	routes.Setup(app, routes.Deps{
		Cfg:        cfg,
		DB:         db,
		Cache:      cache,
		Logger:     logger,
		Wallets:    walletSvc,
		Payments:   paymentSvc,
		Refunds:    refundSvc,
		Points:     pointsSvc,
		Reconciler: reconciler,
		Webhooks:   webhookSvc,
	})

	return &Server{app: app, cfg: cfg, logger: logger, job: job, webhooks: webhookSvc}, nil
}

func newGateway(cfg config.Config) (gateway.Gateway, error) {
	switch cfg.GatewayProvider {
	case config.GatewayToss:
		return gateway.NewTossClient(cfg.GatewayBaseURL, cfg.GatewaySecret, cfg.GatewayTimeout), nil
	case config.GatewayRazorpay:
		return gateway.NewRazorpay(cfg.RazorpayKey, cfg.RazorpaySecret, cfg.GatewayTimeout), nil
	case config.GatewayStatic, "":
		return &gateway.Static{}, nil
	default:
		return nil, fmt.Errorf("unknown gateway provider %q", cfg.GatewayProvider)
	}
}

// App exposes the Fiber application, mainly for app.Test in tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// RunJobs runs the reconciliation job and the webhook dispatcher until ctx
// is canceled.
func (s *Server) RunJobs(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.job.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.webhooks.Run(ctx, s.cfg.WebhookPollInterval)
	}()
	wg.Wait()
	s.logger.Info("background jobs stopped")
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
